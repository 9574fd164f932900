package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// trackFile represents the YAML structure of a track override file
type trackFile struct {
	Track string         `yaml:"track"`
	Tasks []TaskTemplate `yaml:"tasks"`
}

// LoadTrackOverrides loads role-track override files from a directory
// and applies them to the track set. One YAML file per track; malformed
// files are logged and skipped, never fatal.
func LoadTrackOverrides(ts *TrackSet, dir string) error {
	patterns := []string{"*.yaml", "*.yml"}
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}

	loaded := 0
	for _, file := range files {
		if err := loadTrackFile(ts, file); err != nil {
			slog.Warn("failed to load track override", "file", file, "error", err)
			continue
		}
		loaded++
	}

	slog.Info("track overrides loaded", "count", loaded, "total_files", len(files))
	return nil
}

func loadTrackFile(ts *TrackSet, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var tf trackFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if tf.Track == "" {
		return fmt.Errorf("track name is required")
	}
	if NormalizeRole(tf.Track) == TrackGeneral && tf.Track != TrackGeneral {
		return fmt.Errorf("unknown track %q", tf.Track)
	}
	if len(tf.Tasks) < 2 || len(tf.Tasks) > 4 {
		return fmt.Errorf("track %q must define 2-4 tasks, has %d", tf.Track, len(tf.Tasks))
	}
	for i, tpl := range tf.Tasks {
		if tpl.Slug == "" {
			return fmt.Errorf("track %q task %d is missing a slug", tf.Track, i)
		}
		if tpl.Title == "" {
			return fmt.Errorf("track %q task %q is missing a title", tf.Track, tpl.Slug)
		}
	}

	ts.Override(NormalizeRole(tf.Track), tf.Tasks)
	slog.Info("track override applied", "track", tf.Track, "tasks", len(tf.Tasks))
	return nil
}
