package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/terra-clan/onboard-engine/internal/models"
)

func writeTrackFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadTrackOverrides(t *testing.T) {
	dir := t.TempDir()

	writeTrackFile(t, dir, "frontend.yaml", `
track: frontend
tasks:
  - slug: custom-explore
    title: Explore our widgets
    description: Read the widget catalog.
    type: explore
    estimated_time: 20
    difficulty: medium
    file: src/widgets/index.ts
    level_modulated: true
  - slug: custom-question
    title: Widgets question
    description: Explain the widget lifecycle.
    type: qa
    estimated_time: 10
    difficulty: easy
    question: How does a widget mount?
`)
	// Malformed files are skipped, not fatal
	writeTrackFile(t, dir, "broken.yaml", "track: [not, a, string")
	writeTrackFile(t, dir, "unknown.yaml", "track: wizardry\ntasks:\n  - slug: a\n    title: A\n  - slug: b\n    title: B\n")

	ts := NewTrackSet()
	if err := LoadTrackOverrides(ts, dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	chain := ts.ForRole("frontend developer")
	if len(chain) != 2 {
		t.Fatalf("expected 2 overridden tasks, got %d", len(chain))
	}
	if chain[0].Slug != "custom-explore" || chain[0].File != "src/widgets/index.ts" {
		t.Errorf("unexpected first template: %+v", chain[0])
	}
	if !chain[0].LevelModulated {
		t.Error("level_modulated not carried through")
	}

	// Other tracks keep their built-in chains
	if got := ts.ForRole("backend"); len(got) == 0 || got[0].Slug != "explore-handlers" {
		t.Errorf("backend track should be untouched, got %+v", got)
	}

	// Overridden track still builds a valid catalog
	b := NewBuilder(nil, ts)
	tasks, err := b.Build(context.Background(), buildReq("frontend"))
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, task := range tasks {
		if task.ID == "frontend-custom-explore" {
			found = true
			if task.Type != models.TaskTypeExplore {
				t.Errorf("type = %s, want explore", task.Type)
			}
		}
	}
	if !found {
		t.Error("overridden track task missing from built catalog")
	}
}

func TestLoadTrackOverridesMissingDir(t *testing.T) {
	ts := NewTrackSet()
	if err := LoadTrackOverrides(ts, filepath.Join(t.TempDir(), "nope")); err != nil {
		t.Fatalf("missing directory should not be an error, got %v", err)
	}
}
