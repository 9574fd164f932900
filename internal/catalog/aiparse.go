package catalog

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/terra-clan/onboard-engine/internal/models"
)

// The generative batch arrives as free text with no schema guarantee, so
// every field extraction here is optional and a bad line is dropped, not
// substituted. Expected line grammar:
//
//	Task N: <title> - <description> - Type: <type> - File: <path>
//
// Only the "Task" prefix and a non-empty title are required.

// lineOutcome is the per-line parse result: a task, or a skip reason
type lineOutcome struct {
	task *models.Task
	skip string
}

// ParseGeneratedTasks parses a raw generated batch into tasks. It never
// fails: unparseable lines are dropped with a debug log. Parsed tasks
// get ids ai-generated-{1..n} by parsed position and chain sequentially;
// the caller anchors the first task's prerequisite.
func ParseGeneratedTasks(raw string) []*models.Task {
	var tasks []*models.Task

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		out := parseLine(line)
		if out.task == nil {
			slog.Debug("dropping unparseable generated line", "reason", out.skip, "line", line)
			continue
		}

		n := len(tasks) + 1
		out.task.ID = fmt.Sprintf("ai-generated-%d", n)
		if n > 1 {
			out.task.Prerequisites = []string{tasks[n-2].ID}
		}
		tasks = append(tasks, out.task)
	}

	return tasks
}

func parseLine(line string) lineOutcome {
	if !strings.HasPrefix(strings.ToLower(line), "task") {
		return lineOutcome{skip: "missing task prefix"}
	}

	// Strip the "Task N:" label
	rest := line
	if idx := strings.Index(line, ":"); idx >= 0 {
		rest = line[idx+1:]
	} else {
		return lineOutcome{skip: "missing colon after task label"}
	}

	segments := strings.Split(rest, " - ")
	for i := range segments {
		segments[i] = strings.TrimSpace(segments[i])
	}

	title := segments[0]
	if title == "" {
		return lineOutcome{skip: "empty title"}
	}

	task := &models.Task{
		Title:         title,
		Type:          models.TaskTypeQA,
		Status:        models.TaskPending,
		EstimatedTime: 10,
		Difficulty:    models.DifficultyMedium,
	}

	declared := ""
	for _, seg := range segments[1:] {
		switch {
		case hasFoldPrefix(seg, "type:"):
			declared = strings.ToLower(strings.TrimSpace(seg[len("type:"):]))
		case hasFoldPrefix(seg, "file:"):
			task.File = strings.TrimSpace(seg[len("file:"):])
		default:
			if task.Description == "" {
				task.Description = seg
			}
		}
	}

	if t := models.TaskType(declared); t.IsValid() {
		task.Type = t
	}

	// File presence overrides the declared type
	if task.File != "" {
		task.Type = models.TaskTypeExplore
	}

	return lineOutcome{task: task}
}

// hasFoldPrefix is a case-insensitive strings.HasPrefix
func hasFoldPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
