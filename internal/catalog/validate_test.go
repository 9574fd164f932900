package catalog

import (
	"strings"
	"testing"

	"github.com/terra-clan/onboard-engine/internal/models"
)

func chainTask(id string, prereqs ...string) *models.Task {
	return &models.Task{
		ID:            id,
		Title:         id,
		Type:          models.TaskTypeQA,
		Status:        models.TaskPending,
		EstimatedTime: 5,
		Difficulty:    models.DifficultyEasy,
		Prerequisites: prereqs,
	}
}

func TestValidateAcceptsLinearChain(t *testing.T) {
	tasks := []*models.Task{
		chainTask("a"),
		chainTask("b", "a"),
		chainTask("c", "b"),
	}
	if err := Validate(tasks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsUnknownPrerequisite(t *testing.T) {
	tasks := []*models.Task{
		chainTask("a"),
		chainTask("b", "ghost"),
	}
	err := Validate(tasks)
	if err == nil || !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("expected unknown-prerequisite error, got %v", err)
	}
}

func TestValidateRejectsSelfReference(t *testing.T) {
	tasks := []*models.Task{chainTask("a", "a")}
	err := Validate(tasks)
	if err == nil || !strings.Contains(err.Error(), "itself") {
		t.Fatalf("expected self-reference error, got %v", err)
	}
}

func TestValidateRejectsCycle(t *testing.T) {
	tasks := []*models.Task{
		chainTask("a", "c"),
		chainTask("b", "a"),
		chainTask("c", "b"),
	}
	err := Validate(tasks)
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestValidateRejectsDuplicateIDs(t *testing.T) {
	tasks := []*models.Task{chainTask("a"), chainTask("a")}
	err := Validate(tasks)
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate-id error, got %v", err)
	}
}
