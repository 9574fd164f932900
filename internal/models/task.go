package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition marks a task status move the transition table
// does not allow
var ErrInvalidTransition = errors.New("invalid status transition")

// TaskType determines which payload fields are meaningful and which
// completion predicate applies
type TaskType string

const (
	TaskTypeTerminal      TaskType = "terminal"
	TaskTypeExplore       TaskType = "explore"
	TaskTypeQA            TaskType = "qa"
	TaskTypeCodeChallenge TaskType = "code-challenge"
	TaskTypeQuiz          TaskType = "quiz"
	TaskTypeInteractive   TaskType = "interactive"
)

// IsValid reports whether t is a known task type
func (t TaskType) IsValid() bool {
	switch t {
	case TaskTypeTerminal, TaskTypeExplore, TaskTypeQA,
		TaskTypeCodeChallenge, TaskTypeQuiz, TaskTypeInteractive:
		return true
	default:
		return false
	}
}

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in-progress"
	TaskCompleted  TaskStatus = "completed"
	TaskSkipped    TaskStatus = "skipped"
)

// IsTerminal returns true if the status is final
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskSkipped
}

// CanTransition reports whether the status may move to the given target.
// Allowed moves: pending -> in-progress | completed | skipped,
// in-progress -> completed | skipped. Terminal states never move.
func (s TaskStatus) CanTransition(to TaskStatus) bool {
	switch s {
	case TaskPending:
		return to == TaskInProgress || to == TaskCompleted || to == TaskSkipped
	case TaskInProgress:
		return to == TaskCompleted || to == TaskSkipped
	default:
		return false
	}
}

// Difficulty is informational task difficulty
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Quiz holds a multiple-choice question with exactly four options
type Quiz struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Explanation   string   `json:"explanation,omitempty"`
}

// CodeChallenge holds a coding exercise payload. The fields are carried
// through the catalog and API but are not evaluated by the engine.
type CodeChallenge struct {
	Prompt  string `json:"prompt"`
	Starter string `json:"starter,omitempty"`
	Tests   string `json:"tests,omitempty"`
}

// Task is one curriculum unit within an onboarding session
type Task struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Type          TaskType   `json:"type"`
	Status        TaskStatus `json:"status"`
	EstimatedTime int        `json:"estimated_time"` // minutes
	Difficulty    Difficulty `json:"difficulty"`
	Prerequisites []string   `json:"prerequisites,omitempty"`

	// Type-specific payload
	File           string         `json:"file,omitempty"`            // explore
	Command        string         `json:"command,omitempty"`         // terminal
	ExpectedOutput string         `json:"expected_output,omitempty"` // terminal
	Question       string         `json:"question,omitempty"`        // qa
	Answer         string         `json:"answer,omitempty"`          // qa
	Quiz           *Quiz          `json:"quiz,omitempty"`
	CodeChallenge  *CodeChallenge `json:"code_challenge,omitempty"`

	Attempts       int        `json:"attempts"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	CompletionTime *time.Time `json:"completion_time,omitempty"`
}

// Transition moves the task to the given status, enforcing the
// transition table. StartTime and CompletionTime are stamped exactly
// once, on first activation and on completion.
func (t *Task) Transition(to TaskStatus, now time.Time) error {
	if !t.Status.CanTransition(to) {
		return fmt.Errorf("task %s: %w: %s -> %s", t.ID, ErrInvalidTransition, t.Status, to)
	}
	t.Status = to
	switch to {
	case TaskInProgress:
		if t.StartTime == nil {
			t.StartTime = &now
		}
	case TaskCompleted:
		if t.StartTime == nil {
			t.StartTime = &now
		}
		if t.CompletionTime == nil {
			t.CompletionTime = &now
		}
	}
	return nil
}
