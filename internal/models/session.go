package models

import (
	"fmt"
	"time"
)

// SessionStatus represents the current state of an onboarding session
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"    // Candidate working through the catalog
	SessionCompleted SessionStatus = "completed" // Catalog exhausted
	SessionAbandoned SessionStatus = "abandoned" // Idle past the configured TTL
)

// OnboardingSession is the aggregate tracking one user's progress through
// a catalog. It is mutated exclusively through the engine's operations.
type OnboardingSession struct {
	ID string `json:"id"`
	// Token authorizes candidate-facing access (the websocket event
	// stream) without an admin API key.
	Token          string        `json:"token,omitempty"`
	UserID         string        `json:"user_id"`
	RepositoryName string        `json:"repository_name"`
	UserLevel      string        `json:"user_level"`
	UserRole       string        `json:"user_role"`
	Repositories   []string      `json:"repositories"`
	Status         SessionStatus `json:"status"`

	CurrentTaskIndex int             `json:"current_task_index"`
	Tasks            []*Task         `json:"tasks"`
	CompletedTasks   map[string]bool `json:"completed_tasks"`

	// SessionNotes is an append-only audit log of timestamped command
	// executions. It never drives control flow.
	SessionNotes string `json:"session_notes,omitempty"`

	// AIPersonality is a tone label threaded into generative prompts
	// (e.g. "mentor"). No behavioral effect.
	AIPersonality string `json:"ai_personality,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastEventAt time.Time  `json:"last_event_at"`
}

// NewSessionID derives a session id from the current time. Ids are
// timestamp-derived rather than random so restarts are traceable.
func NewSessionID(now time.Time) string {
	return fmt.Sprintf("session-%d", now.UnixMilli())
}

// IsComplete reports whether the catalog is exhausted
func (s *OnboardingSession) IsComplete() bool {
	return s.CurrentTaskIndex >= len(s.Tasks)
}

// TaskByID returns the task with the given id, or nil
func (s *OnboardingSession) TaskByID(id string) *Task {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// CurrentTask returns the task at the current index, or nil when the
// session is complete
func (s *OnboardingSession) CurrentTask() *Task {
	if s.CurrentTaskIndex < 0 || s.CurrentTaskIndex >= len(s.Tasks) {
		return nil
	}
	return s.Tasks[s.CurrentTaskIndex]
}

// CompletedIDs returns the completed-task set. Skipped tasks are never
// members; they do not satisfy prerequisites of later tasks.
func (s *OnboardingSession) CompletedIDs() map[string]bool {
	if s.CompletedTasks == nil {
		s.CompletedTasks = make(map[string]bool)
	}
	return s.CompletedTasks
}

// AppendNote appends one timestamped line to the session audit log
func (s *OnboardingSession) AppendNote(now time.Time, line string) {
	s.SessionNotes += fmt.Sprintf("[%s] %s\n", now.UTC().Format(time.RFC3339), line)
}

// Progress summarizes catalog completion for reporting
type Progress struct {
	Completed              int `json:"completed"`
	Total                  int `json:"total"`
	Percentage             int `json:"percentage"`
	EstimatedTimeRemaining int `json:"estimated_time_remaining"` // minutes
}

// SessionStats is computed when a session reaches its terminal state
type SessionStats struct {
	ElapsedMinutes int      `json:"elapsed_minutes"`
	StruggledWith  []string `json:"struggled_with"` // titles of tasks with attempts > 2
}

// SessionFilters narrows session listings
type SessionFilters struct {
	UserID string
	Status SessionStatus
	Limit  int
	Offset int
}

// CreateSessionRequest represents a request to start an onboarding session
type CreateSessionRequest struct {
	UserID         string   `json:"user_id"`
	RepositoryName string   `json:"repository_name"`
	UserLevel      string   `json:"user_level"`
	UserRole       string   `json:"user_role"`
	Repositories   []string `json:"repositories,omitempty"`
	AIPersonality  string   `json:"ai_personality,omitempty"`
}

// CommandResultRequest is reported by the terminal UI after a command runs
type CommandResultRequest struct {
	Command string `json:"command"`
	Output  string `json:"output"`
}

// CommandResultResponse tells the terminal UI whether the command
// satisfied the current task
type CommandResultResponse struct {
	Matched       bool      `json:"matched"`
	TaskCompleted bool      `json:"task_completed"`
	TaskID        string    `json:"task_id,omitempty"`
	Progress      *Progress `json:"progress,omitempty"`
}

// QuizAnswerRequest carries a selected option index
type QuizAnswerRequest struct {
	SelectedOption int `json:"selected_option"`
}

// QuizAnswerResponse reports the outcome of a quiz submission
type QuizAnswerResponse struct {
	Correct     bool   `json:"correct"`
	Completed   bool   `json:"completed"`
	Attempts    int    `json:"attempts"`
	Explanation string `json:"explanation,omitempty"`
	// RevealedAnswer holds the text of the correct option once the
	// attempt threshold is reached.
	RevealedAnswer string `json:"revealed_answer,omitempty"`
}

// FreeTextAnswerRequest carries a free-form answer for evaluation
type FreeTextAnswerRequest struct {
	Answer string `json:"answer"`
}

// Evaluation is the outcome of scoring a free-text answer
type Evaluation struct {
	IsCorrect bool   `json:"is_correct"`
	Feedback  string `json:"feedback"`
	Score     int    `json:"score"` // 0-100
}
