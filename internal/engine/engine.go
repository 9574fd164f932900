package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/onboard-engine/internal/catalog"
	"github.com/terra-clan/onboard-engine/internal/models"
)

var (
	ErrTaskNotFound       = errors.New("task not found in session")
	ErrNotAQuizTask       = errors.New("task has no quiz payload")
	ErrNotAQuestionTask   = errors.New("task has no free-text question")
	ErrPrerequisitesUnmet = errors.New("task prerequisites are not completed")
	ErrInvalidOption      = errors.New("selected option is out of range")
	ErrStaleResult        = errors.New("result arrived for a task that is no longer active")
)

// RevealPolicy controls what happens when a quiz reaches the attempt
// threshold. The default reveals the answer but leaves the task
// incomplete; the user must still move on via skip or a correct guess.
type RevealPolicy string

const (
	RevealOnly        RevealPolicy = "reveal-only"
	RevealAndComplete RevealPolicy = "reveal-and-complete"
)

// Store is the persistence hook the engine saves sessions through.
// Saves are best-effort: a failing store degrades durability, never
// session flow.
type Store interface {
	SaveSession(ctx context.Context, s *models.OnboardingSession) error
}

// Hinter is the generative collaborator surface the engine uses for
// hints and closing feedback. May be nil; every call has a local
// fallback.
type Hinter interface {
	GenerateHint(ctx context.Context, taskTitle, taskDescription, personality string) (string, error)
	ClosingFeedback(ctx context.Context, role string, elapsedMinutes int, struggledWith []string, personality string) (string, error)
}

// Config holds engine policy knobs
type Config struct {
	RevealPolicy    RevealPolicy
	RevealThreshold int // failed attempts before the answer is revealed
}

// Engine drives session progression. All session mutation goes through
// its operations; external components never touch Tasks or
// CompletedTasks directly.
type Engine struct {
	mu      sync.Mutex
	cfg     Config
	builder *catalog.Builder
	hinter  Hinter
	store   Store

	now func() time.Time
}

// New creates an engine. hinter and store may be nil.
func New(cfg Config, builder *catalog.Builder, hinter Hinter, store Store) *Engine {
	if cfg.RevealThreshold <= 0 {
		cfg.RevealThreshold = 3
	}
	if cfg.RevealPolicy == "" {
		cfg.RevealPolicy = RevealOnly
	}
	return &Engine{
		cfg:     cfg,
		builder: builder,
		hinter:  hinter,
		store:   store,
		now:     time.Now,
	}
}

// CanStart reports whether every prerequisite id is in the completed
// set. Vacuously true for tasks without prerequisites, and monotonic in
// the completed set.
func CanStart(task *models.Task, completed map[string]bool) bool {
	for _, pre := range task.Prerequisites {
		if !completed[pre] {
			return false
		}
	}
	return true
}

// NextAvailable returns the first pending task in catalog order whose
// prerequisites are satisfied, or nil when none remain
func NextAvailable(tasks []*models.Task, completed map[string]bool) *models.Task {
	for _, t := range tasks {
		if t.Status == models.TaskPending && CanStart(t, completed) {
			return t
		}
	}
	return nil
}

// Progress summarizes catalog completion. Only pending tasks count
// toward the remaining-time estimate: a task becomes in-progress the
// instant it is displayed, at which point its time is already being
// spent.
func Progress(tasks []*models.Task) models.Progress {
	p := models.Progress{Total: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case models.TaskCompleted:
			p.Completed++
		case models.TaskPending:
			p.EstimatedTimeRemaining += t.EstimatedTime
		}
	}
	if p.Total > 0 {
		p.Percentage = int(math.Round(100 * float64(p.Completed) / float64(p.Total)))
	}
	return p
}

// ProgressFor computes catalog progress under the engine lock
func (e *Engine) ProgressFor(s *models.OnboardingSession) models.Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Progress(s.Tasks)
}

// StartSession builds a catalog for the request and returns a fresh
// session aggregate
func (e *Engine) StartSession(ctx context.Context, req models.CreateSessionRequest) (*models.OnboardingSession, error) {
	tasks, err := e.builder.Build(ctx, catalog.BuildRequest{
		RepositoryName: req.RepositoryName,
		Role:           req.UserRole,
		Level:          req.UserLevel,
		Repositories:   req.Repositories,
		AIPersonality:  req.AIPersonality,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog: %w", err)
	}

	now := e.now()
	s := &models.OnboardingSession{
		ID:             models.NewSessionID(now),
		Token:          uuid.NewString(),
		UserID:         req.UserID,
		RepositoryName: req.RepositoryName,
		UserLevel:      req.UserLevel,
		UserRole:       req.UserRole,
		Repositories:   req.Repositories,
		Status:         models.SessionActive,
		Tasks:          tasks,
		CompletedTasks: make(map[string]bool),
		AIPersonality:  req.AIPersonality,
		StartedAt:      now,
		LastEventAt:    now,
	}

	e.save(ctx, s)
	slog.Info("session started",
		"session_id", s.ID,
		"user_id", s.UserID,
		"role", s.UserRole,
		"tasks", len(tasks),
	)
	return s, nil
}

// RestartSession discards the session's progress and rebuilds the
// catalog from the same inputs under a new session id
func (e *Engine) RestartSession(ctx context.Context, s *models.OnboardingSession) (*models.OnboardingSession, error) {
	return e.StartSession(ctx, models.CreateSessionRequest{
		UserID:         s.UserID,
		RepositoryName: s.RepositoryName,
		UserLevel:      s.UserLevel,
		UserRole:       s.UserRole,
		Repositories:   s.Repositories,
		AIPersonality:  s.AIPersonality,
	})
}

// StartTask moves a task to in-progress, enforcing prerequisite gating
func (e *Engine) StartTask(ctx context.Context, s *models.OnboardingSession, taskID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	task := s.TaskByID(taskID)
	if task == nil {
		return ErrTaskNotFound
	}
	if !CanStart(task, s.CompletedIDs()) {
		return ErrPrerequisitesUnmet
	}
	if task.Status == models.TaskInProgress {
		return nil
	}
	if err := task.Transition(models.TaskInProgress, e.now()); err != nil {
		return err
	}
	e.touch(s)
	e.save(ctx, s)
	return nil
}

// TaskUpdate carries partial task fields for UpdateTask. Nil fields are
// left untouched.
type TaskUpdate struct {
	Status   *models.TaskStatus
	Attempts *int
}

// UpdateTask merges the given fields into the identified task. Status
// changes go through the transition table.
func (e *Engine) UpdateTask(ctx context.Context, s *models.OnboardingSession, taskID string, upd TaskUpdate) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	task := s.TaskByID(taskID)
	if task == nil {
		return ErrTaskNotFound
	}
	if upd.Status != nil && *upd.Status != task.Status {
		if err := task.Transition(*upd.Status, e.now()); err != nil {
			return err
		}
	}
	if upd.Attempts != nil {
		task.Attempts = *upd.Attempts
	}
	e.touch(s)
	e.save(ctx, s)
	return nil
}

// QuestionFor returns the free-text prompt and reference answer for
// the task. Tasks without a question cannot be answered this way.
func (e *Engine) QuestionFor(s *models.OnboardingSession, taskID string) (question, expected string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task := s.TaskByID(taskID)
	if task == nil {
		return "", "", ErrTaskNotFound
	}
	if task.Question == "" {
		return "", "", ErrNotAQuestionTask
	}
	return task.Question, task.Answer, nil
}

// RecordAnswer counts one free-text attempt against the task and
// completes it when the evaluation passed
func (e *Engine) RecordAnswer(ctx context.Context, s *models.OnboardingSession, taskID string, correct bool) (attempts int, completed bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task := s.TaskByID(taskID)
	if task == nil {
		return 0, false, ErrTaskNotFound
	}
	task.Attempts++
	attempts = task.Attempts

	if correct {
		if err := e.completeLocked(ctx, s, taskID); err != nil {
			return attempts, false, err
		}
		return attempts, true, nil
	}
	e.touch(s)
	e.save(ctx, s)
	return attempts, false, nil
}

// CompleteTask marks the task completed, adds it to the completed set,
// and advances the current task pointer. Completing an already
// completed task is a no-op.
func (e *Engine) CompleteTask(ctx context.Context, s *models.OnboardingSession, taskID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.completeLocked(ctx, s, taskID)
}

func (e *Engine) completeLocked(ctx context.Context, s *models.OnboardingSession, taskID string) error {
	task := s.TaskByID(taskID)
	if task == nil {
		return ErrTaskNotFound
	}
	if s.CompletedIDs()[taskID] {
		return nil
	}
	if err := task.Transition(models.TaskCompleted, e.now()); err != nil {
		return err
	}
	s.CompletedTasks[taskID] = true
	e.advance(s)
	e.touch(s)
	e.save(ctx, s)

	slog.Info("task completed",
		"session_id", s.ID,
		"task_id", taskID,
		"attempts", task.Attempts,
	)
	return nil
}

// SkipTask marks the task skipped. Skipped ids never enter the
// completed set, so they do not satisfy later prerequisites.
func (e *Engine) SkipTask(ctx context.Context, s *models.OnboardingSession, taskID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	task := s.TaskByID(taskID)
	if task == nil {
		return ErrTaskNotFound
	}
	if task.Status == models.TaskSkipped {
		return nil
	}
	if err := task.Transition(models.TaskSkipped, e.now()); err != nil {
		return err
	}
	e.advance(s)
	e.touch(s)
	e.save(ctx, s)
	return nil
}

// advance recomputes the current task pointer: the catalog position of
// the next available task, or len(tasks) when the curriculum is
// exhausted. Caller holds the lock.
func (e *Engine) advance(s *models.OnboardingSession) {
	next := NextAvailable(s.Tasks, s.CompletedIDs())
	if next == nil {
		s.CurrentTaskIndex = len(s.Tasks)
		if s.Status == models.SessionActive {
			s.Status = models.SessionCompleted
			now := e.now()
			s.CompletedAt = &now
			slog.Info("session completed", "session_id", s.ID, "user_id", s.UserID)
		}
		return
	}
	for i, t := range s.Tasks {
		if t.ID == next.ID {
			s.CurrentTaskIndex = i
			return
		}
	}
}

// HandleCommandResult reacts to a command execution reported by the
// terminal surface. succeeded is decided at the boundary (substring
// policy); the engine appends the audit note and completes the current
// terminal task when the report is positive.
func (e *Engine) HandleCommandResult(ctx context.Context, s *models.OnboardingSession, command string, succeeded bool) (models.CommandResultResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s.AppendNote(e.now(), "$ "+command)

	resp := models.CommandResultResponse{Matched: succeeded}
	current := s.CurrentTask()
	if current == nil || current.Type != models.TaskTypeTerminal || !succeeded {
		e.touch(s)
		e.save(ctx, s)
		p := Progress(s.Tasks)
		resp.Progress = &p
		return resp, nil
	}

	if err := e.completeLocked(ctx, s, current.ID); err != nil {
		return resp, err
	}
	resp.TaskCompleted = true
	resp.TaskID = current.ID
	p := Progress(s.Tasks)
	resp.Progress = &p
	return resp, nil
}

// SubmitQuizAnswer records a quiz submission. Attempts increment on
// every submission; a correct answer completes the task; after the
// reveal threshold the correct option text is surfaced but the task
// stays incomplete unless the reveal policy says otherwise.
func (e *Engine) SubmitQuizAnswer(ctx context.Context, s *models.OnboardingSession, taskID string, selected int) (models.QuizAnswerResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task := s.TaskByID(taskID)
	if task == nil {
		return models.QuizAnswerResponse{}, ErrTaskNotFound
	}
	if task.Quiz == nil {
		return models.QuizAnswerResponse{}, ErrNotAQuizTask
	}
	if selected < 0 || selected >= len(task.Quiz.Options) {
		return models.QuizAnswerResponse{}, ErrInvalidOption
	}

	task.Attempts++
	resp := models.QuizAnswerResponse{Attempts: task.Attempts}

	if selected == task.Quiz.CorrectAnswer {
		resp.Correct = true
		if err := e.completeLocked(ctx, s, taskID); err != nil {
			return resp, err
		}
		resp.Completed = true
		return resp, nil
	}

	resp.Explanation = task.Quiz.Explanation
	if task.Attempts >= e.cfg.RevealThreshold {
		resp.RevealedAnswer = task.Quiz.Options[task.Quiz.CorrectAnswer]
		if e.cfg.RevealPolicy == RevealAndComplete {
			if err := e.completeLocked(ctx, s, taskID); err != nil {
				return resp, err
			}
			resp.Completed = true
			return resp, nil
		}
	}

	e.touch(s)
	e.save(ctx, s)
	return resp, nil
}

// Stats computes the terminal session statistics: elapsed wall-clock
// minutes and the titles of tasks that took more than two attempts
func (e *Engine) Stats(s *models.OnboardingSession) models.SessionStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statsLocked(s)
}

func (e *Engine) statsLocked(s *models.OnboardingSession) models.SessionStats {
	end := e.now()
	if s.CompletedAt != nil {
		end = *s.CompletedAt
	}
	stats := models.SessionStats{
		ElapsedMinutes: int(end.Sub(s.StartedAt).Minutes()),
	}
	for _, t := range s.Tasks {
		if t.Attempts > 2 {
			stats.StruggledWith = append(stats.StruggledWith, t.Title)
		}
	}
	return stats
}

// Hint fetches a generative hint for the task. The call carries the
// session/task identity it was issued for: if the task has moved to a
// terminal state by the time the response arrives, the result is
// discarded as stale. Any service failure falls back to the task's own
// description.
func (e *Engine) Hint(ctx context.Context, s *models.OnboardingSession, taskID string) (string, error) {
	e.mu.Lock()
	task := s.TaskByID(taskID)
	if task == nil {
		e.mu.Unlock()
		return "", ErrTaskNotFound
	}
	title, desc, personality := task.Title, task.Description, s.AIPersonality
	sessionID := s.ID
	e.mu.Unlock()

	if e.hinter == nil {
		return cannedHint(desc), nil
	}

	hint, err := e.hinter.GenerateHint(ctx, title, desc, personality)
	if err != nil {
		slog.Warn("hint generation failed, using canned hint",
			"session_id", sessionID,
			"task_id", taskID,
			"error", err,
		)
		return cannedHint(desc), nil
	}

	// Relevance check: the session may have moved on while the call was
	// in flight.
	e.mu.Lock()
	defer e.mu.Unlock()
	if cur := s.TaskByID(taskID); cur == nil || cur.Status.IsTerminal() || s.ID != sessionID {
		return "", ErrStaleResult
	}
	return hint, nil
}

func cannedHint(description string) string {
	if description == "" {
		return "Re-read the task and take it one step at a time."
	}
	return "Focus on the task description: " + description
}

// ClosingMessage returns the personalized wrap-up for a completed
// session, falling back to a static congratulation on any failure
func (e *Engine) ClosingMessage(ctx context.Context, s *models.OnboardingSession) string {
	const fallback = "Congratulations on completing your onboarding! You're ready to start contributing."

	stats := e.Stats(s)
	if e.hinter == nil {
		return fallback
	}

	msg, err := e.hinter.ClosingFeedback(ctx, s.UserRole, stats.ElapsedMinutes, stats.StruggledWith, s.AIPersonality)
	if err != nil {
		slog.Warn("closing feedback generation failed, using static message",
			"session_id", s.ID,
			"error", err,
		)
		return fallback
	}
	return msg
}

// touch records session activity for the abandonment janitor. Caller
// holds the lock.
func (e *Engine) touch(s *models.OnboardingSession) {
	s.LastEventAt = e.now()
}

// save persists the session best-effort. A failing store is logged and
// otherwise ignored; session flow never blocks on persistence.
func (e *Engine) save(ctx context.Context, s *models.OnboardingSession) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveSession(ctx, s); err != nil {
		slog.Warn("failed to save session", "session_id", s.ID, "error", err)
	}
}
