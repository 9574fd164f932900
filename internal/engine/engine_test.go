package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/terra-clan/onboard-engine/internal/catalog"
	"github.com/terra-clan/onboard-engine/internal/models"
)

func newTestEngine(cfg Config) *Engine {
	e := New(cfg, catalog.NewBuilder(nil, nil), nil, nil)
	base := time.Unix(1_700_000_000, 0)
	e.now = func() time.Time { return base }
	return e
}

func task(id string, typ models.TaskType, estimated int, prereqs ...string) *models.Task {
	return &models.Task{
		ID:            id,
		Title:         "Task " + id,
		Type:          typ,
		Status:        models.TaskPending,
		EstimatedTime: estimated,
		Difficulty:    models.DifficultyMedium,
		Prerequisites: prereqs,
	}
}

func newSession(tasks ...*models.Task) *models.OnboardingSession {
	return &models.OnboardingSession{
		ID:             "session-1",
		UserID:         "user-1",
		UserRole:       "backend",
		Status:         models.SessionActive,
		Tasks:          tasks,
		CompletedTasks: make(map[string]bool),
		StartedAt:      time.Unix(1_700_000_000, 0),
	}
}

func TestCanStartMonotonic(t *testing.T) {
	tk := task("c", models.TaskTypeQA, 5, "a", "b")

	if CanStart(tk, map[string]bool{"a": true}) {
		t.Error("missing prerequisite b should block")
	}

	base := map[string]bool{"a": true, "b": true}
	if !CanStart(tk, base) {
		t.Fatal("all prerequisites completed, should start")
	}

	// Any superset keeps the answer true
	superset := map[string]bool{"a": true, "b": true, "x": true, "y": true}
	if !CanStart(tk, superset) {
		t.Error("superset of a satisfying set must still satisfy")
	}

	// Vacuous truth with no prerequisites
	if !CanStart(task("solo", models.TaskTypeQA, 5), nil) {
		t.Error("task without prerequisites should always start")
	}
}

func TestProgressEmpty(t *testing.T) {
	p := Progress(nil)
	if p.Completed != 0 || p.Total != 0 || p.Percentage != 0 || p.EstimatedTimeRemaining != 0 {
		t.Errorf("empty progress = %+v, want all zeros", p)
	}
}

func TestProgressMixedStatuses(t *testing.T) {
	tasks := []*models.Task{
		task("a", models.TaskTypeQA, 2),
		task("b", models.TaskTypeQA, 5),
		task("c", models.TaskTypeQA, 10),
		task("d", models.TaskTypeQA, 12),
		task("e", models.TaskTypeQA, 5),
	}
	tasks[0].Status = models.TaskCompleted
	tasks[1].Status = models.TaskCompleted
	tasks[2].Status = models.TaskInProgress

	p := Progress(tasks)
	if p.Completed != 2 {
		t.Errorf("completed = %d, want 2", p.Completed)
	}
	if p.Total != 5 {
		t.Errorf("total = %d, want 5", p.Total)
	}
	if p.Percentage != 40 {
		t.Errorf("percentage = %d, want 40", p.Percentage)
	}
	// Only pending tasks count: the in-progress task's time is already
	// being spent.
	if p.EstimatedTimeRemaining != 17 {
		t.Errorf("remaining = %d, want 17", p.EstimatedTimeRemaining)
	}
}

func TestCompleteTaskAdvancesPointer(t *testing.T) {
	e := newTestEngine(Config{})
	s := newSession(
		task("a", models.TaskTypeInteractive, 5),
		task("b", models.TaskTypeQA, 5, "a"),
		task("c", models.TaskTypeQA, 5, "b"),
	)
	ctx := context.Background()

	if err := e.CompleteTask(ctx, s, "a"); err != nil {
		t.Fatal(err)
	}
	if s.CurrentTaskIndex != 1 {
		t.Errorf("index = %d, want 1", s.CurrentTaskIndex)
	}
	if !s.CompletedTasks["a"] {
		t.Error("a should be in the completed set")
	}

	if err := e.CompleteTask(ctx, s, "b"); err != nil {
		t.Fatal(err)
	}
	if err := e.CompleteTask(ctx, s, "c"); err != nil {
		t.Fatal(err)
	}
	if s.CurrentTaskIndex != len(s.Tasks) {
		t.Errorf("index = %d, want %d (session complete)", s.CurrentTaskIndex, len(s.Tasks))
	}
	if s.Status != models.SessionCompleted {
		t.Errorf("status = %s, want completed", s.Status)
	}
	if s.CompletedAt == nil {
		t.Error("completion timestamp not set")
	}
}

func TestCompleteTaskIdempotent(t *testing.T) {
	e := newTestEngine(Config{})
	s := newSession(
		task("a", models.TaskTypeQA, 5),
		task("b", models.TaskTypeQA, 5, "a"),
	)
	ctx := context.Background()

	if err := e.CompleteTask(ctx, s, "a"); err != nil {
		t.Fatal(err)
	}
	idxBefore := s.CurrentTaskIndex
	completedBefore := len(s.CompletedTasks)

	if err := e.CompleteTask(ctx, s, "a"); err != nil {
		t.Fatalf("second completion must be a no-op, got %v", err)
	}
	if len(s.CompletedTasks) != completedBefore {
		t.Errorf("completed set changed: %d -> %d", completedBefore, len(s.CompletedTasks))
	}
	if s.CurrentTaskIndex != idxBefore {
		t.Errorf("index changed: %d -> %d", idxBefore, s.CurrentTaskIndex)
	}
}

func TestSkippedTasksDoNotSatisfyPrerequisites(t *testing.T) {
	e := newTestEngine(Config{})
	s := newSession(
		task("a", models.TaskTypeQA, 5),
		task("b", models.TaskTypeQA, 5, "a"),
	)
	ctx := context.Background()

	if err := e.SkipTask(ctx, s, "a"); err != nil {
		t.Fatal(err)
	}
	if s.CompletedTasks["a"] {
		t.Error("skipped task must not enter the completed set")
	}
	if err := e.StartTask(ctx, s, "b"); !errors.Is(err, ErrPrerequisitesUnmet) {
		t.Errorf("expected ErrPrerequisitesUnmet, got %v", err)
	}
	// With no startable pending task left, the curriculum is exhausted
	if s.CurrentTaskIndex != len(s.Tasks) {
		t.Errorf("index = %d, want %d", s.CurrentTaskIndex, len(s.Tasks))
	}
}

func TestStartTaskStampsStartTimeOnce(t *testing.T) {
	e := newTestEngine(Config{})
	s := newSession(task("a", models.TaskTypeQA, 5))
	ctx := context.Background()

	if err := e.StartTask(ctx, s, "a"); err != nil {
		t.Fatal(err)
	}
	first := s.Tasks[0].StartTime
	if first == nil {
		t.Fatal("start time not stamped")
	}
	if err := e.StartTask(ctx, s, "a"); err != nil {
		t.Fatal(err)
	}
	if s.Tasks[0].StartTime != first {
		t.Error("start time must be stamped exactly once")
	}
}

func TestCompletedTaskCannotRevert(t *testing.T) {
	e := newTestEngine(Config{})
	s := newSession(task("a", models.TaskTypeQA, 5))
	ctx := context.Background()

	if err := e.CompleteTask(ctx, s, "a"); err != nil {
		t.Fatal(err)
	}

	pending := models.TaskPending
	err := e.UpdateTask(ctx, s, "a", TaskUpdate{Status: &pending})
	if err == nil {
		t.Fatal("completed -> pending must be rejected")
	}
}

func TestHandleCommandResultCompletesTerminalTask(t *testing.T) {
	e := newTestEngine(Config{})
	tt := task("run", models.TaskTypeTerminal, 5)
	tt.Command = "go test ./..."
	s := newSession(tt)
	ctx := context.Background()

	resp, err := e.HandleCommandResult(ctx, s, "go test ./...", true)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.TaskCompleted || resp.TaskID != "run" {
		t.Errorf("response = %+v, want run completed", resp)
	}
	if !s.CompletedTasks["run"] {
		t.Error("terminal task not in completed set")
	}
	if s.SessionNotes == "" {
		t.Error("command not recorded in session notes")
	}
}

func TestHandleCommandResultFailureDoesNotComplete(t *testing.T) {
	e := newTestEngine(Config{})
	tt := task("run", models.TaskTypeTerminal, 5)
	s := newSession(tt)
	ctx := context.Background()

	resp, err := e.HandleCommandResult(ctx, s, "ls", false)
	if err != nil {
		t.Fatal(err)
	}
	if resp.TaskCompleted {
		t.Error("failed command must not complete the task")
	}
	if s.SessionNotes == "" {
		t.Error("every command execution is recorded, success or not")
	}
}

func quizTask(id string) *models.Task {
	tk := task(id, models.TaskTypeQuiz, 5)
	tk.Quiz = &models.Quiz{
		Question:      "Which option is correct?",
		Options:       []string{"alpha", "beta", "gamma", "delta"},
		CorrectAnswer: 3,
		Explanation:   "delta is the documented default.",
	}
	return tk
}

func TestSubmitQuizAnswerWrongThreeTimesRevealsWithoutCompleting(t *testing.T) {
	e := newTestEngine(Config{})
	s := newSession(quizTask("q"))
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		resp, err := e.SubmitQuizAnswer(ctx, s, "q", 1)
		if err != nil {
			t.Fatal(err)
		}
		if resp.Correct || resp.Completed {
			t.Fatalf("submission %d: wrong answer must not complete", i)
		}
		if resp.Attempts != i {
			t.Errorf("submission %d: attempts = %d", i, resp.Attempts)
		}
		if resp.Explanation == "" {
			t.Errorf("submission %d: explanation missing", i)
		}
		if i < 3 && resp.RevealedAnswer != "" {
			t.Errorf("submission %d: answer revealed too early", i)
		}
		if i == 3 && resp.RevealedAnswer != "delta" {
			t.Errorf("submission 3: revealed = %q, want delta", resp.RevealedAnswer)
		}
	}

	if s.CompletedTasks["q"] {
		t.Error("task must stay incomplete after reveal")
	}

	// A later correct guess still completes it
	resp, err := e.SubmitQuizAnswer(ctx, s, "q", 3)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Correct || !resp.Completed {
		t.Error("correct answer after reveal should complete the task")
	}
	if !s.CompletedTasks["q"] {
		t.Error("task id missing from completed set")
	}
	if resp.Attempts != 4 {
		t.Errorf("attempts = %d, want 4", resp.Attempts)
	}
}

func TestSubmitQuizAnswerCorrectFirstTry(t *testing.T) {
	e := newTestEngine(Config{})
	s := newSession(quizTask("q"))

	resp, err := e.SubmitQuizAnswer(context.Background(), s, "q", 3)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Correct || !resp.Completed || resp.Attempts != 1 {
		t.Errorf("response = %+v", resp)
	}
	if !s.CompletedTasks["q"] {
		t.Error("task id missing from completed set")
	}
}

func TestSubmitQuizAnswerRevealAndCompletePolicy(t *testing.T) {
	e := newTestEngine(Config{RevealPolicy: RevealAndComplete})
	s := newSession(quizTask("q"))
	ctx := context.Background()

	var resp models.QuizAnswerResponse
	var err error
	for i := 0; i < 3; i++ {
		resp, err = e.SubmitQuizAnswer(ctx, s, "q", 0)
		if err != nil {
			t.Fatal(err)
		}
	}
	if resp.RevealedAnswer != "delta" {
		t.Errorf("revealed = %q", resp.RevealedAnswer)
	}
	if !resp.Completed || !s.CompletedTasks["q"] {
		t.Error("reveal-and-complete policy should complete the task")
	}
}

func TestSubmitQuizAnswerValidation(t *testing.T) {
	e := newTestEngine(Config{})
	plain := task("p", models.TaskTypeQA, 5)
	s := newSession(quizTask("q"), plain)
	ctx := context.Background()

	if _, err := e.SubmitQuizAnswer(ctx, s, "missing", 0); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
	if _, err := e.SubmitQuizAnswer(ctx, s, "p", 0); !errors.Is(err, ErrNotAQuizTask) {
		t.Errorf("expected ErrNotAQuizTask, got %v", err)
	}
	if _, err := e.SubmitQuizAnswer(ctx, s, "q", 7); !errors.Is(err, ErrInvalidOption) {
		t.Errorf("expected ErrInvalidOption, got %v", err)
	}
}

func TestRestartSessionZeroesProgress(t *testing.T) {
	e := newTestEngine(Config{})
	ctx := context.Background()

	req := models.CreateSessionRequest{
		UserID:         "user-1",
		RepositoryName: "acme/payments",
		UserLevel:      "intermediate",
		UserRole:       "backend",
	}
	s, err := e.StartSession(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.CompleteTask(ctx, s, catalog.WelcomeTaskID); err != nil {
		t.Fatal(err)
	}
	if len(s.CompletedTasks) == 0 {
		t.Fatal("precondition: some progress recorded")
	}

	fresh, err := e.RestartSession(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh.CompletedTasks) != 0 {
		t.Error("restart must zero the completed set")
	}
	if fresh.CurrentTaskIndex != 0 {
		t.Errorf("index = %d, want 0", fresh.CurrentTaskIndex)
	}
	if len(fresh.Tasks) != len(s.Tasks) {
		t.Fatalf("task count changed: %d -> %d", len(s.Tasks), len(fresh.Tasks))
	}
	// The fixed portion reproduces exactly (no generator configured)
	for i := range fresh.Tasks {
		if fresh.Tasks[i].ID != s.Tasks[i].ID {
			t.Errorf("task %d: id %s != %s", i, fresh.Tasks[i].ID, s.Tasks[i].ID)
		}
		if fresh.Tasks[i].Status != models.TaskPending {
			t.Errorf("task %s: status = %s, want pending", fresh.Tasks[i].ID, fresh.Tasks[i].Status)
		}
	}
}

func TestStats(t *testing.T) {
	e := newTestEngine(Config{})
	a := task("a", models.TaskTypeQuiz, 5)
	a.Title = "Hard quiz"
	a.Attempts = 4
	b := task("b", models.TaskTypeQA, 5)
	b.Attempts = 1
	s := newSession(a, b)

	completed := s.StartedAt.Add(42 * time.Minute)
	s.CompletedAt = &completed

	stats := e.Stats(s)
	if stats.ElapsedMinutes != 42 {
		t.Errorf("elapsed = %d, want 42", stats.ElapsedMinutes)
	}
	if len(stats.StruggledWith) != 1 || stats.StruggledWith[0] != "Hard quiz" {
		t.Errorf("struggled = %v", stats.StruggledWith)
	}
}

type stubHinter struct {
	hint    string
	closing string
	err     error
}

func (h *stubHinter) GenerateHint(ctx context.Context, title, desc, personality string) (string, error) {
	return h.hint, h.err
}

func (h *stubHinter) ClosingFeedback(ctx context.Context, role string, elapsed int, struggled []string, personality string) (string, error) {
	return h.closing, h.err
}

func TestHintFallsBackOnServiceFailure(t *testing.T) {
	e := newTestEngine(Config{})
	e.hinter = &stubHinter{err: errors.New("down")}
	tk := task("a", models.TaskTypeQA, 5)
	tk.Description = "Read the handler layer."
	s := newSession(tk)

	hint, err := e.Hint(context.Background(), s, "a")
	if err != nil {
		t.Fatal(err)
	}
	if hint == "" {
		t.Error("expected a canned hint")
	}
}

func TestHintDiscardedWhenTaskFinishedMeanwhile(t *testing.T) {
	e := newTestEngine(Config{})
	s := newSession(task("a", models.TaskTypeQA, 5))
	ctx := context.Background()

	// The hinter completes the task while the hint request is in
	// flight, simulating a slow response arriving after navigation.
	e.hinter = &hinterCompletingTask{engine: e, session: s, taskID: "a"}

	_, err := e.Hint(ctx, s, "a")
	if !errors.Is(err, ErrStaleResult) {
		t.Errorf("expected ErrStaleResult, got %v", err)
	}
}

type hinterCompletingTask struct {
	engine  *Engine
	session *models.OnboardingSession
	taskID  string
}

func (h *hinterCompletingTask) GenerateHint(ctx context.Context, title, desc, personality string) (string, error) {
	if err := h.engine.CompleteTask(ctx, h.session, h.taskID); err != nil {
		return "", err
	}
	return "late hint", nil
}

func (h *hinterCompletingTask) ClosingFeedback(ctx context.Context, role string, elapsed int, struggled []string, personality string) (string, error) {
	return "", nil
}

func TestClosingMessageFallback(t *testing.T) {
	e := newTestEngine(Config{})
	s := newSession()

	if msg := e.ClosingMessage(context.Background(), s); msg == "" {
		t.Error("expected static fallback with no hinter")
	}

	e.hinter = &stubHinter{err: errors.New("down")}
	if msg := e.ClosingMessage(context.Background(), s); msg == "" {
		t.Error("expected static fallback on service failure")
	}

	e.hinter = &stubHinter{closing: "Well done, backend hero!"}
	if msg := e.ClosingMessage(context.Background(), s); msg != "Well done, backend hero!" {
		t.Errorf("msg = %q", msg)
	}
}

type recordingStore struct {
	saves int
	fail  bool
}

func (r *recordingStore) SaveSession(ctx context.Context, s *models.OnboardingSession) error {
	r.saves++
	if r.fail {
		return errors.New("store down")
	}
	return nil
}

func TestMutationsSaveThrough(t *testing.T) {
	store := &recordingStore{}
	e := newTestEngine(Config{})
	e.store = store
	s := newSession(task("a", models.TaskTypeQA, 5))
	ctx := context.Background()

	if err := e.StartTask(ctx, s, "a"); err != nil {
		t.Fatal(err)
	}
	if err := e.CompleteTask(ctx, s, "a"); err != nil {
		t.Fatal(err)
	}
	if store.saves < 2 {
		t.Errorf("saves = %d, want at least 2", store.saves)
	}

	// A failing store never blocks session flow
	store.fail = true
	s2 := newSession(task("b", models.TaskTypeQA, 5))
	if err := e.CompleteTask(ctx, s2, "b"); err != nil {
		t.Fatalf("store failure leaked into session flow: %v", err)
	}
}

func TestQuestionFor(t *testing.T) {
	e := newTestEngine(Config{})
	qa := task("why", models.TaskTypeQA, 5)
	qa.Question = "Why is the sky blue?"
	qa.Answer = "Rayleigh scattering"
	s := newSession(qa, task("plain", models.TaskTypeQA, 5))

	question, expected, err := e.QuestionFor(s, "why")
	if err != nil {
		t.Fatal(err)
	}
	if question != "Why is the sky blue?" || expected != "Rayleigh scattering" {
		t.Errorf("question = %q, expected = %q", question, expected)
	}

	if _, _, err := e.QuestionFor(s, "plain"); !errors.Is(err, ErrNotAQuestionTask) {
		t.Errorf("questionless task: err = %v, want ErrNotAQuestionTask", err)
	}
	if _, _, err := e.QuestionFor(s, "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("unknown task: err = %v, want ErrTaskNotFound", err)
	}
}

func TestRecordAnswerCountsAttemptsAndCompletes(t *testing.T) {
	e := newTestEngine(Config{})
	qa := task("why", models.TaskTypeQA, 5)
	qa.Question = "Why?"
	s := newSession(qa)
	ctx := context.Background()

	attempts, completed, err := e.RecordAnswer(ctx, s, "why", false)
	if err != nil {
		t.Fatal(err)
	}
	if attempts != 1 || completed {
		t.Errorf("wrong answer: attempts = %d, completed = %v", attempts, completed)
	}
	if s.CompletedTasks["why"] {
		t.Error("wrong answer must not complete the task")
	}

	attempts, completed, err = e.RecordAnswer(ctx, s, "why", true)
	if err != nil {
		t.Fatal(err)
	}
	if attempts != 2 || !completed {
		t.Errorf("correct answer: attempts = %d, completed = %v", attempts, completed)
	}
	if !s.CompletedTasks["why"] {
		t.Error("task id missing from completed set")
	}
}

func TestStatsConcurrentWithQuizAnswers(t *testing.T) {
	e := newTestEngine(Config{})
	s := newSession(quizTask("q"))
	ctx := context.Background()

	const rounds = 200
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if _, err := e.SubmitQuizAnswer(ctx, s, "q", 1); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			e.Stats(s)
		}
	}()
	wg.Wait()

	stats := e.Stats(s)
	if len(stats.StruggledWith) != 1 || stats.StruggledWith[0] != "Task q" {
		t.Errorf("struggledWith = %v, want [Task q]", stats.StruggledWith)
	}
	if got := s.Tasks[0].Attempts; got != rounds {
		t.Errorf("attempts = %d, want %d", got, rounds)
	}
}
