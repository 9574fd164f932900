package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/terra-clan/onboard-engine/internal/models"
)

// Fixed task ids. The setup task is the anchor every track and AI batch
// chains from.
const (
	WelcomeTaskID = "welcome"
	SetupTaskID   = "setup-environment"
)

// Generator produces a raw task batch from the generative service.
// *genai.Client satisfies this; it is an interface here so the builder
// can be exercised without a live service.
type Generator interface {
	GenerateTasks(ctx context.Context, role, level, repository, personality string) (string, error)
}

// BuildRequest carries the session inputs the catalog is derived from
type BuildRequest struct {
	RepositoryName string
	Role           string
	Level          string
	Repositories   []string
	AIPersonality  string
}

// Builder assembles the ordered, prerequisite-chained task catalog for a
// session. The generative batch is best-effort: any failure there
// shrinks the catalog but never aborts the build.
type Builder struct {
	gen    Generator
	tracks *TrackSet
}

// NewBuilder creates a catalog builder. gen may be nil, in which case
// the fallback pair is appended instead of an AI batch.
func NewBuilder(gen Generator, tracks *TrackSet) *Builder {
	if tracks == nil {
		tracks = NewTrackSet()
	}
	return &Builder{gen: gen, tracks: tracks}
}

// Build produces the catalog for the given inputs. The non-AI portion is
// deterministic for identical inputs. The only error returned is a
// well-formedness defect found by Validate, which signals a broken track
// definition rather than a runtime condition.
func (b *Builder) Build(ctx context.Context, req BuildRequest) ([]*models.Task, error) {
	track := NormalizeRole(req.Role)

	tasks := []*models.Task{
		welcomeTask(req),
		setupTask(track),
	}
	tasks = append(tasks, b.trackTasks(track, req.Level)...)
	tasks = append(tasks, b.generatedTasks(ctx, req, track)...)

	if err := Validate(tasks); err != nil {
		return nil, fmt.Errorf("catalog for role %q is malformed: %w", req.Role, err)
	}
	return tasks, nil
}

func welcomeTask(req BuildRequest) *models.Task {
	repos := req.RepositoryName
	if len(req.Repositories) > 1 {
		repos = strings.Join(req.Repositories, ", ")
	}
	return &models.Task{
		ID:            WelcomeTaskID,
		Title:         "Welcome aboard",
		Description:   fmt.Sprintf("Take a look around your workspace. You will be working in: %s.", repos),
		Type:          models.TaskTypeInteractive,
		Status:        models.TaskPending,
		EstimatedTime: 5,
		Difficulty:    models.DifficultyEasy,
	}
}

// setupCommands holds the role-flavored setup command per track. The
// task structure is fixed; only the hint text and command vary.
var setupCommands = map[string]struct {
	command string
	hint    string
}{
	TrackFrontend:       {"npm install", "Install the frontend dependencies before anything else."},
	TrackBackend:        {"go mod download", "Fetch the module dependencies so the build is reproducible."},
	TrackFullStack:      {"make setup", "The setup target installs both frontend and backend dependencies."},
	TrackDevOps:         {"docker compose pull", "Pre-pull the service images used by the local stack."},
	TrackProductManager: {"git log --oneline -20", "Skim the recent history to see what the team shipped lately."},
	TrackDesigner:       {"npm run storybook", "The component gallery is the fastest way to see the design system."},
	TrackQA:             {"make test", "Make sure the suite is green before you change anything."},
	TrackData:           {"make migrate", "Bring your local schema up to date first."},
	TrackGeneral:        {"git status", "Confirm your working copy is clean and on the main branch."},
}

func setupTask(track string) *models.Task {
	sc, ok := setupCommands[track]
	if !ok {
		sc = setupCommands[TrackGeneral]
	}
	return &models.Task{
		ID:             SetupTaskID,
		Title:          "Set up your environment",
		Description:    sc.hint,
		Type:           models.TaskTypeTerminal,
		Status:         models.TaskPending,
		EstimatedTime:  10,
		Difficulty:     models.DifficultyEasy,
		Command:        sc.command,
		ExpectedOutput: "",
	}
}

// trackTasks materializes the role track as a linear prerequisite chain
// anchored on the setup task
func (b *Builder) trackTasks(track, level string) []*models.Task {
	templates := b.tracks.ForRole(track)
	tasks := make([]*models.Task, 0, len(templates))

	prev := SetupTaskID
	for _, tpl := range templates {
		t := materialize(track, tpl)
		if tpl.LevelModulated {
			t.Difficulty = modulatedDifficulty(level, tpl.Difficulty)
		}
		t.Prerequisites = []string{prev}
		prev = t.ID
		tasks = append(tasks, t)
	}
	return tasks
}

func materialize(track string, tpl TaskTemplate) *models.Task {
	typ := tpl.Type
	if !typ.IsValid() {
		typ = models.TaskTypeQA
	}
	estimated := tpl.EstimatedTime
	if estimated <= 0 {
		estimated = 10
	}
	difficulty := tpl.Difficulty
	if difficulty == "" {
		difficulty = models.DifficultyMedium
	}
	return &models.Task{
		ID:             track + "-" + tpl.Slug,
		Title:          tpl.Title,
		Description:    tpl.Description,
		Type:           typ,
		Status:         models.TaskPending,
		EstimatedTime:  estimated,
		Difficulty:     difficulty,
		File:           tpl.File,
		Command:        tpl.Command,
		ExpectedOutput: tpl.ExpectedOutput,
		Question:       tpl.Question,
		Answer:         tpl.Answer,
		Quiz:           tpl.Quiz,
	}
}

// modulatedDifficulty adjusts a dense task's perceived difficulty by
// skill level: what reads as medium to a senior is hard for a beginner.
func modulatedDifficulty(level string, base models.Difficulty) models.Difficulty {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "beginner", "junior", "intern":
		return models.DifficultyHard
	case "advanced", "senior", "staff":
		return models.DifficultyEasy
	default:
		if base == "" {
			return models.DifficultyMedium
		}
		return base
	}
}

// generatedTasks appends the AI-augmented batch, or the fallback pair
// when the generative call fails outright. Failures never propagate.
func (b *Builder) generatedTasks(ctx context.Context, req BuildRequest, track string) []*models.Task {
	if b.gen == nil {
		return fallbackPair(track)
	}

	raw, err := b.gen.GenerateTasks(ctx, req.Role, req.Level, req.RepositoryName, req.AIPersonality)
	if err != nil {
		slog.Warn("task generation failed, using fallback pair",
			"role", req.Role,
			"repository", req.RepositoryName,
			"error", err,
		)
		return fallbackPair(track)
	}

	parsed := ParseGeneratedTasks(raw)
	if len(parsed) == 0 {
		slog.Warn("generated batch produced no parseable tasks",
			"role", req.Role,
			"repository", req.RepositoryName,
		)
		return nil
	}

	// The parser chains the batch internally; anchor the first task on
	// setup so a dropped line can never leave a dangling prerequisite.
	parsed[0].Prerequisites = []string{SetupTaskID}

	slog.Info("AI task batch appended", "count", len(parsed), "role", req.Role)
	return parsed
}

// fallbackPair is the role-flavored exploration + reflection pair used
// when no generative batch is available
func fallbackPair(track string) []*models.Task {
	explore := &models.Task{
		ID:            "fallback-explore",
		Title:         "Explore the codebase on your own",
		Description:   fmt.Sprintf("Spend a little time browsing areas of the code a %s touches most, and note anything surprising.", track),
		Type:          models.TaskTypeExplore,
		Status:        models.TaskPending,
		EstimatedTime: 15,
		Difficulty:    models.DifficultyMedium,
		Prerequisites: []string{SetupTaskID},
	}
	reflect := &models.Task{
		ID:            "fallback-reflect",
		Title:         "Reflect on what you found",
		Description:   "Summarize what you learned from your exploration.",
		Type:          models.TaskTypeQA,
		Status:        models.TaskPending,
		EstimatedTime: 10,
		Difficulty:    models.DifficultyEasy,
		Question:      "What part of the codebase surprised you the most, and why?",
		Prerequisites: []string{explore.ID},
	}
	return []*models.Task{explore, reflect}
}
