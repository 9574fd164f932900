package catalog

import (
	"strings"

	"github.com/terra-clan/onboard-engine/internal/models"
)

// TaskTemplate describes one track task before it is materialized into a
// session catalog. Slug becomes part of the task id, so templates must
// keep slugs stable across releases.
type TaskTemplate struct {
	Slug          string            `yaml:"slug"`
	Title         string            `yaml:"title"`
	Description   string            `yaml:"description"`
	Type          models.TaskType   `yaml:"type"`
	EstimatedTime int               `yaml:"estimated_time"`
	Difficulty    models.Difficulty `yaml:"difficulty"`

	File           string       `yaml:"file,omitempty"`
	Command        string       `yaml:"command,omitempty"`
	ExpectedOutput string       `yaml:"expected_output,omitempty"`
	Question       string       `yaml:"question,omitempty"`
	Answer         string       `yaml:"answer,omitempty"`
	Quiz           *models.Quiz `yaml:"quiz,omitempty"`

	// LevelModulated marks the one dense task per track whose difficulty
	// is adjusted by the candidate's skill level.
	LevelModulated bool `yaml:"level_modulated,omitempty"`
}

// Track names. Unrecognized roles land on TrackGeneral.
const (
	TrackFrontend       = "frontend"
	TrackBackend        = "backend"
	TrackFullStack      = "full-stack"
	TrackDevOps         = "devops"
	TrackProductManager = "product-manager"
	TrackDesigner       = "designer"
	TrackQA             = "qa"
	TrackData           = "data"
	TrackGeneral        = "general"
)

// roleSynonyms maps normalized role strings to track names. Lookup is
// case-insensitive; see NormalizeRole.
var roleSynonyms = map[string]string{
	"frontend":            TrackFrontend,
	"front-end":           TrackFrontend,
	"front end":           TrackFrontend,
	"frontend developer":  TrackFrontend,
	"frontend engineer":   TrackFrontend,
	"backend":             TrackBackend,
	"back-end":            TrackBackend,
	"back end":            TrackBackend,
	"backend developer":   TrackBackend,
	"backend engineer":    TrackBackend,
	"full-stack":          TrackFullStack,
	"fullstack":           TrackFullStack,
	"full stack":          TrackFullStack,
	"full-stack developer": TrackFullStack,
	"fullstack developer":  TrackFullStack,
	"devops":              TrackDevOps,
	"devops engineer":     TrackDevOps,
	"sre":                 TrackDevOps,
	"platform engineer":   TrackDevOps,
	"product-manager":     TrackProductManager,
	"product manager":     TrackProductManager,
	"pm":                  TrackProductManager,
	"product owner":       TrackProductManager,
	"designer":            TrackDesigner,
	"ux designer":         TrackDesigner,
	"ui designer":         TrackDesigner,
	"product designer":    TrackDesigner,
	"qa":                  TrackQA,
	"qa engineer":         TrackQA,
	"quality assurance":   TrackQA,
	"tester":              TrackQA,
	"sdet":                TrackQA,
	"data":                TrackData,
	"data engineer":       TrackData,
	"data scientist":      TrackData,
	"data analyst":        TrackData,
}

// NormalizeRole maps a free-form role string to a track name. Absent or
// unrecognized roles map to the general track.
func NormalizeRole(role string) string {
	key := strings.ToLower(strings.TrimSpace(role))
	if key == "" {
		return TrackGeneral
	}
	if track, ok := roleSynonyms[key]; ok {
		return track
	}
	return TrackGeneral
}

// TrackSet resolves role strings to ordered task template chains.
// Built-in tracks may be overridden per role via the YAML loader.
type TrackSet struct {
	tracks map[string][]TaskTemplate
}

// NewTrackSet returns the built-in tracks
func NewTrackSet() *TrackSet {
	return &TrackSet{tracks: builtinTracks()}
}

// Override replaces the chain for one track
func (ts *TrackSet) Override(track string, chain []TaskTemplate) {
	ts.tracks[track] = chain
}

// ForRole returns the template chain for the given role string
func (ts *TrackSet) ForRole(role string) []TaskTemplate {
	track := NormalizeRole(role)
	if chain, ok := ts.tracks[track]; ok {
		return chain
	}
	return ts.tracks[TrackGeneral]
}

// Chain returns the template chain for an exact track name
func (ts *TrackSet) Chain(track string) ([]TaskTemplate, bool) {
	chain, ok := ts.tracks[track]
	return chain, ok
}

// Tracks returns the known track names
func (ts *TrackSet) Tracks() []string {
	names := make([]string, 0, len(ts.tracks))
	for name := range ts.tracks {
		names = append(names, name)
	}
	return names
}

func builtinTracks() map[string][]TaskTemplate {
	return map[string][]TaskTemplate{
		TrackFrontend: {
			{
				Slug:           "explore-components",
				Title:          "Explore the component tree",
				Description:    "Open the main application component and follow how the page is assembled from child components.",
				Type:           models.TaskTypeExplore,
				EstimatedTime:  15,
				Difficulty:     models.DifficultyMedium,
				File:           "src/App.tsx",
				LevelModulated: true,
			},
			{
				Slug:           "run-dev-server",
				Title:          "Start the dev server",
				Description:    "Run the development server and confirm it serves the app locally.",
				Type:           models.TaskTypeTerminal,
				EstimatedTime:  5,
				Difficulty:     models.DifficultyEasy,
				Command:        "npm run dev",
				ExpectedOutput: "ready",
			},
			{
				Slug:          "state-quiz",
				Title:         "Component state check",
				Description:   "A quick check on how this codebase manages shared state.",
				Type:          models.TaskTypeQuiz,
				EstimatedTime: 5,
				Difficulty:    models.DifficultyMedium,
				Quiz: &models.Quiz{
					Question:      "Where does shared application state live in this codebase?",
					Options:       []string{"Component props only", "A central store", "Browser localStorage", "URL query parameters"},
					CorrectAnswer: 1,
					Explanation:   "Shared state is kept in a central store so unrelated components stay in sync.",
				},
			},
			{
				Slug:          "routing-question",
				Title:         "Describe the routing setup",
				Description:   "In your own words, explain how a URL maps to a rendered page here.",
				Type:          models.TaskTypeQA,
				EstimatedTime: 10,
				Difficulty:    models.DifficultyMedium,
				Question:      "How does a request for /settings end up rendering the settings page?",
				Answer:        "The router matches the path against the route table and renders the component registered for it.",
			},
		},
		TrackBackend: {
			{
				Slug:           "explore-handlers",
				Title:          "Explore the request handlers",
				Description:    "Read through the HTTP handler layer and note how requests are validated and dispatched.",
				Type:           models.TaskTypeExplore,
				EstimatedTime:  15,
				Difficulty:     models.DifficultyMedium,
				File:           "internal/api/handlers.go",
				LevelModulated: true,
			},
			{
				Slug:           "run-tests",
				Title:          "Run the test suite",
				Description:    "Run the unit tests and confirm they pass on your machine.",
				Type:           models.TaskTypeTerminal,
				EstimatedTime:  10,
				Difficulty:     models.DifficultyEasy,
				Command:        "go test ./...",
				ExpectedOutput: "ok",
			},
			{
				Slug:          "storage-quiz",
				Title:         "Persistence layer check",
				Description:   "A quick check on how data is persisted.",
				Type:          models.TaskTypeQuiz,
				EstimatedTime: 5,
				Difficulty:    models.DifficultyMedium,
				Quiz: &models.Quiz{
					Question:      "Which component is the only one allowed to talk to the database?",
					Options:       []string{"HTTP handlers", "The storage repository", "The config loader", "Background workers"},
					CorrectAnswer: 1,
					Explanation:   "All database access goes through the repository so queries stay in one place.",
				},
			},
		},
		TrackFullStack: {
			{
				Slug:           "explore-api-contract",
				Title:          "Trace a request end to end",
				Description:    "Pick one user action and follow it from the UI call through the API to the database and back.",
				Type:           models.TaskTypeExplore,
				EstimatedTime:  20,
				Difficulty:     models.DifficultyMedium,
				File:           "internal/api/server.go",
				LevelModulated: true,
			},
			{
				Slug:           "run-stack",
				Title:          "Bring up the full stack",
				Description:    "Start the backend and frontend together and load the app.",
				Type:           models.TaskTypeTerminal,
				EstimatedTime:  10,
				Difficulty:     models.DifficultyMedium,
				Command:        "docker compose up",
				ExpectedOutput: "listening",
			},
			{
				Slug:          "contract-question",
				Title:         "Explain the API contract",
				Description:   "Describe how the frontend and backend agree on request and response shapes.",
				Type:          models.TaskTypeQA,
				EstimatedTime: 10,
				Difficulty:    models.DifficultyMedium,
				Question:      "Where is the API contract defined and how do both sides stay in sync?",
				Answer:        "Request and response types live in a shared package; handlers and the client SDK both build against them.",
			},
		},
		TrackDevOps: {
			{
				Slug:           "explore-pipeline",
				Title:          "Explore the deployment pipeline",
				Description:    "Read the CI configuration and map out the stages from commit to deploy.",
				Type:           models.TaskTypeExplore,
				EstimatedTime:  15,
				Difficulty:     models.DifficultyMedium,
				File:           ".github/workflows/deploy.yml",
				LevelModulated: true,
			},
			{
				Slug:           "check-health",
				Title:          "Probe the health endpoints",
				Description:    "Hit the health and readiness endpoints of the running service.",
				Type:           models.TaskTypeTerminal,
				EstimatedTime:  5,
				Difficulty:     models.DifficultyEasy,
				Command:        "curl localhost:8080/health",
				ExpectedOutput: "healthy",
			},
			{
				Slug:          "incident-question",
				Title:         "Walk through an incident",
				Description:   "Explain what you would check first if the service started returning 500s.",
				Type:          models.TaskTypeQA,
				EstimatedTime: 10,
				Difficulty:    models.DifficultyHard,
				Question:      "The service is returning 500s after a deploy. What do you check first?",
				Answer:        "Recent deploy diff, service logs and error rates, then dependency health before rolling back.",
			},
		},
		TrackProductManager: {
			{
				Slug:           "explore-user-flows",
				Title:          "Walk the core user flows",
				Description:    "Click through the main user journeys and note where each one starts and ends.",
				Type:           models.TaskTypeExplore,
				EstimatedTime:  15,
				Difficulty:     models.DifficultyEasy,
				File:           "docs/user-flows.md",
				LevelModulated: true,
			},
			{
				Slug:          "metrics-question",
				Title:         "Identify the key metric",
				Description:   "Decide which single metric best tells you this product is working.",
				Type:          models.TaskTypeQA,
				EstimatedTime: 10,
				Difficulty:    models.DifficultyMedium,
				Question:      "Which metric would you watch weekly for this product and why?",
				Answer:        "Activated sessions per new user, because it captures both signup quality and onboarding completion.",
			},
		},
		TrackDesigner: {
			{
				Slug:           "explore-design-system",
				Title:          "Explore the design system",
				Description:    "Review the shared components and tokens that define the product's look.",
				Type:           models.TaskTypeExplore,
				EstimatedTime:  15,
				Difficulty:     models.DifficultyEasy,
				File:           "src/styles/tokens.css",
				LevelModulated: true,
			},
			{
				Slug:          "consistency-question",
				Title:         "Spot an inconsistency",
				Description:   "Find one place where the UI diverges from the design system and describe it.",
				Type:          models.TaskTypeQA,
				EstimatedTime: 10,
				Difficulty:    models.DifficultyMedium,
				Question:      "Name one screen that diverges from the design tokens and how you would fix it.",
				Answer:        "Any concrete screen with hard-coded colors or spacing, fixed by replacing them with tokens.",
			},
		},
		TrackQA: {
			{
				Slug:           "explore-test-layout",
				Title:          "Explore the test layout",
				Description:    "Find where unit, integration and end-to-end tests live and how they are named.",
				Type:           models.TaskTypeExplore,
				EstimatedTime:  15,
				Difficulty:     models.DifficultyMedium,
				File:           "internal/engine/engine_test.go",
				LevelModulated: true,
			},
			{
				Slug:           "run-suite",
				Title:          "Run the full suite",
				Description:    "Run every test target and record how long the suite takes.",
				Type:           models.TaskTypeTerminal,
				EstimatedTime:  10,
				Difficulty:     models.DifficultyEasy,
				Command:        "make test",
				ExpectedOutput: "pass",
			},
			{
				Slug:          "coverage-quiz",
				Title:         "Coverage expectations",
				Description:   "A quick check on what this team expects tests to cover.",
				Type:          models.TaskTypeQuiz,
				EstimatedTime: 5,
				Difficulty:    models.DifficultyMedium,
				Quiz: &models.Quiz{
					Question:      "What must every bug fix include before it merges?",
					Options:       []string{"A changelog entry", "A regression test", "A screenshot", "A feature flag"},
					CorrectAnswer: 1,
					Explanation:   "A regression test proves the fix and keeps the bug from returning.",
				},
			},
		},
		TrackData: {
			{
				Slug:           "explore-schema",
				Title:          "Explore the data schema",
				Description:    "Read the migration files and sketch the main tables and their relationships.",
				Type:           models.TaskTypeExplore,
				EstimatedTime:  20,
				Difficulty:     models.DifficultyMedium,
				File:           "migrations/001_init.sql",
				LevelModulated: true,
			},
			{
				Slug:           "query-check",
				Title:          "Run a sanity query",
				Description:    "Connect to the development database and count the rows in the main table.",
				Type:           models.TaskTypeTerminal,
				EstimatedTime:  10,
				Difficulty:     models.DifficultyMedium,
				Command:        "psql",
				ExpectedOutput: "count",
			},
			{
				Slug:          "lineage-question",
				Title:         "Explain data lineage",
				Description:   "Describe where the main dataset originates and what transforms it goes through.",
				Type:          models.TaskTypeQA,
				EstimatedTime: 10,
				Difficulty:    models.DifficultyHard,
				Question:      "Where does the sessions dataset come from and what transforms touch it?",
				Answer:        "It is written by the engine on every mutation and summarized by the cleanup worker.",
			},
		},
		TrackGeneral: {
			{
				Slug:           "explore-readme",
				Title:          "Read the project overview",
				Description:    "Read the top-level documentation and note the three main components of the system.",
				Type:           models.TaskTypeExplore,
				EstimatedTime:  10,
				Difficulty:     models.DifficultyEasy,
				File:           "README.md",
				LevelModulated: true,
			},
			{
				Slug:          "team-question",
				Title:         "Who owns what",
				Description:   "Find out which team owns each main component and where to ask questions.",
				Type:          models.TaskTypeQA,
				EstimatedTime: 10,
				Difficulty:    models.DifficultyEasy,
				Question:      "Which channel do you use to ask about a production issue?",
				Answer:        "The owning team's support channel listed in the project documentation.",
			},
		},
	}
}
