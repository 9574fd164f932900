package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/onboard-engine/internal/catalog"
	"github.com/terra-clan/onboard-engine/internal/config"
	"github.com/terra-clan/onboard-engine/internal/engine"
	"github.com/terra-clan/onboard-engine/internal/storage"
)

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	engine         *engine.Engine
	evaluator      *engine.Evaluator
	tracks         *catalog.TrackSet
	repo           storage.Repository
	store          *storage.Store
	registry       *sessionRegistry
	events         *eventHub
	authMiddleware *AuthMiddleware
}

// NewServer creates a new API server
func NewServer(
	cfg config.ServerConfig,
	eng *engine.Engine,
	evaluator *engine.Evaluator,
	tracks *catalog.TrackSet,
	repo storage.Repository,
	store *storage.Store,
) *Server {
	s := &Server{
		config:         cfg,
		engine:         eng,
		evaluator:      evaluator,
		tracks:         tracks,
		repo:           repo,
		store:          store,
		registry:       newSessionRegistry(store),
		events:         newEventHub(),
		authMiddleware: NewAuthMiddleware(repo),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (outside versioned API - public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	// Session event stream (websocket, consumed by the terminal UI)
	r.Get("/ws/sessions/{id}/events", s.handleSessionEvents)

	// API v1 routes (protected by authentication)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware.Authenticate)

		// Sessions
		r.Route("/sessions", func(r chi.Router) {
			r.With(s.authMiddleware.RequirePermission("sessions:read")).Get("/", s.handleListSessions)
			r.With(s.authMiddleware.RequirePermission("sessions:write")).Post("/", s.handleCreateSession)

			r.Route("/{id}", func(r chi.Router) {
				r.With(s.authMiddleware.RequirePermission("sessions:read")).Get("/", s.handleGetSession)
				r.With(s.authMiddleware.RequirePermission("sessions:write")).Delete("/", s.handleDeleteSession)
				r.With(s.authMiddleware.RequirePermission("sessions:read")).Get("/progress", s.handleGetProgress)
				r.With(s.authMiddleware.RequirePermission("sessions:read")).Get("/stats", s.handleGetStats)
				r.With(s.authMiddleware.RequirePermission("sessions:write")).Post("/restart", s.handleRestartSession)
				r.With(s.authMiddleware.RequirePermission("sessions:write")).Post("/commands", s.handleCommandResult)

				r.Route("/tasks/{taskID}", func(r chi.Router) {
					r.With(s.authMiddleware.RequirePermission("sessions:write")).Post("/start", s.handleStartTask)
					r.With(s.authMiddleware.RequirePermission("sessions:write")).Post("/quiz", s.handleQuizAnswer)
					r.With(s.authMiddleware.RequirePermission("sessions:write")).Post("/answer", s.handleFreeTextAnswer)
					r.With(s.authMiddleware.RequirePermission("sessions:write")).Post("/complete", s.handleCompleteTask)
					r.With(s.authMiddleware.RequirePermission("sessions:write")).Post("/skip", s.handleSkipTask)
					r.With(s.authMiddleware.RequirePermission("sessions:read")).Get("/hint", s.handleGetHint)
				})
			})
		})

		// Tracks
		r.Route("/tracks", func(r chi.Router) {
			r.With(s.authMiddleware.RequirePermission("tracks:read")).Get("/", s.handleListTracks)
			r.With(s.authMiddleware.RequirePermission("tracks:read")).Get("/{name}", s.handleGetTrack)
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
