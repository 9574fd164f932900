package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/onboard-engine/internal/engine"
	"github.com/terra-clan/onboard-engine/internal/models"
	"github.com/terra-clan/onboard-engine/internal/storage"
)

// Session handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "user_id is required")
		return
	}
	if req.RepositoryName == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "repository_name is required")
		return
	}

	// A user keeps one live onboarding at a time: an existing active
	// session is resumed, not replaced. The lookup prefers the cached
	// snapshot and falls back to Postgres.
	if s.store != nil {
		existing, err := s.store.GetLatestForUser(r.Context(), req.UserID)
		if err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
			slog.Warn("failed to look up existing session", "error", err, "user_id", req.UserID)
		}
		if existing != nil && existing.Status == models.SessionActive {
			if live, err := s.registry.Get(r.Context(), existing.ID); err == nil {
				respondJSON(w, http.StatusOK, live)
				return
			}
		}
	}

	session, err := s.engine.StartSession(r.Context(), req)
	if err != nil {
		slog.Error("failed to start session", "error", err, "user_id", req.UserID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to start session")
		return
	}

	s.registry.Put(session)
	respondJSON(w, http.StatusCreated, session)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	filters := models.SessionFilters{
		UserID: r.URL.Query().Get("user_id"),
		Status: models.SessionStatus(r.URL.Query().Get("status")),
		Limit:  50,
		Offset: 0,
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filters.Limit = limit
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filters.Offset = offset
		}
	}

	sessions, err := s.repo.ListSessions(r.Context(), filters)
	if err != nil {
		slog.Error("failed to list sessions", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list sessions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

func (s *Server) handleRestartSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	fresh, err := s.engine.RestartSession(r.Context(), session)
	if err != nil {
		slog.Error("failed to restart session", "error", err, "session_id", session.ID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to restart session")
		return
	}

	s.registry.Drop(session.ID)
	s.registry.Put(fresh)
	respondJSON(w, http.StatusCreated, fresh)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	if err := s.repo.DeleteSession(r.Context(), session.ID); err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
		slog.Error("failed to delete session", "error", err, "session_id", session.ID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to delete session")
		return
	}
	s.registry.Drop(session.ID)
	if s.store != nil {
		s.store.DropUser(r.Context(), session.UserID)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": session.ID,
		"deleted":    true,
	})
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	session, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.engine.ProgressFor(session))
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	session, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	stats := s.engine.Stats(session)
	resp := map[string]interface{}{
		"stats": stats,
	}
	if session.Status == models.SessionCompleted {
		resp["closing_message"] = s.engine.ClosingMessage(r.Context(), session)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCommandResult(w http.ResponseWriter, r *http.Request) {
	session, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	var req models.CommandResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Command == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "command is required")
		return
	}

	succeeded := commandSatisfiesTask(session.CurrentTask(), req.Command, req.Output)
	resp, err := s.engine.HandleCommandResult(r.Context(), session, req.Command, succeeded)
	if err != nil {
		slog.Error("failed to handle command result", "error", err, "session_id", session.ID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to handle command result")
		return
	}

	s.notifySession(session, resp)
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request) {
	session, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	taskID := chi.URLParam(r, "taskID")

	if err := s.engine.StartTask(r.Context(), session, taskID); err != nil {
		switch {
		case errors.Is(err, engine.ErrTaskNotFound):
			respondError(w, http.StatusNotFound, "not_found", "task not found")
		case errors.Is(err, engine.ErrPrerequisitesUnmet):
			respondError(w, http.StatusConflict, "prerequisites_unmet", "task prerequisites are not completed")
		case errors.Is(err, models.ErrInvalidTransition):
			respondError(w, http.StatusConflict, "invalid_transition", "task cannot be started from its current status")
		default:
			slog.Error("failed to start task", "error", err, "session_id", session.ID, "task_id", taskID)
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to start task")
		}
		return
	}

	respondJSON(w, http.StatusOK, session.TaskByID(taskID))
}

func (s *Server) handleQuizAnswer(w http.ResponseWriter, r *http.Request) {
	session, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	taskID := chi.URLParam(r, "taskID")

	var req models.QuizAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	resp, err := s.engine.SubmitQuizAnswer(r.Context(), session, taskID, req.SelectedOption)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrTaskNotFound):
			respondError(w, http.StatusNotFound, "not_found", "task not found")
		case errors.Is(err, engine.ErrNotAQuizTask):
			respondError(w, http.StatusBadRequest, "not_a_quiz", "task has no quiz payload")
		case errors.Is(err, engine.ErrInvalidOption):
			respondError(w, http.StatusBadRequest, "invalid_option", "selected option is out of range")
		default:
			slog.Error("failed to submit quiz answer", "error", err, "session_id", session.ID, "task_id", taskID)
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to submit quiz answer")
		}
		return
	}

	if resp.Completed {
		s.notifyTaskCompleted(session, taskID)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFreeTextAnswer(w http.ResponseWriter, r *http.Request) {
	session, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	taskID := chi.URLParam(r, "taskID")

	question, expected, err := s.engine.QuestionFor(session, taskID)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrTaskNotFound):
			respondError(w, http.StatusNotFound, "not_found", "task not found")
		case errors.Is(err, engine.ErrNotAQuestionTask):
			respondError(w, http.StatusBadRequest, "not_a_question", "task has no question to answer")
		default:
			slog.Error("failed to load question", "error", err, "session_id", session.ID, "task_id", taskID)
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to load question")
		}
		return
	}

	var req models.FreeTextAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Answer) == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "answer is required")
		return
	}

	eval := s.evaluator.EvaluateFreeText(r.Context(), question, expected, req.Answer)

	attempts, completed, err := s.engine.RecordAnswer(r.Context(), session, taskID, eval.IsCorrect)
	if err != nil {
		slog.Error("failed to record answer", "error", err, "session_id", session.ID, "task_id", taskID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to record answer")
		return
	}
	if completed {
		s.notifyTaskCompleted(session, taskID)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"evaluation": eval,
		"completed":  completed,
		"attempts":   attempts,
	})
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	session, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	taskID := chi.URLParam(r, "taskID")

	if err := s.engine.CompleteTask(r.Context(), session, taskID); err != nil {
		switch {
		case errors.Is(err, engine.ErrTaskNotFound):
			respondError(w, http.StatusNotFound, "not_found", "task not found")
		case errors.Is(err, models.ErrInvalidTransition):
			respondError(w, http.StatusConflict, "invalid_transition", "task cannot be completed from its current status")
		default:
			slog.Error("failed to complete task", "error", err, "session_id", session.ID, "task_id", taskID)
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to complete task")
		}
		return
	}

	s.notifyTaskCompleted(session, taskID)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"task_id":   taskID,
		"completed": true,
		"progress":  s.engine.ProgressFor(session),
	})
}

func (s *Server) handleSkipTask(w http.ResponseWriter, r *http.Request) {
	session, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	taskID := chi.URLParam(r, "taskID")

	if err := s.engine.SkipTask(r.Context(), session, taskID); err != nil {
		switch {
		case errors.Is(err, engine.ErrTaskNotFound):
			respondError(w, http.StatusNotFound, "not_found", "task not found")
		default:
			slog.Error("failed to skip task", "error", err, "session_id", session.ID, "task_id", taskID)
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to skip task")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"task_id":  taskID,
		"skipped":  true,
		"progress": s.engine.ProgressFor(session),
	})
}

func (s *Server) handleGetHint(w http.ResponseWriter, r *http.Request) {
	session, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	taskID := chi.URLParam(r, "taskID")

	hint, err := s.engine.Hint(r.Context(), session, taskID)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrTaskNotFound):
			respondError(w, http.StatusNotFound, "not_found", "task not found")
		case errors.Is(err, engine.ErrStaleResult):
			respondError(w, http.StatusConflict, "stale_result", "task is no longer active")
		default:
			slog.Error("failed to generate hint", "error", err, "session_id", session.ID, "task_id", taskID)
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to generate hint")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"task_id": taskID,
		"hint":    hint,
	})
}

// loadSession resolves the {id} route param to a live session,
// writing the error response itself on failure
func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*models.OnboardingSession, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "session id is required")
		return nil, false
	}

	session, err := s.registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "session not found")
			return nil, false
		}
		slog.Error("failed to load session", "error", err, "session_id", id)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load session")
		return nil, false
	}
	return session, true
}

// commandSatisfiesTask decides whether a reported command run completes
// the given terminal task. Matching is case-insensitive containment:
// the expected command must appear in what was run, and the expected
// output (when set) must appear in what was produced.
func commandSatisfiesTask(task *models.Task, command, output string) bool {
	if task == nil || task.Type != models.TaskTypeTerminal || task.Command == "" {
		return false
	}
	if !strings.Contains(strings.ToLower(command), strings.ToLower(task.Command)) {
		return false
	}
	if task.ExpectedOutput == "" {
		return true
	}
	return strings.Contains(strings.ToLower(output), strings.ToLower(task.ExpectedOutput))
}
