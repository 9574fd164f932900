package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/terra-clan/onboard-engine/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventMessage is one frame on the session event stream. The terminal
// UI sends "command" frames upstream; everything else flows downstream.
type EventMessage struct {
	Type    string      `json:"type"`
	Command string      `json:"command,omitempty"`
	Output  string      `json:"output,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// eventHub fans session events out to connected websocket clients
type eventHub struct {
	mu    sync.Mutex
	conns map[string]map[*websocket.Conn]bool // session id -> connections
}

func newEventHub() *eventHub {
	return &eventHub{conns: make(map[string]map[*websocket.Conn]bool)}
}

func (h *eventHub) add(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[sessionID] == nil {
		h.conns[sessionID] = make(map[*websocket.Conn]bool)
	}
	h.conns[sessionID][conn] = true
}

func (h *eventHub) remove(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[sessionID], conn)
	if len(h.conns[sessionID]) == 0 {
		delete(h.conns, sessionID)
	}
}

// broadcast sends one event to every client watching the session.
// Writes happen under the hub lock so frames from concurrent handlers
// do not interleave on a connection.
func (h *eventHub) broadcast(sessionID string, msg EventMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns[sessionID] {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Debug("failed to send event, dropping connection", "error", err)
			conn.Close()
			delete(h.conns[sessionID], conn)
		}
	}
}

// handleSessionEvents upgrades to a websocket and streams session
// events. Inbound "command" frames report terminal command runs, the
// same contract as POST /commands.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		http.Error(w, "session id required", http.StatusBadRequest)
		return
	}

	session, err := s.registry.Get(r.Context(), sessionID)
	if err != nil {
		slog.Error("failed to load session for event stream", "session_id", sessionID, "error", err)
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	// Candidate access is gated on the session token, not an API key
	if token := r.URL.Query().Get("session_token"); session.Token != "" && token != session.Token {
		slog.Warn("event stream token mismatch", "session_id", sessionID, "remote_addr", r.RemoteAddr)
		http.Error(w, "invalid session token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	s.events.add(sessionID, conn)
	defer s.events.remove(sessionID, conn)

	slog.Info("event stream connected", "session_id", sessionID)

	s.events.broadcast(sessionID, EventMessage{
		Type: "connected",
		Data: s.engine.ProgressFor(session),
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("websocket read error", "error", err)
			}
			break
		}

		var msg EventMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			slog.Debug("invalid event format", "error", err)
			continue
		}

		switch msg.Type {
		case "command":
			if msg.Command == "" {
				continue
			}
			succeeded := commandSatisfiesTask(session.CurrentTask(), msg.Command, msg.Output)
			resp, err := s.engine.HandleCommandResult(r.Context(), session, msg.Command, succeeded)
			if err != nil {
				slog.Error("failed to handle command result", "error", err, "session_id", sessionID)
				continue
			}
			s.notifySession(session, resp)
		case "hint":
			task := session.CurrentTask()
			if task == nil {
				continue
			}
			hint, err := s.engine.Hint(r.Context(), session, task.ID)
			if err != nil {
				slog.Debug("hint unavailable", "error", err, "session_id", sessionID)
				continue
			}
			s.events.broadcast(sessionID, EventMessage{
				Type: "hint",
				Data: map[string]interface{}{"task_id": task.ID, "hint": hint},
			})
		case "ping":
			s.events.broadcast(sessionID, EventMessage{Type: "pong"})
		}
	}

	slog.Info("event stream disconnected", "session_id", sessionID)
}

// notifySession pushes a command outcome to the session's watchers
func (s *Server) notifySession(session *models.OnboardingSession, resp models.CommandResultResponse) {
	s.events.broadcast(session.ID, EventMessage{
		Type: "command_result",
		Data: resp,
	})
	if resp.TaskCompleted {
		s.notifyTaskCompleted(session, resp.TaskID)
	}
}

// notifyTaskCompleted announces a completion and, when the catalog is
// exhausted, the session completion
func (s *Server) notifyTaskCompleted(session *models.OnboardingSession, taskID string) {
	s.events.broadcast(session.ID, EventMessage{
		Type: "task_completed",
		Data: map[string]interface{}{
			"task_id":  taskID,
			"progress": s.engine.ProgressFor(session),
		},
	})

	if session.Status == models.SessionCompleted {
		s.events.broadcast(session.ID, EventMessage{
			Type: "session_completed",
			Data: s.engine.Stats(session),
		})
	}
}
