package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Track handlers expose the catalog track templates for tooling

func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	tracks := s.tracks.Tracks()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tracks": tracks,
		"total":  len(tracks),
	})
}

func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "track name is required")
		return
	}

	templates, ok := s.tracks.Chain(name)
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "track not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"track": name,
		"tasks": templates,
	})
}
