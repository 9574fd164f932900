package api

import (
	"context"
	"sync"

	"github.com/terra-clan/onboard-engine/internal/models"
	"github.com/terra-clan/onboard-engine/internal/storage"
)

// sessionRegistry keeps live session aggregates in memory so every
// handler mutates the same instance the engine holds. Sessions not in
// memory are loaded through the store on demand.
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*models.OnboardingSession
	store    *storage.Store
}

func newSessionRegistry(store *storage.Store) *sessionRegistry {
	return &sessionRegistry{
		sessions: make(map[string]*models.OnboardingSession),
		store:    store,
	}
}

// Put registers a live session
func (r *sessionRegistry) Put(s *models.OnboardingSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Get returns the live session for an id, loading a snapshot from the
// store when the session is not already in memory
func (r *sessionRegistry) Get(ctx context.Context, id string) (*models.OnboardingSession, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	if r.store == nil {
		return nil, storage.ErrSessionNotFound
	}
	s, err := r.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another request may have loaded it while we hit the store
	if live, ok := r.sessions[id]; ok {
		return live, nil
	}
	r.sessions[id] = s
	return s, nil
}

// Drop removes a session from memory
func (r *sessionRegistry) Drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}
