package storage

import (
	"context"
	"log/slog"

	"github.com/terra-clan/onboard-engine/internal/models"
)

// Store writes session snapshots through to Postgres and mirrors them
// into the Redis cache. The cache is best-effort: a Redis failure is
// logged, never surfaced.
type Store struct {
	repo  Repository
	cache *SessionCache
}

// NewStore creates a write-through session store. cache may be nil.
func NewStore(repo Repository, cache *SessionCache) *Store {
	return &Store{repo: repo, cache: cache}
}

// SaveSession persists the snapshot and refreshes the cache
func (s *Store) SaveSession(ctx context.Context, session *models.OnboardingSession) error {
	if err := s.repo.SaveSession(ctx, session); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Put(ctx, session); err != nil {
			slog.Warn("failed to cache session snapshot", "session_id", session.ID, "error", err)
		}
	}
	return nil
}

// GetSession loads a session by id from Postgres
func (s *Store) GetSession(ctx context.Context, id string) (*models.OnboardingSession, error) {
	return s.repo.GetSessionByID(ctx, id)
}

// GetLatestForUser prefers the cached snapshot and falls back to
// Postgres on a miss
func (s *Store) GetLatestForUser(ctx context.Context, userID string) (*models.OnboardingSession, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, userID)
		if err != nil {
			slog.Warn("session cache read failed", "user_id", userID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}
	return s.repo.GetLatestSessionByUser(ctx, userID)
}

// DropUser removes the cached snapshot for a user
func (s *Store) DropUser(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, userID); err != nil {
		slog.Warn("failed to evict cached session", "user_id", userID, "error", err)
	}
}
