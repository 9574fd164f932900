package storage

import (
	"context"
	"errors"
	"time"

	"github.com/terra-clan/onboard-engine/internal/models"
)

// ErrSessionNotFound is returned when a session id has no stored row
var ErrSessionNotFound = errors.New("session not found")

// Repository defines the interface for durable session persistence
type Repository interface {
	// Sessions
	SaveSession(ctx context.Context, s *models.OnboardingSession) error
	GetSessionByID(ctx context.Context, id string) (*models.OnboardingSession, error)
	GetLatestSessionByUser(ctx context.Context, userID string) (*models.OnboardingSession, error)
	ListSessions(ctx context.Context, filters models.SessionFilters) ([]*models.OnboardingSession, error)
	DeleteSession(ctx context.Context, id string) error
	GetIdleSessions(ctx context.Context, idleBefore time.Time) ([]*models.OnboardingSession, error)

	// API clients
	GetClientByAPIKey(ctx context.Context, apiKey string) (*models.APIClient, error)
	UpdateClientLastUsed(ctx context.Context, apiKey string) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}
