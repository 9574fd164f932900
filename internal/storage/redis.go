package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/onboard-engine/internal/models"
)

// SessionCache keeps the latest session snapshot per user in Redis so
// a reconnecting client can resume without hitting Postgres.
type SessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewSessionCache creates a session cache backed by Redis
func NewSessionCache(ctx context.Context, cfg RedisConfig) (*SessionCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &SessionCache{client: client, ttl: ttl}, nil
}

func sessionKey(userID string) string {
	return "onboard:session:" + userID
}

// Put stores a session snapshot keyed by user
func (c *SessionCache) Put(ctx context.Context, s *models.OnboardingSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := c.client.Set(ctx, sessionKey(s.UserID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache session: %w", err)
	}
	return nil
}

// Get returns the cached session for a user, or nil on a miss. A
// corrupt snapshot is treated as a miss and evicted.
func (c *SessionCache) Get(ctx context.Context, userID string) (*models.OnboardingSession, error) {
	data, err := c.client.Get(ctx, sessionKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached session: %w", err)
	}

	var s models.OnboardingSession
	if err := json.Unmarshal(data, &s); err != nil {
		slog.Warn("evicting corrupt session snapshot", "user_id", userID, "error", err)
		c.client.Del(ctx, sessionKey(userID))
		return nil, nil
	}
	return &s, nil
}

// Delete removes the cached snapshot for a user
func (c *SessionCache) Delete(ctx context.Context, userID string) error {
	return c.client.Del(ctx, sessionKey(userID)).Err()
}

// Ping checks Redis connectivity
func (c *SessionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *SessionCache) Close() error {
	return c.client.Close()
}
