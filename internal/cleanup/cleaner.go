package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/terra-clan/onboard-engine/internal/models"
	"github.com/terra-clan/onboard-engine/internal/storage"
)

// Cleaner marks sessions abandoned once they sit idle past the
// configured threshold and prunes their cached snapshots
type Cleaner struct {
	repo      storage.Repository
	cache     *storage.SessionCache
	interval  time.Duration
	idleAfter time.Duration
}

// NewCleaner creates a new cleanup worker. cache may be nil.
func NewCleaner(repo storage.Repository, cache *storage.SessionCache, interval, idleAfter time.Duration) *Cleaner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if idleAfter <= 0 {
		idleAfter = 12 * time.Hour
	}

	return &Cleaner{
		repo:      repo,
		cache:     cache,
		interval:  interval,
		idleAfter: idleAfter,
	}
}

// Start begins the cleanup worker in a goroutine
func (c *Cleaner) Start(ctx context.Context) {
	go c.run(ctx)
}

// run is the main loop for the cleanup worker
func (c *Cleaner) run(ctx context.Context) {
	slog.Info("cleanup worker started", "interval", c.interval, "idle_after", c.idleAfter)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Run immediately on start
	c.cleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

// cleanup finds idle sessions and marks them abandoned
func (c *Cleaner) cleanup(ctx context.Context) {
	slog.Debug("running cleanup cycle")

	idle, err := c.repo.GetIdleSessions(ctx, time.Now().Add(-c.idleAfter))
	if err != nil {
		slog.Error("failed to get idle sessions", "error", err)
		return
	}

	if len(idle) == 0 {
		slog.Debug("no idle sessions found")
		return
	}

	slog.Info("found idle sessions", "count", len(idle))

	for _, s := range idle {
		slog.Info("abandoning idle session",
			"id", s.ID,
			"user", s.UserID,
			"last_event_at", s.LastEventAt,
		)

		s.Status = models.SessionAbandoned
		if err := c.repo.SaveSession(ctx, s); err != nil {
			slog.Error("failed to abandon idle session",
				"error", err,
				"id", s.ID,
			)
			continue
		}

		if c.cache != nil {
			if err := c.cache.Delete(ctx, s.UserID); err != nil {
				slog.Warn("failed to prune session snapshot", "error", err, "user", s.UserID)
			}
		}

		slog.Info("idle session abandoned", "id", s.ID)
	}
}
