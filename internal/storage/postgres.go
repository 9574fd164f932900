package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/onboard-engine/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 5
	}
	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// SaveSession upserts a session snapshot. Saves are idempotent: the
// latest snapshot always wins.
func (r *PostgresRepository) SaveSession(ctx context.Context, s *models.OnboardingSession) error {
	tasksJSON, err := json.Marshal(s.Tasks)
	if err != nil {
		return fmt.Errorf("failed to marshal tasks: %w", err)
	}
	completedJSON, err := json.Marshal(s.CompletedTasks)
	if err != nil {
		return fmt.Errorf("failed to marshal completed tasks: %w", err)
	}
	reposJSON, err := json.Marshal(s.Repositories)
	if err != nil {
		return fmt.Errorf("failed to marshal repositories: %w", err)
	}

	query := `
		INSERT INTO sessions (id, token, user_id, repository_name, user_level, user_role, repositories,
			status, current_task_index, tasks, completed_tasks, session_notes, ai_personality,
			started_at, completed_at, last_event_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_task_index = EXCLUDED.current_task_index,
			tasks = EXCLUDED.tasks,
			completed_tasks = EXCLUDED.completed_tasks,
			session_notes = EXCLUDED.session_notes,
			completed_at = EXCLUDED.completed_at,
			last_event_at = EXCLUDED.last_event_at
	`

	_, err = r.pool.Exec(ctx, query,
		s.ID,
		s.Token,
		s.UserID,
		s.RepositoryName,
		s.UserLevel,
		s.UserRole,
		reposJSON,
		string(s.Status),
		s.CurrentTaskIndex,
		tasksJSON,
		completedJSON,
		nullString(s.SessionNotes),
		nullString(s.AIPersonality),
		s.StartedAt,
		nullTime(s.CompletedAt),
		s.LastEventAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

const sessionColumns = `id, token, user_id, repository_name, user_level, user_role, repositories,
	status, current_task_index, tasks, completed_tasks, session_notes, ai_personality,
	started_at, completed_at, last_event_at`

// GetSessionByID retrieves a session by id
func (r *PostgresRepository) GetSessionByID(ctx context.Context, id string) (*models.OnboardingSession, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// GetLatestSessionByUser retrieves the most recently started session
// for a user
func (r *PostgresRepository) GetLatestSessionByUser(ctx context.Context, userID string) (*models.OnboardingSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 ORDER BY started_at DESC LIMIT 1`,
		userID,
	)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session by user: %w", err)
	}
	return s, nil
}

// ListSessions returns sessions matching the filters
func (r *PostgresRepository) ListSessions(ctx context.Context, filters models.SessionFilters) ([]*models.OnboardingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1=1`
	args := []interface{}{}
	argN := 1

	if filters.UserID != "" {
		query += fmt.Sprintf(` AND user_id = $%d`, argN)
		args = append(args, filters.UserID)
		argN++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argN)
		args = append(args, string(filters.Status))
		argN++
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT %d OFFSET %d`, limit, filters.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.OnboardingSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session row
func (r *PostgresRepository) DeleteSession(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// GetIdleSessions returns active sessions with no events since the
// given instant
func (r *PostgresRepository) GetIdleSessions(ctx context.Context, idleBefore time.Time) ([]*models.OnboardingSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE status = $1 AND last_event_at < $2`,
		string(models.SessionActive), idleBefore,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query idle sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.OnboardingSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// scanSession reads one session row
func scanSession(row pgx.Row) (*models.OnboardingSession, error) {
	var s models.OnboardingSession
	var statusStr string
	var notes, personality sql.NullString
	var completedAt sql.NullTime
	var reposJSON, tasksJSON, completedJSON []byte

	err := row.Scan(
		&s.ID,
		&s.Token,
		&s.UserID,
		&s.RepositoryName,
		&s.UserLevel,
		&s.UserRole,
		&reposJSON,
		&statusStr,
		&s.CurrentTaskIndex,
		&tasksJSON,
		&completedJSON,
		&notes,
		&personality,
		&s.StartedAt,
		&completedAt,
		&s.LastEventAt,
	)
	if err != nil {
		return nil, err
	}

	s.Status = models.SessionStatus(statusStr)
	s.SessionNotes = notes.String
	s.AIPersonality = personality.String
	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time
	}

	if err := json.Unmarshal(reposJSON, &s.Repositories); err != nil {
		return nil, fmt.Errorf("failed to unmarshal repositories: %w", err)
	}
	if err := json.Unmarshal(tasksJSON, &s.Tasks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tasks: %w", err)
	}
	if err := json.Unmarshal(completedJSON, &s.CompletedTasks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal completed tasks: %w", err)
	}
	return &s, nil
}

// GetClientByAPIKey looks up an API client by key. Returns nil, nil
// when the key is unknown.
func (r *PostgresRepository) GetClientByAPIKey(ctx context.Context, apiKey string) (*models.APIClient, error) {
	query := `
		SELECT id, name, api_key, is_active, created_at, last_used_at, permissions, metadata
		FROM api_clients
		WHERE api_key = $1
	`

	var c models.APIClient
	var lastUsed sql.NullTime
	var permissionsJSON, metadataJSON []byte

	err := r.pool.QueryRow(ctx, query, apiKey).Scan(
		&c.ID,
		&c.Name,
		&c.APIKey,
		&c.IsActive,
		&c.CreatedAt,
		&lastUsed,
		&permissionsJSON,
		&metadataJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get api client: %w", err)
	}

	if lastUsed.Valid {
		c.LastUsedAt = &lastUsed.Time
	}
	if err := json.Unmarshal(permissionsJSON, &c.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &c, nil
}

// UpdateClientLastUsed stamps the client's last_used_at
func (r *PostgresRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE api_clients SET last_used_at = NOW() WHERE api_key = $1`, apiKey)
	if err != nil {
		return fmt.Errorf("failed to update client last_used_at: %w", err)
	}
	return nil
}

// Pool exposes the underlying pool for the migration runner
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
