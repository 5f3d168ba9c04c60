package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/CoachPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// SaveCheckpoint appends a state snapshot for a thread.
func (s *PostgresStore) SaveCheckpoint(ctx context.Context, threadID, stage string, state *models.ConversationState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		slog.Error("PostgresStore SaveCheckpoint marshal failed", "error", err, "threadID", threadID)
		return fmt.Errorf("failed to marshal conversation state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_id, stage, state, created_at) VALUES ($1, $2, $3, NOW())`,
		threadID, stage, string(stateJSON))
	if err != nil {
		slog.Error("PostgresStore SaveCheckpoint failed", "error", err, "threadID", threadID, "stage", stage)
		return fmt.Errorf("failed to insert checkpoint for %s: %w", threadID, err)
	}
	slog.Debug("PostgresStore SaveCheckpoint succeeded", "threadID", threadID, "stage", stage)
	return nil
}

// LoadLatestState returns the most recent checkpoint for a thread, or nil.
func (s *PostgresStore) LoadLatestState(ctx context.Context, threadID string) (*models.ConversationState, error) {
	var stateJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM checkpoints WHERE thread_id = $1 ORDER BY checkpoint_id DESC LIMIT 1`,
		threadID).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore LoadLatestState not found", "threadID", threadID)
		return nil, nil
	}
	if err != nil {
		if isMissingTableErr(err) {
			return nil, nil
		}
		slog.Error("PostgresStore LoadLatestState failed", "error", err, "threadID", threadID)
		return nil, fmt.Errorf("failed to load state for %s: %w", threadID, err)
	}

	var state models.ConversationState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		slog.Error("PostgresStore LoadLatestState unmarshal failed", "error", err, "threadID", threadID)
		return nil, fmt.Errorf("failed to unmarshal state for %s: %w", threadID, err)
	}
	slog.Debug("PostgresStore LoadLatestState found", "threadID", threadID, "messages", len(state.Messages))
	return &state, nil
}

// ListThreads returns all threads ordered by latest activity.
func (s *PostgresStore) ListThreads(ctx context.Context) ([]models.Thread, error) {
	query := `
		SELECT c.thread_id, m.title, COALESCE(m.updated_at, c.last_created)
		FROM (
			SELECT thread_id, MAX(created_at) AS last_created
			FROM checkpoints
			GROUP BY thread_id
		) c
		LEFT JOIN thread_metadata m ON c.thread_id = m.thread_id
		ORDER BY COALESCE(m.updated_at, c.last_created) DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		if isMissingTableErr(err) {
			return []models.Thread{}, nil
		}
		slog.Error("PostgresStore ListThreads query failed", "error", err)
		return nil, fmt.Errorf("failed to query threads: %w", err)
	}
	defer rows.Close()

	threads := []models.Thread{}
	for rows.Next() {
		var (
			t         models.Thread
			title     sql.NullString
			updatedAt sql.NullTime
		)
		if err := rows.Scan(&t.ID, &title, &updatedAt); err != nil {
			slog.Error("PostgresStore ListThreads scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan thread row: %w", err)
		}
		t.Title = title.String
		if t.Title == "" {
			t.Title = models.DefaultThreadTitle
		}
		if updatedAt.Valid {
			t.UpdatedAt = updatedAt.Time
		}
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListThreads rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate thread rows: %w", err)
	}
	slog.Debug("PostgresStore ListThreads succeeded", "count", len(threads))
	return threads, nil
}

// DeleteThread removes a thread's checkpoints and metadata.
func (s *PostgresStore) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = $1`, threadID); err != nil {
		slog.Error("PostgresStore DeleteThread checkpoints failed", "error", err, "threadID", threadID)
		return fmt.Errorf("failed to delete checkpoints for %s: %w", threadID, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM thread_metadata WHERE thread_id = $1`, threadID); err != nil {
		slog.Error("PostgresStore DeleteThread metadata failed", "error", err, "threadID", threadID)
		return fmt.Errorf("failed to delete metadata for %s: %w", threadID, err)
	}
	slog.Debug("PostgresStore DeleteThread succeeded", "threadID", threadID)
	return nil
}

// DeleteAllThreads removes every thread's checkpoints and metadata.
func (s *PostgresStore) DeleteAllThreads(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints`); err != nil {
		slog.Error("PostgresStore DeleteAllThreads checkpoints failed", "error", err)
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM thread_metadata`); err != nil {
		slog.Error("PostgresStore DeleteAllThreads metadata failed", "error", err)
		return fmt.Errorf("failed to delete thread metadata: %w", err)
	}
	slog.Debug("PostgresStore DeleteAllThreads succeeded")
	return nil
}

// SetThreadTitle upserts the metadata title for a thread.
func (s *PostgresStore) SetThreadTitle(ctx context.Context, threadID, title string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO thread_metadata (thread_id, title, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (thread_id) DO UPDATE SET
			title = EXCLUDED.title,
			updated_at = EXCLUDED.updated_at`,
		threadID, title)
	if err != nil {
		slog.Error("PostgresStore SetThreadTitle failed", "error", err, "threadID", threadID)
		return fmt.Errorf("failed to set title for %s: %w", threadID, err)
	}
	slog.Debug("PostgresStore SetThreadTitle succeeded", "threadID", threadID, "title", title)
	return nil
}

// GetProfile returns the global profile, or the default placeholders when
// no row exists.
func (s *PostgresStore) GetProfile(ctx context.Context) (models.UserProfile, error) {
	var (
		knowledge sql.NullString
		goals     sql.NullString
		updatedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT knowledge_summary, learning_goals, updated_at FROM user_profile WHERE id = $1`,
		GlobalProfileID).Scan(&knowledge, &goals, &updatedAt)
	if err == sql.ErrNoRows || (err != nil && isMissingTableErr(err)) {
		slog.Debug("PostgresStore GetProfile: no profile stored, returning defaults")
		return models.DefaultUserProfile(), nil
	}
	if err != nil {
		slog.Error("PostgresStore GetProfile failed", "error", err)
		return models.UserProfile{}, fmt.Errorf("failed to load profile: %w", err)
	}

	profile := models.UserProfile{
		KnowledgeSummary: knowledge.String,
		LearningGoals:    goals.String,
	}
	if profile.KnowledgeSummary == "" {
		profile.KnowledgeSummary = models.DefaultKnowledgeSummary
	}
	if profile.LearningGoals == "" {
		profile.LearningGoals = models.DefaultLearningGoals
	}
	if updatedAt.Valid {
		profile.UpdatedAt = updatedAt.Time
	}
	return profile, nil
}

// UpsertProfile writes the global profile row. Last writer wins.
func (s *PostgresStore) UpsertProfile(ctx context.Context, knowledgeSummary, learningGoals string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profile (id, knowledge_summary, learning_goals, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			knowledge_summary = EXCLUDED.knowledge_summary,
			learning_goals = EXCLUDED.learning_goals,
			updated_at = EXCLUDED.updated_at`,
		GlobalProfileID, knowledgeSummary, learningGoals)
	if err != nil {
		slog.Error("PostgresStore UpsertProfile failed", "error", err)
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	slog.Debug("PostgresStore UpsertProfile succeeded")
	return nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
