package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/CoachPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// SaveCheckpoint appends a state snapshot for a thread.
func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, threadID, stage string, state *models.ConversationState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		slog.Error("SQLiteStore SaveCheckpoint marshal failed", "error", err, "threadID", threadID)
		return fmt.Errorf("failed to marshal conversation state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_id, stage, state, created_at) VALUES (?, ?, ?, ?)`,
		threadID, stage, string(stateJSON), time.Now().UTC())
	if err != nil {
		slog.Error("SQLiteStore SaveCheckpoint failed", "error", err, "threadID", threadID, "stage", stage)
		return fmt.Errorf("failed to insert checkpoint for %s: %w", threadID, err)
	}
	slog.Debug("SQLiteStore SaveCheckpoint succeeded", "threadID", threadID, "stage", stage)
	return nil
}

// LoadLatestState returns the most recent checkpoint for a thread, or nil.
func (s *SQLiteStore) LoadLatestState(ctx context.Context, threadID string) (*models.ConversationState, error) {
	var stateJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM checkpoints WHERE thread_id = ? ORDER BY checkpoint_id DESC LIMIT 1`,
		threadID).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore LoadLatestState not found", "threadID", threadID)
		return nil, nil
	}
	if err != nil {
		if isMissingTableErr(err) {
			return nil, nil
		}
		slog.Error("SQLiteStore LoadLatestState failed", "error", err, "threadID", threadID)
		return nil, fmt.Errorf("failed to load state for %s: %w", threadID, err)
	}

	var state models.ConversationState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		slog.Error("SQLiteStore LoadLatestState unmarshal failed", "error", err, "threadID", threadID)
		return nil, fmt.Errorf("failed to unmarshal state for %s: %w", threadID, err)
	}
	slog.Debug("SQLiteStore LoadLatestState found", "threadID", threadID, "messages", len(state.Messages))
	return &state, nil
}

// ListThreads returns all threads known to the checkpoint table, joined with
// metadata, ordered by latest activity.
func (s *SQLiteStore) ListThreads(ctx context.Context) ([]models.Thread, error) {
	query := `
		SELECT c.thread_id, m.title, m.updated_at, c.last_created
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
		slog.Error("SQLiteStore ListThreads query failed", "error", err)
		return nil, fmt.Errorf("failed to query threads: %w", err)
	}
	defer rows.Close()

	threads := []models.Thread{}
	for rows.Next() {
		var (
			t           models.Thread
			title       sql.NullString
			metaUpdated sql.NullString
			lastCreated sql.NullString
		)
		if err := rows.Scan(&t.ID, &title, &metaUpdated, &lastCreated); err != nil {
			slog.Error("SQLiteStore ListThreads scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan thread row: %w", err)
		}
		t.Title = title.String
		if t.Title == "" {
			t.Title = models.DefaultThreadTitle
		}
		if metaUpdated.Valid {
			t.UpdatedAt = parseTimestamp(metaUpdated.String)
		} else if lastCreated.Valid {
			t.UpdatedAt = parseTimestamp(lastCreated.String)
		}
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListThreads rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate thread rows: %w", err)
	}
	slog.Debug("SQLiteStore ListThreads succeeded", "count", len(threads))
	return threads, nil
}

// DeleteThread removes a thread's checkpoints and metadata.
func (s *SQLiteStore) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, threadID); err != nil {
		slog.Error("SQLiteStore DeleteThread checkpoints failed", "error", err, "threadID", threadID)
		return fmt.Errorf("failed to delete checkpoints for %s: %w", threadID, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM thread_metadata WHERE thread_id = ?`, threadID); err != nil {
		slog.Error("SQLiteStore DeleteThread metadata failed", "error", err, "threadID", threadID)
		return fmt.Errorf("failed to delete metadata for %s: %w", threadID, err)
	}
	slog.Debug("SQLiteStore DeleteThread succeeded", "threadID", threadID)
	return nil
}

// DeleteAllThreads removes every thread's checkpoints and metadata.
func (s *SQLiteStore) DeleteAllThreads(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints`); err != nil {
		slog.Error("SQLiteStore DeleteAllThreads checkpoints failed", "error", err)
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM thread_metadata`); err != nil {
		slog.Error("SQLiteStore DeleteAllThreads metadata failed", "error", err)
		return fmt.Errorf("failed to delete thread metadata: %w", err)
	}
	slog.Debug("SQLiteStore DeleteAllThreads succeeded")
	return nil
}

// SetThreadTitle upserts the metadata title for a thread.
func (s *SQLiteStore) SetThreadTitle(ctx context.Context, threadID, title string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO thread_metadata (thread_id, title, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			title = excluded.title,
			updated_at = excluded.updated_at`,
		threadID, title, time.Now().UTC())
	if err != nil {
		slog.Error("SQLiteStore SetThreadTitle failed", "error", err, "threadID", threadID)
		return fmt.Errorf("failed to set title for %s: %w", threadID, err)
	}
	slog.Debug("SQLiteStore SetThreadTitle succeeded", "threadID", threadID, "title", title)
	return nil
}

// GetProfile returns the global profile, or the default placeholders when
// no row exists. Absence is not an error.
func (s *SQLiteStore) GetProfile(ctx context.Context) (models.UserProfile, error) {
	var (
		knowledge sql.NullString
		goals     sql.NullString
		updatedAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT knowledge_summary, learning_goals, updated_at FROM user_profile WHERE id = ?`,
		GlobalProfileID).Scan(&knowledge, &goals, &updatedAt)
	if err == sql.ErrNoRows || (err != nil && isMissingTableErr(err)) {
		slog.Debug("SQLiteStore GetProfile: no profile stored, returning defaults")
		return models.DefaultUserProfile(), nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetProfile failed", "error", err)
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
		profile.UpdatedAt = parseTimestamp(updatedAt.String)
	}
	return profile, nil
}

// UpsertProfile writes the global profile row. Last writer wins.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, knowledgeSummary, learningGoals string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profile (id, knowledge_summary, learning_goals, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			knowledge_summary = excluded.knowledge_summary,
			learning_goals = excluded.learning_goals,
			updated_at = excluded.updated_at`,
		GlobalProfileID, knowledgeSummary, learningGoals, time.Now().UTC())
	if err != nil {
		slog.Error("SQLiteStore UpsertProfile failed", "error", err)
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	slog.Debug("SQLiteStore UpsertProfile succeeded")
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
