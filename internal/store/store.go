// Package store provides storage backends for CoachPipe.
//
// It persists per-thread conversation checkpoints (append-on-write, one row
// per completed workflow stage), thread metadata, and the single global user
// profile. SQLite is the default backend; PostgreSQL is used when a postgres
// DSN is configured. An in-memory implementation backs tests.
package store

import (
	"context"

	"github.com/BTreeMap/CoachPipe/internal/models"
)

// GlobalProfileID keys the single user profile row.
const GlobalProfileID = "global"

// Store is the persistence interface used by the workflow and API layers.
type Store interface {
	// SaveCheckpoint appends a snapshot of the conversation state for a thread.
	// Called after every completed workflow stage.
	SaveCheckpoint(ctx context.Context, threadID, stage string, state *models.ConversationState) error

	// LoadLatestState returns the most recent checkpoint for a thread, or
	// (nil, nil) when the thread has no state yet.
	LoadLatestState(ctx context.Context, threadID string) (*models.ConversationState, error)

	// ListThreads returns all known threads ordered by recency.
	ListThreads(ctx context.Context) ([]models.Thread, error)

	// DeleteThread removes a thread's checkpoints and metadata.
	DeleteThread(ctx context.Context, threadID string) error

	// DeleteAllThreads removes every thread's checkpoints and metadata.
	DeleteAllThreads(ctx context.Context) error

	// SetThreadTitle upserts the metadata title for a thread.
	SetThreadTitle(ctx context.Context, threadID, title string) error

	// GetProfile returns the global user profile, or the default placeholder
	// profile when none is stored. Read paths never fail on absence.
	GetProfile(ctx context.Context) (models.UserProfile, error)

	// UpsertProfile writes the global user profile. Concurrent writers race
	// under last-writer-wins semantics; no optimistic concurrency control.
	UpsertProfile(ctx context.Context, knowledgeSummary, learningGoals string) error

	// Close releases the underlying connection.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option configures a store backend.
type Option func(*Opts)

// WithDSN sets the database connection string (file path for SQLite,
// connection URL for Postgres).
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}
