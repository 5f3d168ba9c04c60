package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/CoachPipe/internal/models"
)

// checkpoint is one stored state snapshot.
type checkpoint struct {
	stage     string
	stateJSON []byte
	createdAt time.Time
}

// threadMeta mirrors a thread_metadata row.
type threadMeta struct {
	title     string
	updatedAt time.Time
}

// InMemoryStore is a Store implementation backed by process memory. It is
// used in tests and mirrors the SQL backends' semantics, including JSON
// round-tripping of checkpointed state.
type InMemoryStore struct {
	mu          sync.Mutex
	checkpoints map[string][]checkpoint
	metadata    map[string]threadMeta
	profile     *models.UserProfile
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		checkpoints: make(map[string][]checkpoint),
		metadata:    make(map[string]threadMeta),
	}
}

func (s *InMemoryStore) SaveCheckpoint(ctx context.Context, threadID, stage string, state *models.ConversationState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation state: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[threadID] = append(s.checkpoints[threadID], checkpoint{
		stage:     stage,
		stateJSON: stateJSON,
		createdAt: time.Now().UTC(),
	})
	return nil
}

func (s *InMemoryStore) LoadLatestState(ctx context.Context, threadID string) (*models.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cps := s.checkpoints[threadID]
	if len(cps) == 0 {
		return nil, nil
	}
	var state models.ConversationState
	if err := json.Unmarshal(cps[len(cps)-1].stateJSON, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state for %s: %w", threadID, err)
	}
	return &state, nil
}

func (s *InMemoryStore) ListThreads(ctx context.Context) ([]models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	threads := []models.Thread{}
	for threadID, cps := range s.checkpoints {
		if len(cps) == 0 {
			continue
		}
		t := models.Thread{
			ID:        threadID,
			Title:     models.DefaultThreadTitle,
			UpdatedAt: cps[len(cps)-1].createdAt,
		}
		if meta, ok := s.metadata[threadID]; ok {
			if meta.title != "" {
				t.Title = meta.title
			}
			t.UpdatedAt = meta.updatedAt
		}
		threads = append(threads, t)
	}
	sort.Slice(threads, func(i, j int) bool {
		return threads[i].UpdatedAt.After(threads[j].UpdatedAt)
	})
	return threads, nil
}

func (s *InMemoryStore) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, threadID)
	delete(s.metadata, threadID)
	return nil
}

func (s *InMemoryStore) DeleteAllThreads(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints = make(map[string][]checkpoint)
	s.metadata = make(map[string]threadMeta)
	return nil
}

func (s *InMemoryStore) SetThreadTitle(ctx context.Context, threadID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[threadID] = threadMeta{title: title, updatedAt: time.Now().UTC()}
	return nil
}

func (s *InMemoryStore) GetProfile(ctx context.Context) (models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return models.DefaultUserProfile(), nil
	}
	return *s.profile, nil
}

func (s *InMemoryStore) UpsertProfile(ctx context.Context, knowledgeSummary, learningGoals string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = &models.UserProfile{
		KnowledgeSummary: knowledgeSummary,
		LearningGoals:    learningGoals,
		UpdatedAt:        time.Now().UTC(),
	}
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
