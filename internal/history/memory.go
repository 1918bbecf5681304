package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantfold/signalrun/internal/domain"
)

const defaultHistoryLimit = 100

// MemoryStore is an in-process Store for tests and single-node development.
// A single RWMutex serializes writes while reads proceed concurrently.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*domain.DecisionHistoryEntry // by id
	bySym   map[string][]string                     // symbol -> ids, append order
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory decision log.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*domain.DecisionHistoryEntry),
		bySym:   make(map[string][]string),
		now:     time.Now,
	}
}

// WithClock replaces the store clock. Test hook.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Save appends one immutable entry and returns its generated id.
func (s *MemoryStore) Save(_ context.Context, decision *domain.Decision) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	entry := entryFromDecision(decision, id, s.now())
	s.entries[id] = &entry
	s.bySym[decision.Symbol] = append(s.bySym[decision.Symbol], id)
	return id, nil
}

// History returns matching entries newest-first.
func (s *MemoryStore) History(_ context.Context, symbol string, filter Filter) ([]domain.DecisionHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	out := make([]domain.DecisionHistoryEntry, 0, limit)
	for _, id := range s.bySym[symbol] {
		entry := s.entries[id]
		if !filter.Start.IsZero() && entry.Timestamp.Before(filter.Start) {
			continue
		}
		if !filter.End.IsZero() && entry.Timestamp.After(filter.End) {
			continue
		}
		out = append(out, *entry)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkSuperseded flips the superseded flag, the only mutation the log allows.
func (s *MemoryStore) MarkSuperseded(_ context.Context, decisionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[decisionID]
	if !ok {
		return ErrNotFound
	}
	entry.IsSuperseded = true
	return nil
}
