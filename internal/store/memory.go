package store

import (
	"context"
	"fmt"
	"sync"
)

// DefaultMemoryCapacity bounds MemoryStore when no capacity is given.
const DefaultMemoryCapacity = 500

// MemoryStore keeps the most recent results in process memory. Used when
// no database is configured and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	results  []MatchResult // oldest first
	capacity int
}

// NewMemoryStore creates a store holding at most capacity results.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity}
}

func (s *MemoryStore) SaveResult(ctx context.Context, r MatchResult) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.results {
		if s.results[i].ID == r.ID {
			s.results[i] = r
			return nil
		}
	}
	if len(s.results) >= s.capacity {
		s.results = append(s.results[:0], s.results[1:]...)
	}
	s.results = append(s.results, r)
	return nil
}

// Recent returns up to limit results, newest first.
func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]MatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("recent results: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.results) {
		limit = len(s.results)
	}
	out := make([]MatchResult, 0, limit)
	for i := len(s.results) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.results[i])
	}
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (MatchResult, error) {
	if err := ctx.Err(); err != nil {
		return MatchResult{}, fmt.Errorf("get result: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.results {
		if r.ID == id {
			return r, nil
		}
	}
	return MatchResult{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
}

func (s *MemoryStore) Close() error { return nil }
