package idempotency

import (
	"context"
	"fmt"
	"sync"

	"github.com/oriys/actorforge/internal/domain"
)

// InMemoryStore is the dev/test Idempotency Store.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewInMemoryStore creates an empty in-memory idempotency store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*Record)}
}

func (s *InMemoryStore) Get(ctx context.Context, key string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[key]
	if !ok {
		return nil, fmt.Errorf("get idempotency record %s: %w", key, domain.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *InMemoryStore) Set(ctx context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *record
	s.records[record.Key] = &cp
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}

// Cleanup removes all records whose ExpiresAt has passed nowMs,
// returning the count removed.
func (s *InMemoryStore) Cleanup(ctx context.Context, nowMs int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, r := range s.records {
		if r.ExpiresAt > 0 && r.ExpiresAt <= nowMs {
			delete(s.records, key)
			removed++
		}
	}
	return removed, nil
}
