package statestore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/oriys/actorforge/internal/domain"
)

// InMemoryStore is the dev/test State Store Adapter. Selecting it in
// a production environment should log a warning (enforced by the
// caller that wires adapters from config, not here).
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*domain.ActorRecord // "type/id" -> record
}

// NewInMemoryStore creates an empty in-memory state store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*domain.ActorRecord)}
}

func key(actorType, actorID string) string {
	return actorType + "/" + actorID
}

// Save writes record, enforcing optimistic concurrency when
// record.Version is non-zero.
func (s *InMemoryStore) Save(ctx context.Context, record *domain.ActorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(record.ActorType, record.ID)
	existing, ok := s.records[k]

	if record.Version > 0 {
		if !ok || existing.Version != record.Version {
			return domain.ErrVersionConflict
		}
	}

	cp := *record
	cp.Version = record.Version + 1
	if cp.State != nil {
		stateCopy := make(map[string]interface{}, len(cp.State))
		for k, v := range cp.State {
			stateCopy[k] = v
		}
		cp.State = stateCopy
	}
	s.records[k] = &cp
	return nil
}

// Load returns the record for (actorType, actorID), or
// domain.ErrNotFound.
func (s *InMemoryStore) Load(ctx context.Context, actorType, actorID string) (*domain.ActorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[key(actorType, actorID)]
	if !ok {
		return nil, fmt.Errorf("load actor state %s/%s: %w", actorType, actorID, domain.ErrNotFound)
	}
	cp := *record
	return &cp, nil
}

// Delete removes the record for (actorType, actorID). Deleting a
// missing record is not an error.
func (s *InMemoryStore) Delete(ctx context.Context, actorType, actorID string) error {
	s.mu.Lock()
	delete(s.records, key(actorType, actorID))
	s.mu.Unlock()
	return nil
}

// QueryByType lists records for actorType ordered by ID, paginated by
// limit/offset.
func (s *InMemoryStore) QueryByType(ctx context.Context, actorType string, limit, offset int) ([]*domain.ActorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*domain.ActorRecord, 0)
	for _, r := range s.records {
		if r.ActorType == actorType {
			cp := *r
			matched = append(matched, &cp)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	if offset >= len(matched) {
		return []*domain.ActorRecord{}, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], nil
}
