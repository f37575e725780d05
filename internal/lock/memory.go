package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/actorforge/internal/domain"
)

type heldLease struct {
	leaseID   string
	expiresAt time.Time
}

// InMemoryAdapter is the dev/test Lock/Coordination Adapter. It only
// provides mutual exclusion within a single process, which is correct
// for a single-worker dev setup but not across a cluster.
type InMemoryAdapter struct {
	mu    sync.Mutex
	held  map[string]*heldLease
	nowFn func() time.Time
}

// NewInMemoryAdapter creates an in-memory lock adapter.
func NewInMemoryAdapter() *InMemoryAdapter {
	return &InMemoryAdapter{held: make(map[string]*heldLease), nowFn: time.Now}
}

// Acquire grants key to the caller if unheld or expired, returning a
// fresh Lease. Returns (nil, nil) if another holder's lease is still
// live.
func (a *InMemoryAdapter) Acquire(ctx context.Context, key string, ttl time.Duration) (*domain.Lease, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.nowFn()
	if existing, ok := a.held[key]; ok && now.Before(existing.expiresAt) {
		return nil, nil
	}

	leaseID := uuid.NewString()
	expiresAt := now.Add(ttl)
	a.held[key] = &heldLease{leaseID: leaseID, expiresAt: expiresAt}

	return &domain.Lease{ActorID: key, LeaseID: leaseID, ExpiresAt: expiresAt.UnixMilli()}, nil
}

// Release drops the lease for key if it's still the current holder.
func (a *InMemoryAdapter) Release(ctx context.Context, lease *domain.Lease) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.held[lease.ActorID]; ok && existing.leaseID == lease.LeaseID {
		delete(a.held, lease.ActorID)
	}
	return nil
}

// Renew extends the lease's TTL if it is still the current holder,
// returning false otherwise (the caller must treat this instance as
// invalid per the lease lifecycle rule in spec §5).
func (a *InMemoryAdapter) Renew(ctx context.Context, lease *domain.Lease, ttl time.Duration) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	existing, ok := a.held[lease.ActorID]
	if !ok || existing.leaseID != lease.LeaseID {
		return false, nil
	}
	existing.expiresAt = a.nowFn().Add(ttl)
	lease.ExpiresAt = existing.expiresAt.UnixMilli()
	return true, nil
}
