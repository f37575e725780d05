// Package runtime implements the Actor Runtime: the activation pool
// that turns a bare actor_id into a hydrated, lease-held engine.Instance
// and back again. It is the component that actually enforces the
// single-writer invariant -- an actor is only ever running inside one
// process at a time because holding it in the pool requires holding
// its lease, and the lease is the one thing the cluster agrees on.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oriys/actorforge/internal/domain"
	"github.com/oriys/actorforge/internal/engine"
	"github.com/oriys/actorforge/internal/journalstore"
	"github.com/oriys/actorforge/internal/lock"
	"github.com/oriys/actorforge/internal/statestore"
	"github.com/oriys/actorforge/internal/telemetry"
)

// BehaviorFactory resolves an actor type to the Behavior that drives
// it. Returning domain.ErrUnknownActorType signals the worker's
// unknown_actor_type tie-break.
type BehaviorFactory func(actorType string) (engine.Behavior, error)

// Config bounds pool size, lease lifecycle and idle eviction. Mirrors
// internal/config.RuntimeConfig's fields, plus LeaseTTL, which the
// daemon takes from the lock adapter's config.
type Config struct {
	LeaseTTL            time.Duration
	MaxActivePerType    int // 0 means unbounded
	IdleTTL             time.Duration
	CleanupInterval     time.Duration
	HealthCheckInterval time.Duration
}

// pooledActor is one activation held by the runtime: its hydrated
// engine.Instance, the lease backing its exclusivity, and the
// bookkeeping needed to renew the lease and evict it when idle.
type pooledActor struct {
	id        domain.ActorID
	instance  *engine.Instance
	lease     *domain.Lease
	lastUsed  time.Time
	stopRenew chan struct{}
	renewDone chan struct{}
}

// Runtime is the Actor Runtime: a pool of activations keyed by
// "type/id", backed by a Lock/Coordination Adapter for single-writer
// enforcement and the State/Journal Store adapters engine.Instance
// hydrates from.
type Runtime struct {
	locks    lock.Adapter
	states   statestore.Store
	journals journalstore.Store
	cfg      Config

	mu   sync.Mutex
	pool map[string]*pooledActor

	stopCleanup chan struct{}
	cleanupDone chan struct{}
	closeOnce   sync.Once
}

// New constructs a Runtime and, unless CleanupInterval is zero,
// starts its idle-eviction background loop.
func New(locks lock.Adapter, states statestore.Store, journals journalstore.Store, cfg Config) *Runtime {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 30 * time.Second
	}
	r := &Runtime{
		locks:       locks,
		states:      states,
		journals:    journals,
		cfg:         cfg,
		pool:        make(map[string]*pooledActor),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		go r.cleanupLoop()
	} else {
		close(r.cleanupDone)
	}
	return r
}

// Activate returns the pooled engine.Instance for id, acquiring its
// lease and hydrating it from the stores if it is not already active
// in this process. Returns domain.ErrAlreadyActive if another process
// (or another caller, cluster-wide) already holds the lease -- the
// worker is expected to treat that as a retryable nack, not a failure.
func (r *Runtime) Activate(ctx context.Context, id domain.ActorID, behavior engine.Behavior) (*engine.Instance, error) {
	key := id.String()

	r.mu.Lock()
	if existing, ok := r.pool[key]; ok {
		existing.lastUsed = time.Now()
		r.mu.Unlock()
		return existing.instance, nil
	}
	r.mu.Unlock()

	lease, err := r.locks.Acquire(ctx, key, r.cfg.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire lease for %s: %w", key, err)
	}
	if lease == nil {
		telemetry.RecordLeaseAcquire("already_active")
		return nil, fmt.Errorf("activate %s: %w", key, domain.ErrAlreadyActive)
	}
	telemetry.RecordLeaseAcquire("acquired")

	instance := engine.NewInstance(id, behavior, r.states, r.journals)
	if err := instance.Load(ctx); err != nil {
		_ = r.locks.Release(ctx, lease)
		return nil, fmt.Errorf("load %s: %w", key, err)
	}

	pooled := &pooledActor{
		id:        id,
		instance:  instance,
		lease:     lease,
		lastUsed:  time.Now(),
		stopRenew: make(chan struct{}),
		renewDone: make(chan struct{}),
	}
	go r.renewLoop(pooled)

	r.mu.Lock()
	r.pool[key] = pooled
	evicted := r.evictOverCapacityLocked(id.Type)
	r.mu.Unlock()
	telemetry.RecordActivation(id.Type, "pool")

	for _, victim := range evicted {
		r.deactivatePooled(ctx, victim)
	}

	return instance, nil
}

// evictOverCapacityLocked evicts the least-recently-used activation
// of actorType if the pool now holds more than cfg.MaxActivePerType
// instances of it. Must be called with r.mu held; the returned
// activations still need Deactivate run on them outside the lock,
// since that does its own I/O (lease release).
func (r *Runtime) evictOverCapacityLocked(actorType string) []*pooledActor {
	if r.cfg.MaxActivePerType <= 0 {
		return nil
	}

	var sameType []*pooledActor
	for _, p := range r.pool {
		if p.id.Type == actorType {
			sameType = append(sameType, p)
		}
	}
	if len(sameType) <= r.cfg.MaxActivePerType {
		return nil
	}

	var victims []*pooledActor
	for len(sameType) > r.cfg.MaxActivePerType {
		oldestIdx := 0
		for i, p := range sameType {
			if p.lastUsed.Before(sameType[oldestIdx].lastUsed) {
				oldestIdx = i
			}
		}
		victim := sameType[oldestIdx]
		delete(r.pool, victim.id.String())
		victims = append(victims, victim)
		sameType = append(sameType[:oldestIdx], sameType[oldestIdx+1:]...)
	}
	return victims
}

// Touch updates an already-activated actor's last-used timestamp,
// keeping it out of idle eviction while its worker is actively
// handling messages for it.
func (r *Runtime) Touch(id domain.ActorID) {
	key := id.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pool[key]; ok {
		p.lastUsed = time.Now()
	}
}

// Deactivate removes id from the pool, stops its lease renewal and
// releases the lease. Safe to call on an actor that is not currently
// pooled.
func (r *Runtime) Deactivate(ctx context.Context, id domain.ActorID) error {
	key := id.String()
	r.mu.Lock()
	pooled, ok := r.pool[key]
	if ok {
		delete(r.pool, key)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return r.deactivatePooled(ctx, pooled)
}

func (r *Runtime) deactivatePooled(ctx context.Context, pooled *pooledActor) error {
	close(pooled.stopRenew)
	<-pooled.renewDone
	if err := r.locks.Release(ctx, pooled.lease); err != nil {
		return fmt.Errorf("release lease for %s: %w", pooled.id, err)
	}
	return nil
}

// forceEvict drops an activation from the pool without releasing its
// lease -- used when lease renewal itself has failed, meaning another
// process may already hold (or be about to hold) the lease, so this
// process releasing it would be a stale write.
func (r *Runtime) forceEvict(id domain.ActorID) {
	key := id.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pool, key)
}

// renewLoop renews pooled's lease at roughly a third of its TTL,
// matching the lease lifecycle in domain.Lease's doc comment. A
// renewal failure (explicit false, or an adapter error) means this
// process can no longer assume it is the sole writer, so the
// activation is force-evicted from the pool rather than kept running
// on a lease that may have already expired.
func (r *Runtime) renewLoop(pooled *pooledActor) {
	defer close(pooled.renewDone)

	interval := r.cfg.LeaseTTL / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-pooled.stopRenew:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.cfg.LeaseTTL/3)
			ok, err := r.locks.Renew(ctx, pooled.lease, r.cfg.LeaseTTL)
			cancel()
			if err != nil || !ok {
				telemetry.RecordLeaseAcquire("renew_failed")
				r.forceEvict(pooled.id)
				return
			}
		}
	}
}

// EvictIdle deactivates every activation that has not been Touch-ed or
// used since cfg.IdleTTL ago. Intended to be called periodically by
// cleanupLoop, but exposed so a daemon can also trigger it from a
// health endpoint or test.
func (r *Runtime) EvictIdle(ctx context.Context) {
	if r.cfg.IdleTTL <= 0 {
		return
	}
	cutoff := time.Now().Add(-r.cfg.IdleTTL)

	r.mu.Lock()
	var idle []*pooledActor
	for key, p := range r.pool {
		if p.lastUsed.Before(cutoff) {
			idle = append(idle, p)
			delete(r.pool, key)
		}
	}
	r.mu.Unlock()

	for _, p := range idle {
		_ = r.deactivatePooled(ctx, p)
	}
}

func (r *Runtime) cleanupLoop() {
	defer close(r.cleanupDone)
	ticker := time.NewTicker(r.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCleanup:
			return
		case <-ticker.C:
			r.EvictIdle(context.Background())
		}
	}
}

// ActiveCount reports how many activations of actorType are currently
// pooled, for telemetry.SetActiveActors callers.
func (r *Runtime) ActiveCount(actorType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.pool {
		if p.id.Type == actorType {
			n++
		}
	}
	return n
}

// Shutdown stops the idle-eviction loop and deactivates every pooled
// activation, releasing its lease. Safe to call once; a second call
// is a no-op.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var err error
	r.closeOnce.Do(func() {
		close(r.stopCleanup)
		<-r.cleanupDone

		r.mu.Lock()
		all := make([]*pooledActor, 0, len(r.pool))
		for key, p := range r.pool {
			all = append(all, p)
			delete(r.pool, key)
		}
		r.mu.Unlock()

		for _, p := range all {
			if dErr := r.deactivatePooled(ctx, p); dErr != nil && err == nil {
				err = dErr
			}
		}
	})
	return err
}
