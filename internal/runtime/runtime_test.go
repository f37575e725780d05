package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/oriys/actorforge/internal/domain"
	"github.com/oriys/actorforge/internal/engine"
	"github.com/oriys/actorforge/internal/journalstore"
	"github.com/oriys/actorforge/internal/lock"
	"github.com/oriys/actorforge/internal/statestore"
)

type counterBehavior struct{}

func (counterBehavior) Run(ictx *engine.InvocationContext) error {
	delta, _ := ictx.Input()["delta"].(int)
	return ictx.UpdateState(func(state map[string]interface{}) map[string]interface{} {
		count, _ := state["count"].(int)
		state["count"] = count + delta
		return state
	})
}

func newTestRuntime(cfg Config) (*Runtime, lock.Adapter, statestore.Store, journalstore.Store) {
	locks := lock.NewInMemoryAdapter()
	states := statestore.NewInMemoryStore()
	journals := journalstore.NewInMemoryStore()
	return New(locks, states, journals, cfg), locks, states, journals
}

func TestRuntimeActivateHydratesAndPersists(t *testing.T) {
	ctx := context.Background()
	rt, _, states, _ := newTestRuntime(Config{LeaseTTL: time.Minute})
	id := domain.ActorID{Type: "counter", ID: "a"}

	inst, err := rt.Activate(ctx, id, counterBehavior{})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if result := inst.Execute(ctx, map[string]interface{}{"delta": 4}); result.Outcome != domain.OutcomeCompleted {
		t.Fatalf("Execute outcome = %v", result.Outcome)
	}

	if err := rt.Deactivate(ctx, id); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	record, err := states.Load(ctx, "counter", "a")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if record.State["count"] != 4 {
		t.Fatalf("count = %v, want 4", record.State["count"])
	}
}

func TestRuntimeActivateIsIdempotentWithinProcess(t *testing.T) {
	ctx := context.Background()
	rt, _, _, _ := newTestRuntime(Config{LeaseTTL: time.Minute})
	id := domain.ActorID{Type: "counter", ID: "b"}

	first, err := rt.Activate(ctx, id, counterBehavior{})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	second, err := rt.Activate(ctx, id, counterBehavior{})
	if err != nil {
		t.Fatalf("Activate (second): %v", err)
	}
	if first != second {
		t.Fatal("expected the same pooled *engine.Instance on repeat Activate")
	}
}

func TestRuntimeActivateFailsUnderLeaseContention(t *testing.T) {
	ctx := context.Background()
	locks := lock.NewInMemoryAdapter()
	states := statestore.NewInMemoryStore()
	journals := journalstore.NewInMemoryStore()

	rtA := New(locks, states, journals, Config{LeaseTTL: time.Minute})
	rtB := New(locks, states, journals, Config{LeaseTTL: time.Minute})
	id := domain.ActorID{Type: "counter", ID: "c"}

	if _, err := rtA.Activate(ctx, id, counterBehavior{}); err != nil {
		t.Fatalf("Activate on rtA: %v", err)
	}

	// Simulate a second process (rtB never pooled it locally) trying to
	// activate the same actor while rtA still holds the lease.
	_, err := rtB.Activate(ctx, id, counterBehavior{})
	if err == nil {
		t.Fatal("expected lease contention error, got nil")
	}
}

func TestRuntimeEvictIdleDeactivatesStaleActors(t *testing.T) {
	ctx := context.Background()
	rt, locks, _, _ := newTestRuntime(Config{LeaseTTL: time.Minute, IdleTTL: time.Millisecond})
	id := domain.ActorID{Type: "counter", ID: "d"}

	if _, err := rt.Activate(ctx, id, counterBehavior{}); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	rt.EvictIdle(ctx)

	if rt.ActiveCount("counter") != 0 {
		t.Fatalf("ActiveCount = %d, want 0 after idle eviction", rt.ActiveCount("counter"))
	}

	// The lease must have been released, not just forgotten locally.
	lease, err := locks.Acquire(ctx, id.String(), time.Minute)
	if err != nil {
		t.Fatalf("Acquire after eviction: %v", err)
	}
	if lease == nil {
		t.Fatal("expected lease to be acquirable after idle eviction released it")
	}
}

func TestRuntimeEvictsLRUOverCapacity(t *testing.T) {
	ctx := context.Background()
	rt, locks, _, _ := newTestRuntime(Config{LeaseTTL: time.Minute, MaxActivePerType: 1})

	first := domain.ActorID{Type: "counter", ID: "e1"}
	second := domain.ActorID{Type: "counter", ID: "e2"}

	if _, err := rt.Activate(ctx, first, counterBehavior{}); err != nil {
		t.Fatalf("Activate first: %v", err)
	}
	if _, err := rt.Activate(ctx, second, counterBehavior{}); err != nil {
		t.Fatalf("Activate second: %v", err)
	}

	if rt.ActiveCount("counter") != 1 {
		t.Fatalf("ActiveCount = %d, want 1 after LRU eviction", rt.ActiveCount("counter"))
	}

	// first's lease must have been released by the eviction.
	lease, err := locks.Acquire(ctx, first.String(), time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if lease == nil {
		t.Fatal("expected first's lease to be free after LRU eviction")
	}
}

func TestRuntimeShutdownReleasesAllLeases(t *testing.T) {
	ctx := context.Background()
	rt, locks, _, _ := newTestRuntime(Config{LeaseTTL: time.Minute})

	ids := []domain.ActorID{
		{Type: "counter", ID: "f1"},
		{Type: "counter", ID: "f2"},
	}
	for _, id := range ids {
		if _, err := rt.Activate(ctx, id, counterBehavior{}); err != nil {
			t.Fatalf("Activate %s: %v", id, err)
		}
	}

	if err := rt.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	for _, id := range ids {
		lease, err := locks.Acquire(ctx, id.String(), time.Minute)
		if err != nil {
			t.Fatalf("Acquire after shutdown: %v", err)
		}
		if lease == nil {
			t.Fatalf("expected %s's lease to be free after Shutdown", id)
		}
	}
}
