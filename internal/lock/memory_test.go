package lock

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryAdapterAcquireExclusive(t *testing.T) {
	ctx := context.Background()
	a := NewInMemoryAdapter()

	lease1, err := a.Acquire(ctx, "counter/a1", time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if lease1 == nil {
		t.Fatal("expected lease, got nil")
	}

	lease2, err := a.Acquire(ctx, "counter/a1", time.Minute)
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if lease2 != nil {
		t.Fatal("expected nil lease while first is still held")
	}
}

func TestInMemoryAdapterReleaseThenReacquire(t *testing.T) {
	ctx := context.Background()
	a := NewInMemoryAdapter()

	lease, _ := a.Acquire(ctx, "counter/a1", time.Minute)
	if err := a.Release(ctx, lease); err != nil {
		t.Fatalf("Release: %v", err)
	}

	lease2, err := a.Acquire(ctx, "counter/a1", time.Minute)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	if lease2 == nil {
		t.Fatal("expected reacquire to succeed after release")
	}
}

func TestInMemoryAdapterExpiryAllowsReacquire(t *testing.T) {
	ctx := context.Background()
	a := NewInMemoryAdapter()
	now := time.Now()
	a.nowFn = func() time.Time { return now }

	lease, _ := a.Acquire(ctx, "counter/a1", time.Second)
	if lease == nil {
		t.Fatal("expected initial lease")
	}

	a.nowFn = func() time.Time { return now.Add(2 * time.Second) }
	lease2, err := a.Acquire(ctx, "counter/a1", time.Second)
	if err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}
	if lease2 == nil {
		t.Fatal("expected expired lease to be reacquirable")
	}
}

func TestInMemoryAdapterRenewRejectsStaleHolder(t *testing.T) {
	ctx := context.Background()
	a := NewInMemoryAdapter()

	lease, _ := a.Acquire(ctx, "counter/a1", time.Minute)
	_ = a.Release(ctx, lease)
	_, _ = a.Acquire(ctx, "counter/a1", time.Minute) // a new holder takes over

	ok, err := a.Renew(ctx, lease, time.Minute)
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if ok {
		t.Fatal("renew should fail for a lease that is no longer current")
	}
}
