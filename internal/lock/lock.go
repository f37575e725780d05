// Package lock implements the Lock/Coordination Adapter: the
// distributed mutual-exclusion primitive the Actor Runtime uses to
// enforce single-writer semantics per actor_id. The production driver
// runs SET NX PX against a single Redis instance; no driver here
// coordinates a quorum of independent nodes. The adapter contract
// itself only needs acquire/release/renew.
package lock

import (
	"context"
	"time"

	"github.com/oriys/actorforge/internal/domain"
)

// Adapter is the Lock/Coordination Adapter contract (spec §4.2).
// Acquire returns (nil, nil) — not an error — when the key is already
// held, matching the "already_active_elsewhere" tie-break the worker
// is expected to nack on rather than treat as failure.
type Adapter interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*domain.Lease, error)
	Release(ctx context.Context, lease *domain.Lease) error
	Renew(ctx context.Context, lease *domain.Lease, ttl time.Duration) (bool, error)
}
