// Package statestore implements the State Store Adapter: durable,
// per-actor storage for the ActorRecord (status, opaque state map,
// correlation, timestamps). Concurrent per-key access is serialized
// by the lease held through internal/lock; the store itself adds no
// application-level locking, only optimistic-concurrency guards on
// Save.
package statestore

import (
	"context"

	"github.com/oriys/actorforge/internal/domain"
)

// Store is the State Store Adapter contract (spec §4.2). Save is
// conditional when record.Version is non-zero: it must only succeed
// if the stored version still matches, returning
// domain.ErrVersionConflict otherwise. A zero Version means
// unconditional create-or-overwrite.
type Store interface {
	Save(ctx context.Context, record *domain.ActorRecord) error
	Load(ctx context.Context, actorType, actorID string) (*domain.ActorRecord, error)
	Delete(ctx context.Context, actorType, actorID string) error
	QueryByType(ctx context.Context, actorType string, limit, offset int) ([]*domain.ActorRecord, error)
}
