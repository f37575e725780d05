// Package journalstore implements the Journal Store Adapter: the
// append-only, per-actor event log the Actor Engine replays to
// reconstruct state, plus the snapshot/trim pair that bounds replay
// cost once a journal grows past the compaction threshold.
package journalstore

import (
	"context"

	"github.com/oriys/actorforge/internal/domain"
)

// Store is the Journal Store Adapter contract (spec §4.2). Reads
// return defensive copies: mutating the returned Journal must never
// affect the store's own records.
type Store interface {
	Append(ctx context.Context, actorType, actorID string, entry domain.JournalEntry) error
	Read(ctx context.Context, actorType, actorID string, sinceCursor int64) (domain.Journal, error)
	SaveSnapshot(ctx context.Context, actorType, actorID string, snapshot domain.Snapshot) error
	LatestSnapshot(ctx context.Context, actorType, actorID string) (*domain.Snapshot, error)
	Trim(ctx context.Context, actorType, actorID string, beforeCursor int64) error
	Delete(ctx context.Context, actorType, actorID string) error
}
