// Package mqueue implements the Message Queue Adapter: per-actor FIFO
// delivery with priority, delayed visibility, dedup-on-enqueue, and
// the ack/nack/dead-letter lifecycle the Actor Worker drives.
package mqueue

import (
	"context"
	"time"

	"github.com/oriys/actorforge/internal/domain"
)

// EnqueueOptions configures one Enqueue call. A zero value enqueues
// immediately at default priority with no dedup.
type EnqueueOptions struct {
	Priority int
	Delay    time.Duration
	DedupKey string
}

// Queue is the Message Queue Adapter contract (spec §4.1). Ordering
// is strict FIFO per actor_id within a queue name; cross-actor
// ordering is not guaranteed. Dequeue does not block: it returns
// (nil, nil) at once when no message is ready, so callers poll it in
// a loop.
type Queue interface {
	Enqueue(ctx context.Context, queueName string, msg domain.Message, opts EnqueueOptions) error
	Dequeue(ctx context.Context, queueName string, visibilityTimeout time.Duration) (*domain.Message, error)
	Ack(ctx context.Context, msg *domain.Message) error
	Nack(ctx context.Context, msg *domain.Message, delay time.Duration) error
	DeadLetter(ctx context.Context, msg *domain.Message, reason string) error
	Depth(ctx context.Context, queueName string) (int, error)
}
