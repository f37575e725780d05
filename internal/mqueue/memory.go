package mqueue

import (
	"context"
	"sync"
	"time"

	"github.com/oriys/actorforge/internal/domain"
)

type pendingItem struct {
	msg        domain.Message
	priority   int
	readyAt    time.Time
	enqueuedAt int64
}

type inflightItem struct {
	queueName string
	msg       domain.Message
	deadline  time.Time
}

type deadLetterItem struct {
	msg    domain.Message
	reason string
}

// InMemoryQueue is the dev/test Message Queue Adapter. A single mutex
// guards every queue; simple over high-throughput, which is the
// expected trade-off for an in-memory driver that should never be
// selected in a production environment.
type InMemoryQueue struct {
	mu          sync.Mutex
	pending     map[string][]*pendingItem
	inflight    map[string]*inflightItem // messageID -> item
	dedup       map[string]struct{}      // queueName+dedupKey -> seen
	deadLetters map[string][]*deadLetterItem
	seq         int64
}

// NewInMemoryQueue creates an empty in-memory queue adapter.
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		pending:     make(map[string][]*pendingItem),
		inflight:    make(map[string]*inflightItem),
		dedup:       make(map[string]struct{}),
		deadLetters: make(map[string][]*deadLetterItem),
	}
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, queueName string, msg domain.Message, opts EnqueueOptions) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if opts.DedupKey != "" {
		dk := queueName + "|" + opts.DedupKey
		if _, seen := q.dedup[dk]; seen {
			return nil
		}
		q.dedup[dk] = struct{}{}
	}

	q.seq++
	item := &pendingItem{
		msg:        msg,
		priority:   opts.Priority,
		readyAt:    time.Now().Add(opts.Delay),
		enqueuedAt: q.seq,
	}
	q.pending[queueName] = append(q.pending[queueName], item)
	return nil
}

// Dequeue returns the highest-priority, earliest-enqueued ready
// message for queueName, or (nil, nil) if none is ready.
func (q *InMemoryQueue) Dequeue(ctx context.Context, queueName string, visibilityTimeout time.Duration) (*domain.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.pending[queueName]
	now := time.Now()

	best := -1
	for i, it := range items {
		if it.readyAt.After(now) {
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		if betterCandidate(it, items[best]) {
			best = i
		}
	}
	if best == -1 {
		return nil, nil
	}

	chosen := items[best]
	q.pending[queueName] = append(items[:best], items[best+1:]...)

	msg := chosen.msg
	q.inflight[msg.MessageID] = &inflightItem{
		queueName: queueName,
		msg:       msg,
		deadline:  now.Add(visibilityTimeout),
	}
	return &msg, nil
}

func betterCandidate(candidate, current *pendingItem) bool {
	if candidate.priority != current.priority {
		return candidate.priority > current.priority
	}
	return candidate.enqueuedAt < current.enqueuedAt
}

func (q *InMemoryQueue) Ack(ctx context.Context, msg *domain.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.inflight, msg.MessageID)
	return nil
}

// Nack returns the message to its origin queue after delay, consuming
// its in-flight slot. If the message was not in flight (already
// acked or redelivered), this is a no-op.
func (q *InMemoryQueue) Nack(ctx context.Context, msg *domain.Message, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	inflight, ok := q.inflight[msg.MessageID]
	if !ok {
		return nil
	}
	delete(q.inflight, msg.MessageID)

	q.seq++
	q.pending[inflight.queueName] = append(q.pending[inflight.queueName], &pendingItem{
		msg:        inflight.msg,
		readyAt:    time.Now().Add(delay),
		enqueuedAt: q.seq,
	})
	return nil
}

func (q *InMemoryQueue) DeadLetter(ctx context.Context, msg *domain.Message, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	inflight, ok := q.inflight[msg.MessageID]
	queueName := "unknown"
	if ok {
		queueName = inflight.queueName
		delete(q.inflight, msg.MessageID)
	}
	q.deadLetters[queueName] = append(q.deadLetters[queueName], &deadLetterItem{msg: *msg, reason: reason})
	return nil
}

func (q *InMemoryQueue) Depth(ctx context.Context, queueName string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[queueName]), nil
}

// DeadLettered returns a snapshot of the dead-letter sink for a queue,
// sorted oldest-first; intended for tests and the inspection CLI, not
// the worker hot path.
func (q *InMemoryQueue) DeadLettered(queueName string) []domain.Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.deadLetters[queueName]
	out := make([]domain.Message, len(items))
	for i, it := range items {
		out[i] = it.msg
	}
	return out
}
