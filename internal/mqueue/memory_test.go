package mqueue

import (
	"context"
	"testing"
	"time"

	"github.com/oriys/actorforge/internal/domain"
)

func TestInMemoryQueueFIFOOrdering(t *testing.T) {
	ctx := context.Background()
	q := NewInMemoryQueue()

	_ = q.Enqueue(ctx, "actor:counter", domain.Message{MessageID: "m1"}, EnqueueOptions{})
	_ = q.Enqueue(ctx, "actor:counter", domain.Message{MessageID: "m2"}, EnqueueOptions{})

	first, err := q.Dequeue(ctx, "actor:counter", time.Minute)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if first == nil || first.MessageID != "m1" {
		t.Fatalf("expected m1 first, got %+v", first)
	}

	second, _ := q.Dequeue(ctx, "actor:counter", time.Minute)
	if second == nil || second.MessageID != "m2" {
		t.Fatalf("expected m2 second, got %+v", second)
	}
}

func TestInMemoryQueuePriorityOrdering(t *testing.T) {
	ctx := context.Background()
	q := NewInMemoryQueue()

	_ = q.Enqueue(ctx, "q", domain.Message{MessageID: "low"}, EnqueueOptions{Priority: 0})
	_ = q.Enqueue(ctx, "q", domain.Message{MessageID: "high"}, EnqueueOptions{Priority: 10})

	msg, err := q.Dequeue(ctx, "q", time.Minute)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if msg.MessageID != "high" {
		t.Fatalf("expected higher priority message first, got %s", msg.MessageID)
	}
}

func TestInMemoryQueueDelayDefersVisibility(t *testing.T) {
	ctx := context.Background()
	q := NewInMemoryQueue()

	_ = q.Enqueue(ctx, "q", domain.Message{MessageID: "m1"}, EnqueueOptions{Delay: time.Hour})

	msg, err := q.Dequeue(ctx, "q", time.Minute)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if msg != nil {
		t.Fatal("expected no message ready before delay elapses")
	}
}

func TestInMemoryQueueDedupKeyDeliversOnce(t *testing.T) {
	ctx := context.Background()
	q := NewInMemoryQueue()

	for i := 0; i < 2; i++ {
		if err := q.Enqueue(ctx, "q", domain.Message{MessageID: "m1"}, EnqueueOptions{DedupKey: "dedup-1"}); err != nil {
			t.Fatalf("Enqueue[%d]: %v", i, err)
		}
	}

	depth, err := q.Depth(ctx, "q")
	if err != nil {
		t.Fatalf("Depth: %v", err)
	}
	if depth != 1 {
		t.Fatalf("depth = %d, want 1 (dedup should suppress the second enqueue)", depth)
	}
}

func TestInMemoryQueueNackRedeliversAfterDelay(t *testing.T) {
	ctx := context.Background()
	q := NewInMemoryQueue()

	_ = q.Enqueue(ctx, "q", domain.Message{MessageID: "m1"}, EnqueueOptions{})
	msg, _ := q.Dequeue(ctx, "q", time.Minute)

	if err := q.Nack(ctx, msg, 0); err != nil {
		t.Fatalf("Nack: %v", err)
	}

	redelivered, err := q.Dequeue(ctx, "q", time.Minute)
	if err != nil {
		t.Fatalf("Dequeue after nack: %v", err)
	}
	if redelivered == nil || redelivered.MessageID != "m1" {
		t.Fatalf("expected nacked message to be redelivered, got %+v", redelivered)
	}
}

func TestInMemoryQueueDeadLetter(t *testing.T) {
	ctx := context.Background()
	q := NewInMemoryQueue()

	_ = q.Enqueue(ctx, "q", domain.Message{MessageID: "m1"}, EnqueueOptions{})
	msg, _ := q.Dequeue(ctx, "q", time.Minute)

	if err := q.DeadLetter(ctx, msg, "max retries exceeded"); err != nil {
		t.Fatalf("DeadLetter: %v", err)
	}

	dead := q.DeadLettered("q")
	if len(dead) != 1 || dead[0].MessageID != "m1" {
		t.Fatalf("unexpected dead letters: %+v", dead)
	}

	if again, _ := q.Dequeue(ctx, "q", time.Minute); again != nil {
		t.Fatalf("dead-lettered message should not be redelivered, got %+v", again)
	}
}
