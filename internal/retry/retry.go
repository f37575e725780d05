// Package retry implements the Retry Handler: backoff scheduling for
// both message redelivery and in-process activity retries, and the
// routing decision between another attempt and the dead-letter sink.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/oriys/actorforge/internal/domain"
	"github.com/oriys/actorforge/internal/mqueue"
)

// Backoff computes the delay for retry attempt n (1-indexed) under
// policy: min(initial*multiplier^(n-1), max) with +/-25% jitter, per
// the retry-backoff invariant.
func Backoff(policy domain.RetryPolicy, attempt int) time.Duration {
	initial := policy.InitialDelayMs
	if initial <= 0 {
		initial = 1000
	}
	maxDelay := policy.MaxDelayMs
	if maxDelay <= 0 {
		maxDelay = 60000
	}
	if maxDelay < initial {
		maxDelay = initial
	}
	multiplier := policy.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	if attempt < 1 {
		attempt = 1
	}

	ms := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if ms > float64(maxDelay) {
		ms = float64(maxDelay)
	}

	jitter := 0.75 + rand.Float64()*0.5 // uniform in [0.75, 1.25]
	return time.Duration(ms*jitter) * time.Millisecond
}

// Handler routes a failed message to either redelivery (via the
// message queue adapter's Nack) or the dead-letter sink, based on the
// message's accumulated retry count against policy.
type Handler struct {
	queue mqueue.Queue
}

// New creates a retry handler bound to the message queue adapter it
// schedules redeliveries through.
func New(queue mqueue.Queue) *Handler {
	return &Handler{queue: queue}
}

// HandleFailure implements the worker's exhaustion routing: if the
// message's retry count is still under policy.MaxRetries, it is
// nacked with the computed backoff delay; otherwise it is
// dead-lettered with err's message attached as the failure reason.
func (h *Handler) HandleFailure(ctx context.Context, msg *domain.Message, failErr error, policy domain.RetryPolicy) error {
	attempt := msg.Metadata.RetryCount + 1
	if attempt > policy.MaxRetries {
		return h.queue.DeadLetter(ctx, msg, failErr.Error())
	}

	msg.Metadata.RetryCount = attempt
	delay := Backoff(policy, attempt)
	return h.queue.Nack(ctx, msg, delay)
}

// WithRetry runs op in-process, retrying on error per policy with the
// same backoff curve as HandleFailure. Used by the Activity Executor,
// which retries a single invocation synchronously rather than
// round-tripping through the queue.
func WithRetry(ctx context.Context, policy domain.RetryPolicy, op func(ctx context.Context) error) error {
	var lastErr error
	maxAttempts := policy.MaxRetries + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		delay := Backoff(policy, attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
