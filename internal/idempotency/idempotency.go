// Package idempotency implements the Idempotency Store: the adapter
// the Activity Executor consults before invoking an activity that
// carries an idempotency_key, giving exactly-once effects for
// activities that opt in (spec §7, "strict exactly-once").
package idempotency

import "context"

// Record is one cached effect result, keyed by idempotency key.
type Record struct {
	Key        string                 `json:"key"`
	ActorID    string                 `json:"actor_id"`
	Result     map[string]interface{} `json:"result"`
	ExecutedAt int64                  `json:"executed_at"`
	ExpiresAt  int64                  `json:"expires_at"`
	MessageID  string                 `json:"message_id,omitempty"`
}

// Store is the Idempotency Store contract (spec §4.2).
type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	Set(ctx context.Context, record *Record) error
	Delete(ctx context.Context, key string) error
	Cleanup(ctx context.Context, nowMs int64) (int, error)
}
