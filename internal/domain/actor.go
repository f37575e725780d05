// Package domain holds the wire and storage shapes shared by every
// adapter and engine package: actor identity, messages, journal
// entries, snapshots, activity definitions and leases. Nothing in
// here talks to a store or a broker; it is the vocabulary the rest of
// the runtime is built from.
package domain

import "fmt"

// ActorID identifies a single durable actor instance. Two actors with
// the same Type but different ID are unrelated; the pair is the unit
// of single-writer enforcement throughout the runtime.
type ActorID struct {
	Type string `json:"actor_type"`
	ID   string `json:"actor_id"`
}

// String renders the identity as "type/id", the form used in lease
// keys, log lines and store partition keys.
func (a ActorID) String() string {
	return fmt.Sprintf("%s/%s", a.Type, a.ID)
}

// ActorStatus is the lifecycle status persisted alongside actor
// state, per the state persistence format.
type ActorStatus string

const (
	ActorStatusActive    ActorStatus = "active"
	ActorStatusSuspended ActorStatus = "suspended"
	ActorStatusCompleted ActorStatus = "completed"
	ActorStatusFailed    ActorStatus = "failed"
)

// ActorRecord is the persisted shape of one actor as held by the
// state store adapter.
type ActorRecord struct {
	ID              string                 `json:"id"`
	PartitionKey    string                 `json:"partition_key"`
	ActorType       string                 `json:"actor_type"`
	Status          ActorStatus            `json:"status"`
	State           map[string]interface{} `json:"state"`
	CorrelationID   string                 `json:"correlation_id,omitempty"`
	CreatedAt       int64                  `json:"created_at"`
	LastActivatedAt int64                  `json:"last_activated_at"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	Version         int64                  `json:"version"`
}

// Lease grants one worker process the exclusive right to run a given
// actor for a bounded time. TTL is nominally 30s with renewal at
// roughly a third of that.
type Lease struct {
	ActorID   string `json:"actor_id"`
	LeaseID   string `json:"lease_id"`
	ExpiresAt int64  `json:"expires_at"` // unix millis
}

// Expired reports whether the lease has passed its expiry at nowMs.
func (l Lease) Expired(nowMs int64) bool {
	return nowMs >= l.ExpiresAt
}
