package domain

// MessageType enumerates the kinds of message the worker dispatches
// on. Each drives a distinct method on the Actor Engine.
type MessageType string

const (
	MessageExecute          MessageType = "execute"
	MessageActivityComplete MessageType = "activity_completed"
	MessageActivityFailed   MessageType = "activity_failed"
	MessageEvent            MessageType = "event"
	MessageRetry            MessageType = "retry"
	MessageTimer            MessageType = "timer"
)

// TraceContext carries distributed-tracing identifiers across the
// queue boundary so a consumer span can be linked to its producer.
type TraceContext struct {
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// MessageMetadata carries queue-level bookkeeping that travels with
// the message but is not part of the actor-visible payload.
type MessageMetadata struct {
	Timestamp         int64  `json:"timestamp"`
	Priority          int    `json:"priority,omitempty"`
	TTLMillis         int64  `json:"ttl,omitempty"`
	RetryCount        int    `json:"retry_count,omitempty"`
	MaxRetries        int    `json:"max_retries,omitempty"`
	OriginalMessageID string `json:"original_message_id,omitempty"`
}

// Message is the unit of work delivered by the message queue adapter
// to an actor worker.
type Message struct {
	MessageID     string                 `json:"message_id"`
	ActorID       string                 `json:"actor_id"`
	ActorType     string                 `json:"actor_type"`
	MessageType   MessageType            `json:"message_type"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	Trace         TraceContext           `json:"trace,omitempty"`
	Metadata      MessageMetadata        `json:"metadata"`
}

// Expired reports whether the message's TTL, if any, has elapsed by
// nowMs. A zero TTL means the message never expires.
func (m Message) Expired(nowMs int64) bool {
	if m.Metadata.TTLMillis <= 0 {
		return false
	}
	return nowMs >= m.Metadata.Timestamp+m.Metadata.TTLMillis
}
