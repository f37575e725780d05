package domain

// ResourceLimits describes one activity invocation's sandbox: linear
// memory size and wall-clock execution time. The Activity Executor
// uses MaxExecutionMs as the invocation context's deadline. It does
// not cap linear memory at MaxMemoryMB: it grows the module's memory
// by that many pages' worth and sets no upper bound.
type ResourceLimits struct {
	MaxMemoryMB    int `json:"max_memory_mb"`
	MaxExecutionMs int `json:"max_execution_ms"`
}

// ActivityDefinition describes one registered, versioned WASM
// activity: where its compiled module lives in blob storage, and the
// resource envelope it must run inside.
type ActivityDefinition struct {
	Name         string         `json:"name"`
	Version      string         `json:"version"`
	BlobPath     string         `json:"blob_path"`
	Limits       ResourceLimits `json:"limits"`
	Capabilities []string       `json:"capabilities,omitempty"`
}

// ActivityRequest is the payload an actor records when it suspends on
// call_activity: enough to re-invoke the named activity and to match
// the eventual activity_completed/activity_failed entry back to this
// invocation.
type ActivityRequest struct {
	ActivityID     string                 `json:"activity_id"`
	ActivityName   string                 `json:"activity_name"`
	Input          map[string]interface{} `json:"input"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty"`
}

// EventRequest is the payload an actor records when it suspends on
// await_event.
type EventRequest struct {
	EventType string `json:"event_type"`
}
