// Package jobtracker maintains in-memory progress for long-running
// activity executions, so a caller polling an actor's status can see
// incremental progress without waiting for the activity to suspend or
// complete. It is a convenience layer on top of the activity executor,
// not a source of truth: nothing here survives a process restart.
package jobtracker

import (
	"sync"
	"time"
)

// Progress represents the current progress of a long-running activity
// execution.
type Progress struct {
	ExecutionID string    `json:"execution_id"`
	Percent     int       `json:"percent"` // 0-100
	Message     string    `json:"message"`
	Phase       string    `json:"phase"` // e.g. "compiling", "executing", "finalizing"
	UpdatedAt   time.Time `json:"updated_at"`
	HeartbeatAt time.Time `json:"heartbeat_at"`
}

// Tracker maintains in-memory progress for long-running activity
// executions, keyed by execution ID (the worker uses the activity
// request's ActivityID).
type Tracker struct {
	mu       sync.RWMutex
	progress map[string]*Progress
	ttl      time.Duration
	maxSize  int
}

// New creates a new progress tracker.
func New(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	t := &Tracker{
		progress: make(map[string]*Progress),
		ttl:      ttl,
		maxSize:  10000,
	}
	go t.cleanupLoop()
	return t
}

// Update sets the progress for an execution.
func (t *Tracker) Update(executionID string, percent int, message, phase string) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.progress[executionID]
	if !ok {
		if t.maxSize > 0 && len(t.progress) >= t.maxSize {
			return
		}
		p = &Progress{ExecutionID: executionID}
		t.progress[executionID] = p
	}
	p.Percent = percent
	p.Message = message
	p.Phase = phase
	p.UpdatedAt = now
	p.HeartbeatAt = now
}

// Heartbeat updates the heartbeat timestamp without changing progress.
func (t *Tracker) Heartbeat(executionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.progress[executionID]; ok {
		p.HeartbeatAt = time.Now()
	}
}

// Get returns the progress for an execution, or nil if not tracked.
func (t *Tracker) Get(executionID string) *Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.progress[executionID]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// Remove deletes the progress entry for an execution.
func (t *Tracker) Remove(executionID string) {
	t.mu.Lock()
	delete(t.progress, executionID)
	t.mu.Unlock()
}

// IsStale reports whether the execution's heartbeat is older than timeout.
func (t *Tracker) IsStale(executionID string, timeout time.Duration) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.progress[executionID]
	if !ok {
		return true
	}
	return time.Since(p.HeartbeatAt) > timeout
}

// ListActive returns all currently tracked progress entries.
func (t *Tracker) ListActive() []*Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Progress, 0, len(t.progress))
	for _, p := range t.progress {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// cleanupLoop periodically removes stale progress entries.
func (t *Tracker) cleanupLoop() {
	ticker := time.NewTicker(t.ttl / 2)
	defer ticker.Stop()

	for range ticker.C {
		t.mu.Lock()
		now := time.Now()
		for id, p := range t.progress {
			if now.Sub(p.HeartbeatAt) > t.ttl {
				delete(t.progress, id)
			}
		}
		t.mu.Unlock()
	}
}
