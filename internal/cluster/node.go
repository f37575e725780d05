package cluster

import (
	"time"
)

// NodeState represents the state of a worker node in the cluster.
type NodeState string

const (
	NodeStateActive   NodeState = "active"   // node is healthy and accepting actor placements
	NodeStateInactive NodeState = "inactive" // node is not responding
	NodeStateDrained  NodeState = "drained"  // node is being drained, no new placements
)

// Node represents a worker node participating in the runtime's cluster.
// The registry tracks nodes for routing hints only: the lock adapter's
// lease remains the sole source of truth for where an actor is actually
// activated, per the runtime's placement non-goal.
type Node struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Address       string            `json:"address"` // address workers use to forward sends
	State         NodeState         `json:"state"`
	CPUCores      int               `json:"cpu_cores"`
	MemoryMB      int               `json:"memory_mb"`
	MaxActors     int               `json:"max_actors"`    // capacity this node advertises
	ActiveActors  int               `json:"active_actors"` // actors currently activated here
	QueueDepth    int               `json:"queue_depth"`   // pending messages on this node's worker
	Version       string            `json:"version"`       // runtime build version
	Labels        map[string]string `json:"labels"`
	LastHeartbeat time.Time         `json:"last_heartbeat"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`

	// Resource pressure metrics reported on each heartbeat.
	CPUUsage       float64 `json:"cpu_usage"`       // 0-100
	MemoryUsage    float64 `json:"memory_usage"`    // 0-100
	IOPressure     float64 `json:"io_pressure"`     // 0-100
	MemoryPressure float64 `json:"memory_pressure"` // 0-100
}

// NodeMetrics contains runtime metrics for a node, reported periodically
// by the actor worker running on it.
type NodeMetrics struct {
	NodeID         string    `json:"node_id"`
	CPUUsage       float64   `json:"cpu_usage"`
	MemoryUsage    float64   `json:"memory_usage"`
	ActiveActors   int       `json:"active_actors"`
	QueueDepth     int       `json:"queue_depth"`
	Messages1m     int64     `json:"messages_1m"` // messages processed in the last minute
	AvgLatencyMs   int64     `json:"avg_latency_ms"`
	ErrorRate      float64   `json:"error_rate"` // 0-1
	IOPressure     float64   `json:"io_pressure"`
	MemoryPressure float64   `json:"memory_pressure"`
	Timestamp      time.Time `json:"timestamp"`
}

// NodeHealth contains health check results for a node.
type NodeHealth struct {
	NodeID     string    `json:"node_id"`
	Healthy    bool      `json:"healthy"`
	LastCheck  time.Time `json:"last_check"`
	CheckCount int       `json:"check_count"`
	FailCount  int       `json:"fail_count"`
	Message    string    `json:"message,omitempty"`
}

// IsHealthy reports whether a node is considered healthy based on its
// last heartbeat and declared state.
func (n *Node) IsHealthy(timeout time.Duration) bool {
	if n.State != NodeStateActive {
		return false
	}
	return time.Since(n.LastHeartbeat) < timeout
}

// AvailableCapacity returns the number of additional actors this node can
// accept before reaching its advertised maximum.
func (n *Node) AvailableCapacity() int {
	if n.MaxActors <= 0 {
		return 0
	}
	return n.MaxActors - n.ActiveActors
}

// LoadFactor returns a value 0-1 representing how loaded the node is.
func (n *Node) LoadFactor() float64 {
	if n.MaxActors <= 0 {
		return 1.0
	}
	return float64(n.ActiveActors) / float64(n.MaxActors)
}

// ResourcePressureScore returns a composite pressure score (0-1) from
// CPU, memory and IO pressure. Routing hints prefer nodes with a lower
// score; this never overrides an existing lease.
func (n *Node) ResourcePressureScore() float64 {
	score := (n.CPUUsage*0.4 + n.MemoryUsage*0.35 + n.IOPressure*0.25) / 100.0
	if score > 1.0 {
		return 1.0
	}
	if score < 0 {
		return 0
	}
	return score
}
