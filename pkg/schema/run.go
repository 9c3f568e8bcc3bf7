package schema

import "time"

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// LogEntry records a single node invocation within a run. Entries are
// append-only and strictly ordered by invocation sequence.
type LogEntry struct {
	Node       string    `json:"node"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	Status     string    `json:"status"` // success | error
	Error      string    `json:"error,omitempty"`
}

// Log entry status values.
const (
	LogStatusSuccess = "success"
	LogStatusError   = "error"
)

// Event type constants published to the streaming hub.
const (
	EventRunStarted    = "run_started"
	EventRunCompleted  = "run_completed"
	EventRunFailed     = "run_failed"
	EventNodeStarted   = "node_started"
	EventNodeCompleted = "node_completed"
	EventNodeFailed    = "node_failed"
)
