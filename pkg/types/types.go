package types

import (
	"encoding/json"
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskQueued        TaskStatus = "queued"
	TaskClaimed       TaskStatus = "claimed"
	TaskRunning       TaskStatus = "running"
	TaskSucceeded     TaskStatus = "succeeded"
	TaskFailed        TaskStatus = "failed"
	TaskReleased      TaskStatus = "released"
	TaskFailedTimeout TaskStatus = "failed_timeout"
)

// CanonicalTaskStatus maps interchangeable aliases onto the canonical
// status names. Unknown values pass through unchanged so callers can
// still reject them as invalid.
func CanonicalTaskStatus(s string) TaskStatus {
	switch s {
	case "pending":
		return TaskQueued
	case "completed":
		return TaskSucceeded
	default:
		return TaskStatus(s)
	}
}

// IsReady reports whether a task in this status is eligible to be claimed.
func (s TaskStatus) IsReady() bool {
	return s == TaskQueued || s == TaskReleased
}

// IsActive reports whether a task in this status currently holds a lock.
func (s TaskStatus) IsActive() bool {
	return s == TaskClaimed || s == TaskRunning
}

// IsTerminal reports whether this status can never transition again.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskSucceeded || s == TaskFailed || s == TaskFailedTimeout
}

// Task is the unit of work tracked by the queue.
type Task struct {
	ID            string          `json:"id"`
	Action        string          `json:"action"`
	Params        json.RawMessage `json:"params,omitempty"`
	Status        TaskStatus      `json:"status"`
	Priority      int             `json:"priority"`
	Dependencies  []string        `json:"dependencies,omitempty"`
	Dependents    []string        `json:"dependents,omitempty"`
	RequiredFiles []string        `json:"required_files,omitempty"`
	GatewayID     string          `json:"gateway_id,omitempty"`

	LockedBy   string     `json:"locked_by,omitempty"`
	LockedAt   *time.Time `json:"locked_at,omitempty"`
	ClaimToken string     `json:"claim_token,omitempty"`

	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// GatewayStatus is the health state of a remote execution gateway.
type GatewayStatus string

const (
	GatewayOnline   GatewayStatus = "online"
	GatewayHealthy  GatewayStatus = "healthy"
	GatewayDegraded GatewayStatus = "degraded"
	GatewayOffline  GatewayStatus = "offline"
)

// Selectable reports whether this status qualifies for gateway selection.
func (s GatewayStatus) Selectable() bool {
	return s == GatewayOnline || s == GatewayHealthy
}

// Gateway is a remote HTTP endpoint capable of executing actions.
type Gateway struct {
	GatewayID     string            `json:"gateway_id"`
	Host          string            `json:"host"`
	Capabilities  []string          `json:"capabilities,omitempty"`
	Status        GatewayStatus     `json:"status"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	RegisteredAt  time.Time         `json:"registered_at"`
	LastHeartbeat time.Time         `json:"last_heartbeat"`
}

// WorkerStatus is the liveness state of a worker identity.
type WorkerStatus string

const (
	WorkerOnline  WorkerStatus = "online"
	WorkerHealthy WorkerStatus = "healthy"
	WorkerRunning WorkerStatus = "running"
	WorkerBusy    WorkerStatus = "busy"
	WorkerOffline WorkerStatus = "offline"
)

// Healthy reports whether a worker in this status is considered alive by
// the reaper's liveness check.
func (s WorkerStatus) Healthy() bool {
	switch s {
	case WorkerOnline, WorkerHealthy, WorkerRunning, WorkerBusy:
		return true
	default:
		return false
	}
}

// Worker is a logical identity allowed to claim tasks.
type Worker struct {
	WorkerID      string            `json:"worker_id"`
	GatewayID     string            `json:"gateway_id,omitempty"`
	Capabilities  []string          `json:"capabilities,omitempty"`
	Status        WorkerStatus      `json:"status"`
	Capacity      json.RawMessage   `json:"capacity,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	RegisteredAt  time.Time         `json:"registered_at"`
	LastHeartbeat time.Time         `json:"last_heartbeat"`
}

// FileOwnership is one exclusivity lock row on an opaque path, held by the
// active task that currently owns it.
type FileOwnership struct {
	FilePath   string    `json:"file_path"`
	TaskID     string    `json:"task_id"`
	ClaimToken string    `json:"claim_token"`
	ClaimedAt  time.Time `json:"claimed_at"`
}

// TaskEvent is one append-only row in a task's history.
type TaskEvent struct {
	ID         int64           `json:"id"`
	TaskID     string          `json:"task_id"`
	EventType  string          `json:"event_type"`
	FromStatus string          `json:"from_status,omitempty"`
	ToStatus   string          `json:"to_status,omitempty"`
	WorkerID   string          `json:"worker_id,omitempty"`
	ClaimToken string          `json:"claim_token,omitempty"`
	Message    string          `json:"message,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// GatewayActionRequest is the body sent to a gateway's POST /action endpoint.
type GatewayActionRequest struct {
	Action         string          `json:"action"`
	Params         json.RawMessage `json:"params,omitempty"`
	Confirmed      bool            `json:"confirmed"`
	TaskID         string          `json:"task_id,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// GatewayActionResult is the inner result object a gateway returns on success.
type GatewayActionResult struct {
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	ReturnCode *int   `json:"returncode,omitempty"`
}

// GatewayActionResponse is the body a gateway returns from POST /action.
type GatewayActionResponse struct {
	Status string               `json:"status"`
	Result *GatewayActionResult `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// GatewayStatusResponse is the body a gateway returns from GET /status.
type GatewayStatusResponse struct {
	AgentConnected bool `json:"agent_connected"`
}

// MaxErrorLen bounds the error string persisted on a terminal transition.
const MaxErrorLen = 2000

// TruncateError bounds an error message to the persisted limit.
func TruncateError(msg string) string {
	if len(msg) <= MaxErrorLen {
		return msg
	}
	return msg[:MaxErrorLen]
}
