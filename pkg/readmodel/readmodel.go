package readmodel

import (
	"context"
	"time"

	"github.com/cuemby/skynet-control/pkg/queue"
	"github.com/cuemby/skynet-control/pkg/registry"
	"github.com/cuemby/skynet-control/pkg/types"
)

// maxAssignments bounds how many active assignment rows a single query
// returns.
const maxAssignments = 500

// ReadModel answers observability queries against a Queue/Registry pair.
type ReadModel struct {
	queue    *queue.Queue
	registry *registry.Registry
}

// New creates a ReadModel.
func New(q *queue.Queue, reg *registry.Registry) *ReadModel {
	return &ReadModel{queue: q, registry: reg}
}

// NextTaskPreview wraps Peek with the caller's agent id attached. Advisory
// only; the returned task may already be claimed by the time the caller
// acts on it.
type NextTaskPreview struct {
	Eligible bool        `json:"eligible"`
	AgentID  string      `json:"agent_id"`
	Task     *types.Task `json:"task,omitempty"`
}

func (rm *ReadModel) NextTaskPreview(ctx context.Context, agentID string) (*NextTaskPreview, error) {
	task, err := rm.queue.Peek(ctx)
	if err != nil {
		return nil, err
	}
	return &NextTaskPreview{Eligible: task != nil, AgentID: agentID, Task: task}, nil
}

// Assignment is one row of the active-assignments join.
type Assignment struct {
	AgentID    string `json:"agent_id"`
	TaskID     string `json:"task_id"`
	Action     string `json:"action"`
	Status     string `json:"status"`
	LockedAt   string `json:"locked_at,omitempty"`
	GatewayID  string `json:"gateway_id,omitempty"`
	ClaimToken string `json:"claim_token,omitempty"`
}

// ActiveAssignments joins claimed/running tasks against the registry,
// limited to maxAssignments rows.
func (rm *ReadModel) ActiveAssignments(ctx context.Context) ([]*Assignment, error) {
	tasks, err := rm.queue.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Assignment, 0, len(tasks))
	for i, t := range tasks {
		if i >= maxAssignments {
			break
		}
		a := &Assignment{
			AgentID:    t.LockedBy,
			TaskID:     t.ID,
			Action:     t.Action,
			Status:     string(t.Status),
			GatewayID:  t.GatewayID,
			ClaimToken: t.ClaimToken,
		}
		if t.LockedAt != nil {
			a.LockedAt = t.LockedAt.Format(time.RFC3339)
		}
		out = append(out, a)
	}
	return out, nil
}

// TaskEvents lists events for an optional taskID filter, since a
// timestamp, ordered ascending, paginated via limit.
func (rm *ReadModel) TaskEvents(ctx context.Context, taskID string, since time.Time, limit int) ([]*types.TaskEvent, error) {
	return rm.queue.ListEvents(ctx, taskID, since, limit)
}

// FileOwnership returns the current ownership snapshot ordered by path.
func (rm *ReadModel) FileOwnership(ctx context.Context) ([]*types.FileOwnership, error) {
	return rm.queue.ListOwnership(ctx)
}

// SystemState is a snapshot of the gateway/worker registries.
type SystemState struct {
	GatewayCount int              `json:"gateway_count"`
	WorkerCount  int              `json:"worker_count"`
	Gateways     []*types.Gateway `json:"gateways"`
	Workers      []*types.Worker  `json:"workers"`
	GeneratedAt  time.Time        `json:"generated_at"`
}

// SystemState returns a snapshot of the registries.
func (rm *ReadModel) SystemState() *SystemState {
	gws := rm.registry.ListGateways()
	workers := rm.registry.ListWorkers()
	return &SystemState{
		GatewayCount: len(gws),
		WorkerCount:  len(workers),
		Gateways:     gws,
		Workers:      workers,
		GeneratedAt:  time.Now(),
	}
}
