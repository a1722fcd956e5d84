// Package registry is the in-memory directory of gateways and workers the
// scheduler uses to pick a dispatch target and the reaper uses to judge
// liveness. The directory is a single process-local struct; there is no
// replication, since one control plane process owns the whole fleet view.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/cuemby/skynet-control/pkg/types"
)

// ErrNoGateway is returned by Select when no gateway qualifies.
var ErrNoGateway = errors.New("no healthy gateway available")

// SchedulerWorkerID is the well-known worker id the control-plane
// scheduler registers under; the reaper always considers it healthy.
const SchedulerWorkerID = "skynet-control-scheduler"

// Registry is a single mutex-guarded directory of gateways and workers.
// Reads copy records out; selection is O(N) over gateways, which number
// in the tens.
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]*types.Gateway
	workers  map[string]*types.Worker
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		gateways: make(map[string]*types.Gateway),
		workers:  make(map[string]*types.Worker),
	}
}

// RegisterGateway inserts or refreshes a gateway. Re-registration updates
// fields in place without losing registered_at.
func (r *Registry) RegisterGateway(g *types.Gateway) *types.Gateway {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if existing, ok := r.gateways[g.GatewayID]; ok {
		existing.Host = g.Host
		existing.Capabilities = g.Capabilities
		if g.Status != "" {
			existing.Status = g.Status
		}
		existing.Metadata = g.Metadata
		existing.LastHeartbeat = now
		out := *existing
		return &out
	}

	if g.Status == "" {
		g.Status = types.GatewayOnline
	}
	g.RegisteredAt = now
	g.LastHeartbeat = now
	r.gateways[g.GatewayID] = g
	out := *g
	return &out
}

// HeartbeatGateway refreshes last_heartbeat and optionally updates status.
func (r *Registry) HeartbeatGateway(id string, status types.GatewayStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.gateways[id]
	if !ok {
		return false
	}
	g.LastHeartbeat = time.Now()
	if status != "" {
		g.Status = status
	}
	return true
}

// ListGateways returns a copy of every registered gateway.
func (r *Registry) ListGateways() []*types.Gateway {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.Gateway, 0, len(r.gateways))
	for _, g := range r.gateways {
		cp := *g
		out = append(out, &cp)
	}
	return out
}

// GetGateway returns a copy of one gateway, or nil if unknown.
func (r *Registry) GetGateway(id string) *types.Gateway {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.gateways[id]
	if !ok {
		return nil
	}
	cp := *g
	return &cp
}

// Select implements the gateway-selection algorithm: prefer the given
// gateway id if it is selectable, else the most recently heartbeated
// selectable gateway, else ErrNoGateway.
func (r *Registry) Select(preferred string) (*types.Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if preferred != "" {
		if g, ok := r.gateways[preferred]; ok && g.Status.Selectable() {
			cp := *g
			return &cp, nil
		}
	}

	var best *types.Gateway
	for _, g := range r.gateways {
		if !g.Status.Selectable() {
			continue
		}
		if best == nil || g.LastHeartbeat.After(best.LastHeartbeat) {
			best = g
		}
	}
	if best == nil {
		return nil, ErrNoGateway
	}
	cp := *best
	return &cp, nil
}

// RegisterWorker inserts or refreshes a worker. Always succeeds
// in-memory; mirroring to the persistent store is the caller's concern
// and is best-effort.
func (r *Registry) RegisterWorker(w *types.Worker) *types.Worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if existing, ok := r.workers[w.WorkerID]; ok {
		existing.GatewayID = w.GatewayID
		existing.Capabilities = w.Capabilities
		if w.Status != "" {
			existing.Status = w.Status
		}
		existing.Capacity = w.Capacity
		existing.Metadata = w.Metadata
		existing.LastHeartbeat = now
		out := *existing
		return &out
	}

	if w.Status == "" {
		w.Status = types.WorkerOnline
	}
	w.RegisteredAt = now
	w.LastHeartbeat = now
	r.workers[w.WorkerID] = w
	out := *w
	return &out
}

// ListWorkers returns a copy of every registered worker.
func (r *Registry) ListWorkers() []*types.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.Worker, 0, len(r.workers))
	for _, w := range r.workers {
		cp := *w
		out = append(out, &cp)
	}
	return out
}

// WorkerHealthy reports whether workerID looks alive. The scheduler's own
// well-known worker id is always considered healthy.
func (r *Registry) WorkerHealthy(workerID string) bool {
	if workerID == SchedulerWorkerID {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.workers[workerID]
	if !ok {
		return false
	}
	return w.Status.Healthy()
}
