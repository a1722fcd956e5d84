package metrics

import (
	"context"
	"time"

	"github.com/cuemby/skynet-control/pkg/registry"
	"github.com/cuemby/skynet-control/pkg/types"
)

// taskStatuses enumerates every status TasksTotal reports a gauge for.
var taskStatuses = []types.TaskStatus{
	types.TaskQueued,
	types.TaskClaimed,
	types.TaskRunning,
	types.TaskSucceeded,
	types.TaskFailed,
	types.TaskReleased,
	types.TaskFailedTimeout,
}

// maxCountedTasks bounds how many rows of one status collect() will read
// per status per tick; enough headroom for the scale this queue targets.
const maxCountedTasks = 100000

// TaskLister is the slice of the task queue the collector reads. Taking
// an interface here keeps this package free of a dependency on the queue
// package, which itself records counters defined in this one.
type TaskLister interface {
	ListTasks(ctx context.Context, status string, limit int) ([]*types.Task, error)
}

// Collector periodically snapshots the queue and registry into the
// TasksTotal, GatewaysTotal, and WorkersTotal gauges.
type Collector struct {
	queue    TaskLister
	registry *registry.Registry
	stopCh   chan struct{}
}

// NewCollector creates a metrics collector.
func NewCollector(q TaskLister, reg *registry.Registry) *Collector {
	return &Collector{
		queue:    q,
		registry: reg,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting on a 15s ticker.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx := context.Background()
	c.collectTaskMetrics(ctx)
	c.collectRegistryMetrics()
}

func (c *Collector) collectTaskMetrics(ctx context.Context) {
	for _, status := range taskStatuses {
		tasks, err := c.queue.ListTasks(ctx, string(status), maxCountedTasks)
		if err != nil {
			continue
		}
		TasksTotal.WithLabelValues(string(status)).Set(float64(len(tasks)))
	}
}

func (c *Collector) collectRegistryMetrics() {
	gatewayCounts := make(map[types.GatewayStatus]int)
	for _, g := range c.registry.ListGateways() {
		gatewayCounts[g.Status]++
	}
	for status, count := range gatewayCounts {
		GatewaysTotal.WithLabelValues(string(status)).Set(float64(count))
	}

	workerCounts := make(map[types.WorkerStatus]int)
	for _, w := range c.registry.ListWorkers() {
		workerCounts[w.Status]++
	}
	for status, count := range workerCounts {
		WorkersTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}
