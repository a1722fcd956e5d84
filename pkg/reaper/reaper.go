package reaper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/skynet-control/pkg/gatewayclient"
	"github.com/cuemby/skynet-control/pkg/log"
	"github.com/cuemby/skynet-control/pkg/metrics"
	"github.com/cuemby/skynet-control/pkg/queue"
	"github.com/cuemby/skynet-control/pkg/registry"
)

// DefaultPollInterval is the cycle interval between stale-lock scans.
const DefaultPollInterval = 15 * time.Second

// DefaultTTL is the default lock age past which a claim is stale.
const DefaultTTL = 300 * time.Second

// Reaper scans for stale locks and releases or fails them per the
// worker/gateway health decision table.
type Reaper struct {
	queue         *queue.Queue
	registry      *registry.Registry
	gatewayClient *gatewayclient.Client
	ttl           time.Duration
	pollInterval  time.Duration
	logger        zerolog.Logger
	stopCh        chan struct{}
	doneCh        chan struct{}
}

// New creates a reaper. ttl and pollInterval default when zero.
func New(q *queue.Queue, reg *registry.Registry, gc *gatewayclient.Client, ttl, pollInterval time.Duration) *Reaper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Reaper{
		queue:         q,
		registry:      reg,
		gatewayClient: gc,
		ttl:           ttl,
		pollInterval:  pollInterval,
		logger:        log.WithComponent("reaper"),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start begins the scan loop in a background goroutine.
func (r *Reaper) Start() {
	go r.run()
}

// Stop signals the loop to exit after its current cycle and waits for it.
func (r *Reaper) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Reaper) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.logger.Info().Msg("reaper started")

	for {
		select {
		case <-ticker.C:
			if err := r.scan(context.Background()); err != nil {
				r.logger.Error().Err(err).Msg("stale-lock scan failed")
			}
		case <-r.stopCh:
			r.logger.Info().Msg("reaper stopped")
			return
		}
	}
}

// scan performs one stale-lock scan cycle.
func (r *Reaper) scan(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReaperCycleDuration)

	stale, err := r.queue.StaleLockScan(ctx, r.ttl)
	if err != nil {
		return err
	}

	for _, task := range stale {
		r.reap(ctx, task.ID, task.GatewayID, task.LockedBy, task.ClaimToken)
	}
	return nil
}

func (r *Reaper) reap(ctx context.Context, taskID, gatewayID, workerID, claimToken string) {
	taskLog := r.logger.With().Str("task_id", taskID).Str("worker_id", workerID).Logger()

	workerHealthy := r.registry.WorkerHealthy(workerID)
	gatewayHealthy := r.gatewayHealthy(ctx, gatewayID)

	if workerHealthy && gatewayHealthy {
		ok, err := r.queue.Release(ctx, taskID, workerID, claimToken, "stale lock detected", true)
		if err != nil {
			taskLog.Error().Err(err).Msg("failed to release stale lock")
			return
		}
		if ok {
			metrics.StaleLocksReleasedTotal.Inc()
			taskLog.Warn().Msg("released stale lock back to pending")
		}
		return
	}

	reason := "stale lock detected: worker unhealthy"
	if workerHealthy {
		reason = "stale lock detected: gateway unhealthy"
	}
	ok, err := r.queue.MarkFailedTimeout(ctx, taskID, workerID, claimToken, reason)
	if err != nil {
		taskLog.Error().Err(err).Msg("failed to mark stale lock as failed_timeout")
		return
	}
	if ok {
		metrics.StaleLocksFailedTotal.Inc()
		taskLog.Warn().Str("reason", reason).Msg("marked stale lock as failed_timeout")
	}
}

// gatewayHealthy asks the registry whether a gateway is selectable, then
// confirms with a live /status probe requiring agent_connected=true. An
// empty gatewayID falls back to "any selectable gateway".
func (r *Reaper) gatewayHealthy(ctx context.Context, gatewayID string) bool {
	gw, err := r.registry.Select(gatewayID)
	if err != nil {
		return false
	}
	status, err := r.gatewayClient.Status(ctx, gw.GatewayID, gw.Host)
	if err != nil {
		return false
	}
	return status.AgentConnected
}
