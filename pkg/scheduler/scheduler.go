package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/skynet-control/pkg/gatewayclient"
	"github.com/cuemby/skynet-control/pkg/log"
	"github.com/cuemby/skynet-control/pkg/metrics"
	"github.com/cuemby/skynet-control/pkg/queue"
	"github.com/cuemby/skynet-control/pkg/registry"
	"github.com/cuemby/skynet-control/pkg/types"
)

// WorkerID is the well-known worker id the scheduler registers its claims
// and transitions under.
const WorkerID = registry.SchedulerWorkerID

// DefaultPollInterval is the sleep after an empty claim attempt.
const DefaultPollInterval = 1500 * time.Millisecond

// Scheduler is a single long-running loop: claim, route, run, dispatch,
// finalize.
type Scheduler struct {
	queue         *queue.Queue
	registry      *registry.Registry
	gatewayClient *gatewayclient.Client
	pollInterval  time.Duration
	logger        zerolog.Logger
	stopCh        chan struct{}
	doneCh        chan struct{}
}

// New creates a scheduler. pollInterval defaults to DefaultPollInterval
// when zero.
func New(q *queue.Queue, reg *registry.Registry, gc *gatewayclient.Client, pollInterval time.Duration) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Scheduler{
		queue:         q,
		registry:      reg,
		gatewayClient: gc,
		pollInterval:  pollInterval,
		logger:        log.WithComponent("scheduler"),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start begins the scheduler loop in a background goroutine.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop signals the loop to exit after its current step and waits for it.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) run() {
	defer close(s.doneCh)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
		}

		claimed, err := s.step()
		if err != nil {
			s.logger.Error().Err(err).Msg("scheduler cycle failed")
		}

		if claimed {
			timer.Reset(0)
		} else {
			timer.Reset(s.pollInterval)
		}
	}
}

// step performs one claim-route-run-dispatch-finalize cycle. It returns
// claimed=true if a task was claimed (so the caller should retry
// immediately instead of sleeping).
func (s *Scheduler) step() (claimed bool, err error) {
	ctx := context.Background()
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulerCycleDuration)

	task, err := s.queue.ClaimNext(ctx, WorkerID)
	if err != nil {
		return false, fmt.Errorf("claim next: %w", err)
	}
	if task == nil {
		return false, nil
	}

	taskLog := s.logger.With().Str("task_id", task.ID).Logger()

	gw, err := s.registry.Select(task.GatewayID)
	if err != nil {
		taskLog.Warn().Err(err).Msg("no gateway available, releasing claim")
		if _, relErr := s.queue.Release(ctx, task.ID, WorkerID, task.ClaimToken, "no gateway available: "+err.Error(), true); relErr != nil {
			return true, fmt.Errorf("release after no-gateway: %w", relErr)
		}
		return true, nil
	}

	ok, err := s.queue.MarkRunning(ctx, task.ID, WorkerID, task.ClaimToken)
	if err != nil {
		return true, fmt.Errorf("mark running: %w", err)
	}
	if !ok {
		taskLog.Warn().Msg("lost race to mark task running")
		return true, nil
	}

	dispatchTimer := metrics.NewTimer()
	resp, err := s.gatewayClient.Action(ctx, gw.GatewayID, gw.Host, types.GatewayActionRequest{
		Action:         task.Action,
		Params:         task.Params,
		Confirmed:      true,
		TaskID:         task.ID,
		IdempotencyKey: task.ClaimToken,
	})
	dispatchTimer.ObserveDuration(metrics.DispatchDuration)

	if err != nil {
		taskLog.Error().Err(err).Str("gateway_id", gw.GatewayID).Msg("gateway dispatch failed")
		s.registry.HeartbeatGateway(gw.GatewayID, types.GatewayDegraded)
		if _, relErr := s.queue.Release(ctx, task.ID, WorkerID, task.ClaimToken, err.Error(), true); relErr != nil {
			return true, fmt.Errorf("release after transport error: %w", relErr)
		}
		return true, nil
	}

	success, errMsg := gatewayclient.ClassifyResult(resp)
	if success {
		s.registry.HeartbeatGateway(gw.GatewayID, types.GatewayOnline)
	} else {
		s.registry.HeartbeatGateway(gw.GatewayID, types.GatewayDegraded)
	}

	var resultPayload []byte
	if resp.Result != nil {
		resultPayload, err = json.Marshal(resp.Result)
		if err != nil {
			return true, fmt.Errorf("marshal gateway result: %w", err)
		}
	}

	if _, err := s.queue.Complete(ctx, task.ID, WorkerID, task.ClaimToken, success, resultPayload, errMsg); err != nil {
		return true, fmt.Errorf("complete: %w", err)
	}

	return true, nil
}
