package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/skynet-control/pkg/gatewayclient"
	"github.com/cuemby/skynet-control/pkg/queue"
	"github.com/cuemby/skynet-control/pkg/registry"
	"github.com/cuemby/skynet-control/pkg/store"
	"github.com/cuemby/skynet-control/pkg/types"
)

func newTestScheduler(t *testing.T, gatewayURL string) (*Scheduler, *queue.Queue, *registry.Registry) {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	q := queue.New(s)
	reg := registry.New()
	if gatewayURL != "" {
		reg.RegisterGateway(&types.Gateway{GatewayID: "gw-1", Host: gatewayURL, Status: types.GatewayOnline})
	}
	gc := gatewayclient.New(nil)
	return New(q, reg, gc, time.Millisecond), q, reg
}

func TestStepDispatchesAndCompletesOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.GatewayActionResponse{Status: "ok"})
	}))
	defer srv.Close()

	sched, q, _ := newTestScheduler(t, srv.URL)
	ctx := context.Background()
	_, err := q.Enqueue(ctx, queue.EnqueueInput{ID: "t1", Action: "noop"})
	require.NoError(t, err)

	claimed, err := sched.step()
	require.NoError(t, err)
	assert.True(t, claimed)

	task, err := q.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskSucceeded, task.Status)
}

func TestStepReleasesOnTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sched, q, reg := newTestScheduler(t, srv.URL)
	ctx := context.Background()
	_, err := q.Enqueue(ctx, queue.EnqueueInput{ID: "t1", Action: "noop"})
	require.NoError(t, err)

	claimed, err := sched.step()
	require.NoError(t, err)
	assert.True(t, claimed)

	task, err := q.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskReleased, task.Status)

	gw := reg.GetGateway("gw-1")
	require.NotNil(t, gw)
	assert.Equal(t, types.GatewayDegraded, gw.Status)
}

func TestStepReleasesWhenNoGateway(t *testing.T) {
	sched, q, _ := newTestScheduler(t, "")
	ctx := context.Background()
	_, err := q.Enqueue(ctx, queue.EnqueueInput{ID: "t1", Action: "noop"})
	require.NoError(t, err)

	claimed, err := sched.step()
	require.NoError(t, err)
	assert.True(t, claimed)

	task, err := q.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskReleased, task.Status)
}

func TestStepReturnsFalseWhenQueueEmpty(t *testing.T) {
	sched, _, _ := newTestScheduler(t, "")
	claimed, err := sched.step()
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestStartStopLifecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.GatewayActionResponse{Status: "ok"})
	}))
	defer srv.Close()

	sched, _, _ := newTestScheduler(t, srv.URL)
	sched.Start()
	time.Sleep(5 * time.Millisecond)
	sched.Stop()
}
