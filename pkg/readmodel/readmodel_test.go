package readmodel_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/skynet-control/pkg/queue"
	"github.com/cuemby/skynet-control/pkg/readmodel"
	"github.com/cuemby/skynet-control/pkg/registry"
	"github.com/cuemby/skynet-control/pkg/store"
	"github.com/cuemby/skynet-control/pkg/types"
)

func newTestReadModel(t *testing.T) (*readmodel.ReadModel, *queue.Queue, *registry.Registry) {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	q := queue.New(s)
	reg := registry.New()
	return readmodel.New(q, reg), q, reg
}

func TestNextTaskPreview(t *testing.T) {
	ctx := context.Background()
	rm, q, _ := newTestReadModel(t)

	preview, err := rm.NextTaskPreview(ctx, "agent-1")
	require.NoError(t, err)
	assert.False(t, preview.Eligible)
	assert.Equal(t, "agent-1", preview.AgentID)

	_, err = q.Enqueue(ctx, queue.EnqueueInput{ID: "t1", Action: "a"})
	require.NoError(t, err)

	preview, err = rm.NextTaskPreview(ctx, "agent-1")
	require.NoError(t, err)
	assert.True(t, preview.Eligible)
	require.NotNil(t, preview.Task)
	assert.Equal(t, "t1", preview.Task.ID)
}

func TestActiveAssignments(t *testing.T) {
	ctx := context.Background()
	rm, q, _ := newTestReadModel(t)

	_, err := q.Enqueue(ctx, queue.EnqueueInput{ID: "t1", Action: "a"})
	require.NoError(t, err)
	claimed, err := q.ClaimNext(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, claimed)

	assignments, err := rm.ActiveAssignments(ctx)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, "t1", assignments[0].TaskID)
	assert.Equal(t, "w1", assignments[0].AgentID)
	assert.Equal(t, claimed.ClaimToken, assignments[0].ClaimToken)
}

func TestTaskEventsOrderedAscending(t *testing.T) {
	ctx := context.Background()
	rm, q, _ := newTestReadModel(t)

	_, err := q.Enqueue(ctx, queue.EnqueueInput{ID: "t1", Action: "a"})
	require.NoError(t, err)
	_, err = q.ClaimNext(ctx, "w1")
	require.NoError(t, err)

	evs, err := rm.TaskEvents(ctx, "t1", time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "enqueued", evs[0].EventType)
}

func TestFileOwnershipSnapshot(t *testing.T) {
	ctx := context.Background()
	rm, q, _ := newTestReadModel(t)

	_, err := q.Enqueue(ctx, queue.EnqueueInput{ID: "t1", Action: "a", RequiredFiles: []string{"a.txt"}})
	require.NoError(t, err)
	_, err = q.ClaimNext(ctx, "w1")
	require.NoError(t, err)

	own, err := rm.FileOwnership(ctx)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "a.txt", own[0].FilePath)
}

func TestSystemState(t *testing.T) {
	rm, _, reg := newTestReadModel(t)
	reg.RegisterGateway(&types.Gateway{GatewayID: "gw-1", Host: "http://gw1"})

	state := rm.SystemState()
	assert.Equal(t, 1, state.GatewayCount)
	assert.Equal(t, 0, state.WorkerCount)
}
