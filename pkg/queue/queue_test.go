package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/skynet-control/pkg/queue"
	"github.com/cuemby/skynet-control/pkg/store"
	"github.com/cuemby/skynet-control/pkg/types"
)

func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return queue.New(s)
}

func TestLinearDependency(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, err := q.Enqueue(ctx, queue.EnqueueInput{ID: "t1", Action: "a"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, queue.EnqueueInput{ID: "t2", Action: "b", Dependencies: []string{"t1"}})
	require.NoError(t, err)

	claimed, err := q.ClaimNext(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "t1", claimed.ID)

	noTask, err := q.ClaimNext(ctx, "w2")
	require.NoError(t, err)
	assert.Nil(t, noTask)

	ok, err := q.MarkRunning(ctx, "t1", "w1", claimed.ClaimToken)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = q.Complete(ctx, "t1", "w1", claimed.ClaimToken, true, []byte(`{"ok":true}`), "")
	require.NoError(t, err)
	require.True(t, ok)

	claimed2, err := q.ClaimNext(ctx, "w2")
	require.NoError(t, err)
	require.NotNil(t, claimed2)
	assert.Equal(t, "t2", claimed2.ID)
}

func TestFileConflict(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, err := q.Enqueue(ctx, queue.EnqueueInput{ID: "a", Action: "x", RequiredFiles: []string{"src/app.py"}})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, queue.EnqueueInput{ID: "b", Action: "y", RequiredFiles: []string{"src/app.py"}})
	require.NoError(t, err)

	claimA, err := q.ClaimNext(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, claimA)
	assert.Equal(t, "a", claimA.ID)

	ok, err := q.MarkRunning(ctx, "a", "w1", claimA.ClaimToken)
	require.NoError(t, err)
	require.True(t, ok)

	noTask, err := q.ClaimNext(ctx, "w2")
	require.NoError(t, err)
	assert.Nil(t, noTask)

	ok, err = q.Complete(ctx, "a", "w1", claimA.ClaimToken, true, nil, "")
	require.NoError(t, err)
	require.True(t, ok)

	claimB, err := q.ClaimNext(ctx, "w2")
	require.NoError(t, err)
	require.NotNil(t, claimB)
	assert.Equal(t, "b", claimB.ID)
}

func TestRaceToSingleTask(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, err := q.Enqueue(ctx, queue.EnqueueInput{ID: "only-task", Action: "x"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*types.Task, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			task, err := q.ClaimNext(ctx, "w")
			require.NoError(t, err)
			results[i] = task
		}(i)
	}
	wg.Wait()

	claims := 0
	for _, r := range results {
		if r != nil {
			claims++
			assert.Equal(t, "only-task", r.ID)
		}
	}
	assert.Equal(t, 1, claims)
}

func TestIllegalTransition(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, err := q.Enqueue(ctx, queue.EnqueueInput{ID: "t1", Action: "a"})
	require.NoError(t, err)
	claimed, err := q.ClaimNext(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, claimed)

	ok, err := q.Complete(ctx, "t1", "w1", claimed.ClaimToken, true, nil, "")
	require.NoError(t, err)
	assert.False(t, ok)

	after, err := q.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskClaimed, after.Status)
	assert.Equal(t, claimed.ClaimToken, after.ClaimToken)
}

func TestPostTerminalRelease(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, err := q.Enqueue(ctx, queue.EnqueueInput{ID: "t1", Action: "a"})
	require.NoError(t, err)
	claimed, err := q.ClaimNext(ctx, "w1")
	require.NoError(t, err)

	ok, err := q.MarkRunning(ctx, "t1", "w1", claimed.ClaimToken)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = q.Complete(ctx, "t1", "w1", claimed.ClaimToken, true, nil, "")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = q.Release(ctx, "t1", "w1", claimed.ClaimToken, "too late", true)
	require.NoError(t, err)
	assert.False(t, ok)

	after, err := q.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskSucceeded, after.Status)
}

func TestReleaseThenReclaimYieldsFreshToken(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, err := q.Enqueue(ctx, queue.EnqueueInput{ID: "t1", Action: "a"})
	require.NoError(t, err)
	claimed, err := q.ClaimNext(ctx, "w1")
	require.NoError(t, err)

	ok, err := q.Release(ctx, "t1", "w1", claimed.ClaimToken, "cancel", true)
	require.NoError(t, err)
	require.True(t, ok)

	reclaimed, err := q.ClaimNext(ctx, "w2")
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, "t1", reclaimed.ID)
	assert.NotEqual(t, claimed.ClaimToken, reclaimed.ClaimToken)
}

func TestIdempotentRelease(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, err := q.Enqueue(ctx, queue.EnqueueInput{ID: "t1", Action: "a"})
	require.NoError(t, err)
	claimed, err := q.ClaimNext(ctx, "w1")
	require.NoError(t, err)

	ok, err := q.Release(ctx, "t1", "w1", claimed.ClaimToken, "first", true)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.Release(ctx, "t1", "w1", claimed.ClaimToken, "second", true)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnqueueRejectsSelfDependencyAndDuplicateAndMissingDependency(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, err := q.Enqueue(ctx, queue.EnqueueInput{ID: "self", Action: "a", Dependencies: []string{"self"}})
	assert.ErrorIs(t, err, queue.ErrSelfDependency)

	_, err = q.Enqueue(ctx, queue.EnqueueInput{ID: "missing-dep", Action: "a", Dependencies: []string{"does-not-exist"}})
	assert.ErrorIs(t, err, queue.ErrMissingDependency)

	_, err = q.Enqueue(ctx, queue.EnqueueInput{ID: "dup", Action: "a"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, queue.EnqueueInput{ID: "dup", Action: "b"})
	assert.ErrorIs(t, err, queue.ErrDuplicateID)
}

func TestClaimOrdersByPriorityThenAge(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, err := q.Enqueue(ctx, queue.EnqueueInput{ID: "older-low", Action: "a", Priority: 0})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = q.Enqueue(ctx, queue.EnqueueInput{ID: "newer-high", Action: "a", Priority: 10})
	require.NoError(t, err)

	first, err := q.ClaimNext(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "newer-high", first.ID)
}

func TestClaimReturnsNilWhenEmpty(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	task, err := q.ClaimNext(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestClaimFileManualClaim(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, err := q.Enqueue(ctx, queue.EnqueueInput{ID: "t1", Action: "a"})
	require.NoError(t, err)
	claimed, err := q.ClaimNext(ctx, "w1")
	require.NoError(t, err)

	ok, owner, err := q.ClaimFile(ctx, "t1", claimed.ClaimToken, "extra/path.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, owner)

	// Re-claiming the same path with the same task is idempotent.
	ok, owner, err = q.ClaimFile(ctx, "t1", claimed.ClaimToken, "extra/path.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, owner)
}

func TestMirrorWorkerRoundTrip(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	now := time.Now()
	err := q.MirrorWorker(ctx, &types.Worker{
		WorkerID:      "w1",
		GatewayID:     "gw-1",
		Capabilities:  []string{"shell"},
		Status:        types.WorkerOnline,
		RegisteredAt:  now,
		LastHeartbeat: now,
	})
	require.NoError(t, err)

	// Re-registering updates in place.
	err = q.MirrorWorker(ctx, &types.Worker{
		WorkerID:      "w1",
		Status:        types.WorkerBusy,
		RegisteredAt:  now,
		LastHeartbeat: now,
	})
	require.NoError(t, err)

	workers, err := q.ListMirroredWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, "w1", workers[0].WorkerID)
	assert.Equal(t, types.WorkerBusy, workers[0].Status)
}

func TestStaleLockScanRespectsTTL(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, err := q.Enqueue(ctx, queue.EnqueueInput{ID: "t1", Action: "a"})
	require.NoError(t, err)
	_, err = q.ClaimNext(ctx, "w1")
	require.NoError(t, err)

	stale, err := q.StaleLockScan(ctx, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, stale)

	stale, err = q.StaleLockScan(ctx, 0)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "t1", stale[0].ID)
}
