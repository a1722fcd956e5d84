package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/skynet-control/pkg/events"
	"github.com/cuemby/skynet-control/pkg/log"
	"github.com/cuemby/skynet-control/pkg/metrics"
	"github.com/cuemby/skynet-control/pkg/store"
	"github.com/cuemby/skynet-control/pkg/types"
)

const (
	// maxCandidates bounds how many ready rows a single claim attempt
	// iterates before giving up.
	maxCandidates = 200

	minPriority = -1_000_000
	maxPriority = 1_000_000
)

// Queue is the transaction-scoped API the scheduler, reaper, and HTTP API
// call into. It never leaks *sql.Tx or raw SQL to its callers.
type Queue struct {
	store  *store.Store
	broker *events.Broker
}

// New wraps a store as a Queue.
func New(s *store.Store) *Queue {
	return &Queue{store: s}
}

// SetBroker attaches a live event broker; every committed task-event row
// is mirrored to it as a best-effort notification. Optional — a Queue
// with no broker simply skips publishing.
func (q *Queue) SetBroker(b *events.Broker) {
	q.broker = b
}

func (q *Queue) publish(eventType events.EventType, taskID, message string) {
	if q.broker == nil {
		return
	}
	q.broker.Publish(&events.Event{ID: uuid.New().String(), Type: eventType, TaskID: taskID, Message: message})
}

func clampPriority(p int) int {
	if p < minPriority {
		return minPriority
	}
	if p > maxPriority {
		return maxPriority
	}
	return p
}

// EnqueueInput carries the inputs to Enqueue.
type EnqueueInput struct {
	ID            string
	Action        string
	Params        json.RawMessage
	Priority      int
	Dependencies  []string
	RequiredFiles []string
	GatewayID     string
}

// Enqueue validates and inserts a new task, maintaining the reverse
// dependents edge and the dependency-graph acyclicity invariant, all
// inside one transaction.
func (q *Queue) Enqueue(ctx context.Context, in EnqueueInput) (*types.Task, error) {
	if in.Action == "" {
		return nil, fmt.Errorf("%w: action is required", ErrValidation)
	}
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	for _, d := range in.Dependencies {
		if d == in.ID {
			return nil, ErrSelfDependency
		}
	}

	tx, err := q.store.BeginImmediate(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin enqueue: %w", err)
	}
	defer tx.Rollback()

	if _, err := store.GetTask(ctx, tx, in.ID); err == nil {
		return nil, ErrDuplicateID
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check duplicate id: %w", err)
	}

	for _, d := range in.Dependencies {
		if _, err := store.GetTaskStatus(ctx, tx, d); err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrMissingDependency, d)
		} else if err != nil {
			return nil, fmt.Errorf("check dependency %s: %w", d, err)
		}
	}

	if cyclic, err := wouldCycle(ctx, tx, in.ID, in.Dependencies); err != nil {
		return nil, fmt.Errorf("cycle check: %w", err)
	} else if cyclic {
		return nil, ErrCycle
	}

	now := time.Now()
	t := &types.Task{
		ID:            in.ID,
		Action:        in.Action,
		Params:        in.Params,
		Status:        types.TaskQueued,
		Priority:      clampPriority(in.Priority),
		Dependencies:  in.Dependencies,
		RequiredFiles: in.RequiredFiles,
		GatewayID:     in.GatewayID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := store.InsertTask(ctx, tx, t); err != nil {
		return nil, err
	}
	for _, d := range in.Dependencies {
		if err := store.AppendDependent(ctx, tx, d, in.ID); err != nil {
			return nil, err
		}
	}

	if _, err := store.AppendEvent(ctx, tx, &types.TaskEvent{
		TaskID:    t.ID,
		EventType: "enqueued",
		ToStatus:  string(types.TaskQueued),
		CreatedAt: now,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enqueue: %w", err)
	}
	metrics.TasksEnqueuedTotal.Inc()
	q.publish(events.EventTaskEnqueued, t.ID, "")
	return t, nil
}

// wouldCycle performs a depth-first traversal of the dependency adjacency
// read under the enqueue transaction's snapshot, checking whether any
// dependency of newID transitively depends on newID itself.
func wouldCycle(ctx context.Context, ex store.Execer, newID string, deps []string) (bool, error) {
	visited := make(map[string]bool)
	var visit func(id string) (bool, error)
	visit = func(id string) (bool, error) {
		if id == newID {
			return true, nil
		}
		if visited[id] {
			return false, nil
		}
		visited[id] = true
		children, err := store.GetDependencies(ctx, ex, id)
		if err == sql.ErrNoRows {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		for _, c := range children {
			found, err := visit(c)
			if err != nil {
				return false, err
			}
			if found {
				return true, nil
			}
		}
		return false, nil
	}
	for _, d := range deps {
		found, err := visit(d)
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

// Peek returns the first task that would be eligible to claim, without
// locking it. Advisory; may race with a concurrent claim.
func (q *Queue) Peek(ctx context.Context) (*types.Task, error) {
	candidates, err := store.ListCandidates(ctx, q.store.DB, maxCandidates)
	if err != nil {
		return nil, err
	}
	for _, t := range candidates {
		ready, err := q.isEligible(ctx, q.store.DB, t)
		if err != nil {
			return nil, err
		}
		if ready {
			return t, nil
		}
	}
	return nil, nil
}

func (q *Queue) isEligible(ctx context.Context, ex store.Execer, t *types.Task) (bool, error) {
	for _, dep := range t.Dependencies {
		status, err := store.GetTaskStatus(ctx, ex, dep)
		if err != nil {
			return false, nil
		}
		if status != types.TaskSucceeded {
			return false, nil
		}
	}
	for _, f := range t.RequiredFiles {
		owner, err := store.GetOwner(ctx, ex, f)
		if err != nil {
			return false, err
		}
		if owner != "" && owner != t.ID {
			return false, nil
		}
	}
	return true, nil
}

// ClaimNext atomically claims the highest-priority eligible ready task for
// workerID. Returns (nil, nil) when no task is currently claimable.
func (q *Queue) ClaimNext(ctx context.Context, workerID string) (*types.Task, error) {
	tx, err := q.store.BeginImmediate(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback()

	candidates, err := store.ListCandidates(ctx, tx, maxCandidates)
	if err != nil {
		return nil, err
	}

	for _, t := range candidates {
		ok, err := q.tryClaim(ctx, tx, t, workerID)
		if err != nil {
			return nil, err
		}
		if ok {
			if err := tx.Commit(); err != nil {
				return nil, fmt.Errorf("commit claim: %w", err)
			}
			metrics.TasksClaimedTotal.Inc()
			q.publish(events.EventTaskClaimed, t.ID, workerID)
			return t, nil
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit empty claim: %w", err)
	}
	return nil, nil
}

// tryClaim attempts to claim a single candidate within tx, returning true
// and mutating t in place (status, lock fields) on success.
func (q *Queue) tryClaim(ctx context.Context, tx *sql.Tx, t *types.Task, workerID string) (bool, error) {
	ready, err := q.isEligible(ctx, tx, t)
	if err != nil {
		return false, err
	}
	if !ready {
		return false, nil
	}

	token, err := mintClaimToken()
	if err != nil {
		return false, err
	}
	now := time.Now()

	ok, err := store.CASClaim(ctx, tx, t.ID, t.Status, workerID, token, now)
	if err != nil {
		return false, err
	}
	if !ok {
		// Lost the race to another claimer; move to the next candidate.
		return false, nil
	}

	for _, f := range t.RequiredFiles {
		if err := store.InsertOwnership(ctx, tx, f, t.ID, token, now); err != nil {
			if store.IsUniqueConstraintErr(err) {
				owner, gerr := store.GetOwner(ctx, tx, f)
				if gerr == nil && owner == t.ID {
					// Already owned by this same task (e.g. re-claim); fine.
					continue
				}
				metrics.ClaimConflictsTotal.Inc()
				queueLog.Debug().Str("task_id", t.ID).Str("file", f).Str("owner", owner).Msg("claim conflict, reverting")
				if derr := store.DeleteOwnershipByToken(ctx, tx, token); derr != nil {
					return false, derr
				}
				if _, rerr := store.CASRevertClaim(ctx, tx, t.ID, token, t.Status, now); rerr != nil {
					return false, rerr
				}
				if _, eerr := store.AppendEvent(ctx, tx, &types.TaskEvent{
					TaskID:     t.ID,
					EventType:  "claim_conflict",
					FromStatus: string(types.TaskClaimed),
					ToStatus:   string(t.Status),
					WorkerID:   workerID,
					ClaimToken: token,
					Message:    fmt.Sprintf("file %s already owned by task %s", f, owner),
					CreatedAt:  now,
				}); eerr != nil {
					return false, eerr
				}
				return false, nil
			}
			return false, err
		}
	}

	t.Status = types.TaskClaimed
	t.LockedBy = workerID
	t.LockedAt = &now
	t.ClaimToken = token

	if _, err := store.AppendEvent(ctx, tx, &types.TaskEvent{
		TaskID:     t.ID,
		EventType:  "claimed",
		ToStatus:   string(types.TaskClaimed),
		WorkerID:   workerID,
		ClaimToken: token,
		CreatedAt:  now,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// MarkRunning transitions a claimed task to running.
func (q *Queue) MarkRunning(ctx context.Context, taskID, workerID, claimToken string) (bool, error) {
	tx, err := q.store.BeginImmediate(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	now := time.Now()
	ok, err := store.CASMarkRunning(ctx, tx, taskID, workerID, claimToken, now)
	if err != nil {
		return false, err
	}
	if ok {
		if _, err := store.AppendEvent(ctx, tx, &types.TaskEvent{
			TaskID:     taskID,
			EventType:  "running",
			FromStatus: string(types.TaskClaimed),
			ToStatus:   string(types.TaskRunning),
			WorkerID:   workerID,
			ClaimToken: claimToken,
			CreatedAt:  now,
		}); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	if ok {
		q.publish(events.EventTaskRunning, taskID, workerID)
	}
	return ok, nil
}

// Complete finalizes a task as succeeded or failed.
func (q *Queue) Complete(ctx context.Context, taskID, workerID, claimToken string, success bool, result json.RawMessage, errMsg string) (bool, error) {
	tx, err := q.store.BeginImmediate(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	now := time.Now()
	var ok bool
	var toStatus types.TaskStatus
	if success {
		toStatus = types.TaskSucceeded
		ok, err = store.CASCompleteSuccess(ctx, tx, taskID, workerID, claimToken, string(result), now)
	} else {
		toStatus = types.TaskFailed
		ok, err = store.CASCompleteFailure(ctx, tx, taskID, workerID, claimToken, errMsg, now)
	}
	if err != nil {
		return false, err
	}
	if ok {
		if err := store.DeleteOwnershipByTask(ctx, tx, taskID); err != nil {
			return false, err
		}
		if _, err := store.AppendEvent(ctx, tx, &types.TaskEvent{
			TaskID:     taskID,
			EventType:  string(toStatus),
			ToStatus:   string(toStatus),
			WorkerID:   workerID,
			ClaimToken: claimToken,
			Message:    errMsg,
			CreatedAt:  now,
		}); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	if ok {
		outcome := "succeeded"
		evType := events.EventTaskSucceeded
		if !success {
			outcome = "failed"
			evType = events.EventTaskFailed
		}
		metrics.TasksCompletedTotal.WithLabelValues(outcome).Inc()
		q.publish(evType, taskID, errMsg)
	}
	return ok, nil
}

// Release releases a claim, either back to released (back_to_pending) or
// to failed.
func (q *Queue) Release(ctx context.Context, taskID, workerID, claimToken, reason string, backToPending bool) (bool, error) {
	tx, err := q.store.BeginImmediate(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	now := time.Now()
	ok, err := store.CASRelease(ctx, tx, taskID, workerID, claimToken, reason, backToPending, now)
	if err != nil {
		return false, err
	}
	toStatus := types.TaskFailed
	eventType := "failed"
	if backToPending {
		toStatus = types.TaskReleased
		eventType = "released"
	}
	if ok {
		if err := store.DeleteOwnershipByTask(ctx, tx, taskID); err != nil {
			return false, err
		}
		if _, err := store.AppendEvent(ctx, tx, &types.TaskEvent{
			TaskID:     taskID,
			EventType:  eventType,
			ToStatus:   string(toStatus),
			WorkerID:   workerID,
			ClaimToken: claimToken,
			Message:    reason,
			CreatedAt:  now,
		}); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	if ok {
		if backToPending {
			q.publish(events.EventTaskReleased, taskID, reason)
		} else {
			metrics.TasksCompletedTotal.WithLabelValues("failed").Inc()
			q.publish(events.EventTaskFailed, taskID, reason)
		}
	}
	return ok, nil
}

// MarkFailedTimeout transitions a task whose lock has gone stale to
// failed_timeout. Used by the reaper.
func (q *Queue) MarkFailedTimeout(ctx context.Context, taskID, workerID, claimToken, reason string) (bool, error) {
	tx, err := q.store.BeginImmediate(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	now := time.Now()
	ok, err := store.CASMarkFailedTimeout(ctx, tx, taskID, workerID, claimToken, reason, now)
	if err != nil {
		return false, err
	}
	if ok {
		if err := store.DeleteOwnershipByTask(ctx, tx, taskID); err != nil {
			return false, err
		}
		if _, err := store.AppendEvent(ctx, tx, &types.TaskEvent{
			TaskID:     taskID,
			EventType:  "failed_timeout",
			ToStatus:   string(types.TaskFailedTimeout),
			WorkerID:   workerID,
			ClaimToken: claimToken,
			Message:    reason,
			CreatedAt:  now,
		}); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	if ok {
		metrics.TasksCompletedTotal.WithLabelValues("failed_timeout").Inc()
		q.publish(events.EventTaskFailedTimeout, taskID, reason)
	}
	return ok, nil
}

// ClaimFile lets an active task explicitly claim an additional file. If
// the path is already owned by the same task this is a no-op success; if
// owned by a different task it is a conflict.
func (q *Queue) ClaimFile(ctx context.Context, taskID, claimToken, filePath string) (bool, string, error) {
	tx, err := q.store.BeginImmediate(ctx)
	if err != nil {
		return false, "", err
	}
	defer tx.Rollback()

	t, err := store.GetTask(ctx, tx, taskID)
	if err == sql.ErrNoRows {
		return false, "", ErrNotFound
	}
	if err != nil {
		return false, "", err
	}
	if !t.Status.IsActive() || t.ClaimToken != claimToken {
		return false, "", ErrInvalidTransition
	}

	owner, err := store.GetOwner(ctx, tx, filePath)
	if err != nil {
		return false, "", err
	}
	if owner == taskID {
		if err := tx.Commit(); err != nil {
			return false, "", err
		}
		return true, "", nil
	}
	if owner != "" {
		if err := tx.Commit(); err != nil {
			return false, "", err
		}
		return false, owner, nil
	}

	if err := store.InsertOwnership(ctx, tx, filePath, taskID, claimToken, time.Now()); err != nil {
		return false, "", err
	}
	if err := tx.Commit(); err != nil {
		return false, "", err
	}
	return true, "", nil
}

// StaleLockScan returns every active task whose lock has aged past ttl.
// Read-only.
func (q *Queue) StaleLockScan(ctx context.Context, ttl time.Duration) ([]*types.Task, error) {
	cutoff := time.Now().Add(-ttl)
	return store.ListStale(ctx, q.store.DB, cutoff)
}

// GetTask fetches a single task by id.
func (q *Queue) GetTask(ctx context.Context, id string) (*types.Task, error) {
	t, err := store.GetTask(ctx, q.store.DB, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return t, err
}

// ListTasks returns tasks filtered by status (status == "" means all).
func (q *Queue) ListTasks(ctx context.Context, status string, limit int) ([]*types.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	return store.ListByStatus(ctx, q.store.DB, status, limit)
}

// ListActive returns every claimed/running task.
func (q *Queue) ListActive(ctx context.Context) ([]*types.Task, error) {
	return store.ListActive(ctx, q.store.DB)
}

// ListEvents returns task events, optionally filtered by task id and a
// since timestamp, ascending, bounded by limit.
func (q *Queue) ListEvents(ctx context.Context, taskID string, since time.Time, limit int) ([]*types.TaskEvent, error) {
	if limit <= 0 {
		limit = 200
	}
	return store.ListEvents(ctx, q.store.DB, taskID, since, limit)
}

// ListOwnership returns the file-ownership snapshot.
func (q *Queue) ListOwnership(ctx context.Context) ([]*types.FileOwnership, error) {
	return store.ListOwnership(ctx, q.store.DB)
}

// MirrorWorker upserts a worker registration into the persistent mirror.
// Best-effort: the in-memory registry stays authoritative for selection,
// and the queue-level lock is the task row's locked_by either way.
func (q *Queue) MirrorWorker(ctx context.Context, w *types.Worker) error {
	return store.UpsertWorker(ctx, q.store.DB, w)
}

// ListMirroredWorkers returns the persisted worker mirror.
func (q *Queue) ListMirroredWorkers(ctx context.Context) ([]*types.Worker, error) {
	return store.ListWorkers(ctx, q.store.DB)
}

var queueLog = log.WithComponent("queue")
