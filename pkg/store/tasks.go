package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/skynet-control/pkg/types"
)

func marshalStrings(ss []string) string {
	if len(ss) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

func unmarshalStrings(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// InsertTask inserts a new task row in status queued.
func InsertTask(ctx context.Context, ex Execer, t *types.Task) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO control_tasks
			(id, action, params, status, priority, dependencies, dependents,
			 required_files, gateway_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Action, string(t.Params), string(t.Status), t.Priority,
		marshalStrings(t.Dependencies), marshalStrings(t.Dependents),
		marshalStrings(t.RequiredFiles), nullableString(t.GatewayID),
		t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetDependencies returns the dependency id list of taskID, or
// (nil, sql.ErrNoRows) if the task does not exist.
func GetDependencies(ctx context.Context, ex Execer, taskID string) ([]string, error) {
	var raw string
	err := ex.QueryRowContext(ctx, `SELECT dependencies FROM control_tasks WHERE id = ?`, taskID).Scan(&raw)
	if err != nil {
		return nil, err
	}
	return unmarshalStrings(raw), nil
}

// AppendDependent appends childID to the dependents list of taskID.
func AppendDependent(ctx context.Context, ex Execer, taskID, childID string) error {
	row := ex.QueryRowContext(ctx, `SELECT dependents FROM control_tasks WHERE id = ?`, taskID)
	var raw string
	if err := row.Scan(&raw); err != nil {
		return fmt.Errorf("read dependents of %s: %w", taskID, err)
	}
	deps := unmarshalStrings(raw)
	deps = append(deps, childID)
	_, err := ex.ExecContext(ctx, `UPDATE control_tasks SET dependents = ? WHERE id = ?`,
		marshalStrings(deps), taskID)
	if err != nil {
		return fmt.Errorf("update dependents of %s: %w", taskID, err)
	}
	return nil
}

func scanTask(scan func(dest ...any) error) (*types.Task, error) {
	var t types.Task
	var params, result sql.NullString
	var deps, dependents, requiredFiles string
	var gatewayID, lockedBy, claimToken, errStr sql.NullString
	var lockedAt, completedAt sql.NullTime
	var status string

	err := scan(
		&t.ID, &t.Action, &params, &status, &t.Priority,
		&deps, &dependents, &requiredFiles, &gatewayID,
		&lockedBy, &lockedAt, &claimToken,
		&result, &errStr,
		&t.CreatedAt, &t.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = types.TaskStatus(status)
	if params.Valid {
		t.Params = json.RawMessage(params.String)
	}
	if result.Valid {
		t.Result = json.RawMessage(result.String)
	}
	t.Dependencies = unmarshalStrings(deps)
	t.Dependents = unmarshalStrings(dependents)
	t.RequiredFiles = unmarshalStrings(requiredFiles)
	t.GatewayID = gatewayID.String
	t.LockedBy = lockedBy.String
	t.ClaimToken = claimToken.String
	t.Error = errStr.String
	if lockedAt.Valid {
		lt := lockedAt.Time
		t.LockedAt = &lt
	}
	if completedAt.Valid {
		ct := completedAt.Time
		t.CompletedAt = &ct
	}
	return &t, nil
}

const taskColumns = `id, action, params, status, priority, dependencies, dependents,
	required_files, gateway_id, locked_by, locked_at, claim_token, result, error,
	created_at, updated_at, completed_at`

// GetTask fetches one task by id. Returns sql.ErrNoRows if absent.
func GetTask(ctx context.Context, ex Execer, id string) (*types.Task, error) {
	row := ex.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM control_tasks WHERE id = ?`, id)
	return scanTask(row.Scan)
}

// GetTaskStatus reads just the status column, used for dependency checks.
func GetTaskStatus(ctx context.Context, ex Execer, id string) (types.TaskStatus, error) {
	var status string
	err := ex.QueryRowContext(ctx, `SELECT status FROM control_tasks WHERE id = ?`, id).Scan(&status)
	if err != nil {
		return "", err
	}
	return types.TaskStatus(status), nil
}

// ListCandidates returns up to limit ready-looking tasks ordered by
// priority desc, created_at asc, for the claim loop to iterate.
func ListCandidates(ctx context.Context, ex Execer, limit int) ([]*types.Task, error) {
	rows, err := ex.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM control_tasks
		WHERE status IN (?, ?) AND locked_by IS NULL
		ORDER BY priority DESC, created_at ASC
		LIMIT ?`, string(types.TaskQueued), string(types.TaskReleased), limit)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var out []*types.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListByStatus returns tasks with the given status (or all, if status is
// empty), newest-claimed-first is not implied; ordered by created_at desc.
func ListByStatus(ctx context.Context, ex Execer, status string, limit int) ([]*types.Task, error) {
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = ex.QueryContext(ctx, `
			SELECT `+taskColumns+` FROM control_tasks
			WHERE status = ? ORDER BY created_at DESC LIMIT ?`, status, limit)
	} else {
		rows, err = ex.QueryContext(ctx, `
			SELECT `+taskColumns+` FROM control_tasks
			ORDER BY created_at DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*types.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListActive returns every task currently claimed or running, for the
// active-assignments read model.
func ListActive(ctx context.Context, ex Execer) ([]*types.Task, error) {
	rows, err := ex.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM control_tasks
		WHERE status IN (?, ?)`, string(types.TaskClaimed), string(types.TaskRunning))
	if err != nil {
		return nil, fmt.Errorf("list active tasks: %w", err)
	}
	defer rows.Close()

	var out []*types.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListStale returns active tasks whose locked_at is older than cutoff.
func ListStale(ctx context.Context, ex Execer, cutoff time.Time) ([]*types.Task, error) {
	rows, err := ex.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM control_tasks
		WHERE status IN (?, ?) AND locked_at IS NOT NULL AND locked_at < ?`,
		string(types.TaskClaimed), string(types.TaskRunning), cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale tasks: %w", err)
	}
	defer rows.Close()

	var out []*types.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CASClaim conditionally transitions a task to claimed, guarded by its
// current status being fromStatus and locked_by still being null. Returns
// whether the row was affected.
func CASClaim(ctx context.Context, ex Execer, taskID string, fromStatus types.TaskStatus, workerID, claimToken string, now time.Time) (bool, error) {
	res, err := ex.ExecContext(ctx, `
		UPDATE control_tasks
		SET status = ?, locked_by = ?, locked_at = ?, claim_token = ?, updated_at = ?
		WHERE id = ? AND status = ? AND locked_by IS NULL`,
		string(types.TaskClaimed), workerID, now, claimToken, now,
		taskID, string(fromStatus))
	if err != nil {
		return false, fmt.Errorf("cas claim %s: %w", taskID, err)
	}
	return affected(res)
}

// CASRevertClaim undoes a claim whose file-ownership step failed, guarded
// by the claim token just minted.
func CASRevertClaim(ctx context.Context, ex Execer, taskID, claimToken string, revertTo types.TaskStatus, now time.Time) (bool, error) {
	res, err := ex.ExecContext(ctx, `
		UPDATE control_tasks
		SET status = ?, locked_by = NULL, locked_at = NULL, claim_token = NULL, updated_at = ?
		WHERE id = ? AND claim_token = ? AND status = ?`,
		string(revertTo), now, taskID, claimToken, string(types.TaskClaimed))
	if err != nil {
		return false, fmt.Errorf("revert claim %s: %w", taskID, err)
	}
	return affected(res)
}

// CASMarkRunning transitions a claimed task to running. Lock fields are
// left untouched so the reaper's staleness clock keeps counting from the
// original claim, not from the running transition.
func CASMarkRunning(ctx context.Context, ex Execer, taskID, workerID, claimToken string, now time.Time) (bool, error) {
	res, err := ex.ExecContext(ctx, `
		UPDATE control_tasks SET status = ?, updated_at = ?
		WHERE id = ? AND status = ? AND locked_by = ? AND claim_token = ?`,
		string(types.TaskRunning), now, taskID, string(types.TaskClaimed), workerID, claimToken)
	if err != nil {
		return false, fmt.Errorf("mark running %s: %w", taskID, err)
	}
	return affected(res)
}

func clearedTransition(ctx context.Context, ex Execer, taskID, workerID, claimToken string, fromStatuses []types.TaskStatus, toStatus types.TaskStatus, resultJSON, errMsg string, now time.Time) (bool, error) {
	placeholders := ""
	args := []any{string(toStatus), nullableString(resultJSON), nullableString(types.TruncateError(errMsg)), now}
	if toStatus.IsTerminal() {
		args = append(args, now)
	}
	for i, s := range fromStatuses {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, string(s))
	}
	args = append(args, taskID, workerID, claimToken)

	setClause := `status = ?, locked_by = NULL, locked_at = NULL, claim_token = NULL,
		result = COALESCE(?, result), error = COALESCE(?, error), updated_at = ?`
	if toStatus.IsTerminal() {
		setClause += `, completed_at = ?`
	}

	query := fmt.Sprintf(`
		UPDATE control_tasks SET %s
		WHERE status IN (%s) AND id = ? AND locked_by = ? AND claim_token = ?`,
		setClause, placeholders)

	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition %s to %s: %w", taskID, toStatus, err)
	}
	return affected(res)
}

// CASCompleteSuccess transitions a running task to succeeded.
func CASCompleteSuccess(ctx context.Context, ex Execer, taskID, workerID, claimToken, resultJSON string, now time.Time) (bool, error) {
	return clearedTransition(ctx, ex, taskID, workerID, claimToken,
		[]types.TaskStatus{types.TaskRunning}, types.TaskSucceeded, resultJSON, "", now)
}

// CASCompleteFailure transitions a claimed or running task to failed.
func CASCompleteFailure(ctx context.Context, ex Execer, taskID, workerID, claimToken, errMsg string, now time.Time) (bool, error) {
	return clearedTransition(ctx, ex, taskID, workerID, claimToken,
		[]types.TaskStatus{types.TaskClaimed, types.TaskRunning}, types.TaskFailed, "", errMsg, now)
}

// CASRelease transitions a claimed or running task back to released (if
// backToPending) or to failed.
func CASRelease(ctx context.Context, ex Execer, taskID, workerID, claimToken, reason string, backToPending bool, now time.Time) (bool, error) {
	to := types.TaskFailed
	if backToPending {
		to = types.TaskReleased
	}
	return clearedTransition(ctx, ex, taskID, workerID, claimToken,
		[]types.TaskStatus{types.TaskClaimed, types.TaskRunning}, to, "", reason, now)
}

// CASMarkFailedTimeout transitions a claimed or running task to
// failed_timeout, used by the reaper.
func CASMarkFailedTimeout(ctx context.Context, ex Execer, taskID, workerID, claimToken, reason string, now time.Time) (bool, error) {
	return clearedTransition(ctx, ex, taskID, workerID, claimToken,
		[]types.TaskStatus{types.TaskClaimed, types.TaskRunning}, types.TaskFailedTimeout, "", reason, now)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
