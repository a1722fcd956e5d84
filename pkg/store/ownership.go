package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/skynet-control/pkg/types"
)

// InsertOwnership inserts an exclusivity row for filePath. The unique
// primary key on file_path is the exclusivity primitive; a conflicting
// insert returns an error the caller (pkg/queue) interprets as "owned by
// another active task" unless the existing owner is the same task.
func InsertOwnership(ctx context.Context, ex Execer, filePath, taskID, claimToken string, now time.Time) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO control_task_file_ownership (file_path, task_id, claim_token, claimed_at)
		VALUES (?, ?, ?, ?)`, filePath, taskID, claimToken, now)
	if err != nil {
		return fmt.Errorf("insert ownership %s: %w", filePath, err)
	}
	return nil
}

// IsUniqueConstraintErr reports whether err is a primary-key/unique
// violation, the failure mode InsertOwnership raises for a conflicting
// claim.
func IsUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "constraint failed")
}

// GetOwner returns the task_id owning filePath, or "" if unowned.
func GetOwner(ctx context.Context, ex Execer, filePath string) (string, error) {
	var taskID string
	err := ex.QueryRowContext(ctx, `SELECT task_id FROM control_task_file_ownership WHERE file_path = ?`, filePath).Scan(&taskID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get owner %s: %w", filePath, err)
	}
	return taskID, nil
}

// DeleteOwnershipByToken deletes every ownership row minted under
// claimToken, used to revert a failed claim attempt.
func DeleteOwnershipByToken(ctx context.Context, ex Execer, claimToken string) error {
	_, err := ex.ExecContext(ctx, `DELETE FROM control_task_file_ownership WHERE claim_token = ?`, claimToken)
	if err != nil {
		return fmt.Errorf("delete ownership by token: %w", err)
	}
	return nil
}

// DeleteOwnershipByTask deletes every ownership row held by taskID, used on
// terminal transitions.
func DeleteOwnershipByTask(ctx context.Context, ex Execer, taskID string) error {
	_, err := ex.ExecContext(ctx, `DELETE FROM control_task_file_ownership WHERE task_id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("delete ownership by task %s: %w", taskID, err)
	}
	return nil
}

// ListOwnership returns a snapshot of the file-ownership table ordered by
// path.
func ListOwnership(ctx context.Context, ex Execer) ([]*types.FileOwnership, error) {
	rows, err := ex.QueryContext(ctx, `
		SELECT file_path, task_id, claim_token, claimed_at
		FROM control_task_file_ownership ORDER BY file_path`)
	if err != nil {
		return nil, fmt.Errorf("list ownership: %w", err)
	}
	defer rows.Close()

	var out []*types.FileOwnership
	for rows.Next() {
		var o types.FileOwnership
		if err := rows.Scan(&o.FilePath, &o.TaskID, &o.ClaimToken, &o.ClaimedAt); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}
