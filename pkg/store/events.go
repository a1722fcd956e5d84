package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/skynet-control/pkg/types"
)

// AppendEvent inserts one append-only task-event row and returns its id.
func AppendEvent(ctx context.Context, ex Execer, e *types.TaskEvent) (int64, error) {
	res, err := ex.ExecContext(ctx, `
		INSERT INTO control_task_events
			(task_id, event_type, from_status, to_status, worker_id, claim_token, message, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TaskID, e.EventType, nullableString(e.FromStatus), nullableString(e.ToStatus),
		nullableString(e.WorkerID), nullableString(e.ClaimToken),
		nullableString(e.Message), nullableString(string(e.Payload)), e.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("append event for %s: %w", e.TaskID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ListEvents returns events for taskID (or all tasks if empty), created
// after since, ordered ascending by id, bounded by limit.
func ListEvents(ctx context.Context, ex Execer, taskID string, since time.Time, limit int) ([]*types.TaskEvent, error) {
	var rows *sql.Rows
	var err error
	if taskID != "" {
		rows, err = ex.QueryContext(ctx, `
			SELECT id, task_id, event_type, from_status, to_status, worker_id, claim_token, message, payload, created_at
			FROM control_task_events
			WHERE task_id = ? AND created_at >= ?
			ORDER BY id ASC LIMIT ?`, taskID, since, limit)
	} else {
		rows, err = ex.QueryContext(ctx, `
			SELECT id, task_id, event_type, from_status, to_status, worker_id, claim_token, message, payload, created_at
			FROM control_task_events
			WHERE created_at >= ?
			ORDER BY id ASC LIMIT ?`, since, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []*types.TaskEvent
	for rows.Next() {
		var e types.TaskEvent
		var from, to, worker, token, msg, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TaskID, &e.EventType, &from, &to, &worker, &token, &msg, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.FromStatus = from.String
		e.ToStatus = to.String
		e.WorkerID = worker.String
		e.ClaimToken = token.String
		e.Message = msg.String
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
