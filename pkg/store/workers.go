package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/cuemby/skynet-control/pkg/types"
)

// UpsertWorker mirrors a worker registration into the persistent store.
// Per the design decision, this mirroring is best-effort: callers log a
// failure here rather than propagating it.
func UpsertWorker(ctx context.Context, ex Execer, w *types.Worker) error {
	caps := marshalStrings(w.Capabilities)
	meta, err := json.Marshal(w.Metadata)
	if err != nil {
		return fmt.Errorf("marshal worker metadata: %w", err)
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO workers (worker_id, gateway_id, capabilities, status, capacity, metadata, registered_at, last_heartbeat)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(worker_id) DO UPDATE SET
			gateway_id = excluded.gateway_id,
			capabilities = excluded.capabilities,
			status = excluded.status,
			capacity = excluded.capacity,
			metadata = excluded.metadata,
			last_heartbeat = excluded.last_heartbeat`,
		w.WorkerID, nullableString(w.GatewayID), caps, string(w.Status),
		nullableString(string(w.Capacity)), string(meta), w.RegisteredAt, w.LastHeartbeat)
	if err != nil {
		return fmt.Errorf("upsert worker %s: %w", w.WorkerID, err)
	}
	return nil
}

// ListWorkers returns the persisted worker mirror.
func ListWorkers(ctx context.Context, ex Execer) ([]*types.Worker, error) {
	rows, err := ex.QueryContext(ctx, `
		SELECT worker_id, gateway_id, capabilities, status, capacity, metadata, registered_at, last_heartbeat
		FROM workers ORDER BY worker_id`)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var out []*types.Worker
	for rows.Next() {
		var w types.Worker
		var gatewayID, capacity, caps, meta sql.NullString
		var status string
		if err := rows.Scan(&w.WorkerID, &gatewayID, &caps, &status, &capacity, &meta, &w.RegisteredAt, &w.LastHeartbeat); err != nil {
			return nil, err
		}
		w.GatewayID = gatewayID.String
		w.Status = types.WorkerStatus(status)
		w.Capabilities = unmarshalStrings(caps.String)
		if capacity.Valid {
			w.Capacity = json.RawMessage(capacity.String)
		}
		if meta.Valid {
			_ = json.Unmarshal([]byte(meta.String), &w.Metadata)
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}
