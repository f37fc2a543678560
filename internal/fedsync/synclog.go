package fedsync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sells-group/disaster-recon/internal/db"
)

// Load statuses written to fed_data.sync_log.
const (
	LoadRunning  = "running"
	LoadComplete = "complete"
	LoadFailed   = "failed"
)

// SyncEntry represents a row in fed_data.sync_log.
type SyncEntry struct {
	ID          int64          `json:"id"`
	Source      string         `json:"source"`
	Status      string         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	RowsSynced  int64          `json:"rows_synced"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// SyncResult holds the outcome of a load, passed to Complete().
type SyncResult struct {
	RowsSynced int64          `json:"rows_synced"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SyncLog provides read/write access to the fed_data.sync_log table, the
// ledger of sink loads.
type SyncLog struct {
	pool db.Pool
}

// NewSyncLog creates a new SyncLog backed by the given connection pool.
func NewSyncLog(pool db.Pool) *SyncLog {
	return &SyncLog{pool: pool}
}

// Start records the beginning of a load and returns its ID.
func (s *SyncLog) Start(ctx context.Context, source string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO fed_data.sync_log (source, status, started_at)
		 VALUES ($1, $2, now()) RETURNING id`,
		source, LoadRunning,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "synclog: start load for %s", source)
	}
	return id, nil
}

// Complete marks a load as finished.
func (s *SyncLog) Complete(ctx context.Context, loadID int64, result *SyncResult) error {
	var metaJSON []byte
	var rowsSynced int64
	if result != nil {
		rowsSynced = result.RowsSynced
		if result.Metadata != nil {
			var err error
			metaJSON, err = json.Marshal(result.Metadata)
			if err != nil {
				return eris.Wrap(err, "synclog: marshal metadata")
			}
		}
	}

	_, err := s.pool.Exec(ctx,
		`UPDATE fed_data.sync_log
		 SET status = $1, completed_at = now(), rows_synced = $2, metadata = $3
		 WHERE id = $4`,
		LoadComplete, rowsSynced, metaJSON, loadID,
	)
	if err != nil {
		return eris.Wrapf(err, "synclog: complete load %d", loadID)
	}
	return nil
}

// Fail marks a load as failed with an error message.
func (s *SyncLog) Fail(ctx context.Context, loadID int64, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE fed_data.sync_log
		 SET status = $1, completed_at = now(), error = $2
		 WHERE id = $3`,
		LoadFailed, errMsg, loadID,
	)
	if err != nil {
		return eris.Wrapf(err, "synclog: fail load %d", loadID)
	}
	return nil
}

// Recent returns up to limit loads, most recent first. limit <= 0 returns all.
func (s *SyncLog) Recent(ctx context.Context, limit int) ([]SyncEntry, error) {
	query := `SELECT id, source, status, started_at, completed_at, rows_synced, error, metadata
		 FROM fed_data.sync_log ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "synclog: list recent")
	}
	defer rows.Close()

	var entries []SyncEntry
	for rows.Next() {
		var e SyncEntry
		var errStr *string
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.Source, &e.Status, &e.StartedAt, &e.CompletedAt, &e.RowsSynced, &errStr, &metaJSON); err != nil {
			return nil, eris.Wrap(err, "synclog: scan entry")
		}
		if errStr != nil {
			e.Error = *errStr
		}
		if metaJSON != nil {
			if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
				return nil, eris.Wrapf(err, "synclog: decode metadata for load %d", e.ID)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
