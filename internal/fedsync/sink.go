package fedsync

import (
	"context"

	"github.com/sells-group/disaster-recon/internal/db"
	"github.com/sells-group/disaster-recon/internal/fedsync/reconcile"
	"go.uber.org/zap"
)

// DefaultSinkTable is the target of PostgresSink when no table is configured.
const DefaultSinkTable = "fed_data.disaster_county_aid"

// conflictKeys identify one reconciled record.
var conflictKeys = []string{"disaster_number", "state_fips", "county_fips"}

// Sink persists reconciled records.
type Sink interface {
	Write(ctx context.Context, source string, records []reconcile.Record) (int64, error)
}

// PostgresSink upserts records into a fed_data table and records each load
// in the sync log.
type PostgresSink struct {
	pool    db.Pool
	table   string
	syncLog *SyncLog
}

// NewPostgresSink creates a sink writing to table. An empty table uses
// DefaultSinkTable.
func NewPostgresSink(pool db.Pool, table string) *PostgresSink {
	if table == "" {
		table = DefaultSinkTable
	}
	return &PostgresSink{pool: pool, table: table, syncLog: NewSyncLog(pool)}
}

// Write upserts records keyed by (disaster_number, state_fips, county_fips)
// and returns the number of rows inserted or changed.
func (s *PostgresSink) Write(ctx context.Context, source string, records []reconcile.Record) (int64, error) {
	log := zap.L().With(zap.String("component", "fedsync.sink"), zap.String("table", s.table))

	loadID, err := s.syncLog.Start(ctx, source)
	if err != nil {
		return 0, err
	}

	table := reconcile.NewTable(records)
	n, err := db.BulkUpsert(ctx, s.pool, db.Upsert{
		Table:   s.table,
		Columns: reconcile.ColumnNames(),
		Keys:    conflictKeys,
		Touch:   "updated_at",
	}, table.Rows)
	if err != nil {
		if logErr := s.syncLog.Fail(ctx, loadID, err.Error()); logErr != nil {
			log.Error("failed to record load failure", zap.Error(logErr))
		}
		return 0, err
	}

	if err := s.syncLog.Complete(ctx, loadID, &SyncResult{
		RowsSynced: n,
		Metadata: map[string]any{
			"table":   s.table,
			"records": len(records),
		},
	}); err != nil {
		log.Error("failed to record load completion", zap.Error(err))
	}

	log.Info("records persisted", zap.Int("records", len(records)), zap.Int64("rows", n))
	return n, nil
}
