// Package db provides shared Postgres helpers: the pool interface and bulk upsert.
package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Upsert describes a keyed bulk write into a table.
type Upsert struct {
	Table   string   // schema-qualified target, e.g. fed_data.disaster_county_aid
	Columns []string // columns carried by each row, in row order
	Keys    []string // columns of the target's unique constraint

	// Touch names a timestamp column set to now() whenever a row is
	// inserted or changed. It must not appear in Columns.
	Touch string
}

func (u Upsert) validate() error {
	switch {
	case u.Table == "":
		return eris.New("db: upsert: no table specified")
	case len(u.Columns) == 0:
		return eris.New("db: upsert: no columns specified")
	case len(u.Keys) == 0:
		return eris.New("db: upsert: no conflict keys specified")
	}
	cols := make(map[string]bool, len(u.Columns))
	for _, c := range u.Columns {
		cols[c] = true
	}
	for _, k := range u.Keys {
		if !cols[k] {
			return eris.Errorf("db: upsert: key %s is not among the columns", k)
		}
	}
	if u.Touch != "" && cols[u.Touch] {
		return eris.Errorf("db: upsert: touch column %s is also a data column", u.Touch)
	}
	return nil
}

// stageTable names the session-local table rows are copied into.
func (u Upsert) stageTable() string {
	name := u.Table
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return "_stage_" + name
}

// mergeSQL builds the statement moving staged rows into the target. Rows
// whose values already match are left untouched so they do not count as
// affected.
func (u Upsert) mergeSQL() string {
	keys := make(map[string]bool, len(u.Keys))
	for _, k := range u.Keys {
		keys[k] = true
	}
	var values []string
	for _, c := range u.Columns {
		if !keys[c] {
			values = append(values, c)
		}
	}

	insertCols := u.Columns
	selectCols := quoteAll(u.Columns)
	if u.Touch != "" {
		insertCols = append(insertCols[:len(insertCols):len(insertCols)], u.Touch)
		selectCols = append(selectCols, "now()")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s AS t (%s) SELECT %s FROM %s ON CONFLICT (%s) ",
		sanitizeTable(u.Table),
		strings.Join(quoteAll(insertCols), ", "),
		strings.Join(selectCols, ", "),
		pgx.Identifier{u.stageTable()}.Sanitize(),
		strings.Join(quoteAll(u.Keys), ", "),
	)
	if len(values) == 0 {
		b.WriteString("DO NOTHING")
		return b.String()
	}

	set := make([]string, 0, len(values)+1)
	current := make([]string, len(values))
	incoming := make([]string, len(values))
	for i, c := range values {
		q := pgx.Identifier{c}.Sanitize()
		set = append(set, q+" = EXCLUDED."+q)
		current[i] = "t." + q
		incoming[i] = "EXCLUDED." + q
	}
	if u.Touch != "" {
		set = append(set, pgx.Identifier{u.Touch}.Sanitize()+" = now()")
	}
	fmt.Fprintf(&b, "DO UPDATE SET %s WHERE (%s) IS DISTINCT FROM (%s)",
		strings.Join(set, ", "),
		strings.Join(current, ", "),
		strings.Join(incoming, ", "),
	)
	return b.String()
}

// BulkUpsert copies rows into a staging table and merges them into u.Table
// in one transaction. It returns the number of rows inserted or changed.
func BulkUpsert(ctx context.Context, pool Pool, u Upsert, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := u.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	stage := pgx.Identifier{u.stageTable()}
	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		stage.Sanitize(), sanitizeTable(u.Table),
	)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: stage %s", u.Table)
	}

	if _, err := tx.CopyFrom(ctx, stage, u.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: copy %d rows for %s", len(rows), u.Table)
	}

	tag, err := tx.Exec(ctx, u.mergeSQL())
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge into %s", u.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

// sanitizeTable quotes a possibly schema-qualified table name.
func sanitizeTable(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func quoteAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgx.Identifier{c}.Sanitize()
	}
	return out
}
