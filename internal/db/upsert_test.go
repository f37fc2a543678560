package db

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func aidUpsert() Upsert {
	return Upsert{
		Table:   "fed_data.disaster_county_aid",
		Columns: []string{"disaster_number", "state_fips", "county_fips", "aid_requested", "aid_obligated"},
		Keys:    []string{"disaster_number", "state_fips", "county_fips"},
		Touch:   "updated_at",
	}
}

func TestUpsertMergeSQL(t *testing.T) {
	want := `INSERT INTO "fed_data"."disaster_county_aid" AS t ` +
		`("disaster_number", "state_fips", "county_fips", "aid_requested", "aid_obligated", "updated_at") ` +
		`SELECT "disaster_number", "state_fips", "county_fips", "aid_requested", "aid_obligated", now() ` +
		`FROM "_stage_disaster_county_aid" ` +
		`ON CONFLICT ("disaster_number", "state_fips", "county_fips") ` +
		`DO UPDATE SET "aid_requested" = EXCLUDED."aid_requested", "aid_obligated" = EXCLUDED."aid_obligated", "updated_at" = now() ` +
		`WHERE (t."aid_requested", t."aid_obligated") IS DISTINCT FROM (EXCLUDED."aid_requested", EXCLUDED."aid_obligated")`
	assert.Equal(t, want, aidUpsert().mergeSQL())
}

func TestUpsertMergeSQL_KeysOnly(t *testing.T) {
	u := Upsert{
		Table:   "fed_data.declared_counties",
		Columns: []string{"disaster_number", "county_fips"},
		Keys:    []string{"disaster_number", "county_fips"},
	}
	assert.Equal(t,
		`INSERT INTO "fed_data"."declared_counties" AS t ("disaster_number", "county_fips") `+
			`SELECT "disaster_number", "county_fips" FROM "_stage_declared_counties" `+
			`ON CONFLICT ("disaster_number", "county_fips") DO NOTHING`,
		u.mergeSQL())
}

func TestUpsertMergeSQL_LeavesColumnsIntact(t *testing.T) {
	u := aidUpsert()
	cols := make([]string, len(u.Columns), len(u.Columns)+4)
	copy(cols, u.Columns)
	u.Columns = cols

	_ = u.mergeSQL()
	assert.Equal(t, aidUpsert().Columns, u.Columns)
	assert.NotContains(t, u.Columns[:cap(u.Columns)][len(u.Columns):], "updated_at")
}

func TestUpsertValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Upsert)
		want string
	}{
		{"no table", func(u *Upsert) { u.Table = "" }, "no table specified"},
		{"no columns", func(u *Upsert) { u.Columns = nil }, "no columns specified"},
		{"no keys", func(u *Upsert) { u.Keys = nil }, "no conflict keys specified"},
		{"key outside columns", func(u *Upsert) { u.Keys = []string{"disaster_number", "zip"} }, "key zip is not among the columns"},
		{"touch is data", func(u *Upsert) { u.Touch = "aid_requested" }, "touch column aid_requested"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := aidUpsert()
			tt.edit(&u)
			_, err := BulkUpsert(context.Background(), nil, u, [][]any{{4332, "48", "201", nil, nil}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, Upsert{}, nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	u := aidUpsert()
	rows := [][]any{
		{4332, "48", "201", "10.50", "4.00"},
		{4332, "48", "157", nil, nil},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TEMP TABLE "_stage_disaster_county_aid" (LIKE "fed_data"."disaster_county_aid" INCLUDING DEFAULTS) ON COMMIT DROP`)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_disaster_county_aid"}, u.Columns).WillReturnResult(2)
	mock.ExpectExec(regexp.QuoteMeta(u.mergeSQL())).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := BulkUpsert(context.Background(), mock, u, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "unchanged rows are not counted")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	u := aidUpsert()
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_disaster_county_aid"}, u.Columns).
		WillReturnError(fmt.Errorf("permission denied"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, u, [][]any{{4332, "48", "201", nil, nil}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy 1 rows for fed_data.disaster_county_aid")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_MergeError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	u := aidUpsert()
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_disaster_county_aid"}, u.Columns).WillReturnResult(1)
	mock.ExpectExec("INSERT INTO").WillReturnError(fmt.Errorf("there is no unique constraint matching given keys"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, u, [][]any{{4332, "48", "201", nil, nil}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merge into fed_data.disaster_county_aid")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_BeginError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(fmt.Errorf("connection refused"))

	_, err = BulkUpsert(context.Background(), mock, aidUpsert(), [][]any{{4332, "48", "201", nil, nil}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
}

func TestSanitizeTable(t *testing.T) {
	assert.Equal(t, `"runs"`, sanitizeTable("runs"))
	assert.Equal(t, `"fed_data"."disaster_county_aid"`, sanitizeTable("fed_data.disaster_county_aid"))
}

func TestConnectEmptyURL(t *testing.T) {
	_, err := Connect(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL is empty")
}
