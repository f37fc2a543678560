package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/disaster-recon/internal/config"
	"github.com/sells-group/disaster-recon/internal/fedsync/fema"
	"github.com/sells-group/disaster-recon/internal/fedsync/reconcile"
	"github.com/sells-group/disaster-recon/internal/model"
	"github.com/sells-group/disaster-recon/internal/store"
)

func TestParseStates(t *testing.T) {
	got, err := parseStates([]string{" tx", "LA", "TX", "", "48"})
	require.NoError(t, err)
	assert.Equal(t, []string{"TX", "LA", "48"}, got)

	_, err = parseStates([]string{"TX", "ZZ"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown state "ZZ"`)

	got, err = parseStates(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseYears(t *testing.T) {
	got, err := parseYears([]string{"2019", "2015-2017", "2016", " 2020 "})
	require.NoError(t, err)
	assert.Equal(t, []int{2015, 2016, 2017, 2019, 2020}, got)

	got, err = parseYears(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseYears_Invalid(t *testing.T) {
	tests := []struct {
		spec string
		want string
	}{
		{"twenty", "invalid year"},
		{"2018-2015", "reversed"},
		{"1900", "outside"},
		{"2015-abc", "invalid year"},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			_, err := parseYears([]string{tt.spec})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseRunOpts(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().StringSlice("states", nil, "")
	cmd.Flags().StringSlice("years", nil, "")
	cmd.Flags().String("crosswalk", "", "")
	cmd.Flags().Bool("persist", false, "")
	cmd.Flags().String("metrics-addr", "", "")
	require.NoError(t, cmd.ParseFlags([]string{
		"--states", "tx,la",
		"--years", "2017-2018",
		"--crosswalk", "zips.csv",
		"--persist",
		"--metrics-addr", ":9090",
	}))

	opts, err := parseRunOpts(cmd)
	require.NoError(t, err)
	assert.Equal(t, []string{"TX", "LA"}, opts.Request.States)
	assert.Equal(t, []int{2017, 2018}, opts.Request.Years)
	assert.Equal(t, "zips.csv", opts.Crosswalk)
	assert.True(t, opts.Persist)
	assert.Equal(t, ":9090", opts.MetricsAddr)
}

func TestParseRunOpts_BadState(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().StringSlice("states", nil, "")
	cmd.Flags().StringSlice("years", nil, "")
	require.NoError(t, cmd.ParseFlags([]string{"--states", "XX", "--years", "2017"}))

	_, err := parseRunOpts(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown state")
}

func TestFormatSummary(t *testing.T) {
	obligated := decimal.RequireFromString("5")
	records := []reconcile.Record{
		{DisasterNumber: 4332, State: "TX", StateFIPS: "48", CountyFIPS: "157", TotalApproved: decimal.RequireFromString("100.5"), TotalObligated: decimal.NewFromInt(200)},
		{DisasterNumber: 4332, State: "TX", StateFIPS: "48", CountyFIPS: "201", LineItems: 2, AidObligated: &obligated, TotalApproved: decimal.RequireFromString("100.5"), TotalObligated: decimal.NewFromInt(200)},
		{DisasterNumber: 4345, State: "LA", StateFIPS: "22", CountyFIPS: "071"},
	}
	run := &model.Run{
		ID:     "0a1b2c3d-aaaa",
		Status: model.RunStatusComplete,
		Result: &model.RunResult{Records: 3, Declarations: 3, Summaries: 1, LineItems: 3, JoinDropped: 1},
	}

	var buf bytes.Buffer
	formatSummary(&buf, run, records)
	out := buf.String()

	assert.Contains(t, out, "Run 0a1b2c3d complete: 3 records from 3 declarations, 1 summaries, 3 line items (1 dropped by crosswalk)")
	assert.NotContains(t, out, "Persisted")
	assert.Regexp(t, `LA\s+22\s+1\s+1\s+0\s+0\.00\s+0\.00\s+0\.00`, out)
	assert.Regexp(t, `TX\s+48\s+2\s+1\s+2\s+201\.00\s+400\.00\s+5\.00`, out)
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("LA ")), bytes.Index(buf.Bytes(), []byte("TX ")), "states ordered by FIPS")
}

func TestFormatSummary_NoRecords(t *testing.T) {
	var buf bytes.Buffer
	formatSummary(&buf, nil, nil)
	assert.Equal(t, "No records.\n", buf.String())
}

// femaHandler serves fixed OpenFEMA fixtures, honoring $skip and $top.
func femaHandler(fixtures map[string][]map[string]any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rows, ok := fixtures[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		q := r.URL.Query()
		if q.Get("$inlinecount") == "allpages" {
			_ = json.NewEncoder(w).Encode(map[string]any{"metadata": map[string]any{"count": len(rows)}})
			return
		}
		skip, _ := strconv.Atoi(q.Get("$skip"))
		top, _ := strconv.Atoi(q.Get("$top"))
		end := min(skip+top, len(rows))
		page := []map[string]any{}
		if skip < end {
			page = rows[skip:end]
		}
		_ = json.NewEncoder(w).Encode(page)
	})
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	xwalk := filepath.Join(dir, "zip_county.csv")
	require.NoError(t, os.WriteFile(xwalk, []byte("ZIP,COUNTY\n77001,48201\n77002,48201\n"), 0o644))

	return &config.Config{
		Log:   config.LogConfig{Level: "info", Format: "json"},
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(dir, "runs.db")},
		FEMA: config.FEMAConfig{
			BaseURL:         baseURL,
			UserAgent:       "disaster-recon-test",
			PageSize:        2,
			PageConcurrency: 2,
			KeyBatchSize:    100,
			TimeoutSecs:     5,
			MaxRetries:      1,
		},
		Crosswalk: config.CrosswalkConfig{Path: xwalk, TempDir: dir},
	}
}

func harveyFixtures() map[string][]map[string]any {
	return map[string][]map[string]any{
		"/v2/DisasterDeclarationsSummaries": {
			{"disasterNumber": 4332, "state": "TX", "fipsStateCode": "48", "fipsCountyCode": "201", "fyDeclared": 2017},
			{"disasterNumber": 4332, "state": "TX", "fipsStateCode": "48", "fipsCountyCode": "157", "fyDeclared": 2017},
			{"disasterNumber": 4345, "state": "LA", "fipsStateCode": "22", "fipsCountyCode": "071", "fyDeclared": 2018},
		},
		"/v1/FemaWebDisasterSummaries": {
			{"disasterNumber": 4332, "totalAmountIhpApproved": 100.5, "totalObligatedAmountPa": 200},
		},
		"/v1/MissionAssignments": {
			{"disasterNumber": 4332, "zip": "77001", "requestedAmount": 10, "obligationAmount": 5},
			{"disasterNumber": 4332, "zip": "77002", "requestedAmount": 20, "obligationAmount": nil},
			{"disasterNumber": 4345, "zip": "70112", "requestedAmount": 30, "obligationAmount": 30},
		},
	}
}

func TestExecuteRun(t *testing.T) {
	srv := httptest.NewServer(femaHandler(harveyFixtures()))
	defer srv.Close()
	c := testConfig(t, srv.URL)

	opts := runOpts{Request: model.RunRequest{States: []string{"TX", "LA"}, Years: []int{2017, 2018}}}
	var buf bytes.Buffer
	require.NoError(t, executeRun(context.Background(), c, opts, &buf))

	out := buf.String()
	assert.Contains(t, out, "complete: 3 records from 3 declarations, 1 summaries, 3 line items (1 dropped by crosswalk)")
	assert.Regexp(t, `TX\s+48\s+2\s+1\s+2\s+201\.00\s+400\.00\s+5\.00`, out)

	st, err := store.Open(context.Background(), "sqlite", c.Store.DatabaseURL)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, fema.AdapterName, runs[0].Source)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
	require.NotNil(t, runs[0].Result)
	assert.Equal(t, 3, runs[0].Result.Records)
	assert.Equal(t, 1, runs[0].Result.JoinDropped)
}

func TestExecuteRun_DependentFailureRecorded(t *testing.T) {
	fixtures := harveyFixtures()
	delete(fixtures, "/v1/MissionAssignments")
	srv := httptest.NewServer(femaHandler(fixtures))
	defer srv.Close()
	c := testConfig(t, srv.URL)

	opts := runOpts{Request: model.RunRequest{States: []string{"TX"}, Years: []int{2017}}}
	err := executeRun(context.Background(), c, opts, &bytes.Buffer{})
	require.Error(t, err)

	var te *fema.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "MissionAssignments", te.Dataset)
	assert.Equal(t, http.StatusNotFound, te.StatusCode)

	st, err := store.Open(context.Background(), "sqlite", c.Store.DatabaseURL)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	runs, err := st.ListRuns(context.Background(), store.RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Result.Error, "MissionAssignments")
}

func TestExecuteRun_MissingCrosswalk(t *testing.T) {
	srv := httptest.NewServer(femaHandler(harveyFixtures()))
	defer srv.Close()
	c := testConfig(t, srv.URL)

	opts := runOpts{
		Request:   model.RunRequest{States: []string{"TX"}, Years: []int{2017}},
		Crosswalk: filepath.Join(t.TempDir(), "missing.csv"),
	}
	err := executeRun(context.Background(), c, opts, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crosswalk: open")
}

func TestExecuteRun_EmptyCrosswalk(t *testing.T) {
	srv := httptest.NewServer(femaHandler(harveyFixtures()))
	defer srv.Close()
	c := testConfig(t, srv.URL)
	require.NoError(t, os.WriteFile(c.Crosswalk.Path, []byte("ZIP,COUNTY\n"), 0o644))

	opts := runOpts{Request: model.RunRequest{States: []string{"TX"}, Years: []int{2017}}}
	err := executeRun(context.Background(), c, opts, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maps no ZIP codes")
}
