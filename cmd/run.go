package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/disaster-recon/internal/config"
	"github.com/sells-group/disaster-recon/internal/fedsync"
	"github.com/sells-group/disaster-recon/internal/fedsync/reconcile"
	"github.com/sells-group/disaster-recon/internal/fedsync/transform"
	"github.com/sells-group/disaster-recon/internal/model"
	"github.com/sells-group/disaster-recon/internal/observability"
	"github.com/sells-group/disaster-recon/internal/store"
)

// First and last fiscal years accepted by --years.
const (
	minYear = 1953
	maxYear = 2100
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch and reconcile disaster aid for states and fiscal years",
	Long: `Fetches disaster declarations for the given states and fiscal years, then the
financial summaries and mission assignments of the declared disasters, and
reconciles them into one record per county and disaster.`,
	Example: `  disaster-recon run --states TX,LA --years 2017-2018
  disaster-recon run --states FL --years 2022 --crosswalk ZIP_COUNTY_122023.xlsx --persist`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts, err := parseRunOpts(cmd)
		if err != nil {
			return err
		}
		return executeRun(ctx, cfg, opts, os.Stdout)
	},
}

func init() {
	runCmd.Flags().StringSlice("states", nil, "state postal codes or FIPS codes, e.g. TX,LA")
	runCmd.Flags().StringSlice("years", nil, "fiscal years or ranges, e.g. 2017,2019-2021")
	runCmd.Flags().String("crosswalk", "", "ZIP to county crosswalk file or URL (overrides crosswalk.path)")
	runCmd.Flags().Bool("persist", false, "upsert records into the sink database")
	runCmd.Flags().String("metrics-addr", "", "serve /metrics and /healthz on this address during the run")
	_ = runCmd.MarkFlagRequired("states")
	_ = runCmd.MarkFlagRequired("years")
	rootCmd.AddCommand(runCmd)
}

// runOpts holds the parsed flags of the run command.
type runOpts struct {
	Request     model.RunRequest
	Crosswalk   string
	Persist     bool
	MetricsAddr string
}

func parseRunOpts(cmd *cobra.Command) (runOpts, error) {
	var opts runOpts

	rawStates, _ := cmd.Flags().GetStringSlice("states")
	states, err := parseStates(rawStates)
	if err != nil {
		return opts, err
	}
	rawYears, _ := cmd.Flags().GetStringSlice("years")
	years, err := parseYears(rawYears)
	if err != nil {
		return opts, err
	}

	opts.Request = model.RunRequest{States: states, Years: years}
	opts.Crosswalk, _ = cmd.Flags().GetString("crosswalk")
	opts.Persist, _ = cmd.Flags().GetBool("persist")
	opts.MetricsAddr, _ = cmd.Flags().GetString("metrics-addr")
	if opts.MetricsAddr == "" && cfg != nil {
		opts.MetricsAddr = cfg.Metrics.Addr
	}
	return opts, nil
}

// parseStates upper-cases and de-duplicates state codes, rejecting codes that
// name no state.
func parseStates(raw []string) ([]string, error) {
	var out []string
	for _, s := range raw {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := transform.StateToFIPS(s); !ok {
			return nil, eris.Errorf("unknown state %q", s)
		}
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out, nil
}

// parseYears expands years and inclusive ranges ("2015-2018") into a sorted,
// de-duplicated list.
func parseYears(raw []string) ([]int, error) {
	seen := map[int]bool{}
	for _, spec := range raw {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(spec, "-")
		first, err := parseYear(lo)
		if err != nil {
			return nil, err
		}
		last := first
		if isRange {
			if last, err = parseYear(hi); err != nil {
				return nil, err
			}
			if last < first {
				return nil, eris.Errorf("year range %q is reversed", spec)
			}
		}
		for y := first; y <= last; y++ {
			seen[y] = true
		}
	}

	out := make([]int, 0, len(seen))
	for y := range seen {
		out = append(out, y)
	}
	sort.Ints(out)
	return out, nil
}

func parseYear(s string) (int, error) {
	y, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, eris.Errorf("invalid year %q", s)
	}
	if y < minYear || y > maxYear {
		return 0, eris.Errorf("year %d outside %d-%d", y, minYear, maxYear)
	}
	return y, nil
}

// executeRun wires the pipeline from c, runs it, and writes a summary to out.
func executeRun(ctx context.Context, c *config.Config, opts runOpts, out io.Writer) error {
	log := zap.L().With(zap.String("component", "cmd.run"))

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	if opts.MetricsAddr != "" {
		srvCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := observability.Serve(srvCtx, opts.MetricsAddr, reg); err != nil {
				log.Warn("metrics listener stopped", zap.Error(err))
			}
		}()
	}

	st, err := store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	adapter, err := newAdapter(ctx, c, opts.Crosswalk, metrics)
	if err != nil {
		return err
	}

	engOpts := []fedsync.EngineOption{fedsync.WithMetrics(metrics)}
	if opts.Persist {
		pool, closePool, err := sinkPool(ctx, c)
		if err != nil {
			return err
		}
		defer closePool()
		engOpts = append(engOpts, fedsync.WithSink(newSink(pool, c)))
	}

	res, err := fedsync.NewEngine(st, engOpts...).Run(ctx, adapter, opts.Request)
	if err != nil {
		return eris.Wrap(err, "run")
	}

	formatSummary(out, res.Run, res.Records)
	return nil
}

// stateSummary totals the records of one state.
type stateSummary struct {
	StateFIPS      string
	State          string
	Counties       map[string]bool
	Disasters      map[model.DisasterNumber]bool
	LineItems      int
	TotalApproved  decimal.Decimal
	TotalObligated decimal.Decimal
	AidObligated   decimal.Decimal
}

func summarizeByState(records []reconcile.Record) []*stateSummary {
	byState := map[string]*stateSummary{}
	for _, r := range records {
		s, ok := byState[r.StateFIPS]
		if !ok {
			s = &stateSummary{
				StateFIPS: r.StateFIPS,
				Counties:  map[string]bool{},
				Disasters: map[model.DisasterNumber]bool{},
			}
			byState[r.StateFIPS] = s
		}
		if s.State == "" {
			s.State = r.State
		}
		s.Counties[r.CountyFIPS] = true
		s.Disasters[r.DisasterNumber] = true
		s.LineItems += r.LineItems
		s.TotalApproved = s.TotalApproved.Add(r.TotalApproved)
		s.TotalObligated = s.TotalObligated.Add(r.TotalObligated)
		s.AidObligated = s.AidObligated.Add(reconcile.SumPresent(r.AidObligated))
	}

	out := make([]*stateSummary, 0, len(byState))
	for _, s := range byState {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StateFIPS < out[j].StateFIPS })
	return out
}

// formatSummary writes the run outcome and a per-state table to w.
func formatSummary(out io.Writer, run *model.Run, records []reconcile.Record) {
	if run != nil && run.Result != nil {
		res := run.Result
		_, _ = fmt.Fprintf(out, "Run %s %s: %d records from %d declarations, %d summaries, %d line items (%d dropped by crosswalk)\n",
			truncateID(run.ID), run.Status, res.Records, res.Declarations, res.Summaries, res.LineItems, res.JoinDropped)
		if res.Persisted > 0 {
			_, _ = fmt.Fprintf(out, "Persisted %d rows\n", res.Persisted)
		}
	}
	if len(records) == 0 {
		_, _ = fmt.Fprintln(out, "No records.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STATE\tFIPS\tCOUNTIES\tDISASTERS\tLINE_ITEMS\tAPPROVED\tOBLIGATED\tMA_OBLIGATED")
	_, _ = fmt.Fprintln(w, "-----\t----\t--------\t---------\t----------\t--------\t---------\t------------")
	for _, s := range summarizeByState(records) {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\t%s\n",
			s.State,
			s.StateFIPS,
			len(s.Counties),
			len(s.Disasters),
			s.LineItems,
			s.TotalApproved.StringFixed(2),
			s.TotalObligated.StringFixed(2),
			s.AidObligated.StringFixed(2),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
