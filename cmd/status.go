package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/disaster-recon/internal/fedsync"
	"github.com/sells-group/disaster-recon/internal/model"
	"github.com/sells-group/disaster-recon/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show run history",
	Long:  "Lists recent reconciliation runs, shows one run in full, or lists sink loads with --loads.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if loads, _ := cmd.Flags().GetBool("loads"); loads {
			pool, closePool, err := sinkPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer closePool()

			limit, _ := cmd.Flags().GetInt("limit")
			entries, err := fedsync.NewSyncLog(pool).Recent(ctx, limit)
			if err != nil {
				return eris.Wrap(err, "status")
			}
			if len(entries) == 0 {
				fmt.Fprintln(os.Stderr, "No loads found.")
				return nil
			}
			formatLoads(os.Stdout, entries)
			return nil
		}

		st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if len(args) == 1 {
			run, err := st.GetRun(ctx, args[0])
			if err != nil {
				return eris.Wrap(err, "status")
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		}

		status, _ := cmd.Flags().GetString("status")
		source, _ := cmd.Flags().GetString("source")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			Source: source,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "status")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		formatRunsList(os.Stdout, runs)
		return nil
	},
}

func init() {
	statusCmd.Flags().String("status", "", "filter by run status (queued, fetching, reconciling, persisting, complete, failed)")
	statusCmd.Flags().String("source", "", "filter by adapter name, e.g. openfema")
	statusCmd.Flags().Int("limit", 20, "max number of entries to display")
	statusCmd.Flags().Bool("loads", false, "list sink loads from fed_data.sync_log instead of runs")
	rootCmd.AddCommand(statusCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tSTATES\tYEARS\tSTATUS\tRECORDS\tDROPPED\tCREATED\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t-----\t------\t-------\t-------\t-------\t--------\t-----")

	for _, r := range runs {
		records, dropped, dur, errMsg := "-", "-", "-", ""
		if r.Result != nil {
			records = fmt.Sprint(r.Result.Records)
			dropped = fmt.Sprint(r.Result.JoinDropped)
			dur = (time.Duration(r.Result.DurationMs) * time.Millisecond).Round(time.Second).String()
			errMsg = truncate(r.Result.Error, 60)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Source,
			truncate(joinStrings(r.Request.States), 20),
			truncate(formatYears(r.Request.Years), 20),
			r.Status,
			records,
			dropped,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
			errMsg,
		)
	}
	_ = w.Flush()
}

// formatLoads writes a tabular representation of sink loads to w.
func formatLoads(out io.Writer, entries []fedsync.SyncEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tSTARTED\tDURATION\tROWS\tERROR")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t-------\t--------\t----\t-----")

	for _, e := range entries {
		dur := "-"
		if e.CompletedAt != nil {
			dur = e.CompletedAt.Sub(e.StartedAt).Round(time.Second).String()
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			e.ID,
			e.Source,
			e.Status,
			e.StartedAt.Format("2006-01-02 15:04"),
			dur,
			e.RowsSynced,
			truncate(e.Error, 60),
		)
	}
	_ = w.Flush()
}

func joinStrings(ss []string) string {
	if len(ss) == 0 {
		return "-"
	}
	return strings.Join(ss, ",")
}

// formatYears renders years compactly, collapsing consecutive runs.
func formatYears(years []int) string {
	if len(years) == 0 {
		return "-"
	}
	var out string
	for i := 0; i < len(years); {
		j := i
		for j+1 < len(years) && years[j+1] == years[j]+1 {
			j++
		}
		if out != "" {
			out += ","
		}
		if j > i {
			out += fmt.Sprintf("%d-%d", years[i], years[j])
		} else {
			out += fmt.Sprint(years[i])
		}
		i = j + 1
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
