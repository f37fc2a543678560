package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/disaster-recon/internal/fedsync"
	"github.com/sells-group/disaster-recon/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply run store and sink schema migrations",
	Long:  "Creates the run history tables and, with --sink, applies the versioned fed_data migrations to the sink database.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
		if err != nil {
			return eris.Wrap(err, "migrate store")
		}
		_ = st.Close()
		zap.L().Info("run store migrated", zap.String("driver", cfg.Store.Driver))

		if withSink, _ := cmd.Flags().GetBool("sink"); !withSink {
			return nil
		}

		pool, closePool, err := sinkPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer closePool()

		applied, err := fedsync.Migrate(ctx, pool)
		if err != nil {
			return eris.Wrap(err, "migrate sink")
		}

		zap.L().Info("sink migrated", zap.Strings("applied", applied))
		return nil
	},
}

func init() {
	migrateCmd.Flags().Bool("sink", false, "also migrate the fed_data schema in the sink database")
	rootCmd.AddCommand(migrateCmd)
}
