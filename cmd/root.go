package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/disaster-recon/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "disaster-recon",
	Short: "County-level FEMA disaster aid reconciliation",
	Long:  "Fetches OpenFEMA declarations, financial summaries, and mission assignments, maps line items to counties through a ZIP crosswalk, and produces one record per county and disaster.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
