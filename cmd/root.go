package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/report-hub/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "report-hub",
	Short: "Weekly and incident report dashboard",
	Long:  "Tracks reports with versioned notes and KPI snapshots, serves a dashboard and JSON API, and exports CSV, XLSX and slide decks.",
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
