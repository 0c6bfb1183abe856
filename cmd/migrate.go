package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/report-hub/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations and seed the KPI library",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		zap.L().Info("migrations applied", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

var resetDemoCmd = &cobra.Command{
	Use:   "reset-demo",
	Short: "Delete all data and re-seed",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, false)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := store.ResetDemo(ctx, st, cfg.Seed.Demo); err != nil {
			return err
		}
		zap.L().Info("store reset", zap.Bool("demo", cfg.Seed.Demo))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(resetDemoCmd)
}
