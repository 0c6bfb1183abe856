package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/report-hub/internal/export"
	"github.com/sells-group/report-hub/internal/model"
	"github.com/sells-group/report-hub/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import data from files",
}

var importLibraryCmd = &cobra.Command{
	Use:   "library <file.csv|file.xlsx>",
	Short: "Upsert KPI definitions from a library export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, false)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := importLibrary(ctx, st, args[0])
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.Int64("definitions", n),
			zap.String("file", args[0]),
		)
		return nil
	},
}

func importLibrary(ctx context.Context, st store.Store, path string) (int64, error) {
	defs, err := readLibraryFile(path)
	if err != nil {
		return 0, err
	}
	n, err := st.UpsertKPIDefinitions(ctx, defs)
	if err != nil {
		return 0, eris.Wrap(err, "import library")
	}
	return n, nil
}

func readLibraryFile(path string) ([]model.KPIDefinition, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return export.ReadKPILibraryCSV(f)
	case ".xlsx":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "read %s", path)
		}
		return export.ReadKPILibraryXLSX(data)
	default:
		return nil, eris.Errorf("import library: unsupported file type %q (want .csv or .xlsx)", filepath.Ext(path))
	}
}

func init() {
	importCmd.AddCommand(importLibraryCmd)
	rootCmd.AddCommand(importCmd)
}
