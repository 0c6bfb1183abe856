package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/report-hub/internal/deck"
	"github.com/sells-group/report-hub/internal/export"
	"github.com/sells-group/report-hub/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export reports, the KPI library or a slide deck",
}

// -- export kpis --

var exportKPIsCmd = &cobra.Command{
	Use:   "kpis",
	Short: "Write every report with its latest KPI snapshot as CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		out, _ := cmd.Flags().GetString("out")

		st, err := openStore(ctx, false)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return writeOutput(out, func(w io.Writer) error {
			return exportReportKPIs(ctx, st, w)
		})
	},
}

func exportReportKPIs(ctx context.Context, st store.Store, w io.Writer) error {
	rows, err := st.ListReportKPIs(ctx)
	if err != nil {
		return eris.Wrap(err, "export kpis")
	}
	return export.WriteReportKPIsCSV(w, rows, cfg.Server.BaseURL)
}

// -- export library --

var exportLibraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Write the KPI library as CSV or XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		out, _ := cmd.Flags().GetString("out")
		format, _ := cmd.Flags().GetString("format")
		if format != "csv" && format != "xlsx" {
			return eris.Errorf("export library: unsupported format %q (want csv or xlsx)", format)
		}

		st, err := openStore(ctx, true)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return writeOutput(out, func(w io.Writer) error {
			return exportLibrary(ctx, st, w, format)
		})
	},
}

func exportLibrary(ctx context.Context, st store.Store, w io.Writer, format string) error {
	defs, err := st.ListAllKPIDefinitions(ctx)
	if err != nil {
		return eris.Wrap(err, "export library")
	}
	if format == "xlsx" {
		return export.WriteKPILibraryXLSX(w, defs)
	}
	return export.WriteKPILibraryCSV(w, defs)
}

// -- export deck --

var exportDeckCmd = &cobra.Command{
	Use:   "deck <report-id>",
	Short: "Generate the slide deck for a report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, false)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		path, err := exportDeck(ctx, st, deck.NewWriter(cfg.Deck.OutputDir, cfg.Deck.Enabled), args[0])
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func exportDeck(ctx context.Context, st store.Store, dw *deck.Writer, reportID string) (string, error) {
	rep, err := st.GetReport(ctx, reportID)
	if err != nil {
		return "", eris.Wrapf(err, "export deck %s", reportID)
	}
	kpi, err := st.LatestKPI(ctx, reportID)
	if err != nil {
		return "", err
	}
	versions, err := st.ListVersions(ctx, reportID, deck.MaxVersionNotes)
	if err != nil {
		return "", err
	}
	return dw.Save(ctx, deck.BuildReportDeck(*rep, kpi, versions, time.Now()), deck.FileName(*rep))
}

// writeOutput runs write against path, or stdout when path is "-".
func writeOutput(path string, write func(io.Writer) error) error {
	if path == "-" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := write(f); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "close %s", path)
	}
	zap.L().Info("export written", zap.String("path", path))
	return nil
}

func init() {
	exportKPIsCmd.Flags().String("out", "kpis_export.csv", `output file ("-" for stdout)`)
	exportLibraryCmd.Flags().String("out", "kpi_library.csv", `output file ("-" for stdout)`)
	exportLibraryCmd.Flags().String("format", "csv", "csv or xlsx")

	exportCmd.AddCommand(exportKPIsCmd)
	exportCmd.AddCommand(exportLibraryCmd)
	exportCmd.AddCommand(exportDeckCmd)
	rootCmd.AddCommand(exportCmd)
}
