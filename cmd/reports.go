package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/report-hub/internal/model"
	"github.com/sells-group/report-hub/internal/store"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List reports with their latest KPI snapshot",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, false)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		project, _ := cmd.Flags().GetString("project")
		week, _ := cmd.Flags().GetString("week")
		owner, _ := cmd.Flags().GetString("owner")
		reportType, _ := cmd.Flags().GetString("type")
		q, _ := cmd.Flags().GetString("q")
		noColor, _ := cmd.Flags().GetBool("no-color")

		reports, err := st.ListReports(ctx, store.ReportFilter{
			Project:    project,
			Week:       week,
			Owner:      owner,
			ReportType: reportType,
			Q:          q,
		})
		if err != nil {
			return eris.Wrap(err, "reports list")
		}
		if len(reports) == 0 {
			fmt.Fprintln(os.Stderr, "No reports found.")
			return nil
		}

		rows, err := st.ListReportKPIs(ctx)
		if err != nil {
			return eris.Wrap(err, "reports latest kpis")
		}
		latest := make(map[string]model.ReportKPI, len(rows))
		for _, r := range rows {
			latest[r.ReportID] = r
		}

		return formatReports(os.Stdout, reports, latest, !noColor && !color.NoColor)
	},
}

// ragColors maps known RAG tags to terminal colors.
var ragColors = map[model.RAG]*color.Color{
	model.RAGGreen: color.New(color.FgGreen),
	model.RAGAmber: color.New(color.FgYellow),
	model.RAGRed:   color.New(color.FgRed, color.Bold),
}

func formatRAG(rag string, useColor bool) string {
	c, ok := ragColors[model.RAG(rag)]
	if !useColor || !ok {
		return rag
	}
	return c.Sprint(rag)
}

func formatReports(w io.Writer, reports []model.Report, latest map[string]model.ReportKPI, useColor bool) error {
	table := tablewriter.NewWriter(w)
	defer func() { _ = table.Close() }()

	table.Header([]string{"ID", "Project", "Week", "Owner", "Type", "Status", "SLA", "P1", "MTTR", "Risks", "RAG", "Updated"})

	data := make([][]string, 0, len(reports))
	for _, r := range reports {
		row := []string{r.ReportID, r.Project, r.Week, r.Owner, r.ReportType, r.Status}
		k, ok := latest[r.ReportID]
		if ok && k.SLA != nil {
			row = append(row,
				strconv.FormatFloat(*k.SLA, 'f', -1, 64)+"%",
				intOrDash(k.P1Incidents),
				intOrDash(k.MTTRMinutes),
				intOrDash(k.RiskCount),
				formatRAG(deref(k.RAG), useColor),
			)
		} else {
			row = append(row, "-", "-", "-", "-", "-")
		}
		row = append(row, r.UpdatedAt.Local().Format("2006-01-02 15:04"))
		data = append(data, row)
	}

	if err := table.Bulk(data); err != nil {
		return eris.Wrap(err, "reports table")
	}
	return eris.Wrap(table.Render(), "reports table render")
}

func intOrDash(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func init() {
	reportsCmd.Flags().String("project", "", "filter by project")
	reportsCmd.Flags().String("week", "", "filter by week")
	reportsCmd.Flags().String("owner", "", "filter by owner")
	reportsCmd.Flags().String("type", "", "filter by report type")
	reportsCmd.Flags().String("q", "", "search id, project, owner and type")
	reportsCmd.Flags().Bool("no-color", false, "disable colored RAG output")
	rootCmd.AddCommand(reportsCmd)
}
