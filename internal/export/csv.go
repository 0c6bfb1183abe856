// Package export renders reports and the KPI library as CSV and XLSX files,
// and reads library files back for import.
package export

import (
	"encoding/csv"
	"errors"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/report-hub/internal/model"
)

// TimeLayout is used for every timestamp column.
const TimeLayout = time.RFC3339

// reportKPIRecord is one row of the report KPI export. Numeric columns are
// pre-formatted so a missing snapshot renders as an empty cell.
type reportKPIRecord struct {
	ReportID     string `csv:"report_id"`
	Project      string `csv:"project"`
	Week         string `csv:"week"`
	Owner        string `csv:"owner"`
	ReportType   string `csv:"report_type"`
	Status       string `csv:"status"`
	SLA          string `csv:"sla"`
	P1Incidents  string `csv:"p1_incidents"`
	MTTRMinutes  string `csv:"mttr_minutes"`
	RiskCount    string `csv:"risk_count"`
	RAG          string `csv:"rag"`
	KPIUpdatedAt string `csv:"kpi_updated_at"`
	HubURL       string `csv:"hub_url"`
}

// libraryRecord is one row of the KPI library export.
type libraryRecord struct {
	Department       string `csv:"department"`
	Section          string `csv:"section"`
	KPIKey           string `csv:"kpi_key"`
	KPIName          string `csv:"kpi_name"`
	FormulaDisplay   string `csv:"formula_display"`
	Description      string `csv:"description"`
	CalculationNotes string `csv:"calculation_notes"`
	GreenRule        string `csv:"green_rule"`
	AmberRule        string `csv:"amber_rule"`
	RedRule          string `csv:"red_rule"`
	OwnerTeam        string `csv:"owner_team"`
	UpdatedAt        string `csv:"updated_at"`
}

// HubURL returns the detail page link for a report.
func HubURL(baseURL, reportID string) string {
	return strings.TrimRight(baseURL, "/") + "/report/" + url.PathEscape(reportID)
}

func newReportKPIRecord(rk model.ReportKPI, baseURL string) reportKPIRecord {
	rec := reportKPIRecord{
		ReportID:   rk.ReportID,
		Project:    rk.Project,
		Week:       rk.Week,
		Owner:      rk.Owner,
		ReportType: rk.ReportType,
		Status:     rk.Status,
		HubURL:     HubURL(baseURL, rk.ReportID),
	}
	if rk.SLA != nil {
		rec.SLA = strconv.FormatFloat(*rk.SLA, 'f', -1, 64)
	}
	rec.P1Incidents = formatInt(rk.P1Incidents)
	rec.MTTRMinutes = formatInt(rk.MTTRMinutes)
	rec.RiskCount = formatInt(rk.RiskCount)
	if rk.RAG != nil {
		rec.RAG = *rk.RAG
	}
	if rk.KPIUpdatedAt != nil {
		rec.KPIUpdatedAt = rk.KPIUpdatedAt.UTC().Format(TimeLayout)
	}
	return rec
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func newLibraryRecord(d model.KPIDefinition) libraryRecord {
	rec := libraryRecord{
		Department:       d.DeptName,
		Section:          d.Section,
		KPIKey:           d.KPIKey,
		KPIName:          d.KPIName,
		FormulaDisplay:   d.FormulaDisplay,
		Description:      d.Description,
		CalculationNotes: d.CalculationNotes,
		GreenRule:        d.GreenRule,
		AmberRule:        d.AmberRule,
		RedRule:          d.RedRule,
		OwnerTeam:        d.OwnerTeam,
	}
	if !d.UpdatedAt.IsZero() {
		rec.UpdatedAt = d.UpdatedAt.UTC().Format(TimeLayout)
	}
	return rec
}

func (r libraryRecord) definition() model.KPIDefinition {
	return model.KPIDefinition{
		DeptName: strings.TrimSpace(r.Department),
		KPIKey:   strings.TrimSpace(r.KPIKey),
		KPIFields: model.KPIFields{
			Section:          strings.TrimSpace(r.Section),
			KPIName:          strings.TrimSpace(r.KPIName),
			FormulaDisplay:   r.FormulaDisplay,
			Description:      r.Description,
			CalculationNotes: r.CalculationNotes,
			GreenRule:        r.GreenRule,
			AmberRule:        r.AmberRule,
			RedRule:          r.RedRule,
			OwnerTeam:        r.OwnerTeam,
		},
	}
}

// WriteReportKPIsCSV writes one row per report with its latest KPI snapshot.
// The header is written even when rows is empty.
func WriteReportKPIsCSV(w io.Writer, rows []model.ReportKPI, baseURL string) error {
	records := make([]reportKPIRecord, len(rows))
	for i, rk := range rows {
		records[i] = newReportKPIRecord(rk, baseURL)
	}
	return writeCSV(w, reportKPIRecord{}, records)
}

// WriteKPILibraryCSV writes one row per KPI definition.
func WriteKPILibraryCSV(w io.Writer, defs []model.KPIDefinition) error {
	records := make([]libraryRecord, len(defs))
	for i, d := range defs {
		records[i] = newLibraryRecord(d)
	}
	return writeCSV(w, libraryRecord{}, records)
}

func writeCSV[T any](w io.Writer, header T, records []T) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(header); err != nil {
		return eris.Wrap(err, "export: csv header")
	}
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return eris.Wrap(err, "export: csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: csv flush")
}

// ReadKPILibraryCSV parses a file in the WriteKPILibraryCSV format.
func ReadKPILibraryCSV(r io.Reader) ([]model.KPIDefinition, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	return decodeLibrary(cr)
}

// decodeLibrary reads header-driven rows from any csvutil.Reader. Unknown
// columns are ignored.
func decodeLibrary(r csvutil.Reader) ([]model.KPIDefinition, error) {
	dec, err := csvutil.NewDecoder(r)
	if errors.Is(err, io.EOF) {
		return nil, eris.New("export: library file is empty")
	}
	if err != nil {
		return nil, eris.Wrap(err, "export: read library header")
	}
	if !hasColumns(dec.Header(), "department", "kpi_key") {
		return nil, eris.New("export: library file needs department and kpi_key columns")
	}

	var defs []model.KPIDefinition
	for line := 2; ; line++ {
		var rec libraryRecord
		if err := dec.Decode(&rec); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, eris.Wrapf(err, "export: library row %d", line)
		}
		d := rec.definition()
		if d.DeptName == "" || d.KPIKey == "" {
			return nil, eris.Errorf("export: library row %d: department and kpi_key are required", line)
		}
		defs = append(defs, d)
	}
	return defs, nil
}

func hasColumns(header []string, want ...string) bool {
	set := make(map[string]struct{}, len(header))
	for _, h := range header {
		set[strings.TrimSpace(h)] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}
