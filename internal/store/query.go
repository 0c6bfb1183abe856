package store

import (
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/report-hub/internal/model"
)

// dialect selects placeholder style.
type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// query assembles a parameterized SELECT. Clauses are written with '?'
// placeholders and rebound for the target dialect by SQL.
type query struct {
	base    string
	where   []string
	args    []any
	orderBy string
}

func newQuery(base string) *query {
	return &query{base: base}
}

// eq adds an exact-match predicate when v is non-empty.
func (q *query) eq(col string, v any) *query {
	switch x := v.(type) {
	case string:
		if x == "" {
			return q
		}
	case int64:
		if x == 0 {
			return q
		}
	}
	q.where = append(q.where, col+" = ?")
	q.args = append(q.args, v)
	return q
}

// containsAny adds a case-insensitive substring predicate OR'ed across cols.
func (q *query) containsAny(term string, cols ...string) *query {
	term = strings.TrimSpace(term)
	if term == "" || len(cols) == 0 {
		return q
	}
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = "lower(" + c + `) LIKE ? ESCAPE '\'`
		q.args = append(q.args, pattern)
	}
	q.where = append(q.where, "("+strings.Join(parts, " OR ")+")")
	return q
}

func (q *query) order(clause string) *query {
	q.orderBy = clause
	return q
}

// SQL renders the statement for d along with its arguments.
func (q *query) SQL(d dialect) (string, []any) {
	var b strings.Builder
	b.WriteString(q.base)
	if len(q.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.where, " AND "))
	}
	if q.orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.orderBy)
	}
	return rebind(d, b.String()), q.args
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// rebind rewrites '?' placeholders as $1..$n for PostgreSQL. Question marks
// inside single-quoted literals are left alone.
func rebind(d dialect, s string) string {
	if d != dialectPostgres {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Shared statements, written with '?' placeholders.
const (
	reportColumns = `report_id, project, week, owner, report_type, status, storage_url, created_at, updated_at`

	sqlInsertReport = `INSERT INTO reports (` + reportColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (report_id) DO NOTHING`

	sqlGetReport = `SELECT ` + reportColumns + ` FROM reports WHERE report_id = ?`

	sqlListReports = `SELECT ` + reportColumns + ` FROM reports`

	sqlTouchReport = `UPDATE reports SET updated_at = ? WHERE report_id = ?`

	sqlListVersions = `SELECT id, report_id, version_no, notes, created_at FROM versions
		WHERE report_id = ? ORDER BY version_no DESC`

	// The next version number is computed and inserted in one statement.
	sqlInsertVersion = `INSERT INTO versions (report_id, version_no, notes, created_at)
		SELECT ?, COALESCE(MAX(version_no), 0) + 1, ?, ? FROM versions WHERE report_id = ?
		RETURNING id, version_no`

	// PostgreSQL cannot infer parameter types in a SELECT list.
	sqlInsertVersionPG = `INSERT INTO versions (report_id, version_no, notes, created_at)
		SELECT ?::text, COALESCE(MAX(version_no), 0) + 1, ?::text, ?::timestamptz FROM versions WHERE report_id = ?
		RETURNING id, version_no`

	sqlInsertKPI = `INSERT INTO kpis (report_id, sla, p1_incidents, mttr_minutes, risk_count, rag, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`

	kpiColumns = `id, report_id, sla, p1_incidents, mttr_minutes, risk_count, rag, created_at`

	sqlLatestKPI = `SELECT ` + kpiColumns + ` FROM kpis
		WHERE report_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`

	sqlSummary = `SELECT
		AVG(sla),
		SUM(p1_incidents),
		CAST(AVG(mttr_minutes) AS DOUBLE PRECISION),
		SUM(risk_count)
		FROM kpis`

	// Latest snapshot per report; ties on created_at go to the highest id.
	sqlReportKPIs = `SELECT
		r.report_id, r.project, r.week, r.owner, r.report_type, r.status,
		k.sla, k.p1_incidents, k.mttr_minutes, k.risk_count, k.rag, k.created_at
		FROM reports r
		LEFT JOIN (
			SELECT kk.report_id, kk.sla, kk.p1_incidents, kk.mttr_minutes, kk.risk_count, kk.rag, kk.created_at,
				ROW_NUMBER() OVER (PARTITION BY kk.report_id ORDER BY kk.created_at DESC, kk.id DESC) AS rn
			FROM kpis kk
		) k ON k.report_id = r.report_id AND k.rn = 1
		ORDER BY r.week DESC, r.project ASC, r.report_id ASC`

	sqlListDepartments = `SELECT dept_id, dept_name FROM departments ORDER BY dept_name`

	sqlInsertDepartment = `INSERT INTO departments (dept_name) VALUES (?)
		ON CONFLICT (dept_name) DO NOTHING`

	sqlGetDepartmentID = `SELECT dept_id FROM departments WHERE dept_name = ?`

	kpiDefColumns = `m.kpi_id, m.dept_id, d.dept_name, m.kpi_key, m.section, m.kpi_name,
		m.formula_display, m.description, m.calculation_notes,
		m.green_rule, m.amber_rule, m.red_rule, m.owner_team, m.updated_at`

	sqlListKPIDefs = `SELECT ` + kpiDefColumns + `
		FROM kpi_master m JOIN departments d ON d.dept_id = m.dept_id`

	sqlUpsertKPIDef = `INSERT INTO kpi_master (dept_id, kpi_key, section, kpi_name, formula_display,
		description, calculation_notes, green_rule, amber_rule, red_rule, owner_team, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (dept_id, kpi_key) DO UPDATE SET
			section = excluded.section,
			kpi_name = excluded.kpi_name,
			formula_display = excluded.formula_display,
			description = excluded.description,
			calculation_notes = excluded.calculation_notes,
			green_rule = excluded.green_rule,
			amber_rule = excluded.amber_rule,
			red_rule = excluded.red_rule,
			owner_team = excluded.owner_team,
			updated_at = excluded.updated_at
		RETURNING kpi_id`
)

// facetQueries lists the distinct-value query for each facet, in Facets order.
var facetQueries = [4]string{
	`SELECT DISTINCT project FROM reports WHERE project IS NOT NULL AND project <> '' ORDER BY project ASC`,
	`SELECT DISTINCT week FROM reports WHERE week IS NOT NULL AND week <> '' ORDER BY week DESC`,
	`SELECT DISTINCT owner FROM reports WHERE owner IS NOT NULL AND owner <> '' ORDER BY owner ASC`,
	`SELECT DISTINCT report_type FROM reports WHERE report_type IS NOT NULL AND report_type <> '' ORDER BY report_type ASC`,
}

// resetTables lists tables in child-first delete order.
var resetTables = []string{"kpis", "versions", "reports", "kpi_master", "departments"}

func reportsQuery(f ReportFilter) *query {
	return newQuery(sqlListReports).
		containsAny(f.Q, "report_id", "project", "owner", "report_type").
		eq("project", strings.TrimSpace(f.Project)).
		eq("week", strings.TrimSpace(f.Week)).
		eq("owner", strings.TrimSpace(f.Owner)).
		eq("report_type", strings.TrimSpace(f.ReportType)).
		order("updated_at DESC, report_id ASC")
}

func kpisQuery(f KPIFilter) *query {
	return newQuery(sqlListKPIDefs).
		eq("m.dept_id", f.DeptID).
		eq("m.section", strings.TrimSpace(f.Section)).
		containsAny(f.Search, "m.kpi_key", "m.kpi_name", "m.section").
		order("m.section ASC, m.kpi_name ASC")
}

// scannable is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// timestampLayout is the fixed-width layout used for SQLite TEXT timestamps,
// so lexical order matches chronological order.
const timestampLayout = "2006-01-02 15:04:05.000000"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// nullTime scans timestamps stored either as TEXT (SQLite) or as a native
// timestamp (PostgreSQL).
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (n *nullTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = v.UTC(), true
		return nil
	case string:
		return n.parse(v)
	case []byte:
		return n.parse(string(v))
	}
	return eris.Errorf("store: cannot scan %T into timestamp", src)
}

func (n *nullTime) parse(s string) error {
	for _, layout := range []string{timestampLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			n.Time, n.Valid = t.UTC(), true
			return nil
		}
	}
	return eris.Errorf("store: unparseable timestamp %q", s)
}

func (n nullTime) ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func scanReport(row scannable) (*model.Report, error) {
	var r model.Report
	var storageURL sql.NullString
	var created, updated nullTime
	if err := row.Scan(&r.ReportID, &r.Project, &r.Week, &r.Owner, &r.ReportType, &r.Status,
		&storageURL, &created, &updated); err != nil {
		return nil, err
	}
	r.StorageURL = storageURL.String
	r.CreatedAt = created.Time
	r.UpdatedAt = updated.Time
	return &r, nil
}

func scanVersion(row scannable) (*model.Version, error) {
	var v model.Version
	var created nullTime
	if err := row.Scan(&v.ID, &v.ReportID, &v.VersionNo, &v.Notes, &created); err != nil {
		return nil, err
	}
	v.CreatedAt = created.Time
	return &v, nil
}

func scanKPI(row scannable) (*model.KPISnapshot, error) {
	var k model.KPISnapshot
	var sla sql.NullFloat64
	var p1, mttr, risk sql.NullInt64
	var rag sql.NullString
	var created nullTime
	if err := row.Scan(&k.ID, &k.ReportID, &sla, &p1, &mttr, &risk, &rag, &created); err != nil {
		return nil, err
	}
	k.SLA = sla.Float64
	k.P1Incidents = int(p1.Int64)
	k.MTTRMinutes = int(mttr.Int64)
	k.RiskCount = int(risk.Int64)
	k.RAG = model.RAG(rag.String)
	k.CreatedAt = created.Time
	return &k, nil
}

func scanReportKPI(row scannable) (*model.ReportKPI, error) {
	var rk model.ReportKPI
	var sla sql.NullFloat64
	var p1, mttr, risk sql.NullInt64
	var rag sql.NullString
	var created nullTime
	if err := row.Scan(&rk.ReportID, &rk.Project, &rk.Week, &rk.Owner, &rk.ReportType, &rk.Status,
		&sla, &p1, &mttr, &risk, &rag, &created); err != nil {
		return nil, err
	}
	if sla.Valid {
		rk.SLA = &sla.Float64
	}
	rk.P1Incidents = nullIntPtr(p1)
	rk.MTTRMinutes = nullIntPtr(mttr)
	rk.RiskCount = nullIntPtr(risk)
	if rag.Valid {
		rk.RAG = &rag.String
	}
	rk.KPIUpdatedAt = created.ptr()
	return &rk, nil
}

func scanSummary(row scannable) (*model.Summary, error) {
	var avgSLA, avgMTTR sql.NullFloat64
	var totalP1, totalRisks sql.NullInt64
	if err := row.Scan(&avgSLA, &totalP1, &avgMTTR, &totalRisks); err != nil {
		return nil, err
	}
	var s model.Summary
	if avgSLA.Valid {
		s.AvgSLA = &avgSLA.Float64
	}
	if totalP1.Valid {
		s.TotalP1 = &totalP1.Int64
	}
	if avgMTTR.Valid {
		s.AvgMTTR = &avgMTTR.Float64
	}
	if totalRisks.Valid {
		s.TotalRisks = &totalRisks.Int64
	}
	return &s, nil
}

func scanKPIDefinition(row scannable) (*model.KPIDefinition, error) {
	var d model.KPIDefinition
	var updated nullTime
	var formula, desc, notes, green, amber, red, owner sql.NullString
	if err := row.Scan(&d.KPIID, &d.DeptID, &d.DeptName, &d.KPIKey, &d.Section, &d.KPIName,
		&formula, &desc, &notes, &green, &amber, &red, &owner, &updated); err != nil {
		return nil, err
	}
	d.FormulaDisplay = formula.String
	d.Description = desc.String
	d.CalculationNotes = notes.String
	d.GreenRule = green.String
	d.AmberRule = amber.String
	d.RedRule = red.String
	d.OwnerTeam = owner.String
	d.UpdatedAt = updated.Time
	return &d, nil
}

func nullIntPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// upsertArgs orders the parameters of sqlUpsertKPIDef.
func upsertArgs(deptID int64, key string, f model.KPIFields, updatedAt any) []any {
	return []any{
		deptID, key, f.Section, f.KPIName, f.FormulaDisplay,
		f.Description, f.CalculationNotes, f.GreenRule, f.AmberRule, f.RedRule, f.OwnerTeam, updatedAt,
	}
}
