package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/report-hub/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	dsn string
	now func() time.Time
}

// sqlitePragmas are applied to every pooled connection through the DSN.
const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_txlock=immediate"

// sqliteDSN appends the connection pragmas unless the caller supplied a query
// string of their own.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?" + sqlitePragmas
}

// NewSQLite opens a SQLite database at the given path.
func NewSQLite(path string) (*SQLiteStore, error) {
	dsn := sqliteDSN(path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: db, dsn: dsn, now: time.Now}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	return migrateSQLite(ctx, s.dsn)
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// clock returns the current time at the precision stored in TEXT columns,
// along with its stored form.
func (s *SQLiteStore) clock() (time.Time, string) {
	now := s.now().UTC().Truncate(time.Microsecond)
	return now, formatTimestamp(now)
}

func (s *SQLiteStore) CreateReport(ctx context.Context, in model.NewReport) (*model.Report, error) {
	in = in.Normalize()
	if missing := in.Validate(); len(missing) > 0 {
		return nil, eris.Wrapf(ErrValidation, "sqlite: create report: missing %s", strings.Join(missing, ", "))
	}

	now, ts := s.clock()
	res, err := s.db.ExecContext(ctx, sqlInsertReport,
		in.ReportID, in.Project, in.Week, in.Owner, in.ReportType, in.Status, in.StorageURL, ts, ts,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert report %s", in.ReportID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return nil, eris.Wrapf(ErrConflict, "sqlite: report %s", in.ReportID)
	}

	return &model.Report{
		ReportID:   in.ReportID,
		Project:    in.Project,
		Week:       in.Week,
		Owner:      in.Owner,
		ReportType: in.ReportType,
		Status:     in.Status,
		StorageURL: in.StorageURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *SQLiteStore) GetReport(ctx context.Context, reportID string) (*model.Report, error) {
	r, err := scanReport(s.db.QueryRowContext(ctx, sqlGetReport, reportID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: report %s", reportID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get report %s", reportID)
	}
	return r, nil
}

func (s *SQLiteStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, error) {
	q, args := reportsQuery(filter).SQL(dialectSQLite)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reports")
	}
	defer rows.Close()

	var out []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list reports iterate")
}

func (s *SQLiteStore) ListVersions(ctx context.Context, reportID string, limit int) ([]model.Version, error) {
	q := sqlListVersions
	args := []any{reportID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list versions %s", reportID)
	}
	defer rows.Close()

	var out []model.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan version")
		}
		out = append(out, *v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list versions iterate")
}

// AddVersion touches the parent first so the write lock is held before the
// next version number is computed.
func (s *SQLiteStore) AddVersion(ctx context.Context, reportID, notes string) (*model.Version, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, eris.Wrap(ErrValidation, "sqlite: add version: notes are required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: add version: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now, ts := s.clock()
	if err := touchReport(ctx, tx, reportID, ts); err != nil {
		return nil, err
	}

	v := model.Version{ReportID: reportID, Notes: notes, CreatedAt: now}
	if err := tx.QueryRowContext(ctx, sqlInsertVersion, reportID, notes, ts, reportID).
		Scan(&v.ID, &v.VersionNo); err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert version for %s", reportID)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: add version: commit")
	}
	return &v, nil
}

func (s *SQLiteStore) AddKPISnapshot(ctx context.Context, reportID string, in model.KPIInput) (*model.KPISnapshot, error) {
	snap := in.Snapshot(reportID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: add kpi: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now, ts := s.clock()
	if err := touchReport(ctx, tx, reportID, ts); err != nil {
		return nil, err
	}
	snap.CreatedAt = now
	if err := tx.QueryRowContext(ctx, sqlInsertKPI,
		reportID, snap.SLA, snap.P1Incidents, snap.MTTRMinutes, snap.RiskCount, string(snap.RAG), ts,
	).Scan(&snap.ID); err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert kpi for %s", reportID)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: add kpi: commit")
	}
	return &snap, nil
}

func touchReport(ctx context.Context, tx *sql.Tx, reportID, ts string) error {
	res, err := tx.ExecContext(ctx, sqlTouchReport, ts, reportID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: touch report %s", reportID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: report %s", reportID)
	}
	return nil
}

func (s *SQLiteStore) LatestKPI(ctx context.Context, reportID string) (*model.KPISnapshot, error) {
	k, err := scanKPI(s.db.QueryRowContext(ctx, sqlLatestKPI, reportID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest kpi %s", reportID)
	}
	return k, nil
}

func (s *SQLiteStore) SummaryCards(ctx context.Context) (*model.Summary, error) {
	sum, err := scanSummary(s.db.QueryRowContext(ctx, sqlSummary))
	return sum, eris.Wrap(err, "sqlite: summary cards")
}

func (s *SQLiteStore) Facets(ctx context.Context) (*model.Facets, error) {
	var lists [len(facetQueries)][]string
	for i, q := range facetQueries {
		vals, err := s.distinct(ctx, q)
		if err != nil {
			return nil, err
		}
		lists[i] = vals
	}
	return &model.Facets{
		Projects:    lists[0],
		Weeks:       lists[1],
		Owners:      lists[2],
		ReportTypes: lists[3],
	}, nil
}

func (s *SQLiteStore) distinct(ctx context.Context, q string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: facets")
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan facet")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: facets iterate")
}

func (s *SQLiteStore) ListReportKPIs(ctx context.Context) ([]model.ReportKPI, error) {
	rows, err := s.db.QueryContext(ctx, sqlReportKPIs)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list report kpis")
	}
	defer rows.Close()

	var out []model.ReportKPI
	for rows.Next() {
		rk, err := scanReportKPI(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report kpi")
		}
		out = append(out, *rk)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list report kpis iterate")
}

func (s *SQLiteStore) ListDepartments(ctx context.Context) ([]model.Department, error) {
	rows, err := s.db.QueryContext(ctx, sqlListDepartments)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list departments")
	}
	defer rows.Close()

	var out []model.Department
	for rows.Next() {
		var d model.Department
		if err := rows.Scan(&d.DeptID, &d.DeptName); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan department")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list departments iterate")
}

func (s *SQLiteStore) ListKPIs(ctx context.Context, filter KPIFilter) ([]model.KPIDefinition, error) {
	q, args := kpisQuery(filter).SQL(dialectSQLite)
	return s.queryKPIDefinitions(ctx, q, args...)
}

func (s *SQLiteStore) GetKPI(ctx context.Context, kpiID int64) (*model.KPIDefinition, error) {
	d, err := scanKPIDefinition(s.db.QueryRowContext(ctx, sqlListKPIDefs+` WHERE m.kpi_id = ?`, kpiID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: kpi %d", kpiID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get kpi %d", kpiID)
	}
	return d, nil
}

func (s *SQLiteStore) ListAllKPIDefinitions(ctx context.Context) ([]model.KPIDefinition, error) {
	return s.queryKPIDefinitions(ctx, sqlListKPIDefs+` ORDER BY d.dept_name, m.section, m.kpi_name`)
}

func (s *SQLiteStore) queryKPIDefinitions(ctx context.Context, q string, args ...any) ([]model.KPIDefinition, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list kpi definitions")
	}
	defer rows.Close()

	var out []model.KPIDefinition
	for rows.Next() {
		d, err := scanKPIDefinition(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan kpi definition")
		}
		out = append(out, *d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list kpi definitions iterate")
}

func (s *SQLiteStore) UpsertKPIDefinition(ctx context.Context, deptName, kpiKey string, fields model.KPIFields) (*model.KPIDefinition, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: upsert kpi: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	id, err := s.upsertKPI(ctx, tx, deptName, kpiKey, fields)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: upsert kpi: commit")
	}
	return s.GetKPI(ctx, id)
}

// UpsertKPIDefinitions applies every definition in a single transaction.
// Each definition's DeptName selects its department.
func (s *SQLiteStore) UpsertKPIDefinitions(ctx context.Context, defs []model.KPIDefinition) (int64, error) {
	if len(defs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert kpis: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, d := range defs {
		if _, err := s.upsertKPI(ctx, tx, d.DeptName, d.KPIKey, d.KPIFields); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert kpis: commit")
	}
	return int64(len(defs)), nil
}

func (s *SQLiteStore) upsertKPI(ctx context.Context, tx *sql.Tx, deptName, kpiKey string, fields model.KPIFields) (int64, error) {
	deptName = strings.TrimSpace(deptName)
	kpiKey = strings.TrimSpace(kpiKey)
	if deptName == "" || kpiKey == "" {
		return 0, eris.Wrap(ErrValidation, "sqlite: upsert kpi: department and key are required")
	}

	if _, err := tx.ExecContext(ctx, sqlInsertDepartment, deptName); err != nil {
		return 0, eris.Wrapf(err, "sqlite: insert department %s", deptName)
	}
	var deptID int64
	if err := tx.QueryRowContext(ctx, sqlGetDepartmentID, deptName).Scan(&deptID); err != nil {
		return 0, eris.Wrapf(err, "sqlite: resolve department %s", deptName)
	}

	_, ts := s.clock()
	var kpiID int64
	if err := tx.QueryRowContext(ctx, sqlUpsertKPIDef, upsertArgs(deptID, kpiKey, fields, ts)...).
		Scan(&kpiID); err != nil {
		return 0, eris.Wrapf(err, "sqlite: upsert kpi %s/%s", deptName, kpiKey)
	}
	return kpiID, nil
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: reset: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	args := make([]any, len(resetTables))
	for i, table := range resetTables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return eris.Wrapf(err, "sqlite: reset %s", table)
		}
		args[i] = table
	}
	// Restart AUTOINCREMENT ids at 1, matching RESTART IDENTITY on PostgreSQL.
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	if _, err := tx.ExecContext(ctx, `DELETE FROM sqlite_sequence WHERE name IN (`+marks+`)`, args...); err != nil {
		return eris.Wrap(err, "sqlite: reset sequences")
	}
	return eris.Wrap(tx.Commit(), "sqlite: reset: commit")
}
