package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/report-hub/internal/db"
	"github.com/sells-group/report-hub/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool       db.Pool
	connString string
	closeFn    func()
	now        func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, connString: connString, closeFn: pool.Close, now: time.Now}, nil
}

// pg rebinds a shared statement for PostgreSQL.
func pg(q string) string {
	return rebind(dialectPostgres, q)
}

func (s *PostgresStore) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if s.connString == "" {
		return eris.New("postgres: migrate: no connection string")
	}
	return migratePostgres(ctx, s.connString)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateReport(ctx context.Context, in model.NewReport) (*model.Report, error) {
	in = in.Normalize()
	if missing := in.Validate(); len(missing) > 0 {
		return nil, eris.Wrapf(ErrValidation, "postgres: create report: missing %s", strings.Join(missing, ", "))
	}

	now := s.clock()
	tag, err := s.pool.Exec(ctx, pg(sqlInsertReport),
		in.ReportID, in.Project, in.Week, in.Owner, in.ReportType, in.Status, in.StorageURL, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert report %s", in.ReportID)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrConflict, "postgres: report %s", in.ReportID)
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

func (s *PostgresStore) GetReport(ctx context.Context, reportID string) (*model.Report, error) {
	r, err := scanReport(s.pool.QueryRow(ctx, pg(sqlGetReport), reportID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: report %s", reportID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get report %s", reportID)
	}
	return r, nil
}

func (s *PostgresStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, error) {
	q, args := reportsQuery(filter).SQL(dialectPostgres)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reports")
	}
	defer rows.Close()

	var out []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list reports iterate")
}

func (s *PostgresStore) ListVersions(ctx context.Context, reportID string, limit int) ([]model.Version, error) {
	q := sqlListVersions
	args := []any{reportID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, pg(q), args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list versions %s", reportID)
	}
	defer rows.Close()

	var out []model.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan version")
		}
		out = append(out, *v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list versions iterate")
}

// AddVersion updates the parent row first; the row lock it takes serializes
// concurrent callers until commit, so MAX(version_no)+1 is never shared.
func (s *PostgresStore) AddVersion(ctx context.Context, reportID, notes string) (*model.Version, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, eris.Wrap(ErrValidation, "postgres: add version: notes are required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: add version: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := s.clock()
	if err := pgTouchReport(ctx, tx, reportID, now); err != nil {
		return nil, err
	}

	v := model.Version{ReportID: reportID, Notes: notes, CreatedAt: now}
	if err := tx.QueryRow(ctx, pg(sqlInsertVersionPG), reportID, notes, now, reportID).
		Scan(&v.ID, &v.VersionNo); err != nil {
		return nil, eris.Wrapf(err, "postgres: insert version for %s", reportID)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: add version: commit")
	}
	return &v, nil
}

func (s *PostgresStore) AddKPISnapshot(ctx context.Context, reportID string, in model.KPIInput) (*model.KPISnapshot, error) {
	snap := in.Snapshot(reportID)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: add kpi: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := s.clock()
	if err := pgTouchReport(ctx, tx, reportID, now); err != nil {
		return nil, err
	}
	snap.CreatedAt = now
	if err := tx.QueryRow(ctx, pg(sqlInsertKPI),
		reportID, snap.SLA, snap.P1Incidents, snap.MTTRMinutes, snap.RiskCount, string(snap.RAG), now,
	).Scan(&snap.ID); err != nil {
		return nil, eris.Wrapf(err, "postgres: insert kpi for %s", reportID)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: add kpi: commit")
	}
	return &snap, nil
}

func pgTouchReport(ctx context.Context, tx pgx.Tx, reportID string, now time.Time) error {
	tag, err := tx.Exec(ctx, pg(sqlTouchReport), now, reportID)
	if err != nil {
		return eris.Wrapf(err, "postgres: touch report %s", reportID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: report %s", reportID)
	}
	return nil
}

func (s *PostgresStore) LatestKPI(ctx context.Context, reportID string) (*model.KPISnapshot, error) {
	k, err := scanKPI(s.pool.QueryRow(ctx, pg(sqlLatestKPI), reportID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest kpi %s", reportID)
	}
	return k, nil
}

func (s *PostgresStore) SummaryCards(ctx context.Context) (*model.Summary, error) {
	sum, err := scanSummary(s.pool.QueryRow(ctx, sqlSummary))
	return sum, eris.Wrap(err, "postgres: summary cards")
}

func (s *PostgresStore) Facets(ctx context.Context) (*model.Facets, error) {
	var lists [len(facetQueries)][]string
	for i, q := range facetQueries {
		rows, err := s.pool.Query(ctx, q)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: facets")
		}
		vals, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan facet")
		}
		if vals == nil {
			vals = []string{}
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

func (s *PostgresStore) ListReportKPIs(ctx context.Context) ([]model.ReportKPI, error) {
	rows, err := s.pool.Query(ctx, sqlReportKPIs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list report kpis")
	}
	defer rows.Close()

	var out []model.ReportKPI
	for rows.Next() {
		rk, err := scanReportKPI(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan report kpi")
		}
		out = append(out, *rk)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list report kpis iterate")
}

func (s *PostgresStore) ListDepartments(ctx context.Context) ([]model.Department, error) {
	rows, err := s.pool.Query(ctx, sqlListDepartments)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list departments")
	}
	defer rows.Close()

	var out []model.Department
	for rows.Next() {
		var d model.Department
		if err := rows.Scan(&d.DeptID, &d.DeptName); err != nil {
			return nil, eris.Wrap(err, "postgres: scan department")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list departments iterate")
}

func (s *PostgresStore) ListKPIs(ctx context.Context, filter KPIFilter) ([]model.KPIDefinition, error) {
	q, args := kpisQuery(filter).SQL(dialectPostgres)
	return s.queryKPIDefinitions(ctx, q, args...)
}

func (s *PostgresStore) GetKPI(ctx context.Context, kpiID int64) (*model.KPIDefinition, error) {
	d, err := scanKPIDefinition(s.pool.QueryRow(ctx, pg(sqlListKPIDefs+` WHERE m.kpi_id = ?`), kpiID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: kpi %d", kpiID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get kpi %d", kpiID)
	}
	return d, nil
}

func (s *PostgresStore) ListAllKPIDefinitions(ctx context.Context) ([]model.KPIDefinition, error) {
	return s.queryKPIDefinitions(ctx, sqlListKPIDefs+` ORDER BY d.dept_name, m.section, m.kpi_name`)
}

func (s *PostgresStore) queryKPIDefinitions(ctx context.Context, q string, args ...any) ([]model.KPIDefinition, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list kpi definitions")
	}
	defer rows.Close()

	var out []model.KPIDefinition
	for rows.Next() {
		d, err := scanKPIDefinition(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan kpi definition")
		}
		out = append(out, *d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list kpi definitions iterate")
}

func (s *PostgresStore) UpsertKPIDefinition(ctx context.Context, deptName, kpiKey string, fields model.KPIFields) (*model.KPIDefinition, error) {
	deptName = strings.TrimSpace(deptName)
	kpiKey = strings.TrimSpace(kpiKey)
	if deptName == "" || kpiKey == "" {
		return nil, eris.Wrap(ErrValidation, "postgres: upsert kpi: department and key are required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: upsert kpi: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	ids, err := pgDepartmentIDs(ctx, tx, []string{deptName})
	if err != nil {
		return nil, err
	}

	var kpiID int64
	if err := tx.QueryRow(ctx, pg(sqlUpsertKPIDef), upsertArgs(ids[deptName], kpiKey, fields, s.clock())...).
		Scan(&kpiID); err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert kpi %s/%s", deptName, kpiKey)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: upsert kpi: commit")
	}
	return s.GetKPI(ctx, kpiID)
}

// kpiMasterColumns is the COPY column order used by UpsertKPIDefinitions.
var kpiMasterColumns = []string{
	"dept_id", "kpi_key", "section", "kpi_name", "formula_display",
	"description", "calculation_notes", "green_rule", "amber_rule", "red_rule", "owner_team", "updated_at",
}

// UpsertKPIDefinitions resolves departments and merges all definitions
// through db.BulkUpsert in a single transaction. A (department, key) pair
// repeated in defs keeps its last definition.
func (s *PostgresStore) UpsertKPIDefinitions(ctx context.Context, defs []model.KPIDefinition) (int64, error) {
	if len(defs) == 0 {
		return 0, nil
	}

	names := make([]string, 0, len(defs))
	for _, d := range defs {
		if strings.TrimSpace(d.DeptName) == "" || strings.TrimSpace(d.KPIKey) == "" {
			return 0, eris.Wrap(ErrValidation, "postgres: upsert kpis: department and key are required")
		}
		names = append(names, strings.TrimSpace(d.DeptName))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert kpis: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	ids, err := pgDepartmentIDs(ctx, tx, names)
	if err != nil {
		return 0, err
	}
	if _, err := db.BulkUpsert(ctx, tx, db.UpsertConfig{
		Table:        "kpi_master",
		Columns:      kpiMasterColumns,
		ConflictKeys: []string{"dept_id", "kpi_key"},
	}, kpiMasterRows(ids, defs, s.clock())); err != nil {
		return 0, eris.Wrap(err, "postgres: upsert kpis")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: upsert kpis: commit tx")
	}
	return int64(len(defs)), nil
}

// kpiMasterRows builds one COPY row per distinct (dept_id, kpi_key), keeping
// the last definition of a repeated pair at the position of its first.
func kpiMasterRows(ids map[string]int64, defs []model.KPIDefinition, now time.Time) [][]any {
	type key struct {
		dept int64
		kpi  string
	}
	pos := make(map[key]int, len(defs))
	rows := make([][]any, 0, len(defs))
	for _, d := range defs {
		k := key{ids[strings.TrimSpace(d.DeptName)], strings.TrimSpace(d.KPIKey)}
		row := upsertArgs(k.dept, k.kpi, d.KPIFields, now)
		if i, ok := pos[k]; ok {
			rows[i] = row
			continue
		}
		pos[k] = len(rows)
		rows = append(rows, row)
	}
	return rows
}

// pgDepartmentIDs inserts any missing departments and returns name -> id.
func pgDepartmentIDs(ctx context.Context, tx pgx.Tx, names []string) (map[string]int64, error) {
	ids := make(map[string]int64, len(names))
	for _, name := range names {
		if _, ok := ids[name]; ok {
			continue
		}
		if _, err := tx.Exec(ctx, pg(sqlInsertDepartment), name); err != nil {
			return nil, eris.Wrapf(err, "postgres: insert department %s", name)
		}
		var id int64
		if err := tx.QueryRow(ctx, pg(sqlGetDepartmentID), name).Scan(&id); err != nil {
			return nil, eris.Wrapf(err, "postgres: resolve department %s", name)
		}
		ids[name] = id
	}
	return ids, nil
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE `+strings.Join(resetTables, ", ")+` RESTART IDENTITY`)
	return eris.Wrap(err, "postgres: reset")
}
