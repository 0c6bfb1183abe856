package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/report-hub/internal/model"
)

var fixedNow = time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock, now: func() time.Time { return fixedNow }}
	return s, mock
}

func TestPostgresStore_GetReport_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT report_id, .* FROM reports WHERE report_id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetReport(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateReport_Conflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO reports .* ON CONFLICT \(report_id\) DO NOTHING`).
		WithArgs("R001", "Alpha", "W35", "GPSE1", "Weekly", "Final", "", fixedNow, fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	_, err := s.CreateReport(context.Background(), model.NewReport{
		ReportID: "R001", Project: "Alpha", Week: "W35", Owner: "GPSE1", ReportType: "Weekly", Status: "Final",
	})
	assert.True(t, errors.Is(err, ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateReport_Validation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	_, err := s.CreateReport(context.Background(), model.NewReport{ReportID: "R001"})
	assert.True(t, errors.Is(err, ErrValidation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddVersion(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE reports SET updated_at = \$1 WHERE report_id = \$2`).
		WithArgs(fixedNow, "R001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`INSERT INTO versions .* COALESCE\(MAX\(version_no\), 0\) \+ 1`).
		WithArgs("R001", "Weekly notes", fixedNow, "R001").
		WillReturnRows(pgxmock.NewRows([]string{"id", "version_no"}).AddRow(int64(7), 3))
	mock.ExpectCommit()

	v, err := s.AddVersion(context.Background(), "R001", "  Weekly notes ")
	require.NoError(t, err)
	assert.Equal(t, int64(7), v.ID)
	assert.Equal(t, 3, v.VersionNo)
	assert.Equal(t, "Weekly notes", v.Notes)
	assert.Equal(t, fixedNow, v.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddVersion_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE reports SET updated_at`).
		WithArgs(fixedNow, "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	_, err := s.AddVersion(context.Background(), "missing", "notes")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddKPISnapshot(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE reports SET updated_at`).
		WithArgs(fixedNow, "R001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`INSERT INTO kpis .* RETURNING id`).
		WithArgs("R001", 98.5, 2, 0, 0, "Amber", fixedNow).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectCommit()

	snap, err := s.AddKPISnapshot(context.Background(), "R001", model.KPIInput{
		SLA: "98.5", P1Incidents: "2", MTTRMinutes: "abc", RiskCount: "-1", RAG: "yellow",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), snap.ID)
	assert.Equal(t, model.RAGAmber, snap.RAG)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestKPI_None(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM kpis\s+WHERE report_id = \$1 ORDER BY created_at DESC, id DESC LIMIT 1`).
		WithArgs("R001").
		WillReturnError(pgx.ErrNoRows)

	k, err := s.LatestKPI(context.Background(), "R001")
	require.NoError(t, err)
	assert.Nil(t, k)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Facets(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT DISTINCT project`).
		WillReturnRows(pgxmock.NewRows([]string{"project"}).AddRow("Alpha").AddRow("Beta"))
	mock.ExpectQuery(`SELECT DISTINCT week`).
		WillReturnRows(pgxmock.NewRows([]string{"week"}).AddRow("W36"))
	mock.ExpectQuery(`SELECT DISTINCT owner`).
		WillReturnRows(pgxmock.NewRows([]string{"owner"}))
	mock.ExpectQuery(`SELECT DISTINCT report_type`).
		WillReturnRows(pgxmock.NewRows([]string{"report_type"}).AddRow("Weekly"))

	f, err := s.Facets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Beta"}, f.Projects)
	assert.Equal(t, []string{"W36"}, f.Weeks)
	assert.Equal(t, []string{}, f.Owners)
	assert.Equal(t, []string{"Weekly"}, f.ReportTypes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListDepartments(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT dept_id, dept_name FROM departments ORDER BY dept_name`).
		WillReturnRows(pgxmock.NewRows([]string{"dept_id", "dept_name"}).
			AddRow(int64(2), "Incident Management").
			AddRow(int64(1), "Service Desk"))

	depts, err := s.ListDepartments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.Department{
		{DeptID: 2, DeptName: "Incident Management"},
		{DeptID: 1, DeptName: "Service Desk"},
	}, depts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetKPI_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM kpi_master m JOIN departments d ON d.dept_id = m.dept_id WHERE m.kpi_id = \$1`).
		WithArgs(int64(42)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetKPI(context.Background(), 42)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// expectDepartment queues the insert-then-select that resolves one department.
func expectDepartment(mock pgxmock.PgxPoolIface, name string, id int64) {
	mock.ExpectExec(`INSERT INTO departments \(dept_name\) VALUES \(\$1\)`).
		WithArgs(name).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT dept_id FROM departments WHERE dept_name = \$1`).
		WithArgs(name).
		WillReturnRows(pgxmock.NewRows([]string{"dept_id"}).AddRow(id))
}

func TestPostgresStore_UpsertKPIDefinitions(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	expectDepartment(mock, "Service Desk", 1)
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_kpi_master"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_kpi_master"}, kpiMasterColumns).WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("dept_id", "kpi_key"\) DO UPDATE SET`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.UpsertKPIDefinitions(context.Background(), []model.KPIDefinition{
		{DeptName: "Service Desk", KPIKey: "sla_compliance", KPIFields: model.KPIFields{Section: "Service Levels", KPIName: "SLA Compliance"}},
		{DeptName: "Service Desk", KPIKey: "ticket_backlog", KPIFields: model.KPIFields{Section: "Workload", KPIName: "Open Ticket Backlog"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertKPIDefinitions_DuplicateKeys(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	expectDepartment(mock, "Service Desk", 1)
	expectDepartment(mock, "Network", 2)
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_kpi_master"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_kpi_master"}, kpiMasterColumns).WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("dept_id", "kpi_key"\) DO UPDATE SET`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.UpsertKPIDefinitions(context.Background(), []model.KPIDefinition{
		{DeptName: "Service Desk", KPIKey: "sla_compliance", KPIFields: model.KPIFields{KPIName: "SLA v1"}},
		{DeptName: "Network", KPIKey: "sla_compliance", KPIFields: model.KPIFields{KPIName: "Network SLA"}},
		{DeptName: " Service Desk ", KPIKey: "sla_compliance ", KPIFields: model.KPIFields{KPIName: "SLA v2"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertKPIDefinitions_MergeFailureCommitsNothing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	expectDepartment(mock, "Facilities", 7)
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_kpi_master"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_kpi_master"}, kpiMasterColumns).WillReturnResult(1)
	mock.ExpectExec(`ON CONFLICT`).WillReturnError(errors.New("merge failed"))
	mock.ExpectRollback()

	_, err := s.UpsertKPIDefinitions(context.Background(), []model.KPIDefinition{
		{DeptName: "Facilities", KPIKey: "work_orders"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merge failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKPIMasterRows_LastDefinitionWins(t *testing.T) {
	ids := map[string]int64{"Service Desk": 1, "Network": 2}
	rows := kpiMasterRows(ids, []model.KPIDefinition{
		{DeptName: "Service Desk", KPIKey: "sla_compliance", KPIFields: model.KPIFields{KPIName: "SLA v1"}},
		{DeptName: "Network", KPIKey: "sla_compliance", KPIFields: model.KPIFields{KPIName: "Network SLA"}},
		{DeptName: "Service Desk ", KPIKey: " sla_compliance", KPIFields: model.KPIFields{KPIName: "SLA v2"}},
	}, fixedNow)

	require.Len(t, rows, 2)
	assert.Equal(t, []any{int64(1), "sla_compliance"}, rows[0][:2])
	assert.Equal(t, "SLA v2", rows[0][3])
	assert.Equal(t, int64(2), rows[1][0])
	assert.Equal(t, "Network SLA", rows[1][3])
	assert.Equal(t, fixedNow, rows[1][len(rows[1])-1])
}

func TestPostgresStore_UpsertKPIDefinitions_Validation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	_, err := s.UpsertKPIDefinitions(context.Background(), []model.KPIDefinition{{DeptName: "Ops"}})
	assert.True(t, errors.Is(err, ErrValidation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Reset(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`TRUNCATE kpis, versions, reports, kpi_master, departments RESTART IDENTITY`).
		WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))

	require.NoError(t, s.Reset(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate_NoConnString(t *testing.T) {
	s, _ := newMockPostgresStore(t)
	err := s.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no connection string")
}
