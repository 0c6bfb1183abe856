package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/report-hub/internal/model"
)

var (
	// ErrValidation is returned when a required field is blank.
	ErrValidation = eris.New("validation failed")
	// ErrConflict is returned when a report id is already taken.
	ErrConflict = eris.New("already exists")
	// ErrNotFound is returned for an unknown report or KPI id.
	ErrNotFound = eris.New("not found")
)

// ReportFilter narrows ListReports. Empty fields are ignored.
type ReportFilter struct {
	Project    string `json:"project,omitempty"`
	Week       string `json:"week,omitempty"`
	Owner      string `json:"owner,omitempty"`
	ReportType string `json:"report_type,omitempty"`
	// Q is a case-insensitive substring matched against report_id, project,
	// owner and report_type.
	Q string `json:"q,omitempty"`
}

// KPIFilter narrows ListKPIs. Zero values are ignored.
type KPIFilter struct {
	DeptID  int64  `json:"dept_id,omitempty"`
	Section string `json:"section,omitempty"`
	// Search is a case-insensitive substring matched against kpi_key,
	// kpi_name and section.
	Search string `json:"search,omitempty"`
}

// Store defines the persistence interface for reports and the KPI library.
type Store interface {
	// Reports
	CreateReport(ctx context.Context, r model.NewReport) (*model.Report, error)
	GetReport(ctx context.Context, reportID string) (*model.Report, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, error)
	ListVersions(ctx context.Context, reportID string, limit int) ([]model.Version, error)
	AddVersion(ctx context.Context, reportID, notes string) (*model.Version, error)
	AddKPISnapshot(ctx context.Context, reportID string, in model.KPIInput) (*model.KPISnapshot, error)
	LatestKPI(ctx context.Context, reportID string) (*model.KPISnapshot, error)

	// Aggregates
	SummaryCards(ctx context.Context) (*model.Summary, error)
	Facets(ctx context.Context) (*model.Facets, error)
	ListReportKPIs(ctx context.Context) ([]model.ReportKPI, error)

	// KPI library
	ListDepartments(ctx context.Context) ([]model.Department, error)
	ListKPIs(ctx context.Context, filter KPIFilter) ([]model.KPIDefinition, error)
	GetKPI(ctx context.Context, kpiID int64) (*model.KPIDefinition, error)
	ListAllKPIDefinitions(ctx context.Context) ([]model.KPIDefinition, error)
	UpsertKPIDefinition(ctx context.Context, deptName, kpiKey string, fields model.KPIFields) (*model.KPIDefinition, error)
	UpsertKPIDefinitions(ctx context.Context, defs []model.KPIDefinition) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Reset(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
