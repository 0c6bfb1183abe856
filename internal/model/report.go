package model

import (
	"time"
)

// RAG is the Red/Amber/Green health tag recorded on a KPI snapshot.
type RAG string

const (
	RAGGreen RAG = "Green"
	RAGAmber RAG = "Amber"
	RAGRed   RAG = "Red"
)

// Report is a weekly or incident status document.
type Report struct {
	ReportID   string    `json:"report_id"`
	Project    string    `json:"project"`
	Week       string    `json:"week"`
	Owner      string    `json:"owner"`
	ReportType string    `json:"report_type"`
	Status     string    `json:"status"`
	StorageURL string    `json:"storage_url"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewReport carries the user-supplied fields for report creation.
type NewReport struct {
	ReportID   string `json:"report_id" validate:"required"`
	Project    string `json:"project" validate:"required"`
	Week       string `json:"week" validate:"required"`
	Owner      string `json:"owner" validate:"required"`
	ReportType string `json:"report_type" validate:"required"`
	Status     string `json:"status" validate:"required"`
	StorageURL string `json:"storage_url"`
}

// Version is an append-only note attached to a report.
type Version struct {
	ID        int64     `json:"id"`
	ReportID  string    `json:"report_id"`
	VersionNo int       `json:"version_no"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

// KPISnapshot is a point-in-time set of operational KPIs for a report.
type KPISnapshot struct {
	ID          int64     `json:"id"`
	ReportID    string    `json:"report_id"`
	SLA         float64   `json:"sla"`
	P1Incidents int       `json:"p1_incidents"`
	MTTRMinutes int       `json:"mttr_minutes"`
	RiskCount   int       `json:"risk_count"`
	RAG         RAG       `json:"rag"`
	CreatedAt   time.Time `json:"created_at"`
}

// KPIInput is the raw form input for a KPI snapshot. Values are coerced by
// Snapshot, never rejected.
type KPIInput struct {
	SLA         string `json:"sla"`
	P1Incidents string `json:"p1_incidents"`
	MTTRMinutes string `json:"mttr_minutes"`
	RiskCount   string `json:"risk_count"`
	RAG         string `json:"rag"`
}

// Snapshot coerces the raw input into typed snapshot values.
func (in KPIInput) Snapshot(reportID string) KPISnapshot {
	return KPISnapshot{
		ReportID:    reportID,
		SLA:         ParseFloat(in.SLA, 0),
		P1Incidents: ParseCount(in.P1Incidents),
		MTTRMinutes: ParseCount(in.MTTRMinutes),
		RiskCount:   ParseCount(in.RiskCount),
		RAG:         NormalizeRAG(in.RAG),
	}
}

// ReportKPI is a report joined with its latest KPI snapshot. KPI fields are
// nil when the report has no snapshot.
type ReportKPI struct {
	ReportID     string     `json:"report_id"`
	Project      string     `json:"project"`
	Week         string     `json:"week"`
	Owner        string     `json:"owner"`
	ReportType   string     `json:"report_type"`
	Status       string     `json:"status"`
	SLA          *float64   `json:"sla"`
	P1Incidents  *int       `json:"p1_incidents"`
	MTTRMinutes  *int       `json:"mttr_minutes"`
	RiskCount    *int       `json:"risk_count"`
	RAG          *string    `json:"rag"`
	KPIUpdatedAt *time.Time `json:"created_at"`
	HubURL       string     `json:"hub_url,omitempty"`
}

// Summary holds dashboard aggregates over every KPI snapshot. Fields are nil
// when no snapshots exist.
type Summary struct {
	AvgSLA     *float64 `json:"avg_sla"`
	TotalP1    *int64   `json:"total_p1"`
	AvgMTTR    *float64 `json:"avg_mttr"`
	TotalRisks *int64   `json:"total_risks"`
}

// Facets lists the distinct report values used to populate filter dropdowns.
type Facets struct {
	Projects    []string `json:"projects"`
	Weeks       []string `json:"weeks"`
	Owners      []string `json:"owners"`
	ReportTypes []string `json:"report_types"`
}
