package model

import "time"

// Department groups KPI definitions in the reference library.
type Department struct {
	DeptID   int64  `json:"dept_id" yaml:"-"`
	DeptName string `json:"dept_name" yaml:"name"`
}

// KPIFields are the non-key attributes of a KPI definition. An upsert
// overwrites all of them.
type KPIFields struct {
	Section          string `json:"section" yaml:"section"`
	KPIName          string `json:"kpi_name" yaml:"name"`
	FormulaDisplay   string `json:"formula_display" yaml:"formula"`
	Description      string `json:"description" yaml:"description"`
	CalculationNotes string `json:"calculation_notes" yaml:"calculation_notes"`
	GreenRule        string `json:"green_rule" yaml:"green"`
	AmberRule        string `json:"amber_rule" yaml:"amber"`
	RedRule          string `json:"red_rule" yaml:"red"`
	OwnerTeam        string `json:"owner_team" yaml:"owner_team"`
}

// KPIDefinition is a KPI reference entry, unique per (DeptID, KPIKey).
type KPIDefinition struct {
	KPIID    int64  `json:"kpi_id"`
	DeptID   int64  `json:"dept_id"`
	DeptName string `json:"dept_name"`
	KPIKey   string `json:"kpi_key"`
	KPIFields
	UpdatedAt time.Time `json:"updated_at"`
}
