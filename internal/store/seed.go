package store

import (
	"context"
	_ "embed"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/report-hub/internal/model"
)

//go:embed seed/kpi_library.yaml
var kpiLibraryYAML []byte

type kpiLibrary struct {
	Departments []struct {
		Name string       `yaml:"name"`
		KPIs []libraryKPI `yaml:"kpis"`
	} `yaml:"departments"`
}

type libraryKPI struct {
	Key             string `yaml:"key"`
	model.KPIFields `yaml:",inline"`
}

// LoadKPILibrary parses the embedded KPI reference library.
func LoadKPILibrary() ([]model.KPIDefinition, error) {
	return parseKPILibrary(kpiLibraryYAML)
}

func parseKPILibrary(data []byte) ([]model.KPIDefinition, error) {
	var lib kpiLibrary
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, eris.Wrap(err, "seed: parse kpi library")
	}
	var defs []model.KPIDefinition
	for _, d := range lib.Departments {
		for _, k := range d.KPIs {
			if d.Name == "" || k.Key == "" {
				return nil, eris.Errorf("seed: kpi library entry %q/%q is missing a department or key", d.Name, k.Key)
			}
			defs = append(defs, model.KPIDefinition{
				DeptName:  d.Name,
				KPIKey:    k.Key,
				KPIFields: k.KPIFields,
			})
		}
	}
	return defs, nil
}

// SeedKPILibrary upserts the embedded KPI library. Running it again leaves
// one row per (department, key).
func SeedKPILibrary(ctx context.Context, s Store) error {
	defs, err := LoadKPILibrary()
	if err != nil {
		return err
	}
	return seedKPILibrary(ctx, s, defs)
}

func seedKPILibrary(ctx context.Context, s Store, defs []model.KPIDefinition) error {
	n, err := s.UpsertKPIDefinitions(ctx, defs)
	if err != nil {
		return eris.Wrap(err, "seed: upsert kpi library")
	}
	zap.L().Debug("kpi library seeded", zap.Int64("definitions", n))
	return nil
}

type demoReport struct {
	report   model.NewReport
	versions []string
	kpi      model.KPIInput
}

var demoReports = []demoReport{
	{
		report: model.NewReport{ReportID: "R001", Project: "Alpha", Week: "W35", Owner: "GPSE1",
			ReportType: "Weekly", Status: "Final", StorageURL: "file:///dummy/Alpha_W35_v1.pptx"},
		versions: []string{"Initial weekly report draft.", "Added KPI clarifications and updated risks."},
		kpi:      model.KPIInput{SLA: "99.2", P1Incidents: "1", MTTRMinutes: "45", RiskCount: "2", RAG: "Green"},
	},
	{
		report: model.NewReport{ReportID: "R002", Project: "Beta", Week: "W35", Owner: "GPSE2",
			ReportType: "Incident", Status: "Draft", StorageURL: "file:///dummy/Beta_W35_v2.pptx"},
		versions: []string{"Incident summary created."},
		kpi:      model.KPIInput{SLA: "97.1", P1Incidents: "3", MTTRMinutes: "80", RiskCount: "5", RAG: "Amber"},
	},
	{
		report: model.NewReport{ReportID: "R003", Project: "Alpha", Week: "W36", Owner: "GPSE1",
			ReportType: "Weekly", Status: "Draft", StorageURL: "file:///dummy/Alpha_W36_v1.pptx"},
		versions: []string{"New week created; waiting for final KPIs."},
		kpi:      model.KPIInput{SLA: "98.7", P1Incidents: "2", MTTRMinutes: "60", RiskCount: "3", RAG: "Amber"},
	},
	{
		report: model.NewReport{ReportID: "R004", Project: "Gamma", Week: "W35", Owner: "GPSE3",
			ReportType: "Weekly", Status: "Final", StorageURL: "file:///dummy/Gamma_W35_v1.pptx"},
		kpi: model.KPIInput{SLA: "99.6", P1Incidents: "0", MTTRMinutes: "30", RiskCount: "1", RAG: "Green"},
	},
}

// SeedDemo inserts the demo reports, versions and snapshots. It does nothing
// when any report already exists.
func SeedDemo(ctx context.Context, s Store) error {
	existing, err := s.ListReports(ctx, ReportFilter{})
	if err != nil {
		return eris.Wrap(err, "seed: check reports")
	}
	if len(existing) > 0 {
		return nil
	}

	for _, d := range demoReports {
		if _, err := s.CreateReport(ctx, d.report); err != nil {
			return eris.Wrapf(err, "seed: demo report %s", d.report.ReportID)
		}
		for _, notes := range d.versions {
			if _, err := s.AddVersion(ctx, d.report.ReportID, notes); err != nil {
				return eris.Wrapf(err, "seed: demo version for %s", d.report.ReportID)
			}
		}
		if _, err := s.AddKPISnapshot(ctx, d.report.ReportID, d.kpi); err != nil {
			return eris.Wrapf(err, "seed: demo kpi for %s", d.report.ReportID)
		}
	}
	zap.L().Info("demo data seeded", zap.Int("reports", len(demoReports)))
	return nil
}

// Seed loads the KPI library and, when demo is set, the demo reports.
func Seed(ctx context.Context, s Store, demo bool) error {
	defs, err := LoadKPILibrary()
	if err != nil {
		return err
	}
	return seed(ctx, s, defs, demo)
}

func seed(ctx context.Context, s Store, defs []model.KPIDefinition, demo bool) error {
	if err := seedKPILibrary(ctx, s, defs); err != nil {
		return err
	}
	if !demo {
		return nil
	}
	return SeedDemo(ctx, s)
}

// ResetDemo wipes every table and seeds again. The library is parsed before
// the wipe, so a bad library leaves the store untouched. Reset and seeding
// are separate transactions; a store error while seeding leaves the store
// partly seeded.
func ResetDemo(ctx context.Context, s Store, demo bool) error {
	defs, err := LoadKPILibrary()
	if err != nil {
		return eris.Wrap(err, "seed: reset")
	}
	if err := s.Reset(ctx); err != nil {
		return err
	}
	return seed(ctx, s, defs, demo)
}
