// Package deck builds the per-report slide deck and writes it as a .pptx
// file.
package deck

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/report-hub/internal/model"
)

// MaxVersionNotes caps the notes listed on the versions slide.
const MaxVersionNotes = 5

// Slide is one slide of a deck. Cover slides render Body as subtitle lines;
// other slides render it as bullets.
type Slide struct {
	Title string
	Body  []string
	Cover bool
}

// Deck is an ordered list of slides.
type Deck struct {
	Title  string
	Slides []Slide
	// Created stamps the package properties. Zero means the time of writing.
	Created time.Time
}

// BuildReportDeck assembles the three-slide report deck: a cover, the
// latest KPI snapshot, and the most recent version notes. versions must be
// ordered newest first; kpi may be nil.
func BuildReportDeck(r model.Report, kpi *model.KPISnapshot, versions []model.Version, now time.Time) Deck {
	title := fmt.Sprintf("%s - %s (%s)", r.Project, r.Week, r.ReportType)

	cover := Slide{
		Title: title,
		Cover: true,
		Body: []string{
			fmt.Sprintf("Report ID: %s | Owner: %s | Status: %s", r.ReportID, r.Owner, r.Status),
			"Generated: " + now.Format("2006-01-02 15:04:05"),
		},
	}

	kpis := Slide{Title: "KPIs (Latest Snapshot)", Body: []string{"No KPI snapshot found yet."}}
	if kpi != nil {
		kpis.Body = []string{
			"SLA: " + strconv.FormatFloat(kpi.SLA, 'f', -1, 64) + "%",
			fmt.Sprintf("P1 Incidents: %d", kpi.P1Incidents),
			fmt.Sprintf("MTTR: %d min", kpi.MTTRMinutes),
			fmt.Sprintf("Risk Count: %d", kpi.RiskCount),
			fmt.Sprintf("RAG Status: %s", kpi.RAG),
		}
	}

	notes := Slide{Title: "Recent Versions / Notes", Body: []string{"No versions recorded yet."}}
	if len(versions) > 0 {
		if len(versions) > MaxVersionNotes {
			versions = versions[:MaxVersionNotes]
		}
		notes.Body = make([]string, len(versions))
		for i, v := range versions {
			notes.Body[i] = fmt.Sprintf("v%d: %s", v.VersionNo, v.Notes)
		}
	}

	return Deck{Title: title, Slides: []Slide{cover, kpis, notes}, Created: now}
}

var fileNameReplacer = strings.NewReplacer(" ", "_", "/", "_", `\`, "_")

// FileName returns "{report_id}_{project}_{week}.pptx" with spaces replaced
// by underscores. Path separators are replaced too so the name stays inside
// the output directory.
func FileName(r model.Report) string {
	return fileNameReplacer.Replace(fmt.Sprintf("%s_%s_%s.pptx", r.ReportID, r.Project, r.Week))
}
