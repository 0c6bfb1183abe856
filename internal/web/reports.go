package web

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/report-hub/internal/deck"
	"github.com/sells-group/report-hub/internal/model"
	"github.com/sells-group/report-hub/internal/store"
)

func reportPath(id string) string {
	return "/report/" + url.PathEscape(id)
}

func reportFilter(r *http.Request) store.ReportFilter {
	q := r.URL.Query()
	return store.ReportFilter{
		Project:    strings.TrimSpace(q.Get("project")),
		Week:       strings.TrimSpace(q.Get("week")),
		Owner:      strings.TrimSpace(q.Get("owner")),
		ReportType: strings.TrimSpace(q.Get("report_type")),
		Q:          strings.TrimSpace(q.Get("q")),
	}
}

type dashboardData struct {
	Filter  store.ReportFilter
	Reports []model.Report
	Facets  *model.Facets
	Summary *model.Summary
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := dashboardData{Filter: reportFilter(r)}

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		data.Reports, err = s.store.ListReports(ctx, data.Filter)
		return err
	})
	g.Go(func() error {
		var err error
		data.Facets, err = s.store.Facets(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		data.Summary, err = s.store.SummaryCards(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.serverError(w, r, err)
		return
	}

	s.render(w, r, http.StatusOK, "dashboard", "Dashboard", data)
}

func (s *Server) handleCreateForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "create", "New report", nil)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectFlash(w, r, "/create", flashDanger, "Could not read the submitted form.")
		return
	}
	in := model.NewReport{
		ReportID:   r.PostForm.Get("report_id"),
		Project:    r.PostForm.Get("project"),
		Week:       r.PostForm.Get("week"),
		Owner:      r.PostForm.Get("owner"),
		ReportType: r.PostForm.Get("report_type"),
		Status:     r.PostForm.Get("status"),
		StorageURL: r.PostForm.Get("storage_url"),
	}

	rep, err := s.store.CreateReport(r.Context(), in)
	switch {
	case errors.Is(err, store.ErrValidation):
		redirectFlash(w, r, "/create", flashDanger, "All fields except Storage URL are required.")
	case errors.Is(err, store.ErrConflict):
		redirectFlash(w, r, "/create", flashDanger, "Report ID already exists. Use a new ID.")
	case err != nil:
		s.serverError(w, r, err)
	default:
		redirectFlash(w, r, reportPath(rep.ReportID), flashSuccess, "Report created.")
	}
}

type reportData struct {
	Report   *model.Report
	Versions []model.Version
	KPI      *model.KPISnapshot
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	rep, err := s.store.GetReport(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		s.renderNotFound(w, r, "Report not found.")
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	versions, err := s.store.ListVersions(ctx, id, 0)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	kpi, err := s.store.LatestKPI(ctx, id)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	s.render(w, r, http.StatusOK, "report", rep.ReportID, reportData{Report: rep, Versions: versions, KPI: kpi})
}

func (s *Server) handleAddVersion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := r.ParseForm(); err != nil {
		redirectFlash(w, r, reportPath(id), flashDanger, "Could not read the submitted form.")
		return
	}

	v, err := s.store.AddVersion(r.Context(), id, r.PostForm.Get("notes"))
	switch {
	case errors.Is(err, store.ErrValidation):
		redirectFlash(w, r, reportPath(id), flashDanger, "Version notes are required.")
	case errors.Is(err, store.ErrNotFound):
		redirectFlash(w, r, "/dashboard", flashDanger, "Report not found.")
	case err != nil:
		s.serverError(w, r, err)
	default:
		redirectFlash(w, r, reportPath(id), flashSuccess, fmt.Sprintf("Saved version v%d.", v.VersionNo))
	}
}

func (s *Server) handleAddKPI(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := r.ParseForm(); err != nil {
		redirectFlash(w, r, reportPath(id), flashDanger, "Could not read the submitted form.")
		return
	}
	in := model.KPIInput{
		SLA:         r.PostForm.Get("sla"),
		P1Incidents: r.PostForm.Get("p1_incidents"),
		MTTRMinutes: r.PostForm.Get("mttr_minutes"),
		RiskCount:   r.PostForm.Get("risk_count"),
		RAG:         r.PostForm.Get("rag"),
	}

	_, err := s.store.AddKPISnapshot(r.Context(), id, in)
	switch {
	case errors.Is(err, store.ErrNotFound):
		redirectFlash(w, r, "/dashboard", flashDanger, "Report not found.")
	case err != nil:
		s.serverError(w, r, err)
	default:
		redirectFlash(w, r, reportPath(id), flashSuccess, "KPI snapshot saved.")
	}
}

func (s *Server) handleGenerateDeck(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	rep, err := s.store.GetReport(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		redirectFlash(w, r, "/dashboard", flashDanger, "Report not found.")
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	kpi, err := s.store.LatestKPI(ctx, id)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	versions, err := s.store.ListVersions(ctx, id, deck.MaxVersionNotes)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	d := deck.BuildReportDeck(*rep, kpi, versions, s.now())
	if _, err := s.deck.Save(ctx, d, deck.FileName(*rep)); err != nil {
		if errors.Is(err, deck.ErrUnavailable) {
			zap.L().Warn("deck not written", zap.String("report_id", id), zap.Error(err))
			redirectFlash(w, r, reportPath(id), flashWarning, "PPT generation is unavailable on this server.")
			return
		}
		zap.L().Error("deck generation failed", zap.String("report_id", id), zap.Error(err))
		redirectFlash(w, r, reportPath(id), flashDanger, "PPT generation failed.")
		return
	}

	redirectFlash(w, r, reportPath(id), flashSuccess,
		fmt.Sprintf("PPT generated successfully. Check %s/ folder.", s.deck.Dir))
}
