package web

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/report-hub/internal/export"
	"github.com/sells-group/report-hub/internal/model"
	"github.com/sells-group/report-hub/internal/store"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// statusFor maps store sentinels to an HTTP status and a safe message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest, "validation failed"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "already exists"
	}
	return http.StatusInternalServerError, "internal error"
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		zap.L().Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// reportJSON is a report with a link back to its detail page.
type reportJSON struct {
	model.Report
	HubURL string `json:"hub_url"`
}

func (s *Server) handleAPIReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.store.ListReports(r.Context(), reportFilter(r))
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	out := make([]reportJSON, len(reports))
	for i, rep := range reports {
		out[i] = reportJSON{Report: rep, HubURL: export.HubURL(s.baseURL, rep.ReportID)}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPIReportKPIs(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListReportKPIs(r.Context())
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	for i := range rows {
		rows[i].HubURL = export.HubURL(s.baseURL, rows[i].ReportID)
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

// download buffers the whole file so a failed export never sends a
// truncated attachment.
func (s *Server) download(w http.ResponseWriter, r *http.Request, name, contentType string, write func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		s.serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleExportKPIs(w http.ResponseWriter, r *http.Request) {
	s.download(w, r, "kpis_export.csv", "text/csv; charset=utf-8", func(buf *bytes.Buffer) error {
		rows, err := s.store.ListReportKPIs(r.Context())
		if err != nil {
			return err
		}
		return export.WriteReportKPIsCSV(buf, rows, s.baseURL)
	})
}

func (s *Server) handleExportLibraryCSV(w http.ResponseWriter, r *http.Request) {
	s.download(w, r, "kpi_library.csv", "text/csv; charset=utf-8", func(buf *bytes.Buffer) error {
		defs, err := s.store.ListAllKPIDefinitions(r.Context())
		if err != nil {
			return err
		}
		return export.WriteKPILibraryCSV(buf, defs)
	})
}

func (s *Server) handleExportLibraryXLSX(w http.ResponseWriter, r *http.Request) {
	s.download(w, r, "kpi_library.xlsx", xlsxContentType, func(buf *bytes.Buffer) error {
		defs, err := s.store.ListAllKPIDefinitions(r.Context())
		if err != nil {
			return err
		}
		return export.WriteKPILibraryXLSX(buf, defs)
	})
}

func (s *Server) handleResetDemo(w http.ResponseWriter, r *http.Request) {
	res := s.resetLimiter.Reserve()
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		w.Header().Set("Retry-After", strconv.Itoa(int(delay.Round(time.Second)/time.Second)+1))
		writeJSONError(w, http.StatusTooManyRequests, "reset-demo is rate limited, try again later")
		return
	}

	if err := store.ResetDemo(r.Context(), s.store, s.seedDemo); err != nil {
		s.apiError(w, r, err)
		return
	}
	zap.L().Warn("store reset", zap.Bool("demo", s.seedDemo))
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
