package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/report-hub/internal/model"
	"github.com/sells-group/report-hub/internal/store"
)

var errBadDeptID = eris.New("invalid dept_id")

// kpiFilter reads dept_id, section and q. A blank dept_id means any.
func kpiFilter(r *http.Request) (store.KPIFilter, error) {
	q := r.URL.Query()
	f := store.KPIFilter{
		Section: strings.TrimSpace(q.Get("section")),
		Search:  strings.TrimSpace(q.Get("q")),
	}
	if raw := strings.TrimSpace(q.Get("dept_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 1 {
			return f, errBadDeptID
		}
		f.DeptID = id
	}
	return f, nil
}

type libraryData struct {
	Filter      store.KPIFilter
	Departments []model.Department
	KPIs        []model.KPIDefinition
}

func (s *Server) handleKPILibrary(w http.ResponseWriter, r *http.Request) {
	filter, err := kpiFilter(r)
	if err != nil {
		redirectFlash(w, r, "/kpi-library", flashDanger, "Unknown department.")
		return
	}

	depts, err := s.store.ListDepartments(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	kpis, err := s.store.ListKPIs(r.Context(), filter)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	s.render(w, r, http.StatusOK, "kpi_library", "KPI library", libraryData{
		Filter:      filter,
		Departments: depts,
		KPIs:        kpis,
	})
}

func (s *Server) handleAPIDepartments(w http.ResponseWriter, r *http.Request) {
	depts, err := s.store.ListDepartments(r.Context())
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(depts))
}

func (s *Server) handleAPIKPIList(w http.ResponseWriter, r *http.Request) {
	filter, err := kpiFilter(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeKPIs(w, r, filter)
}

func (s *Server) handleAPIDepartmentKPIs(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "dept_id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, errBadDeptID.Error())
		return
	}
	if id < 1 {
		// Zero would disable the department filter.
		writeJSON(w, http.StatusOK, []model.KPIDefinition{})
		return
	}
	s.writeKPIs(w, r, store.KPIFilter{DeptID: id})
}

func (s *Server) writeKPIs(w http.ResponseWriter, r *http.Request, filter store.KPIFilter) {
	kpis, err := s.store.ListKPIs(r.Context(), filter)
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(kpis))
}

func (s *Server) handleAPIKPI(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "KPI not found")
		return
	}
	def, err := s.store.GetKPI(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "KPI not found")
		return
	}
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleAPIKPIMaster(w http.ResponseWriter, r *http.Request) {
	defs, err := s.store.ListAllKPIDefinitions(r.Context())
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(defs))
}

// nonNil makes empty results encode as [] rather than null.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
