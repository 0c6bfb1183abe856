package web

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

// pages are rendered inside layout.html.
var pages = []string{"dashboard", "create", "report", "kpi_library", "not_found"}

type views struct {
	pages map[string]*template.Template
}

var viewFuncs = template.FuncMap{
	"fmtTime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("2006-01-02 15:04")
	},
	"fmtFloat": func(f *float64) string {
		if f == nil {
			return "-"
		}
		return strconv.FormatFloat(*f, 'f', 2, 64)
	},
	"fmtInt": func(n *int64) string {
		if n == nil {
			return "-"
		}
		return strconv.FormatInt(*n, 10)
	},
}

func loadViews() (*views, error) {
	v := &views{pages: make(map[string]*template.Template, len(pages))}
	for _, name := range pages {
		t, err := template.New("layout.html").Funcs(viewFuncs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, eris.Wrapf(err, "web: parse template %s", name)
		}
		v.pages[name] = t
	}
	return v, nil
}

// page is the data passed to layout.html.
type page struct {
	Title string
	Flash *Flash
	Data  any
}

// render executes a page into a buffer first so a template error still
// yields a clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	t, ok := s.views.pages[name]
	if !ok {
		s.serverError(w, r, eris.Errorf("web: unknown page %q", name))
		return
	}
	var buf bytes.Buffer
	p := page{Title: title, Flash: popFlash(w, r), Data: data}
	if err := t.Execute(&buf, p); err != nil {
		s.serverError(w, r, eris.Wrapf(err, "web: render %s", name))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) renderNotFound(w http.ResponseWriter, r *http.Request, msg string) {
	s.render(w, r, http.StatusNotFound, "not_found", "Not found", msg)
}

// serverError logs err and answers with a generic 500.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	zap.L().Error("request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

// writeJSON encodes v before writing the header so an unencodable value
// becomes a 500 instead of an empty 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		zap.L().Error("write json", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error"}` + "\n"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// apiError maps err to a JSON error response. Store errors other than the
// sentinels are logged and hidden.
func (s *Server) apiError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("api request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSONError(w, status, msg)
}
