// Package web serves the report hub: HTML views, the JSON API, file
// exports, deck generation, and the demo reset endpoint.
package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/sells-group/report-hub/internal/deck"
	"github.com/sells-group/report-hub/internal/store"
)

// Options configures a Server.
type Options struct {
	Store         store.Store
	Deck          *deck.Writer
	BaseURL       string
	CORSOrigins   []string
	ResetInterval time.Duration
	SeedDemo      bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// Server holds the dependencies shared by every handler.
type Server struct {
	store        store.Store
	deck         *deck.Writer
	baseURL      string
	corsOrigins  []string
	seedDemo     bool
	now          func() time.Time
	resetLimiter *rate.Limiter
	views        *views
}

// New builds a Server from opts.
func New(opts Options) (*Server, error) {
	v, err := loadViews()
	if err != nil {
		return nil, err
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	limit := rate.Inf
	if opts.ResetInterval > 0 {
		limit = rate.Every(opts.ResetInterval)
	}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return &Server{
		store:        opts.Store,
		deck:         opts.Deck,
		baseURL:      opts.BaseURL,
		corsOrigins:  origins,
		seedDemo:     opts.SeedDemo,
		now:          now,
		resetLimiter: rate.NewLimiter(limit, 1),
		views:        v,
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	})
	r.Get("/health", s.handleHealth)

	// HTML
	r.Get("/dashboard", s.handleDashboard)
	r.Get("/create", s.handleCreateForm)
	r.Post("/create", s.handleCreate)
	r.Get("/report/{id}", s.handleReport)
	r.Post("/add_version/{id}", s.handleAddVersion)
	r.Post("/add_kpi/{id}", s.handleAddKPI)
	r.Post("/generate_ppt/{id}", s.handleGenerateDeck)
	r.Get("/kpi-library", s.handleKPILibrary)

	// JSON
	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{http.MethodGet},
			MaxAge:         300,
		}))
		r.Get("/departments", s.handleAPIDepartments)
		r.Get("/kpis_list", s.handleAPIKPIList)
		r.Get("/kpis/{dept_id}", s.handleAPIDepartmentKPIs)
		r.Get("/kpi/{id}", s.handleAPIKPI)
		r.Get("/kpi_master", s.handleAPIKPIMaster)
		r.Get("/reports", s.handleAPIReports)
		r.Get("/kpis", s.handleAPIReportKPIs)
	})

	// Downloads
	r.Get("/export/kpis.csv", s.handleExportKPIs)
	r.Get("/export/kpi_library.csv", s.handleExportLibraryCSV)
	r.Get("/export/kpi_library.xlsx", s.handleExportLibraryXLSX)

	r.Post("/admin/reset-demo", s.handleResetDemo)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.renderNotFound(w, r, "Page not found.")
	})

	return r
}
