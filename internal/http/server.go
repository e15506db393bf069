package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"halfmonth/internal/auth"
	"halfmonth/internal/core"
	"halfmonth/internal/events"
	"halfmonth/internal/log"
	"halfmonth/internal/metrics"
	"halfmonth/internal/middleware/ratelimit"
	"halfmonth/internal/middleware/security"
	"halfmonth/internal/middleware/trace"
	"halfmonth/internal/services"
	appweb "halfmonth/web"
)

const loginPath = "/login"

// Periods is the slice of the period service the handlers use.
type Periods interface {
	Now() time.Time
	Open(ctx context.Context, userID string, key core.PeriodKey) (core.Period, error)
	CreateNext(ctx context.Context, userID string, from core.PeriodKey) (core.Period, error)
	DeletePeriod(ctx context.Context, userID string, key core.PeriodKey) (core.PeriodKey, error)
	AddExpense(ctx context.Context, userID string, key core.PeriodKey, in core.ExpenseInput) (core.Expense, error)
	UpdateExpense(ctx context.Context, userID string, key core.PeriodKey, id int64, in core.ExpenseInput) (core.Expense, error)
	DeleteExpense(ctx context.Context, userID string, key core.PeriodKey, id int64) error
	SetBalance(ctx context.Context, userID string, key core.PeriodKey, balance decimal.Decimal) error
	ListKeys(ctx context.Context, userID string) ([]core.PeriodKey, error)
	Dashboard(ctx context.Context, userID string, key core.PeriodKey, view services.DashboardView) (services.Dashboard, error)
	Analytics(ctx context.Context, userID string, w core.Window) (core.Summary, error)
	EnsureTemplates(ctx context.Context, userID string, year int) error
}

// Subscriber streams live events for one user.
type Subscriber interface {
	Subscribe(userID string) (<-chan events.Event, func())
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the server. Events, Metrics and Ready are
// optional.
type Deps struct {
	Periods Periods
	Auth    *auth.Service
	Events  Subscriber
	Metrics *metrics.Metrics
	Ready   Pinger
	Logger  *log.Logger
}

type Options struct {
	Addr               string
	SecureCookies      bool
	RateLimitPerMinute int
	// Heartbeat is the interval of keep-alive comments on /events.
	Heartbeat time.Duration
}

type Server struct {
	http.Server
	periods   Periods
	auth      *auth.Service
	events    Subscriber
	metrics   *metrics.Metrics
	ready     Pinger
	logger    *log.Logger
	templates *template.Template
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	tracer    *trace.Middleware
	secure    bool
	heartbeat time.Duration
	started   time.Time
}

// NewServer parses the embedded templates and builds the router.
func NewServer(opts Options, deps Deps) (*Server, error) {
	if deps.Periods == nil || deps.Auth == nil {
		return nil, fmt.Errorf("new server: periods and auth are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}

	s := &Server{
		periods:   deps.Periods,
		auth:      deps.Auth,
		events:    deps.Events,
		metrics:   deps.Metrics,
		ready:     deps.Ready,
		logger:    logger,
		templates: tmpl,
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:  security.NewDetector(),
		secure:    opts.SecureCookies,
		heartbeat: heartbeat,
		started:   time.Now(),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP)
	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(log.Middleware(s.logger))
	r.Use(s.tracer.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware(func(*http.Request) { s.metrics.SecurityEvent("suspicious") }))
	r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, func(r *http.Request) {
		s.metrics.SecurityEvent("rate_limited")
		s.logger.WarnContext(r.Context(), "Rate limit exceeded", "path", r.URL.Path)
	}))
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(auth.Middleware(s.auth, s.secure))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	if static, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		r.With(security.StaticAssetMiddleware(3600)).
			Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	}

	r.Get(loginPath, s.handleLoginPage)
	r.Post(loginPath, s.handleLogin)
	r.Post("/register", s.handleRegister)
	r.Post("/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(loginPath))

		r.Get("/", s.handleIndex)
		r.Get("/periods", s.handlePeriodList)
		r.Route("/periods/{key}", func(r chi.Router) {
			r.Get("/", s.handleDashboard)
			r.Post("/next", s.handleCreateNext)
			r.Post("/delete", s.handleDeletePeriod)
			r.Post("/balance", s.handleSetBalance)
			r.Post("/expenses", s.handleAddExpense)
			r.Post("/expenses/{id}", s.handleUpdateExpense)
			r.Post("/expenses/{id}/delete", s.handleDeleteExpense)
		})
		r.Get("/analytics", s.handleAnalytics)
		r.Get("/events", s.handleEvents)

		r.Route("/api", func(r chi.Router) {
			r.Get("/periods", s.handleAPIPeriods)
			r.Get("/periods/{key}", s.handleAPIPeriod)
			r.Get("/analytics", s.handleAPIAnalytics)
		})
	})
	return r
}

// Shutdown stops background work and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}

// userID returns the authenticated user's partition key. Routes behind
// RequireAuth always have one.
func userID(r *http.Request) string {
	u, _ := auth.UserFromContext(r.Context())
	return u.ID
}
