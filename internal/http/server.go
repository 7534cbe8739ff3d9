package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"grocerybudget/internal/chain"
	"grocerybudget/internal/core"
	"grocerybudget/internal/log"
	"grocerybudget/internal/middleware/ratelimit"
	"grocerybudget/internal/middleware/security"
	"grocerybudget/internal/middleware/trace"
	appweb "grocerybudget/web"
)

// ExpenseService is what the view needs from the contract service.
type ExpenseService interface {
	ConnectionStatus(ctx context.Context) (chain.Connection, error)
	GetAggregateView(ctx context.Context) core.AggregateView
	AddExpense(ctx context.Context, item, amount string) error
	Status() core.SubmissionState
}

// Options tunes the server. Zero values select defaults.
type Options struct {
	RateLimitPerMinute int
	// Probe checks the chain backend for /readyz. Nil skips the check.
	Probe  func(ctx context.Context) error
	Logger *log.Logger
	// CacheEntries reports the chain read cache size for /metrics.
	CacheEntries func() int
}

type Server struct {
	http.Server
	templates *template.Template
	expenses  ExpenseService
	probe     func(ctx context.Context) error
	cacheSize func() int
	logger    *log.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	appMetrics       *ApplicationMetrics

	shutdownOnce sync.Once
}

// ApplicationMetrics holds application-level counters.
type ApplicationMetrics struct {
	submissions int64
	failures    int64
	uptime      time.Time
}

func (m *ApplicationMetrics) recordSubmission(err error) {
	atomic.AddInt64(&m.submissions, 1)
	if err != nil {
		atomic.AddInt64(&m.failures, 1)
	}
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run http.Server.
func NewServer(addr string, expenses ExpenseService, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	rlConfig := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		rlConfig.RequestsPerMinute = opts.RateLimitPerMinute
	}

	mux := http.NewServeMux()
	detector := security.NewDetector()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		expenses:         expenses,
		probe:            opts.Probe,
		cacheSize:        opts.CacheEntries,
		logger:           opts.Logger.WithComponent(log.ComponentHTTP),
		rateLimiter:      ratelimit.NewLimiter(rlConfig),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP),
		appMetrics:       &ApplicationMetrics{uptime: time.Now()},
	}

	// Parse embedded templates at startup.
	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", log.FieldError, err, log.FieldOperation, log.OpStartup)
	} else {
		s.templates = t
	}

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/expenses", s.handleCreateExpense)
	// UI partials
	mux.HandleFunc("/ui/totals", s.handleTotals)
	mux.HandleFunc("/ui/status", s.handleStatus)
	// Operations
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.rateLimiter.Middleware(detector.ExtractClientIP, s.onRateLimited)

	var handler http.Handler = mux
	handler = postOnly(limit, handler)
	handler = headers.Middleware(handler)
	handler = detector.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)
	handler = log.Middleware(s.logger)(handler)
	s.Handler = handler

	return s
}

// postOnly applies mw to POST requests; polling partials stay unthrottled.
func postOnly(mw func(http.Handler) http.Handler, next http.Handler) http.Handler {
	limited := mw(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			limited.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldPath, r.URL.Path)
	w.Header().Set("Retry-After", "60")
	ErrorResponse(http.StatusTooManyRequests, "Too many requests, try again in a minute").Write(w)
}

// Shutdown stops background resources and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
