// Package http serves the month view over a JSON API. Each browser session
// owns a view controller; the API returns the frame it renders after every
// transition.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"budgetbook/internal/auth"
	"budgetbook/internal/cache"
	applog "budgetbook/internal/log"
	"budgetbook/internal/middleware/ratelimit"
	"budgetbook/internal/middleware/security"
	"budgetbook/internal/middleware/trace"
	"budgetbook/internal/services"
)

// Deps are the collaborators of a Server.
type Deps struct {
	Months       *services.MonthService
	Transactions *services.TransactionService
	// Verifier authenticates API calls. Nil accepts every caller as
	// auth.Anonymous.
	Verifier     auth.Verifier
	Logger       *applog.Logger
	SessionTTL   time.Duration
	RateLimitRPM int
	Currency     string
	// Ready reports whether the backend can serve requests.
	Ready func(ctx context.Context) error
}

type Server struct {
	http.Server
	months   *services.MonthService
	txs      *services.TransactionService
	verifier auth.Verifier
	sessions *sessionStore
	limiter  *ratelimit.Limiter
	caches   *cache.Manager
	logger   *applog.Logger
	currency string
	ready    func(ctx context.Context) error
}

func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)
	if deps.SessionTTL <= 0 {
		deps.SessionTTL = 12 * time.Hour
	}

	s := &Server{
		months:   deps.Months,
		txs:      deps.Transactions,
		verifier: deps.Verifier,
		sessions: newSessionStore(deps.SessionTTL),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitRPM}),
		caches:   cache.NewManager(logger.Slog()),
		logger:   logger,
		currency: deps.Currency,
		ready:    deps.Ready,
	}
	if s.months != nil {
		s.caches.Register(s.months.Cache())
		s.caches.StartCleanup(time.Minute)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/months/{year}/{month}", s.authed(s.handleMonth))
	mux.HandleFunc("POST /api/months/{year}/{month}/refresh", s.authed(s.handleRefresh))
	mux.HandleFunc("GET /api/view", s.authed(s.handleCurrent))
	mux.HandleFunc("POST /api/view/type", s.authed(s.handleSelectType))
	mux.HandleFunc("POST /api/view/mode", s.authed(s.handleSetMode))
	mux.HandleFunc("POST /api/view/expand", s.authed(s.handleToggleExpand))
	mux.HandleFunc("POST /api/view/collapse", s.authed(s.handleCollapse))
	mux.HandleFunc("POST /api/view/reset", s.authed(s.handleReset))
	mux.HandleFunc("GET /api/categories", s.authed(s.handleCategories))
	mux.HandleFunc("PUT /api/budget", s.authed(s.handleSaveBudget))
	mux.HandleFunc("POST /api/transactions", s.authed(s.handleCreateTransactions))
	mux.HandleFunc("POST /api/transactions/monthly", s.authed(s.handleCreateMonthly))

	var h http.Handler = mux
	h = s.limiter.Middleware(security.ClientIP, s.onRateLimit, http.MethodPost, http.MethodPut)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = trace.NewMiddleware(security.ClientIP).Middleware(h)
	h = applog.Middleware(logger)(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
	return s
}

// Shutdown stops background work, then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	s.caches.Stop()
	return s.Server.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, apiError{Error: "NOT_READY", Message: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ready"})
}

func (s *Server) onRateLimit(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, apiError{Error: "RATE_LIMITED", Message: "too many requests, try again later"})
}

// authed resolves the caller before h runs. The caller's own ID token is
// forwarded to the remote store.
func (s *Server) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := auth.Authenticate(r, s.verifier)
		if err != nil {
			if !errors.Is(err, auth.ErrMissingToken) {
				applog.FromContext(r.Context()).WarnContext(r.Context(), "Rejected ID token", applog.FieldError, err)
			}
			writeError(w, r, errUnauthorized)
			return
		}
		ctx := auth.WithUser(r.Context(), u)
		if u.Token != "" {
			ctx = withForwardedToken(ctx, u.Token)
		}
		h(w, r.WithContext(ctx))
	}
}
