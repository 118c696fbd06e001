package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"fintrack/internal/identity"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
	"fintrack/internal/store"
)

// Deps are the collaborators the server needs.
type Deps struct {
	Summaries *services.SummaryService
	Ledger    *services.LedgerService
	Watcher   store.Watcher
	Verifier  identity.Verifier

	// Ready reports whether backing services are reachable. Nil means always ready.
	Ready func(context.Context) error

	RateLimitPerMinute int
	TrustedProxies     []string
	Logger             *log.Logger
}

// Server is the JSON API.
type Server struct {
	http.Server
	summaries   *services.SummaryService
	ledger      *services.LedgerService
	watcher     store.Watcher
	ready       func(context.Context) error
	limiter     *ratelimit.Limiter
	detector    *security.Detector
	logger      *log.Logger
	readTimeout time.Duration

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		summaries:   deps.Summaries,
		ledger:      deps.Ledger,
		watcher:     deps.Watcher,
		ready:       deps.Ready,
		limiter:     ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
		detector:    security.NewDetector(logger),
		logger:      logger,
		readTimeout: 7 * time.Second,
	}
	for _, cidr := range deps.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", log.FieldError, err)
		}
	}
	s.Handler = s.routes(deps.Verifier)
	return s
}

func (s *Server) routes(verifier identity.Verifier) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		NotFoundError("not found").Write(w)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		MethodNotAllowedError(allowedMethods(r, req)).Write(w)
	})

	r.Use(
		trace.NewMiddleware(s.detector.ClientIP, s.logger).Middleware,
		security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware,
		s.detector.Middleware,
	)

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(
		identity.Middleware(verifier, s.logger),
		s.limiter.Middleware(s.rateLimitKey, func(w http.ResponseWriter, _ *http.Request) {
			TooManyRequestsError().Write(w)
		}, http.MethodPost, http.MethodPut, http.MethodDelete),
	)

	api.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet)
	api.HandleFunc("/summary/stream", s.handleSummaryStream).Methods(http.MethodGet)

	api.HandleFunc("/transactions", s.handleListTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions", s.handleCreateTransaction).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}", s.handleGetTransaction).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", s.handleUpdateTransaction).Methods(http.MethodPut)
	api.HandleFunc("/transactions/{id}", s.handleDeleteTransaction).Methods(http.MethodDelete)

	api.HandleFunc("/income-streams", s.handleListIncomeStreams).Methods(http.MethodGet)
	api.HandleFunc("/income-streams", s.handleCreateIncomeStream).Methods(http.MethodPost)
	api.HandleFunc("/income-streams/{id}", s.handleGetIncomeStream).Methods(http.MethodGet)
	api.HandleFunc("/income-streams/{id}", s.handleUpdateIncomeStream).Methods(http.MethodPut)
	api.HandleFunc("/income-streams/{id}", s.handleDeleteIncomeStream).Methods(http.MethodDelete)

	return r
}

// allowedMethods lists the methods some route accepts for req's path.
func allowedMethods(r *mux.Router, req *http.Request) string {
	var allowed []string
	for _, m := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete} {
		probe := req.Clone(req.Context())
		probe.Method = m
		var match mux.RouteMatch
		if r.Match(probe, &match) && match.MatchErr == nil {
			allowed = append(allowed, m)
		}
	}
	return strings.Join(allowed, ", ")
}

// rateLimitKey limits per user, falling back to the client address.
func (s *Server) rateLimitKey(r *http.Request) string {
	if userID := identity.UserIDFromContext(r.Context()); userID != "" {
		return "user:" + userID
	}
	return "ip:" + s.detector.ClientIP(r)
}

// Shutdown stops background goroutines and drains the server. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "not ready").Write(w)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
