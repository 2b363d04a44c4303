// Package api exposes call control over HTTP and streams call events over
// WebSocket.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/keshucs12345/callsim/internal/call"
	"github.com/keshucs12345/callsim/internal/events"
	"github.com/keshucs12345/callsim/internal/scenario"
	"github.com/keshucs12345/callsim/internal/schedule"
)

// Calls controls the current call.
type Calls interface {
	Start(sc scenario.Scenario) (call.Snapshot, error)
	Answer() error
	Decline() error
	End() error
	Current() (call.Snapshot, bool)
}

// Scheduler holds calls that ring later.
type Scheduler interface {
	Schedule(sc scenario.Scenario, delay time.Duration) (schedule.Call, error)
	Cancel(id string) error
	CancelAll() int
	List() []schedule.Call
}

// EventSource delivers call events.
type EventSource interface {
	Subscribe(handler events.Handler, types ...events.Type) func()
}

// Deps wires a Server.
type Deps struct {
	Calls    Calls
	Schedule Scheduler
	Catalog  *scenario.Catalog
	Events   EventSource

	// Metrics is served at /metrics when set.
	Metrics http.Handler

	// RateLimit is the number of requests per second allowed per client
	// IP. Zero disables limiting.
	RateLimit float64

	Logger *slog.Logger
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router   *chi.Mux
	deps     Deps
	logger   *slog.Logger
	limiter  *ipRateLimiter
	upgrader websocket.Upgrader
	now      func() time.Time
}

// NewServer creates the HTTP handler with all routes mounted. Call Close
// to release it.
func NewServer(d Deps) *Server {
	s := &Server{
		router: chi.NewRouter(),
		deps:   d,
		logger: d.Logger.With("subsystem", "api"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		now: time.Now,
	}
	if d.RateLimit > 0 {
		s.limiter = newIPRateLimiter(rate.Limit(d.RateLimit), max(1, int(2*d.RateLimit)))
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops background work.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.stop()
	}
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.rateLimit)
		}
		r.Get("/health", s.handleHealth)
		r.Get("/scenarios", s.handleListScenarios)
		r.Get("/scenarios/{id}", s.handleGetScenario)

		r.Route("/calls", func(r chi.Router) {
			r.Post("/", s.handleCreateCall)
			r.Get("/current", s.handleCurrentCall)
			r.Post("/current/answer", s.handleAnswer)
			r.Post("/current/decline", s.handleDecline)
			r.Post("/current/end", s.handleEnd)
		})

		r.Route("/schedule", func(r chi.Router) {
			r.Get("/", s.handleListSchedule)
			r.Delete("/", s.handleCancelAllScheduled)
			r.Get("/presets", s.handlePresets)
			r.Delete("/{id}", s.handleCancelScheduled)
		})

		r.Get("/events", s.handleEvents)
	})
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.deps.Calls.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"in_call": ok && snap.State != call.Ended,
	})
}
