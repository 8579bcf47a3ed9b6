// Package api exposes the gateway over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/xraph/tollgate"
	"github.com/xraph/tollgate/payment"
	"github.com/xraph/tollgate/receiver"
)

// DefaultRateLimit is the per-minute allowance for each rate-limited route.
const DefaultRateLimit = 50

// Server routes HTTP requests to a Gateway.
type Server struct {
	gw       *tollgate.Gateway
	router   *mux.Router
	logger   *slog.Logger
	validate *validator.Validate

	// Mock collaborators. Their routes are only mounted when set.
	mockPay     payment.Provider
	mockReceive receiver.Receiver

	metrics http.Handler

	telemetryLimit int
	relayLimit     int

	now func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMocks mounts /mock-pay/charge and /mock-relay/receive backed by p
// and r.
func WithMocks(p payment.Provider, r receiver.Receiver) Option {
	return func(s *Server) {
		s.mockPay = p
		s.mockReceive = r
	}
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithRateLimits sets per-minute allowances for telemetry and relay. A
// value of zero or less disables that limiter.
func WithRateLimits(telemetryPerMinute, relayPerMinute int) Option {
	return func(s *Server) {
		s.telemetryLimit = telemetryPerMinute
		s.relayLimit = relayPerMinute
	}
}

// WithClock overrides the time source used in responses and limiters.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer builds the router for gw.
func NewServer(gw *tollgate.Gateway, opts ...Option) *Server {
	s := &Server{
		gw:             gw,
		router:         mux.NewRouter(),
		logger:         slog.Default(),
		validate:       newValidator(),
		telemetryLimit: DefaultRateLimit,
		relayLimit:     DefaultRateLimit,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.accessLogMiddleware)
}

func (s *Server) setupRoutes() {
	// CORS preflight for every route
	s.router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	v1.HandleFunc("/ready", s.handleHealth).Methods(http.MethodGet)

	v1.Handle("/telemetry/ping",
		s.rateLimit(newLimiter(s.telemetryLimit, s.now), "deviceId", http.HandlerFunc(s.handlePing)),
	).Methods(http.MethodPost)

	v1.Handle("/relay/publish",
		s.rateLimit(newLimiter(s.relayLimit, s.now), "clientId", http.HandlerFunc(s.handlePublish)),
	).Methods(http.MethodPost)

	v1.HandleFunc("/billing/subscribe", s.handleSubscribe).Methods(http.MethodPost)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	if s.mockPay != nil {
		s.router.HandleFunc(payment.ChargePath, s.handleMockCharge).Methods(http.MethodPost)
	}
	if s.mockReceive != nil {
		s.router.HandleFunc(receiver.ReceivePath, s.handleMockReceive).Methods(http.MethodPost)
	}

	s.router.NotFoundHandler = s.requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "Route not found", "NOT_FOUND")
	}))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router returns the underlying router so callers can mount extra routes.
func (s *Server) Router() *mux.Router { return s.router }

// newValidator reports field names using their json tags.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
