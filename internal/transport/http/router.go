// Package httptransport is the thin HTTP layer. Handlers delegate to the
// pipeline and enrolment services; transport concerns stay here.
package httptransport

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"presence/internal/audit"
	livestore "presence/internal/liveness/store"
	"presence/internal/platform/health"
	"presence/internal/platform/middleware"
	"presence/internal/registry"
	"presence/internal/token"
	"presence/internal/transport/http/auth"
	"presence/internal/verify"
	"presence/internal/verify/metrics"
)

// maxRequestBody bounds request bodies; batch requests carry several frames.
const maxRequestBody = 32 << 20

// Handler is the HTTP handler set. All dependencies are injected.
type Handler struct {
	pipeline *verify.Service
	enrol    *registry.Service
	sessions livestore.Store
	auditor  audit.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// HandlerOption configures the Handler.
type HandlerOption func(*Handler)

// WithAuditPublisher wires the audit sink for session resets.
func WithAuditPublisher(p audit.Publisher) HandlerOption {
	return func(h *Handler) {
		h.auditor = p
	}
}

// WithMetrics wires the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

// NewHandler constructs the HTTP handler set.
func NewHandler(pipeline *verify.Service, enrol *registry.Service, sessions livestore.Store, logger *slog.Logger, opts ...HandlerOption) (*Handler, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline service is required")
	}
	if enrol == nil {
		return nil, fmt.Errorf("enrolment service is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		pipeline: pipeline,
		enrol:    enrol,
		sessions: sessions,
		logger:   logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// NewRouter wires all endpoints with the middleware stack. Device tokens
// guard the verification surface; the operator API key guards enrolment.
func NewRouter(h *Handler, tokens *token.Service, apiKeyHash string, healthHandler *health.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.MaxBodyBytes(maxRequestBody))

	if healthHandler != nil {
		healthHandler.Register(r)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Device-facing verification surface
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireDevice(tokens, logger))

		r.Post("/verify", h.handleVerify)
		r.Get("/liveness/sessions/{subjectID}", h.handleSessionGet)
		r.Delete("/liveness/sessions/{subjectID}", h.handleSessionDelete)
	})

	// Operator enrolment surface
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAPIKey(apiKeyHash, logger))

		r.Post("/enroll", h.handleEnroll)
		r.Get("/enroll/subjects", h.handleSubjects)
		r.Get("/enroll/{subjectID}", h.handleReferences)
		r.Delete("/enroll/{subjectID}", h.handleUnenroll)
	})

	return r
}
