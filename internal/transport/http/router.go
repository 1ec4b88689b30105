package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/audit"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/platform/health"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/platform/middleware"
)

// RouterConfig carries everything the router needs beyond the handlers.
type RouterConfig struct {
	Validator         middleware.TokenValidator
	Services          middleware.ServiceResolver
	Flusher           *audit.Flusher
	AuditEnabled      bool
	TrustForwardedFor bool
}

// NewRouter wires the middleware chain and all endpoints. The audit
// middleware sits inside the chain so every handler records into a
// request-scoped accumulator that flushes after the response.
func NewRouter(h *Handler, healthHandler *health.Handler, cfg RouterConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger, "/healthz", "/health", "/health/live", "/health/ready", "/metrics"))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.CaptureClientInfo(cfg.TrustForwardedFor))
	r.Use(middleware.Authenticate(cfg.Validator, cfg.Services, logger))
	r.Use(audit.Middleware(cfg.Flusher, cfg.AuditEnabled))

	h.Register(r)
	healthHandler.Register(r)
	r.Get("/healthz", healthHandler.HandleLiveness)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
