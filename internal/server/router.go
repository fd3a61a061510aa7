package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
)

type HandlerOptions struct {
	Controller Controller
	Registry   *prometheus.Registry
	Dashboards map[string][]byte
	Logger     logr.Logger
	Now        func() time.Time
}

// NewHandler assembles the HTTP surface:
// /health, /metrics, /dashboards/<group>/<file> and /api/robot.
func NewHandler(opts HandlerOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", HealthHandler)
	if opts.Registry != nil {
		r.Handle("/metrics", MetricsHandler(opts.Registry))
	}
	r.Mount("/dashboards", DashboardsHandler(opts.Dashboards))
	if opts.Controller != nil {
		r.Mount("/api", APIHandler(opts.Controller, opts.Logger.WithName("api"), opts.Now))
	}
	return r
}
