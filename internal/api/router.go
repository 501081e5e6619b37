// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router builds the chi route tree.
type Router struct {
	handler    *Handler
	middleware *Middleware
}

// NewRouter creates a router. A nil middleware uses DefaultMiddlewareConfig.
func NewRouter(handler *Handler, mw *Middleware) *Router {
	if mw == nil {
		mw = NewMiddleware(nil)
	}
	return &Router{handler: handler, middleware: mw}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied in order.
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())
	r.Use(RequestLogger)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, CodeNotFound, "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Handle("/metrics", promhttp.Handler())

	// Probes get a permissive limit so monitoring never trips it.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.middleware.RateLimit(10))
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Use(PrometheusMetrics)

		r.Group(func(r chi.Router) {
			r.Use(router.middleware.RateLimit(1))
			r.Post("/recommendations", router.handler.Recommend)
			r.Post("/recommendations/{recommendationID}/actions", router.handler.RecordAction)
		})

		r.Group(func(r chi.Router) {
			r.Use(router.middleware.RateLimit(5))
			r.Get("/quality", router.handler.QualitySnapshot)
			r.Get("/quality/compare", router.handler.QualityCompare)
			r.Get("/stats", router.handler.Stats)
			r.Get("/resilience/breakers", router.handler.ListBreakers)
			r.Post("/resilience/breakers/{name}/reset", router.handler.ResetBreaker)
			r.Delete("/cache", router.handler.InvalidateCache)
		})
	})

	return r
}
