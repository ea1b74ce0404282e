// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/avedell/vigil/internal/auth"
	"github.com/avedell/vigil/internal/authz"
	"github.com/avedell/vigil/internal/config"
	"github.com/avedell/vigil/internal/middleware"
)

// RouterDeps bundles what the router needs beyond the handler.
type RouterDeps struct {
	Handler  *Handler
	Auth     *auth.Middleware
	Enforcer *authz.Enforcer
	Security config.SecurityConfig
	API      config.APIConfig

	// Feed serves the websocket signal feed; nil disables the route.
	Feed http.HandlerFunc
}

// NewRouter assembles the full HTTP surface. /metrics and /swagger sit
// outside /api/v1 and outside authorization; everything under /api/v1
// passes authentication and the policy check.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Security.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodHead, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		if deps.Security.RateLimitReqs > 0 {
			r.Use(httprate.LimitByIP(deps.Security.RateLimitReqs, deps.Security.RateLimitWindow))
		}
		r.Use(middleware.Prometheus)
		r.Use(deps.Auth.Authenticate)
		r.Use(authz.Middleware(deps.Enforcer))

		r.Get("/health", deps.Handler.Health)

		r.Get("/signals", deps.Handler.Signals)
		if deps.Feed != nil {
			r.Get("/signals/ws", deps.Feed)
		}

		r.Get("/risk", deps.Handler.RiskList)
		r.Get("/risk/{subjectID}", deps.Handler.Risk)
		r.Get("/trust/{subjectID}", deps.Handler.Trust)
		r.Get("/rankings/{date}/{population}", deps.Handler.Rankings)

		r.Post("/recompute/{subjectID}", deps.Handler.Recompute)
		r.Get("/detection/status", deps.Handler.DetectionStatus)
		r.Post("/detection/detectors/{type}", deps.Handler.ToggleDetector)
	})

	r.Handle("/metrics", promhttp.Handler())
	if deps.API.SwaggerEnabled {
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}

	return r
}
