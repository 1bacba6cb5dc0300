// SPDX-License-Identifier: MIT

// Package api assembles the HTTP surface: probe endpoints, the metrics
// scrape target, session management and the streaming upgrade route.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/UnknownEngineOfficial/XTeam/internal/auth"
	"github.com/UnknownEngineOfficial/XTeam/internal/config"
	"github.com/UnknownEngineOfficial/XTeam/internal/health"
	"github.com/UnknownEngineOfficial/XTeam/internal/hub"
	"github.com/UnknownEngineOfficial/XTeam/internal/log"
	"github.com/UnknownEngineOfficial/XTeam/internal/ratelimit"
	"github.com/UnknownEngineOfficial/XTeam/internal/revoke"
)

// Server holds the dependencies of the HTTP surface.
type Server struct {
	cfg         config.Config
	gate        *ratelimit.Gate
	verifier    *auth.Verifier
	revocations revoke.Store
	hub         *hub.Hub
	stream      http.Handler
	health      *health.Manager
}

// New assembles the HTTP server. stream is the WebSocket upgrade handler;
// it manages its own admission so it is mounted outside the gate.
func New(cfg config.Config, gate *ratelimit.Gate, verifier *auth.Verifier, revocations revoke.Store, h *hub.Hub, stream http.Handler, hm *health.Manager) *Server {
	return &Server{
		cfg:         cfg,
		gate:        gate,
		verifier:    verifier,
		revocations: revocations,
		hub:         h,
		stream:      stream,
		health:      hm,
	}
}

// Routes builds the router with the canonical middleware stack. Order:
// Recoverer first as the outer safety net, then correlation, CORS,
// hardening headers, access logging, and the global flood limit; the
// per-client admission gate wraps only the REST group.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(Recoverer)
	r.Use(RequestID)
	r.Use(CORS(s.cfg.AllowedOrigins))
	r.Use(SecurityHeaders)
	r.Use(log.Middleware())
	if s.cfg.GlobalRPS > 0 {
		r.Use(httprate.Limit(s.cfg.GlobalRPS, time.Second,
			httprate.WithKeyFuncs(httprate.KeyByIP),
		))
	}

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// The streaming route reports admission failures as close codes, so
	// the gate middleware must not intercept the handshake.
	r.Get("/api/v1/ws", s.stream.ServeHTTP)

	r.Group(func(r chi.Router) {
		if s.cfg.RateLimitEnabled {
			r.Use(s.gate.Middleware(ClientIP(s.cfg.TrustedProxies)))
		}

		// Probes are on the gate's exemption list: they pass uncharged
		// but still carry the informational X-RateLimit headers.
		r.Get("/healthz", s.health.ServeHealth)
		r.Get("/readyz", s.health.ServeReady)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(s.verifier))

			r.Post("/api/v1/auth/logout", s.handleLogout)
			r.Post("/api/v1/auth/logout_all", s.handleLogoutAll)
			r.Get("/api/v1/stats", s.handleStats)
		})
	})

	return r
}
