package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/venus-bridge/internal/auth"
	"github.com/nerrad567/venus-bridge/internal/panel"
)

// defaultWSPath is used when websocket.path is empty.
const defaultWSPath = "/ws"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus exposition; /api/v1/metrics carries the same data as JSON.
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	if s.cfg.Panel.Enabled {
		r.Handle("/panel/*", http.StripPrefix("/panel", panel.Handler(s.cfg.Panel.Dir)))
		r.Handle("/panel", http.RedirectHandler("/panel/", http.StatusMovedPermanently))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// No auth: probes and scrapers.
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermStatusRead))
				r.Post("/auth/ws-ticket", s.handleWSTicket)
				r.Get("/status", s.handleStatus)
				r.Get("/transitions", s.handleListTransitions)
				r.Get("/audit", s.handleListAudit)
			})

			r.With(s.requirePermission(auth.PermModeControl)).Post("/mode", s.handleSetMode)
		})
	})

	r.Get(s.wsPath(), s.handleWebSocket)

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return defaultWSPath
	}
	return s.wsCfg.Path
}
