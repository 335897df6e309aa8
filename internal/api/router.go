package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each dependency check on /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	if s.metrics != nil {
		r.Use(s.metricsMiddleware)
		r.Handle(s.metricsPath, s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.apiKeyMiddleware(false))

			r.Route("/controllers", func(r chi.Router) {
				r.Get("/", s.handleListControllers)
				r.Get("/by-hostname/{hostname}", s.handleGetControllerByHostname)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetController)
					r.Post("/commands", s.handleDispatch)
					r.Get("/status", s.handleStatus)
					r.Get("/pins", s.handlePins)
					r.Post("/resolve", s.handleResolve)
				})
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.apiKeyMiddleware(true))

			r.Put("/external/pins/{id}", s.handleSyncPin)
			r.Delete("/external/pins/{id}", s.handleDeletePin)
		})
	})

	return r
}

// handleHealth reports the server version and the state of each
// dependency. Any failing dependency turns the status to degraded; the
// response is still 200 so liveness probes do not restart the gateway
// while a broker is down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	components := make(map[string]string, len(s.health))

	names := make([]string, 0, len(s.health))
	for name := range s.health {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.health[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	reg := s.controllers.Registry()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"components":     components,
		"controllers": map[string]int{
			"total":    reg.Count(),
			"resolved": reg.CachedCount(),
		},
	})
}
