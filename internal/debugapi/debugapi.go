// Package debugapi is the optional ops surface §4.10 adds alongside the
// primary sniffer port: a chi router exposing Prometheus metrics and a
// liveness probe, built the same way the teacher routes its own HTTP API
// (go-chi/chi plus its middleware stack), narrowed to a read-only,
// unauthenticated surface meant for a trusted LAN or localhost.
package debugapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/originsim/origin-server/internal/telemetry"
	"github.com/originsim/origin-server/security"
)

// NewRouter builds the debug surface's http.Handler. healthy is polled on
// every /healthz request; it should report whether the core services
// (sniffer, emitter, discovery) are still running.
func NewRouter(healthy func() bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))
	r.Use(telemetry.LoggingMiddleware)
	r.Use(telemetry.TracingMiddleware)
	r.Use(security.CORSAndHeaders)

	r.Handle("/metrics", telemetry.PrometheusHandler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
