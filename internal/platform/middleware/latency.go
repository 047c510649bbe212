package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"kindergarten/internal/platform/metrics"
)

// LatencyMiddleware records request duration per matched route pattern.
func LatencyMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if p := rc.RoutePattern(); p != "" {
					route = p
				}
			}
			m.ObserveOperation("http "+r.Method+" "+route, start)
		})
	}
}
