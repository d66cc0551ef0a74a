package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// MetricsMiddleware records request counts and latency per method, path and
// status. The WebSocket endpoint passes through it too; its duration sample
// covers the whole connection lifetime, which is expected.
func MetricsMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			HttpRequestsTotal.WithLabelValues(
				serviceName, r.Method, r.URL.Path, strconv.Itoa(ww.Status()),
			).Inc()
			HttpRequestDuration.WithLabelValues(
				serviceName, r.Method, r.URL.Path,
			).Observe(time.Since(start).Seconds())
		})
	}
}
