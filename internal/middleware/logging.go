package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "velo_http_request_duration_seconds",
		Help: "HTTP request latency by method and status.",
	},
	[]string{"method", "status"},
)

// RequestLogger logs every HTTP request with method, path, status, duration
// and the authenticated user (empty pre-auth), and records request metrics.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		requestDuration.WithLabelValues(r.Method, strconv.Itoa(ww.Status())).Observe(duration.Seconds())

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"user_id", GetUserID(r.Context()),
			"duration_ms", duration.Milliseconds(),
		}
		switch {
		case ww.Status() >= 500:
			slog.Error("HTTP error", attrs...)
		case ww.Status() >= 400:
			slog.Warn("HTTP error", attrs...)
		default:
			slog.Info("HTTP ok", attrs...)
		}
	})
}
