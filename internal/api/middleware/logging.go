package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alyanaluz/gatekeeper/internal/pkg/idgen"
	"github.com/alyanaluz/gatekeeper/internal/pkg/logger"
	"github.com/alyanaluz/gatekeeper/internal/pkg/metrics"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// LogRequest logs HTTP requests in structured form and records request
// metrics. Health checks are skipped to reduce noise.
func LogRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		requestID := idgen.GenerateID()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     200, // default if WriteHeader not called
		}

		metrics.HTTPActiveRequests.Inc()
		next.ServeHTTP(wrapped, r)
		metrics.HTTPActiveRequests.Dec()

		duration := time.Since(start)

		// Real client IP when behind a proxy
		clientIP := r.RemoteAddr
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			clientIP = forwarded
		} else if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			clientIP = realIP
		}

		log := logger.WithRequest(slog.Default(), requestID)
		log = logger.WithHTTPRequest(log, r.Method, r.URL.Path)
		log = logger.WithDuration(log, duration)

		if wrapped.statusCode >= 500 {
			log.Error("request failed",
				slog.Int("status", wrapped.statusCode),
				slog.Int64("bytes", wrapped.written),
				slog.String("client_ip", clientIP))
		} else {
			log.Info("request",
				slog.Int("status", wrapped.statusCode),
				slog.Int64("bytes", wrapped.written),
				slog.String("client_ip", clientIP))
		}

		metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, httpStatusLabel(wrapped.statusCode)).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, r.URL.Path).Observe(float64(duration.Milliseconds()))
	})
}

// httpStatusLabel buckets status codes to keep metric cardinality bounded
func httpStatusLabel(code int) string {
	switch {
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code == 401:
		return "401"
	case code == 402:
		return "402"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
