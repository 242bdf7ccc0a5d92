package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/slarisk/pkg/metrics"
)

// MetricsMiddleware wraps HTTP handlers to record Prometheus metrics.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		durationMs := float64(time.Since(start).Microseconds()) / 1000
		metrics.RecordHTTPRequest(endpoint, r.Method, strconv.Itoa(wrapped.statusCode), durationMs)
	}
}

// rateLimiter rejects requests above a steady rate. A nil limiter admits everything.
type rateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(rps float64) *rateLimiter {
	if rps <= 0 {
		return &rateLimiter{}
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (l *rateLimiter) wrap(next http.HandlerFunc) http.HandlerFunc {
	if l.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !l.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			info := kinds[ErrRateLimited]
			writeJSON(w, info.status, errorResponse{Code: info.code, Message: ErrRateLimited.Error()})
			return
		}
		next(w, r)
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("failed to write response: %w", err)
	}
	return n, nil
}
