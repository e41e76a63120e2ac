package httpapi

import (
	"context"
	"expvar"
	"net/http"

	"github.com/felixge/httpsnoop"
	"go.uber.org/zap"
)

var (
	requestsTotal  = expvar.NewInt("requests_total")
	requestsErrors = expvar.NewInt("requests_errors_total")
)

type logContextKey struct{}

// logEntry is filled in by AuthMiddleware so the access log can name the
// caller after the inner handlers have run.
type logEntry struct {
	agencyID string
	userID   string
}

// LoggingMiddleware writes one access log line per request. The writer
// handed down keeps the optional interfaces of the original (Flusher,
// Hijacker) so SockJS streaming transports work behind it.
func LoggingMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entry := &logEntry{}
		m := httpsnoop.CaptureMetrics(next, w, r.WithContext(context.WithValue(r.Context(), logContextKey{}, entry)))
		requestsTotal.Add(1)
		if m.Code >= http.StatusBadRequest {
			requestsErrors.Add(1)
		}
		logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", m.Code),
			zap.Int64("bytes", m.Written),
			zap.Int64("duration_ms", m.Duration.Milliseconds()),
			zap.String("agency", entry.agencyID),
			zap.String("user", entry.userID),
			zap.String("request_id", requestIDFromRequest(r)),
		)
	})
}
