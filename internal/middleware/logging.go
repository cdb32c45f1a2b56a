package middleware

import (
	"net/http"
	"time"

	logpkg "github.com/benvon/family-planner/internal/logger"
	"github.com/benvon/family-planner/internal/request"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Logging assigns the request id and logs one http_request entry per
// request. A well-formed X-Request-ID from the caller is kept and echoed.
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := logpkg.RequestID(r.Header.Get(request.RequestIDHeader))
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(request.RequestIDHeader, requestID)
			r = r.WithContext(request.WithRequestID(r.Context(), requestID))

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				logpkg.Path(r.URL.Path),
				zap.Int("status_code", rec.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", requestID),
			}
			if rec.status >= http.StatusInternalServerError {
				logger.Warn("http_request", fields...)
				return
			}
			logger.Info("http_request", fields...)
		})
	}
}

// Audit logs rejected requests, such as failed authentication, membership
// denials and rate limiting
func Audit(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			var event string
			switch rec.status {
			case http.StatusUnauthorized, http.StatusForbidden:
				event = "security_event"
			case http.StatusTooManyRequests:
				event = "rate_limit_violation"
			default:
				return
			}
			logger.Warn(event,
				zap.Int("status_code", rec.status),
				zap.String("method", r.Method),
				logpkg.Path(r.URL.Path),
				logpkg.Text("ip", request.ClientIP(r)),
				zap.String("request_id", request.RequestID(r.Context())),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
