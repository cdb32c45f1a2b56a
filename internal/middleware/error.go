package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/benvon/family-planner/internal/request"
	"go.uber.org/zap"
)

// Error types written by middleware; handlers use the same vocabulary
const (
	errBadRequest           = "bad_request"
	errUnauthorized         = "unauthorized"
	errUnsupportedMediaType = "unsupported_media_type"
	errPayloadTooLarge      = "payload_too_large"
	errTimeout              = "timeout"
	errInternal             = "internal_error"
)

// ErrorResponse is the error envelope written before a request reaches a handler
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorHandler recovers handler panics and answers with a 500 envelope
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic_recovered",
						zap.Any("panic", rec),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.String("request_id", request.RequestID(r.Context())),
						zap.Stack("stack"),
					)
					writeError(w, r, http.StatusInternalServerError, errInternal, "An unexpected error occurred")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:     errorType,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: request.RequestID(r.Context()),
	})
}
