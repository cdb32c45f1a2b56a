package middleware

import (
	"context"
	"mime"
	"net/http"
	"time"
)

const (
	// DefaultMaxRequestSize caps request bodies; planner payloads are small
	DefaultMaxRequestSize int64 = 1 << 20

	// DefaultRequestTimeout bounds a request, including session hydration
	DefaultRequestTimeout = 30 * time.Second
)

// SecurityHeaders sets the API's response hardening headers. HSTS is only
// sent over TLS and only when enabled.
func SecurityHeaders(enableHSTS bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			// share QR codes are embedded by the web client on another origin
			h.Set("Cross-Origin-Resource-Policy", "cross-origin")
			if enableHSTS && r.TLS != nil {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ContentType requires a JSON media type on requests that carry a body.
// Bodyless POSTs such as plan activation or joining by share code pass.
func ContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hasBody(r) {
			raw := r.Header.Get("Content-Type")
			if raw == "" {
				writeError(w, r, http.StatusBadRequest, errBadRequest, "Content-Type header is required")
				return
			}
			mediaType, _, err := mime.ParseMediaType(raw)
			if err != nil || mediaType != "application/json" {
				writeError(w, r, http.StatusUnsupportedMediaType, errUnsupportedMediaType, "Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func hasBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return false
	}
	// -1 means unknown length (chunked), which may carry a body
	return r.ContentLength != 0
}

// MaxRequestSize rejects declared oversize bodies and caps the rest
func MaxRequestSize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeError(w, r, http.StatusRequestEntityTooLarge, errPayloadTooLarge, "Request body is too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// Timeout cancels the request context after timeout and answers 503 if the
// handler has not written a response by then
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	const body = `{"success":false,"error":"` + errTimeout + `","message":"Request timed out"}`

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			http.TimeoutHandler(next, timeout, body).ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
