// Package request carries per-request values (caller, request id) through contexts.
package request

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/benvon/family-planner/internal/models"
)

type ctxKey int

const (
	userKey ctxKey = iota
	requestIDKey
)

// RequestIDHeader carries the request id in and out of the API
const RequestIDHeader = "X-Request-ID"

// ClientIP returns the caller's address without a port. The first
// X-Forwarded-For hop wins, then X-Real-IP, then the socket address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := hostOnly(first); ip != "" {
			return ip
		}
	}
	if ip := hostOnly(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return hostOnly(r.RemoteAddr)
}

func hostOnly(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}

// WithUser attaches the authenticated planner user
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the authenticated user, or nil
func UserFromContext(r *http.Request) *models.User {
	return User(r.Context())
}

// User returns the user stored in ctx, or nil
func User(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

// WithRequestID returns a context carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
