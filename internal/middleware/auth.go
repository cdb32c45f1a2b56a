package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/benvon/family-planner/internal/database"
	"github.com/benvon/family-planner/internal/models"
	"github.com/benvon/family-planner/internal/request"
	"go.uber.org/zap"
)

// TokenAuthenticator resolves a bearer token to a user
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, rawToken string) (*models.User, error)
}

// UserFromContext extracts the user from the request context
func UserFromContext(r *http.Request) *models.User {
	return request.UserFromContext(r)
}

// Auth creates authentication middleware that validates bearer ID tokens
func Auth(authenticator TokenAuthenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, r, http.StatusUnauthorized, errUnauthorized, "Missing or malformed Authorization header")
				return
			}

			user, err := authenticator.Authenticate(r.Context(), tokenString)
			if err != nil {
				if errors.Is(err, database.ErrNotFound) {
					logger.Error("oidc_provider_not_configured", zap.Error(err))
					writeError(w, r, http.StatusInternalServerError, errInternal, "Authentication is not configured")
					return
				}
				logger.Debug("token_verification_failed", zap.Error(err))
				writeError(w, r, http.StatusUnauthorized, errUnauthorized, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(request.WithUser(r.Context(), user)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
