package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// SessionToucher records activity for a user's planner session
type SessionToucher interface {
	Touch(userID uuid.UUID)
}

// ActivityTracking marks the caller's planner session as active so the
// idle sweeper keeps it. Must run after Auth.
func ActivityTracking(sessions SessionToucher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user := UserFromContext(r); user != nil {
				sessions.Touch(user.ID)
			}
			next.ServeHTTP(w, r)
		})
	}
}
