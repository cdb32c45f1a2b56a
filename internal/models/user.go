package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is a planner account, created on first OIDC login
type User struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	ProviderID    *string   `json:"provider_id,omitempty"`
	Name          *string   `json:"name,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DisplayName is the name shown to other plan members: the profile name
// when set, else the local part of the email address
func (u *User) DisplayName() string {
	if u.Name != nil {
		if name := strings.TrimSpace(*u.Name); name != "" {
			return name
		}
	}
	local, _, _ := strings.Cut(u.Email, "@")
	return local
}
