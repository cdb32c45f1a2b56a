package models

import (
	"time"

	"github.com/google/uuid"
)

// OIDCConfig is the stored configuration of one identity provider
type OIDCConfig struct {
	ID       uuid.UUID `json:"id"`
	Provider string    `json:"provider"`
	Issuer   string    `json:"issuer"`
	// Domain overrides the OAuth2 host, as with Cognito hosted UI domains
	Domain       *string   `json:"domain,omitempty"`
	ClientID     string    `json:"client_id"`
	ClientSecret *string   `json:"client_secret,omitempty"` // nil for public clients using PKCE
	RedirectURI  string    `json:"redirect_uri"`
	JWKSUrl      *string   `json:"jwks_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
