package oidc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/benvon/family-planner/internal/database"
	"github.com/benvon/family-planner/internal/models"
)

// UserStore maps identity provider subjects to users
type UserStore interface {
	GetByProviderID(ctx context.Context, providerID string) (*models.User, error)
	UpsertFromProvider(ctx context.Context, providerID, email string, name *string, emailVerified bool) (*models.User, error)
}

// Authenticator turns a bearer ID token into a local user
type Authenticator struct {
	provider     *Provider
	jwks         *JWKSManager
	users        UserStore
	providerName string
}

// NewAuthenticator creates an authenticator for the named provider
func NewAuthenticator(provider *Provider, jwks *JWKSManager, users UserStore, providerName string) *Authenticator {
	return &Authenticator{provider: provider, jwks: jwks, users: users, providerName: providerName}
}

// ProviderName is the configured provider key
func (a *Authenticator) ProviderName() string {
	return a.providerName
}

// Authenticate verifies rawToken and returns its user, creating or refreshing
// the row when the claims are new or changed.
func (a *Authenticator) Authenticate(ctx context.Context, rawToken string) (*models.User, error) {
	config, err := a.provider.GetConfig(ctx, a.providerName)
	if err != nil {
		return nil, err
	}
	ep := a.provider.Endpoints(ctx, config)
	claims, err := NewVerifier(a.jwks, config.Issuer, config.ClientID).Verify(ctx, rawToken, ep.JWKSURI)
	if err != nil {
		return nil, err
	}

	user, err := a.users.GetByProviderID(ctx, claims.Sub)
	switch {
	case err == nil && !changed(user, claims):
		return user, nil
	case err != nil && !errors.Is(err, database.ErrNotFound):
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	var name *string
	if claims.Name != "" {
		name = &claims.Name
	}
	user, err = a.users.UpsertFromProvider(ctx, claims.Sub, claims.Email, name, claims.EmailVerified)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return user, nil
}

func changed(user *models.User, claims *models.JWTClaims) bool {
	if !strings.EqualFold(user.Email, claims.Email) || user.EmailVerified != claims.EmailVerified {
		return true
	}
	if claims.Name == "" {
		return false
	}
	return user.Name == nil || *user.Name != claims.Name
}
