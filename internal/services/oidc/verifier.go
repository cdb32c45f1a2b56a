package oidc

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/family-planner/internal/models"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// DefaultClockSkew is tolerated on exp, iat and nbf
const DefaultClockSkew = 30 * time.Second

// Verifier verifies ID tokens against a provider's key set
type Verifier struct {
	jwksManager *JWKSManager
	issuer      string
	audience    string
	skew        time.Duration
}

// NewVerifier creates a verifier for tokens issued by issuer to audience.
// An empty audience skips the aud check.
func NewVerifier(jwksManager *JWKSManager, issuer, audience string) *Verifier {
	return &Verifier{
		jwksManager: jwksManager,
		issuer:      issuer,
		audience:    audience,
		skew:        DefaultClockSkew,
	}
}

// Verify verifies a JWT token and extracts claims.
// A failed verification refetches the key set once to pick up rotated keys.
func (v *Verifier) Verify(ctx context.Context, tokenString string, jwksURL string) (*models.JWTClaims, error) {
	keys, err := v.jwksManager.GetJWKS(ctx, jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	opts := []jwt.ParseOption{
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAcceptableSkew(v.skew),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse([]byte(tokenString), append(opts, jwt.WithKeySet(keys))...)
	if err != nil {
		fresh, refetched, rerr := v.jwksManager.Refresh(ctx, jwksURL)
		if rerr != nil || !refetched {
			return nil, fmt.Errorf("failed to parse/verify token: %w", err)
		}
		token, err = jwt.Parse([]byte(tokenString), append(opts, jwt.WithKeySet(fresh))...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse/verify token: %w", err)
		}
	}

	claims := &models.JWTClaims{
		Sub:       token.Subject(),
		Issuer:    token.Issuer(),
		Audience:  token.Audience(),
		ExpiresAt: token.Expiration(),
		Email:     stringClaim(token, "email"),
		Name:      stringClaim(token, "name"),
	}
	if claims.Sub == "" {
		return nil, fmt.Errorf("token missing sub claim")
	}
	// Cognito sends email_verified as a string
	switch ev, _ := token.Get("email_verified"); val := ev.(type) {
	case bool:
		claims.EmailVerified = val
	case string:
		claims.EmailVerified = val == "true"
	}
	return claims, nil
}

func stringClaim(token jwt.Token, name string) string {
	v, ok := token.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
