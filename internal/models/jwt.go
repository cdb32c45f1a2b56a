package models

import "time"

// JWTClaims are the identity claims read from a verified ID token
type JWTClaims struct {
	Sub           string    `json:"sub"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	EmailVerified bool      `json:"email_verified"`
	Issuer        string    `json:"iss"`
	Audience      []string  `json:"aud"`
	ExpiresAt     time.Time `json:"exp"`
}
