package oidc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/family-planner/internal/models"
	"golang.org/x/oauth2"
)

// ErrMissingIDToken is returned when a token response has no id_token
var ErrMissingIDToken = errors.New("token response has no id_token")

var scopes = []string{"openid", "email", "profile"}

// Client wraps the authorization code flow for one provider
type Client struct {
	config *oauth2.Config
}

// TokenSet is the result of a code exchange
type TokenSet struct {
	IDToken      string    `json:"id_token"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry"`
}

// NewClient creates a new OAuth2 client from OIDC config
func NewClient(oidcConfig *models.OIDCConfig, endpoints Endpoints) *Client {
	clientSecret := ""
	if oidcConfig.ClientSecret != nil {
		clientSecret = *oidcConfig.ClientSecret
	}

	return &Client{config: &oauth2.Config{
		ClientID:     oidcConfig.ClientID,
		ClientSecret: clientSecret,
		RedirectURL:  oidcConfig.RedirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  endpoints.AuthorizationEndpoint,
			TokenURL: endpoints.TokenEndpoint,
		},
	}}
}

// NewVerifier returns a fresh PKCE code verifier
func NewVerifier() string {
	return oauth2.GenerateVerifier()
}

// AuthCodeURL returns the authorization URL carrying state and the PKCE challenge for verifier
func (c *Client) AuthCodeURL(state, verifier string) string {
	return c.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// ExchangeCode exchanges an authorization code for tokens
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*TokenSet, error) {
	token, err := c.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return nil, ErrMissingIDToken
	}
	return &TokenSet{
		IDToken:      idToken,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}, nil
}
