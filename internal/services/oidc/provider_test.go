package oidc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/benvon/family-planner/internal/database"
	"github.com/benvon/family-planner/internal/models"
)

type fakeConfigStore struct {
	configs map[string]*models.OIDCConfig
}

func (s *fakeConfigStore) GetByProvider(_ context.Context, provider string) (*models.OIDCConfig, error) {
	c, ok := s.configs[provider]
	if !ok {
		return nil, database.ErrNotFound
	}
	return c, nil
}

func TestProvider_EndpointsFromDiscovery(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		_, _ = w.Write([]byte(`{"authorization_endpoint":"https://idp/authorize","token_endpoint":"https://idp/token","jwks_uri":"https://idp/keys"}`))
	}))
	defer server.Close()

	p := NewProvider(&fakeConfigStore{})
	cfg := &models.OIDCConfig{Issuer: server.URL}
	for range 2 {
		ep := p.Endpoints(context.Background(), cfg)
		if ep.AuthorizationEndpoint != "https://idp/authorize" || ep.TokenEndpoint != "https://idp/token" || ep.JWKSURI != "https://idp/keys" {
			t.Errorf("Endpoints() = %+v", ep)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("discovery fetched %d times, want 1", hits.Load())
	}
}

func TestProvider_EndpointsFallback(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	tests := []struct {
		name      string
		config    *models.OIDCConfig
		wantAuth  string
		wantToken string
		wantJWKS  string
	}{
		{
			name:      "issuer based",
			config:    &models.OIDCConfig{Issuer: server.URL + "/"},
			wantAuth:  server.URL + "/oauth2/authorize",
			wantToken: server.URL + "/oauth2/token",
			wantJWKS:  server.URL + "/.well-known/jwks.json",
		},
		{
			name:      "explicit jwks url",
			config:    &models.OIDCConfig{Issuer: server.URL, JWKSUrl: stringPtr("https://keys.example.com/jwks")},
			wantAuth:  server.URL + "/oauth2/authorize",
			wantToken: server.URL + "/oauth2/token",
			wantJWKS:  "https://keys.example.com/jwks",
		},
		{
			name: "cognito hosted domain",
			config: &models.OIDCConfig{
				Issuer: server.URL + "/cognito-idp.eu-west-1.amazonaws.com/pool",
				Domain: stringPtr("login.example.com"),
			},
			wantAuth:  "https://login.example.com/oauth2/authorize",
			wantToken: "https://login.example.com/oauth2/token",
			wantJWKS:  server.URL + "/cognito-idp.eu-west-1.amazonaws.com/pool/.well-known/jwks.json",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ep := NewProvider(&fakeConfigStore{}).Endpoints(context.Background(), tt.config)
			if ep.AuthorizationEndpoint != tt.wantAuth {
				t.Errorf("AuthorizationEndpoint = %q, want %q", ep.AuthorizationEndpoint, tt.wantAuth)
			}
			if ep.TokenEndpoint != tt.wantToken {
				t.Errorf("TokenEndpoint = %q, want %q", ep.TokenEndpoint, tt.wantToken)
			}
			if ep.JWKSURI != tt.wantJWKS {
				t.Errorf("JWKSURI = %q, want %q", ep.JWKSURI, tt.wantJWKS)
			}
		})
	}
}

func TestProvider_GetLoginConfig(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	p := NewProvider(&fakeConfigStore{configs: map[string]*models.OIDCConfig{
		"cognito": {Issuer: server.URL, ClientID: "client-1", RedirectURI: "http://localhost/cb"},
	}})

	lc, err := p.GetLoginConfig(context.Background(), "cognito")
	if err != nil {
		t.Fatalf("GetLoginConfig() error = %v", err)
	}
	if lc.ClientID != "client-1" || lc.Scope != "openid email profile" || lc.AuthorizationEndpoint != server.URL+"/oauth2/authorize" {
		t.Errorf("GetLoginConfig() = %+v", lc)
	}

	if _, err := p.GetLoginConfig(context.Background(), "missing"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("GetLoginConfig(missing) error = %v, want ErrNotFound", err)
	}
}
