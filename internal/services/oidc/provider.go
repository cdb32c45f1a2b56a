package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/benvon/family-planner/internal/models"
)

// ConfigStore reads provider settings
type ConfigStore interface {
	GetByProvider(ctx context.Context, provider string) (*models.OIDCConfig, error)
}

// Endpoints are the resolved URLs of an identity provider
type Endpoints struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

// LoginConfig contains OIDC login configuration for frontend
type LoginConfig struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	ClientID              string `json:"client_id"`
	RedirectURI           string `json:"redirect_uri"`
	Scope                 string `json:"scope"`
	AuthorizationURL      string `json:"authorization_url,omitempty"`
}

// Provider resolves provider settings and endpoints.
// Discovery documents are cached per issuer once fetched successfully.
type Provider struct {
	store      ConfigStore
	httpClient *http.Client

	mu         sync.RWMutex
	discovered map[string]Endpoints
}

// NewProvider creates a new OIDC provider manager
func NewProvider(store ConfigStore) *Provider {
	return &Provider{
		store:      store,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		discovered: make(map[string]Endpoints),
	}
}

// GetConfig retrieves OIDC configuration for a provider
func (p *Provider) GetConfig(ctx context.Context, providerName string) (*models.OIDCConfig, error) {
	config, err := p.store.GetByProvider(ctx, providerName)
	if err != nil {
		return nil, fmt.Errorf("failed to get OIDC config: %w", err)
	}
	return config, nil
}

// Endpoints resolves the authorization, token and key endpoints for config.
// Explicit settings win over the discovery document; a Cognito hosted domain
// replaces the issuer for the OAuth2 endpoints.
func (p *Provider) Endpoints(ctx context.Context, config *models.OIDCConfig) Endpoints {
	ep := p.discover(ctx, config.Issuer)

	base := oauthBase(config)
	if base != "" || ep.AuthorizationEndpoint == "" {
		if base == "" {
			base = config.Issuer
		}
		ep.AuthorizationEndpoint = joinURL(base, "oauth2/authorize")
		ep.TokenEndpoint = joinURL(base, "oauth2/token")
	}
	if ep.TokenEndpoint == "" {
		ep.TokenEndpoint = joinURL(config.Issuer, "oauth2/token")
	}
	if config.JWKSUrl != nil && *config.JWKSUrl != "" {
		ep.JWKSURI = *config.JWKSUrl
	}
	if ep.JWKSURI == "" {
		ep.JWKSURI = joinURL(config.Issuer, ".well-known/jwks.json")
	}
	return ep
}

// GetLoginConfig returns the configuration needed for frontend OIDC login
func (p *Provider) GetLoginConfig(ctx context.Context, providerName string) (*LoginConfig, error) {
	config, err := p.GetConfig(ctx, providerName)
	if err != nil {
		return nil, err
	}
	ep := p.Endpoints(ctx, config)
	return &LoginConfig{
		AuthorizationEndpoint: ep.AuthorizationEndpoint,
		TokenEndpoint:         ep.TokenEndpoint,
		ClientID:              config.ClientID,
		RedirectURI:           config.RedirectURI,
		Scope:                 strings.Join(scopes, " "),
	}, nil
}

// Client builds an OAuth2 client for the named provider
func (p *Provider) Client(ctx context.Context, providerName string) (*Client, *models.OIDCConfig, error) {
	config, err := p.GetConfig(ctx, providerName)
	if err != nil {
		return nil, nil, err
	}
	return NewClient(config, p.Endpoints(ctx, config)), config, nil
}

func (p *Provider) discover(ctx context.Context, issuer string) Endpoints {
	p.mu.RLock()
	ep, ok := p.discovered[issuer]
	p.mu.RUnlock()
	if ok {
		return ep
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, joinURL(issuer, ".well-known/openid-configuration"), nil)
	if err != nil {
		return Endpoints{}
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Endpoints{}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return Endpoints{}
	}
	if err := json.NewDecoder(resp.Body).Decode(&ep); err != nil {
		return Endpoints{}
	}

	p.mu.Lock()
	p.discovered[issuer] = ep
	p.mu.Unlock()
	return ep
}

// oauthBase returns the hosted-UI base URL for Cognito pools with a domain
func oauthBase(config *models.OIDCConfig) string {
	if config.Domain == nil || *config.Domain == "" || !strings.Contains(config.Issuer, "cognito-idp.") {
		return ""
	}
	domain := strings.TrimSuffix(*config.Domain, "/")
	if strings.HasPrefix(domain, "https://") {
		return domain
	}
	return "https://" + domain
}

func joinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + "/" + path
}
