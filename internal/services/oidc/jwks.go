package oidc

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

type cachedSet struct {
	keys    jwk.Set
	fetched time.Time
}

// JWKSManager fetches and caches key sets by URL
type JWKSManager struct {
	httpClient *http.Client
	ttl        time.Duration
	// minRefresh bounds forced refetches when a token names an unknown key
	minRefresh time.Duration
	now        func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedSet
}

// NewJWKSManager creates a new JWKS manager
func NewJWKSManager() *JWKSManager {
	return &JWKSManager{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		ttl:        time.Hour,
		minRefresh: time.Minute,
		now:        time.Now,
		cache:      make(map[string]cachedSet),
	}
}

// GetJWKS retrieves JWKS for a given JWKS URL, with caching
func (m *JWKSManager) GetJWKS(ctx context.Context, jwksURL string) (jwk.Set, error) {
	m.mu.RLock()
	entry, ok := m.cache[jwksURL]
	m.mu.RUnlock()
	if ok && m.now().Sub(entry.fetched) < m.ttl {
		return entry.keys, nil
	}
	return m.fetch(ctx, jwksURL)
}

// Refresh refetches the key set unless it was fetched within minRefresh.
// It reports whether a new set was fetched.
func (m *JWKSManager) Refresh(ctx context.Context, jwksURL string) (jwk.Set, bool, error) {
	m.mu.RLock()
	entry, ok := m.cache[jwksURL]
	m.mu.RUnlock()
	if ok && m.now().Sub(entry.fetched) < m.minRefresh {
		return entry.keys, false, nil
	}
	keys, err := m.fetch(ctx, jwksURL)
	if err != nil {
		return nil, false, err
	}
	return keys, true, nil
}

func (m *JWKSManager) fetch(ctx context.Context, jwksURL string) (jwk.Set, error) {
	keys, err := jwk.Fetch(ctx, jwksURL, jwk.WithHTTPClient(m.httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	m.mu.Lock()
	m.cache[jwksURL] = cachedSet{keys: keys, fetched: m.now()}
	m.mu.Unlock()
	return keys, nil
}
