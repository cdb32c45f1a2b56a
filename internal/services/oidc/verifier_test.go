package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benvon/family-planner/internal/database"
	"github.com/benvon/family-planner/internal/models"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

type keyServer struct {
	*httptest.Server
	key     jwk.Key
	fetches atomic.Int32
}

func newKeyServer(t *testing.T) *keyServer {
	t.Helper()

	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	key, err := jwk.FromRaw(raw)
	if err != nil {
		t.Fatalf("jwk.FromRaw: %v", err)
	}
	_ = key.Set(jwk.KeyIDKey, "test-key")
	_ = key.Set(jwk.AlgorithmKey, jwa.RS256)

	pub, err := jwk.PublicKeyOf(key)
	if err != nil {
		t.Fatalf("jwk.PublicKeyOf: %v", err)
	}
	set := jwk.NewSet()
	_ = set.AddKey(pub)
	body, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal set: %v", err)
	}

	ks := &keyServer{key: key}
	ks.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jwks" {
			http.NotFound(w, r)
			return
		}
		ks.fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(ks.Close)
	return ks
}

func (ks *keyServer) sign(t *testing.T, issuer, audience string, exp time.Time, extra map[string]any) string {
	t.Helper()
	b := jwt.NewBuilder().
		Issuer(issuer).
		Subject("sub-1").
		Audience([]string{audience}).
		IssuedAt(time.Now()).
		Expiration(exp)
	for k, v := range extra {
		b = b.Claim(k, v)
	}
	tok, err := b.Build()
	if err != nil {
		t.Fatalf("build token: %v", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, ks.key))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return string(signed)
}

func TestVerifier_Verify(t *testing.T) {
	t.Parallel()

	ks := newKeyServer(t)
	issuer := ks.URL
	jwksURL := ks.URL + "/jwks"
	inAnHour := time.Now().Add(time.Hour)

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{
			name:  "valid",
			token: ks.sign(t, issuer, "client-1", inAnHour, map[string]any{"email": "ana@example.com", "name": "Ana", "email_verified": "true"}),
		},
		{name: "wrong audience", token: ks.sign(t, issuer, "someone-else", inAnHour, nil), wantErr: true},
		{name: "wrong issuer", token: ks.sign(t, "https://evil.example.com", "client-1", inAnHour, nil), wantErr: true},
		{name: "expired", token: ks.sign(t, issuer, "client-1", time.Now().Add(-time.Hour), nil), wantErr: true},
		{name: "garbage", token: "not.a.jwt", wantErr: true},
	}

	v := NewVerifier(NewJWKSManager(), issuer, "client-1")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := v.Verify(context.Background(), tt.token, jwksURL)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if claims.Sub != "sub-1" || claims.Email != "ana@example.com" || claims.Name != "Ana" || !claims.EmailVerified {
				t.Errorf("claims = %+v", claims)
			}
		})
	}
	// failures inside minRefresh reuse the cached set
	if got := ks.fetches.Load(); got != 1 {
		t.Errorf("JWKS fetched %d times, want 1", got)
	}
}

func TestJWKSManager_Refresh(t *testing.T) {
	t.Parallel()

	ks := newKeyServer(t)
	m := NewJWKSManager()
	now := time.Now()
	m.now = func() time.Time { return now }

	if _, err := m.GetJWKS(context.Background(), ks.URL+"/jwks"); err != nil {
		t.Fatalf("GetJWKS() error = %v", err)
	}
	if _, refetched, _ := m.Refresh(context.Background(), ks.URL+"/jwks"); refetched {
		t.Error("Refresh() refetched inside minRefresh")
	}
	now = now.Add(2 * time.Minute)
	if _, refetched, err := m.Refresh(context.Background(), ks.URL+"/jwks"); err != nil || !refetched {
		t.Errorf("Refresh() = %v, %v; want refetch", refetched, err)
	}
	if _, err := m.GetJWKS(context.Background(), ks.URL+"/missing"); err == nil {
		t.Error("GetJWKS(missing) error = nil")
	}
}

type fakeUserStore struct {
	users   map[string]*models.User
	upserts int
}

func (s *fakeUserStore) GetByProviderID(_ context.Context, providerID string) (*models.User, error) {
	u, ok := s.users[providerID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return u, nil
}

func (s *fakeUserStore) UpsertFromProvider(_ context.Context, providerID, email string, name *string, verified bool) (*models.User, error) {
	s.upserts++
	u := &models.User{ID: uuid.New(), Email: email, ProviderID: &providerID, Name: name, EmailVerified: verified}
	s.users[providerID] = u
	return u, nil
}

func TestAuthenticator_Authenticate(t *testing.T) {
	t.Parallel()

	ks := newKeyServer(t)
	store := &fakeConfigStore{configs: map[string]*models.OIDCConfig{
		"cognito": {Issuer: ks.URL, ClientID: "client-1", JWKSUrl: stringPtr(ks.URL + "/jwks")},
	}}
	users := &fakeUserStore{users: map[string]*models.User{}}
	auth := NewAuthenticator(NewProvider(store), NewJWKSManager(), users, "cognito")

	claims := map[string]any{"email": "ana@example.com", "name": "Ana", "email_verified": true}
	token := ks.sign(t, ks.URL, "client-1", time.Now().Add(time.Hour), claims)

	first, err := auth.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if first.Email != "ana@example.com" || first.Name == nil || *first.Name != "Ana" {
		t.Errorf("user = %+v", first)
	}
	if _, err := auth.Authenticate(context.Background(), token); err != nil {
		t.Fatalf("Authenticate() second call error = %v", err)
	}
	if users.upserts != 1 {
		t.Errorf("upserts = %d, want 1 for unchanged claims", users.upserts)
	}

	claims["name"] = "Ana B"
	renamed := ks.sign(t, ks.URL, "client-1", time.Now().Add(time.Hour), claims)
	if _, err := auth.Authenticate(context.Background(), renamed); err != nil {
		t.Fatalf("Authenticate() renamed error = %v", err)
	}
	if users.upserts != 2 {
		t.Errorf("upserts = %d, want 2 after name change", users.upserts)
	}

	if _, err := auth.Authenticate(context.Background(), "bogus"); err == nil {
		t.Error("Authenticate(bogus) error = nil")
	}
}
