package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/benvon/family-planner/internal/models"
	"github.com/benvon/family-planner/internal/services/oidc"
	"github.com/benvon/family-planner/internal/session"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	flowCookieName = "oidc_flow"
	flowCookieTTL  = 10 * time.Minute
)

// LoginProvider resolves provider settings for the login flow
type LoginProvider interface {
	GetLoginConfig(ctx context.Context, providerName string) (*oidc.LoginConfig, error)
	Client(ctx context.Context, providerName string) (*oidc.Client, *models.OIDCConfig, error)
}

// TokenAuthenticator turns an ID token into a user
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, rawToken string) (*models.User, error)
}

// SessionOpener opens the planner session after login
type SessionOpener interface {
	Open(ctx context.Context, userID uuid.UUID) (*session.Session, error)
}

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	provider      LoginProvider
	authenticator TokenAuthenticator
	sessions      SessionOpener
	providerName  string
	logger        *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(provider LoginProvider, authenticator TokenAuthenticator, sessions SessionOpener, providerName string, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		provider:      provider,
		authenticator: authenticator,
		sessions:      sessions,
		providerName:  providerName,
		logger:        logger,
	}
}

// RegisterPublicRoutes registers the unauthenticated login routes.
// The router should already have the /api/v1/auth prefix.
func (h *AuthHandler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/oidc/login", h.GetOIDCLogin).Methods("GET")
	r.HandleFunc("/oidc/callback", h.OIDCCallback).Methods("GET")
}

// RegisterRoutes registers auth routes that need a user
func (h *AuthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/me", h.GetMe).Methods("GET")
}

// GetOIDCLogin returns the provider configuration and a ready authorization
// URL. State and the PKCE verifier are kept in a short-lived cookie.
func (h *AuthHandler) GetOIDCLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	loginConfig, err := h.provider.GetLoginConfig(ctx, h.providerName)
	if err != nil {
		h.logger.Error("oidc_login_config_failed", zap.String("provider", h.providerName), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, errInternal, "Failed to get OIDC configuration")
		return
	}
	client, _, err := h.provider.Client(ctx, h.providerName)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, errInternal, "Failed to get OIDC configuration")
		return
	}

	state := uuid.NewString()
	verifier := oidc.NewVerifier()
	loginConfig.AuthorizationURL = client.AuthCodeURL(state, verifier)

	http.SetCookie(w, &http.Cookie{
		Name:     flowCookieName,
		Value:    state + "." + verifier,
		Path:     "/",
		MaxAge:   int(flowCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   isHTTPS(r),
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusOK, loginConfig)
}

// LoginResponse is returned by the OIDC callback
type LoginResponse struct {
	User   *models.User   `json:"user"`
	Tokens *oidc.TokenSet `json:"tokens"`
}

// OIDCCallback completes the authorization code flow
func (h *AuthHandler) OIDCCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if providerErr := q.Get("error"); providerErr != "" {
		respondJSONError(w, http.StatusBadRequest, errUnauthorized, "login failed: "+providerErr)
		return
	}
	cookie, err := r.Cookie(flowCookieName)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, errValidation, "login flow expired, start again")
		return
	}
	state, verifier, ok := strings.Cut(cookie.Value, ".")
	if !ok || state == "" || state != q.Get("state") {
		h.logger.Warn("oidc_state_mismatch")
		respondJSONError(w, http.StatusBadRequest, errValidation, "state mismatch")
		return
	}
	code := q.Get("code")
	if code == "" {
		respondJSONError(w, http.StatusBadRequest, errValidation, "code is required")
		return
	}

	client, _, err := h.provider.Client(ctx, h.providerName)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, errInternal, "Failed to get OIDC configuration")
		return
	}
	tokens, err := client.ExchangeCode(ctx, code, verifier)
	if err != nil {
		h.logger.Warn("oidc_code_exchange_failed", zap.Error(err))
		respondJSONError(w, http.StatusUnauthorized, errUnauthorized, "code exchange failed")
		return
	}
	user, err := h.authenticator.Authenticate(ctx, tokens.IDToken)
	if err != nil {
		h.logger.Warn("oidc_id_token_rejected", zap.Error(err))
		respondJSONError(w, http.StatusUnauthorized, errUnauthorized, "invalid ID token")
		return
	}

	if _, err := h.sessions.Open(ctx, user.ID); err != nil && !errors.Is(err, session.ErrNoActivePlan) {
		h.logger.Warn("planner_session_open_failed", zap.String("user_id", user.ID.String()), zap.Error(err))
	}

	http.SetCookie(w, &http.Cookie{Name: flowCookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	h.logger.Info("user_logged_in", zap.String("user_id", user.ID.String()))
	respondJSON(w, http.StatusOK, LoginResponse{User: user, Tokens: tokens})
}

// GetMe returns current user information
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
