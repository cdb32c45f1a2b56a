package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/benvon/family-planner/internal/database"
	"github.com/benvon/family-planner/internal/models"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// CORSSource reads the stored CORS settings; nil means none stored
type CORSSource interface {
	GetCORS(ctx context.Context) (*models.CorsConfig, error)
}

// CORSReloader wraps rs/cors and periodically reloads CORS config from the database.
type CORSReloader struct {
	next     http.Handler
	source   CORSSource
	fallback string // FRONTEND_URL
	log      *zap.Logger
	interval time.Duration
	mu       sync.RWMutex
	current  http.Handler
	origins  string
}

// NewCORSReloader creates a CORS middleware that loads config from the DB and hot-reloads it.
func NewCORSReloader(source CORSSource, frontendURLFallback string, log *zap.Logger, reloadInterval time.Duration) *CORSReloader {
	return &CORSReloader{
		source:   source,
		fallback: strings.TrimSpace(frontendURLFallback),
		log:      log,
		interval: reloadInterval,
	}
}

// Middleware returns a middleware that wraps next with CORS and hot-reload.
func (r *CORSReloader) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		r.next = next
		r.load(context.Background())
		return r
	}
}

// Start runs the reload loop until ctx is cancelled. Call after Middleware() is applied.
func (r *CORSReloader) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.load(ctx)
		}
	}
}

func (r *CORSReloader) load(ctx context.Context) {
	if r.next == nil {
		return
	}
	cfg, err := r.source.GetCORS(ctx)
	if err != nil {
		r.log.Warn("failed_to_load_cors_config_using_fallback", zap.Error(err))
	}
	opts := corsOptions(cfg, r.fallback)
	joined := strings.Join(opts.AllowedOrigins, ",")
	h := cors.New(opts).Handler(r.next)

	r.mu.Lock()
	changed := joined != r.origins
	r.current = h
	r.origins = joined
	r.mu.Unlock()
	if changed {
		r.log.Info("cors_config_loaded", zap.Strings("allowed_origins", opts.AllowedOrigins))
	}
}

func corsOptions(cfg *models.CorsConfig, fallback string) cors.Options {
	origins := database.AllowedOriginsSlice(fallback)
	allowCreds := true
	maxAge := 86400
	if cfg != nil {
		origins = database.AllowedOriginsSlice(cfg.AllowedOrigins)
		allowCreds = cfg.AllowCredentials
		maxAge = cfg.MaxAge
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: allowCreds,
		MaxAge:           maxAge,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
	}
}

// ServeHTTP implements http.Handler.
func (r *CORSReloader) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	h := r.current
	r.mu.RUnlock()
	if h != nil {
		h.ServeHTTP(w, req)
		return
	}
	if r.next != nil {
		r.next.ServeHTTP(w, req)
	}
}
