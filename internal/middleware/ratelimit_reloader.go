package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/benvon/family-planner/internal/models"
	"github.com/benvon/family-planner/internal/request"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

const (
	defaultRatelimitRate = "5-S"
	ratelimitKeyPrefix   = "family-planner:ratelimit"
)

// RateLimitSource reads and seeds the stored rate limit; nil means none stored
type RateLimitSource interface {
	GetRateLimit(ctx context.Context) (*models.RatelimitConfig, error)
	SetRateLimit(ctx context.Context, c *models.RatelimitConfig) error
}

// RateLimitReloader wraps ulule/limiter and periodically reloads rate limit config from the database.
type RateLimitReloader struct {
	next        http.Handler
	store       limiter.Store
	source      RateLimitSource
	defaultRate string
	log         *zap.Logger
	interval    time.Duration
	mu          sync.RWMutex
	current     http.Handler
	rate        string
}

// NewRateLimitReloader creates a rate limit middleware that loads config from the DB and hot-reloads it.
func NewRateLimitReloader(redisClient *redis.Client, source RateLimitSource, defaultRate string, log *zap.Logger, reloadInterval time.Duration) (*RateLimitReloader, error) {
	store, err := redisstore.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: ratelimitKeyPrefix})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit store: %w", err)
	}
	return newRateLimitReloader(store, source, defaultRate, log, reloadInterval), nil
}

func newRateLimitReloader(store limiter.Store, source RateLimitSource, defaultRate string, log *zap.Logger, reloadInterval time.Duration) *RateLimitReloader {
	if defaultRate == "" {
		defaultRate = defaultRatelimitRate
	}
	return &RateLimitReloader{
		store:       store,
		source:      source,
		defaultRate: defaultRate,
		log:         log,
		interval:    reloadInterval,
	}
}

// Middleware returns a middleware that wraps next with rate limiting and hot-reload.
func (r *RateLimitReloader) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		r.next = next
		r.load(context.Background())
		return r
	}
}

// Start runs the reload loop until ctx is cancelled. Call after Middleware() is applied.
func (r *RateLimitReloader) Start(ctx context.Context) {
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

func (r *RateLimitReloader) load(ctx context.Context) {
	if r.next == nil {
		return
	}
	rateStr := r.defaultRate
	cfg, err := r.source.GetRateLimit(ctx)
	switch {
	case err != nil:
		r.log.Warn("failed_to_load_ratelimit_config_from_db_using_default",
			zap.Error(err),
			zap.String("default_rate", r.defaultRate),
		)
	case cfg != nil && cfg.Rate != "":
		rateStr = cfg.Rate
	default:
		if err := r.source.SetRateLimit(ctx, &models.RatelimitConfig{Rate: r.defaultRate}); err != nil {
			r.log.Error("failed_to_save_default_ratelimit_config",
				zap.Error(err),
				zap.String("default_rate", r.defaultRate),
			)
		}
	}

	rate, err := limiter.NewRateFromFormatted(rateStr)
	if err != nil {
		r.log.Error("failed_to_parse_rate_limit_using_default",
			zap.Error(err),
			zap.String("rate_str", rateStr),
		)
		rateStr = r.defaultRate
		if rate, err = limiter.NewRateFromFormatted(rateStr); err != nil {
			r.log.Error("failed_to_parse_default_rate_limit", zap.Error(err))
			return
		}
	}

	r.mu.RLock()
	same := r.current != nil && r.rate == rateStr
	r.mu.RUnlock()
	if same {
		return
	}

	instance := limiter.New(r.store, rate)
	mw := stdlibmw.NewMiddleware(instance, stdlibmw.WithKeyGetter(rateLimitKey))
	h := mw.Handler(r.next)

	r.mu.Lock()
	r.current = h
	r.rate = rateStr
	r.mu.Unlock()
	r.log.Info("ratelimit_config_loaded", zap.String("rate", rateStr))
}

// rateLimitKey buckets authenticated callers by user and everyone else by client IP
func rateLimitKey(req *http.Request) string {
	if user := request.UserFromContext(req); user != nil {
		return "user:" + user.ID.String()
	}
	return "ip:" + request.ClientIP(req)
}

// ServeHTTP implements http.Handler.
func (r *RateLimitReloader) ServeHTTP(w http.ResponseWriter, req *http.Request) {
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
