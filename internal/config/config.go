package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds server and worker configuration
type Config struct {
	DatabaseURL      string
	ServerPort       string
	BaseURL          string
	FrontendURL      string
	AIProvider       string
	AIAPIKey         string
	AIModel          string
	AIBaseURL        string
	PlacesAPIKey     string
	EnableHSTS       bool
	OIDCProvider     string
	RedisURL         string
	RabbitMQURL      string
	RabbitMQPrefetch int
	WorkerDebugMode  bool
	ServerDebugMode  bool
	OTELEnabled      bool
	OTELEndpoint     string
	OTELInsecure     bool
	OTELSampleRatio  float64

	DefaultRateLimit       string
	CatalogCacheTTL        time.Duration
	SettingsReloadInterval time.Duration
	SessionIdleTimeout     time.Duration
	SessionSweepInterval   time.Duration
	EnrichInterval         time.Duration
	DLQRetention           time.Duration
	ShutdownTimeout        time.Duration
}

// LocalConfig configures the single-user planner CLI
type LocalConfig struct {
	StatePath   string
	CatalogPath string
	Debug       bool
}

// LoadDotEnv loads ENV_FILE (default .env) into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv() error {
	path := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	provider := strings.ToLower(getEnv("AI_PROVIDER", "openai"))
	cfg := &Config{
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		BaseURL:          getEnv("BASE_URL", "http://localhost:8080"),
		FrontendURL:      getEnv("FRONTEND_URL", "http://localhost:3000"),
		AIProvider:       provider,
		AIAPIKey:         aiKey(provider),
		AIModel:          getEnv("AI_MODEL", ""),
		AIBaseURL:        getEnv("AI_BASE_URL", ""),
		PlacesAPIKey:     getEnv("GOOGLE_PLACES_API_KEY", ""),
		EnableHSTS:       getEnvBool("ENABLE_HSTS", false),
		OIDCProvider:     getEnv("OIDC_PROVIDER", "cognito"),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch: getEnvInt("RABBITMQ_PREFETCH", 1),
		WorkerDebugMode:  getEnvBool("WORKER_DEBUG_MODE", false),
		ServerDebugMode:  getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:      getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:     getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELSampleRatio:  getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 1),

		DefaultRateLimit:       getEnv("RATE_LIMIT_DEFAULT", "5-S"),
		CatalogCacheTTL:        getEnvDuration("CATALOG_CACHE_TTL", 10*time.Minute),
		SettingsReloadInterval: getEnvDuration("SETTINGS_RELOAD_INTERVAL", 30*time.Second),
		SessionIdleTimeout:     getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SessionSweepInterval:   getEnvDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		EnrichInterval:         getEnvDuration("ENRICH_INTERVAL", time.Hour),
		DLQRetention:           getEnvDuration("DLQ_RETENTION", 7*24*time.Hour),
		ShutdownTimeout:        getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.RabbitMQURL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required for job queueing (generation and sync replay require RabbitMQ)")
	}

	switch cfg.AIProvider {
	case "openai", "gemini":
	default:
		return nil, fmt.Errorf("AI_PROVIDER must be openai or gemini, got %q", cfg.AIProvider)
	}

	return cfg, nil
}

// LoadLocal loads configuration for the planner CLI. State and catalog
// paths default to the user's config directory.
func LoadLocal() (*LocalConfig, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	dir := getEnv("PLANNER_HOME", "")
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate config directory: %w", err)
		}
		dir = filepath.Join(base, "family-planner")
	}
	return &LocalConfig{
		StatePath:   getEnv("PLANNER_STATE", filepath.Join(dir, "planner.db")),
		CatalogPath: getEnv("PLANNER_CATALOG", filepath.Join(dir, "catalog.yaml")),
		Debug:       getEnvBool("PLANNER_DEBUG", false),
	}, nil
}

// AIConfig returns the provider settings passed to the AI registry
func (c *Config) AIConfig() map[string]string {
	return map[string]string{
		"api_key":  c.AIAPIKey,
		"model":    c.AIModel,
		"base_url": c.AIBaseURL,
	}
}

func aiKey(provider string) string {
	if key := getEnv("AI_API_KEY", ""); key != "" {
		return key
	}
	if provider == "gemini" {
		return getEnv("GEMINI_API_KEY", "")
	}
	return getEnv("OPENAI_API_KEY", "")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat reads a ratio in [0, 1]; anything else falls back to the default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil && f >= 0 && f <= 1 {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
