package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/family-planner/internal/cache"
	"github.com/benvon/family-planner/internal/catalog"
	"github.com/benvon/family-planner/internal/config"
	"github.com/benvon/family-planner/internal/database"
	"github.com/benvon/family-planner/internal/handlers"
	"github.com/benvon/family-planner/internal/logger"
	"github.com/benvon/family-planner/internal/middleware"
	"github.com/benvon/family-planner/internal/queue"
	"github.com/benvon/family-planner/internal/services/oidc"
	"github.com/benvon/family-planner/internal/session"
	"github.com/benvon/family-planner/internal/syncer"
	"github.com/benvon/family-planner/internal/telemetry"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

const (
	serviceName = "family-planner-api"

	// replayDelay is how long a deferred planner write waits before the worker replays it
	replayDelay = time.Minute

	queueConnectRetries = 10
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(serviceName, debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracingEnabled := false
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else if tp, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
			ServiceName: serviceName,
			Version:     handlers.Version,
			Endpoint:    cfg.OTELEndpoint,
			Insecure:    cfg.OTELInsecure,
			SampleRatio: cfg.OTELSampleRatio,
		}); err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			tracingEnabled = true
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	redisClient, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_redis")

	jobQueue, err := queue.ConnectWithRetry(ctx, cfg.RabbitMQURL, queueConnectRetries, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Int("max_retries", queueConnectRetries), zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()

	// Repositories
	userRepo := database.NewUserRepository(db)
	oidcConfigRepo := database.NewOIDCConfigRepository(db)
	settingsRepo := database.NewSettingsRepository(db)
	destinationRepo := database.NewDestinationRepository(db)
	planRepo := database.NewPlanRepository(db)
	stateRepo := database.NewPlanStateRepository(db)

	// Services
	catalogService := catalog.NewService(destinationRepo, cache.NewJSONCache(redisClient, "catalog", cfg.CatalogCacheTTL), zapLogger)
	oidcProvider := oidc.NewProvider(oidcConfigRepo)
	authenticator := oidc.NewAuthenticator(oidcProvider, oidc.NewJWKSManager(), userRepo, cfg.OIDCProvider)
	sessions := session.NewManager(planRepo, stateRepo, catalogService, stateRepo, zapLogger,
		session.WithIdleTimeout(cfg.SessionIdleTimeout),
		session.WithDeferrerFactory(func(userID uuid.UUID) syncer.Deferrer {
			return syncer.NewQueueDeferrer(jobQueue, userID, replayDelay)
		}),
	)

	// Handlers
	authHandler := handlers.NewAuthHandler(oidcProvider, authenticator, sessions, cfg.OIDCProvider, zapLogger)
	destinationHandler := handlers.NewDestinationHandler(destinationRepo, catalogService, jobQueue, zapLogger)
	planHandler := handlers.NewPlanHandler(planRepo, userRepo, catalogService, sessions, cfg.FrontendURL, zapLogger)
	plannerHandler := handlers.NewPlannerHandler(sessions, zapLogger)
	healthChecker := handlers.NewHealthChecker().
		WithCheck("database", db.HealthCheck).
		WithCheck("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }).
		WithCheck("queue", jobQueue.HealthCheck)
	openAPIHandler, err := handlers.NewOpenAPIHandler()
	if err != nil {
		zapLogger.Fatal("failed_to_load_openapi_document", zap.Error(err))
	}

	r := mux.NewRouter()

	// gorilla/mux runs middleware in registration order; the first registered is outermost
	if tracingEnabled {
		r.Use(otelmux.Middleware(serviceName))
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	corsReloader := middleware.NewCORSReloader(settingsRepo, cfg.FrontendURL, zapLogger, cfg.SettingsReloadInterval)
	r.Use(corsReloader.Middleware())
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Audit(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	// Rate limiting is applied to API routes only
	rateLimitReloader, err := middleware.NewRateLimitReloader(redisClient, settingsRepo, cfg.DefaultRateLimit, zapLogger, cfg.SettingsReloadInterval)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limit_reloader", zap.Error(err))
	}
	rateLimitMW := rateLimitReloader.Middleware()
	authMW := middleware.Auth(authenticator, zapLogger)
	activityMW := middleware.ActivityTracking(sessions)

	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods("GET")
	r.HandleFunc("/version", handlers.VersionInfo).Methods("GET")
	openAPIHandler.RegisterRoutes(r)

	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	protected := func(prefix string) *mux.Router {
		sub := apiRouter.PathPrefix(prefix).Subrouter()
		sub.Use(authMW, activityMW, rateLimitMW)
		return sub
	}

	loginRouter := apiRouter.PathPrefix("/auth").Subrouter()
	loginRouter.Use(rateLimitMW)
	authHandler.RegisterPublicRoutes(loginRouter)
	authHandler.RegisterRoutes(protected("/auth"))
	destinationHandler.RegisterRoutes(protected("/destinations"))
	planHandler.RegisterRoutes(protected("/plans"))
	plannerHandler.RegisterRoutes(protected("/planner"))

	// Preflight requests; CORS headers are already set by the middleware
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   35 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go corsReloader.Start(ctx)
	go rateLimitReloader.Start(ctx)
	go sessions.Run(ctx, cfg.SessionSweepInterval)

	dlqGC := queue.NewGarbageCollector(jobQueue, time.Hour, cfg.DLQRetention, zapLogger)
	go func() {
		if err := dlqGC.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
		}
	}()

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("server_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}
	// flush pending planner writes before the queue and database close
	sessions.CloseAll(shutdownCtx)

	zapLogger.Info("server_exited")
}
