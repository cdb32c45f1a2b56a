package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/family-planner/internal/cache"
	"github.com/benvon/family-planner/internal/catalog"
	"github.com/benvon/family-planner/internal/config"
	"github.com/benvon/family-planner/internal/database"
	"github.com/benvon/family-planner/internal/logger"
	"github.com/benvon/family-planner/internal/queue"
	"github.com/benvon/family-planner/internal/services/ai"
	"github.com/benvon/family-planner/internal/services/places"
	"github.com/benvon/family-planner/internal/workers"
	"go.uber.org/zap"
)

const (
	serviceName = "family-planner-worker"

	queueConnectRetries = 10
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(serviceName, debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.String("ai_provider", cfg.AIProvider),
		zap.String("ai_model", cfg.AIModel),
		zap.Bool("places_enabled", cfg.PlacesAPIKey != ""),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	// Redis only backs the catalog cache here; the worker runs without it
	var catalogCache *cache.JSONCache
	if redisClient, err := cache.Connect(ctx, cfg.RedisURL); err != nil {
		zapLogger.Warn("redis_unavailable_catalog_cache_not_invalidated", zap.Error(err))
	} else {
		defer func() { _ = redisClient.Close() }()
		catalogCache = cache.NewJSONCache(redisClient, "catalog", cfg.CatalogCacheTTL)
	}

	jobQueue, err := queue.ConnectWithRetry(ctx, cfg.RabbitMQURL, queueConnectRetries, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_rabbitmq", zap.Int("prefetch", cfg.RabbitMQPrefetch))

	destinationRepo := database.NewDestinationRepository(db)
	stateRepo := database.NewPlanStateRepository(db)
	catalogService := catalog.NewService(destinationRepo, catalogCache, zapLogger)

	registry := ai.NewProviderRegistry()
	ai.RegisterOpenAI(registry, zapLogger, debugMode)
	ai.RegisterGemini(registry, zapLogger)

	var generator *workers.DestinationGenerator
	provider, err := registry.GetProvider(ctx, cfg.AIProvider, cfg.AIConfig())
	if err != nil {
		zapLogger.Warn("ai_provider_unavailable_generation_disabled", zap.String("provider", cfg.AIProvider), zap.Error(err))
	} else {
		defer func() { _ = provider.Close() }()
		generator = workers.NewDestinationGenerator(provider, destinationRepo, jobQueue, cfg.PlacesAPIKey != "", zapLogger)
		zapLogger.Info("initialized_ai_provider", zap.String("provider", cfg.AIProvider), zap.String("model", cfg.AIModel))
	}

	var enricher *workers.PlaceEnricher
	if cfg.PlacesAPIKey != "" {
		placesClient, err := places.NewClient(ctx, cfg.PlacesAPIKey)
		if err != nil {
			zapLogger.Fatal("failed_to_create_places_client", zap.Error(err))
		}
		enricher = workers.NewPlaceEnricher(placesClient, destinationRepo, catalogService, zapLogger)

		scheduler := workers.NewEnrichScheduler(jobQueue, destinationRepo, zapLogger)
		go scheduler.Start(ctx, cfg.EnrichInterval)
	}

	processor := workers.NewProcessor(generator, enricher, workers.NewSyncReplayer(stateRepo, zapLogger), jobQueue, zapLogger)

	dlqGC := queue.NewGarbageCollector(jobQueue, time.Hour, cfg.DLQRetention, zapLogger)
	go func() {
		if err := dlqGC.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
		}
	}()

	msgChan, errChan, err := jobQueue.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("failed_to_start_consuming", zap.Error(err))
	}
	zapLogger.Info("worker_started")

	for {
		select {
		case <-ctx.Done():
			zapLogger.Info("worker_stopped")
			return
		case err, ok := <-errChan:
			if !ok {
				errChan = nil
				continue
			}
			zapLogger.Error("queue_error", zap.Error(err))
		case msg, ok := <-msgChan:
			if !ok {
				zapLogger.Info("message_channel_closed")
				return
			}
			job := msg.GetJob()
			if err := processor.ProcessJob(ctx, msg); err != nil {
				zapLogger.Error("job_processing_failed",
					zap.String("job_id", job.ID.String()),
					zap.String("job_type", string(job.Type)),
					zap.Bool("redelivered", msg.Redelivered()),
					zap.Error(err),
				)
			}
		}
	}
}
