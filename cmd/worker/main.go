package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/chronicle-engine/internal/app"
	"github.com/jwebster45206/chronicle-engine/internal/config"
	"github.com/jwebster45206/chronicle-engine/internal/logger"
	"github.com/jwebster45206/chronicle-engine/internal/services"
	"github.com/jwebster45206/chronicle-engine/internal/services/queue"
	"github.com/jwebster45206/chronicle-engine/internal/telemetry"
	"github.com/jwebster45206/chronicle-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Chronicle Engine Worker",
		"environment", cfg.Environment,
		"redis_url", cfg.RedisURL,
		"storage_backend", cfg.StorageBackend,
		"llm_provider", cfg.LLMProvider,
		"model_name", cfg.ModelName)

	shutdownTracing, err := telemetry.Setup(context.Background(), "chronicle-worker", cfg)
	if err != nil {
		log.Error("Failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Error("Error shutting down tracing", "error", err)
		}
	}()

	// Initialize queue service
	queueClient, err := queue.NewClient(cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to create queue client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			log.Error("Error closing queue client", "error", err)
		}
	}()
	requestQueue := queue.NewRequestQueue(queueClient)
	log.Info("Queue service initialized successfully")

	// Initialize storage service
	storageService, err := app.OpenStorage(cfg, log)
	if err != nil {
		log.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := storageService.Close(); err != nil {
			log.Error("Error closing storage", "error", err)
		}
	}()
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()
	if err := storageService.Ping(storageCtx); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}
	log.Info("Storage service initialized successfully")

	// Separate Redis client for locking and events, so a blocking dequeue
	// never holds up a lock release.
	redisClient, err := app.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Error("Failed to create Redis client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("Failed to close Redis client", "error", err)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("Redis connection established successfully")

	// Initialize generation provider. The credential index is shared by all
	// workers through Redis.
	gen, err := app.NewGenerator(ctx, cfg, services.NewRedisServiceFromClient(redisClient, log), log)
	if err != nil {
		log.Error("Failed to initialize generation provider", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := gen.Close(); err != nil {
			log.Error("Error closing generation provider", "error", err)
		}
	}()

	processor := worker.NewProcessor(storageService, gen.Generator, app.EngineConfig(cfg), log)
	if gen.Credentials != nil {
		processor.WithCredentials(gen.Credentials)
	}
	if gen.Images != nil {
		processor.WithImages(gen.Images)
	}
	log.Info("Request processor initialized successfully")

	w := worker.New(requestQueue, processor, redisClient, log, cfg.WorkerID)

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := w.Start(); err != nil {
			log.Error("Worker error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("Worker started, waiting for requests...", "worker_id", w.ID())

	<-quit
	log.Info("Worker shutdown signal received")

	w.Stop()

	// Give worker time to finish current request
	time.Sleep(2 * time.Second)

	log.Info("Worker exited")
}
