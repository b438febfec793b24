package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jwebster45206/chronicle-engine/internal/app"
	"github.com/jwebster45206/chronicle-engine/internal/config"
	"github.com/jwebster45206/chronicle-engine/internal/handlers"
	"github.com/jwebster45206/chronicle-engine/internal/logger"
	"github.com/jwebster45206/chronicle-engine/internal/middleware"
	"github.com/jwebster45206/chronicle-engine/internal/services/events"
	"github.com/jwebster45206/chronicle-engine/internal/services/queue"
	"github.com/jwebster45206/chronicle-engine/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Chronicle Engine API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"storage_backend", cfg.StorageBackend)

	shutdownTracing, err := telemetry.Setup(context.Background(), "chronicle-api", cfg)
	if err != nil {
		log.Error("Failed to set up tracing", "error", err)
		os.Exit(1)
	}

	storage, err := app.OpenStorage(cfg, log)
	if err != nil {
		log.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()
	if err := storage.Ping(storageCtx); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}
	log.Info("Storage connection established successfully")

	queueClient, err := queue.NewClient(cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to create queue client", "error", err)
		os.Exit(1)
	}
	requestQueue := queue.NewRequestQueue(queueClient)

	// Subscriptions hold a connection each; keep them off the queue client.
	redisClient, err := app.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Error("Failed to create Redis client", "error", err)
		os.Exit(1)
	}
	broadcaster := events.NewBroadcaster(redisClient, log)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"storage": storage,
		"queue":   redisPinger{queueClient},
	}, log)
	mux.Handle("/health", healthHandler)

	gameStateHandler := handlers.NewGameStateHandler(log, storage, requestQueue, cfg.Core()).
		WithPublisher(broadcaster)
	mux.Handle("/v1/gamestate", gameStateHandler)
	mux.Handle("/v1/gamestate/", gameStateHandler)

	mux.Handle("/v1/events/gamestate/", handlers.NewEventsHandler(redisClient, log))
	mux.Handle("/v1/ws/gamestate/", handlers.NewWebSocketHandler(redisClient, log))

	handler := middleware.LoggerWith(log, otelhttp.NewHandler(mux, "chronicle-api"))
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: event streams stay open
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := storage.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}
	if err := queueClient.Close(); err != nil {
		log.Error("Error closing queue client", "error", err)
	}
	if err := redisClient.Close(); err != nil {
		log.Error("Error closing Redis client", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("Error shutting down tracing", "error", err)
	}

	log.Info("Server exited")
}

type redisPinger struct {
	client *queue.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.GetRedisClient().Ping(ctx).Err()
}
