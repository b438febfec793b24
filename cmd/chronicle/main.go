package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jwebster45206/chronicle-engine/internal/cli"
	"github.com/jwebster45206/chronicle-engine/internal/config"
	"github.com/jwebster45206/chronicle-engine/internal/logger"
	"github.com/jwebster45206/chronicle-engine/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	log := logger.SetupWriter(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "chronicle-cli", cfg)
	if err != nil {
		log.Warn("Tracing disabled", "error", err)
	}

	root := cli.NewRootCmd(cli.Options{Config: cfg, Logger: log})
	err = root.ExecuteContext(ctx)
	_ = shutdownTracing(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
