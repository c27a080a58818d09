package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samvad-hq/samvad-publisher/internal/app"
	"github.com/samvad-hq/samvad-publisher/internal/config"
	"github.com/samvad-hq/samvad-publisher/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "publisher start failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	log.InfoObj("publisher starting", "config", map[string]any{
		"app_name":          cfg.AppName,
		"env":               cfg.Env,
		"destinations_file": cfg.DestinationsFile,
		"notifiers_file":    cfg.NotifiersFile,
		"storage_type":      cfg.StorageType,
		"queue_enabled":     cfg.QueueEnabled,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publisher, err := app.NewPublisher(ctx, cfg, log)
	if err != nil {
		log.ErrorObj("failed to initialize publisher", "error", err)
		return err
	}

	if err := publisher.Run(ctx); err != nil {
		return fmt.Errorf("publisher run: %w", err)
	}

	return nil
}
