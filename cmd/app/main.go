package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"faff-crm/internal/cache"
	"faff-crm/internal/config"
	"faff-crm/internal/httpserver"
	"faff-crm/internal/logging"
	"faff-crm/internal/metrics"
	"faff-crm/internal/pipeline"
	"faff-crm/internal/realtime"
	"faff-crm/internal/repo"
	"faff-crm/internal/webhook"
	"faff-crm/internal/whatsapp"
	"faff-crm/migrations"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting faff-crm", "env", cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	var store repo.Store
	if cfg.DatabaseURL != "" {
		pg, err := repo.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("init postgres store: %w", err)
		}
		store = pg
	} else {
		lite, err := repo.NewSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return fmt.Errorf("init sqlite store: %w", err)
		}
		store = lite
	}
	defer store.Close()

	if err := store.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated")

	var dedup pipeline.DedupCache
	if cfg.RedisAddr != "" {
		redisClient := cache.New(cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			UseTLS:   cfg.RedisTLS,
		}, logger)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("failed closing redis", "error", err)
			}
		}()
		if err := redisClient.Ping(ctx); err != nil {
			logger.Warn("redis ping failed", "error", err)
		}
		dedup = redisClient
	}

	waClient := whatsapp.NewClient(whatsapp.Config{
		BaseURL: cfg.WhatsAppBaseURL,
		Token:   cfg.WhatsAppToken,
		PhoneID: cfg.WhatsAppPhoneID,
		Timeout: cfg.WhatsAppTimeout,
	}, logger, metricRegistry)

	hub := realtime.NewHub(logger, metricRegistry)
	defer hub.Shutdown()

	ingestor := pipeline.NewIngestor(store, waClient, hub, dedup, cfg.DedupTTL, metricRegistry, logger)
	reconciler := pipeline.NewReconciler(store, hub, metricRegistry, logger)

	webhookHandler := webhook.NewHandler(logger, metricRegistry, cfg.VerifyToken, ingestor, reconciler)

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, webhookHandler, httpserver.Dependencies{
		Store:   store,
		Channel: waClient,
		Hub:     hub,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}
