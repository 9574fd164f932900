package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/terra-clan/onboard-engine/internal/api"
	"github.com/terra-clan/onboard-engine/internal/catalog"
	"github.com/terra-clan/onboard-engine/internal/cleanup"
	"github.com/terra-clan/onboard-engine/internal/config"
	"github.com/terra-clan/onboard-engine/internal/engine"
	"github.com/terra-clan/onboard-engine/internal/genai"
	"github.com/terra-clan/onboard-engine/internal/storage"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting onboard-engine",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// Initialize database repository
	repo, err := storage.NewPostgresRepository(initCtx, storage.PostgresConfig{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: int32(cfg.Database.MaxOpenConns),
		MaxIdleConns: int32(cfg.Database.MaxIdleConns),
	})
	if err != nil {
		slog.Error("failed to create database repository", "error", err)
		os.Exit(1)
	}
	slog.Info("database connected successfully")

	// Run database migrations
	if err := storage.RunMigrations(initCtx, repo.Pool()); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize session cache
	cache, err := storage.NewSessionCache(initCtx, storage.RedisConfig{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      cfg.Redis.TTL,
	})
	if err != nil {
		slog.Warn("redis unavailable, session caching disabled", "error", err)
		cache = nil
	}

	store := storage.NewStore(repo, cache)

	// Load task tracks
	tracks := catalog.NewTrackSet()
	if cfg.Tracks.Dir != "" {
		if err := catalog.LoadTrackOverrides(tracks, cfg.Tracks.Dir); err != nil {
			slog.Warn("failed to load track overrides", "dir", cfg.Tracks.Dir, "error", err)
		}
	}

	// Initialize the generative text client
	limiter := genai.NewRateLimiter(cfg.GenAI.RateMax, cfg.GenAI.RateWindow)
	client := genai.NewClient(genai.Config{
		BaseURL:     cfg.GenAI.BaseURL,
		APIKey:      cfg.GenAI.APIKey,
		Model:       cfg.GenAI.Model,
		MaxTokens:   cfg.GenAI.MaxTokens,
		Temperature: cfg.GenAI.Temperature,
	}, limiter)

	// Initialize the session engine
	builder := catalog.NewBuilder(client, tracks)
	eng := engine.New(engine.Config{
		RevealPolicy:    engine.RevealPolicy(cfg.Engine.RevealPolicy),
		RevealThreshold: cfg.Engine.RevealThreshold,
	}, builder, client, store)
	evaluator := engine.NewEvaluator(client)

	// Initialize cleanup worker
	cleaner := cleanup.NewCleaner(repo, cache, cfg.Cleanup.Interval, cfg.Cleanup.IdleAfter)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start cleanup worker
	cleaner.Start(ctx)

	// Setup HTTP server
	server := api.NewServer(cfg.Server, eng, evaluator, tracks, repo, store)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if cache != nil {
		if err := cache.Close(); err != nil {
			slog.Error("redis close error", "error", err)
		}
	}
	if err := repo.Close(); err != nil {
		slog.Error("database close error", "error", err)
	}

	slog.Info("onboard-engine stopped")
}
