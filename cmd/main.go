/*
Package main is the entry point for the duochat server.

It loads configuration, initialises logging, opens the persistent store, wires the
account, room, presence and realtime services, serves HTTP and websocket traffic,
and shuts everything down gracefully on SIGINT or SIGTERM.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"duochat/internal/app/account"
	"duochat/internal/app/chat"
	"duochat/internal/app/db"
	"duochat/internal/app/events"
	"duochat/internal/app/identity"
	"duochat/internal/app/presence"
	"duochat/internal/app/room"
	"duochat/internal/app/storage"
	"duochat/internal/app/store"
	"duochat/internal/app/store/memory"
	"duochat/internal/app/token"
	"duochat/internal/app/user"
	"duochat/internal/configs"
	"duochat/internal/handler"
	"duochat/internal/pkg/hash"
	"duochat/internal/pkg/logx"
	"duochat/internal/pkg/pow"
)

const (
	sessionPruneInterval = time.Hour
	shutdownTimeout      = 10 * time.Second
)

func main() {
	// Load configuration from .env and environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Str("store_driver", cfg.StoreDriver).
		Strs("frontend_urls", cfg.FrontendURLs).
		Int("pow_difficulty", cfg.PowDifficulty).
		Bool("external_login", cfg.GoogleClientID != "").
		Bool("kafka", len(cfg.KafkaBrokers) > 0).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to open store")
	}

	// Presence is process-local; flags left over from a previous run are stale.
	if err := st.ResetPresence(ctx); err != nil {
		logx.Fatal(err, "Failed to reset presence flags")
	}

	publisher := newPublisher(cfg)
	presenter := user.NewPresenter(cfg.AssetBaseURL)

	tokens := token.NewService(st, st, token.Config{
		AccessSecret:  cfg.AccessTokenSecret,
		RefreshSecret: cfg.RefreshTokenSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})
	go tokens.PruneExpired(ctx, sessionPruneInterval)

	accounts := account.NewService(st, tokens, hash.NewBcrypt(0), identity.NewGoogle(cfg.GoogleClientID), publisher)

	hub := chat.NewHub()
	registry := room.NewRegistry(st, st, presenter)
	tracker := presence.NewTracker(st, hub)
	engine := chat.NewEngine(hub, registry, tracker, publisher)

	users, err := newUserService(ctx, cfg, st, presenter)
	if err != nil {
		logx.Fatal(err, "Failed to initialise avatar storage")
	}

	deps := &handler.AppDeps{
		Config:   cfg,
		Tokens:   tokens,
		Accounts: accounts,
		Users:    users,
		Finder:   st,
		Rooms:    registry,
		Engine:   engine,
		Pow:      pow.NewManager(ctx, cfg.PowDifficulty),
		Store:    st,
	}

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           handler.Router(ctx, deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("duochat server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "HTTP server forced to shutdown")
	}

	// Hijacked websocket connections are not tracked by the HTTP server.
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Realtime connections did not drain in time")
	}

	if err := publisher.Close(); err != nil {
		logx.Error(err, "Failed to flush event publisher")
	}

	st.Close()

	logx.Info("Server gracefully stopped.")
}

func openStore(ctx context.Context, cfg *configs.AppConfig) (store.Store, error) {
	if cfg.StoreDriver == configs.StoreDriverMemory {
		logx.Warn("Using in-memory store; data will not survive a restart")
		return memory.New(), nil
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	return db.NewStore(pool), nil
}

func newPublisher(cfg *configs.AppConfig) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return events.Nop{}
	}
	return events.NewKafka(events.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
}

func newUserService(ctx context.Context, cfg *configs.AppConfig, st store.Store, presenter user.Presenter) (*user.Service, error) {
	storageCfg := storage.Config{
		BucketName:      cfg.S3BucketName,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		Region:          cfg.S3Region,
	}
	if !storageCfg.Enabled() {
		logx.Warn("Avatar storage not configured; avatar upload disabled")
		return user.NewService(st, nil, presenter), nil
	}

	objects, err := storage.NewClient(ctx, storageCfg)
	if err != nil {
		return nil, err
	}
	return user.NewService(st, objects, presenter), nil
}
