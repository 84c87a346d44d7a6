// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/brewshed/brewshed/lib/clock"
	"github.com/brewshed/brewshed/lib/config"
	"github.com/brewshed/brewshed/lib/fanout"
	"github.com/brewshed/brewshed/lib/process"
	"github.com/brewshed/brewshed/lib/recipe"
	"github.com/brewshed/brewshed/lib/service"
	"github.com/brewshed/brewshed/lib/session"
	"github.com/brewshed/brewshed/lib/store"
	"github.com/brewshed/brewshed/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	// Handle --version before flag parsing to match other Brewshed
	// binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("brewshed-server")
		return nil
	}

	var configPath string

	flagSet := pflag.NewFlagSet("brewshed-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "",
		"path to brewshed.yaml (overrides $BREWSHED_CONFIG)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %v", args)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	systemClock := clock.Real()

	db, err := store.Open(store.Config{
		Path:     cfg.DatabasePath(),
		PoolSize: cfg.Store.PoolSize,
		Clock:    systemClock,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("store close failed", "error", err)
		}
	}()

	bus := fanout.New(cfg.Stream.SubscriberBuffer)

	manager, err := session.New(session.Config{
		Store:            db,
		Bus:              bus,
		Clock:            systemClock,
		Logger:           logger,
		FlushThreshold:   cfg.Session.FlushThreshold,
		FlushInterval:    cfg.FlushInterval(),
		EstimateInterval: cfg.EstimateInterval(),
		WindowCap:        cfg.Session.WindowCap,
	})
	if err != nil {
		return err
	}
	if err := manager.Rehydrate(ctx); err != nil {
		return fmt.Errorf("rehydrating sessions: %w", err)
	}

	recipes := recipe.NewFileStore(recipe.FileStoreConfig{
		Root:   cfg.Paths.Recipes,
		Logger: logger,
	})

	api := &server{
		store:     db,
		manager:   manager,
		recipes:   recipes,
		bus:       bus,
		clock:     systemClock,
		logger:    logger,
		startedAt: systemClock.Now(),
	}
	httpServer := service.NewHTTPServer(service.HTTPServerConfig{
		Address:         cfg.HTTP.ListenAddress,
		Handler:         api.routes(),
		ShutdownTimeout: cfg.ShutdownTimeout(),
		Logger:          logger,
	})

	streams := &streamHandler{
		manager:           manager,
		bus:               bus,
		clock:             systemClock,
		logger:            logger,
		heartbeatInterval: cfg.HeartbeatInterval(),
	}
	streamServer := service.NewStreamServer(service.StreamServerConfig{
		Address: cfg.Stream.ListenAddress,
		Handler: streams.handle,
		Logger:  logger,
	})

	httpDone := make(chan error, 1)
	go func() { httpDone <- httpServer.Serve(ctx) }()
	streamDone := make(chan error, 1)
	go func() { streamDone <- streamServer.Serve(ctx) }()
	go manager.Run(ctx)

	// Fail fast on bind errors before reporting the server as up.
	select {
	case <-httpServer.Ready():
	case err := <-httpDone:
		cancel()
		<-streamDone
		return fmt.Errorf("http server: %w", err)
	}
	select {
	case <-streamServer.Ready():
	case err := <-streamDone:
		cancel()
		<-httpDone
		return fmt.Errorf("stream server: %w", err)
	}

	logger.Info("brewshed server running",
		"version", version.Short(),
		"http_address", httpServer.Addr().String(),
		"stream_address", streamServer.Addr().String(),
		"database", cfg.DatabasePath(),
		"recipes", cfg.Paths.Recipes)

	// Block until a signal arrives or a server dies underneath us.
	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-httpDone:
		httpDone = nil
	case serveErr = <-streamDone:
		streamDone = nil
	}
	cancel()

	if httpDone != nil {
		if err := <-httpDone; err != nil && serveErr == nil {
			serveErr = err
		}
	}
	if streamDone != nil {
		if err := <-streamDone; err != nil && serveErr == nil {
			serveErr = err
		}
	}

	// Both listeners are down; flush whatever telemetry is still
	// buffered before the store closes.
	flushCtx, flushCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer flushCancel()
	manager.Close(flushCtx)

	return serveErr
}

// loadConfig resolves configuration in precedence order: the --config
// flag, then $BREWSHED_CONFIG, then the built-in defaults (state under
// ~/.local/share/brewshed, HTTP on :8080, stream on :8081).
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("BREWSHED_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	options := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, options))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, options))
}
