// Package main runs the local source-API emulator.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pigeonworks-llc/ledgersync/emulator"
)

const (
	defaultPort   = "8081"
	defaultDBPath = "./data/source-emulator.db"
	defaultAPIKey = "local-dev-key"
)

func main() {
	// Setup structured JSON logging.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Get configuration from environment variables.
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	apiKey := os.Getenv("EMULATOR_API_KEY")
	if apiKey == "" {
		apiKey = defaultAPIKey
	}

	store, err := emulator.NewStore(dbPath)
	if err != nil {
		slog.Error("failed to initialize store", "error", err, "db_path", dbPath)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("failed to close store", "error", err)
		}
	}()

	slog.Info("database initialized", "db_path", dbPath)

	if os.Getenv("SEED") == "true" {
		if err := emulator.Seed(store); err != nil {
			slog.Error("failed to seed data", "error", err)
			os.Exit(1)
		}
		slog.Info("seed data loaded")
	}

	srv := emulator.NewServer(store, apiKey)

	addr := fmt.Sprintf(":%s", port)
	slog.Info("starting source API emulator", "addr", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		slog.Info("shutting down server")
		if err := server.Close(); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
