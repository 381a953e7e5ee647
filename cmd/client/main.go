package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/Znerken/Omerta-RPG-sub001/internal/client"
	"github.com/Znerken/Omerta-RPG-sub001/internal/config"
	"github.com/Znerken/Omerta-RPG-sub001/internal/logging"
	"github.com/Znerken/Omerta-RPG-sub001/internal/notify"
	"github.com/Znerken/Omerta-RPG-sub001/internal/storage"
	"github.com/Znerken/Omerta-RPG-sub001/internal/version"
)

func setupConfig() *config.Client {
	cfg, err := config.LoadClient()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Realtime client starting", "env", cfg.AppEnv, "endpoint", cfg.Endpoint, "version", version.Get().Short())

	store, err := storage.NewFileStore(cfg.StateDir)
	if err != nil {
		slog.Error("Failed to open state directory", "dir", cfg.StateDir, "error", err)
		os.Exit(1)
	}

	c, err := client.New(client.Options{
		Endpoint:  cfg.Endpoint,
		SubjectID: cfg.SubjectID,
		Token:     cfg.Token,
		Store:     store,
		OnPopup: func(rec notify.Record) {
			slog.Info("Notification", "title", rec.Title, "message", rec.DisplayMessage())
		},
	}, clock)
	if err != nil {
		slog.Error("Failed to build client", "error", err)
		os.Exit(1)
	}

	if err := c.Start(context.Background()); err != nil {
		// Reconnection is already scheduled; the failure is informational.
		slog.Warn("Initial connection failed, retrying in background", "error", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutdown signal received, cleaning up...")
	c.Stop("shutdown")
	slog.Info("Goodbye")
}
