package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Znerken/Omerta-RPG-sub001/internal/config"
	"github.com/Znerken/Omerta-RPG-sub001/internal/logging"
	"github.com/Znerken/Omerta-RPG-sub001/internal/simulator"
	"github.com/Znerken/Omerta-RPG-sub001/internal/version"
)

func setupConfig() *config.SimServer {
	cfg, err := config.LoadSimServer()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func runGracefulShutdown(srv *simulator.Server) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Event simulator starting", "env", cfg.AppEnv, "port", cfg.Port, "events_per_second", cfg.EventsPerSecond, "version", version.Get().Short())

	srv := simulator.NewServer(cfg.EventsPerSecond, clock)
	done := runGracefulShutdown(srv)

	if err := srv.Start(cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Goodbye")
}
