// Package config loads environment-based configuration for the client and
// the event simulator.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Client holds everything the realtime client binary needs.
type Client struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// Endpoint is the websocket URL of the realtime gateway.
	Endpoint string `env:"REALTIME_ENDPOINT"`
	// SubjectID is the opaque identity for this connection.
	SubjectID string `env:"REALTIME_SUBJECT_ID"`
	// Token optionally authenticates the identify envelope.
	Token string `env:"REALTIME_TOKEN"`
	// StateDir holds the durable local notification state.
	StateDir string `env:"REALTIME_STATE_DIR"`
}

// LoadClient reads and validates the client configuration. A .env file is
// loaded when present; real environment variables win.
func LoadClient() (*Client, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Client
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validateClient(&cfg); err != nil {
		return nil, err
	}

	if cfg.StateDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("REALTIME_STATE_DIR is required when no user config dir exists: %w", err)
		}
		cfg.StateDir = filepath.Join(base, "omerta-realtime")
	}

	return &cfg, nil
}

func validateClient(cfg *Client) error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("REALTIME_ENDPOINT is required")
	}
	if cfg.SubjectID == "" {
		return fmt.Errorf("REALTIME_SUBJECT_ID is required")
	}
	return nil
}

// SimServer holds the event simulator configuration.
type SimServer struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
	Port      string `env:"PORT" default:"8080"`

	// EventsPerSecond paces the synthetic event generator per client.
	EventsPerSecond float64 `env:"SIM_EVENTS_PER_SECOND" default:"2"`
}

// LoadSimServer reads the simulator configuration; everything has a default.
func LoadSimServer() (*SimServer, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg SimServer
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if cfg.EventsPerSecond <= 0 {
		return nil, fmt.Errorf("SIM_EVENTS_PER_SECOND must be a positive number, got %g", cfg.EventsPerSecond)
	}

	return &cfg, nil
}
