// Package config loads daemon settings from a YAML file and EVENTLINK_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EVENTLINK_"

// Config is the daemon configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level" env:"LOG_LEVEL"`
	Features  FeaturesConfig  `yaml:"features" envPrefix:"FEATURES_"`
	Mongo     MongoConfig     `yaml:"mongo" envPrefix:"MONGO_"`
	WebSocket WebSocketConfig `yaml:"websocket" envPrefix:"WEBSOCKET_"`
	Session   SessionConfig   `yaml:"session" envPrefix:"SESSION_"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`
}

// FeaturesConfig toggles optional subsystems.
type FeaturesConfig struct {
	// ManageServerEvents turns the whole subscription registry on or off.
	ManageServerEvents bool `yaml:"manage_server_events" env:"MANAGE_SERVER_EVENTS"`
}

type MongoConfig struct {
	URI            string        `yaml:"uri" env:"URI"`
	Database       string        `yaml:"database" env:"DATABASE"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	PingTimeout    time.Duration `yaml:"ping_timeout" env:"PING_TIMEOUT"`
}

type WebSocketConfig struct {
	URL              string        `yaml:"url" env:"URL"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" env:"HANDSHAKE_TIMEOUT"`
	WriteTimeout     time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

// SessionConfig holds the timings of a streaming session.
type SessionConfig struct {
	KeepAliveInterval time.Duration `yaml:"keep_alive_interval" env:"KEEP_ALIVE_INTERVAL"`
	ReopenAfter       time.Duration `yaml:"reopen_after" env:"REOPEN_AFTER"`
	PruneInterval     time.Duration `yaml:"prune_interval" env:"PRUNE_INTERVAL"`
	HistoryWindow     time.Duration `yaml:"history_window" env:"HISTORY_WINDOW"`
	CloseTimeout      time.Duration `yaml:"close_timeout" env:"CLOSE_TIMEOUT"`
	StopGrace         time.Duration `yaml:"stop_grace" env:"STOP_GRACE"`
}

type MetricsConfig struct {
	// Addr is the listen address of the /metrics endpoint. Empty disables it.
	Addr string `yaml:"addr" env:"ADDR"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Features: FeaturesConfig{ManageServerEvents: true},
		Mongo: MongoConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "eventlink",
			ConnectTimeout: 10 * time.Second,
			PingTimeout:    5 * time.Second,
		},
		WebSocket: WebSocketConfig{
			URL:              "wss://events-api.sonarcloud.io/",
			HandshakeTimeout: 30 * time.Second,
			WriteTimeout:     10 * time.Second,
		},
		Session: SessionConfig{
			KeepAliveInterval: 9 * time.Minute,
			ReopenAfter:       119 * time.Minute,
			PruneInterval:     5 * time.Minute,
			HistoryWindow:     time.Minute,
			CloseTimeout:      10 * time.Second,
			StopGrace:         time.Second,
		},
		Metrics: MetricsConfig{Addr: ":9464"},
	}
}

// Load reads path over the defaults and then applies environment overrides.
// A missing file is not an error when path is empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the timings are usable.
func (c *Config) Validate() error {
	var errs []error
	check := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, d))
		}
	}
	check("session.keep_alive_interval", c.Session.KeepAliveInterval)
	check("session.reopen_after", c.Session.ReopenAfter)
	check("session.prune_interval", c.Session.PruneInterval)
	check("session.history_window", c.Session.HistoryWindow)
	check("session.close_timeout", c.Session.CloseTimeout)
	check("session.stop_grace", c.Session.StopGrace)

	if c.Features.ManageServerEvents && c.WebSocket.URL == "" {
		errs = append(errs, errors.New("websocket.url is required when server events are managed"))
	}
	return errors.Join(errs...)
}
