// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

// Package config loads agent configuration from layered sources:
// built-in defaults, an optional YAML file, and PULSE_* environment
// variables (highest priority).
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the full agent configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Channel   ChannelConfig   `koanf:"channel"`
	Reminders RemindersConfig `koanf:"reminders"`
	Toasts    ToastsConfig    `koanf:"toasts"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Store     StoreConfig     `koanf:"store"`
	Diag      DiagConfig      `koanf:"diag"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig describes the ops console REST collaborator.
type ServerConfig struct {
	// BaseURL is the console API root, e.g. "https://ops.propdesk.example/api".
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// APIToken authenticates REST calls. The session identity used for the
	// channel identify handshake is separate and supplied at runtime.
	APIToken string `koanf:"api_token"`

	// Timeout bounds each REST request.
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// RequestsPerSecond rate-limits REST calls to the console. 0 disables.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gte=0"`

	// CircuitBreaker enables the circuit-breaker wrapper around the client.
	CircuitBreaker bool `koanf:"circuit_breaker"`
}

// ChannelConfig describes the persistent bidirectional channel.
type ChannelConfig struct {
	// URL is the websocket endpoint, e.g. "wss://ops.propdesk.example/rt".
	URL string `koanf:"url" validate:"required"`

	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration `koanf:"handshake_timeout" validate:"gt=0"`

	// PingInterval is the keepalive ping period.
	PingInterval time.Duration `koanf:"ping_interval" validate:"gt=0"`

	// ReconnectMin and ReconnectMax bound the exponential reconnect backoff.
	ReconnectMin time.Duration `koanf:"reconnect_min" validate:"gt=0"`
	ReconnectMax time.Duration `koanf:"reconnect_max" validate:"gtefield=ReconnectMin"`
}

// RemindersConfig tunes the reminder poll and dedup engine.
type RemindersConfig struct {
	// InitialDelay postpones the first fetch after session start so it does
	// not contend with initial page load.
	InitialDelay time.Duration `koanf:"initial_delay" validate:"gte=0"`

	// PollInterval is the fixed reminder poll period.
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`

	// DebounceDelay is the settle delay for event-triggered refreshes.
	DebounceDelay time.Duration `koanf:"debounce_delay" validate:"gt=0"`
}

// ToastsConfig tunes the toast display queue lifecycle.
type ToastsConfig struct {
	// VisibleFor is the duration a toast stays fully visible.
	VisibleFor time.Duration `koanf:"visible_for" validate:"gt=0"`

	// ExitFor is the duration of the exit transition before removal.
	ExitFor time.Duration `koanf:"exit_for" validate:"gt=0"`
}

// TelemetryConfig tunes the activity telemetry batcher.
type TelemetryConfig struct {
	// BatchSize is the soft queue cap that triggers an immediate flush.
	BatchSize int `koanf:"batch_size" validate:"gt=0"`

	// FlushInterval is the fixed interval flush period.
	FlushInterval time.Duration `koanf:"flush_interval" validate:"gt=0"`
}

// StoreConfig locates the local key-value store.
type StoreConfig struct {
	// Path is the badger directory. Empty selects an in-memory store.
	Path string `koanf:"path"`
}

// DiagConfig describes the local diagnostics HTTP server.
type DiagConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port" validate:"gte=0,lte=65535"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values applied.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:           "http://127.0.0.1:4000/api",
			APIToken:          "",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 10,
			CircuitBreaker:    true,
		},
		Channel: ChannelConfig{
			URL:              "ws://127.0.0.1:4000/rt",
			HandshakeTimeout: 10 * time.Second,
			PingInterval:     30 * time.Second,
			ReconnectMin:     1 * time.Second,
			ReconnectMax:     32 * time.Second,
		},
		Reminders: RemindersConfig{
			InitialDelay:  3 * time.Second,
			PollInterval:  2 * time.Minute,
			DebounceDelay: 1 * time.Second,
		},
		Toasts: ToastsConfig{
			VisibleFor: 3 * time.Second,
			ExitFor:    1 * time.Second,
		},
		Telemetry: TelemetryConfig{
			BatchSize:     50,
			FlushInterval: 5 * time.Second,
		},
		Store: StoreConfig{
			Path: "/data/pulse",
		},
		Diag: DiagConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    9137,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

var validate = validator.New()

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("invalid config field %s: failed %q constraint", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("config validation: %w", err)
	}
	return nil
}
