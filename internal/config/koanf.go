// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"pulse.yaml",
	"pulse.yml",
	"/etc/pulse/pulse.yaml",
	"/etc/pulse/pulse.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "PULSE_CONFIG"

// envPrefix is stripped from environment variables before mapping.
const envPrefix = "PULSE_"

// Load builds configuration from layered sources with precedence
// ENV > file > defaults, then validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	// Layer 2: optional YAML config file
	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Layer 3: PULSE_* environment variables (highest priority)
	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps flattened environment variable names (after stripping
// the PULSE_ prefix and lowercasing) to nested koanf paths. Field names
// containing underscores can't be derived mechanically, so the table is
// explicit.
var envMappings = map[string]string{
	"server_base_url":            "server.base_url",
	"server_api_token":           "server.api_token",
	"server_timeout":             "server.timeout",
	"server_requests_per_second": "server.requests_per_second",
	"server_circuit_breaker":     "server.circuit_breaker",

	"channel_url":               "channel.url",
	"channel_handshake_timeout": "channel.handshake_timeout",
	"channel_ping_interval":     "channel.ping_interval",
	"channel_reconnect_min":     "channel.reconnect_min",
	"channel_reconnect_max":     "channel.reconnect_max",

	"reminders_initial_delay":  "reminders.initial_delay",
	"reminders_poll_interval":  "reminders.poll_interval",
	"reminders_debounce_delay": "reminders.debounce_delay",

	"toasts_visible_for": "toasts.visible_for",
	"toasts_exit_for":    "toasts.exit_for",

	"telemetry_batch_size":     "telemetry.batch_size",
	"telemetry_flush_interval": "telemetry.flush_interval",

	"store_path": "store.path",

	"diag_enabled": "diag.enabled",
	"diag_host":    "diag.host",
	"diag_port":    "diag.port",

	"logging_level":  "logging.level",
	"logging_format": "logging.format",
	"logging_caller": "logging.caller",
}

// envTransformFunc converts PULSE_SECTION_FIELD_NAME into section.field_name.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	// Unknown variables are dropped rather than guessed at.
	return ""
}
