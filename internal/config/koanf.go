// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/mediacache/config.yaml",
	"/etc/mediacache/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			Root:                 "/cache",
			OriginRoot:           "/media",
			MaxSize:              "100GB",
			Buffer:               "10GB",
			ProtectWindowMinutes: 60,
		},
		Database: DatabaseConfig{
			Path: "/data/mediacache.db",
		},
		Transfer: TransferConfig{
			Tool:     "rsync",
			Timeout:  time.Hour,
			OwnerUID: -1,
			OwnerGID: -1,
		},
		Engine: EngineConfig{
			PollInterval: time.Second,
		},
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             3858,
			Timeout:          30 * time.Second,
			WebhookRateLimit: 300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources
// (ENV > file > defaults), resolves human-readable byte sizes, and
// validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: optional config file
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.resolveSizes(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
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

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are skipped so random environment noise cannot pollute
// the configuration.
func envTransformFunc(key string) string {
	envMappings := map[string]string{
		// Cache storage mappings
		"cache_root":             "cache.root",
		"origin_root":            "cache.origin_root",
		"max_cache_size":         "cache.max_size",
		"cache_buffer":           "cache.buffer",
		"protect_window_minutes": "cache.protect_window_minutes",

		// Database mappings
		"db_path": "database.path",

		// Transfer tool mappings
		"transfer_tool":      "transfer.tool",
		"transfer_timeout":   "transfer.timeout",
		"transfer_owner_uid": "transfer.owner_uid",
		"transfer_owner_gid": "transfer.owner_gid",

		// Engine mappings
		"queue_poll_interval": "engine.poll_interval",

		// Server mappings
		"http_host":          "server.host",
		"http_port":          "server.port",
		"http_timeout":       "server.timeout",
		"webhook_rate_limit": "server.webhook_rate_limit",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
