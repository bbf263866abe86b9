// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

// Package config loads and validates Mediacache configuration.
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//  1. Built-in defaults
//  2. Optional YAML config file (config.yaml, or CONFIG_PATH)
//  3. Environment variables
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import (
	"time"
)

// Config holds all application configuration.
type Config struct {
	Cache    CacheConfig    `koanf:"cache"`
	Database DatabaseConfig `koanf:"database"`
	Transfer TransferConfig `koanf:"transfer"`
	Engine   EngineConfig   `koanf:"engine"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// CacheConfig holds cache storage budgeting and protection settings.
//
// MaxSize and Buffer accept human-readable sizes ("100GB", "512MiB") or raw
// byte counts; they are resolved to MaxSizeBytes/BufferBytes during Load.
// The usable budget for cached content is MaxSizeBytes - BufferBytes.
type CacheConfig struct {
	// Root is the fast-storage directory cached content is staged into.
	Root string `koanf:"root" validate:"required"`

	// OriginRoot is the bulk-storage directory content originates from.
	OriginRoot string `koanf:"origin_root" validate:"required"`

	// MaxSize is the total cache budget.
	MaxSize string `koanf:"max_size"`

	// Buffer is the safety margin kept free below MaxSize.
	Buffer string `koanf:"buffer"`

	// ProtectWindowMinutes is how long after the last playback update a
	// content key stays exempt from eviction.
	ProtectWindowMinutes int `koanf:"protect_window_minutes" validate:"min=1"`

	// Resolved byte values, populated by Load from MaxSize/Buffer.
	MaxSizeBytes int64 `koanf:"-"`
	BufferBytes  int64 `koanf:"-"`
}

// ProtectWindow returns the session-protect window as a duration.
func (c CacheConfig) ProtectWindow() time.Duration {
	return time.Duration(c.ProtectWindowMinutes) * time.Minute
}

// DatabaseConfig holds persistent-store settings.
type DatabaseConfig struct {
	// Path is the SQLite database file location.
	Path string `koanf:"path" validate:"required"`
}

// TransferConfig holds external copy-tool settings.
type TransferConfig struct {
	// Tool is the bulk-copy program invocation path (rsync or compatible:
	// must accept -a <src>/ <dst>/).
	Tool string `koanf:"tool" validate:"required"`

	// Timeout bounds a single copy invocation.
	Timeout time.Duration `koanf:"timeout" validate:"min=1s"`

	// OwnerUID/OwnerGID are applied to the copied tree after a successful
	// stage. -1 disables ownership normalization.
	OwnerUID int `koanf:"owner_uid"`
	OwnerGID int `koanf:"owner_gid"`
}

// EngineConfig holds queue worker settings.
type EngineConfig struct {
	// PollInterval is how long the worker blocks waiting for a job before
	// re-checking for shutdown.
	PollInterval time.Duration `koanf:"poll_interval" validate:"min=10ms"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`

	// WebhookRateLimit is the per-minute request cap on POST /webhook.
	WebhookRateLimit int `koanf:"webhook_rate_limit" validate:"min=1"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}
