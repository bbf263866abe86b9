// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/cache", cfg.Cache.Root)
	assert.Equal(t, "/media", cfg.Cache.OriginRoot)
	assert.Equal(t, int64(100_000_000_000), cfg.Cache.MaxSizeBytes)
	assert.Equal(t, int64(10_000_000_000), cfg.Cache.BufferBytes)
	assert.Equal(t, 60*time.Minute, cfg.Cache.ProtectWindow())
	assert.Equal(t, "rsync", cfg.Transfer.Tool)
	assert.Equal(t, time.Hour, cfg.Transfer.Timeout)
	assert.Equal(t, -1, cfg.Transfer.OwnerUID)
	assert.Equal(t, 3858, cfg.Server.Port)
	assert.Equal(t, 300, cfg.Server.WebhookRateLimit)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CACHE_ROOT", "/mnt/nvme/cache")
	t.Setenv("ORIGIN_ROOT", "/mnt/tank/media")
	t.Setenv("MAX_CACHE_SIZE", "1TiB")
	t.Setenv("CACHE_BUFFER", "32GiB")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/mnt/nvme/cache", cfg.Cache.Root)
	assert.Equal(t, "/mnt/tank/media", cfg.Cache.OriginRoot)
	assert.Equal(t, int64(1)<<40, cfg.Cache.MaxSizeBytes)
	assert.Equal(t, int64(32)<<30, cfg.Cache.BufferBytes)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadIgnoresUnmappedEnv(t *testing.T) {
	t.Setenv("PATH_MAX", "nonsense")
	t.Setenv("CACHE", "also nonsense")

	_, err := Load()
	assert.NoError(t, err)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	t.Run("buffer at least max size", func(t *testing.T) {
		t.Setenv("MAX_CACHE_SIZE", "10GB")
		t.Setenv("CACHE_BUFFER", "10GB")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cache.buffer")
	})

	t.Run("cache root equals origin root", func(t *testing.T) {
		t.Setenv("CACHE_ROOT", "/srv/media")
		t.Setenv("ORIGIN_ROOT", "/srv/media")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must differ")
	})

	t.Run("unparseable size", func(t *testing.T) {
		t.Setenv("MAX_CACHE_SIZE", "lots")

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("invalid log level", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "loud")

		_, err := Load()
		require.Error(t, err)
	})
}
