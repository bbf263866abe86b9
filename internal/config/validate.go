// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

package config

import (
	"errors"
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
)

// resolveSizes parses the human-readable MaxSize/Buffer strings into byte
// counts. Accepts humanize forms ("100GB", "512MiB") and plain integers.
func (c *Config) resolveSizes() error {
	maxBytes, err := humanize.ParseBytes(c.Cache.MaxSize)
	if err != nil {
		return fmt.Errorf("invalid cache.max_size %q: %w", c.Cache.MaxSize, err)
	}
	bufBytes, err := humanize.ParseBytes(c.Cache.Buffer)
	if err != nil {
		return fmt.Errorf("invalid cache.buffer %q: %w", c.Cache.Buffer, err)
	}
	if maxBytes > math.MaxInt64 || bufBytes > math.MaxInt64 {
		return fmt.Errorf("cache size out of range")
	}
	c.Cache.MaxSizeBytes = int64(maxBytes)
	c.Cache.BufferBytes = int64(bufBytes)
	return nil
}

// Validate checks struct tags plus cross-field constraints that tags cannot
// express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			ve := verrs[0]
			return fmt.Errorf("invalid value for %s (constraint %s)", ve.Namespace(), ve.Tag())
		}
		return err
	}

	if c.Cache.MaxSizeBytes <= 0 {
		return fmt.Errorf("cache.max_size must be positive")
	}
	if c.Cache.BufferBytes < 0 {
		return fmt.Errorf("cache.buffer must not be negative")
	}
	if c.Cache.BufferBytes >= c.Cache.MaxSizeBytes {
		return fmt.Errorf("cache.buffer (%s) must be smaller than cache.max_size (%s)",
			humanize.IBytes(uint64(c.Cache.BufferBytes)), humanize.IBytes(uint64(c.Cache.MaxSizeBytes)))
	}
	if c.Cache.Root == c.Cache.OriginRoot {
		return fmt.Errorf("cache.root and cache.origin_root must differ")
	}
	return nil
}
