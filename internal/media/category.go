// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

// Package media defines the domain types shared by the cache engine:
// the closed set of media categories, the cacheable content item, playback
// sessions, queue entries, and the engine's error taxonomy.
package media

import (
	"fmt"
	"path/filepath"
)

// Category is the closed set of media categories reported by the media
// server. Path resolution is an exhaustive mapping over this set, so an
// unhandled category is a compile-time visible gap rather than a silent
// fallback to a default directory.
type Category string

const (
	CategoryMovie   Category = "movie"
	CategoryShow    Category = "show"
	CategoryEpisode Category = "episode"
	CategoryMusic   Category = "music"
	CategoryTrack   Category = "track"
)

// Categories lists every valid category.
var Categories = []Category{
	CategoryMovie,
	CategoryShow,
	CategoryEpisode,
	CategoryMusic,
	CategoryTrack,
}

// ParseCategory validates a category string from the boundary API.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryMovie, CategoryShow, CategoryEpisode, CategoryMusic, CategoryTrack:
		return Category(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
}

// Subdir returns the library subdirectory for the category under both the
// origin and cache roots. Shows and episodes share the TV library; music
// and tracks share the music library.
func (c Category) Subdir() string {
	switch c {
	case CategoryMovie:
		return "movies"
	case CategoryShow, CategoryEpisode:
		return "tv"
	case CategoryMusic, CategoryTrack:
		return "music"
	default:
		// Unreachable for values produced by ParseCategory.
		return "misc"
	}
}

// OriginDir resolves the origin-storage directory for a folder of this
// category under the given origin root.
func (c Category) OriginDir(originRoot, folder string) string {
	return filepath.Join(originRoot, c.Subdir(), folder)
}

// CacheDir resolves the cache-storage directory for a folder of this
// category under the given cache root.
func (c Category) CacheDir(cacheRoot, folder string) string {
	return filepath.Join(cacheRoot, c.Subdir(), folder)
}

// String implements fmt.Stringer.
func (c Category) String() string {
	return string(c)
}
