// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/mediacache/internal/media"
)

// ErrItemNotFound is returned when no media item matches the lookup.
var ErrItemNotFound = errors.New("media item not found")

const itemColumns = `content_key, title, category, folder, file_path, size_bytes,
	cached, cached_at, last_watched_at, watch_progress, watch_count, created_at`

func scanItem(row interface{ Scan(...any) error }) (*media.ContentItem, error) {
	var (
		item        media.ContentItem
		cached      int
		cachedAt    sql.NullTime
		lastWatched sql.NullTime
	)
	err := row.Scan(
		&item.ContentKey, &item.Title, &item.Category, &item.Folder,
		&item.FilePath, &item.SizeBytes, &cached, &cachedAt,
		&lastWatched, &item.WatchProgress, &item.WatchCount, &item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.Cached = cached != 0
	if cachedAt.Valid {
		item.CachedAt = cachedAt.Time
	}
	if lastWatched.Valid {
		item.LastWatchedAt = lastWatched.Time
	}
	return &item, nil
}

// UpsertCached records a successful staging: the item is created or updated
// with cached=true, cached_at=now and last_watched_at=now. Setting
// last_watched_at at caching time is deliberate - freshly staged content
// must not be the first eviction candidate.
func (s *Store) UpsertCached(item *media.ContentItem) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO media_items
			(content_key, title, category, folder, file_path, size_bytes,
			 cached, cached_at, last_watched_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(content_key) DO UPDATE SET
			title = excluded.title,
			category = excluded.category,
			folder = excluded.folder,
			file_path = excluded.file_path,
			size_bytes = excluded.size_bytes,
			cached = 1,
			cached_at = excluded.cached_at,
			last_watched_at = excluded.last_watched_at`,
		item.ContentKey, item.Title, item.Category, item.Folder,
		item.FilePath, item.SizeBytes, now, now, now,
	)
	return writeErr("upsert_cached", err)
}

// ClearCached clears the cached flag and timestamp after eviction or
// manual removal. Watch statistics are untouched.
func (s *Store) ClearCached(contentKey string) error {
	_, err := s.db.Exec(`
		UPDATE media_items SET cached = 0, cached_at = NULL
		WHERE content_key = ?`, contentKey)
	return writeErr("clear_cached", err)
}

// RecordWatch updates watch statistics on a stop event: last watched now,
// the given progress, and an incremented watch count. The row is created
// if the content has never been cached.
func (s *Store) RecordWatch(contentKey string, category media.Category, progress float64) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO media_items
			(content_key, category, last_watched_at, watch_progress, watch_count, created_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT(content_key) DO UPDATE SET
			last_watched_at = excluded.last_watched_at,
			watch_progress = excluded.watch_progress,
			watch_count = media_items.watch_count + 1`,
		contentKey, category, now, progress, now,
	)
	return writeErr("record_watch", err)
}

// RecordScrobble marks the content fully watched: progress 1.0 and an
// incremented watch count, independent of any stop event.
func (s *Store) RecordScrobble(contentKey string, category media.Category) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO media_items
			(content_key, category, watch_progress, watch_count, created_at)
		VALUES (?, ?, 1.0, 1, ?)
		ON CONFLICT(content_key) DO UPDATE SET
			watch_progress = 1.0,
			watch_count = media_items.watch_count + 1`,
		contentKey, category, now,
	)
	return writeErr("record_scrobble", err)
}

// GetItem returns the item for a content key, or ErrItemNotFound.
func (s *Store) GetItem(contentKey string) (*media.ContentItem, error) {
	row := s.db.QueryRow(
		`SELECT `+itemColumns+` FROM media_items WHERE content_key = ?`, contentKey)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load item %s: %w", contentKey, err)
	}
	return item, nil
}

// GetCachedByFolder returns the cached item addressed by folder and
// category, or ErrItemNotFound. Used by the manual eviction endpoint.
func (s *Store) GetCachedByFolder(folder string, category media.Category) (*media.ContentItem, error) {
	row := s.db.QueryRow(`
		SELECT `+itemColumns+` FROM media_items
		WHERE folder = ? AND category = ? AND cached = 1`, folder, category)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cached item %s: %w", folder, err)
	}
	return item, nil
}

// GetItemByFolder returns the item addressed by folder and category
// regardless of cached state, or ErrItemNotFound. Manual cache requests
// address content by folder; reusing the stored key keeps one row per
// content unit across webhook and manual submissions.
func (s *Store) GetItemByFolder(folder string, category media.Category) (*media.ContentItem, error) {
	row := s.db.QueryRow(`
		SELECT `+itemColumns+` FROM media_items
		WHERE folder = ? AND category = ?`, folder, category)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load item %s: %w", folder, err)
	}
	return item, nil
}

// ListCached returns every item currently flagged as cached, most recently
// cached first.
func (s *Store) ListCached() ([]*media.ContentItem, error) {
	rows, err := s.db.Query(`
		SELECT ` + itemColumns + ` FROM media_items
		WHERE cached = 1
		ORDER BY cached_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cached items: %w", err)
	}
	defer rows.Close()

	var items []*media.ContentItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CountCached returns the number of cached items.
func (s *Store) CountCached() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM media_items WHERE cached = 1").Scan(&n)
	return n, err
}

// ListEvictionCandidates returns cached items with no playback session
// updated inside the protect window, in eviction order:
//
//  1. finished content first (watch progress >= 0.9),
//  2. then oldest watched first,
//  3. then least rewatched first.
func (s *Store) ListEvictionCandidates(protectWindow time.Duration) ([]*media.ContentItem, error) {
	cutoff := time.Now().UTC().Add(-protectWindow)
	rows, err := s.db.Query(`
		SELECT `+itemColumns+` FROM media_items m
		WHERE m.cached = 1
		  AND NOT EXISTS (
			SELECT 1 FROM sessions s
			WHERE s.content_key = m.content_key AND s.last_update > ?
		  )
		ORDER BY (m.watch_progress >= 0.9) DESC,
		         m.last_watched_at ASC,
		         m.watch_count ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list eviction candidates: %w", err)
	}
	defer rows.Close()

	var items []*media.ContentItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
