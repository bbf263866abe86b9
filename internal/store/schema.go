// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

package store

// Schema v1 - initial schema: media items, playback sessions, cache queue.
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Cacheable content units, keyed by the media server's unique content key
CREATE TABLE IF NOT EXISTS media_items (
  content_key TEXT PRIMARY KEY,
  title TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL,
  folder TEXT NOT NULL DEFAULT '',
  file_path TEXT NOT NULL DEFAULT '',
  size_bytes INTEGER NOT NULL DEFAULT 0,
  cached INTEGER NOT NULL DEFAULT 0,
  cached_at DATETIME,
  last_watched_at DATETIME,
  watch_progress REAL NOT NULL DEFAULT 0,
  watch_count INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_media_items_cached ON media_items(cached);
CREATE INDEX IF NOT EXISTS idx_media_items_folder ON media_items(folder, category);

-- In-progress or recently-ended playback sessions
CREATE TABLE IF NOT EXISTS sessions (
  session_key TEXT PRIMARY KEY,
  content_key TEXT NOT NULL,
  category TEXT NOT NULL,
  state TEXT NOT NULL DEFAULT 'playing',
  started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  last_update DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sessions_content_key ON sessions(content_key);
CREATE INDEX IF NOT EXISTS idx_sessions_last_update ON sessions(last_update);

-- Durable cache-job queue, one entry per content key
CREATE TABLE IF NOT EXISTS cache_queue (
  content_key TEXT PRIMARY KEY,
  folder TEXT NOT NULL,
  category TEXT NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  priority INTEGER NOT NULL DEFAULT 3,
  status TEXT NOT NULL DEFAULT 'pending',
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  started_at DATETIME,
  completed_at DATETIME,
  error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_cache_queue_status ON cache_queue(status);
CREATE INDEX IF NOT EXISTS idx_cache_queue_priority ON cache_queue(priority, created_at);
`
