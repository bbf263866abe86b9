// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

package media

import "time"

// ContentItem is one cacheable unit of media: a movie, one show's episode
// set inside a single folder, or an album. The content key is assigned by
// the media server and is unique across the library.
//
// Invariant: Cached == true iff the folder exists under the cache root.
type ContentItem struct {
	ContentKey    string    `json:"content_key"`
	Title         string    `json:"title"`
	Category      Category  `json:"category"`
	Folder        string    `json:"folder"`
	FilePath      string    `json:"file_path"`
	SizeBytes     int64     `json:"size_bytes"`
	Cached        bool      `json:"cached"`
	CachedAt      time.Time `json:"cached_at,omitzero"`
	LastWatchedAt time.Time `json:"last_watched_at,omitzero"`
	WatchProgress float64   `json:"watch_progress"`
	WatchCount    int       `json:"watch_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// SessionState is the playback state of a session.
type SessionState string

const (
	SessionPlaying SessionState = "playing"
	SessionPaused  SessionState = "paused"
)

// Session records an in-progress or recently-ended playback. The session
// key is derived from player identity plus content key, so one player
// replaying the same content reuses its row.
type Session struct {
	SessionKey string       `json:"session_key"`
	ContentKey string       `json:"content_key"`
	Category   Category     `json:"category"`
	State      SessionState `json:"state"`
	StartedAt  time.Time    `json:"started_at"`
	LastUpdate time.Time    `json:"last_update"`
}

// QueueStatus is the lifecycle state of a queue entry.
// Transitions: pending -> processing -> completed | failed.
type QueueStatus string

const (
	StatusPending    QueueStatus = "pending"
	StatusProcessing QueueStatus = "processing"
	StatusCompleted  QueueStatus = "completed"
	StatusFailed     QueueStatus = "failed"
)

// Terminal reports whether the status ends an enqueued attempt.
func (s QueueStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Queue priorities. Lower numbers are dequeued first.
const (
	// PriorityPlayback is assigned to webhook-triggered jobs: someone is
	// watching this content right now.
	PriorityPlayback = 1

	// PriorityManual is assigned to operator-submitted jobs.
	PriorityManual = 3
)

// QueueEntry is the durable representation of a cache job. Unique per
// content key; re-submission while pending/processing keeps the status and
// lowers the priority to the minimum of old and new.
type QueueEntry struct {
	ContentKey  string      `json:"content_key"`
	Folder      string      `json:"folder"`
	Category    Category    `json:"category"`
	Title       string      `json:"title"`
	Priority    int         `json:"priority"`
	Status      QueueStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   time.Time   `json:"started_at,omitzero"`
	CompletedAt time.Time   `json:"completed_at,omitzero"`
	Error       string      `json:"error,omitempty"`
}
