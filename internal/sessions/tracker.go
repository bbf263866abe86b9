// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

// Package sessions tracks playback sessions and derives eviction
// protection from them. Content with a session updated inside the protect
// window is never evicted, whether playing or paused.
package sessions

import (
	"fmt"
	"time"

	"github.com/tomtom215/mediacache/internal/logging"
	"github.com/tomtom215/mediacache/internal/media"
	"github.com/tomtom215/mediacache/internal/store"
)

// Tracker maintains the session table and answers protection queries.
type Tracker struct {
	store         *store.Store
	protectWindow time.Duration
}

// NewTracker creates a session tracker with the given protect window.
func NewTracker(st *store.Store, protectWindow time.Duration) *Tracker {
	return &Tracker{store: st, protectWindow: protectWindow}
}

// ProtectWindow returns the configured protection duration.
func (t *Tracker) ProtectWindow() time.Duration {
	return t.protectWindow
}

// RecordPlay opens or refreshes a session on a play event.
func (t *Tracker) RecordPlay(sessionKey, contentKey string, category media.Category) error {
	err := t.store.UpsertSession(&media.Session{
		SessionKey: sessionKey,
		ContentKey: contentKey,
		Category:   category,
		State:      media.SessionPlaying,
	})
	if err != nil {
		return fmt.Errorf("failed to record play: %w", err)
	}
	logging.Debug().
		Str("session_key", sessionKey).
		Str("content_key", contentKey).
		Msg("[sessions] Playback started")
	return nil
}

// RecordResume flips an existing session back to playing and refreshes
// its protection. Unknown session keys are a no-op: a resume for a session
// this process never saw must not fabricate a session row.
func (t *Tracker) RecordResume(sessionKey string) error {
	if err := t.store.UpdateSessionState(sessionKey, media.SessionPlaying); err != nil {
		return fmt.Errorf("failed to record resume: %w", err)
	}
	return nil
}

// RecordPause marks a session paused. A paused session still protects its
// content; only the state changes.
func (t *Tracker) RecordPause(sessionKey string) error {
	if err := t.store.UpdateSessionState(sessionKey, media.SessionPaused); err != nil {
		return fmt.Errorf("failed to record pause: %w", err)
	}
	return nil
}

// RecordStop closes a session on a stop event: watch statistics are
// updated from the player position and the session row is removed, which
// ends the content's protection immediately.
//
// Progress is viewOffsetMs/durationMs clamped to [0,1]; an unknown
// duration yields 0 rather than a guess.
func (t *Tracker) RecordStop(sessionKey, contentKey string, category media.Category, viewOffsetMs, durationMs int64) error {
	progress := 0.0
	if durationMs > 0 {
		progress = float64(viewOffsetMs) / float64(durationMs)
		if progress < 0 {
			progress = 0
		} else if progress > 1 {
			progress = 1
		}
	}

	if err := t.store.RecordWatch(contentKey, category, progress); err != nil {
		return fmt.Errorf("failed to record watch: %w", err)
	}
	if err := t.store.DeleteSession(sessionKey); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	logging.Debug().
		Str("content_key", contentKey).
		Float64("progress", progress).
		Msg("[sessions] Playback stopped")
	return nil
}

// RecordScrobble marks content fully watched. Plex sends scrobble at the
// ~90% mark independently of the stop event; the session, if any, is left
// alone.
func (t *Tracker) RecordScrobble(contentKey string, category media.Category) error {
	if err := t.store.RecordScrobble(contentKey, category); err != nil {
		return fmt.Errorf("failed to record scrobble: %w", err)
	}
	return nil
}

// IsProtected reports whether the content has any session updated inside
// the protect window.
func (t *Tracker) IsProtected(contentKey string) (bool, error) {
	return t.store.HasRecentSession(contentKey, t.protectWindow)
}

// PruneStale removes sessions whose last update is older than twice the
// protect window. These belong to clients that disappeared without a stop
// event; keeping them would protect their content forever.
func (t *Tracker) PruneStale() (int64, error) {
	pruned, err := t.store.PruneStaleSessions(2 * t.protectWindow)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	if pruned > 0 {
		logging.Info().Int64("pruned", pruned).Msg("[sessions] Removed stale sessions")
	}
	return pruned, nil
}
