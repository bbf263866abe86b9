// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

package store

import (
	"fmt"
	"time"

	"github.com/tomtom215/mediacache/internal/media"
)

// UpsertSession creates or refreshes a playback session. On refresh the
// original started_at is kept; only state and last_update move.
func (s *Store) UpsertSession(sess *media.Session) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO sessions (session_key, content_key, category, state, started_at, last_update)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_key) DO UPDATE SET
			content_key = excluded.content_key,
			category = excluded.category,
			state = excluded.state,
			last_update = excluded.last_update`,
		sess.SessionKey, sess.ContentKey, sess.Category, sess.State, now, now,
	)
	return writeErr("upsert_session", err)
}

// UpdateSessionState sets the state of an existing session and bumps
// last_update. Unknown session keys are a no-op: a pause event for a
// session we never saw carries no useful information.
func (s *Store) UpdateSessionState(sessionKey string, state media.SessionState) error {
	_, err := s.db.Exec(`
		UPDATE sessions SET state = ?, last_update = ?
		WHERE session_key = ?`,
		state, time.Now().UTC(), sessionKey,
	)
	return writeErr("update_session_state", err)
}

// DeleteSession removes a session after a stop event. Deleting a session
// that does not exist is not an error.
func (s *Store) DeleteSession(sessionKey string) error {
	_, err := s.db.Exec("DELETE FROM sessions WHERE session_key = ?", sessionKey)
	return writeErr("delete_session", err)
}

// HasRecentSession reports whether any session for the content key was
// updated inside the protect window. Paused sessions count: someone paused
// mid-movie still expects the file to be there when they resume.
func (s *Store) HasRecentSession(contentKey string, protectWindow time.Duration) (bool, error) {
	cutoff := time.Now().UTC().Add(-protectWindow)
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM sessions
		WHERE content_key = ? AND last_update > ?`,
		contentKey, cutoff,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check sessions for %s: %w", contentKey, err)
	}
	return n > 0, nil
}

// CountActiveSessions returns the number of tracked sessions.
func (s *Store) CountActiveSessions() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&n)
	return n, err
}

// PruneStaleSessions deletes sessions not updated since the cutoff. Covers
// clients that vanish without sending a stop event.
func (s *Store) PruneStaleSessions(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.Exec("DELETE FROM sessions WHERE last_update < ?", cutoff)
	if err != nil {
		return 0, writeErr("prune_sessions", err)
	}
	return res.RowsAffected()
}
