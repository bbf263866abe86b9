// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/mediacache/internal/media"
)

const queueColumns = `content_key, folder, category, title, priority, status,
	created_at, started_at, completed_at, error`

func scanQueueEntry(row interface{ Scan(...any) error }) (*media.QueueEntry, error) {
	var (
		e         media.QueueEntry
		startedAt sql.NullTime
		doneAt    sql.NullTime
	)
	err := row.Scan(
		&e.ContentKey, &e.Folder, &e.Category, &e.Title, &e.Priority,
		&e.Status, &e.CreatedAt, &startedAt, &doneAt, &e.Error,
	)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		e.StartedAt = startedAt.Time
	}
	if doneAt.Valid {
		e.CompletedAt = doneAt.Time
	}
	return &e, nil
}

// UpsertQueueEntry enqueues a job, one row per content key:
//
//   - no row: inserted as pending;
//   - existing pending or processing row: status kept, priority lowered to
//     the more urgent of old and new (lower value wins);
//   - existing completed or failed row: reset to pending with the new
//     priority, a fresh created_at, and cleared timestamps and error.
//
// This makes re-requesting previously finished content re-enqueue it while
// an in-flight job is never restarted underneath the worker.
func (s *Store) UpsertQueueEntry(e *media.QueueEntry) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO cache_queue (content_key, folder, category, title, priority, status, created_at)
		VALUES (?, ?, ?, ?, ?, 'pending', ?)
		ON CONFLICT(content_key) DO UPDATE SET
			folder = excluded.folder,
			category = excluded.category,
			title = excluded.title,
			priority = CASE
				WHEN cache_queue.status IN ('pending', 'processing')
					THEN MIN(cache_queue.priority, excluded.priority)
				ELSE excluded.priority
			END,
			status = CASE
				WHEN cache_queue.status IN ('pending', 'processing')
					THEN cache_queue.status
				ELSE 'pending'
			END,
			created_at = CASE
				WHEN cache_queue.status IN ('pending', 'processing')
					THEN cache_queue.created_at
				ELSE excluded.created_at
			END,
			started_at = CASE
				WHEN cache_queue.status IN ('pending', 'processing')
					THEN cache_queue.started_at
				ELSE NULL
			END,
			completed_at = CASE
				WHEN cache_queue.status IN ('pending', 'processing')
					THEN cache_queue.completed_at
				ELSE NULL
			END,
			error = CASE
				WHEN cache_queue.status IN ('pending', 'processing')
					THEN cache_queue.error
				ELSE ''
			END`,
		e.ContentKey, e.Folder, e.Category, e.Title, e.Priority, now,
	)
	return writeErr("upsert_queue_entry", err)
}

// MarkProcessing transitions an entry to processing and stamps started_at.
func (s *Store) MarkProcessing(contentKey string) error {
	_, err := s.db.Exec(`
		UPDATE cache_queue SET status = 'processing', started_at = ?
		WHERE content_key = ?`,
		time.Now().UTC(), contentKey,
	)
	return writeErr("mark_processing", err)
}

// MarkCompleted transitions an entry to completed. The note lands in the
// error column; it is informational ("already cached"), not a failure.
func (s *Store) MarkCompleted(contentKey, note string) error {
	_, err := s.db.Exec(`
		UPDATE cache_queue SET status = 'completed', completed_at = ?, error = ?
		WHERE content_key = ?`,
		time.Now().UTC(), note, contentKey,
	)
	return writeErr("mark_completed", err)
}

// MarkFailed transitions an entry to failed with the failure message.
func (s *Store) MarkFailed(contentKey, errMsg string) error {
	_, err := s.db.Exec(`
		UPDATE cache_queue SET status = 'failed', completed_at = ?, error = ?
		WHERE content_key = ?`,
		time.Now().UTC(), errMsg, contentKey,
	)
	return writeErr("mark_failed", err)
}

// ResetProcessing moves every processing entry back to pending. Called once
// at startup: a processing row at boot means the previous run died mid-job.
func (s *Store) ResetProcessing() (int64, error) {
	res, err := s.db.Exec(`
		UPDATE cache_queue SET status = 'pending', started_at = NULL
		WHERE status = 'processing'`)
	if err != nil {
		return 0, writeErr("reset_processing", err)
	}
	return res.RowsAffected()
}

// LoadResumable returns all pending entries in dispatch order: most urgent
// priority first, oldest first within a priority.
func (s *Store) LoadResumable() ([]*media.QueueEntry, error) {
	rows, err := s.db.Query(`
		SELECT ` + queueColumns + ` FROM cache_queue
		WHERE status = 'pending'
		ORDER BY priority ASC, created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending queue entries: %w", err)
	}
	defer rows.Close()

	var entries []*media.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecentEntries returns up to limit queue entries for the status endpoint:
// in-flight first, then waiting, then finished, newest first within each
// group.
func (s *Store) RecentEntries(limit int) ([]*media.QueueEntry, error) {
	rows, err := s.db.Query(`
		SELECT `+queueColumns+` FROM cache_queue
		ORDER BY CASE status
			WHEN 'processing' THEN 0
			WHEN 'pending' THEN 1
			ELSE 2
		END, created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue entries: %w", err)
	}
	defer rows.Close()

	var entries []*media.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// QueueCounts returns the number of entries per status.
func (s *Store) QueueCounts() (map[media.QueueStatus]int, error) {
	rows, err := s.db.Query("SELECT status, COUNT(*) FROM cache_queue GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count queue entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[media.QueueStatus]int)
	for rows.Next() {
		var (
			status media.QueueStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
