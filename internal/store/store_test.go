// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/mediacache/internal/media"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreOpenAndMigrate(t *testing.T) {
	s := openTestStore(t)

	version, err := s.schemaVersion()
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)

	for _, table := range []string{"media_items", "sessions", "cache_queue", "schema_version"} {
		var count int
		err := s.db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "expected table %s to exist", table)
	}

	// Re-opening must not re-apply migrations.
	require.NoError(t, s.migrate())
	assert.NoError(t, s.Ping())
}

func TestItemCachedLifecycle(t *testing.T) {
	s := openTestStore(t)

	item := &media.ContentItem{
		ContentKey: "plex://movie/1",
		Title:      "Heat",
		Category:   media.CategoryMovie,
		Folder:     "Heat (1995)",
		FilePath:   "/media/movies/Heat (1995)",
		SizeBytes:  8 << 30,
	}
	require.NoError(t, s.UpsertCached(item))

	got, err := s.GetItem("plex://movie/1")
	require.NoError(t, err)
	assert.True(t, got.Cached)
	assert.False(t, got.CachedAt.IsZero())
	assert.False(t, got.LastWatchedAt.IsZero(), "staging must stamp last_watched_at")
	assert.Equal(t, int64(8<<30), got.SizeBytes)

	byFolder, err := s.GetCachedByFolder("Heat (1995)", media.CategoryMovie)
	require.NoError(t, err)
	assert.Equal(t, "plex://movie/1", byFolder.ContentKey)

	require.NoError(t, s.ClearCached("plex://movie/1"))
	got, err = s.GetItem("plex://movie/1")
	require.NoError(t, err)
	assert.False(t, got.Cached)
	assert.True(t, got.CachedAt.IsZero())

	_, err = s.GetCachedByFolder("Heat (1995)", media.CategoryMovie)
	assert.ErrorIs(t, err, ErrItemNotFound)

	n, err := s.CountCached()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRecordWatch(t *testing.T) {
	s := openTestStore(t)

	t.Run("creates row for unknown content", func(t *testing.T) {
		require.NoError(t, s.RecordWatch("plex://movie/2", media.CategoryMovie, 0.4))

		got, err := s.GetItem("plex://movie/2")
		require.NoError(t, err)
		assert.InDelta(t, 0.4, got.WatchProgress, 1e-9)
		assert.Equal(t, 1, got.WatchCount)
		assert.False(t, got.Cached)
	})

	t.Run("increments count and overwrites progress", func(t *testing.T) {
		require.NoError(t, s.RecordWatch("plex://movie/2", media.CategoryMovie, 0.95))

		got, err := s.GetItem("plex://movie/2")
		require.NoError(t, err)
		assert.InDelta(t, 0.95, got.WatchProgress, 1e-9)
		assert.Equal(t, 2, got.WatchCount)
	})

	t.Run("scrobble forces progress to one", func(t *testing.T) {
		require.NoError(t, s.RecordScrobble("plex://movie/2", media.CategoryMovie))

		got, err := s.GetItem("plex://movie/2")
		require.NoError(t, err)
		assert.InDelta(t, 1.0, got.WatchProgress, 1e-9)
		assert.Equal(t, 3, got.WatchCount)
	})
}

func TestSessions(t *testing.T) {
	s := openTestStore(t)

	sess := &media.Session{
		SessionKey: "sess-1",
		ContentKey: "plex://movie/3",
		Category:   media.CategoryMovie,
		State:      media.SessionPlaying,
	}
	require.NoError(t, s.UpsertSession(sess))

	recent, err := s.HasRecentSession("plex://movie/3", time.Hour)
	require.NoError(t, err)
	assert.True(t, recent)

	recent, err = s.HasRecentSession("plex://movie/other", time.Hour)
	require.NoError(t, err)
	assert.False(t, recent)

	// Paused sessions still protect the content.
	require.NoError(t, s.UpdateSessionState("sess-1", media.SessionPaused))
	recent, err = s.HasRecentSession("plex://movie/3", time.Hour)
	require.NoError(t, err)
	assert.True(t, recent)

	// Updating an unknown session is a no-op, not an error.
	require.NoError(t, s.UpdateSessionState("sess-missing", media.SessionPaused))

	n, err := s.CountActiveSessions()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.DeleteSession("sess-1"))
	n, err = s.CountActiveSessions()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPruneStaleSessions(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertSession(&media.Session{
		SessionKey: "sess-old",
		ContentKey: "plex://movie/4",
		Category:   media.CategoryMovie,
		State:      media.SessionPlaying,
	}))
	// Backdate the session past any realistic protect window.
	_, err := s.db.Exec(
		"UPDATE sessions SET last_update = ? WHERE session_key = 'sess-old'",
		time.Now().UTC().Add(-3*time.Hour))
	require.NoError(t, err)

	pruned, err := s.PruneStaleSessions(2 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
}

func TestQueueUpsertInvariant(t *testing.T) {
	s := openTestStore(t)

	entry := func(priority int) *media.QueueEntry {
		return &media.QueueEntry{
			ContentKey: "plex://show/5",
			Folder:     "Severance",
			Category:   media.CategoryShow,
			Title:      "Severance",
			Priority:   priority,
		}
	}

	t.Run("insert creates pending entry", func(t *testing.T) {
		require.NoError(t, s.UpsertQueueEntry(entry(media.PriorityManual)))

		entries, err := s.LoadResumable()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, media.StatusPending, entries[0].Status)
		assert.Equal(t, media.PriorityManual, entries[0].Priority)
	})

	t.Run("pending entry takes the more urgent priority", func(t *testing.T) {
		require.NoError(t, s.UpsertQueueEntry(entry(media.PriorityPlayback)))

		entries, err := s.LoadResumable()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, media.PriorityPlayback, entries[0].Priority)

		// A weaker priority never raises the stored value.
		require.NoError(t, s.UpsertQueueEntry(entry(media.PriorityManual)))
		entries, err = s.LoadResumable()
		require.NoError(t, err)
		assert.Equal(t, media.PriorityPlayback, entries[0].Priority)
	})

	t.Run("processing entry keeps its status", func(t *testing.T) {
		require.NoError(t, s.MarkProcessing("plex://show/5"))
		require.NoError(t, s.UpsertQueueEntry(entry(media.PriorityManual)))

		entries, err := s.RecentEntries(10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, media.StatusProcessing, entries[0].Status)
		assert.False(t, entries[0].StartedAt.IsZero())
	})

	t.Run("terminal entry resets to pending", func(t *testing.T) {
		require.NoError(t, s.MarkFailed("plex://show/5", "rsync exited 23"))
		require.NoError(t, s.UpsertQueueEntry(entry(media.PriorityManual)))

		entries, err := s.LoadResumable()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, media.StatusPending, entries[0].Status)
		assert.Equal(t, media.PriorityManual, entries[0].Priority)
		assert.True(t, entries[0].StartedAt.IsZero())
		assert.True(t, entries[0].CompletedAt.IsZero())
		assert.Empty(t, entries[0].Error)
	})
}

func TestQueueCompletionAndCounts(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertQueueEntry(&media.QueueEntry{
		ContentKey: "plex://movie/6", Folder: "a", Category: media.CategoryMovie,
		Priority: media.PriorityPlayback,
	}))
	require.NoError(t, s.UpsertQueueEntry(&media.QueueEntry{
		ContentKey: "plex://movie/7", Folder: "b", Category: media.CategoryMovie,
		Priority: media.PriorityManual,
	}))

	require.NoError(t, s.MarkProcessing("plex://movie/6"))
	require.NoError(t, s.MarkCompleted("plex://movie/6", "already cached"))

	counts, err := s.QueueCounts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[media.StatusCompleted])
	assert.Equal(t, 1, counts[media.StatusPending])

	entries, err := s.RecentEntries(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Pending sorts before terminal states.
	assert.Equal(t, "plex://movie/7", entries[0].ContentKey)
	assert.Equal(t, "already cached", entries[1].Error)
	assert.False(t, entries[1].CompletedAt.IsZero())
}

func TestResetProcessing(t *testing.T) {
	s := openTestStore(t)

	for _, key := range []string{"k1", "k2"} {
		require.NoError(t, s.UpsertQueueEntry(&media.QueueEntry{
			ContentKey: key, Folder: key, Category: media.CategoryMovie,
			Priority: media.PriorityPlayback,
		}))
	}
	require.NoError(t, s.MarkProcessing("k1"))

	n, err := s.ResetProcessing()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := s.LoadResumable()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	for _, e := range entries {
		assert.True(t, e.StartedAt.IsZero())
	}
}

func TestLoadResumableOrdering(t *testing.T) {
	s := openTestStore(t)

	// Oldest manual entry first so created_at ordering is observable.
	require.NoError(t, s.UpsertQueueEntry(&media.QueueEntry{
		ContentKey: "manual-old", Folder: "a", Category: media.CategoryMovie,
		Priority: media.PriorityManual,
	}))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.UpsertQueueEntry(&media.QueueEntry{
		ContentKey: "manual-new", Folder: "b", Category: media.CategoryMovie,
		Priority: media.PriorityManual,
	}))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.UpsertQueueEntry(&media.QueueEntry{
		ContentKey: "playback", Folder: "c", Category: media.CategoryMovie,
		Priority: media.PriorityPlayback,
	}))

	entries, err := s.LoadResumable()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "playback", entries[0].ContentKey)
	assert.Equal(t, "manual-old", entries[1].ContentKey)
	assert.Equal(t, "manual-new", entries[2].ContentKey)
}

func TestEvictionCandidateOrdering(t *testing.T) {
	s := openTestStore(t)

	cache := func(key string, lastWatched time.Time, progress float64, count int) {
		t.Helper()
		require.NoError(t, s.UpsertCached(&media.ContentItem{
			ContentKey: key, Folder: key, Category: media.CategoryMovie,
			FilePath: "/media/movies/" + key, SizeBytes: 1 << 30,
		}))
		_, err := s.db.Exec(`
			UPDATE media_items
			SET last_watched_at = ?, watch_progress = ?, watch_count = ?
			WHERE content_key = ?`, lastWatched.UTC(), progress, count, key)
		require.NoError(t, err)
	}

	now := time.Now()
	cache("unfinished-old", now.Add(-72*time.Hour), 0.3, 1)
	cache("finished-recent", now.Add(-2*time.Hour), 0.95, 1)
	cache("finished-old", now.Add(-48*time.Hour), 1.0, 2)
	cache("protected", now.Add(-96*time.Hour), 1.0, 1)

	// An active session shields "protected" regardless of watch state.
	require.NoError(t, s.UpsertSession(&media.Session{
		SessionKey: "sess-p", ContentKey: "protected",
		Category: media.CategoryMovie, State: media.SessionPlaying,
	}))

	items, err := s.ListEvictionCandidates(time.Hour)
	require.NoError(t, err)
	require.Len(t, items, 3)
	// Finished content goes first, oldest watched first within the group.
	assert.Equal(t, "finished-old", items[0].ContentKey)
	assert.Equal(t, "finished-recent", items[1].ContentKey)
	assert.Equal(t, "unfinished-old", items[2].ContentKey)
}

func TestWriteErrorSurfacesUnderlyingFailure(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())

	err := s.UpsertSession(&media.Session{
		SessionKey: "sess-1", ContentKey: "plex://movie/1",
		Category: media.CategoryMovie, State: media.SessionPlaying,
	})
	require.Error(t, err)

	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "upsert_session", werr.Op)
	assert.Error(t, werr.Unwrap())
}
