// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/mediacache/internal/media"
	"github.com/tomtom215/mediacache/internal/planner"
	"github.com/tomtom215/mediacache/internal/store"
	"github.com/tomtom215/mediacache/internal/transfer"
)

// inProcessTransfer copies directories without an external tool. panicOn
// triggers a panic for the matching destination, to exercise worker
// panic containment.
type inProcessTransfer struct {
	panicOn string
}

func (f *inProcessTransfer) Copy(ctx context.Context, src, dst string) error {
	if f.panicOn != "" && filepath.Base(dst) == f.panicOn {
		panic("boom")
	}
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}

type engineFixture struct {
	engine     *CacheEngine
	store      *store.Store
	transfer   *inProcessTransfer
	originRoot string
	cacheRoot  string
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cacheRoot := filepath.Join(dir, "cache")
	originRoot := filepath.Join(dir, "media")
	require.NoError(t, os.MkdirAll(cacheRoot, 0o755))
	require.NoError(t, os.MkdirAll(originRoot, 0o755))

	ft := &inProcessTransfer{}
	pl := planner.New(st, cacheRoot, 100<<20, 10<<20, time.Hour)
	ex := transfer.NewExecutor(transfer.ExecutorOptions{
		Store:      st,
		Planner:    pl,
		Transfer:   ft,
		CacheRoot:  cacheRoot,
		OriginRoot: originRoot,
		Timeout:    time.Minute,
		OwnerUID:   -1,
		OwnerGID:   -1,
	})
	return &engineFixture{
		engine:     New(st, ex, 50*time.Millisecond),
		store:      st,
		transfer:   ft,
		originRoot: originRoot,
		cacheRoot:  cacheRoot,
	}
}

func (f *engineFixture) addOrigin(t *testing.T, folder string) {
	t.Helper()
	dir := media.CategoryMovie.OriginDir(f.originRoot, folder)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "content.mkv"), make([]byte, 1<<16), 0o644))
}

func entryFor(key, folder string) *media.QueueEntry {
	return &media.QueueEntry{
		ContentKey: key,
		Folder:     folder,
		Category:   media.CategoryMovie,
		Title:      folder,
		Priority:   media.PriorityPlayback,
	}
}

// waitForStatus polls the durable queue until the entry reaches the wanted
// status. Polling keeps the test reliable under CI load.
func waitForStatus(t *testing.T, st *store.Store, key string, want media.QueueStatus) *media.QueueEntry {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := st.RecentEntries(50)
		require.NoError(t, err)
		for _, e := range entries {
			if e.ContentKey == key && e.Status == want {
				return e
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("entry %s never reached status %s", key, want)
	return nil
}

func TestSubmitDeduplicates(t *testing.T) {
	f := newEngineFixture(t)

	ok, err := f.engine.Submit(entryFor("key-1", "Alien (1979)"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.engine.Submit(entryFor("key-1", "Alien (1979)"))
	require.NoError(t, err)
	assert.False(t, ok, "second submission for the same key must not queue a new job")

	assert.Equal(t, 1, f.engine.QueueDepth())
	assert.Equal(t, 1, f.engine.ActiveCount())
}

func TestSubmitLowersPendingPriority(t *testing.T) {
	f := newEngineFixture(t)

	first := entryFor("key-other", "Other (2020)")
	first.Priority = media.PriorityManual
	ok, err := f.engine.Submit(first)
	require.NoError(t, err)
	require.True(t, ok)

	manual := entryFor("key-1", "Alien (1979)")
	manual.Priority = media.PriorityManual
	ok, err = f.engine.Submit(manual)
	require.NoError(t, err)
	require.True(t, ok)

	// Someone starts playing the manually queued content: the waiting job
	// takes the lower priority instead of queueing a duplicate.
	ok, err = f.engine.Submit(entryFor("key-1", "Alien (1979)"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, f.engine.QueueDepth())

	entries, err := f.store.RecentEntries(10)
	require.NoError(t, err)
	for _, e := range entries {
		if e.ContentKey == "key-1" {
			assert.Equal(t, media.PriorityPlayback, e.Priority,
				"stored entry must take the minimum of old and new priority")
			assert.Equal(t, media.StatusPending, e.Status)
		}
	}

	// The upgraded job jumps ahead of the earlier manual submission.
	got := f.engine.dequeue(10 * time.Millisecond)
	require.NotNil(t, got)
	assert.Equal(t, "key-1", got.ContentKey)

	// Re-submitting the now in-flight key is recorded but not re-queued.
	ok, err = f.engine.Submit(entryFor("key-1", "Alien (1979)"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, f.engine.QueueDepth())
}

func TestWorkerCompletesJob(t *testing.T) {
	f := newEngineFixture(t)
	f.addOrigin(t, "Alien (1979)")

	require.NoError(t, f.engine.Start())
	t.Cleanup(func() { f.engine.Stop() })

	ok, err := f.engine.Submit(entryFor("key-1", "Alien (1979)"))
	require.NoError(t, err)
	require.True(t, ok)

	done := waitForStatus(t, f.store, "key-1", media.StatusCompleted)
	assert.Empty(t, done.Error)
	assert.False(t, done.StartedAt.IsZero())
	assert.False(t, done.CompletedAt.IsZero())

	// Content is on disk and re-submittable.
	assert.FileExists(t, filepath.Join(
		media.CategoryMovie.CacheDir(f.cacheRoot, "Alien (1979)"), "content.mkv"))

	deadline := time.Now().Add(time.Second)
	for f.engine.ActiveCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Zero(t, f.engine.ActiveCount(), "finished job must leave the active set")
}

func TestAlreadyCachedShortCircuit(t *testing.T) {
	f := newEngineFixture(t)
	f.addOrigin(t, "Alien (1979)")

	// Stage it once through the real path.
	require.NoError(t, f.engine.Start())
	t.Cleanup(func() { f.engine.Stop() })

	ok, err := f.engine.Submit(entryFor("key-1", "Alien (1979)"))
	require.NoError(t, err)
	require.True(t, ok)
	waitForStatus(t, f.store, "key-1", media.StatusCompleted)

	// Second submission finds the content already staged.
	ok, err = f.engine.Submit(entryFor("key-1", "Alien (1979)"))
	require.NoError(t, err)
	require.True(t, ok, "a completed entry is re-submittable")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := f.store.RecentEntries(50)
		require.NoError(t, err)
		if len(entries) == 1 && entries[0].Status == media.StatusCompleted && entries[0].Error == "already cached" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("already-cached short circuit never recorded")
}

func TestWorkerMarksFailedOnMissingOrigin(t *testing.T) {
	f := newEngineFixture(t)

	require.NoError(t, f.engine.Start())
	t.Cleanup(func() { f.engine.Stop() })

	ok, err := f.engine.Submit(entryFor("key-1", "Nope (2022)"))
	require.NoError(t, err)
	require.True(t, ok)

	failed := waitForStatus(t, f.store, "key-1", media.StatusFailed)
	assert.Contains(t, failed.Error, "not found")
}

func TestWorkerSurvivesPanic(t *testing.T) {
	f := newEngineFixture(t)
	f.addOrigin(t, "Panic (2021)")
	f.addOrigin(t, "Calm (2022)")
	f.transfer.panicOn = "Panic (2021)"

	require.NoError(t, f.engine.Start())
	t.Cleanup(func() { f.engine.Stop() })

	ok, err := f.engine.Submit(entryFor("key-panic", "Panic (2021)"))
	require.NoError(t, err)
	require.True(t, ok)

	failed := waitForStatus(t, f.store, "key-panic", media.StatusFailed)
	assert.Contains(t, failed.Error, "panic")

	// The worker is still alive and processes the next job.
	ok, err = f.engine.Submit(entryFor("key-calm", "Calm (2022)"))
	require.NoError(t, err)
	require.True(t, ok)
	waitForStatus(t, f.store, "key-calm", media.StatusCompleted)
}

func TestRecoveryResumesPersistedJobs(t *testing.T) {
	f := newEngineFixture(t)
	f.addOrigin(t, "Alien (1979)")

	// Simulate a previous run that died mid-job: one processing entry and
	// one pending entry in the durable queue, nothing in memory.
	require.NoError(t, f.store.UpsertQueueEntry(entryFor("key-interrupted", "Alien (1979)")))
	require.NoError(t, f.store.MarkProcessing("key-interrupted"))
	require.NoError(t, f.store.UpsertQueueEntry(entryFor("key-waiting", "Nope (2022)")))

	require.NoError(t, f.engine.Start())
	t.Cleanup(func() { f.engine.Stop() })

	// The interrupted job is reset and completes this run.
	waitForStatus(t, f.store, "key-interrupted", media.StatusCompleted)
	// The waiting job runs too (and fails on its missing origin).
	waitForStatus(t, f.store, "key-waiting", media.StatusFailed)
}

func TestPriorityOrdering(t *testing.T) {
	f := newEngineFixture(t)

	manual := entryFor("key-manual", "Manual (2020)")
	manual.Priority = media.PriorityManual
	playback := entryFor("key-playback", "Playback (2021)")

	ok, err := f.engine.Submit(manual)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = f.engine.Submit(playback)
	require.NoError(t, err)
	require.True(t, ok)

	// Playback-triggered work jumps ahead of the earlier manual job.
	first := f.engine.dequeue(10 * time.Millisecond)
	require.NotNil(t, first)
	assert.Equal(t, "key-playback", first.ContentKey)

	second := f.engine.dequeue(10 * time.Millisecond)
	require.NotNil(t, second)
	assert.Equal(t, "key-manual", second.ContentKey)
}

func TestDequeueTimesOut(t *testing.T) {
	f := newEngineFixture(t)

	start := time.Now()
	entry := f.engine.dequeue(50 * time.Millisecond)
	assert.Nil(t, entry)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}
