// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

// Package engine runs the cache job queue: a single worker drains a
// priority queue of staging jobs, backed by the durable queue table so
// pending work survives restarts.
//
// Concurrency model: one worker, at most one job in flight per content
// key. The active set holds only keys currently being staged; waiting jobs
// live in the heap, and re-submitting one lowers its priority to the
// minimum of old and new instead of queueing a duplicate.
package engine

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/mediacache/internal/logging"
	"github.com/tomtom215/mediacache/internal/media"
	"github.com/tomtom215/mediacache/internal/metrics"
	"github.com/tomtom215/mediacache/internal/store"
	"github.com/tomtom215/mediacache/internal/transfer"
)

// CacheEngine owns the in-memory job queue and the staging worker.
type CacheEngine struct {
	store        *store.Store
	executor     *transfer.Executor
	pollInterval time.Duration

	mu      sync.Mutex
	cond    *sync.Cond
	jobs    jobHeap
	queued  map[string]*jobItem
	active  map[string]struct{}
	seq     uint64
	stopped bool

	recoverOnce sync.Once
	cancel      context.CancelFunc
	done        chan struct{}
}

// New creates a cache engine. Call Start before submitting jobs.
func New(st *store.Store, executor *transfer.Executor, pollInterval time.Duration) *CacheEngine {
	e := &CacheEngine{
		store:        st,
		executor:     executor,
		pollInterval: pollInterval,
		queued:       make(map[string]*jobItem),
		active:       make(map[string]struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Start recovers persisted state and launches the worker. Recovery runs at
// most once per process even if Start is called again after Stop:
// re-running it would race a worker that already claimed jobs.
func (e *CacheEngine) Start() error {
	var recoverErr error
	e.recoverOnce.Do(func() {
		recoverErr = e.recover()
	})
	if recoverErr != nil {
		return recoverErr
	}

	ctx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.stopped = false
	e.cancel = cancel
	e.done = make(chan struct{})
	e.mu.Unlock()

	go e.worker(ctx)
	logging.Info().Msg("[engine] Worker started")
	return nil
}

// Stop cancels the in-flight job, stops the worker, and waits for it to
// exit. An interrupted job stays processing in the store and is reset to
// pending by recovery on the next start.
func (e *CacheEngine) Stop() error {
	e.mu.Lock()
	if e.stopped || e.done == nil {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	done := e.done
	e.cancel()
	e.cond.Broadcast()
	e.mu.Unlock()

	<-done
	logging.Info().Msg("[engine] Worker stopped")
	return nil
}

// recover reconciles the durable queue with the in-memory one: processing
// entries from a previous run are reset to pending, then all pending work
// is reloaded in priority order.
func (e *CacheEngine) recover() error {
	reset, err := e.store.ResetProcessing()
	if err != nil {
		return fmt.Errorf("failed to reset interrupted jobs: %w", err)
	}
	if reset > 0 {
		logging.Warn().Int64("jobs", reset).Msg("[engine] Re-queued jobs interrupted by previous shutdown")
	}

	entries, err := e.store.LoadResumable()
	if err != nil {
		return fmt.Errorf("failed to load pending jobs: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, entry := range entries {
		e.pushLocked(entry)
	}
	if len(entries) > 0 {
		logging.Info().Int("jobs", len(entries)).Msg("[engine] Resumed pending jobs")
	}
	return nil
}

// Submit enqueues a staging job. The durable entry is always upserted, so
// a re-submission while pending or processing lowers the stored priority
// to the minimum of old and new. Returns true only when a new in-memory
// job was queued; a duplicate of a waiting job is re-prioritized in place
// instead.
func (e *CacheEngine) Submit(entry *media.QueueEntry) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Persist first: a crash between here and the push loses nothing,
	// recovery reloads the entry from the store.
	if err := e.store.UpsertQueueEntry(entry); err != nil {
		return false, err
	}

	if _, inflight := e.active[entry.ContentKey]; inflight {
		logging.Debug().
			Str("content_key", entry.ContentKey).
			Msg("[engine] Submission for in-flight job recorded, not re-queued")
		return false, nil
	}
	if item, waiting := e.queued[entry.ContentKey]; waiting {
		if entry.Priority < item.entry.Priority {
			item.entry.Priority = entry.Priority
			heap.Fix(&e.jobs, item.index)
			logging.Debug().
				Str("content_key", entry.ContentKey).
				Int("priority", entry.Priority).
				Msg("[engine] Waiting job re-prioritized")
		}
		return false, nil
	}

	e.pushLocked(entry)
	e.cond.Signal()
	logging.Info().
		Str("content_key", entry.ContentKey).
		Str("folder", entry.Folder).
		Int("priority", entry.Priority).
		Msg("[engine] Job enqueued")
	return true, nil
}

// pushLocked adds the entry to the heap and the waiting index. Caller
// holds mu.
func (e *CacheEngine) pushLocked(entry *media.QueueEntry) {
	e.seq++
	item := &jobItem{entry: entry, seq: e.seq}
	heap.Push(&e.jobs, item)
	e.queued[entry.ContentKey] = item
	metrics.QueueDepth.Set(float64(e.jobs.Len()))
}

// QueueDepth returns the number of jobs waiting in memory.
func (e *CacheEngine) QueueDepth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.jobs.Len()
}

// ActiveCount returns the number of jobs waiting or in flight.
func (e *CacheEngine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queued) + len(e.active)
}

// dequeue pops the most urgent job, blocking up to timeout when the queue
// is empty. Returns nil on timeout or shutdown.
func (e *CacheEngine) dequeue(timeout time.Duration) *media.QueueEntry {
	deadline := time.Now().Add(timeout)

	e.mu.Lock()
	defer e.mu.Unlock()
	for e.jobs.Len() == 0 {
		if e.stopped || time.Now().After(deadline) {
			return nil
		}
		// sync.Cond has no timed wait; a timer broadcast bounds it.
		wakeup := time.AfterFunc(time.Until(deadline), e.cond.Broadcast)
		e.cond.Wait()
		wakeup.Stop()
	}
	if e.stopped {
		return nil
	}

	// Claiming the job moves its key from the waiting index to the
	// active set; from here until release, duplicate submissions are
	// recorded durably but not queued.
	item := heap.Pop(&e.jobs).(*jobItem)
	delete(e.queued, item.entry.ContentKey)
	e.active[item.entry.ContentKey] = struct{}{}
	metrics.QueueDepth.Set(float64(e.jobs.Len()))
	metrics.ActiveJobs.Set(float64(len(e.active)))
	return item.entry
}

// release removes a finished job from the active set.
func (e *CacheEngine) release(contentKey string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, contentKey)
	metrics.ActiveJobs.Set(float64(len(e.active)))
}

func (e *CacheEngine) worker(ctx context.Context) {
	defer close(e.done)
	for {
		e.mu.Lock()
		stopped := e.stopped
		e.mu.Unlock()
		if stopped {
			return
		}

		entry := e.dequeue(e.pollInterval)
		if entry == nil {
			continue
		}
		e.process(ctx, entry)
	}
}

// process runs one job to a terminal state. A panic inside staging is
// converted into a failed job; the worker itself never dies.
func (e *CacheEngine) process(ctx context.Context, entry *media.QueueEntry) {
	defer e.release(entry.ContentKey)
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Interface("panic", r).
				Str("content_key", entry.ContentKey).
				Msg("[engine] Job panicked")
			e.finish(entry, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := e.store.MarkProcessing(entry.ContentKey); err != nil {
		logging.Err(err).Str("content_key", entry.ContentKey).
			Msg("[engine] Failed to mark job processing")
	}

	if e.executor.AlreadyCached(entry) {
		if err := e.store.MarkCompleted(entry.ContentKey, "already cached"); err != nil {
			logging.Err(err).Str("content_key", entry.ContentKey).
				Msg("[engine] Failed to mark job completed")
		}
		metrics.JobsTotal.WithLabelValues("already_cached").Inc()
		logging.Info().Str("content_key", entry.ContentKey).
			Msg("[engine] Content already cached, skipping transfer")
		return
	}

	e.finish(entry, e.executor.Stage(ctx, entry))
}

// finish records the job outcome. Store write failures here are logged and
// swallowed: the job already ran, crashing the worker over bookkeeping
// would only block the rest of the queue.
func (e *CacheEngine) finish(entry *media.QueueEntry, stageErr error) {
	if errors.Is(stageErr, context.Canceled) {
		// Shutdown interrupted the job. Leave it processing; recovery
		// resets it to pending on the next start.
		logging.Warn().Str("content_key", entry.ContentKey).
			Msg("[engine] Job interrupted by shutdown, will resume")
		return
	}
	if stageErr != nil {
		logging.Err(stageErr).
			Str("content_key", entry.ContentKey).
			Str("folder", entry.Folder).
			Msg("[engine] Job failed")
		if err := e.store.MarkFailed(entry.ContentKey, stageErr.Error()); err != nil {
			logging.Err(err).Str("content_key", entry.ContentKey).
				Msg("[engine] Failed to mark job failed")
		}
		metrics.JobsTotal.WithLabelValues("failed").Inc()
		return
	}

	if err := e.store.MarkCompleted(entry.ContentKey, ""); err != nil {
		logging.Err(err).Str("content_key", entry.ContentKey).
			Msg("[engine] Failed to mark job completed")
	}
	metrics.JobsTotal.WithLabelValues("completed").Inc()
}
