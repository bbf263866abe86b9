// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/mediacache/internal/logging"
	"github.com/tomtom215/mediacache/internal/media"
	"github.com/tomtom215/mediacache/internal/metrics"
	"github.com/tomtom215/mediacache/internal/planner"
	"github.com/tomtom215/mediacache/internal/store"
)

// Executor stages one content unit end to end: measure the origin, free
// cache space, copy, fix ownership, record the result.
type Executor struct {
	store      *store.Store
	planner    *planner.Planner
	transfer   ContentTransfer
	cacheRoot  string
	originRoot string
	timeout    time.Duration
	ownerUID   int
	ownerGID   int
}

// ExecutorOptions carries the construction parameters for an Executor.
type ExecutorOptions struct {
	Store      *store.Store
	Planner    *planner.Planner
	Transfer   ContentTransfer
	CacheRoot  string
	OriginRoot string
	Timeout    time.Duration
	OwnerUID   int
	OwnerGID   int
}

// NewExecutor creates a staging executor.
func NewExecutor(opts ExecutorOptions) *Executor {
	return &Executor{
		store:      opts.Store,
		planner:    opts.Planner,
		transfer:   opts.Transfer,
		cacheRoot:  opts.CacheRoot,
		originRoot: opts.OriginRoot,
		timeout:    opts.Timeout,
		ownerUID:   opts.OwnerUID,
		ownerGID:   opts.OwnerGID,
	}
}

// AlreadyCached reports whether the entry's folder is already present in
// cache storage. The directory is authoritative; the store record is
// repaired to match it in either direction: a directory without a cached
// row gets one (a pre-seeded folder is not re-copied), and a cached flag
// without a directory is cleared so the content is staged again.
func (e *Executor) AlreadyCached(entry *media.QueueEntry) bool {
	cacheDir := entry.Category.CacheDir(e.cacheRoot, entry.Folder)
	item, itemErr := e.store.GetItem(entry.ContentKey)

	if planner.DirExists(cacheDir) {
		if itemErr == nil && item.Cached {
			return true
		}
		size, err := planner.DirSize(cacheDir)
		if err != nil {
			logging.Err(err).Str("folder", entry.Folder).
				Msg("[transfer] Failed to measure pre-existing cache directory")
		}
		logging.Warn().
			Str("content_key", entry.ContentKey).
			Str("folder", entry.Folder).
			Msg("[transfer] Cache directory present without a record, repairing")
		if err := e.store.UpsertCached(&media.ContentItem{
			ContentKey: entry.ContentKey,
			Title:      entry.Title,
			Category:   entry.Category,
			Folder:     entry.Folder,
			FilePath:   entry.Category.OriginDir(e.originRoot, entry.Folder),
			SizeBytes:  size,
		}); err != nil {
			logging.Err(err).Str("content_key", entry.ContentKey).
				Msg("[transfer] Failed to repair cached record")
		}
		return true
	}

	if itemErr == nil && item.Cached {
		logging.Warn().
			Str("content_key", entry.ContentKey).
			Msg("[transfer] Cached flag set but directory missing, clearing")
		if err := e.store.ClearCached(entry.ContentKey); err != nil {
			logging.Err(err).Str("content_key", entry.ContentKey).
				Msg("[transfer] Failed to clear stale cached flag")
		}
	}
	return false
}

// Stage copies the entry's content into the cache, evicting as needed.
// Failure modes map onto the engine's error taxonomy:
//
//   - origin directory missing: media.ErrNotFound
//   - eviction cannot free enough space: media.ErrInsufficientSpace
//   - copy tool failure or timeout: media.TransferError
//   - bookkeeping failure after a successful copy: store.WriteError
func (e *Executor) Stage(ctx context.Context, entry *media.QueueEntry) error {
	originDir := entry.Category.OriginDir(e.originRoot, entry.Folder)
	if !planner.DirExists(originDir) {
		return fmt.Errorf("%w: origin directory %s", media.ErrNotFound, originDir)
	}

	size, err := planner.DirSize(originDir)
	if err != nil {
		return fmt.Errorf("failed to measure origin %s: %w", originDir, err)
	}

	if err := e.planner.EvictToFit(size); err != nil {
		if errors.Is(err, media.ErrInsufficientSpace) {
			return err
		}
		return fmt.Errorf("eviction failed: %w", err)
	}

	cacheDir := entry.Category.CacheDir(e.cacheRoot, entry.Folder)
	copyCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	copyErr := e.transfer.Copy(copyCtx, originDir, cacheDir)
	metrics.ObserveTransfer(start, copyErr)
	if copyErr != nil {
		return &media.TransferError{Folder: entry.Folder, Err: copyErr}
	}

	// Non-fatal: content is staged and playable even if chown fails.
	if err := SetOwnership(cacheDir, e.ownerUID, e.ownerGID); err != nil {
		logging.Warn().Err(err).Str("folder", entry.Folder).
			Msg("[transfer] Failed to set ownership on staged content")
	}

	if err := e.store.UpsertCached(&media.ContentItem{
		ContentKey: entry.ContentKey,
		Title:      entry.Title,
		Category:   entry.Category,
		Folder:     entry.Folder,
		FilePath:   originDir,
		SizeBytes:  size,
	}); err != nil {
		return err
	}

	if n, err := e.store.CountCached(); err == nil {
		metrics.CachedItems.Set(float64(n))
	}

	logging.Info().
		Str("content_key", entry.ContentKey).
		Str("folder", entry.Folder).
		Int64("size_bytes", size).
		Dur("elapsed", time.Since(start)).
		Msg("[transfer] Content staged")
	return nil
}
