// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

// Package planner decides what leaves the cache when space runs out.
//
// Eviction order: fully-watched content first (progress >= 0.9), then
// least-recently-watched, then least-rewatched. Content with a playback
// session inside the protect window is never a candidate.
package planner

import (
	"fmt"
	"os"
	"time"

	"github.com/tomtom215/mediacache/internal/logging"
	"github.com/tomtom215/mediacache/internal/media"
	"github.com/tomtom215/mediacache/internal/metrics"
	"github.com/tomtom215/mediacache/internal/store"
)

// Planner frees cache space by evicting the least valuable staged content.
type Planner struct {
	store         *store.Store
	cacheRoot     string
	maxSizeBytes  int64
	bufferBytes   int64
	protectWindow time.Duration
}

// New creates a planner for the given cache root and size limits.
func New(st *store.Store, cacheRoot string, maxSizeBytes, bufferBytes int64, protectWindow time.Duration) *Planner {
	return &Planner{
		store:         st,
		cacheRoot:     cacheRoot,
		maxSizeBytes:  maxSizeBytes,
		bufferBytes:   bufferBytes,
		protectWindow: protectWindow,
	}
}

// CacheSize measures the bytes currently staged under the cache root.
func (p *Planner) CacheSize() (int64, error) {
	size, err := DirSize(p.cacheRoot)
	if err != nil {
		return 0, fmt.Errorf("failed to measure cache size: %w", err)
	}
	metrics.CacheSizeBytes.Set(float64(size))
	return size, nil
}

// ComputeDeficit returns how many bytes must be freed before `needed` more
// bytes fit. The target is max size minus the safety buffer; a result <= 0
// means the content fits as-is.
func (p *Planner) ComputeDeficit(currentSize, needed int64) int64 {
	return (currentSize + needed) - (p.maxSizeBytes - p.bufferBytes)
}

// ListCandidates returns evictable items in eviction order.
func (p *Planner) ListCandidates() ([]*media.ContentItem, error) {
	return p.store.ListEvictionCandidates(p.protectWindow)
}

// EvictToFit frees enough space for `needed` more bytes. The deficit is
// computed once from the cache size at entry; bytes freed are measured
// from the candidate's actual on-disk folder size, since the stored size
// can be stale.
//
// Candidates whose removal fails are skipped. If the candidate list runs
// out before the deficit is covered, the evictions already performed stay
// evicted and ErrInsufficientSpace is returned.
func (p *Planner) EvictToFit(needed int64) error {
	currentSize, err := p.CacheSize()
	if err != nil {
		return err
	}
	deficit := p.ComputeDeficit(currentSize, needed)
	if deficit <= 0 {
		return nil
	}

	logging.Info().
		Int64("needed_bytes", needed).
		Int64("current_bytes", currentSize).
		Int64("deficit_bytes", deficit).
		Msg("[planner] Cache full, evicting")

	candidates, err := p.ListCandidates()
	if err != nil {
		return err
	}

	var freed int64
	for _, item := range candidates {
		if freed >= deficit {
			break
		}
		n, err := p.Evict(item, "space")
		if err != nil {
			logging.Warn().
				Err(err).
				Str("content_key", item.ContentKey).
				Msg("[planner] Skipping candidate, removal failed")
			continue
		}
		freed += n
	}

	if freed < deficit {
		return fmt.Errorf("%w: freed %d of %d needed bytes",
			media.ErrInsufficientSpace, freed, deficit)
	}
	return nil
}

// Evict removes one item's cache directory and clears its cached flag.
// Returns the bytes actually freed, measured from disk before removal.
// The trigger label distinguishes space-pressure evictions from operator
// requests in the metrics.
func (p *Planner) Evict(item *media.ContentItem, trigger string) (int64, error) {
	dir := item.Category.CacheDir(p.cacheRoot, item.Folder)
	freed, err := DirSize(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to measure %s: %w", dir, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return 0, fmt.Errorf("failed to remove %s: %w", dir, err)
	}
	if err := p.store.ClearCached(item.ContentKey); err != nil {
		return freed, err
	}

	metrics.EvictionsTotal.WithLabelValues(trigger).Inc()
	metrics.EvictedBytesTotal.Add(float64(freed))
	logging.Info().
		Str("content_key", item.ContentKey).
		Str("folder", item.Folder).
		Int64("freed_bytes", freed).
		Str("trigger", trigger).
		Msg("[planner] Evicted")
	return freed, nil
}
