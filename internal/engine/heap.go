// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

package engine

import (
	"container/heap"

	"github.com/tomtom215/mediacache/internal/media"
)

// jobHeap orders queue entries by priority (lower value first), then FIFO
// within a priority. The sequence number breaks ties because created_at
// has second resolution in SQLite and jobs often arrive in bursts.
// index tracks the heap position so a re-submission can re-prioritize a
// waiting job in place with heap.Fix.
type jobItem struct {
	entry *media.QueueEntry
	seq   uint64
	index int
}

type jobHeap []*jobItem

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].entry.Priority != h[j].entry.Priority {
		return h[i].entry.Priority < h[j].entry.Priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	item := x.(*jobItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*jobHeap)(nil)
