// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

// Package transfer moves content from origin storage into the cache. The
// actual copy runs through an external tool (rsync by default) behind a
// circuit breaker, so a dying origin mount fails fast instead of piling
// up hour-long timeouts.
package transfer

import "context"

// ContentTransfer copies one content directory from src to dst. Both are
// absolute directory paths; dst is created as needed. Implementations must
// honor context cancellation.
type ContentTransfer interface {
	Copy(ctx context.Context, src, dst string) error
}
