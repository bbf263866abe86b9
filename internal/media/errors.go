// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

package media

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the engine's failure taxonomy. Job failures are
// captured into the queue entry's error text; none of them abort the worker
// loop.
var (
	// ErrNotFound indicates the origin folder does not exist. The job
	// fails without retry.
	ErrNotFound = errors.New("origin folder not found")

	// ErrInsufficientSpace indicates eviction could not free enough bytes
	// to fit the requested content within the configured budget.
	ErrInsufficientSpace = errors.New("insufficient cache space")

	// ErrProtected indicates a manual eviction targeted content with an
	// active or recent playback session. Surfaced as a conflict to the
	// caller, not logged as an error.
	ErrProtected = errors.New("content protected by active session")

	// ErrUnknownCategory indicates a category string outside the closed
	// Category set.
	ErrUnknownCategory = errors.New("unknown media category")
)

// TransferError wraps a failure of the external copy tool: nonzero exit,
// timeout, or an open circuit breaker.
type TransferError struct {
	Folder string
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed for %s: %v", e.Folder, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
