// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

package services

import (
	"context"
	"time"

	"github.com/tomtom215/mediacache/internal/logging"
)

// SessionPruner matches the session tracker's stale-session cleanup.
type SessionPruner interface {
	PruneStale() (int64, error)
}

// PrunerService periodically removes sessions from clients that vanished
// without a stop event. Prune errors are logged, not returned: a transient
// store hiccup is no reason for suture to restart the service.
type PrunerService struct {
	pruner   SessionPruner
	interval time.Duration
}

// NewPrunerService creates a session pruner service.
func NewPrunerService(pruner SessionPruner, interval time.Duration) *PrunerService {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &PrunerService{pruner: pruner, interval: interval}
}

// Serve implements suture.Service.
func (s *PrunerService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.pruner.PruneStale(); err != nil {
				logging.Err(err).Msg("[sessions] Prune run failed")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// String implements fmt.Stringer for suture's log messages.
func (s *PrunerService) String() string {
	return "session-pruner"
}
