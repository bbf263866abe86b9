// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

package services

import (
	"context"
	"fmt"
)

// StartStopEngine matches the cache engine's lifecycle: Start launches the
// worker, Stop drains it and waits.
type StartStopEngine interface {
	Start() error
	Stop() error
}

// EngineService wraps the cache engine as a supervised service. If Start
// fails, the error propagates and suture restarts the service with
// backoff.
type EngineService struct {
	engine StartStopEngine
}

// NewEngineService creates a cache engine service wrapper.
func NewEngineService(engine StartStopEngine) *EngineService {
	return &EngineService{engine: engine}
}

// Serve implements suture.Service: start the engine, block until
// shutdown, stop it.
func (s *EngineService) Serve(ctx context.Context) error {
	if err := s.engine.Start(); err != nil {
		return fmt.Errorf("cache engine start failed: %w", err)
	}

	<-ctx.Done()

	if err := s.engine.Stop(); err != nil {
		return fmt.Errorf("cache engine stop failed: %w", err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer for suture's log messages.
func (s *EngineService) String() string {
	return "cache-engine"
}
