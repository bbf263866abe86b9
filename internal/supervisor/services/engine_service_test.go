// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

// MockEngine simulates the cache engine lifecycle.
type MockEngine struct {
	started    atomic.Bool
	stopped    atomic.Bool
	startError error
	stopError  error
}

func (m *MockEngine) Start() error {
	if m.startError != nil {
		return m.startError
	}
	m.started.Store(true)
	return nil
}

func (m *MockEngine) Stop() error {
	m.stopped.Store(true)
	return m.stopError
}

func TestEngineServiceInterface(t *testing.T) {
	var _ suture.Service = (*EngineService)(nil)
	var _ suture.Service = (*HTTPServerService)(nil)
	var _ suture.Service = (*PrunerService)(nil)
}

func TestEngineService(t *testing.T) {
	t.Run("starts and stops the engine", func(t *testing.T) {
		mock := &MockEngine{}
		svc := NewEngineService(mock)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- svc.Serve(ctx)
		}()

		// Wait for start with polling (more reliable in CI under load)
		for i := 0; i < 10; i++ {
			time.Sleep(20 * time.Millisecond)
			if mock.started.Load() {
				break
			}
		}
		if !mock.started.Load() {
			t.Fatal("engine was not started")
		}

		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("service did not stop")
		}

		if !mock.stopped.Load() {
			t.Error("engine was not stopped")
		}
	})

	t.Run("propagates start failure", func(t *testing.T) {
		mock := &MockEngine{startError: errors.New("db locked")}
		svc := NewEngineService(mock)

		err := svc.Serve(context.Background())
		if err == nil {
			t.Fatal("expected start error")
		}
	})
}

// MockPruner counts prune runs.
type MockPruner struct {
	runs atomic.Int32
}

func (m *MockPruner) PruneStale() (int64, error) {
	m.runs.Add(1)
	return 0, nil
}

func TestPrunerService(t *testing.T) {
	mock := &MockPruner{}
	svc := NewPrunerService(mock, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err := svc.Serve(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
	if mock.runs.Load() == 0 {
		t.Error("pruner never ran")
	}
}
