// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

package transfer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The happy path needs a real rsync binary and is covered by the fake
// transfer in executor tests; here we pin down the failure surfaces.

func TestRsyncToolFailure(t *testing.T) {
	dir := t.TempDir()
	r := NewRsyncTransfer("false")

	err := r.Copy(context.Background(), filepath.Join(dir, "src"), filepath.Join(dir, "dst"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "false failed")
}

func TestRsyncMissingTool(t *testing.T) {
	dir := t.TempDir()
	r := NewRsyncTransfer("definitely-not-a-real-tool")

	err := r.Copy(context.Background(), filepath.Join(dir, "src"), filepath.Join(dir, "dst"))
	require.Error(t, err)
}

func TestRsyncCanceledContext(t *testing.T) {
	dir := t.TempDir()
	r := NewRsyncTransfer("sleep")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Copy(ctx, filepath.Join(dir, "src"), filepath.Join(dir, "dst"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
