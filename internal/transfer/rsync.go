// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

package transfer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tomtom215/mediacache/internal/logging"
)

// RsyncTransfer copies content by shelling out to rsync (or a compatible
// tool). Archive mode preserves permissions and timestamps; the trailing
// slash on the source copies directory contents rather than nesting the
// directory under dst.
type RsyncTransfer struct {
	tool string
}

// NewRsyncTransfer creates a transfer backed by the given tool binary.
func NewRsyncTransfer(tool string) *RsyncTransfer {
	return &RsyncTransfer{tool: tool}
}

// Copy runs `tool -a src/ dst/`. Killed by context cancellation; stderr is
// captured and folded into the returned error.
func (r *RsyncTransfer) Copy(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create cache parent directory: %w", err)
	}

	args := []string{"-a", src + string(os.PathSeparator), dst + string(os.PathSeparator)}
	cmd := exec.CommandContext(ctx, r.tool, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logging.Debug().
		Str("tool", r.tool).
		Str("src", src).
		Str("dst", dst).
		Msg("[transfer] Starting copy")

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s canceled: %w", r.tool, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%s failed: %w", r.tool, err)
		}
		// Keep only the tail of a long stderr dump.
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		return fmt.Errorf("%s failed: %w: %s", r.tool, err, msg)
	}
	return nil
}
