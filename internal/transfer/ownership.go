// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

package transfer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// SetOwnership recursively chowns root to uid:gid so the media server can
// read staged files when it runs as a different user. Disabled when both
// ids are negative.
func SetOwnership(root string, uid, gid int) error {
	if uid < 0 && gid < 0 {
		return nil
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := os.Chown(path, uid, gid); err != nil {
			return fmt.Errorf("failed to chown %s: %w", path, err)
		}
		return nil
	})
}
