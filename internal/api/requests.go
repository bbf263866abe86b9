// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

package api

import (
	"fmt"
	"path/filepath"

	"github.com/tomtom215/mediacache/internal/media"
)

// WebhookPayload is the playback-event notification from the media server.
type WebhookPayload struct {
	Event        string `json:"event"`
	ContentKey   string `json:"content_key"`
	Title        string `json:"title"`
	Category     string `json:"type"`
	ParentTitle  string `json:"parent_title,omitempty"`
	FilePath     string `json:"file_path,omitempty"`
	ViewOffsetMs int64  `json:"view_offset,omitempty"`
	DurationMs   int64  `json:"duration,omitempty"`
	PlayerID     string `json:"player_id,omitempty"`
}

// Folder resolves the addressable storage folder for the payload.
// Episodes cache at the show level, so the parent title wins; otherwise
// the parent directory of the media file names the folder, with the
// content title as a last resort.
func (p *WebhookPayload) Folder() string {
	if p.ParentTitle != "" && media.Category(p.Category) == media.CategoryEpisode {
		return p.ParentTitle
	}
	if p.FilePath != "" {
		return filepath.Base(filepath.Dir(p.FilePath))
	}
	return p.Title
}

// SessionKey derives a stable session identity from the player and the
// content. One player replaying the same content reuses its session row.
func (p *WebhookPayload) SessionKey() string {
	return fmt.Sprintf("%s:%s", p.PlayerID, p.ContentKey)
}

// ManualRequest is the body of POST /cache and POST /evict: content
// addressed by storage folder rather than content key.
type ManualRequest struct {
	FolderName string `json:"folder_name"`
	Type       string `json:"type"`
}
