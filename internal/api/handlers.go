// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"

	"github.com/tomtom215/mediacache/internal/config"
	"github.com/tomtom215/mediacache/internal/engine"
	"github.com/tomtom215/mediacache/internal/logging"
	"github.com/tomtom215/mediacache/internal/media"
	"github.com/tomtom215/mediacache/internal/metrics"
	"github.com/tomtom215/mediacache/internal/planner"
	"github.com/tomtom215/mediacache/internal/sessions"
	"github.com/tomtom215/mediacache/internal/store"
)

// Handler carries the engine components the boundary API talks to. All
// handlers are safe for concurrent use; coordination with the worker
// happens through the store and the engine's active-job set.
type Handler struct {
	cfg     *config.Config
	store   *store.Store
	tracker *sessions.Tracker
	planner *planner.Planner
	engine  *engine.CacheEngine
}

// NewHandler creates the API handler set.
func NewHandler(cfg *config.Config, st *store.Store, tracker *sessions.Tracker, pl *planner.Planner, eng *engine.CacheEngine) *Handler {
	return &Handler{cfg: cfg, store: st, tracker: tracker, planner: pl, engine: eng}
}

// Webhook ingests a playback event.
// POST /webhook
//
// Play events additionally enqueue a priority-1 staging job when the
// content's folder is not cached yet. The media server does not care about
// our staging outcome, so the response is always {status:"ok"} unless the
// payload itself is unusable.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var payload WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid webhook payload")
		return
	}

	category, err := media.ParseCategory(payload.Category)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	metrics.WebhookEvents.WithLabelValues(payload.Event).Inc()
	logging.Debug().
		Str("event", payload.Event).
		Str("content_key", payload.ContentKey).
		Str("folder", payload.Folder()).
		Msg("[api] Webhook received")

	switch payload.Event {
	case "play":
		if err := h.tracker.RecordPlay(payload.SessionKey(), payload.ContentKey, category); err != nil {
			respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
			return
		}
		h.stageOnPlay(&payload, category)
	case "resume":
		if err := h.tracker.RecordResume(payload.SessionKey()); err != nil {
			respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
			return
		}
	case "pause":
		if err := h.tracker.RecordPause(payload.SessionKey()); err != nil {
			respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
			return
		}
	case "stop":
		err := h.tracker.RecordStop(payload.SessionKey(), payload.ContentKey, category,
			payload.ViewOffsetMs, payload.DurationMs)
		if err != nil {
			respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
			return
		}
	case "scrobble":
		if err := h.tracker.RecordScrobble(payload.ContentKey, category); err != nil {
			respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
			return
		}
	default:
		logging.Warn().Str("event", payload.Event).Msg("[api] Unknown webhook event")
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// stageOnPlay enqueues a staging job for a play event on uncached content.
// Failures here are logged, not surfaced: the playback event itself was
// already recorded.
func (h *Handler) stageOnPlay(payload *WebhookPayload, category media.Category) {
	folder := payload.Folder()
	if folder == "" {
		return
	}
	if item, err := h.store.GetCachedByFolder(folder, category); err == nil && item.Cached {
		return
	}

	submitted, err := h.engine.Submit(&media.QueueEntry{
		ContentKey: payload.ContentKey,
		Folder:     folder,
		Category:   category,
		Title:      payload.Title,
		Priority:   media.PriorityPlayback,
	})
	if err != nil {
		logging.Err(err).Str("folder", folder).Msg("[api] Failed to enqueue playback job")
		return
	}
	if submitted {
		logging.Info().Str("folder", folder).Msg("[api] Playback triggered staging")
	}
}

// Health is the liveness endpoint.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(); err != nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeInternalError, "store unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// statusResponse is the body of GET /status.
type statusResponse struct {
	CacheSizeBytes       int64   `json:"cache_size_bytes"`
	CacheSizeHuman       string  `json:"cache_size_human"`
	MaxSizeBytes         int64   `json:"max_size_bytes"`
	PercentUsed          float64 `json:"percent_used"`
	CachedItems          int     `json:"cached_items"`
	ActiveSessions       int     `json:"active_sessions"`
	QueueSize            int     `json:"queue_size"`
	InFlight             int     `json:"in_flight"`
	Failed               int     `json:"failed"`
	ProtectWindowMinutes int     `json:"protect_window_minutes"`
}

// Status reports cache occupancy and queue health.
// GET /status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	size, err := h.planner.CacheSize()
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	cached, err := h.store.CountCached()
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	active, err := h.store.CountActiveSessions()
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	counts, err := h.store.QueueCounts()
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	metrics.ActiveSessions.Set(float64(active))

	percent := 0.0
	if h.cfg.Cache.MaxSizeBytes > 0 {
		percent = math.Round(float64(size)/float64(h.cfg.Cache.MaxSizeBytes)*10000) / 100
	}

	respondJSON(w, http.StatusOK, statusResponse{
		CacheSizeBytes:       size,
		CacheSizeHuman:       humanize.IBytes(uint64(size)),
		MaxSizeBytes:         h.cfg.Cache.MaxSizeBytes,
		PercentUsed:          percent,
		CachedItems:          cached,
		ActiveSessions:       active,
		QueueSize:            counts[media.StatusPending],
		InFlight:             counts[media.StatusProcessing],
		Failed:               counts[media.StatusFailed],
		ProtectWindowMinutes: int(h.tracker.ProtectWindow().Minutes()),
	})
}

// Queue lists the 50 most recent queue entries, in-flight first.
// GET /queue
func (h *Handler) Queue(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.RecentEntries(50)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if entries == nil {
		entries = []*media.QueueEntry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// cachedItemView is one row of GET /cached.
type cachedItemView struct {
	ContentKey    string    `json:"content_key"`
	Title         string    `json:"title"`
	Category      string    `json:"category"`
	Folder        string    `json:"folder"`
	SizeGB        float64   `json:"size_gb"`
	SizeHuman     string    `json:"size_human"`
	CachedAt      time.Time `json:"cached_at"`
	LastWatchedAt time.Time `json:"last_watched_at,omitempty"`
	WatchProgress float64   `json:"watch_progress"`
	WatchCount    int       `json:"watch_count"`
	Protected     bool      `json:"protected"`
}

// Cached lists all cached items with size and protection status.
// GET /cached
func (h *Handler) Cached(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListCached()
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	views := make([]cachedItemView, 0, len(items))
	for _, item := range items {
		protected, err := h.tracker.IsProtected(item.ContentKey)
		if err != nil {
			respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
			return
		}
		views = append(views, cachedItemView{
			ContentKey:    item.ContentKey,
			Title:         item.Title,
			Category:      item.Category.String(),
			Folder:        item.Folder,
			SizeGB:        math.Round(float64(item.SizeBytes)/float64(1<<30)*100) / 100,
			SizeHuman:     humanize.IBytes(uint64(item.SizeBytes)),
			CachedAt:      item.CachedAt,
			LastWatchedAt: item.LastWatchedAt,
			WatchProgress: item.WatchProgress,
			WatchCount:    item.WatchCount,
			Protected:     protected,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"items": views,
		"count": len(views),
	})
}

// Cache submits a manual staging job at operator priority.
// POST /cache
func (h *Handler) Cache(w http.ResponseWriter, r *http.Request) {
	req, category, ok := h.decodeManualRequest(w, r)
	if !ok {
		return
	}

	// Reuse the stored content key when the folder is known, so manual and
	// webhook submissions share one item row. Unknown folders get a
	// synthetic key until staging records the real metadata.
	contentKey := fmt.Sprintf("manual:%s:%s", category, req.FolderName)
	title := req.FolderName
	if item, err := h.store.GetItemByFolder(req.FolderName, category); err == nil {
		if item.Cached {
			respondJSON(w, http.StatusOK, map[string]string{"status": "already_cached"})
			return
		}
		contentKey = item.ContentKey
		if item.Title != "" {
			title = item.Title
		}
	}

	_, err := h.engine.Submit(&media.QueueEntry{
		ContentKey: contentKey,
		Folder:     req.FolderName,
		Category:   category,
		Title:      title,
		Priority:   media.PriorityManual,
	})
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

// Evict removes one folder from the cache on operator request.
// POST /evict
//
// Returns 404 when the folder is not cached and 409 when an active
// session protects it; the conflict is expected operator feedback, not an
// error condition.
func (h *Handler) Evict(w http.ResponseWriter, r *http.Request) {
	req, category, ok := h.decodeManualRequest(w, r)
	if !ok {
		return
	}

	item, err := h.store.GetCachedByFolder(req.FolderName, category)
	if errors.Is(err, store.ErrItemNotFound) {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound,
			fmt.Sprintf("folder %q is not cached", req.FolderName))
		return
	}
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	protected, err := h.tracker.IsProtected(item.ContentKey)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if protected {
		respondError(w, r, http.StatusConflict, ErrCodeConflict,
			fmt.Sprintf("folder %q is protected by an active session", req.FolderName))
		return
	}

	if _, err := h.planner.Evict(item, "manual"); err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "evicted"})
}

func (h *Handler) decodeManualRequest(w http.ResponseWriter, r *http.Request) (*ManualRequest, media.Category, bool) {
	var req ManualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return nil, "", false
	}
	if req.FolderName == "" {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "folder_name is required")
		return nil, "", false
	}
	category, err := media.ParseCategory(req.Type)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return nil, "", false
	}
	return &req, category, true
}
