// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/mediacache/internal/middleware"
)

// NewRouter assembles the HTTP surface. webhookRateLimit caps webhook
// ingestion per minute per client IP; a misbehaving media server retrying
// in a tight loop must not starve the operator endpoints.
func NewRouter(h *Handler, webhookRateLimit int) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Prometheus)

	r.With(httprate.LimitByIP(webhookRateLimit, time.Minute)).
		Post("/webhook", h.Webhook)

	r.Get("/health", h.Health)
	r.Get("/status", h.Status)
	r.With(middleware.Compression).Get("/queue", h.Queue)
	r.With(middleware.Compression).Get("/cached", h.Cached)
	r.Post("/cache", h.Cache)
	r.Post("/evict", h.Evict)

	r.Handle("/metrics", promhttp.Handler())

	return r
}
