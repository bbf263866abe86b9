// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

// Package api is the boundary HTTP surface: webhook ingestion from the
// media server plus a small operator API for status, queue inspection,
// and manual cache/evict.
package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mediacache/internal/logging"
)

// Error codes for API responses.
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// APIError is the structured error body returned by every endpoint.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type errorResponse struct {
	Error APIError `json:"error"`
}

// respondJSON writes v as a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Err(err).Msg("[api] Failed to encode response")
	}
}

// respondError writes a structured error response. Internal errors are
// logged here so handlers only deal with classification.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID := logging.RequestIDFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logging.Error().
			Str("code", code).
			Str("message", message).
			Str("request_id", requestID).
			Str("path", r.URL.Path).
			Msg("[api] Request failed")
	}
	respondJSON(w, status, errorResponse{Error: APIError{
		Code:      code,
		Message:   message,
		RequestID: requestID,
	}})
}
