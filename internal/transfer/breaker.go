// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

package transfer

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/mediacache/internal/logging"
	"github.com/tomtom215/mediacache/internal/metrics"
)

// BreakerTransfer wraps a ContentTransfer with a circuit breaker. A failing
// origin mount makes every copy hang until its timeout; once the breaker
// opens, queued jobs fail immediately and re-enqueue cheaply instead of
// each burning a full timeout.
//
// Configuration:
// - trips after 3 consecutive failures (transfers are infrequent, a
//   failure-rate threshold would never gather enough samples)
// - waits 2 minutes before a half-open probe
// - allows 1 probe transfer in half-open state
type BreakerTransfer struct {
	inner ContentTransfer
	cb    *gobreaker.CircuitBreaker[any]
}

// NewBreakerTransfer wraps inner with circuit breaker protection.
func NewBreakerTransfer(inner ContentTransfer) *BreakerTransfer {
	metrics.CircuitBreakerState.Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "content-transfer",
		MaxRequests: 1,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("[transfer] Circuit breaker state transition")
			metrics.CircuitBreakerState.Set(stateToFloat(to))
		},
	})

	return &BreakerTransfer{inner: inner, cb: cb}
}

// Copy delegates to the wrapped transfer unless the circuit is open.
func (b *BreakerTransfer) Copy(ctx context.Context, src, dst string) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.inner.Copy(ctx, src, dst)
	})
	return err
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
