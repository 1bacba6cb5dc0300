// SPDX-License-Identifier: MIT

// Package ratelimit implements the admission gate: a token-bucket rate
// limiter shared by the REST and streaming entry points.
package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/UnknownEngineOfficial/XTeam/internal/log"
	"github.com/UnknownEngineOfficial/XTeam/internal/metrics"
)

// Decision is the outcome of one admission check. Remaining and Limit are
// reported on every response, admitted or not; RetryAfter is set only on
// rejections.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Store consumes one token from the bucket identified by key, refilling it
// lazily from the elapsed time since the last take.
type Store interface {
	Take(ctx context.Context, key string, now time.Time) (Decision, error)
}

// Config holds admission gate configuration.
type Config struct {
	// RequestsPerMinute is the bucket capacity; the refill rate is
	// RequestsPerMinute/60 tokens per second.
	RequestsPerMinute int
	// ExemptPaths bypass the gate unconditionally (liveness/readiness).
	ExemptPaths []string
}

// Gate combines a bucket store with the exemption list. A store failure is
// fail-open: an unreachable auxiliary dependency must not take the whole
// service down, so the request is admitted, logged and counted.
type Gate struct {
	store  Store
	limit  int
	exempt map[string]struct{}
	logger zerolog.Logger
}

// NewGate creates an admission gate over the given bucket store.
func NewGate(store Store, cfg Config) *Gate {
	exempt := make(map[string]struct{}, len(cfg.ExemptPaths))
	for _, p := range cfg.ExemptPaths {
		exempt[p] = struct{}{}
	}
	return &Gate{
		store:  store,
		limit:  cfg.RequestsPerMinute,
		exempt: exempt,
		logger: log.WithComponent("ratelimit"),
	}
}

// Limit returns the configured bucket capacity.
func (g *Gate) Limit() int { return g.limit }

// Exempt reports whether path bypasses the gate.
func (g *Gate) Exempt(path string) bool {
	_, ok := g.exempt[path]
	return ok
}

// Check admits or rejects a request identified by clientKey. Exempt paths
// are always admitted with a full informational budget and no bucket
// mutation.
func (g *Gate) Check(ctx context.Context, clientKey, path string, now time.Time) Decision {
	if g.Exempt(path) {
		return Decision{Allowed: true, Limit: g.limit, Remaining: g.limit}
	}

	d, err := g.store.Take(ctx, clientKey, now)
	if err != nil {
		metrics.RateLimitFailOpenTotal.Inc()
		g.logger.Warn().
			Err(err).
			Str(log.FieldClientKey, clientKey).
			Str(log.FieldEvent, "ratelimit.fail_open").
			Msg("rate limit store unreachable, admitting request")
		return Decision{Allowed: true, Limit: g.limit, Remaining: g.limit}
	}

	if !d.Allowed {
		metrics.IncRateLimited("gate")
	}
	return d
}
