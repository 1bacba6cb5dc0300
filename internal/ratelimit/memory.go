// SPDX-License-Identifier: MIT

package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryStore keeps one token bucket per client key in process memory.
// Buckets idle for longer than the retention window are evicted to bound
// memory across many short-lived clients.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*memBucket

	capacity  int
	refill    rate.Limit
	retention time.Duration

	lastCleanup time.Time
}

type memBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewMemoryStore creates a store with requestsPerMinute capacity per key.
func NewMemoryStore(requestsPerMinute int, retention time.Duration) *MemoryStore {
	return &MemoryStore{
		buckets:     make(map[string]*memBucket),
		capacity:    requestsPerMinute,
		refill:      rate.Limit(float64(requestsPerMinute) / 60.0),
		retention:   retention,
		lastCleanup: time.Now(),
	}
}

// Take consumes one token from key's bucket. It never returns an error.
func (s *MemoryStore) Take(_ context.Context, key string, now time.Time) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		b = &memBucket{lim: rate.NewLimiter(s.refill, s.capacity)}
		s.buckets[key] = b
	}
	b.lastSeen = now

	s.maybeCleanup(now)

	if b.lim.AllowN(now, 1) {
		return Decision{
			Allowed:   true,
			Limit:     s.capacity,
			Remaining: int(b.lim.TokensAt(now)),
		}, nil
	}

	res := b.lim.ReserveN(now, 1)
	retryAfter := res.DelayFrom(now)
	res.CancelAt(now)

	return Decision{
		Allowed:    false,
		Limit:      s.capacity,
		Remaining:  int(b.lim.TokensAt(now)),
		RetryAfter: retryAfter,
	}, nil
}

// maybeCleanup evicts buckets not seen within the retention window.
// Caller must hold s.mu.
func (s *MemoryStore) maybeCleanup(now time.Time) {
	if s.retention <= 0 || now.Sub(s.lastCleanup) < s.retention {
		return
	}
	for key, b := range s.buckets {
		if now.Sub(b.lastSeen) >= s.retention {
			delete(s.buckets, key)
		}
	}
	s.lastCleanup = now
}

// Len returns the number of live buckets.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
