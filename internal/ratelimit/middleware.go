// SPDX-License-Identifier: MIT

package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"
)

// KeyFunc extracts the rate limit key (usually the client IP) from a request.
type KeyFunc func(r *http.Request) string

// KeyByIP keys buckets by the connection's remote address. Callers behind a
// trusted reverse proxy should supply their own KeyFunc that honours
// X-Forwarded-For for trusted peers only.
func KeyByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware applies the gate to every request. Every response, admitted or
// not, carries X-RateLimit-Limit and X-RateLimit-Remaining; rejections add
// Retry-After and a 429 body.
func (g *Gate) Middleware(keyFn KeyFunc) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = KeyByIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := g.Check(r.Context(), keyFn(r), r.URL.Path, time.Now())

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(RetrySeconds(d.RetryAfter)))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded","detail":"Too many requests. Please try again later."}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RetrySeconds converts a retry-after duration into whole seconds for the
// Retry-After header, rounding up so clients never retry early.
func RetrySeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}
