package app

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter enforces a per-client sliding-window limit on queries.
//
// It keeps the request timestamps of each client within the current window.
// A client's timestamps are pruned when it is seen again, and every
// sweepEvery Allow calls all idle clients are dropped.
//
// RateLimiter is safe for concurrent use.
type RateLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time
	counters map[string][]time.Time // clientID → request timestamps in window
	calls    int
}

const sweepEvery = 256

// NewRateLimiter returns a RateLimiter allowing at most limit requests per
// client within window. A limit ≤ 0 allows everything.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:    limit,
		window:   window,
		now:      time.Now,
		counters: make(map[string][]time.Time),
	}
}

// Allow records a request from clientID and reports whether it is within
// the limit.
func (r *RateLimiter) Allow(clientID string) bool {
	if r.limit <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.calls++
	if r.calls%sweepEvery == 0 {
		r.sweep(now)
	}
	valid := r.prune(clientID, now)
	if len(valid) >= r.limit {
		return false
	}
	r.counters[clientID] = append(valid, now)
	return true
}

// Remaining returns how many more requests clientID may make in the current
// window.
func (r *RateLimiter) Remaining(clientID string) int {
	if r.limit <= 0 {
		return -1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	valid := r.prune(clientID, r.now())
	if rem := r.limit - len(valid); rem > 0 {
		return rem
	}
	return 0
}

// prune drops timestamps outside the window and stores what is left. A client
// with nothing left is removed. r.mu must be held.
func (r *RateLimiter) prune(clientID string, now time.Time) []time.Time {
	existing, ok := r.counters[clientID]
	if !ok {
		return nil
	}
	cutoff := now.Add(-r.window)
	valid := existing[:0]
	for _, t := range existing {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		delete(r.counters, clientID)
		return nil
	}
	r.counters[clientID] = valid
	return valid
}

// sweep prunes every client. r.mu must be held.
func (r *RateLimiter) sweep(now time.Time) {
	for id := range r.counters {
		r.prune(id, now)
	}
}

// Len returns the number of clients currently tracked.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.counters)
}

// Middleware rejects requests over the limit with 429. Clients are keyed by
// RemoteAddr, which chi's RealIP middleware rewrites from proxy headers.
func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		client := clientKey(req.RemoteAddr)
		if !r.Allow(client) {
			w.Header().Set("Retry-After", strconv.Itoa(int(r.window.Seconds())))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(r.Remaining(client)))
		next.ServeHTTP(w, req)
	})
}

// clientKey strips the port from a host:port address. RealIP leaves a bare
// address, which is returned unchanged.
func clientKey(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
