package middleware

import (
	"net/http"
	"sync"
	"time"
)

// RateLimiter is a fixed-window per-address counter guarding the public
// read endpoints (leaderboards, user lookups) against tight polling.
// Authenticated bot traffic never passes through it. State is
// in-process, so each replica enforces its own window.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	span    time.Duration
}

type window struct {
	count   int
	resetAt time.Time
}

func NewRateLimiter(limit int, span time.Duration) *RateLimiter {
	rl := &RateLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		span:    span,
	}
	go rl.evictLoop()
	return rl
}

// evictLoop drops expired windows so the map stays bounded by active
// clients rather than every address ever seen.
func (rl *RateLimiter) evictLoop() {
	ticker := time.NewTicker(rl.span)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		rl.mu.Lock()
		for addr, w := range rl.windows {
			if now.After(w.resetAt) {
				delete(rl.windows, addr)
			}
		}
		rl.mu.Unlock()
	}
}

// allow counts one request against addr's current window.
func (rl *RateLimiter) allow(addr string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[addr]
	if !ok || now.After(w.resetAt) {
		rl.windows[addr] = &window{count: 1, resetAt: now.Add(rl.span)}
		return true
	}
	w.count++
	return w.count <= rl.limit
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(r.RemoteAddr, time.Now()) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.", r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
