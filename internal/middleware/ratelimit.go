package middleware

import (
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

type visitor struct {
	count    int
	lastSeen time.Time
}

// RateLimiter caps requests per remote address over a sliding window. It sits
// on the frame-submission hot path, so the bookkeeping is a single map lookup
// under one mutex.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    int
	window   time.Duration
	logger   *zap.Logger
}

func NewRateLimiter(limit int, window time.Duration, logger *zap.Logger) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		window:   window,
		logger:   logger,
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		evicted := 0
		for addr, v := range rl.visitors {
			if time.Since(v.lastSeen) > rl.window {
				delete(rl.visitors, addr)
				evicted++
			}
		}
		tracked := len(rl.visitors)
		rl.mu.Unlock()

		if evicted > 0 {
			rl.logger.Debug("rate limiter evicted idle clients",
				zap.Int("evicted", evicted),
				zap.Int("tracked", tracked),
			)
		}
	}
}

// allow counts one request from addr and reports whether it is within the
// limit. A visitor idle for longer than the window restarts its count.
func (rl *RateLimiter) allow(addr string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[addr]
	if !ok || now.Sub(v.lastSeen) > rl.window {
		rl.visitors[addr] = &visitor{count: 1, lastSeen: now}
		return true
	}

	v.count++
	v.lastSeen = now
	return v.count <= rl.limit
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(r.RemoteAddr) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.", r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
