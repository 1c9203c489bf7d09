// Package middleware holds the built-in, optional MiddlewareFunc values
// offered alongside the Router — users wire these in explicitly since
// middleware is always user-configured; none are mandatory.
package middleware

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/s00d/rnode-server/internal/router"
)

// RateLimiter is a per-IP token bucket (map[string]*rate.Limiter guarded
// by one RWMutex, with periodic cleanup), retargeted from the original
// gin.HandlerFunc shape to router.MiddlewareFunc.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
	cleanup  time.Duration
}

func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		cleanup:  5 * time.Minute,
	}
	go rl.cleanupRoutine()
	return rl
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()
	if exists {
		return limiter
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	limiter = rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[key] = limiter
	return limiter
}

func (rl *RateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		if len(rl.limiters) > 10000 {
			rl.limiters = make(map[string]*rate.Limiter)
		}
		rl.mu.Unlock()
	}
}

// Middleware rate-limits requests by the leftmost RemoteAddr component.
func (rl *RateLimiter) Middleware() router.MiddlewareFunc {
	return func(req *router.Request, resp *router.Response, next router.Next) {
		ip := clientIP(req.RemoteAddr)
		if !rl.getLimiter(ip).Allow() {
			resp.Status(429).JSON(map[string]any{
				"success": false,
				"error":   "rate limit exceeded",
			})
			return
		}
		next()
	}
}

func clientIP(remoteAddr string) string {
	if idx := strings.LastIndex(remoteAddr, ":"); idx != -1 {
		return remoteAddr[:idx]
	}
	return remoteAddr
}
