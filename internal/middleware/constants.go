package middleware

import "time"

// Rate limiting defaults shared by RateLimiter callers.
const (
	DefaultMaxAttempts     = 5
	DefaultRateLimitWindow = 1 * time.Minute
	CleanupInterval        = 5 * time.Minute
	CleanupThreshold       = 10 * time.Minute
)
