package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/s00d/rnode-server/internal/router"
)

// TimeoutConfig configures request timeout enforcement.
type TimeoutConfig struct {
	Timeout       time.Duration
	ErrorMessage  string
	ExcludedPaths []string
}

func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Timeout:      30 * time.Second,
		ErrorMessage: "request timeout",
		ExcludedPaths: []string{
			"/websocket/",
			"/upload",
		},
	}
}

// Timeout enforces a maximum request duration, running the remaining
// chain in a goroutine and racing its completion against the deadline —
// the same shape as the bridge's per-ticket timeout, generalized to any
// handler chain rather than just cross-runtime calls.
func Timeout(config TimeoutConfig) router.MiddlewareFunc {
	return func(req *router.Request, resp *router.Response, next router.Next) {
		for _, excluded := range config.ExcludedPaths {
			if strings.HasPrefix(req.Path, excluded) {
				next()
				return
			}
		}

		ctx, cancel := context.WithTimeout(req.Context(), config.Timeout)
		defer cancel()
		req.WithContext(ctx)

		finished := make(chan struct{})
		go func() {
			next()
			close(finished)
		}()

		select {
		case <-finished:
		case <-ctx.Done():
			resp.Status(408).JSON(map[string]any{
				"success": false,
				"error":   config.ErrorMessage,
				"timeout": config.Timeout.String(),
			})
		}
	}
}

// TimeoutWithDuration builds a Timeout middleware overriding only the duration.
func TimeoutWithDuration(timeout time.Duration) router.MiddlewareFunc {
	config := DefaultTimeoutConfig()
	config.Timeout = timeout
	return Timeout(config)
}
