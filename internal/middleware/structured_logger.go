package middleware

import (
	"time"

	"github.com/s00d/rnode-server/internal/logger"
	"github.com/s00d/rnode-server/internal/router"
)

// StructuredLoggerConfig controls which fields StructuredLogger emits.
type StructuredLoggerConfig struct {
	SkipPaths       []string
	SkipHealthCheck bool
	LogQuery        bool
	LogUserAgent    bool
}

func DefaultStructuredLoggerConfig() StructuredLoggerConfig {
	return StructuredLoggerConfig{
		SkipHealthCheck: true,
		LogQuery:        true,
		LogUserAgent:    true,
	}
}

// StructuredLogger logs every request through the HTTP component logger,
// at a level chosen by the response status (2xx/3xx info, 4xx warn, 5xx
// error), carrying the request id set by RequestID if present.
func StructuredLogger() router.MiddlewareFunc {
	return StructuredLoggerWithConfig(DefaultStructuredLoggerConfig())
}

// StructuredLoggerWithConfig is StructuredLogger with path skipping and
// field selection.
func StructuredLoggerWithConfig(config StructuredLoggerConfig) router.MiddlewareFunc {
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}
	if config.SkipHealthCheck {
		skip["/health"] = true
	}

	return func(req *router.Request, resp *router.Response, next router.Next) {
		if skip[req.Path] {
			next()
			return
		}

		start := time.Now()
		next()
		duration := time.Since(start)

		status := resp.StatusCode()
		evt := logger.HTTP().Info()
		if status >= 500 {
			evt = logger.HTTP().Error()
		} else if status >= 400 {
			evt = logger.HTTP().Warn()
		}

		evt = evt.
			Str("request_id", GetRequestID(req)).
			Str("method", req.Method).
			Str("path", req.Path).
			Int("status", status).
			Dur("duration", duration).
			Str("client_ip", req.RemoteAddr)

		if config.LogQuery && len(req.Query) > 0 {
			evt = evt.Str("query", req.Query.Encode())
		}
		if config.LogUserAgent {
			evt = evt.Str("user_agent", req.Header.Get("User-Agent"))
		}
		evt.Msg("request")
	}
}
