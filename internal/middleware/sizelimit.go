package middleware

import (
	"github.com/s00d/rnode-server/internal/router"
)

// Request body size limits.
const (
	MaxRequestBodySize int64 = 10 * 1024 * 1024
	MaxJSONPayloadSize int64 = 5 * 1024 * 1024
	MaxFileUploadSize  int64 = 50 * 1024 * 1024
)

// RequestSizeLimiter rejects request bodies above maxSize before the
// handler reads them, short-circuiting on a declared Content-Length and
// otherwise reading the whole body and checking its length.
func RequestSizeLimiter(maxSize int64) router.MiddlewareFunc {
	return func(req *router.Request, resp *router.Response, next router.Next) {
		if req.Method == "GET" || req.Method == "HEAD" || req.Method == "OPTIONS" {
			next()
			return
		}

		if cl := req.Header.Get("Content-Length"); cl != "" {
			if n := parseContentLength(cl); n > maxSize {
				resp.Status(413).JSON(map[string]any{
					"success":   false,
					"error":     "request entity too large",
					"maxSizeMB": float64(maxSize) / (1024 * 1024),
				})
				return
			}
		}

		body, err := req.Body()
		if err == nil && int64(len(body)) > maxSize {
			resp.Status(413).JSON(map[string]any{
				"success":   false,
				"error":     "request entity too large",
				"maxSizeMB": float64(maxSize) / (1024 * 1024),
			})
			return
		}
		next()
	}
}

func parseContentLength(s string) int64 {
	var n int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int64(r-'0')
	}
	return n
}

func JSONSizeLimiter() router.MiddlewareFunc    { return RequestSizeLimiter(MaxJSONPayloadSize) }
func FileUploadLimiter() router.MiddlewareFunc  { return RequestSizeLimiter(MaxFileUploadSize) }
func DefaultSizeLimiter() router.MiddlewareFunc { return RequestSizeLimiter(MaxRequestBodySize) }
