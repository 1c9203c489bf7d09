package middleware

import (
	"compress/gzip"
	"strings"

	"github.com/s00d/rnode-server/internal/router"
)

// Gzip compression levels.
const (
	DefaultCompression = gzip.DefaultCompression
	NoCompression      = gzip.NoCompression
	BestSpeed          = gzip.BestSpeed
	BestCompression    = gzip.BestCompression
)

// Gzip compresses the final buffered response body in place, once the rest
// of the chain has run. Unlike a streaming writer wrap, Response always
// buffers its body before flush, so compression here is a post-pass over
// resp rather than an io.Writer wrapper.
func Gzip(level int) router.MiddlewareFunc {
	return func(req *router.Request, resp *router.Response, next router.Next) {
		next()
		if !shouldCompress(req) {
			return
		}
		resp.CompressGzip(level)
	}
}

func shouldCompress(req *router.Request) bool {
	if !strings.Contains(req.Header.Get("Accept-Encoding"), "gzip") {
		return false
	}
	if req.Header.Get("Upgrade") == "websocket" {
		return false
	}
	if req.Header.Get("Accept") == "text/event-stream" {
		return false
	}
	return true
}

// GzipWithExclusions is Gzip with a set of path prefixes left uncompressed.
func GzipWithExclusions(level int, excludePaths []string) router.MiddlewareFunc {
	gz := Gzip(level)
	return func(req *router.Request, resp *router.Response, next router.Next) {
		for _, p := range excludePaths {
			if strings.HasPrefix(req.Path, p) {
				next()
				return
			}
		}
		gz(req, resp, next)
	}
}
