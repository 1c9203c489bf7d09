package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/s00d/rnode-server/internal/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityHeaders_SetsHardeningHeaders(t *testing.T) {
	var nonce string
	d := router.New(nil, false)
	d.RegisterMiddleware("*", SecurityHeaders())
	require.NoError(t, d.Register(http.MethodGet, "/x", func(req *router.Request, resp *router.Response) {
		nonce = GetCSPNonce(req)
		resp.JSON(map[string]any{})
	}))

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.NotEmpty(t, nonce)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "nonce-"+nonce)
	assert.Equal(t, "no-store, no-cache, must-revalidate, private", rec.Header().Get("Cache-Control"))
}

func TestSecurityHeaders_SkipsCacheControlOnHealthAndVersion(t *testing.T) {
	d := router.New(nil, false)
	d.RegisterMiddleware("*", SecurityHeaders())
	require.NoError(t, d.Register(http.MethodGet, "/health", func(req *router.Request, resp *router.Response) {
		resp.JSON(map[string]any{})
	}))
	require.NoError(t, d.Register(http.MethodGet, "/version", func(req *router.Request, resp *router.Response) {
		resp.JSON(map[string]any{})
	}))

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, rec.Header().Get("Cache-Control"))

	rec = httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestSecurityHeadersRelaxed_AllowsInlineCSP(t *testing.T) {
	d := router.New(nil, false)
	d.RegisterMiddleware("*", SecurityHeadersRelaxed())
	require.NoError(t, d.Register(http.MethodGet, "/x", func(req *router.Request, resp *router.Response) {
		resp.JSON(map[string]any{})
	}))

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "unsafe-inline")
	assert.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
}

func TestGetCSPNonce_EmptyWhenNeverSet(t *testing.T) {
	d := router.New(nil, false)
	var nonce string
	require.NoError(t, d.Register(http.MethodGet, "/x", func(req *router.Request, resp *router.Response) {
		nonce = GetCSPNonce(req)
		resp.JSON(map[string]any{})
	}))
	d.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Empty(t, nonce)
}
