package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/s00d/rnode-server/internal/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	var seen string
	d := router.New(nil, false)
	d.RegisterMiddleware("*", RequestID())
	require.NoError(t, d.Register(http.MethodGet, "/x", func(req *router.Request, resp *router.Response) {
		seen = GetRequestID(req)
		resp.JSON(map[string]any{"id": seen})
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

func TestRequestID_ForwardsIncoming(t *testing.T) {
	var seen string
	d := router.New(nil, false)
	d.RegisterMiddleware("*", RequestID())
	require.NoError(t, d.Register(http.MethodGet, "/x", func(req *router.Request, resp *router.Response) {
		seen = GetRequestID(req)
		resp.JSON(map[string]any{})
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "caller-supplied-id")
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	assert.Equal(t, "caller-supplied-id", seen)
	assert.Equal(t, "caller-supplied-id", rec.Header().Get(RequestIDHeader))
}

func TestGetRequestID_EmptyWhenNeverSet(t *testing.T) {
	d := router.New(nil, false)
	var seen string
	require.NoError(t, d.Register(http.MethodGet, "/x", func(req *router.Request, resp *router.Response) {
		seen = GetRequestID(req)
		resp.JSON(map[string]any{})
	}))
	d.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Empty(t, seen)
}
