package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, d *Dispatcher, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	d.ServeHTTP(rec, req)
	return rec
}

// Scenario 1 from the spec: GET /hello returns a JSON body.
func TestDispatcher_HelloWorld(t *testing.T) {
	d := New(nil, false)
	require.NoError(t, d.Register("GET", "/hello", func(req *Request, resp *Response) {
		resp.JSON(map[string]any{"message": "Hello World!"})
	}))

	rec := doRequest(t, d, "GET", "/hello")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"Hello World!"}`, rec.Body.String())
}

// Scenario 2 from the spec: global middleware sets a per-request param,
// distinct across requests.
func TestDispatcher_MiddlewareParamsBag(t *testing.T) {
	d := New(nil, false)
	d.RegisterMiddleware("*", func(req *Request, resp *Response, next Next) {
		req.SetParam("timestamp", time.Now().UnixNano())
		next()
	})
	require.NoError(t, d.Register("GET", "/t", func(req *Request, resp *Response) {
		ts, _ := req.GetParam("timestamp")
		resp.JSON(map[string]any{"ts": ts})
	}))

	rec1 := doRequest(t, d, "GET", "/t")
	rec2 := doRequest(t, d, "GET", "/t")

	var body1, body2 struct{ Ts int64 }
	require.NoError(t, json.Unmarshal(rec1.Body.Bytes(), &body1))
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &body2))
	assert.NotZero(t, body1.Ts)
	assert.NotZero(t, body2.Ts)
	assert.NotEqual(t, body1.Ts, body2.Ts)
}

func TestDispatcher_NotFound(t *testing.T) {
	d := New(nil, false)
	rec := doRequest(t, d, "GET", "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDispatcher_MethodNotAllowedSetsAllowHeader(t *testing.T) {
	d := New(nil, false)
	require.NoError(t, d.Register("GET", "/a", func(req *Request, resp *Response) { resp.String("ok") }))
	require.NoError(t, d.Register("POST", "/a", func(req *Request, resp *Response) { resp.String("ok") }))

	rec := doRequest(t, d, "DELETE", "/a")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	allow := rec.Header().Get("Allow")
	assert.Contains(t, allow, "GET")
	assert.Contains(t, allow, "POST")
}

func TestDispatcher_RegisterConflict(t *testing.T) {
	d := New(nil, false)
	require.NoError(t, d.Register("GET", "/a", func(req *Request, resp *Response) {}))
	err := d.Register("GET", "/a", func(req *Request, resp *Response) {})
	assert.Error(t, err)
}

func TestDispatcher_InvalidPattern(t *testing.T) {
	d := New(nil, false)
	err := d.Register("GET", "/a/{}", func(req *Request, resp *Response) {})
	assert.Error(t, err)
}

func TestDispatcher_MiddlewareShortCircuit(t *testing.T) {
	d := New(nil, false)
	handlerCalled := false
	d.RegisterMiddleware("*", func(req *Request, resp *Response, next Next) {
		resp.Status(403).JSON(map[string]any{"success": false})
	})
	require.NoError(t, d.Register("GET", "/a", func(req *Request, resp *Response) {
		handlerCalled = true
		resp.String("ok")
	}))

	rec := doRequest(t, d, "GET", "/a")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, handlerCalled)
}

// Middleware ordering: globals first, then matching prefixes shortest to
// longest, in registration order within each tier.
func TestDispatcher_MiddlewareOrdering(t *testing.T) {
	d := New(nil, false)
	var order []string
	record := func(name string) MiddlewareFunc {
		return func(req *Request, resp *Response, next Next) {
			order = append(order, name)
			next()
		}
	}
	d.RegisterMiddleware("*", record("global1"))
	d.RegisterMiddleware("/api/v1/*", record("long-prefix"))
	d.RegisterMiddleware("/api/*", record("short-prefix"))
	d.RegisterMiddleware("*", record("global2"))

	require.NoError(t, d.Register("GET", "/api/v1/x", func(req *Request, resp *Response) {
		resp.String("ok")
	}))

	doRequest(t, d, "GET", "/api/v1/x")
	assert.Equal(t, []string{"global1", "global2", "short-prefix", "long-prefix"}, order)
}

func TestDispatcher_HandlerPanicRecovered(t *testing.T) {
	d := New(nil, false)
	require.NoError(t, d.Register("GET", "/boom", func(req *Request, resp *Response) {
		panic("kaboom")
	}))

	rec := doRequest(t, d, "GET", "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDispatcher_DoubleResponseFromHandler(t *testing.T) {
	d := New(nil, false)
	require.NoError(t, d.Register("GET", "/dbl", func(req *Request, resp *Response) {
		resp.String("first")
		resp.String("second")
	}))

	rec := doRequest(t, d, "GET", "/dbl")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDispatcher_DoubleNextCall(t *testing.T) {
	d := New(nil, false)
	d.RegisterMiddleware("*", func(req *Request, resp *Response, next Next) {
		next()
		next()
	})
	require.NoError(t, d.Register("GET", "/x", func(req *Request, resp *Response) {
		resp.String("ok")
	}))

	rec := doRequest(t, d, "GET", "/x")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDispatcher_PathCapture(t *testing.T) {
	d := New(nil, false)
	require.NoError(t, d.Register("GET", "/users/{id}", func(req *Request, resp *Response) {
		resp.JSON(map[string]any{"id": req.Param("id")})
	}))

	rec := doRequest(t, d, "GET", "/users/42")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"42"}`, rec.Body.String())
}

func TestDispatcher_WildcardCapture(t *testing.T) {
	d := New(nil, false)
	require.NoError(t, d.Register("GET", "/files/{*path}", func(req *Request, resp *Response) {
		resp.JSON(map[string]any{"path": req.Param("path")})
	}))

	rec := doRequest(t, d, "GET", "/files/a/b/c.txt")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"path":"a/b/c.txt"}`, rec.Body.String())
}
