// Package router implements the request dispatcher: pattern-based route
// matching, the middleware chain, and the params bag.
package router

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/s00d/rnode-server/internal/apperrors"
	"github.com/s00d/rnode-server/internal/logger"
	"github.com/s00d/rnode-server/internal/metrics"
)

// Dispatcher owns the route tree and the middleware registry. Both are
// written only at startup and read-only afterwards, so dispatch itself
// takes no lock on them; mu only guards the registration phase.
type Dispatcher struct {
	mu          sync.Mutex
	root        *node
	middlewares []*middlewareEntry
	byGlob      map[string]*middlewareEntry

	metrics *metrics.Metrics
	devMode bool

	NotFound HandlerFunc
}

// New creates an empty Dispatcher. m may be nil to disable metrics
// recording (tests commonly do this).
func New(m *metrics.Metrics, devMode bool) *Dispatcher {
	return &Dispatcher{
		root:    newNode(),
		byGlob:  make(map[string]*middlewareEntry),
		metrics: m,
		devMode: devMode,
	}
}

// Register compiles pattern and adds (method, pattern, handler) to the
// route tree. Returns RegistrationError on a malformed pattern or an
// exact duplicate (method, pattern) registration.
func (d *Dispatcher) Register(method, pattern string, handler HandlerFunc) error {
	segments, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.root.insert(segments, &Route{
		Method:  strings.ToUpper(method),
		Pattern: pattern,
		Handler: handler,
	})
}

// RegisterMiddleware appends callable to the ordered list bound to glob
// ("*" for global, an exact path, or a "prefix/*" glob).
func (d *Dispatcher) RegisterMiddleware(glob string, callable MiddlewareFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.byGlob[glob]
	if !ok {
		entry = &middlewareEntry{glob: glob}
		d.byGlob[glob] = entry
		d.middlewares = append(d.middlewares, entry)
	}
	entry.fns = append(entry.fns, callable)
}

// ServeHTTP adapts Dispatcher to net/http. It never panics and always
// writes exactly one response.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if d.metrics != nil {
		d.metrics.PendingRequests.Inc()
		defer d.metrics.PendingRequests.Dec()
	}

	req, resp := d.dispatch(r)
	resp.flush(w)

	if d.metrics != nil {
		d.metrics.ObserveHTTPRequest(req.Method, req.Path, resp.status, time.Since(start))
	}
}

// dispatch runs route matching, the middleware chain, and the handler,
// recovering from panics and double-write violations so exactly one
// response is always produced.
func (d *Dispatcher) dispatch(r *http.Request) (*Request, *Response) {
	segments := splitPath(r.URL.Path)
	params := make(map[string]string)

	match, ok := d.root.match(segments, 0, params)
	req := newRequest(r, params)
	resp := newResponse()

	if !ok {
		if d.NotFound != nil {
			d.run(d.NotFound, chainFor(d.middlewares, req.Path), req, resp)
			return req, resp
		}
		d.writeError(resp, apperrors.New(apperrors.NotFound, "no matching route"))
		return req, resp
	}

	route, ok := match.routes[req.Method]
	if !ok {
		allowed := match.allowedMethods(segments, len(segments))
		resp.SetHeader("Allow", strings.Join(allowed, ", "))
		d.writeError(resp, apperrors.New(apperrors.MethodNotAllowed, "method not allowed for this route"))
		return req, resp
	}

	chain := chainFor(d.middlewares, req.Path)
	d.run(route.Handler, chain, req, resp)
	return req, resp
}

// chainExec tracks violations (a second call to next from the same
// middleware invocation) across the whole chain for one request.
type chainExec struct {
	doubleNext bool
}

func (d *Dispatcher) run(handler HandlerFunc, chain []MiddlewareFunc, req *Request, resp *Response) {
	exec := &chainExec{}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Router().Error().
				Str("path", req.Path).
				Interface("panic", rec).
				Msg("handler panic recovered")
			resp.reset(0)
			d.writeError(resp, apperrors.Newf(apperrors.HandlerFault, "handler panic: %v", rec))
			return
		}
		if exec.doubleNext || resp.doubleWrite {
			logger.Router().Error().Str("path", req.Path).Msg("double response detected")
			resp.reset(0)
			d.writeError(resp, apperrors.New(apperrors.DoubleResponse, "handler or middleware produced more than one terminal response"))
			return
		}
	}()

	buildNext(chain, 0, handler, req, resp, exec)()
}

func buildNext(chain []MiddlewareFunc, idx int, handler HandlerFunc, req *Request, resp *Response, exec *chainExec) Next {
	called := false
	return func() {
		if called {
			exec.doubleNext = true
			return
		}
		called = true
		if idx >= len(chain) {
			handler(req, resp)
			return
		}
		chain[idx](req, resp, buildNext(chain, idx+1, handler, req, resp, exec))
	}
}

func (d *Dispatcher) writeError(resp *Response, err *apperrors.AppError) {
	resp.Status(err.Kind.HTTPStatus())
	resp.JSON(err.ToBody(d.devMode))
}
