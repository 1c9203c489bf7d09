package router

// HandlerFunc is a registered handler. The Dispatcher guarantees it is
// only ever called with exclusive write access to resp for the duration
// of the call.
type HandlerFunc func(req *Request, resp *Response)

// Next invokes the remainder of the middleware chain (and, at the end of
// the chain, the handler). Calling it more than once from the same
// middleware invocation is a programming error the Dispatcher detects and
// converts into a DoubleResponse.
type Next func()

// MiddlewareFunc receives the request, the in-progress response, and a
// token to continue the chain. It may mutate req/resp and call next, call
// next and then mutate resp afterwards, or not call next at all (short-
// circuiting the chain).
type MiddlewareFunc func(req *Request, resp *Response, next Next)

// Route is the compiled (method, pattern, handler) tuple. handler is a
// direct function reference rather than a string handler-id: Go's type
// system has no need for the late-binding indirection a dynamically typed
// host would require to reach a cross-runtime handler. The HandlerBridge
// supplies a HandlerFunc closure that performs the ticketed round trip,
// and the Router has no knowledge that the call crosses a runtime
// boundary at all — see DESIGN.md.
type Route struct {
	Method  string
	Pattern string
	Handler HandlerFunc
}
