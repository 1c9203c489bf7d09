package middleware

import (
	"github.com/google/uuid"

	"github.com/s00d/rnode-server/internal/router"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDParam  = "request_id"
)

// RequestID generates or forwards a correlation id, storing it in the
// request's param bag for downstream middleware (StructuredLogger) and
// echoing it back on the response.
func RequestID() router.MiddlewareFunc {
	return func(req *router.Request, resp *router.Response, next router.Next) {
		id := req.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		req.SetParam(requestIDParam, id)
		resp.SetHeader(RequestIDHeader, id)
		next()
	}
}

// GetRequestID retrieves the id set by RequestID, if any.
func GetRequestID(req *router.Request) string {
	v, ok := req.GetParam(requestIDParam)
	if !ok {
		return ""
	}
	id, _ := v.(string)
	return id
}
