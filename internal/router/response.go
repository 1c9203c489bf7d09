package router

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"sync"
)

// Response is the mutable builder paired 1:1 with a Request. Exactly one
// terminal write (JSON/String/Bytes/Stream) is expected per request; a
// second attempt is recorded as a double-write rather than silently
// clobbering the first, so the Dispatcher can turn it into a
// DoubleResponse.
type Response struct {
	mu sync.Mutex

	status      int
	header      http.Header
	body        []byte
	stream      io.Reader
	streamCT    string
	written     bool
	bodyStarted bool
	doubleWrite bool
}

func newResponse() *Response {
	return &Response{
		status: http.StatusOK,
		header: make(http.Header),
	}
}

// Status sets the status code. Calling it after the body write has begun
// has no effect, matching the "headers cannot be mutated after the body
// write begins" invariant.
func (resp *Response) Status(code int) *Response {
	resp.mu.Lock()
	defer resp.mu.Unlock()
	if resp.bodyStarted {
		return resp
	}
	resp.status = code
	return resp
}

// SetHeader sets a response header. Ignored once the body write has begun.
func (resp *Response) SetHeader(key, value string) *Response {
	resp.mu.Lock()
	defer resp.mu.Unlock()
	if resp.bodyStarted {
		return resp
	}
	resp.header.Set(key, value)
	return resp
}

// JSON marshals v and writes it as the terminal response body with
// content-type application/json.
func (resp *Response) JSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte(`{"success":false,"error":"json encode failed"}`)
	}
	resp.writeTerminal(b, "application/json")
}

// String writes s as the terminal response body with content-type
// text/plain.
func (resp *Response) String(s string) {
	resp.writeTerminal([]byte(s), "text/plain; charset=utf-8")
}

// Bytes writes b as the terminal response body, with caller-supplied
// content-type.
func (resp *Response) Bytes(b []byte, contentType string) {
	resp.writeTerminal(b, contentType)
}

// Stream marks the response as terminal and backed by a reader streamed
// directly to the client, e.g. for static file or download handlers.
func (resp *Response) Stream(r io.Reader, contentType string) {
	resp.mu.Lock()
	defer resp.mu.Unlock()
	if resp.written {
		resp.doubleWrite = true
		return
	}
	resp.written = true
	resp.bodyStarted = true
	resp.stream = r
	resp.streamCT = contentType
}

func (resp *Response) writeTerminal(body []byte, contentType string) {
	resp.mu.Lock()
	defer resp.mu.Unlock()
	if resp.written {
		resp.doubleWrite = true
		return
	}
	resp.written = true
	resp.bodyStarted = true
	resp.body = body
	if resp.header.Get("Content-Type") == "" {
		resp.header.Set("Content-Type", contentType)
	}
}

// CompressGzip gzips the buffered body in place at the given level and sets
// Content-Encoding, for use by a trailing compression middleware once the
// rest of the chain has produced a final body. Streamed responses (no
// buffered body) are left untouched since the whole point of Stream is to
// avoid buffering.
func (resp *Response) CompressGzip(level int) bool {
	resp.mu.Lock()
	defer resp.mu.Unlock()
	if resp.stream != nil || resp.body == nil {
		return false
	}
	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return false
	}
	if _, err := gz.Write(resp.body); err != nil {
		return false
	}
	if err := gz.Close(); err != nil {
		return false
	}
	resp.body = buf.Bytes()
	resp.header.Set("Content-Encoding", "gzip")
	resp.header.Add("Vary", "Accept-Encoding")
	return true
}

// StatusCode returns the status code as it currently stands, for use by
// logging/metrics middleware that runs after the rest of the chain.
func (resp *Response) StatusCode() int {
	resp.mu.Lock()
	defer resp.mu.Unlock()
	return resp.status
}

// IsWritten reports whether a terminal write has already occurred.
func (resp *Response) IsWritten() bool {
	resp.mu.Lock()
	defer resp.mu.Unlock()
	return resp.written
}

// reset discards any terminal write so the Dispatcher can overwrite the
// response with a synthesised error (DoubleResponse, or HandlerFault after
// a recovered panic).
func (resp *Response) reset(status int) {
	resp.mu.Lock()
	defer resp.mu.Unlock()
	resp.status = status
	resp.header = make(http.Header)
	resp.body = nil
	resp.stream = nil
	resp.written = false
	resp.bodyStarted = false
	resp.doubleWrite = false
}

func (resp *Response) flush(w http.ResponseWriter) {
	resp.mu.Lock()
	defer resp.mu.Unlock()
	for k, vv := range resp.header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.status)
	if resp.stream != nil {
		_, _ = io.Copy(w, resp.stream)
		return
	}
	if resp.body != nil {
		_, _ = w.Write(resp.body)
	}
}
