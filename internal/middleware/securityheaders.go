package middleware

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/s00d/rnode-server/internal/router"
)

const cspNonceParam = "csp_nonce"

// generateNonce returns a base64-encoded 128-bit CSP nonce, or "" if the
// system RNG is unavailable — callers fall back to a stricter CSP with no
// nonce rather than failing the request.
func generateNonce() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}

// SecurityHeaders adds the standard hardening header set to every
// response: HSTS, nosniff, deny framing, a nonce-scoped CSP, and a few
// legacy headers kept for older clients. The nonce is stashed in the
// request's param bag under "csp_nonce" for handlers that render inline
// script/style tags.
func SecurityHeaders() router.MiddlewareFunc {
	return func(req *router.Request, resp *router.Response, next router.Next) {
		nonce := generateNonce()
		req.SetParam(cspNonceParam, nonce)

		resp.SetHeader("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		resp.SetHeader("X-Content-Type-Options", "nosniff")
		resp.SetHeader("X-Frame-Options", "DENY")
		resp.SetHeader("X-XSS-Protection", "1; mode=block")

		var csp string
		if nonce != "" {
			csp = "default-src 'self'; " +
				"script-src 'self' 'nonce-" + nonce + "'; " +
				"style-src 'self' 'nonce-" + nonce + "'; " +
				"img-src 'self' data: https:; " +
				"font-src 'self' data:; " +
				"connect-src 'self'; " +
				"frame-ancestors 'none'; " +
				"base-uri 'self'; " +
				"form-action 'self'; " +
				"upgrade-insecure-requests"
		} else {
			csp = "default-src 'self'; script-src 'self'; style-src 'self'; " +
				"frame-ancestors 'none'; base-uri 'self'; form-action 'self'"
		}
		resp.SetHeader("Content-Security-Policy", csp)

		resp.SetHeader("Referrer-Policy", "strict-origin-when-cross-origin")
		resp.SetHeader("Permissions-Policy",
			"geolocation=(), microphone=(), camera=(), payment=(), usb=()")
		resp.SetHeader("X-Permitted-Cross-Domain-Policies", "none")
		resp.SetHeader("X-Download-Options", "noopen")
		if req.Path != "/health" && req.Path != "/version" {
			resp.SetHeader("Cache-Control", "no-store, no-cache, must-revalidate, private")
			resp.SetHeader("Pragma", "no-cache")
		}
		resp.SetHeader("Server", "")

		next()
	}
}

// SecurityHeadersRelaxed is a development-only variant: it allows inline
// scripts/styles and same-origin framing, for hot-reload tooling that
// SecurityHeaders' strict CSP would otherwise block. Never use outside
// local development.
func SecurityHeadersRelaxed() router.MiddlewareFunc {
	return func(req *router.Request, resp *router.Response, next router.Next) {
		resp.SetHeader("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		resp.SetHeader("X-Content-Type-Options", "nosniff")
		resp.SetHeader("X-Frame-Options", "SAMEORIGIN")
		resp.SetHeader("X-XSS-Protection", "1; mode=block")
		resp.SetHeader("Content-Security-Policy",
			"default-src 'self' 'unsafe-inline' 'unsafe-eval'; "+
				"img-src 'self' data: https:; connect-src 'self' ws: wss: http: https:")
		resp.SetHeader("Referrer-Policy", "strict-origin-when-cross-origin")
		resp.SetHeader("X-Permitted-Cross-Domain-Policies", "none")
		resp.SetHeader("X-Download-Options", "noopen")
		next()
	}
}

// GetCSPNonce retrieves the nonce SecurityHeaders stashed for this request.
func GetCSPNonce(req *router.Request) string {
	v, ok := req.GetParam(cspNonceParam)
	if !ok {
		return ""
	}
	n, _ := v.(string)
	return n
}
