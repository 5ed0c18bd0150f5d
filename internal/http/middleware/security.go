package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
//
// HSTS is only sent on HTTPS requests (TLS or X-Forwarded-Proto: https) and
// should stay off unless the proxy-to-app hop is HTTPS too. HSTSMaxAge
// defaults to 180 days. EnablePolicy adds Permissions-Policy and
// X-Permitted-Cross-Domain-Policies.
type SecurityOptions struct {
	EnableHSTS   bool
	HSTSMaxAge   time.Duration
	EnablePolicy bool
}

const (
	defaultHSTSMaxAge = 180 * 24 * time.Hour
	// sandboxPolicy neutralizes active content in served uploads.
	sandboxPolicy = "default-src 'none'; sandbox"

	// CachePrivate lets a browser keep back-office data but revalidate it
	// (ETag / If-None-Match) on every use.
	CachePrivate = "private, no-cache"
	// CacheNone forbids storing the response at all (credentials, tokens).
	CacheNone = "no-store"
)

// SecurityHeaders sets the headers every API response carries:
// nosniff, frame denial and no referrer, plus the optional policy and HSTS
// headers.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.Itoa(int(maxAge.Seconds())) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		c.Next()
	}
}

// CacheControl sets Cache-Control on every response of a route group.
// With CacheNone the legacy Pragma and Expires headers are added as well.
func CacheControl(directive string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Cache-Control", directive)
		if directive == CacheNone {
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}
		c.Next()
	}
}

// SandboxUploads applies a CSP sandbox to routes serving stored uploads, so
// an HTML or SVG answer opened in a browser cannot run script.
func SandboxUploads() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Security-Policy", sandboxPolicy)
		c.Next()
	}
}

// isHTTPS reports whether the request came in over HTTPS, directly or via a
// proxy that set X-Forwarded-Proto.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
