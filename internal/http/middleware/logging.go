// Package middleware holds the Gin middleware shared by the forms API:
// correlation IDs, access logs, panic recovery, authentication, rate and
// body limits, idempotency, partner allow lists and security headers.
//
// The access log is one JSON line per request. Handlers enrich it with
// Annotate (form_id, response_id, replayed...) and log their own events
// through LoggerFrom so every line carries the request_id.
//
// Order in the router: RequestID, then Logger or RedactingLogger, then
// Recovery, so panics are logged with the correlation ID.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey   = "requestID"
	loggerKey      = "logger"
	annotationsKey = "logAnnotations"

	requestIDHeader = "X-Request-ID"
	// maxRequestIDLen bounds inbound correlation IDs.
	maxRequestIDLen = 128
	// maxQueryLogLength caps the bytes of raw query logged per request.
	maxQueryLogLength = 2048
)

// probePaths are logged at debug level when they succeed.
var probePaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// RequestID propagates the caller's X-Request-ID when it is well formed
// (1-128 characters among letters, digits and "._:-") and mints a UUID
// otherwise. The ID is echoed in the response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !validRequestID(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

func validRequestID(s string) bool {
	if s == "" || len(s) > maxRequestIDLen {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == ':' || r == '-':
		default:
			return false
		}
	}
	return true
}

// RequestIDFrom returns the correlation ID set by RequestID, or "".
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

type annotation struct{ key, value string }

// Annotate adds key=value to the access log line of the current request.
// Later values for the same key are appended, not merged.
func Annotate(c *gin.Context, key, value string) {
	var list []annotation
	if v, ok := c.Get(annotationsKey); ok {
		list, _ = v.([]annotation)
	}
	c.Set(annotationsKey, append(list, annotation{key, value}))
}

func annotations(c *gin.Context) []annotation {
	v, _ := c.Get(annotationsKey)
	list, _ := v.([]annotation)
	return list
}

// Logger writes a structured access log line per request and stores a
// request-scoped logger for LoggerFrom.
func Logger() gin.HandlerFunc {
	return accessLog(nil)
}

// accessLog is shared by Logger and RedactingLogger; a nil redactor logs
// values as received.
func accessLog(red *redactor) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := routeOf(c)

		l := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP()).
			Logger()
		c.Set(loggerKey, &l)

		query, ua, referer := c.Request.URL.RawQuery, c.Request.UserAgent(), c.Request.Referer()
		var headers map[string]string
		if red != nil {
			query, ua, referer = red.query(query), red.text(ua), red.text(referer)
			headers = red.headers(c.Request.Header)
		}

		c.Next()

		status := c.Writer.Status()
		ev := l.WithLevel(accessLevel(status, len(c.Errors), path)).
			Str("query", truncate(query, maxQueryLogLength)).
			Str("user_agent", ua).
			Str("referer", referer).
			Int64("bytes_in", c.Request.ContentLength).
			Str("user_id", UserID(c)).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Int("bytes_out", c.Writer.Size())
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		if headers != nil {
			ev = ev.Interface("headers", headers)
		}
		for _, a := range annotations(c) {
			ev = ev.Str(a.key, a.value)
		}
		ev.Msg("request")
	}
}

// accessLevel maps an outcome to a severity: error for 5xx or recorded gin
// errors, warn for 4xx, debug for 304 revalidations and probes, info
// otherwise.
func accessLevel(status, errs int, path string) zerolog.Level {
	switch {
	case errs > 0 || status >= http.StatusInternalServerError:
		return zerolog.ErrorLevel
	case status >= http.StatusBadRequest:
		return zerolog.WarnLevel
	case status == http.StatusNotModified:
		return zerolog.DebugLevel
	}
	if _, ok := probePaths[path]; ok {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// routeOf returns the matched route template, or the raw path on 404.
func routeOf(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

// Recovery turns panics into the JSON 500 envelope and logs the stack with
// the request-scoped logger. When the response has already started only the
// status is set.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := RequestIDFrom(c)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or a copy of the global
// logger when no access log middleware ran.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// truncate cuts s to at most max bytes on a rune boundary and appends an
// ellipsis. max <= 0 disables truncation.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
