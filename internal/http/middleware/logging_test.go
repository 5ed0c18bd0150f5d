package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// captureLogger swaps the global logger for a JSON buffer at trace level.
func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	log.Logger = zerolog.New(&buf)
	return &buf
}

// logLines decodes the captured JSON lines.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

// accessLine returns the access log line for path.
func accessLine(t *testing.T, buf *bytes.Buffer, path string) map[string]any {
	t.Helper()
	for _, m := range logLines(t, buf) {
		if m["message"] == "request" && m["path"] == path {
			return m
		}
	}
	t.Fatalf("no access line for %s in:\n%s", path, buf.String())
	return nil
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/rid", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFrom(c)) })

	cases := []struct {
		name, in string
		keep     bool
	}{
		{"absent", "", false},
		{"propagated", "abc-123", true},
		{"trace style", "req_01:edge.7", true},
		{"spaces", "not valid", false},
		{"header injection", "a\r\nX-Evil: 1", false},
		{"too long", strings.Repeat("a", maxRequestIDLen+1), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/rid", nil)
			if tc.in != "" {
				req.Header.Set(requestIDHeader, tc.in)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(requestIDHeader)
			if got == "" || got != w.Body.String() {
				t.Fatalf("header %q, context %q", got, w.Body.String())
			}
			if tc.keep != (got == tc.in) {
				t.Fatalf("in %q -> %q (keep=%v)", tc.in, got, tc.keep)
			}
		})
	}
}

func TestLogger_Levels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger())
	r.GET("/forms/:id", func(c *gin.Context) { c.String(http.StatusOK, "form") })
	r.GET("/cached", func(c *gin.Context) { c.Status(http.StatusNotModified) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/broken", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
		c.Status(http.StatusBadRequest)
	})
	r.GET("/down", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })

	for _, p := range []string{"/forms/42?page=2", "/cached", "/health", "/broken", "/down", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	want := map[string]string{
		"/forms/:id": "info",
		"/cached":    "debug",
		"/health":    "debug",
		"/broken":    "error",
		"/down":      "error",
		"/missing":   "warn",
	}
	for path, level := range want {
		if got := accessLine(t, buf, path)["level"]; got != level {
			t.Errorf("%s logged at %v, want %s", path, got, level)
		}
	}

	line := accessLine(t, buf, "/forms/:id")
	if line["query"] != "page=2" || line["status"] != float64(200) || line["request_id"] == "" {
		t.Fatalf("unexpected access line: %v", line)
	}
	if accessLine(t, buf, "/broken")["errors"] == nil {
		t.Fatalf("gin errors missing")
	}
}

func TestLogger_Annotations(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger())
	r.POST("/public/forms/:idOrAlias/responses", func(c *gin.Context) {
		Annotate(c, "form_id", "f-1")
		Annotate(c, "response_id", "r-9")
		Annotate(c, "replayed", "true")
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/public/forms/sortie/responses", nil))

	line := accessLine(t, buf, "/public/forms/:idOrAlias/responses")
	if line["form_id"] != "f-1" || line["response_id"] != "r-9" || line["replayed"] != "true" {
		t.Fatalf("annotations missing: %v", line)
	}
}

func TestLoggerFrom(t *testing.T) {
	gin.SetMode(gin.TestMode)

	buf := captureLogger(t)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/use", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("fallback")
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/use", nil))
	if !strings.Contains(buf.String(), `"message":"fallback"`) || strings.Contains(buf.String(), `"request_id"`) {
		t.Fatalf("fallback logger output: %s", buf.String())
	}

	buf = captureLogger(t)
	r = gin.New()
	r.Use(RequestID(), Logger())
	r.GET("/use", func(c *gin.Context) {
		LoggerFrom(c).Info().Str("form_id", "f-1").Msg("scoped")
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/use", nil)
	req.Header.Set(requestIDHeader, "rid-scoped")
	r.ServeHTTP(httptest.NewRecorder(), req)
	for _, m := range logLines(t, buf) {
		if m["message"] == "scoped" {
			if m["request_id"] != "rid-scoped" || m["path"] != "/use" {
				t.Fatalf("scoped logger fields: %v", m)
			}
			return
		}
	}
	t.Fatalf("scoped line missing: %s", buf.String())
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger(), Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })
	r.GET("/late", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("late kaboom")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(requestIDHeader, "rid-panic")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body["code"] != "internal_error" || body["request_id"] != "rid-panic" {
		t.Fatalf("unexpected body: %v", body)
	}

	var panicLine map[string]any
	for _, m := range logLines(t, buf) {
		if m["message"] == "panic recovered" {
			panicLine = m
		}
	}
	if panicLine == nil || panicLine["request_id"] != "rid-panic" || panicLine["stack"] == nil {
		t.Fatalf("panic log: %v", panicLine)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/late", nil))
	if strings.Contains(w.Body.String(), "internal_error") {
		t.Fatalf("envelope written after partial body: %q", w.Body.String())
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"abcdefgh", 5, "abcde…"},
		{"abc", 0, "abc"},
		{"été", 2, "é…"},
		{"été", 1, "…"},
	}
	for _, tc := range cases {
		if got := truncate(tc.in, tc.max); got != tc.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}
