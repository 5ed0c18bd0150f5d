package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// RedactOptions lists what RedactingLogger masks on top of its defaults.
//
// MaskHeaders are header names (case-insensitive) whose values are replaced
// with "[REDACTED]"; Authorization, Cookie and Set-Cookie always are.
// MaskQuery are query parameters whose values are replaced, such as stored
// file names or what a respondent typed in an autocomplete box.
type RedactOptions struct {
	MaskHeaders []string
	MaskQuery   []string
}

// RedactingLogger is Logger with personal data scrubbed from the query,
// user agent, referer and request headers. Respondents' e-mails, phone
// numbers (international and French formats) and UUIDs are replaced by a
// typed marker. Bodies are never logged.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	return accessLog(newRedactor(opts))
}

var (
	// UUIDs go first so the phone patterns cannot eat their digit groups.
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// 06 12 34 56 78, 06.12.34.56.78, +33 6 12 34 56 78
	frPhoneRE = regexp.MustCompile(`(?:\+33[ .-]?|\b0)[1-9](?:[ .-]?\d{2}){4}\b`)
	phoneRE   = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

type redactor struct {
	maskHeaders map[string]struct{}
	maskQuery   map[string]struct{}
}

func newRedactor(opts RedactOptions) *redactor {
	r := &redactor{
		maskHeaders: map[string]struct{}{"authorization": {}, "cookie": {}, "set-cookie": {}},
		maskQuery:   make(map[string]struct{}, len(opts.MaskQuery)),
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			r.maskHeaders[h] = struct{}{}
		}
	}
	for _, q := range opts.MaskQuery {
		if q = strings.TrimSpace(q); q != "" {
			r.maskQuery[q] = struct{}{}
		}
	}
	return r
}

func (r *redactor) text(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	s = frPhoneRE.ReplaceAllString(s, "[REDACTED:phone]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

func (r *redactor) query(raw string) string {
	return r.text(maskQueryValues(raw, r.maskQuery))
}

func (r *redactor) headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := r.maskHeaders[strings.ToLower(k)]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = r.text(strings.Join(vv, ", "))
	}
	return out
}

// maskQueryValues replaces the values of the masked parameters of a raw
// query string, keeping parameter order and encoding untouched.
func maskQueryValues(raw string, masked map[string]struct{}) string {
	if raw == "" || len(masked) == 0 {
		return raw
	}
	parts := strings.Split(raw, "&")
	for i, p := range parts {
		key, _, _ := strings.Cut(p, "=")
		if _, ok := masked[key]; ok {
			parts[i] = key + "=[REDACTED]"
		}
	}
	return strings.Join(parts, "&")
}
