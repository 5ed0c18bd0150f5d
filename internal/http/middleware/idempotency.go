package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's key for a submission. Retrying
// an answer with the same key returns the stored response instead of
// recording a second one.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	defaultIdemMaxLen = 200
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~:-]+$`)

// GetIdempotencyKey returns the key validated by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemKey)
	return s, s != ""
}

// IsReplay reports whether a stored response already exists for the
// request's key, caller scope and form.
func IsReplay(c *gin.Context) bool {
	return c.GetBool(ctxKeyIdemReplay)
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length; <= 0 means 200.
	MaxLen int
	// Pattern restricts the key alphabet; nil means ^[A-Za-z0-9._~:-]+$.
	Pattern *regexp.Regexp
	// Params are the route parameters tried, in order, to find the form the
	// answer targets. Defaults to "idOrAlias" then "id".
	Params []string
}

// IdempotencyLookup reports whether a still-valid response is stored for
// (scope, form, key). form is the raw route value and may be an alias; the
// TTL window is the lookup's business.
type IdempotencyLookup func(ctx context.Context, scope, form, key string, now time.Time) (bool, error)

// IdempotencyValidator checks the Idempotency-Key of unsafe requests and
// stashes it for handlers. An invalid key is answered with 400
// bad_idempotency_key. When lookup finds a stored response the request is
// flagged as a replay, which also exempts it from rate limiting; serving the
// stored response stays the handler's job. Lookup errors are logged and
// the request proceeds as a first attempt.
//
// Safe methods ignore the header.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}
	params := opts.Params
	if len(params) == 0 {
		params = []string{"idOrAlias", "id"}
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || safeMethod(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abort(c, http.StatusBadRequest, "bad_idempotency_key", "invalid Idempotency-Key")
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if form := firstParam(c, params); lookup != nil && form != "" {
			found, err := lookup(c.Request.Context(), IdempotencyScope(c), form, key, time.Now().UTC())
			switch {
			case err != nil:
				LoggerFrom(c).Warn().Err(err).Str("form", form).Msg("idempotency lookup failed")
			case found:
				idemReplays.Inc()
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

func safeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}

func firstParam(c *gin.Context, names []string) string {
	for _, n := range names {
		if v := c.Param(n); v != "" {
			return v
		}
	}
	return ""
}

// IdempotencyScope identifies whom a key belongs to: "user:<id>" when a
// back-office user is authenticated, "ip:<addr>" otherwise. Handlers store
// keys under the scope the validator looks them up with.
func IdempotencyScope(c *gin.Context) string {
	if id := UserID(c); id != "" {
		return "user:" + id
	}
	return "ip:" + c.ClientIP()
}
