package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc maps a request to the identity its bucket is kept under.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys buckets by back-office user when authenticated and by
// client IP otherwise ("user:<id>" / "ip:<addr>"), the same scopes
// idempotency keys are stored under.
func KeyByUserOrIP() keyFunc {
	return IdempotencyScope
}

// idleBucketTTL is how long an unused bucket is kept.
const idleBucketTTL = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a process-local token bucket per caller. A request takes
// Cost(method) tokens: an answer with uploads can be made to weigh more than
// a read of the public form. Idempotent replays are free.
//
// Buckets idle for longer than ten minutes are dropped by a sweep that runs
// at most once per TTL, during lookups.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc
	costs map[string]int

	mu        sync.Mutex
	buckets   map[string]*bucket
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter returns a limiter refilling rps tokens per second up to
// burst (at least 1).
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		costs:   map[string]int{},
		buckets: make(map[string]*bucket),
		ttl:     idleBucketTTL,
		now:     time.Now,
	}
}

// WithCosts sets the token cost per HTTP method (case-insensitive).
// Unlisted methods and non-positive costs take one token; costs above the
// burst are capped so the request stays possible.
func (rl *RateLimiter) WithCosts(costs map[string]int) *RateLimiter {
	for m, n := range costs {
		if n <= 0 {
			continue
		}
		rl.costs[strings.ToUpper(m)] = min(n, rl.burst)
	}
	return rl
}

// Cost returns the tokens a request with method takes.
func (rl *RateLimiter) Cost(method string) int {
	if n, ok := rl.costs[strings.ToUpper(method)]; ok {
		return n
	}
	return 1
}

// limiter returns the bucket of key, creating it if needed. The sweep runs
// before the lookup so a stale bucket is replaced, not refreshed.
func (rl *RateLimiter) limiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.ttl {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.ttl {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// size reports the number of live buckets.
func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// IsRateBypass reports whether IdempotencyValidator recognised the request
// as a replay, which the limiter lets through for free.
func IsRateBypass(c *gin.Context) bool {
	return c.GetBool(ctxKeyRateBypass)
}

// Handler enforces the limits. Refused requests get 429 with the error
// envelope and a Retry-After, in whole seconds, of when enough tokens will
// have been refilled.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		now := rl.now()
		lim := rl.limiter(rl.keyFn(c), now)
		cost := rl.Cost(c.Request.Method)

		res := lim.ReserveN(now, cost)
		if res.OK() && res.DelayFrom(now) == 0 {
			c.Next()
			return
		}
		wait := time.Second
		if res.OK() {
			wait = res.DelayFrom(now)
			res.CancelAt(now)
		}
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		abort(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
	}
}
