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

// DefaultLimiterIdleTTL is how long a key's limiter survives without traffic.
const DefaultLimiterIdleTTL = 10 * time.Minute

// RateLimitRule is a token bucket: Rate tokens per second, up to Burst.
// A zero Rate or Burst disables limiting.
type RateLimitRule struct {
	Rate  float64
	Burst int
}

// RateLimiter keeps one rate.Limiter per key. Keys idle for longer than the
// TTL are evicted on a later call.
type RateLimiter struct {
	mu        sync.Mutex
	rule      RateLimitRule
	idleTTL   time.Duration
	now       func() time.Time
	entries   map[string]*limiterEntry
	lastSweep time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter builds a limiter applying rule to every key. A nil now uses
// time.Now; a non-positive idleTTL uses DefaultLimiterIdleTTL.
func NewRateLimiter(rule RateLimitRule, idleTTL time.Duration, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	if idleTTL <= 0 {
		idleTTL = DefaultLimiterIdleTTL
	}
	return &RateLimiter{
		rule:      rule,
		idleTTL:   idleTTL,
		now:       now,
		entries:   make(map[string]*limiterEntry),
		lastSweep: now(),
	}
}

// Allow takes one token for key. When none is available it returns false and
// the wait until the next token.
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	if l == nil || l.rule.Rate <= 0 || l.rule.Burst <= 0 {
		return true, 0
	}
	now := l.now()

	l.mu.Lock()
	l.sweep(now)
	entry, ok := l.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(l.rule.Rate), l.rule.Burst)}
		l.entries[key] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()

	res := entry.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Len reports how many keys currently hold a limiter.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// sweep must be called with mu held.
func (l *RateLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleTTL {
		return
	}
	for key, entry := range l.entries {
		if now.Sub(entry.lastSeen) >= l.idleTTL {
			delete(l.entries, key)
		}
	}
	l.lastSweep = now
}

// RateLimit throttles requests per tenant (or client IP when no tenant is
// known).
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := strings.TrimSpace(TenantIDFromContext(c))
		if principal == "" {
			principal = strings.TrimSpace(c.ClientIP())
		}
		allowed, retryAfter := limiter.Allow(principal)
		if allowed {
			c.Next()
			return
		}
		retryAfterMs := int(math.Ceil(float64(retryAfter) / float64(time.Millisecond)))
		if retryAfterMs <= 0 {
			retryAfterMs = 1000
		}
		retryAfterSeconds := int(math.Ceil(float64(retryAfterMs) / 1000.0))
		if retryAfterSeconds <= 0 {
			retryAfterSeconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":        "rate_limited",
			"retryAfterMs": retryAfterMs,
		})
		c.Abort()
	}
}
