package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/ehr/clinsum/internal/platform/auth"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL drops a caller's limiter after this long without requests.
	// Zero keeps limiters for the life of the process.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		BurstSize:         40,
		IdleTTL:           10 * time.Minute,
	}
}

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// callerLimiters holds one limiter per caller key.
type callerLimiters struct {
	cfg RateLimitConfig
	now func() time.Time

	mu        sync.Mutex
	callers   map[string]*callerLimiter
	lastSweep time.Time
}

func newCallerLimiters(cfg RateLimitConfig) *callerLimiters {
	return &callerLimiters{
		cfg:     cfg,
		now:     time.Now,
		callers: make(map[string]*callerLimiter),
	}
}

// reserve takes a token for key. When none is available it returns how long
// the caller should wait before retrying.
func (l *callerLimiters) reserve(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	l.sweep(now)
	cl, ok := l.callers[key]
	if !ok {
		cl = &callerLimiter{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.BurstSize)}
		l.callers[key] = cl
	}
	cl.lastSeen = now
	l.mu.Unlock()

	r := cl.limiter.ReserveN(now, 1)
	if !r.OK() {
		// A zero rate never refills.
		return false, time.Second
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// sweep drops idle callers, at most once per IdleTTL. l.mu must be held.
func (l *callerLimiters) sweep(now time.Time) {
	if l.cfg.IdleTTL <= 0 || now.Sub(l.lastSweep) < l.cfg.IdleTTL {
		return
	}
	for key, cl := range l.callers {
		if now.Sub(cl.lastSeen) >= l.cfg.IdleTTL {
			delete(l.callers, key)
		}
	}
	l.lastSweep = now
}

func (l *callerLimiters) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.callers)
}

// retryAfterSeconds rounds a wait up to whole seconds, never below one.
func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// rateLimitKey buckets authenticated callers by user and everyone else by
// client IP.
func rateLimitKey(c echo.Context) string {
	if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
		return "user:" + uid
	}
	return "ip:" + c.RealIP()
}

// RateLimit returns a rate limiting middleware. Summary generation may hold
// a model call open for a long time, so callers are throttled individually.
// Health endpoints are never limited.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return rateLimit(newCallerLimiters(cfg))
}

func rateLimit(limiters *callerLimiters) echo.MiddlewareFunc {
	limit := strconv.FormatFloat(limiters.cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if auth.IsPublicPath(c.Request().URL.Path) {
				return next(c)
			}
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)

			ok, wait := limiters.reserve(rateLimitKey(c))
			if !ok {
				h.Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
