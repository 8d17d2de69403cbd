package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const (
	loginRatePrefix    = "rl:login:"
	localLimiterMaxAge = 5 * time.Minute
	localLimiterPrune  = 10_000
)

// LoginRateLimit limits login attempts per email, or per IP when the body
// has none. Counters live in Redis when available and in process otherwise.
func LoginRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	local := newLocalLimiter(rate.Every(time.Minute/time.Duration(maxPerMin)), maxPerMin)

	return func(c *fiber.Ctx) error {
		key := loginKey(c)
		if cache == nil {
			if !local.allow(key) {
				return tooManyAttempts()
			}
			return c.Next()
		}

		redisKey := loginRatePrefix + key
		cnt, err := cache.Incr(c.UserContext(), redisKey).Result()
		if err != nil {
			// Fail over to the in-process limiter rather than open.
			if !local.allow(key) {
				return tooManyAttempts()
			}
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), redisKey, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return tooManyAttempts()
		}
		return c.Next()
	}
}

func loginKey(c *fiber.Ctx) string {
	var req struct {
		Email string `json:"email"`
	}
	_ = c.BodyParser(&req)
	if email := strings.ToLower(strings.TrimSpace(req.Email)); email != "" {
		return email
	}
	return c.IP()
}

func tooManyAttempts() error {
	return fiber.NewError(http.StatusTooManyRequests, "too many login attempts, try again later")
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// localLimiter is a token bucket per key. Stale buckets are pruned when the
// map grows large instead of by a background goroutine.
type localLimiter struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

func newLocalLimiter(limit rate.Limit, burst int) *localLimiter {
	return &localLimiter{entries: make(map[string]*localEntry), limit: limit, burst: burst, now: time.Now}
}

func (l *localLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if len(l.entries) >= localLimiterPrune {
		for k, e := range l.entries {
			if now.Sub(e.lastSeen) > localLimiterMaxAge {
				delete(l.entries, k)
			}
		}
	}
	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}
