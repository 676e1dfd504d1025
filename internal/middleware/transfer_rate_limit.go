package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// TransferRateLimit throttles money-moving requests per authenticated user with
// a token bucket refilled at perMinute tokens per minute. Limiters idle for
// longer than idleTTL are dropped.
func TransferRateLimit(perMinute int, idleTTL time.Duration) fiber.Handler {
	if perMinute <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	limiters := &userLimiters{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		idleTTL: idleTTL,
		entries: make(map[string]*limiterEntry),
	}
	return func(c *fiber.Ctx) error {
		user, _ := c.Locals("user_id").(string)
		if user == "" {
			user = c.IP()
		}
		if !limiters.get(user, time.Now()).Allow() {
			return fiber.NewError(http.StatusTooManyRequests, "too many transfer requests, try again later")
		}
		return c.Next()
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type userLimiters struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	entries   map[string]*limiterEntry
}

func (u *userLimiters) get(user string, now time.Time) *rate.Limiter {
	u.mu.Lock()
	defer u.mu.Unlock()

	if now.Sub(u.lastSweep) > u.idleTTL {
		for key, entry := range u.entries {
			if now.Sub(entry.lastSeen) > u.idleTTL {
				delete(u.entries, key)
			}
		}
		u.lastSweep = now
	}

	entry, ok := u.entries[user]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(u.limit, u.burst)}
		u.entries[user] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}
