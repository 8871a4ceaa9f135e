// ratelimit.go provides Gin middleware that enforces per-client rate limits on
// the admin API, returning 429 responses when the configured requests-per-hour
// budget is exceeded. When Redis is configured the limit is enforced
// cluster-wide through redis_rate's sliding window; otherwise a per-process
// token bucket approximates it.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// Limiter answers whether one more request from key fits in the budget.
// remaining is a best-effort hint for the X-RateLimit-Remaining header.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int, err error)
}

// RedisLimiter enforces a shared per-hour budget across all gateway instances.
type RedisLimiter struct {
	limiter *redis_rate.Limiter
	perHour int
}

// NewRedisLimiter creates a cluster-wide limiter on the given client.
func NewRedisLimiter(client *redis.Client, requestsPerHour int) *RedisLimiter {
	return &RedisLimiter{
		limiter: redis_rate.NewLimiter(client),
		perHour: requestsPerHour,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	res, err := l.limiter.Allow(ctx, "ratelimit:"+key, redis_rate.PerHour(l.perHour))
	if err != nil {
		return false, 0, err
	}
	return res.Allowed > 0, res.Remaining, nil
}

// LocalLimiter is the single-process fallback: a token bucket refilled at the
// hourly rate, with stale buckets evicted opportunistically.
type LocalLimiter struct {
	perHour float64
	burst   float64

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// NewLocalLimiter creates an in-process limiter with the given hourly budget.
func NewLocalLimiter(requestsPerHour int) *LocalLimiter {
	burst := float64(requestsPerHour) / 60
	if burst < 10 {
		burst = 10
	}
	return &LocalLimiter{
		perHour: float64(requestsPerHour),
		burst:   burst,
		buckets: make(map[string]*bucket),
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	// Evict buckets idle long enough to have fully refilled.
	if len(l.buckets) > 10000 {
		for k, b := range l.buckets {
			if now.Sub(b.lastUpdate) > time.Hour {
				delete(l.buckets, k)
			}
		}
	}

	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: l.burst - 1, lastUpdate: now}
		return true, int(l.burst - 1), nil
	}

	refill := now.Sub(b.lastUpdate).Hours() * l.perHour
	b.tokens = min(l.burst, b.tokens+refill)
	b.lastUpdate = now

	if b.tokens < 1 {
		return false, 0, nil
	}
	b.tokens--
	return true, int(b.tokens), nil
}

// RateLimitMiddleware creates a Gin middleware that rate limits requests.
// Limiter errors (e.g. Redis unavailable) fail open: blocking the admin API on
// a cache outage would be worse than briefly losing the limit.
func RateLimitMiddleware(limiter Limiter, requestsPerHour int) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rateLimitKey(c)

		allowed, remaining, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(requestsPerHour))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": 60,
			})
			return
		}

		c.Next()
	}
}

// rateLimitKey buckets by authenticated client when known, source IP otherwise.
func rateLimitKey(c *gin.Context) string {
	if name, exists := c.Get(ClientNameKey); exists {
		if s, ok := name.(string); ok && s != "" {
			return "client:" + s
		}
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
