package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/FlyAIBox/tripflow/internal/log"
)

// DefaultRateLimitPerMinute is the per-client request budget when the
// limiter is enabled without an explicit limit.
const DefaultRateLimitPerMinute = 60

const rateWindowLayout = "200601021504"

// RateLimiterConfig is the configuration for the Redis backed rate limiter.
type RateLimiterConfig struct {
	Client *redis.Client
	// PerMinute is the number of requests allowed per client and minute.
	PerMinute int
	Logger    log.Logger
}

func (c *RateLimiterConfig) defaults() error {
	if c.Client == nil {
		return fmt.Errorf("redis client is required")
	}
	if c.PerMinute <= 0 {
		c.PerMinute = DefaultRateLimitPerMinute
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "server.RateLimiter"})
	return nil
}

// RateLimiter limits requests per client IP using a fixed one minute
// window counter in Redis. All requests inside the same minute share a
// window key, incremented atomically and expired after the window closes.
type RateLimiter struct {
	client    *redis.Client
	perMinute int
	logger    log.Logger
}

// NewRateLimiter creates a Redis backed fixed window rate limiter.
func NewRateLimiter(cfg RateLimiterConfig) (*RateLimiter, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &RateLimiter{
		client:    cfg.Client,
		perMinute: cfg.PerMinute,
		logger:    cfg.Logger,
	}, nil
}

// Middleware returns a gin middleware enforcing the limit. Redis errors
// fail open so a limiter outage never takes the API down with it.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now()
		window := now.Format(rateWindowLayout)
		key := fmt.Sprintf("rl:%s:%s", c.ClientIP(), window)

		count, err := r.client.Incr(c.Request.Context(), key).Result()
		if err != nil {
			r.logger.Warningf("Rate limiter unavailable, allowing request: %s", err)
			c.Next()
			return
		}
		if count == 1 {
			// Expire only on the first hit so old windows clean themselves up.
			r.client.Expire(c.Request.Context(), key, 2*time.Minute)
		}

		remaining := r.perMinute - int(count)
		if remaining < 0 {
			remaining = 0
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", r.perMinute))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if count > int64(r.perMinute) {
			retryAfter := 60 - now.Second()
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}
