package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/apsdehal/go-logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Counter is the fixed-window counter backend. Redis in production; tests
// supply an in-memory implementation.
type Counter interface {
	// Incr increments the window counter for key, setting the window TTL on
	// first increment, and returns the new count.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter implements Counter on a Redis client.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter returns a Counter backed by the given Redis endpoint.
func NewRedisCounter(addr, password string) *RedisCounter {
	return &RedisCounter{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
	}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("rate limit incr: %w", err)
	}
	return incr.Val(), nil
}

// Limiter enforces a per-IP request budget per fixed window.
type Limiter struct {
	counter     Counter
	maxRequests int64
	window      time.Duration
	log         *logger.Logger
}

// NewLimiter returns a Limiter allowing maxRequests per window per client IP.
func NewLimiter(counter Counter, maxRequests int, window time.Duration, log *logger.Logger) *Limiter {
	return &Limiter{
		counter:     counter,
		maxRequests: int64(maxRequests),
		window:      window,
		log:         log,
	}
}

// Allow reports whether the identifier is still within budget. A counter
// backend failure allows the request; throttling is protection, not
// correctness.
func (l *Limiter) Allow(ctx context.Context, identifier string) bool {
	count, err := l.counter.Incr(ctx, "rate_limit:"+identifier, l.window)
	if err != nil {
		l.log.WarningF("rate limit backend unavailable: %v", err)
		return true
	}
	return count <= l.maxRequests
}

// Middleware rejects over-budget clients with 429 before the handler runs.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.Request.Context(), c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "rate_limit_exceeded",
				"message": "Too many requests. Please try again later.",
			})
			return
		}
		c.Next()
	}
}
