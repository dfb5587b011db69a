package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/groupbuy/backend/internal/interfaces/http/dto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Limiter decides whether the request identified by key may proceed and
// reports how many requests remain in the current window
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int, err error)
	Limit() int
}

// RateLimiter implements a fixed-window in-memory rate limiter
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   int
	window  time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

type client struct {
	tokens    int
	lastReset time.Time
}

// NewRateLimiter creates a new rate limiter. Stop releases its cleanup goroutine.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*client),
		limit:   limit,
		window:  window,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go rl.cleanup(window * 2)
	return rl
}

// cleanup removes expired clients periodically
func (rl *RateLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, c := range rl.clients {
				if now.Sub(c.lastReset) > rl.window*2 {
					delete(rl.clients, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Stop ends the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

// Limit returns the requests allowed per window
func (rl *RateLimiter) Limit() int {
	return rl.limit
}

// Allow checks if a request from the given key should be allowed
func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, exists := rl.clients[key]
	if !exists || now.Sub(c.lastReset) >= rl.window {
		rl.clients[key] = &client{tokens: rl.limit - 1, lastReset: now}
		return true, rl.limit - 1, nil
	}

	if c.tokens > 0 {
		c.tokens--
		return true, c.tokens, nil
	}
	return false, 0, nil
}

// RedisRateLimiter is a fixed-window limiter shared by every instance
// pointed at the same Redis
type RedisRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewRedisRateLimiter creates a Redis-backed limiter
func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, limit: limit, window: window, prefix: "groupbuy:ratelimit:"}
}

// Limit returns the requests allowed per window
func (rl *RedisRateLimiter) Limit() int {
	return rl.limit
}

// Allow increments the key's counter, starting its window on first use
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	k := rl.prefix + key
	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, rl.limit, err
	}
	count := int(incr.Val())
	if count > rl.limit {
		return false, 0, nil
	}
	return true, rl.limit - count, nil
}

// RateLimit returns a rate limiting middleware keyed by client IP
func RateLimit(limiter Limiter, logger *zap.Logger) gin.HandlerFunc {
	return RateLimitByKey(limiter, logger, func(c *gin.Context) string { return c.ClientIP() })
}

// RateLimitByKey returns a rate limiting middleware with custom key extractor.
// A limiter backend failure lets the request through.
func RateLimitByKey(limiter Limiter, logger *zap.Logger, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		allowed, remaining, err := limiter.Allow(c.Request.Context(), keyFunc(c))
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRateLimited, "Too many requests. Please try again later.", c.GetString(RequestIDKey)))
			return
		}

		c.Next()
	}
}
