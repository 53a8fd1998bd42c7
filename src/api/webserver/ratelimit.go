package webserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/stake-plus/stratomai-agents/src/api/config"
	"github.com/stake-plus/stratomai-agents/src/api/data"
)

// Limiter reports whether key may make another request in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Describe() string
}

func newLimiter(rdb *redis.Client, cfg config.RateLimitConfig, log *slog.Logger) Limiter {
	if rdb != nil {
		return &RedisLimiter{rdb: rdb, rate: cfg.Requests, window: cfg.Window, log: log}
	}
	return NewRateLimiter(cfg.Requests, cfg.Window)
}

// RateLimiter is an in-process sliding window limiter.
type RateLimiter struct {
	requests  map[string][]time.Time
	mu        sync.Mutex
	rate      int           // requests per window
	window    time.Duration // time window
	now       func() time.Time
	lastSweep time.Time
}

func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		rate:     rate,
		window:   window,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	valid := rl.requests[key][:0]
	for _, t := range rl.requests[key] {
		if now.Sub(t) < rl.window {
			valid = append(valid, t)
		}
	}
	if len(valid) >= rl.rate {
		rl.requests[key] = valid
		return false, nil
	}
	rl.requests[key] = append(valid, now)
	rl.sweep(now)
	return true, nil
}

// sweep drops idle keys, at most once per window.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.window {
		return
	}
	rl.lastSweep = now
	for key, times := range rl.requests {
		if len(times) == 0 || now.Sub(times[len(times)-1]) >= rl.window {
			delete(rl.requests, key)
		}
	}
}

func (rl *RateLimiter) Describe() string {
	return fmt.Sprintf("%d requests per %v", rl.rate, rl.window)
}

// RedisLimiter shares a fixed window counter across replicas.
type RedisLimiter struct {
	rdb    *redis.Client
	rate   int
	window time.Duration
	log    *slog.Logger
}

func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := data.IncrWindow(ctx, rl.rdb, key, rl.window)
	if err != nil {
		return false, err
	}
	return n <= int64(rl.rate), nil
}

func (rl *RedisLimiter) Describe() string {
	return fmt.Sprintf("%d requests per %v", rl.rate, rl.window)
}

// RateLimitMiddleware limits per principal, falling back to the client IP.
// A failing limiter backend lets the request through.
func RateLimitMiddleware(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(userIDKey)
		if key == "" {
			key = c.ClientIP()
		}

		ok, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			if rl, isRedis := limiter.(*RedisLimiter); isRedis && rl.log != nil {
				rl.log.Warn("rate limiter unavailable", "err", err)
			}
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded: " + limiter.Describe(),
			})
			return
		}
		c.Next()
	}
}
