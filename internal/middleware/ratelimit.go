package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) bool
}

const rateLimitScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) then
  return 0
end
return 1
`

// RedisLimiter is a fixed-window counter shared by every API instance.
// Redis failures let the request through.
type RedisLimiter struct {
	client *redis.Client
	script *redis.Script
	log    zerolog.Logger
}

func NewRedisLimiter(client *redis.Client, log zerolog.Logger) *RedisLimiter {
	if client == nil {
		return nil
	}
	return &RedisLimiter{
		client: client,
		script: redis.NewScript(rateLimitScript),
		log:    log,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	if l == nil || l.client == nil {
		return true
	}
	if key == "" || limit <= 0 || window <= 0 {
		return true
	}
	ttl := window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}

	ctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()

	allowed, err := l.script.Run(ctx, l.client, []string{"ratelimit:" + key}, ttl, limit).Int64()
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
		return true
	}
	return allowed == 1
}

// RateLimit throttles a route per client IP. A nil limiter disables it.
func RateLimit(limiter Limiter, scope string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		if !limiter.Allow(c.Request.Context(), scope+":"+c.ClientIP(), limit, window) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
