package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/qs3c/petvip_server/config"
	"github.com/qs3c/petvip_server/internal/pkg/response"
)

const limiterIdleTTL = 10 * time.Minute

// UserRateLimiter 按用户限流，需放在 Auth 之后
type UserRateLimiter struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	limiters  map[int64]*userLimiter
	lastSweep time.Time
	now       func() time.Time
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewUserRateLimiter(cfg config.RateLimitConfig) *UserRateLimiter {
	perMinute := cfg.ReconcilePerMinute
	if perMinute <= 0 {
		perMinute = 12
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &UserRateLimiter{
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		limiters: make(map[int64]*userLimiter),
		now:      time.Now,
	}
}

// Allow 用户本次请求是否放行
func (l *UserRateLimiter) Allow(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	ul, ok := l.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[userID] = ul
	}
	ul.lastSeen = now
	return ul.limiter.AllowN(now, 1)
}

// sweep 清理长时间未访问的用户
func (l *UserRateLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < limiterIdleTTL {
		return
	}
	l.lastSweep = now
	for id, ul := range l.limiters {
		if now.Sub(ul.lastSeen) > limiterIdleTTL {
			delete(l.limiters, id)
		}
	}
}

// RateLimit 限流中间件
func RateLimit(limiter *UserRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}

		if !limiter.Allow(userID) {
			response.RateLimitError(c, "核对过于频繁，请稍后再试")
			c.Abort()
			return
		}

		c.Next()
	}
}
