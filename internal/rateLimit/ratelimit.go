package rateLimit

import (
	"context"
	"time"

	redisadapter "github.com/blacknight/storefront/internal/adapters/redis"
	"github.com/blacknight/storefront/internal/observability"
)

// Rule is a fixed window: at most Rate hits per Window for one subject.
type Rule struct {
	Name   string
	Rate   int
	Window time.Duration
}

var (
	Login   = Rule{Name: "login", Rate: 5, Window: time.Minute}
	Reserve = Rule{Name: "reserve", Rate: 10, Window: time.Minute}
)

type RateLimiter struct {
	redis *redisadapter.Cache
}

func NewRateLimiter(redis *redisadapter.Cache) *RateLimiter {
	return &RateLimiter{redis: redis}
}

// Allow counts one hit for subject under rule. Redis failures deny.
func (rl *RateLimiter) Allow(ctx context.Context, rule Rule, subject string) bool {
	fullKey := "rl:" + rule.Name + ":" + subject

	pipe := rl.redis.Client().Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, rule.Window)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return false
	}

	if incr.Val() > int64(rule.Rate) {
		observability.RateLimitExceeded.WithLabelValues(rule.Name).Inc()
		return false
	}
	return true
}
