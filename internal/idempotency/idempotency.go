package idempotency

import (
	"context"
	"time"

	redisadapter "github.com/blacknight/storefront/internal/adapters/redis"
	"github.com/google/uuid"
)

const DefaultTTL = 30 * time.Second

// Guard is the payment in-flight flag. Acquire succeeds once per key until
// Release is called or the TTL lapses, so a double submit never opens a
// second payment.
type Guard struct {
	redis *redisadapter.Idempotency
	ttl   time.Duration
}

func NewGuard(redis *redisadapter.Idempotency, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{redis: redis, ttl: ttl}
}

func (g *Guard) Acquire(ctx context.Context, key string) (bool, error) {
	return g.redis.Begin(ctx, "pay:"+key, uuid.NewString(), g.ttl)
}

func (g *Guard) Release(ctx context.Context, key string) error {
	return g.redis.End(ctx, "pay:"+key)
}

// Held reports whether a payment for key is in flight.
func (g *Guard) Held(ctx context.Context, key string) bool {
	held, err := g.redis.InFlight(ctx, "pay:"+key)
	return err == nil && held
}
