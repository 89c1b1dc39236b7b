package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Idempotency records in-flight operations so a repeated submit is refused
// while the first one is still running.
type Idempotency struct {
	client *redis.Client
}

func NewIdempotency(client *redis.Client) *Idempotency {
	return &Idempotency{client: client}
}

func (i *Idempotency) Begin(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	res := i.client.SetNX(ctx, "idemp:"+key, owner, ttl)
	return res.Val(), res.Err()
}

func (i *Idempotency) InFlight(ctx context.Context, key string) (bool, error) {
	n, err := i.client.Exists(ctx, "idemp:"+key).Result()
	return n > 0, err
}

func (i *Idempotency) End(ctx context.Context, key string) error {
	return i.client.Del(ctx, "idemp:"+key).Err()
}
