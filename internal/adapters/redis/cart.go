package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/blacknight/storefront/internal/cart"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

const CartKeyPrefix = "blacknight-cart:"

// CartStore persists one cart per visitor. Every save slides the TTL.
type CartStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCartStore(client *redis.Client, ttl time.Duration) *CartStore {
	return &CartStore{client: client, ttl: ttl}
}

func (s *CartStore) Load(ctx context.Context, sid string) (cart.Cart, error) {
	val, err := s.client.Get(ctx, CartKeyPrefix+sid).Bytes()
	if err == redis.Nil {
		return cart.Cart{}, nil
	}
	if err != nil {
		return cart.Cart{}, err
	}
	var c cart.Cart
	if err := json.Unmarshal(val, &c); err != nil {
		// an unreadable cart is dropped rather than blocking the visitor
		return cart.Cart{}, nil
	}
	return c, nil
}

func (s *CartStore) Save(ctx context.Context, sid string, c cart.Cart) error {
	data, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encode cart")
	}
	return s.client.Set(ctx, CartKeyPrefix+sid, data, s.ttl).Err()
}

func (s *CartStore) Delete(ctx context.Context, sid string) error {
	return s.client.Del(ctx, CartKeyPrefix+sid).Err()
}
