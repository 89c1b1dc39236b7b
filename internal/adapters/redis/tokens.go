package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/blacknight/storefront/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

const TokenKeyPrefix = "reservationToken:"

// tokenGrace keeps a lapsed token around long enough for the checkout page to
// report the expiry instead of a missing reservation.
const tokenGrace = 10 * time.Minute

type ReservationTokens struct {
	client *redis.Client
	now    func() time.Time
}

func NewReservationTokens(client *redis.Client, now func() time.Time) *ReservationTokens {
	if now == nil {
		now = time.Now
	}
	return &ReservationTokens{client: client, now: now}
}

func (t *ReservationTokens) ttl(expiresAt time.Time) time.Duration {
	d := expiresAt.Sub(t.now()) + tokenGrace
	if d < tokenGrace {
		return tokenGrace
	}
	return d.Truncate(time.Second)
}

func (t *ReservationTokens) Save(ctx context.Context, sid string, rs domain.ReservationSession) error {
	data, err := json.Marshal(rs)
	if err != nil {
		return errors.Wrap(err, "encode reservation token")
	}
	return t.client.Set(ctx, TokenKeyPrefix+sid, data, t.ttl(rs.ExpiresAt)).Err()
}

func (t *ReservationTokens) Load(ctx context.Context, sid string) (domain.ReservationSession, error) {
	val, err := t.client.Get(ctx, TokenKeyPrefix+sid).Bytes()
	if err == redis.Nil {
		return domain.ReservationSession{}, domain.ErrNoReservation
	}
	if err != nil {
		return domain.ReservationSession{}, err
	}
	var rs domain.ReservationSession
	if err := json.Unmarshal(val, &rs); err != nil || rs.Token == "" {
		return domain.ReservationSession{}, domain.ErrNoReservation
	}
	return rs, nil
}

func (t *ReservationTokens) Discard(ctx context.Context, sid string) error {
	return t.client.Del(ctx, TokenKeyPrefix+sid).Err()
}
