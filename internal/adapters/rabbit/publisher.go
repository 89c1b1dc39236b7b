package rabbit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/blacknight/storefront/internal/observability"
	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const Exchange = "storefront.events"

// PublishBudget bounds a whole Publish call, retries included. Events are
// published from request handlers, so a dead broker must not stall checkout.
const PublishBudget = 500 * time.Millisecond

type Publisher struct {
	ch      *amqp.Channel
	retries uint64
	budget  time.Duration
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	return &Publisher{ch: ch, retries: 3, budget: PublishBudget}, nil
}

// Publish sends payload as JSON under key, retrying transient failures.
func (p *Publisher) Publish(ctx context.Context, key string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	msg := amqp.Publishing{
		MessageId:    uuid.New().String(),
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Type:         key,
		Body:         body,
	}

	ctx, cancel := context.WithTimeout(ctx, p.budget)
	defer cancel()
	return backoff.RetryNotify(func() error {
		return p.ch.PublishWithContext(ctx, Exchange, key, false, false, msg)
	}, retryPolicy(ctx, p.retries, p.budget), func(error, time.Duration) {
		observability.RabbitPublishRetries.Inc()
	})
}

func retryPolicy(ctx context.Context, retries uint64, budget time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = budget / 2
	b.MaxElapsedTime = budget
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

// NopPublisher drops events; used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }
