package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mongoadapter "github.com/blacknight/storefront/internal/adapters/mongo"
	"github.com/blacknight/storefront/internal/adapters/rabbit"
	"github.com/blacknight/storefront/internal/checkout"
	"github.com/blacknight/storefront/internal/config"
	"github.com/blacknight/storefront/internal/observability"
	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const queue = "storefront.audit"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.RabbitURL == "" || cfg.MongoURI == "" {
		log.Fatal("event-auditor needs RABBIT_URL and MONGO_URI")
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg, "event-auditor")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditLogger(mongoClient.Database("storefront"), logger)
	if err := audit.EnsureIndexes(context.Background()); err != nil {
		logger.WithError(err).Warn("failed to create audit indexes")
	}

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	consumer, err := rabbit.NewConsumer(conn, queue)
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := NewAuditWorker(audit, logger)
	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		log.Fatalf("failed to consume: %v", err)
	}
	go worker.Run(ctx, deliveries)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown event auditor")
}

type Recorder interface {
	Record(ctx context.Context, id, action, actor, subject string, data map[string]interface{}) error
}

// AuditWorker copies checkout events into the audit log. The message id is
// the audit id, so a redelivered message overwrites its own entry.
type AuditWorker struct {
	audit  Recorder
	logger observability.Logger
	clock  clockwork.Clock
	// retries per message before it is requeued
	retries uint64
	// requeueDelay holds a failed message back before handing it to the broker again
	requeueDelay time.Duration
}

func NewAuditWorker(audit Recorder, logger observability.Logger) *AuditWorker {
	return &AuditWorker{
		audit:        audit,
		logger:       logger,
		clock:        clockwork.NewRealClock(),
		retries:      3,
		requeueDelay: 5 * time.Second,
	}
}

func (w *AuditWorker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("event auditor started")
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				w.logger.Warn("delivery channel closed")
				return
			}
			w.handle(ctx, d)
		}
	}
}

func (w *AuditWorker) handle(ctx context.Context, d amqp.Delivery) {
	entry := w.logger.WithField("message_id", d.MessageId).WithField("routing_key", d.RoutingKey)

	var ev checkout.Event
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		entry.WithError(err).Error("dropping undecodable event")
		_ = d.Reject(false)
		return
	}

	action := ev.Type
	if action == "" {
		action = d.RoutingKey
	}
	data := map[string]interface{}{
		"token":     ev.Token,
		"eventId":   ev.EventID,
		"quantity":  ev.Quantity,
		"expiresAt": ev.ExpiresAt,
		"at":        ev.At,
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), w.retries), ctx)
	err := backoff.Retry(func() error {
		return w.audit.Record(ctx, d.MessageId, action, "visitor:"+ev.VisitorID, subject(ev), data)
	}, policy)
	if err != nil {
		entry.WithError(errors.Wrap(err, "record audit entry")).
			WithField("delay", w.requeueDelay.String()).
			Error("requeueing event")
		select {
		case <-w.clock.After(w.requeueDelay):
		case <-ctx.Done():
		}
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func subject(ev checkout.Event) string {
	if ev.Token == "" {
		return ""
	}
	return "reservation:" + ev.Token
}
