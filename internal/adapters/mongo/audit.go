package mongo

import (
	"context"
	"time"

	"github.com/blacknight/storefront/internal/observability"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        string    `bson:"_id"`
	Action    string    `bson:"action"`
	Actor     string    `bson:"actor"`
	Subject   string    `bson:"subject,omitempty"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data,omitempty"`
}

// EnsureIndexes creates the lookup indexes used by operators.
func (a *AuditLogger) EnsureIndexes(ctx context.Context) error {
	_, err := a.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "action", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "subject", Value: 1}}},
	})
	return err
}

// Record stores one audit entry. id makes the write idempotent when the same
// message is delivered twice; an empty id gets a fresh one.
func (a *AuditLogger) Record(ctx context.Context, id, action, actor, subject string, data map[string]interface{}) error {
	if id == "" {
		id = uuid.NewString()
	}
	entry := AuditLog{
		ID:        id,
		Action:    action,
		Actor:     actor,
		Subject:   subject,
		Timestamp: time.Now().UTC(),
		Data:      bson.M(data),
	}
	_, err := a.coll.ReplaceOne(ctx, bson.M{"_id": id}, entry, options.Replace().SetUpsert(true))
	if err != nil {
		a.logger.WithField("action", action).WithError(err).Error("failed to insert audit log")
		return err
	}
	return nil
}

// Recent returns the newest entries for action, newest first.
func (a *AuditLogger) Recent(ctx context.Context, action string, limit int64) ([]AuditLog, error) {
	filter := bson.M{}
	if action != "" {
		filter["action"] = action
	}
	cur, err := a.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit))
	if err != nil {
		return nil, err
	}
	var out []AuditLog
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
