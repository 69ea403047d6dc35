package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// WebhookEventStore records processed deliveries keyed by _id.
type WebhookEventStore struct {
	coll *mongo.Collection
}

func NewWebhookEventStore(db *mongo.Database) *WebhookEventStore {
	return &WebhookEventStore{coll: db.Collection(webhookEventsCollection)}
}

type webhookEventDoc struct {
	ID         string    `bson:"_id"`
	Event      string    `bson:"event"`
	ReceivedAt time.Time `bson:"receivedAt"`
}

func (s *WebhookEventStore) Record(ctx context.Context, id, event string, at time.Time) (bool, error) {
	_, err := s.coll.InsertOne(ctx, webhookEventDoc{ID: id, Event: event, ReceivedAt: at})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to record webhook event: %w", err)
	}
	return true, nil
}
