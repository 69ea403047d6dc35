// Package mongostore is the MongoDB storage driver.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection names.
const (
	usersCollection         = "users"
	subscriptionsCollection = "subscriptions"
	paymentsCollection      = "payments"
	webhookEventsCollection = "webhook_events"
)

const oneActiveIndex = "uq_one_active_subscription"

// ErrConnect is returned when every connection attempt failed.
var ErrConnect = errors.New("failed to connect to mongo")

// Connect opens a client and pings it, retrying attempts times.
func Connect(ctx context.Context, url string, attempts int, interval time.Duration) (*mongo.Client, error) {
	var lastErr error
	for range max(attempts, 1) {
		client, err := mongo.Connect(
			options.Client().
				ApplyURI(url).
				SetConnectTimeout(10 * time.Second).
				SetRetryWrites(true).
				SetRetryReads(true),
		)
		if err == nil {
			if err = client.Ping(ctx, nil); err == nil {
				return client, nil
			}
			_ = client.Disconnect(ctx)
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrConnect, ctx.Err())
		case <-time.After(interval):
		}
	}
	return nil, errors.Join(ErrConnect, lastErr)
}

// Healthcheck pings the server.
func Healthcheck(client *mongo.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	}
}

// EnsureIndexes creates the indexes the stores rely on. The partial unique
// index on subscriptions keeps at most one active subscription per user.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		subscriptionsCollection: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "paymentDetails.subscriptionId", Value: 1}}},
			{Keys: bson.D{{Key: "paymentDetails.orderId", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "endDate", Value: 1}}},
			{
				Keys: bson.D{{Key: "userId", Value: 1}},
				Options: options.Index().
					SetName(oneActiveIndex).
					SetUnique(true).
					SetPartialFilterExpression(bson.D{{Key: "status", Value: "active"}}),
			},
		},
		paymentsCollection: {
			{Keys: bson.D{{Key: "payerId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", coll, err)
		}
	}
	return nil
}

func pageSize(limit int) int64 {
	const maxPage = 500
	if limit <= 0 || limit > maxPage {
		return maxPage
	}
	return int64(limit)
}
