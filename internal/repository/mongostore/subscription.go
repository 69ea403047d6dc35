package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/gigmarket/backend/internal/domain"
)

// SubscriptionStore keeps subscriptions in the subscriptions collection.
type SubscriptionStore struct {
	coll *mongo.Collection
}

func NewSubscriptionStore(db *mongo.Database) *SubscriptionStore {
	return &SubscriptionStore{coll: db.Collection(subscriptionsCollection)}
}

// isOneActiveViolation reports a duplicate key on the one-active index.
func isOneActiveViolation(err error) bool {
	return mongo.IsDuplicateKeyError(err) && strings.Contains(err.Error(), oneActiveIndex)
}

var newestFirst = bson.D{{Key: "createdAt", Value: -1}}

func (s *SubscriptionStore) Create(ctx context.Context, sub *domain.Subscription) error {
	if _, err := s.coll.InsertOne(ctx, sub); err != nil {
		if isOneActiveViolation(err) {
			return domain.ErrDuplicateActive
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) findOne(ctx context.Context, filter bson.D) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := s.coll.FindOne(ctx, filter, options.FindOne().SetSort(newestFirst)).Decode(&sub)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	return &sub, nil
}

func (s *SubscriptionStore) find(ctx context.Context, filter bson.D, opts *options.FindOptionsBuilder) ([]*domain.Subscription, error) {
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	var out []*domain.Subscription
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode subscriptions: %w", err)
	}
	return out, nil
}

func (s *SubscriptionStore) FindByID(ctx context.Context, id string) (*domain.Subscription, error) {
	return s.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (s *SubscriptionStore) FindActiveByUser(ctx context.Context, userID string) (*domain.Subscription, error) {
	return s.findOne(ctx, bson.D{{Key: "userId", Value: userID}, {Key: "status", Value: domain.StatusActive}})
}

func (s *SubscriptionStore) FindByGatewaySubscriptionID(ctx context.Context, gatewayID string) (*domain.Subscription, error) {
	if gatewayID == "" {
		return nil, nil
	}
	return s.findOne(ctx, bson.D{{Key: "paymentDetails.subscriptionId", Value: gatewayID}})
}

func (s *SubscriptionStore) FindByGatewayOrderID(ctx context.Context, orderID string) (*domain.Subscription, error) {
	if orderID == "" {
		return nil, nil
	}
	return s.findOne(ctx, bson.D{{Key: "paymentDetails.orderId", Value: orderID}})
}

func (s *SubscriptionStore) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Subscription, error) {
	return s.find(ctx,
		bson.D{{Key: "userId", Value: userID}},
		options.Find().SetSort(newestFirst).SetLimit(pageSize(limit)))
}

func (s *SubscriptionStore) ListExpiring(ctx context.Context, now time.Time, limit int) ([]*domain.Subscription, error) {
	return s.find(ctx,
		bson.D{
			{Key: "status", Value: domain.StatusActive},
			{Key: "duration", Value: bson.D{{Key: "$ne", Value: domain.DurationLifetime}}},
			{Key: "endDate", Value: bson.D{{Key: "$lt", Value: now}}},
		},
		options.Find().SetSort(bson.D{{Key: "endDate", Value: 1}}).SetLimit(pageSize(limit)))
}

func (s *SubscriptionStore) Update(ctx context.Context, sub *domain.Subscription) error {
	res, err := s.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: sub.ID}}, sub)
	if err != nil {
		if isOneActiveViolation(err) {
			return domain.ErrDuplicateActive
		}
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("failed to update subscription: %s not found", sub.ID)
	}
	return nil
}

// Activate cancels the user's other active documents and replaces sub inside
// a multi-document transaction, which needs a replica set or mongos.
func (s *SubscriptionStore) Activate(ctx context.Context, sub *domain.Subscription, reason string, at time.Time) (int64, error) {
	sess, err := s.coll.Database().Client().StartSession()
	if err != nil {
		return 0, fmt.Errorf("failed to start session: %w", err)
	}
	defer sess.EndSession(ctx)

	res, err := sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		res, err := s.coll.UpdateMany(ctx,
			bson.D{
				{Key: "userId", Value: sub.UserID},
				{Key: "_id", Value: bson.D{{Key: "$ne", Value: sub.ID}}},
				{Key: "status", Value: domain.StatusActive},
			},
			bson.D{{Key: "$set", Value: bson.D{
				{Key: "status", Value: domain.StatusCancelled},
				{Key: "autoRenewal", Value: false},
				{Key: "cancelledAt", Value: at},
				{Key: "cancellationReason", Value: reason},
				{Key: "updatedAt", Value: at},
			}}},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to cancel active subscriptions: %w", err)
		}
		if err := s.Update(ctx, sub); err != nil {
			return nil, err
		}
		return res.ModifiedCount, nil
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

func (s *SubscriptionStore) CountByStatus(ctx context.Context, status domain.SubscriptionStatus) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{{Key: "status", Value: status}})
	if err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return n, nil
}
