package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/gigmarket/backend/internal/domain"
)

// PaymentStore keeps the ledger in the payments collection.
type PaymentStore struct {
	coll *mongo.Collection
}

func NewPaymentStore(db *mongo.Database) *PaymentStore {
	return &PaymentStore{coll: db.Collection(paymentsCollection)}
}

func (s *PaymentStore) Create(ctx context.Context, p *domain.Payment) error {
	if _, err := s.coll.InsertOne(ctx, p); err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (s *PaymentStore) FindByID(ctx context.Context, id string) (*domain.Payment, error) {
	var p domain.Payment
	if err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	return &p, nil
}

func (s *PaymentStore) list(ctx context.Context, filter bson.D, limit int) ([]*domain.Payment, error) {
	cur, err := s.coll.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(pageSize(limit)))
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	var out []*domain.Payment
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode payments: %w", err)
	}
	return out, nil
}

func (s *PaymentStore) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Payment, error) {
	return s.list(ctx, bson.D{{Key: "payerId", Value: userID}}, limit)
}

func (s *PaymentStore) List(ctx context.Context, limit int) ([]*domain.Payment, error) {
	return s.list(ctx, bson.D{}, limit)
}

func (s *PaymentStore) UpdateStatus(ctx context.Context, id string, status domain.PaymentStatus, at time.Time) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "status", Value: status}, {Key: "updatedAt", Value: at}}}},
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("failed to update payment: %s not found", id)
	}
	return nil
}

func (s *PaymentStore) CountByStatus(ctx context.Context, status domain.PaymentStatus) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{{Key: "status", Value: status}})
	if err != nil {
		return 0, fmt.Errorf("failed to count payments: %w", err)
	}
	return n, nil
}
