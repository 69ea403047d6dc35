package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/gigmarket/backend/internal/domain"
)

// UserStore keeps users in the users collection. Emails are stored lower-cased.
type UserStore struct {
	coll *mongo.Collection
}

func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{coll: db.Collection(usersCollection)}
}

func (s *UserStore) Create(ctx context.Context, u *domain.User) error {
	doc := *u
	doc.Email = strings.ToLower(doc.Email)
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *UserStore) findOne(ctx context.Context, filter bson.D) (*domain.User, error) {
	var u domain.User
	if err := s.coll.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &u, nil
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.findOne(ctx, bson.D{{Key: "email", Value: strings.ToLower(email)}})
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return s.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (s *UserStore) Exists(ctx context.Context, email string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{{Key: "email", Value: strings.ToLower(email)}}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return n > 0, nil
}

func (s *UserStore) ListAll(ctx context.Context) ([]*domain.User, error) {
	cur, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	var users []*domain.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}}); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

func (s *UserStore) Count(ctx context.Context) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}
