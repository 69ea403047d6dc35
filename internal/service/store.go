package service

import (
	"context"
	"time"

	"github.com/gigmarket/backend/internal/domain"
)

// Lookups return (nil, nil) when nothing matches.

// UserStore persists marketplace users.
type UserStore interface {
	Create(ctx context.Context, u *domain.User) error
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	Exists(ctx context.Context, email string) (bool, error)
	ListAll(ctx context.Context) ([]*domain.User, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

// SubscriptionStore persists subscriptions. Create and Update return
// domain.ErrDuplicateActive when the write would give a user two active subscriptions.
type SubscriptionStore interface {
	Create(ctx context.Context, sub *domain.Subscription) error
	FindByID(ctx context.Context, id string) (*domain.Subscription, error)
	FindActiveByUser(ctx context.Context, userID string) (*domain.Subscription, error)
	FindByGatewaySubscriptionID(ctx context.Context, gatewayID string) (*domain.Subscription, error)
	FindByGatewayOrderID(ctx context.Context, orderID string) (*domain.Subscription, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Subscription, error)
	// ListExpiring returns active, non-lifetime subscriptions whose end date is before now.
	ListExpiring(ctx context.Context, now time.Time, limit int) ([]*domain.Subscription, error)
	Update(ctx context.Context, sub *domain.Subscription) error
	// Activate saves sub and cancels every other active subscription of its
	// user in one atomic step. It reports how many it cancelled.
	Activate(ctx context.Context, sub *domain.Subscription, reason string, at time.Time) (int64, error)
	CountByStatus(ctx context.Context, status domain.SubscriptionStatus) (int64, error)
}

// PaymentStore persists the payment ledger.
type PaymentStore interface {
	Create(ctx context.Context, p *domain.Payment) error
	FindByID(ctx context.Context, id string) (*domain.Payment, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Payment, error)
	List(ctx context.Context, limit int) ([]*domain.Payment, error)
	UpdateStatus(ctx context.Context, id string, status domain.PaymentStatus, at time.Time) error
	CountByStatus(ctx context.Context, status domain.PaymentStatus) (int64, error)
}

// WebhookEventStore remembers processed webhook deliveries.
type WebhookEventStore interface {
	// Record stores id if unseen and reports whether this call stored it.
	Record(ctx context.Context, id, event string, at time.Time) (bool, error)
}

// Stores bundles one storage driver's implementations.
type Stores struct {
	Users         UserStore
	Subscriptions SubscriptionStore
	Payments      PaymentStore
	WebhookEvents WebhookEventStore
}

// Notifier is told about every persisted subscription change.
type Notifier interface {
	Publish(ctx context.Context, sub *domain.Subscription)
}

type noopNotifier struct{}

func (noopNotifier) Publish(context.Context, *domain.Subscription) {}
