package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigmarket/backend/internal/domain"
)

const oneActiveConstraint = "uq_subscriptions_one_active"

// SubscriptionRepository handles database operations for subscriptions.
// The partial unique index uq_subscriptions_one_active keeps at most one
// active row per user.
type SubscriptionRepository struct {
	db *pgxpool.Pool
}

func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `
	id, user_id, role, plan_type, duration, price, original_price, discount, currency,
	status, start_date, end_date, auto_renewal, cancelled_at, cancellation_reason,
	max_gigs, max_applications, gigs_posted, applications_submitted,
	payment_type, gateway_order_id, gateway_payment_id, gateway_subscription_id,
	last_payment_date, next_payment_date, payment_history, created_at, updated_at`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var (
		s       domain.Subscription
		history []byte
	)
	err := row.Scan(
		&s.ID, &s.UserID, &s.Role, &s.PlanType, &s.Duration, &s.Price, &s.OriginalPrice, &s.Discount, &s.Currency,
		&s.Status, &s.StartDate, &s.EndDate, &s.AutoRenewal, &s.CancelledAt, &s.CancellationReason,
		&s.Limits.MaxGigs, &s.Limits.MaxApplications, &s.Usage.GigsPosted, &s.Usage.ApplicationsSubmitted,
		&s.PaymentDetails.PaymentType, &s.PaymentDetails.OrderID, &s.PaymentDetails.PaymentID, &s.PaymentDetails.SubscriptionID,
		&s.PaymentDetails.LastPaymentDate, &s.PaymentDetails.NextPaymentDate, &history, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &s.PaymentDetails.History); err != nil {
			return nil, fmt.Errorf("failed to decode payment history: %w", err)
		}
	}
	return &s, nil
}

func (r *SubscriptionRepository) queryOne(ctx context.Context, where string, args ...any) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE ` + where + ` ORDER BY created_at DESC LIMIT 1`
	s, err := scanSubscription(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	return s, nil
}

func (r *SubscriptionRepository) queryMany(ctx context.Context, query string, args ...any) ([]*domain.Subscription, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func historyJSON(s *domain.Subscription) ([]byte, error) {
	h := s.PaymentDetails.History
	if h == nil {
		h = []domain.PaymentHistoryEntry{}
	}
	return json.Marshal(h)
}

func (r *SubscriptionRepository) Create(ctx context.Context, s *domain.Subscription) error {
	history, err := historyJSON(s)
	if err != nil {
		return fmt.Errorf("failed to encode payment history: %w", err)
	}
	query := `INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
		        $20, $21, $22, $23, $24, $25, $26, $27, $28)`
	_, err = r.db.Exec(ctx, query,
		s.ID, s.UserID, s.Role, s.PlanType, s.Duration, s.Price, s.OriginalPrice, s.Discount, s.Currency,
		s.Status, s.StartDate, s.EndDate, s.AutoRenewal, s.CancelledAt, s.CancellationReason,
		s.Limits.MaxGigs, s.Limits.MaxApplications, s.Usage.GigsPosted, s.Usage.ApplicationsSubmitted,
		s.PaymentDetails.PaymentType, s.PaymentDetails.OrderID, s.PaymentDetails.PaymentID, s.PaymentDetails.SubscriptionID,
		s.PaymentDetails.LastPaymentDate, s.PaymentDetails.NextPaymentDate, history, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, oneActiveConstraint) {
			return domain.ErrDuplicateActive
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) FindByID(ctx context.Context, id string) (*domain.Subscription, error) {
	return r.queryOne(ctx, `id = $1`, id)
}

func (r *SubscriptionRepository) FindActiveByUser(ctx context.Context, userID string) (*domain.Subscription, error) {
	return r.queryOne(ctx, `user_id = $1 AND status = 'active'`, userID)
}

func (r *SubscriptionRepository) FindByGatewaySubscriptionID(ctx context.Context, gatewayID string) (*domain.Subscription, error) {
	if gatewayID == "" {
		return nil, nil
	}
	return r.queryOne(ctx, `gateway_subscription_id = $1`, gatewayID)
}

func (r *SubscriptionRepository) FindByGatewayOrderID(ctx context.Context, orderID string) (*domain.Subscription, error) {
	if orderID == "" {
		return nil, nil
	}
	return r.queryOne(ctx, `gateway_order_id = $1`, orderID)
}

func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Subscription, error) {
	return r.queryMany(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, pageSize(limit))
}

func (r *SubscriptionRepository) ListExpiring(ctx context.Context, now time.Time, limit int) ([]*domain.Subscription, error) {
	return r.queryMany(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE status = 'active' AND duration <> 'lifetime' AND end_date < $1
		 ORDER BY end_date LIMIT $2`,
		now, pageSize(limit))
}

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *SubscriptionRepository) Update(ctx context.Context, s *domain.Subscription) error {
	return updateSubscription(ctx, r.db, s)
}

func updateSubscription(ctx context.Context, db execer, s *domain.Subscription) error {
	history, err := historyJSON(s)
	if err != nil {
		return fmt.Errorf("failed to encode payment history: %w", err)
	}
	query := `
		UPDATE subscriptions SET
			plan_type = $2, duration = $3, price = $4, original_price = $5, discount = $6, currency = $7,
			status = $8, start_date = $9, end_date = $10, auto_renewal = $11, cancelled_at = $12,
			cancellation_reason = $13, max_gigs = $14, max_applications = $15, gigs_posted = $16,
			applications_submitted = $17, payment_type = $18, gateway_order_id = $19,
			gateway_payment_id = $20, gateway_subscription_id = $21, last_payment_date = $22,
			next_payment_date = $23, payment_history = $24, updated_at = $25
		WHERE id = $1
	`
	tag, err := db.Exec(ctx, query,
		s.ID, s.PlanType, s.Duration, s.Price, s.OriginalPrice, s.Discount, s.Currency,
		s.Status, s.StartDate, s.EndDate, s.AutoRenewal, s.CancelledAt,
		s.CancellationReason, s.Limits.MaxGigs, s.Limits.MaxApplications, s.Usage.GigsPosted,
		s.Usage.ApplicationsSubmitted, s.PaymentDetails.PaymentType, s.PaymentDetails.OrderID,
		s.PaymentDetails.PaymentID, s.PaymentDetails.SubscriptionID, s.PaymentDetails.LastPaymentDate,
		s.PaymentDetails.NextPaymentDate, history, s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, oneActiveConstraint) {
			return domain.ErrDuplicateActive
		}
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update subscription: %s not found", s.ID)
	}
	return nil
}

// Activate cancels the user's other active rows and saves s in one
// transaction. Cancelling first keeps uq_subscriptions_one_active satisfied.
func (r *SubscriptionRepository) Activate(ctx context.Context, s *domain.Subscription, reason string, at time.Time) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin activation: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE subscriptions
		SET status = 'cancelled', auto_renewal = FALSE, cancelled_at = $3, cancellation_reason = $4, updated_at = $3
		WHERE user_id = $1 AND id <> $2 AND status = 'active'
	`, s.UserID, s.ID, at, reason)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel active subscriptions: %w", err)
	}
	if err := updateSubscription(ctx, tx, s); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit activation: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *SubscriptionRepository) CountByStatus(ctx context.Context, status domain.SubscriptionStatus) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions WHERE status = $1`, status).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return n, nil
}

const maxPageSize = 500

func pageSize(limit int) int {
	if limit <= 0 || limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
