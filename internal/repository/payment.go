package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigmarket/backend/internal/domain"
)

// PaymentRepository handles database operations for the payment ledger.
type PaymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `
	id, payer_id, payee_id, amount, currency, status, type, payment_method, transaction_id,
	metadata, gateway_order_id, gateway_payment_id, gateway_signature, gateway_subscription_id,
	created_at, updated_at`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		p        domain.Payment
		metadata []byte
	)
	err := row.Scan(
		&p.ID, &p.PayerID, &p.PayeeID, &p.Amount, &p.Currency, &p.Status, &p.Type, &p.PaymentMethod, &p.TransactionID,
		&metadata, &p.Gateway.OrderID, &p.Gateway.PaymentID, &p.Gateway.Signature, &p.Gateway.SubscriptionID,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode payment metadata: %w", err)
		}
	}
	return &p, nil
}

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode payment metadata: %w", err)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		p.ID, p.PayerID, p.PayeeID, p.Amount, p.Currency, p.Status, p.Type, p.PaymentMethod, p.TransactionID,
		raw, p.Gateway.OrderID, p.Gateway.PaymentID, p.Gateway.Signature, p.Gateway.SubscriptionID,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Payment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var out []*domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PaymentRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Payment, error) {
	return r.list(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE payer_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, pageSize(limit))
}

func (r *PaymentRepository) List(ctx context.Context, limit int) ([]*domain.Payment, error) {
	return r.list(ctx,
		`SELECT `+paymentColumns+` FROM payments ORDER BY created_at DESC LIMIT $1`,
		pageSize(limit))
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, id string, status domain.PaymentStatus, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE payments SET status = $2, updated_at = $3 WHERE id = $1`, id, status, at)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update payment: %s not found", id)
	}
	return nil
}

func (r *PaymentRepository) CountByStatus(ctx context.Context, status domain.PaymentStatus) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE status = $1`, status).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count payments: %w", err)
	}
	return n, nil
}
