package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// WebhookEventRepository records processed gateway deliveries.
type WebhookEventRepository struct {
	db *pgxpool.Pool
}

func NewWebhookEventRepository(db *pgxpool.Pool) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Record inserts id unless present and reports whether this call inserted it.
func (r *WebhookEventRepository) Record(ctx context.Context, id, event string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO webhook_events (id, event, received_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, id, event, at)
	if err != nil {
		return false, fmt.Errorf("failed to record webhook event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
