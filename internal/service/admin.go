package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/gigmarket/backend/internal/domain"
)

// AdminService serves platform-wide reporting and ledger corrections.
type AdminService struct {
	users    UserStore
	subs     SubscriptionStore
	payments PaymentStore
	validate *validator.Validate
}

func NewAdminService(stores Stores) *AdminService {
	return &AdminService{
		users:    stores.Users,
		subs:     stores.Subscriptions,
		payments: stores.Payments,
		validate: newValidator(),
	}
}

// Stats is the admin dashboard summary.
type Stats struct {
	Users                int64 `json:"users"`
	ActiveSubscriptions  int64 `json:"activeSubscriptions"`
	PendingSubscriptions int64 `json:"pendingSubscriptions"`
	CompletedPayments    int64 `json:"completedPayments"`
	FailedPayments       int64 `json:"failedPayments"`
}

func (s *AdminService) Stats(ctx context.Context) (*Stats, error) {
	var (
		st  Stats
		err error
	)
	if st.Users, err = s.users.Count(ctx); err != nil {
		return nil, domain.ErrInternal("failed to count users", err)
	}
	if st.ActiveSubscriptions, err = s.subs.CountByStatus(ctx, domain.StatusActive); err != nil {
		return nil, domain.ErrInternal("failed to count subscriptions", err)
	}
	if st.PendingSubscriptions, err = s.subs.CountByStatus(ctx, domain.StatusPending); err != nil {
		return nil, domain.ErrInternal("failed to count subscriptions", err)
	}
	if st.CompletedPayments, err = s.payments.CountByStatus(ctx, domain.PaymentCompleted); err != nil {
		return nil, domain.ErrInternal("failed to count payments", err)
	}
	if st.FailedPayments, err = s.payments.CountByStatus(ctx, domain.PaymentFailed); err != nil {
		return nil, domain.ErrInternal("failed to count payments", err)
	}
	return &st, nil
}

// ListPayments returns the most recent ledger rows across all users.
func (s *AdminService) ListPayments(ctx context.Context) ([]*domain.Payment, error) {
	payments, err := s.payments.List(ctx, paymentListLimit)
	if err != nil {
		return nil, domain.ErrInternal("failed to list payments", err)
	}
	if payments == nil {
		payments = []*domain.Payment{}
	}
	return payments, nil
}

// UpdatePaymentStatus corrects the status of a ledger row.
func (s *AdminService) UpdatePaymentStatus(ctx context.Context, id string, req *domain.UpdatePaymentStatusRequest) (*domain.Payment, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrBadRequest(formatValidationErrors(err))
	}
	p, err := s.payments.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to find payment", err)
	}
	if p == nil {
		return nil, domain.ErrNotFound("payment not found")
	}
	now := time.Now()
	if err := s.payments.UpdateStatus(ctx, id, req.Status, now); err != nil {
		return nil, domain.ErrInternal("failed to update payment", err)
	}
	p.Status = req.Status
	p.UpdatedAt = now
	return p, nil
}
