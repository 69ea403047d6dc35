package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/gigmarket/backend/internal/catalog"
	"github.com/gigmarket/backend/internal/domain"
	"github.com/gigmarket/backend/internal/lock"
	"github.com/gigmarket/backend/pkg/payment"
)

// GatewayConfig wires the payment provider into SubscriptionService.
// A nil Gateway means the provider is unavailable and paid operations fail with 503.
type GatewayConfig struct {
	Gateway   payment.Gateway
	KeyID     string
	KeySecret string
	Currency  string
	// Timeout bounds each gateway call. It must stay below the lock TTL.
	Timeout time.Duration
}

const defaultGatewayTimeout = 5 * time.Second

// SubscriptionService runs the subscription lifecycle: plan selection, order
// creation, payment verification, status checks and user settings.
type SubscriptionService struct {
	subs     SubscriptionStore
	payments PaymentStore
	users    UserStore
	gw       GatewayConfig
	locker   lock.Locker
	notifier Notifier
	validate *validator.Validate
	now      func() time.Time
}

// NewSubscriptionService creates a SubscriptionService. A nil locker falls back to an in-process lock.
func NewSubscriptionService(stores Stores, gw GatewayConfig, locker lock.Locker) *SubscriptionService {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if gw.Currency == "" {
		gw.Currency = "INR"
	}
	if gw.Timeout <= 0 {
		gw.Timeout = defaultGatewayTimeout
	}
	return &SubscriptionService{
		subs:     stores.Subscriptions,
		payments: stores.Payments,
		users:    stores.Users,
		gw:       gw,
		locker:   locker,
		notifier: noopNotifier{},
		validate: newValidator(),
		now:      time.Now,
	}
}

// SetNotifier registers the receiver of subscription changes.
func (s *SubscriptionService) SetNotifier(n Notifier) {
	if n != nil {
		s.notifier = n
	}
}

func (s *SubscriptionService) lockUser(ctx context.Context, userID string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, subscriptionLockKey(userID))
	if err != nil {
		return nil, domain.ErrUnavailable("subscription is busy, try again", err)
	}
	return unlock, nil
}

func (s *SubscriptionService) loadUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to find user", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user not found")
	}
	if !user.Role.Subscribable() {
		return nil, domain.ErrBadRequest("subscriptions are available to freelancer and hiring accounts only")
	}
	return user, nil
}

func (s *SubscriptionService) save(ctx context.Context, sub *domain.Subscription) error {
	if err := s.subs.Update(ctx, sub); err != nil {
		if errors.Is(err, domain.ErrDuplicateActive) {
			return domain.ErrConflict("another subscription is already active", err)
		}
		return domain.ErrInternal("failed to update subscription", err)
	}
	s.notifier.Publish(ctx, sub)
	return nil
}

// CreateSubscription starts a subscription. Free plans are active at once and
// idempotent per user; paid plans are pending until the payment is verified.
func (s *SubscriptionService) CreateSubscription(ctx context.Context, userID string, req *domain.CreateSubscriptionRequest) (*domain.CreateSubscriptionResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrBadRequest(formatValidationErrors(err))
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	limits, err := catalog.Limits(user.Role, req.PlanType)
	if err != nil {
		return nil, domain.ErrInternal("plan configuration missing", err)
	}

	if req.PlanType == domain.PlanFree {
		return s.createFree(ctx, user, req.Duration, limits)
	}
	return s.createPaid(ctx, user, req, limits)
}

func (s *SubscriptionService) newSubscription(user *domain.User, planType domain.PlanType, duration domain.Duration, limits domain.PlanLimits, now time.Time) *domain.Subscription {
	return &domain.Subscription{
		ID:        domain.NewID(),
		UserID:    user.ID,
		Role:      user.Role,
		PlanType:  planType,
		Duration:  duration,
		Currency:  s.gw.Currency,
		StartDate: now,
		EndDate:   duration.Advance(now),
		Limits:    limits,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *SubscriptionService) createFree(ctx context.Context, user *domain.User, duration domain.Duration, limits domain.PlanLimits) (*domain.CreateSubscriptionResponse, error) {
	unlock, err := s.lockUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.activeSubscription(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return &domain.CreateSubscriptionResponse{Subscription: current, Existing: true}, nil
	}

	now := s.now()
	sub := s.newSubscription(user, domain.PlanFree, duration, limits, now)
	sub.Status = domain.StatusActive
	sub.PaymentDetails.PaymentType = domain.PaymentTypeFree

	if err := s.subs.Create(ctx, sub); err != nil {
		if !errors.Is(err, domain.ErrDuplicateActive) {
			return nil, domain.ErrInternal("failed to create subscription", err)
		}
		// Lost a race with another process; hand back the winner.
		winner, ferr := s.subs.FindActiveByUser(ctx, user.ID)
		if ferr != nil || winner == nil {
			return nil, domain.ErrConflict("another subscription is already active", err)
		}
		return &domain.CreateSubscriptionResponse{Subscription: winner, Existing: true}, nil
	}

	slog.InfoContext(ctx, "free subscription activated", "user_id", user.ID, "subscription_id", sub.ID)
	s.notifier.Publish(ctx, sub)
	return &domain.CreateSubscriptionResponse{Subscription: sub}, nil
}

func (s *SubscriptionService) createPaid(ctx context.Context, user *domain.User, req *domain.CreateSubscriptionRequest, limits domain.PlanLimits) (*domain.CreateSubscriptionResponse, error) {
	pricing, ok := catalog.Pricing(user.Role, req.PlanType, req.Duration)
	if !ok {
		return nil, domain.ErrBadRequest("no pricing available for the selected plan")
	}
	if s.gw.Gateway == nil {
		return nil, domain.ErrUnavailable("payment gateway unavailable", payment.ErrNotConfigured)
	}

	now := s.now()
	sub := s.newSubscription(user, req.PlanType, req.Duration, limits, now)
	sub.Status = domain.StatusPending
	sub.Price = pricing.Price
	sub.OriginalPrice = pricing.OriginalPrice
	sub.Discount = pricing.Discount
	sub.AutoRenewal = !sub.IsLifetime()
	sub.PaymentDetails.PaymentType = domain.PaymentTypeOneTime

	gctx, cancel := context.WithTimeout(ctx, s.gw.Timeout)
	defer cancel()
	order, err := s.gw.Gateway.CreateOrder(gctx, payment.OrderRequest{
		Amount:   minorUnits(pricing.Price),
		Currency: s.gw.Currency,
		Receipt:  "sub_" + sub.ID,
		Notes: map[string]string{
			"subscriptionId": sub.ID,
			"userId":         user.ID,
			"planType":       string(req.PlanType),
			"duration":       string(req.Duration),
		},
	})
	if err != nil {
		return nil, domain.ErrUnavailable("failed to create payment order", err)
	}
	sub.PaymentDetails.OrderID = order.ID

	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, domain.ErrInternal("failed to create subscription", err)
	}

	slog.InfoContext(ctx, "paid subscription pending payment",
		"user_id", user.ID, "subscription_id", sub.ID, "order_id", order.ID, "amount", order.Amount)
	s.notifier.Publish(ctx, sub)

	return &domain.CreateSubscriptionResponse{
		Subscription: sub,
		Order: &domain.OrderDetails{
			OrderID:  order.ID,
			Amount:   order.Amount,
			Currency: order.Currency,
			KeyID:    s.gw.KeyID,
		},
	}, nil
}

// GetPlans returns the plan catalog for a role.
func (s *SubscriptionService) GetPlans(role string) (*catalog.PlansResponse, error) {
	r := domain.Role(role)
	if !r.Subscribable() {
		return nil, domain.ErrBadRequest("role must be freelancer or hiring")
	}
	plans, err := catalog.Plans(r)
	if err != nil {
		return nil, domain.ErrInternal("plan configuration missing", err)
	}
	return plans, nil
}

// activeSubscription returns the user's active subscription, expiring it first
// when its end date has passed. It returns nil when nothing is active.
// Callers hold the user lock.
func (s *SubscriptionService) activeSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := s.subs.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to find subscription", err)
	}
	if sub == nil {
		return nil, nil
	}
	now := s.now()
	if !sub.IsExpired(now) {
		return sub, nil
	}
	if err := sub.Apply(domain.EventExpire, now); err != nil {
		return nil, domain.ErrInternal("failed to expire subscription", err)
	}
	if err := s.save(ctx, sub); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "subscription expired", "user_id", userID, "subscription_id", sub.ID)
	return nil, nil
}

func (s *SubscriptionService) lockedActiveSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.activeSubscription(ctx, userID)
}

// CheckSubscriptionStatus reports the user's current entitlement, expiring a
// lapsed subscription on the way.
func (s *SubscriptionService) CheckSubscriptionStatus(ctx context.Context, userID string) (*domain.StatusResponse, error) {
	sub, err := s.subs.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to find subscription", err)
	}
	if sub == nil {
		return &domain.StatusResponse{}, nil
	}

	now := s.now()
	if sub.IsExpired(now) {
		if sub, err = s.expireLapsed(ctx, sub); err != nil {
			return nil, err
		}
	}

	switch {
	case sub == nil:
		return &domain.StatusResponse{}, nil
	case sub.Status == domain.StatusExpired:
		return &domain.StatusResponse{
			IsExpired:    true,
			DaysLeft:     sub.DaysLeft(now),
			Subscription: sub,
		}, nil
	case sub.Status != domain.StatusActive:
		return &domain.StatusResponse{}, nil
	}
	return &domain.StatusResponse{
		HasActiveSubscription: true,
		DaysLeft:              sub.DaysLeft(now),
		Subscription:          sub,
	}, nil
}

// expireLapsed takes the user lock, re-reads sub and expires it when it is
// still active and past its end date. It returns the stored state, which may
// be a renewal or cancel that landed after the unlocked read.
func (s *SubscriptionService) expireLapsed(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	fresh, unlock, err := lockAndReload(ctx, s.locker, s.subs, sub)
	if err != nil {
		return nil, domain.ErrUnavailable("subscription is busy, try again", err)
	}
	if fresh == nil {
		return nil, nil
	}
	defer unlock()

	now := s.now()
	if fresh.Status != domain.StatusActive || !fresh.IsExpired(now) {
		return fresh, nil
	}
	if err := fresh.Apply(domain.EventExpire, now); err != nil {
		return nil, domain.ErrInternal("failed to expire subscription", err)
	}
	if err := s.save(ctx, fresh); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "subscription expired", "user_id", fresh.UserID, "subscription_id", fresh.ID)
	return fresh, nil
}

func (s *SubscriptionService) ownedSubscription(ctx context.Context, userID, id string) (*domain.Subscription, error) {
	sub, err := s.subs.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to find subscription", err)
	}
	if sub == nil || sub.UserID != userID {
		return nil, domain.ErrNotFound("subscription not found")
	}
	return sub, nil
}

// VerifyPayment confirms a checkout with the gateway and activates the
// subscription. A failed check cancels a pending subscription.
func (s *SubscriptionService) VerifyPayment(ctx context.Context, userID string, req *domain.VerifyPaymentRequest) (*domain.Subscription, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrBadRequest(formatValidationErrors(err))
	}
	if s.gw.Gateway == nil || s.gw.KeySecret == "" {
		return nil, domain.ErrUnavailable("payment gateway unavailable", payment.ErrNotConfigured)
	}

	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sub, err := s.ownedSubscription(ctx, userID, req.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status == domain.StatusActive && sub.HasPayment(req.RazorpayPaymentID) {
		return sub, nil
	}
	if !domain.CanTransition(sub.Status, domain.EventActivate) {
		return nil, domain.ErrBadRequest("subscription cannot be activated in its current state")
	}

	paymentType := req.PaymentType
	if paymentType == "" {
		paymentType = domain.PaymentTypeOneTime
		if req.RazorpaySubscriptionID != "" {
			paymentType = domain.PaymentTypeRecurring
		}
	}

	var verified bool
	switch paymentType {
	case domain.PaymentTypeRecurring:
		gctx, cancel := context.WithTimeout(ctx, s.gw.Timeout)
		remote, err := s.gw.Gateway.FetchSubscription(gctx, req.RazorpaySubscriptionID)
		cancel()
		if err != nil {
			return nil, domain.ErrUnavailable("failed to reach payment gateway", err)
		}
		verified = remote.Verified()
	default:
		verified = req.RazorpayOrderID == sub.PaymentDetails.OrderID &&
			payment.VerifyPaymentSignature(req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature, s.gw.KeySecret)
	}

	now := s.now()
	ref := domain.GatewayRef{
		OrderID:        req.RazorpayOrderID,
		PaymentID:      req.RazorpayPaymentID,
		Signature:      req.RazorpaySignature,
		SubscriptionID: req.RazorpaySubscriptionID,
	}
	amount := minorUnits(sub.Price)

	if !verified {
		return nil, s.rejectPayment(ctx, sub, ref, amount, now)
	}

	if err := sub.Apply(domain.EventActivate, now); err != nil {
		return nil, domain.ErrBadRequest("subscription cannot be activated in its current state")
	}
	sub.StartDate = now
	sub.EndDate = sub.Duration.Advance(now)
	sub.PaymentDetails.PaymentType = paymentType
	sub.PaymentDetails.PaymentID = req.RazorpayPaymentID
	if req.RazorpaySubscriptionID != "" {
		sub.PaymentDetails.SubscriptionID = req.RazorpaySubscriptionID
	}
	sub.PaymentDetails.LastPaymentDate = &now
	sub.PaymentDetails.NextPaymentDate = nil
	if paymentType == domain.PaymentTypeRecurring && sub.AutoRenewal && !sub.IsLifetime() {
		next := sub.EndDate
		sub.PaymentDetails.NextPaymentDate = &next
	}
	sub.AppendPayment(domain.PaymentHistoryEntry{
		PaymentID: req.RazorpayPaymentID,
		Amount:    amount,
		Status:    domain.HistorySuccess,
		Timestamp: now,
	})

	superseded, err := s.subs.Activate(ctx, sub, "superseded by subscription "+sub.ID, now)
	if err != nil {
		return nil, domain.ErrInternal("failed to activate subscription", err)
	}
	s.notifier.Publish(ctx, sub)
	appendLedger(ctx, s.payments, ledgerRow(sub, domain.PaymentCompleted, amount, ref, now))

	slog.InfoContext(ctx, "subscription activated",
		"user_id", userID, "subscription_id", sub.ID, "payment_id", req.RazorpayPaymentID,
		"payment_type", paymentType, "superseded", superseded)
	return sub, nil
}

// rejectPayment records a failed verification. Only a pending subscription
// is changed; replays against any other state write nothing.
func (s *SubscriptionService) rejectPayment(ctx context.Context, sub *domain.Subscription, ref domain.GatewayRef, amount int64, now time.Time) error {
	slog.WarnContext(ctx, "payment verification failed",
		"user_id", sub.UserID, "subscription_id", sub.ID, "payment_id", ref.PaymentID, "status", sub.Status)
	if sub.Status != domain.StatusPending {
		return domain.ErrBadRequest("payment verification failed")
	}

	sub.AppendPayment(domain.PaymentHistoryEntry{
		PaymentID:     ref.PaymentID,
		Amount:        amount,
		Status:        domain.HistoryFailed,
		Timestamp:     now,
		FailureReason: "payment verification failed",
	})
	if err := sub.Cancel("payment verification failed", now); err != nil {
		return domain.ErrInternal("failed to cancel subscription", err)
	}
	if err := s.save(ctx, sub); err != nil {
		return err
	}
	appendLedger(ctx, s.payments, ledgerRow(sub, domain.PaymentFailed, amount, ref, now))
	return domain.ErrBadRequest("payment verification failed")
}

// ManagementResponse is the subscription settings view.
type ManagementResponse struct {
	Subscription     *domain.Subscription    `json:"subscription"`
	IsExpired        bool                    `json:"isExpired"`
	DaysLeft         *int                    `json:"daysLeft"`
	CanCancel        bool                    `json:"canCancel"`
	CanToggleRenewal bool                    `json:"canToggleRenewal"`
	UpgradeOptions   []catalog.UpgradeOption `json:"upgradeOptions"`
	History          []*domain.Subscription  `json:"history"`
}

const historyLimit = 20

// GetSubscriptionManagement returns the current subscription with the actions
// available on it, upgrade options and past subscriptions.
func (s *SubscriptionService) GetSubscriptionManagement(ctx context.Context, userID string) (*ManagementResponse, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	current, err := s.lockedActiveSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	history, err := s.subs.ListByUser(ctx, userID, historyLimit)
	if err != nil {
		return nil, domain.ErrInternal("failed to list subscriptions", err)
	}

	resp := &ManagementResponse{History: history}
	if current == nil && len(history) > 0 {
		current = history[0]
	}
	if current == nil {
		resp.UpgradeOptions = catalog.UpgradeOptions(user.Role, domain.PlanFree)
		return resp, nil
	}

	now := s.now()
	resp.Subscription = current
	resp.IsExpired = current.Status == domain.StatusExpired || current.IsExpired(now)
	resp.DaysLeft = current.DaysLeft(now)
	resp.CanCancel = domain.CanTransition(current.Status, domain.EventCancel)
	resp.CanToggleRenewal = !current.IsLifetime() && current.PlanType != domain.PlanFree && resp.CanCancel
	if current.Status == domain.StatusActive {
		resp.UpgradeOptions = catalog.UpgradeOptions(user.Role, current.PlanType)
	} else {
		resp.UpgradeOptions = catalog.UpgradeOptions(user.Role, domain.PlanFree)
	}
	return resp, nil
}

// UpdateSubscriptionSettings cancels a subscription or changes its auto-renewal flag.
func (s *SubscriptionService) UpdateSubscriptionSettings(ctx context.Context, userID string, req *domain.UpdateSettingsRequest) (*domain.Subscription, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrBadRequest(formatValidationErrors(err))
	}
	if req.Action == "" && req.AutoRenewal == nil {
		return nil, domain.ErrBadRequest("action or autoRenewal is required")
	}

	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var sub *domain.Subscription
	if req.SubscriptionID != "" {
		sub, err = s.ownedSubscription(ctx, userID, req.SubscriptionID)
	} else {
		sub, err = s.activeSubscription(ctx, userID)
		if err == nil && sub == nil {
			err = domain.ErrNotFound("no active subscription")
		}
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	if req.Action == domain.ActionCancel {
		reason := req.Reason
		if reason == "" {
			reason = "cancelled by user"
		}
		if err := sub.Cancel(reason, now); err != nil {
			return nil, domain.ErrBadRequest("subscription cannot be cancelled in its current state")
		}
		if err := s.save(ctx, sub); err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "subscription cancelled", "user_id", userID, "subscription_id", sub.ID)
		return sub, nil
	}

	if sub.PlanType == domain.PlanFree {
		return nil, domain.ErrBadRequest("free plans do not renew")
	}
	if sub.IsLifetime() {
		return nil, domain.ErrBadRequest("auto-renewal cannot be changed for lifetime plans")
	}
	if sub.Status.Ended() {
		return nil, domain.ErrBadRequest("auto-renewal cannot be changed on an ended subscription")
	}

	renew := !sub.AutoRenewal
	if req.AutoRenewal != nil {
		renew = *req.AutoRenewal
	}
	sub.AutoRenewal = renew
	sub.UpdatedAt = now
	sub.PaymentDetails.NextPaymentDate = nil
	if renew && sub.PaymentDetails.PaymentType == domain.PaymentTypeRecurring {
		next := sub.EndDate
		sub.PaymentDetails.NextPaymentDate = &next
	}

	if err := s.save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// RecordUsage counts a gig post or application against the active plan's caps.
func (s *SubscriptionService) RecordUsage(ctx context.Context, userID string, req *domain.RecordUsageRequest) (*domain.Subscription, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrBadRequest(formatValidationErrors(err))
	}

	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sub, err := s.activeSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.ErrForbidden("an active subscription is required")
	}

	switch req.Kind {
	case domain.UsageGig:
		if !domain.Allows(sub.Limits.MaxGigs, sub.Usage.GigsPosted) {
			return nil, domain.ErrForbidden("gig post limit reached for your plan")
		}
		sub.Usage.GigsPosted++
	case domain.UsageApplication:
		if !domain.Allows(sub.Limits.MaxApplications, sub.Usage.ApplicationsSubmitted) {
			return nil, domain.ErrForbidden("application limit reached for your plan")
		}
		sub.Usage.ApplicationsSubmitted++
	}
	sub.UpdatedAt = s.now()

	if err := s.save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

const paymentListLimit = 100

// ListPayments returns the user's ledger rows, newest first.
func (s *SubscriptionService) ListPayments(ctx context.Context, userID string) ([]*domain.Payment, error) {
	payments, err := s.payments.ListByUser(ctx, userID, paymentListLimit)
	if err != nil {
		return nil, domain.ErrInternal("failed to list payments", err)
	}
	if payments == nil {
		payments = []*domain.Payment{}
	}
	return payments, nil
}
