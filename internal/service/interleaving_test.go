package service_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigmarket/backend/internal/domain"
	"github.com/gigmarket/backend/internal/service"
	"github.com/gigmarket/backend/pkg/payment"
)

// hookedSubscriptions runs a callback once, right after the wrapped lookup
// returns, to slot a concurrent change between a read and the write based on it.
type hookedSubscriptions struct {
	service.SubscriptionStore
	afterGatewayLookup func()
	afterListExpiring  func()
	afterFindActive    func()
}

func fire(hook *func()) {
	if f := *hook; f != nil {
		*hook = nil
		f()
	}
}

func (h *hookedSubscriptions) FindByGatewaySubscriptionID(ctx context.Context, gatewayID string) (*domain.Subscription, error) {
	sub, err := h.SubscriptionStore.FindByGatewaySubscriptionID(ctx, gatewayID)
	fire(&h.afterGatewayLookup)
	return sub, err
}

func (h *hookedSubscriptions) ListExpiring(ctx context.Context, now time.Time, limit int) ([]*domain.Subscription, error) {
	subs, err := h.SubscriptionStore.ListExpiring(ctx, now, limit)
	fire(&h.afterListExpiring)
	return subs, err
}

func (h *hookedSubscriptions) FindActiveByUser(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := h.SubscriptionStore.FindActiveByUser(ctx, userID)
	fire(&h.afterFindActive)
	return sub, err
}

func hookedWebhooks(e *env) (*service.WebhookService, *hookedSubscriptions) {
	hooked := &hookedSubscriptions{SubscriptionStore: e.mem.Subscriptions}
	stores := e.stores
	stores.Subscriptions = hooked
	return service.NewWebhookService(stores, webhookSecret, e.locker), hooked
}

func TestWebhook_ChargeAfterUserCancelKeepsCancellation(t *testing.T) {
	e, _, sub := newWebhookEnv(t)
	ctx := context.Background()
	wh, hooked := hookedWebhooks(e)

	hooked.afterGatewayLookup = func() {
		cancelled, err := e.svc.UpdateSubscriptionSettings(ctx, sub.UserID, &domain.UpdateSettingsRequest{Action: domain.ActionCancel})
		require.NoError(t, err)
		require.Equal(t, domain.StatusCancelled, cancelled.Status)
	}

	body := chargedBody("sub_rzp_100", "pay_late", 19900)
	require.NoError(t, wh.Handle(ctx, []byte(body), sign(body), "evt_late"))

	stored, err := e.mem.Subscriptions.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
	assert.NotNil(t, stored.CancelledAt)
	assert.Equal(t, "cancelled by user", stored.CancellationReason)
	assert.False(t, stored.AutoRenewal)
	assert.Equal(t, sub.EndDate.Unix(), stored.EndDate.Unix(), "an ended subscription is not extended")

	// The money still landed, so it is recorded.
	require.Len(t, stored.PaymentDetails.History, 1)
	assert.Equal(t, "pay_late", stored.PaymentDetails.History[0].PaymentID)
	payments, err := e.mem.Payments.ListByUser(ctx, sub.UserID, 0)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestWebhook_StatusEventAfterUserCancelKeepsCancellation(t *testing.T) {
	ctx := context.Background()

	for _, event := range []string{
		payment.EventSubscriptionActivated,
		payment.EventSubscriptionResumed,
		payment.EventSubscriptionHalted,
		payment.EventSubscriptionCompleted,
	} {
		t.Run(event, func(t *testing.T) {
			e, _, sub := newWebhookEnv(t)
			wh, hooked := hookedWebhooks(e)
			hooked.afterGatewayLookup = func() {
				_, err := e.svc.UpdateSubscriptionSettings(ctx, sub.UserID, &domain.UpdateSettingsRequest{Action: domain.ActionCancel})
				require.NoError(t, err)
			}

			body := subscriptionEventBody(event, "sub_rzp_100")
			require.NoError(t, wh.Handle(ctx, []byte(body), sign(body), fmt.Sprintf("evt_%s", event)))

			stored, err := e.mem.Subscriptions.FindByID(ctx, sub.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusCancelled, stored.Status)
			assert.NotNil(t, stored.CancelledAt)
		})
	}
}

func TestExpirySweep_RenewalAfterListingWins(t *testing.T) {
	e, wh, sub := newWebhookEnv(t)
	ctx := context.Background()
	sub.EndDate = time.Now().Add(-time.Hour)
	require.NoError(t, e.mem.Subscriptions.Update(ctx, sub))

	hooked := &hookedSubscriptions{SubscriptionStore: e.mem.Subscriptions}
	hooked.afterListExpiring = func() {
		body := chargedBody("sub_rzp_100", "pay_renew", 19900)
		require.NoError(t, wh.Handle(ctx, []byte(body), sign(body), "evt_renew"))
	}

	sweeper := service.NewExpiryService(hooked, time.Minute, e.locker)
	n, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	stored, err := e.mem.Subscriptions.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, stored.Status)
	assert.True(t, stored.EndDate.After(time.Now()))
	assert.Len(t, stored.PaymentDetails.History, 1)
}

func TestExpirySweep_CancelAfterListingWins(t *testing.T) {
	e, _, sub := newWebhookEnv(t)
	ctx := context.Background()
	sub.EndDate = time.Now().Add(-time.Hour)
	require.NoError(t, e.mem.Subscriptions.Update(ctx, sub))

	hooked := &hookedSubscriptions{SubscriptionStore: e.mem.Subscriptions}
	hooked.afterListExpiring = func() {
		stored, err := e.mem.Subscriptions.FindByID(ctx, sub.ID)
		require.NoError(t, err)
		require.NoError(t, stored.Cancel("cancelled at payment gateway", time.Now()))
		require.NoError(t, e.mem.Subscriptions.Update(ctx, stored))
	}

	n, err := service.NewExpiryService(hooked, time.Minute, e.locker).Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	stored, err := e.mem.Subscriptions.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
	assert.Equal(t, "cancelled at payment gateway", stored.CancellationReason)
}

func TestCheckSubscriptionStatus_RenewalDuringLazyExpiry(t *testing.T) {
	e, wh, sub := newWebhookEnv(t)
	ctx := context.Background()
	sub.EndDate = time.Now().Add(-time.Hour)
	require.NoError(t, e.mem.Subscriptions.Update(ctx, sub))

	hooked := &hookedSubscriptions{SubscriptionStore: e.mem.Subscriptions}
	hooked.afterFindActive = func() {
		body := chargedBody("sub_rzp_100", "pay_renew", 19900)
		require.NoError(t, wh.Handle(ctx, []byte(body), sign(body), "evt_renew"))
	}
	svc := e.subscriptionService(hooked, 0)

	status, err := svc.CheckSubscriptionStatus(ctx, sub.UserID)
	require.NoError(t, err)
	assert.True(t, status.HasActiveSubscription)
	assert.False(t, status.IsExpired)

	stored, err := e.mem.Subscriptions.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, stored.Status)
	assert.True(t, stored.EndDate.After(time.Now()))
}

func TestCheckSubscriptionStatus_CancelDuringLazyExpiry(t *testing.T) {
	e, _, sub := newWebhookEnv(t)
	ctx := context.Background()
	sub.EndDate = time.Now().Add(-time.Hour)
	require.NoError(t, e.mem.Subscriptions.Update(ctx, sub))

	hooked := &hookedSubscriptions{SubscriptionStore: e.mem.Subscriptions}
	hooked.afterFindActive = func() {
		stored, err := e.mem.Subscriptions.FindByID(ctx, sub.ID)
		require.NoError(t, err)
		require.NoError(t, stored.Cancel("cancelled at payment gateway", time.Now()))
		require.NoError(t, e.mem.Subscriptions.Update(ctx, stored))
	}
	svc := e.subscriptionService(hooked, 0)

	status, err := svc.CheckSubscriptionStatus(ctx, sub.UserID)
	require.NoError(t, err)
	assert.False(t, status.HasActiveSubscription)
	assert.False(t, status.IsExpired)

	stored, err := e.mem.Subscriptions.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
}

// failingActivation rejects every activation write.
type failingActivation struct {
	service.SubscriptionStore
}

func (failingActivation) Activate(context.Context, *domain.Subscription, string, time.Time) (int64, error) {
	return 0, errors.New("write failed")
}

func TestVerifyPayment_FailedActivationKeepsCurrentPlan(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.addUser(t, domain.RoleFreelancer)

	free, err := e.svc.CreateSubscription(ctx, user.ID, &domain.CreateSubscriptionRequest{PlanType: domain.PlanFree, Duration: domain.DurationMonthly})
	require.NoError(t, err)
	paid, err := e.svc.CreateSubscription(ctx, user.ID, &domain.CreateSubscriptionRequest{PlanType: domain.PlanBasic, Duration: domain.DurationMonthly})
	require.NoError(t, err)

	svc := e.subscriptionService(failingActivation{e.mem.Subscriptions}, 0)
	orderID := paid.Order.OrderID
	_, err = svc.VerifyPayment(ctx, user.ID, &domain.VerifyPaymentRequest{
		SubscriptionID:    paid.Subscription.ID,
		RazorpayOrderID:   orderID,
		RazorpayPaymentID: "pay_lost",
		RazorpaySignature: payment.SignPayment(orderID, "pay_lost", keySecret),
	})
	requireCode(t, err, http.StatusInternalServerError)

	current, err := e.mem.Subscriptions.FindActiveByUser(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, free.Subscription.ID, current.ID)

	pending, err := e.mem.Subscriptions.FindByID(ctx, paid.Subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, pending.Status)

	payments, err := e.svc.ListPayments(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)

	// The client retries once the store recovers.
	verified, err := e.svc.VerifyPayment(ctx, user.ID, &domain.VerifyPaymentRequest{
		SubscriptionID:    paid.Subscription.ID,
		RazorpayOrderID:   orderID,
		RazorpayPaymentID: "pay_lost",
		RazorpaySignature: payment.SignPayment(orderID, "pay_lost", keySecret),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, verified.Status)

	old, err := e.mem.Subscriptions.FindByID(ctx, free.Subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, old.Status)
}

func TestVerifyPayment_RecurringGatewayTimeout(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.addUser(t, domain.RoleFreelancer)

	created, err := e.svc.CreateSubscription(ctx, user.ID, &domain.CreateSubscriptionRequest{PlanType: domain.PlanPro, Duration: domain.DurationMonthly})
	require.NoError(t, err)

	e.gateway.SetSubscription("sub_rzp_slow", payment.RemoteStatusActive)
	e.gateway.SetLatency(time.Second)
	svc := e.subscriptionService(e.mem.Subscriptions, 20*time.Millisecond)
	req := &domain.VerifyPaymentRequest{
		SubscriptionID:         created.Subscription.ID,
		PaymentType:            domain.PaymentTypeRecurring,
		RazorpayPaymentID:      "pay_slow",
		RazorpaySubscriptionID: "sub_rzp_slow",
	}

	start := time.Now()
	_, err = svc.VerifyPayment(ctx, user.ID, req)
	requireCode(t, err, http.StatusServiceUnavailable)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	stored, err := e.mem.Subscriptions.FindByID(ctx, created.Subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)

	// The lock was released, so a retry against a healthy gateway goes through.
	e.gateway.SetLatency(0)
	sub, err := svc.VerifyPayment(ctx, user.ID, req)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, sub.Status)
}

func TestVerifyPayment_TamperedReplayOnActiveWritesNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.addUser(t, domain.RoleFreelancer)

	created, err := e.svc.CreateSubscription(ctx, user.ID, &domain.CreateSubscriptionRequest{PlanType: domain.PlanBasic, Duration: domain.DurationMonthly})
	require.NoError(t, err)
	orderID := created.Order.OrderID
	_, err = e.svc.VerifyPayment(ctx, user.ID, &domain.VerifyPaymentRequest{
		SubscriptionID:    created.Subscription.ID,
		RazorpayOrderID:   orderID,
		RazorpayPaymentID: "pay_ok",
		RazorpaySignature: payment.SignPayment(orderID, "pay_ok", keySecret),
	})
	require.NoError(t, err)

	for i := range 3 {
		_, err = e.svc.VerifyPayment(ctx, user.ID, &domain.VerifyPaymentRequest{
			SubscriptionID:    created.Subscription.ID,
			RazorpayOrderID:   orderID,
			RazorpayPaymentID: fmt.Sprintf("pay_forged_%d", i),
			RazorpaySignature: "deadbeef",
		})
		requireCode(t, err, http.StatusBadRequest)
	}

	stored, err := e.mem.Subscriptions.FindByID(ctx, created.Subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, stored.Status)
	require.Len(t, stored.PaymentDetails.History, 1)
	assert.Equal(t, domain.HistorySuccess, stored.PaymentDetails.History[0].Status)

	payments, err := e.svc.ListPayments(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, domain.PaymentCompleted, payments[0].Status)
}
