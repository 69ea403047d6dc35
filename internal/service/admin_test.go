package service_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigmarket/backend/internal/domain"
	"github.com/gigmarket/backend/internal/service"
	"github.com/gigmarket/backend/pkg/payment"
)

func TestAdminService_StatsAndPayments(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin := service.NewAdminService(e.stores)
	user := e.addUser(t, domain.RoleFreelancer)

	created, err := e.svc.CreateSubscription(ctx, user.ID, &domain.CreateSubscriptionRequest{PlanType: domain.PlanBasic, Duration: domain.DurationMonthly})
	require.NoError(t, err)

	stats, err := admin.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Users)
	assert.Equal(t, int64(1), stats.PendingSubscriptions)
	assert.Zero(t, stats.ActiveSubscriptions)

	orderID := created.Order.OrderID
	_, err = e.svc.VerifyPayment(ctx, user.ID, &domain.VerifyPaymentRequest{
		SubscriptionID:    created.Subscription.ID,
		RazorpayOrderID:   orderID,
		RazorpayPaymentID: "pay_a1",
		RazorpaySignature: payment.SignPayment(orderID, "pay_a1", keySecret),
	})
	require.NoError(t, err)

	stats, err = admin.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ActiveSubscriptions)
	assert.Equal(t, int64(1), stats.CompletedPayments)

	payments, err := admin.ListPayments(ctx)
	require.NoError(t, err)
	require.Len(t, payments, 1)

	updated, err := admin.UpdatePaymentStatus(ctx, payments[0].ID, &domain.UpdatePaymentStatusRequest{Status: domain.PaymentFailed})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFailed, updated.Status)

	stats, err = admin.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.CompletedPayments)
	assert.Equal(t, int64(1), stats.FailedPayments)

	_, err = admin.UpdatePaymentStatus(ctx, payments[0].ID, &domain.UpdatePaymentStatusRequest{Status: "refunded"})
	requireCode(t, err, http.StatusBadRequest)

	_, err = admin.UpdatePaymentStatus(ctx, "missing", &domain.UpdatePaymentStatusRequest{Status: domain.PaymentCompleted})
	requireCode(t, err, http.StatusNotFound)
}
