// Package storetest holds behaviour tests every storage driver must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigmarket/backend/internal/domain"
	"github.com/gigmarket/backend/internal/service"
)

// Run exercises stores. They must start empty.
func Run(t *testing.T, stores service.Stores) {
	t.Run("users", func(t *testing.T) { testUsers(t, stores.Users) })
	t.Run("subscriptions", func(t *testing.T) { testSubscriptions(t, stores.Subscriptions) })
	t.Run("payments", func(t *testing.T) { testPayments(t, stores.Payments) })
	t.Run("webhook events", func(t *testing.T) { testWebhookEvents(t, stores.WebhookEvents) })
}

// Database drivers round times to micro or milliseconds.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func testUsers(t *testing.T, users service.UserStore) {
	ctx := context.Background()
	u := &domain.User{
		ID:        domain.NewID(),
		Name:      "Ravi",
		Email:     "ravi@example.com",
		Password:  "hash",
		Role:      domain.RoleHiring,
		CreatedAt: now(),
		UpdatedAt: now(),
	}
	require.NoError(t, users.Create(ctx, u))

	got, err := users.FindByEmail(ctx, "Ravi@Example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, domain.RoleHiring, got.Role)

	exists, err := users.Exists(ctx, "ravi@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	missing, err := users.FindByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	n, err := users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, users.Delete(ctx, u.ID))
	got, err = users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func newSub(userID string, status domain.SubscriptionStatus, created time.Time) *domain.Subscription {
	return &domain.Subscription{
		ID:        domain.NewID(),
		UserID:    userID,
		Role:      domain.RoleFreelancer,
		PlanType:  domain.PlanBasic,
		Duration:  domain.DurationMonthly,
		Price:     199,
		Currency:  "INR",
		Status:    status,
		StartDate: created,
		EndDate:   created.AddDate(0, 1, 0),
		Limits:    domain.PlanLimits{MaxGigs: 5, MaxApplications: 30},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func testSubscriptions(t *testing.T, subs service.SubscriptionStore) {
	ctx := context.Background()
	base := now()
	user := domain.NewID()

	active := newSub(user, domain.StatusActive, base)
	active.PaymentDetails = domain.PaymentDetails{
		PaymentType:    domain.PaymentTypeRecurring,
		OrderID:        "order_st1",
		SubscriptionID: "sub_st1",
		History: []domain.PaymentHistoryEntry{
			{PaymentID: "pay_st1", Amount: 19900, Status: domain.HistorySuccess, Timestamp: base},
		},
	}
	require.NoError(t, subs.Create(ctx, active))

	dup := newSub(user, domain.StatusActive, base.Add(time.Second))
	assert.ErrorIs(t, subs.Create(ctx, dup), domain.ErrDuplicateActive)

	got, err := subs.FindActiveByUser(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, active.ID, got.ID)
	require.Len(t, got.PaymentDetails.History, 1)
	assert.Equal(t, int64(19900), got.PaymentDetails.History[0].Amount)
	assert.Equal(t, 5, got.Limits.MaxGigs)

	byGateway, err := subs.FindByGatewaySubscriptionID(ctx, "sub_st1")
	require.NoError(t, err)
	require.NotNil(t, byGateway)
	assert.Equal(t, active.ID, byGateway.ID)

	byOrder, err := subs.FindByGatewayOrderID(ctx, "order_st1")
	require.NoError(t, err)
	require.NotNil(t, byOrder)

	none, err := subs.FindByGatewaySubscriptionID(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, none)

	pending := newSub(user, domain.StatusPending, base.Add(2*time.Second))
	require.NoError(t, subs.Create(ctx, pending))
	pending.Status = domain.StatusActive
	assert.ErrorIs(t, subs.Update(ctx, pending), domain.ErrDuplicateActive)

	missing := newSub(user, domain.StatusActive, base.Add(3*time.Second))
	_, err = subs.Activate(ctx, missing, "superseded", base)
	require.Error(t, err, "activating an unknown subscription")
	still, err := subs.FindActiveByUser(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, still)
	assert.Equal(t, active.ID, still.ID, "failed activation leaves the current plan active")

	n, err := subs.Activate(ctx, pending, "superseded", base)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	current, err := subs.FindActiveByUser(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, pending.ID, current.ID)

	old, err := subs.FindByID(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, old.Status)
	assert.Equal(t, "superseded", old.CancellationReason)
	assert.False(t, old.AutoRenewal)

	list, err := subs.ListByUser(ctx, user, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, pending.ID, list[0].ID, "newest first")

	lapsed := newSub(domain.NewID(), domain.StatusActive, base.AddDate(0, -2, 0))
	require.NoError(t, subs.Create(ctx, lapsed))
	lifetime := newSub(domain.NewID(), domain.StatusActive, base.AddDate(0, -2, 0))
	lifetime.Duration = domain.DurationLifetime
	require.NoError(t, subs.Create(ctx, lifetime))

	expiring, err := subs.ListExpiring(ctx, base, 10)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, lapsed.ID, expiring[0].ID)

	count, err := subs.CountByStatus(ctx, domain.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func testPayments(t *testing.T, payments service.PaymentStore) {
	ctx := context.Background()
	base := now()
	user := domain.NewID()

	for i, status := range []domain.PaymentStatus{domain.PaymentCompleted, domain.PaymentFailed} {
		require.NoError(t, payments.Create(ctx, &domain.Payment{
			ID:        domain.NewID(),
			PayerID:   user,
			PayeeID:   domain.PlatformPayee,
			Amount:    19900,
			Currency:  "INR",
			Status:    status,
			Type:      domain.PaymentKindSubscription,
			Metadata:  map[string]string{"subscriptionId": "s1"},
			Gateway:   domain.GatewayRef{PaymentID: "pay_p", OrderID: "order_p"},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			UpdatedAt: base,
		}))
	}

	list, err := payments.ListByUser(ctx, user, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.PaymentFailed, list[0].Status, "newest first")
	assert.Equal(t, "s1", list[0].Metadata["subscriptionId"])
	assert.Equal(t, "order_p", list[0].Gateway.OrderID)

	require.NoError(t, payments.UpdateStatus(ctx, list[0].ID, domain.PaymentCompleted, base))
	got, err := payments.FindByID(ctx, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCompleted, got.Status)

	n, err := payments.CountByStatus(ctx, domain.PaymentCompleted)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.Error(t, payments.UpdateStatus(ctx, "missing", domain.PaymentFailed, base))
	missing, err := payments.FindByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testWebhookEvents(t *testing.T, events service.WebhookEventStore) {
	ctx := context.Background()
	first, err := events.Record(ctx, "evt_st", "subscription.charged", now())
	require.NoError(t, err)
	assert.True(t, first)

	again, err := events.Record(ctx, "evt_st", "subscription.charged", now())
	require.NoError(t, err)
	assert.False(t, again)
}
