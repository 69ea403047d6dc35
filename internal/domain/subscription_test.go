package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigmarket/backend/internal/domain"
)

func TestSubscription_LifetimeNeverExpires(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	sub := &domain.Subscription{
		Duration:  domain.DurationLifetime,
		StartDate: start,
		EndDate:   domain.DurationLifetime.Advance(start),
	}

	for _, elapsed := range []time.Duration{0, 24 * time.Hour, 200 * 365 * 24 * time.Hour} {
		now := start.Add(elapsed)
		assert.False(t, sub.IsExpired(now))
		assert.Nil(t, sub.DaysLeft(now))
	}
}

func TestSubscription_DaysLeft(t *testing.T) {
	now := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

	t.Run("rounds partial days up", func(t *testing.T) {
		sub := &domain.Subscription{Duration: domain.DurationMonthly, EndDate: now.Add(36 * time.Hour)}
		days := sub.DaysLeft(now)
		require.NotNil(t, days)
		assert.Equal(t, 2, *days)
		assert.False(t, sub.IsExpired(now))
	})

	t.Run("floors at zero once past", func(t *testing.T) {
		sub := &domain.Subscription{Duration: domain.DurationYearly, EndDate: now.Add(-72 * time.Hour)}
		days := sub.DaysLeft(now)
		require.NotNil(t, days)
		assert.Equal(t, 0, *days)
		assert.True(t, sub.IsExpired(now))
	})
}

func TestDuration_Advance(t *testing.T) {
	start := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, start.AddDate(0, 1, 0), domain.DurationMonthly.Advance(start))
	assert.Equal(t, start.AddDate(1, 0, 0), domain.DurationYearly.Advance(start))
	assert.Equal(t, 2126, domain.DurationLifetime.Advance(start).Year())
}

func TestSubscription_HasPayment(t *testing.T) {
	sub := &domain.Subscription{}
	sub.AppendPayment(domain.PaymentHistoryEntry{PaymentID: "pay_1", Status: domain.HistoryFailed})
	assert.False(t, sub.HasPayment("pay_1"))

	sub.AppendPayment(domain.PaymentHistoryEntry{PaymentID: "pay_1", Status: domain.HistorySuccess})
	assert.True(t, sub.HasPayment("pay_1"))
	assert.Len(t, sub.PaymentDetails.History, 2)
}

func TestAllows(t *testing.T) {
	assert.True(t, domain.Allows(domain.Unlimited, 1000))
	assert.True(t, domain.Allows(3, 2))
	assert.False(t, domain.Allows(3, 3))
	assert.False(t, domain.Allows(0, 0))
}
