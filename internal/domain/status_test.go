package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigmarket/backend/internal/domain"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from    domain.SubscriptionStatus
		event   domain.SubscriptionEvent
		want    domain.SubscriptionStatus
		wantErr bool
	}{
		{domain.StatusPending, domain.EventActivate, domain.StatusActive, false},
		{domain.StatusPending, domain.EventCancel, domain.StatusCancelled, false},
		{domain.StatusPending, domain.EventExpire, domain.StatusPending, true},
		{domain.StatusPending, domain.EventPause, domain.StatusPending, true},
		{domain.StatusActive, domain.EventPause, domain.StatusPaused, false},
		{domain.StatusActive, domain.EventExpire, domain.StatusExpired, false},
		{domain.StatusActive, domain.EventCancel, domain.StatusCancelled, false},
		{domain.StatusActive, domain.EventResume, domain.StatusActive, false},
		{domain.StatusPaused, domain.EventResume, domain.StatusActive, false},
		{domain.StatusPaused, domain.EventActivate, domain.StatusActive, false},
		{domain.StatusPaused, domain.EventCancel, domain.StatusCancelled, false},
		{domain.StatusCancelled, domain.EventActivate, domain.StatusCancelled, true},
		{domain.StatusCancelled, domain.EventResume, domain.StatusCancelled, true},
		{domain.StatusExpired, domain.EventActivate, domain.StatusExpired, true},
		{domain.StatusExpired, domain.EventCancel, domain.StatusExpired, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			got, err := domain.Transition(tt.from, tt.event)
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrInvalidTransition)
				assert.False(t, domain.CanTransition(tt.from, tt.event))
			} else {
				require.NoError(t, err)
				assert.True(t, domain.CanTransition(tt.from, tt.event))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	events := []domain.SubscriptionEvent{
		domain.EventActivate, domain.EventResume, domain.EventPause, domain.EventExpire, domain.EventCancel,
	}
	for _, status := range []domain.SubscriptionStatus{domain.StatusCancelled, domain.StatusExpired} {
		for _, ev := range events {
			assert.False(t, domain.CanTransition(status, ev), "%s should not accept %s", status, ev)
		}
	}
}

func TestSubscription_Cancel(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sub := &domain.Subscription{Status: domain.StatusActive, AutoRenewal: true}

	require.NoError(t, sub.Cancel("too expensive", now))
	assert.Equal(t, domain.StatusCancelled, sub.Status)
	assert.False(t, sub.AutoRenewal)
	require.NotNil(t, sub.CancelledAt)
	assert.Equal(t, now, *sub.CancelledAt)
	assert.Equal(t, "too expensive", sub.CancellationReason)

	err := sub.Cancel("again", now.Add(time.Hour))
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, "too expensive", sub.CancellationReason)
}
