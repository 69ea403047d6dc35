package service

import (
	"context"

	"github.com/gigmarket/backend/internal/domain"
	"github.com/gigmarket/backend/internal/lock"
)

// subscriptionLockKey serialises every subscription write of one user.
func subscriptionLockKey(userID string) string {
	return "subscription:" + userID
}

// lockAndReload takes the owner's lock and re-reads sub so the caller changes
// the stored copy rather than the one it looked up. When the subscription is
// gone the result is nil and the lock is already released.
func lockAndReload(ctx context.Context, locker lock.Locker, subs SubscriptionStore, sub *domain.Subscription) (*domain.Subscription, func(), error) {
	unlock, err := locker.Lock(ctx, subscriptionLockKey(sub.UserID))
	if err != nil {
		return nil, nil, err
	}
	fresh, err := subs.FindByID(ctx, sub.ID)
	if err != nil || fresh == nil {
		unlock()
		return nil, nil, err
	}
	return fresh, unlock, nil
}
