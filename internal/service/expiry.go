package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/gigmarket/backend/internal/domain"
	"github.com/gigmarket/backend/internal/lock"
)

const expiryBatchSize = 100

// ExpiryService periodically expires active subscriptions whose end date has
// passed. Status reads still expire lazily; this catches users who never call them.
type ExpiryService struct {
	subs     SubscriptionStore
	locker   lock.Locker
	notifier Notifier
	interval time.Duration
	now      func() time.Time
}

// NewExpiryService creates an ExpiryService that sweeps every interval. It
// takes the same per-user lock as the request paths; nil uses an in-process one.
func NewExpiryService(subs SubscriptionStore, interval time.Duration, locker lock.Locker) *ExpiryService {
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &ExpiryService{
		subs:     subs,
		locker:   locker,
		notifier: noopNotifier{},
		interval: interval,
		now:      time.Now,
	}
}

// SetNotifier registers the receiver of subscription changes.
func (s *ExpiryService) SetNotifier(n Notifier) {
	if n != nil {
		s.notifier = n
	}
}

// Start runs the sweep loop in a background goroutine until ctx is done.
// A zero interval disables it.
func (s *ExpiryService) Start(ctx context.Context) {
	if s.interval <= 0 {
		slog.Info("expiry sweeper disabled")
		return
	}
	go func() {
		s.sweepAndLog(ctx)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepAndLog(ctx)
			}
		}
	}()
}

func (s *ExpiryService) sweepAndLog(ctx context.Context) {
	n, err := s.Sweep(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "expiry sweep failed", "expired", n, "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "expiry sweep finished", "expired", n)
	}
}

// Sweep expires every lapsed subscription and returns how many it changed.
func (s *ExpiryService) Sweep(ctx context.Context) (int, error) {
	var total int
	for {
		now := s.now()
		batch, err := s.subs.ListExpiring(ctx, now, expiryBatchSize)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			return total, nil
		}

		changed := 0
		for _, sub := range batch {
			ok, err := s.expire(ctx, sub, now)
			if err != nil {
				slog.ErrorContext(ctx, "failed to expire subscription", "subscription_id", sub.ID, "error", err)
				continue
			}
			if ok {
				changed++
			}
		}
		total += changed
		// Nothing in the batch changed; stop rather than refetch the same rows.
		if changed == 0 || len(batch) < expiryBatchSize {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

// expire re-reads sub under its owner's lock and expires it if it is still
// active and lapsed. A renewal or cancel that landed since the listing wins.
func (s *ExpiryService) expire(ctx context.Context, listed *domain.Subscription, now time.Time) (bool, error) {
	sub, unlock, err := lockAndReload(ctx, s.locker, s.subs, listed)
	if err != nil || sub == nil {
		return false, err
	}
	defer unlock()

	if sub.Status != domain.StatusActive || !sub.IsExpired(now) {
		return false, nil
	}
	if err := sub.Apply(domain.EventExpire, now); err != nil {
		return false, nil
	}
	if err := s.subs.Update(ctx, sub); err != nil {
		return false, err
	}
	s.notifier.Publish(ctx, sub)
	return true, nil
}
