package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/gigmarket/backend/internal/domain"
	"github.com/gigmarket/backend/internal/lock"
	"github.com/gigmarket/backend/pkg/crypto"
	"github.com/gigmarket/backend/pkg/payment"
)

// WebhookService applies gateway callbacks to subscriptions and the payment ledger.
type WebhookService struct {
	subs     SubscriptionStore
	payments PaymentStore
	events   WebhookEventStore
	secret   string
	locker   lock.Locker
	notifier Notifier
	handlers map[string]func(context.Context, *payment.WebhookEvent) error
	now      func() time.Time
}

// NewWebhookService creates a WebhookService verifying bodies with secret.
// locker must be the one SubscriptionService uses; nil falls back to an
// in-process lock.
func NewWebhookService(stores Stores, secret string, locker lock.Locker) *WebhookService {
	if locker == nil {
		locker = lock.NewLocal()
	}
	s := &WebhookService{
		subs:     stores.Subscriptions,
		payments: stores.Payments,
		events:   stores.WebhookEvents,
		secret:   secret,
		locker:   locker,
		notifier: noopNotifier{},
		now:      time.Now,
	}
	s.handlers = map[string]func(context.Context, *payment.WebhookEvent) error{
		payment.EventSubscriptionCharged:   s.onCharged,
		payment.EventSubscriptionCompleted: s.transitionHandler(domain.EventExpire),
		payment.EventSubscriptionCancelled: s.onCancelled,
		payment.EventSubscriptionPaused:    s.transitionHandler(domain.EventPause),
		payment.EventSubscriptionHalted:    s.transitionHandler(domain.EventPause),
		payment.EventSubscriptionResumed:   s.onActivated(domain.EventResume),
		payment.EventSubscriptionActivated: s.onActivated(domain.EventActivate),
		payment.EventPaymentFailed:         s.onPaymentFailed,
		payment.EventInvoicePaid:           s.onInvoicePaid,
	}
	return s
}

// SetNotifier registers the receiver of subscription changes.
func (s *WebhookService) SetNotifier(n Notifier) {
	if n != nil {
		s.notifier = n
	}
}

// Handle verifies, deduplicates and dispatches one delivery. eventID is the
// gateway delivery id; when empty the body hash is used instead. Once the
// signature checks out, processing failures are logged and never returned,
// so the gateway does not retry.
func (s *WebhookService) Handle(ctx context.Context, body []byte, signature, eventID string) error {
	if s.secret == "" {
		return domain.ErrUnavailable("webhook verification unavailable", payment.ErrNotConfigured)
	}
	if !payment.VerifyWebhookSignature(body, signature, s.secret) {
		slog.WarnContext(ctx, "webhook signature mismatch")
		return domain.ErrBadRequest("invalid webhook signature")
	}

	ev, err := payment.ParseWebhookEvent(body)
	if err != nil {
		return domain.ErrBadRequest("invalid webhook payload")
	}

	if eventID == "" {
		eventID = "sha256:" + crypto.SHA256Hex(body)
	}
	first, err := s.events.Record(ctx, eventID, ev.Event, s.now())
	if err != nil {
		return domain.ErrInternal("failed to record webhook event", err)
	}
	if !first {
		slog.InfoContext(ctx, "duplicate webhook ignored", "event", ev.Event, "event_id", eventID)
		return nil
	}

	handler, ok := s.handlers[ev.Event]
	if !ok {
		slog.InfoContext(ctx, "unhandled webhook event", "event", ev.Event, "event_id", eventID)
		return nil
	}
	if err := handler(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "webhook processing failed", "event", ev.Event, "event_id", eventID, "error", err)
	}
	return nil
}

// subscriptionFor finds the local subscription for the event's gateway subscription.
// A miss is logged and reported as nil.
func (s *WebhookService) subscriptionFor(ctx context.Context, ev *payment.WebhookEvent) (*domain.Subscription, error) {
	var gatewayID string
	switch {
	case ev.Subscription != nil:
		gatewayID = ev.Subscription.ID
	case ev.Invoice != nil:
		gatewayID = ev.Invoice.SubscriptionID
	}
	sub, err := s.subs.FindByGatewaySubscriptionID(ctx, gatewayID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		slog.WarnContext(ctx, "webhook for unknown subscription", "event", ev.Event, "gateway_subscription_id", gatewayID)
	}
	return sub, nil
}

// withSubscription runs fn on a fresh copy of sub while holding its owner's lock.
func (s *WebhookService) withSubscription(ctx context.Context, sub *domain.Subscription, fn func(*domain.Subscription) error) error {
	fresh, unlock, err := lockAndReload(ctx, s.locker, s.subs, sub)
	if err != nil {
		return err
	}
	if fresh == nil {
		slog.WarnContext(ctx, "subscription vanished before webhook applied", "subscription_id", sub.ID)
		return nil
	}
	defer unlock()
	return fn(fresh)
}

func (s *WebhookService) save(ctx context.Context, sub *domain.Subscription) error {
	if err := s.subs.Update(ctx, sub); err != nil {
		return err
	}
	s.notifier.Publish(ctx, sub)
	return nil
}

func (s *WebhookService) onCharged(ctx context.Context, ev *payment.WebhookEvent) error {
	found, err := s.subscriptionFor(ctx, ev)
	if err != nil || found == nil {
		return err
	}
	return s.withSubscription(ctx, found, func(sub *domain.Subscription) error {
		now := s.now()
		entry := domain.PaymentHistoryEntry{Amount: minorUnits(sub.Price), Status: domain.HistorySuccess, Timestamp: now}
		ref := domain.GatewayRef{SubscriptionID: sub.PaymentDetails.SubscriptionID}
		if p := ev.Payment; p != nil {
			if sub.HasPayment(p.ID) {
				slog.InfoContext(ctx, "charge already recorded", "subscription_id", sub.ID, "payment_id", p.ID)
				return nil
			}
			entry.PaymentID = p.ID
			if p.Amount > 0 {
				entry.Amount = p.Amount
			}
			ref.PaymentID = p.ID
			ref.OrderID = p.OrderID
		}

		sub.AppendPayment(entry)
		sub.PaymentDetails.LastPaymentDate = &now
		// A charge on an ended subscription is recorded but does not extend it.
		if sub.Status.Ended() {
			slog.WarnContext(ctx, "charge received for ended subscription",
				"subscription_id", sub.ID, "status", sub.Status, "payment_id", entry.PaymentID)
		} else if !sub.IsLifetime() {
			base := sub.EndDate
			if base.Before(now) {
				base = now
			}
			sub.EndDate = sub.Duration.Advance(base)
			sub.PaymentDetails.NextPaymentDate = nil
			if sub.AutoRenewal {
				next := sub.EndDate
				sub.PaymentDetails.NextPaymentDate = &next
			}
		}
		sub.UpdatedAt = now

		if err := s.save(ctx, sub); err != nil {
			return err
		}
		appendLedger(ctx, s.payments, ledgerRow(sub, domain.PaymentCompleted, entry.Amount, ref, now))
		slog.InfoContext(ctx, "subscription charged", "subscription_id", sub.ID, "payment_id", entry.PaymentID, "amount", entry.Amount)
		return nil
	})
}

func (s *WebhookService) transitionHandler(event domain.SubscriptionEvent) func(context.Context, *payment.WebhookEvent) error {
	return func(ctx context.Context, ev *payment.WebhookEvent) error {
		found, err := s.subscriptionFor(ctx, ev)
		if err != nil || found == nil {
			return err
		}
		return s.withSubscription(ctx, found, func(sub *domain.Subscription) error {
			from := sub.Status
			if err := sub.Apply(event, s.now()); err != nil {
				slog.WarnContext(ctx, "webhook transition ignored",
					"event", ev.Event, "subscription_id", sub.ID, "status", from)
				return nil
			}
			if err := s.save(ctx, sub); err != nil {
				return err
			}
			slog.InfoContext(ctx, "subscription status changed",
				"event", ev.Event, "subscription_id", sub.ID, "from", from, "to", sub.Status)
			return nil
		})
	}
}

func (s *WebhookService) onCancelled(ctx context.Context, ev *payment.WebhookEvent) error {
	found, err := s.subscriptionFor(ctx, ev)
	if err != nil || found == nil {
		return err
	}
	return s.withSubscription(ctx, found, func(sub *domain.Subscription) error {
		if err := sub.Cancel("cancelled at payment gateway", s.now()); err != nil {
			slog.WarnContext(ctx, "webhook transition ignored",
				"event", ev.Event, "subscription_id", sub.ID, "status", sub.Status)
			return nil
		}
		if err := s.save(ctx, sub); err != nil {
			return err
		}
		slog.InfoContext(ctx, "subscription cancelled by gateway", "subscription_id", sub.ID)
		return nil
	})
}

// onActivated moves the subscription to active and cancels any other active
// subscription of the same user in the same write.
func (s *WebhookService) onActivated(event domain.SubscriptionEvent) func(context.Context, *payment.WebhookEvent) error {
	return func(ctx context.Context, ev *payment.WebhookEvent) error {
		found, err := s.subscriptionFor(ctx, ev)
		if err != nil || found == nil {
			return err
		}
		return s.withSubscription(ctx, found, func(sub *domain.Subscription) error {
			if sub.Status == domain.StatusActive {
				return nil
			}
			now := s.now()
			from := sub.Status
			if err := sub.Apply(event, now); err != nil {
				slog.WarnContext(ctx, "webhook transition ignored",
					"event", ev.Event, "subscription_id", sub.ID, "status", from)
				return nil
			}
			superseded, err := s.subs.Activate(ctx, sub, "superseded by subscription "+sub.ID, now)
			if err != nil {
				return err
			}
			s.notifier.Publish(ctx, sub)
			slog.InfoContext(ctx, "subscription status changed",
				"event", ev.Event, "subscription_id", sub.ID, "from", from, "to", sub.Status, "superseded", superseded)
			return nil
		})
	}
}

func (s *WebhookService) onPaymentFailed(ctx context.Context, ev *payment.WebhookEvent) error {
	p := ev.Payment
	if p == nil {
		slog.WarnContext(ctx, "payment.failed without payment entity")
		return nil
	}

	found, err := s.subs.FindByGatewayOrderID(ctx, p.OrderID)
	if err != nil {
		return err
	}
	if found == nil && p.Notes["subscriptionId"] != "" {
		if found, err = s.subs.FindByID(ctx, p.Notes["subscriptionId"]); err != nil {
			return err
		}
	}
	if found == nil {
		slog.WarnContext(ctx, "payment.failed for unknown subscription", "order_id", p.OrderID, "payment_id", p.ID)
		return nil
	}

	return s.withSubscription(ctx, found, func(sub *domain.Subscription) error {
		now := s.now()
		reason := p.FailureReason()
		sub.AppendPayment(domain.PaymentHistoryEntry{
			PaymentID:     p.ID,
			Amount:        p.Amount,
			Status:        domain.HistoryFailed,
			Timestamp:     now,
			FailureReason: reason,
		})
		sub.UpdatedAt = now
		if err := s.save(ctx, sub); err != nil {
			return err
		}

		row := ledgerRow(sub, domain.PaymentFailed, p.Amount, domain.GatewayRef{
			OrderID:        p.OrderID,
			PaymentID:      p.ID,
			SubscriptionID: sub.PaymentDetails.SubscriptionID,
		}, now)
		row.Metadata["failureReason"] = reason
		appendLedger(ctx, s.payments, row)
		slog.InfoContext(ctx, "payment failed", "subscription_id", sub.ID, "payment_id", p.ID, "reason", reason)
		return nil
	})
}

func (s *WebhookService) onInvoicePaid(ctx context.Context, ev *payment.WebhookEvent) error {
	inv := ev.Invoice
	if inv == nil {
		slog.WarnContext(ctx, "invoice.paid without invoice entity")
		return nil
	}
	found, err := s.subscriptionFor(ctx, ev)
	if err != nil || found == nil {
		return err
	}

	paymentID := inv.PaymentID
	if paymentID == "" && ev.Payment != nil {
		paymentID = ev.Payment.ID
	}
	return s.withSubscription(ctx, found, func(sub *domain.Subscription) error {
		if paymentID != "" && sub.HasPayment(paymentID) {
			return nil
		}
		now := s.now()
		sub.AppendPayment(domain.PaymentHistoryEntry{
			PaymentID: paymentID,
			Amount:    inv.PaidAmount(),
			Status:    domain.HistorySuccess,
			Timestamp: now,
		})
		sub.PaymentDetails.LastPaymentDate = &now
		sub.UpdatedAt = now
		return s.save(ctx, sub)
	})
}
