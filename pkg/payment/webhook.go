package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Webhook event names.
const (
	EventSubscriptionCharged   = "subscription.charged"
	EventSubscriptionCompleted = "subscription.completed"
	EventSubscriptionCancelled = "subscription.cancelled"
	EventSubscriptionPaused    = "subscription.paused"
	EventSubscriptionHalted    = "subscription.halted"
	EventSubscriptionResumed   = "subscription.resumed"
	EventSubscriptionActivated = "subscription.activated"
	EventPaymentFailed         = "payment.failed"
	EventInvoicePaid           = "invoice.paid"
)

// Notes is the free-form key/value map attached to gateway entities.
// The gateway sends an empty JSON array instead of an object when no notes exist.
type Notes map[string]string

func (n *Notes) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || trimmed[0] == '[' {
		*n = Notes{}
		return nil
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return err
	}
	out := make(Notes, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	*n = out
	return nil
}

// SubscriptionEntity is the subscription object inside a webhook payload.
type SubscriptionEntity struct {
	ID           string `json:"id"`
	PlanID       string `json:"plan_id"`
	Status       string `json:"status"`
	CurrentStart int64  `json:"current_start"`
	CurrentEnd   int64  `json:"current_end"`
	Notes        Notes  `json:"notes"`
}

// PaymentEntity is the payment object inside a webhook payload.
type PaymentEntity struct {
	ID               string `json:"id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	Method           string `json:"method"`
	OrderID          string `json:"order_id"`
	InvoiceID        string `json:"invoice_id"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	ErrorReason      string `json:"error_reason"`
	Notes            Notes  `json:"notes"`
}

// FailureReason picks the most descriptive failure text available.
func (p *PaymentEntity) FailureReason() string {
	switch {
	case p.ErrorDescription != "":
		return p.ErrorDescription
	case p.ErrorReason != "":
		return p.ErrorReason
	case p.ErrorCode != "":
		return p.ErrorCode
	}
	return "payment failed"
}

// InvoiceEntity is the invoice object inside a webhook payload.
type InvoiceEntity struct {
	ID             string `json:"id"`
	SubscriptionID string `json:"subscription_id"`
	PaymentID      string `json:"payment_id"`
	Amount         int64  `json:"amount"`
	AmountPaid     int64  `json:"amount_paid"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
}

// PaidAmount returns amount_paid, falling back to the invoice amount.
func (i *InvoiceEntity) PaidAmount() int64 {
	if i.AmountPaid > 0 {
		return i.AmountPaid
	}
	return i.Amount
}

// WebhookEvent is a decoded gateway callback.
type WebhookEvent struct {
	Event        string
	CreatedAt    int64
	Subscription *SubscriptionEntity
	Payment      *PaymentEntity
	Invoice      *InvoiceEntity
}

type webhookEnvelope struct {
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Subscription *struct {
			Entity SubscriptionEntity `json:"entity"`
		} `json:"subscription"`
		Payment *struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
		Invoice *struct {
			Entity InvoiceEntity `json:"entity"`
		} `json:"invoice"`
	} `json:"payload"`
}

// ParseWebhookEvent decodes a raw webhook body.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode webhook body: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("webhook body has no event name")
	}

	ev := &WebhookEvent{Event: env.Event, CreatedAt: env.CreatedAt}
	if env.Payload.Subscription != nil {
		ev.Subscription = &env.Payload.Subscription.Entity
	}
	if env.Payload.Payment != nil {
		ev.Payment = &env.Payload.Payment.Entity
	}
	if env.Payload.Invoice != nil {
		ev.Invoice = &env.Payload.Invoice.Entity
	}
	return ev, nil
}
