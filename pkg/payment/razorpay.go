package payment

import (
	"context"
	"fmt"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
)

// Razorpay implements Gateway on top of the official SDK.
type Razorpay struct {
	client *razorpay.Client
	keyID  string
}

// NewRazorpay builds a client for the given API key pair.
func NewRazorpay(keyID, keySecret string) (*Razorpay, error) {
	if keyID == "" || keySecret == "" {
		return nil, ErrNotConfigured
	}
	return &Razorpay{
		client: razorpay.NewClient(keyID, keySecret),
		keyID:  keyID,
	}, nil
}

// KeyID returns the public key id the checkout widget needs.
func (g *Razorpay) KeyID() string {
	return g.keyID
}

func (g *Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	notes := make(map[string]interface{}, len(req.Notes))
	for k, v := range req.Notes {
		notes[k] = v
	}
	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
		"notes":    notes,
	}

	body, err := g.client.Order.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay order create: %w", err)
	}

	order := &Order{
		ID:       stringField(body, "id"),
		Amount:   int64Field(body, "amount"),
		Currency: stringField(body, "currency"),
		Receipt:  stringField(body, "receipt"),
		Status:   stringField(body, "status"),
	}
	if order.ID == "" {
		return nil, fmt.Errorf("razorpay order create: response without id")
	}
	return order, nil
}

func (g *Razorpay) FetchSubscription(ctx context.Context, id string) (*RemoteSubscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := g.client.Subscription.Fetch(id, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay subscription fetch: %w", err)
	}

	return &RemoteSubscription{
		ID:           stringField(body, "id"),
		PlanID:       stringField(body, "plan_id"),
		Status:       stringField(body, "status"),
		CurrentStart: unixField(body, "current_start"),
		CurrentEnd:   unixField(body, "current_end"),
	}, nil
}

// The SDK decodes responses into generic maps, so numbers arrive as float64.

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func int64Field(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

func unixField(m map[string]interface{}, key string) *time.Time {
	secs := int64Field(m, key)
	if secs == 0 {
		return nil
	}
	t := time.Unix(secs, 0).UTC()
	return &t
}
