package payment

import (
	"context"
	"errors"
	"time"

	"github.com/gigmarket/backend/pkg/crypto"
)

// ErrNotConfigured is returned when a gateway is built without credentials.
var ErrNotConfigured = errors.New("payment gateway credentials are not configured")

// Gateway defines the operations the billing flow needs from a hosted payment provider.
type Gateway interface {
	// CreateOrder registers an order for amount minor units and returns the provider order.
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	// FetchSubscription returns the live state of a provider-side recurring subscription.
	FetchSubscription(ctx context.Context, id string) (*RemoteSubscription, error)
}

// OrderRequest is the input for creating an order.
type OrderRequest struct {
	Amount   int64 // minor units
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Order is a provider order.
type Order struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Status   string
}

// Provider subscription statuses that count as a verified recurring payment.
const (
	RemoteStatusActive        = "active"
	RemoteStatusAuthenticated = "authenticated"
)

// RemoteSubscription is the provider view of a recurring subscription.
type RemoteSubscription struct {
	ID           string
	PlanID       string
	Status       string
	CurrentStart *time.Time
	CurrentEnd   *time.Time
}

// Verified reports whether the provider considers the mandate usable.
func (s *RemoteSubscription) Verified() bool {
	return s.Status == RemoteStatusActive || s.Status == RemoteStatusAuthenticated
}

// VerifyPaymentSignature checks the checkout signature, an HMAC-SHA256 of
// "orderID|paymentID" keyed with the API key secret.
func VerifyPaymentSignature(orderID, paymentID, signature, secret string) bool {
	if orderID == "" || paymentID == "" {
		return false
	}
	return crypto.VerifyHMAC(secret, []byte(orderID+"|"+paymentID), signature)
}

// SignPayment produces the checkout signature for orderID and paymentID.
func SignPayment(orderID, paymentID, secret string) string {
	return crypto.SignHMAC(secret, []byte(orderID+"|"+paymentID))
}

// VerifyWebhookSignature checks an HMAC-SHA256 of the raw webhook body keyed with the webhook secret.
func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	return crypto.VerifyHMAC(secret, body, signature)
}
