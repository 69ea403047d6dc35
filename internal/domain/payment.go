package domain

import "time"

// PaymentStatus is the state of a ledger row.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
)

// Ledger row types.
const (
	PaymentKindSubscription = "subscription"
	PaymentKindGig          = "gig_payment"
)

// PlatformPayee is the payee reference for subscription charges.
const PlatformPayee = "platform"

// GatewayRef links a ledger row to gateway identifiers.
type GatewayRef struct {
	OrderID        string `json:"orderId,omitempty" bson:"orderId,omitempty"`
	PaymentID      string `json:"paymentId,omitempty" bson:"paymentId,omitempty"`
	Signature      string `json:"signature,omitempty" bson:"signature,omitempty"`
	SubscriptionID string `json:"subscriptionId,omitempty" bson:"subscriptionId,omitempty"`
}

// Payment is an append-only ledger row. Only admin status updates mutate it.
type Payment struct {
	ID            string            `json:"id" bson:"_id"`
	PayerID       string            `json:"payerId" bson:"payerId"`
	PayeeID       string            `json:"payeeId" bson:"payeeId"`
	Amount        int64             `json:"amount" bson:"amount"` // minor units
	Currency      string            `json:"currency" bson:"currency"`
	Status        PaymentStatus     `json:"status" bson:"status"`
	Type          string            `json:"type" bson:"type"`
	PaymentMethod string            `json:"paymentMethod" bson:"paymentMethod"`
	TransactionID string            `json:"transactionId" bson:"transactionId"`
	Metadata      map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
	Gateway       GatewayRef        `json:"razorpay" bson:"gateway"`
	CreatedAt     time.Time         `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt" bson:"updatedAt"`
}

// UpdatePaymentStatusRequest is the admin input for PATCH /api/admin/payments/{id}/status.
type UpdatePaymentStatusRequest struct {
	Status PaymentStatus `json:"status" validate:"required,oneof=pending processing completed failed"`
}
