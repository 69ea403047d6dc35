package domain

import (
	"math"
	"time"
)

// PaymentType is how a subscription is paid for.
type PaymentType string

const (
	PaymentTypeFree      PaymentType = "free"
	PaymentTypeOneTime   PaymentType = "one-time"
	PaymentTypeRecurring PaymentType = "recurring"
)

// History entry statuses.
const (
	HistorySuccess = "success"
	HistoryFailed  = "failed"
)

// PaymentHistoryEntry is one charge attempt recorded on a subscription.
type PaymentHistoryEntry struct {
	PaymentID     string    `json:"paymentId" bson:"paymentId"`
	Amount        int64     `json:"amount" bson:"amount"` // minor units
	Status        string    `json:"status" bson:"status"`
	Timestamp     time.Time `json:"timestamp" bson:"timestamp"`
	FailureReason string    `json:"failureReason,omitempty" bson:"failureReason,omitempty"`
}

// PaymentDetails holds gateway linkage and the ordered charge history.
type PaymentDetails struct {
	PaymentType     PaymentType           `json:"paymentType" bson:"paymentType"`
	OrderID         string                `json:"razorpayOrderId,omitempty" bson:"orderId,omitempty"`
	PaymentID       string                `json:"razorpayPaymentId,omitempty" bson:"paymentId,omitempty"`
	SubscriptionID  string                `json:"razorpaySubscriptionId,omitempty" bson:"subscriptionId,omitempty"`
	LastPaymentDate *time.Time            `json:"lastPaymentDate,omitempty" bson:"lastPaymentDate,omitempty"`
	NextPaymentDate *time.Time            `json:"nextPaymentDate,omitempty" bson:"nextPaymentDate,omitempty"`
	History         []PaymentHistoryEntry `json:"paymentHistory" bson:"paymentHistory"`
}

// Usage counts plan-limited actions.
type Usage struct {
	GigsPosted            int `json:"gigsPosted" bson:"gigsPosted"`
	ApplicationsSubmitted int `json:"applicationsSubmitted" bson:"applicationsSubmitted"`
}

// Subscription is a user's plan lifecycle record.
type Subscription struct {
	ID                 string             `json:"id" bson:"_id"`
	UserID             string             `json:"userId" bson:"userId"`
	Role               Role               `json:"role" bson:"role"`
	PlanType           PlanType           `json:"planType" bson:"planType"`
	Duration           Duration           `json:"duration" bson:"duration"`
	Price              int64              `json:"price" bson:"price"`
	OriginalPrice      int64              `json:"originalPrice" bson:"originalPrice"`
	Discount           int                `json:"discount" bson:"discount"`
	Currency           string             `json:"currency" bson:"currency"`
	Status             SubscriptionStatus `json:"status" bson:"status"`
	StartDate          time.Time          `json:"startDate" bson:"startDate"`
	EndDate            time.Time          `json:"endDate" bson:"endDate"`
	AutoRenewal        bool               `json:"autoRenewal" bson:"autoRenewal"`
	CancelledAt        *time.Time         `json:"cancelledAt,omitempty" bson:"cancelledAt,omitempty"`
	CancellationReason string             `json:"cancellationReason,omitempty" bson:"cancellationReason,omitempty"`
	Limits             PlanLimits         `json:"limits" bson:"limits"`
	Usage              Usage              `json:"usage" bson:"usage"`
	PaymentDetails     PaymentDetails     `json:"paymentDetails" bson:"paymentDetails"`
	CreatedAt          time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// IsLifetime reports whether the subscription never expires.
func (s *Subscription) IsLifetime() bool {
	return s.Duration == DurationLifetime
}

// IsExpired reports whether the end date has passed. Lifetime plans never expire.
func (s *Subscription) IsExpired(now time.Time) bool {
	if s.IsLifetime() {
		return false
	}
	return now.After(s.EndDate)
}

// DaysLeft returns whole days until the end date, floored at zero. Nil for lifetime plans.
func (s *Subscription) DaysLeft(now time.Time) *int {
	if s.IsLifetime() {
		return nil
	}
	days := int(math.Ceil(float64(s.EndDate.Sub(now).Milliseconds()) / 86400000))
	if days < 0 {
		days = 0
	}
	return &days
}

// Apply moves the subscription through the status table.
func (s *Subscription) Apply(event SubscriptionEvent, now time.Time) error {
	to, err := Transition(s.Status, event)
	if err != nil {
		return err
	}
	s.Status = to
	s.UpdatedAt = now
	if to == StatusCancelled || to == StatusExpired {
		s.AutoRenewal = false
	}
	return nil
}

// Cancel applies the cancel event and records when and why.
func (s *Subscription) Cancel(reason string, now time.Time) error {
	if err := s.Apply(EventCancel, now); err != nil {
		return err
	}
	s.CancelledAt = &now
	s.CancellationReason = reason
	return nil
}

// AppendPayment records a charge attempt on the subscription.
func (s *Subscription) AppendPayment(entry PaymentHistoryEntry) {
	s.PaymentDetails.History = append(s.PaymentDetails.History, entry)
}

// HasPayment reports whether a successful charge with paymentID is already recorded.
func (s *Subscription) HasPayment(paymentID string) bool {
	for _, h := range s.PaymentDetails.History {
		if h.PaymentID == paymentID && h.Status == HistorySuccess {
			return true
		}
	}
	return false
}

// CreateSubscriptionRequest is the input for POST /api/subscription/create.
type CreateSubscriptionRequest struct {
	PlanType PlanType `json:"planType" validate:"required,oneof=free basic pro"`
	Duration Duration `json:"duration" validate:"required,oneof=monthly yearly lifetime"`
}

// OrderDetails is what the client needs to open the gateway checkout.
type OrderDetails struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"keyId,omitempty"`
}

// CreateSubscriptionResponse is returned by CreateSubscription.
type CreateSubscriptionResponse struct {
	Subscription *Subscription `json:"subscription"`
	Order        *OrderDetails `json:"order,omitempty"`
	Existing     bool          `json:"existing"`
}

// VerifyPaymentRequest carries the gateway checkout result.
type VerifyPaymentRequest struct {
	SubscriptionID         string      `json:"subscriptionId" validate:"required"`
	PaymentType            PaymentType `json:"paymentType" validate:"omitempty,oneof=one-time recurring"`
	RazorpayOrderID        string      `json:"razorpay_order_id" validate:"required_unless=PaymentType recurring"`
	RazorpayPaymentID      string      `json:"razorpay_payment_id" validate:"required"`
	RazorpaySignature      string      `json:"razorpay_signature" validate:"required_unless=PaymentType recurring"`
	RazorpaySubscriptionID string      `json:"razorpay_subscription_id" validate:"required_if=PaymentType recurring"`
}

// StatusResponse is returned by CheckSubscriptionStatus.
type StatusResponse struct {
	HasActiveSubscription bool          `json:"hasActiveSubscription"`
	IsExpired             bool          `json:"isExpired"`
	DaysLeft              *int          `json:"daysLeft"`
	Subscription          *Subscription `json:"subscription,omitempty"`
}

// Management actions.
const (
	ActionCancel        = "cancel"
	ActionToggleRenewal = "toggle_renewal"
)

// UpdateSettingsRequest is the input for PATCH /api/subscription/manage.
type UpdateSettingsRequest struct {
	Action         string `json:"action" validate:"omitempty,oneof=cancel toggle_renewal"`
	AutoRenewal    *bool  `json:"autoRenewal"`
	SubscriptionID string `json:"subscriptionId"`
	Reason         string `json:"reason" validate:"max=500"`
}

// Usage kinds.
const (
	UsageGig         = "gig"
	UsageApplication = "application"
)

// RecordUsageRequest is the input for POST /api/subscription/usage.
type RecordUsageRequest struct {
	Kind string `json:"kind" validate:"required,oneof=gig application"`
}
