package service

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/gigmarket/backend/internal/domain"
)

const paymentMethodGateway = "razorpay"

// minorUnits converts a major-unit price to the gateway's minor units.
func minorUnits(price int64) int64 {
	return price * 100
}

// ledgerRow builds the Payment row for a charge attempt on sub.
func ledgerRow(sub *domain.Subscription, status domain.PaymentStatus, amount int64, ref domain.GatewayRef, now time.Time) *domain.Payment {
	return &domain.Payment{
		ID:            domain.NewID(),
		PayerID:       sub.UserID,
		PayeeID:       domain.PlatformPayee,
		Amount:        amount,
		Currency:      sub.Currency,
		Status:        status,
		Type:          domain.PaymentKindSubscription,
		PaymentMethod: paymentMethodGateway,
		TransactionID: ref.PaymentID,
		Metadata: map[string]string{
			"subscriptionId": sub.ID,
			"planType":       string(sub.PlanType),
			"duration":       string(sub.Duration),
		},
		Gateway:   ref,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// appendLedger writes a ledger row. Failures are logged and never fail the caller.
func appendLedger(ctx context.Context, store PaymentStore, p *domain.Payment) {
	if err := store.Create(ctx, p); err != nil {
		slog.ErrorContext(ctx, "failed to record payment",
			"subscription_id", p.Metadata["subscriptionId"],
			"payment_id", p.Gateway.PaymentID,
			"status", p.Status,
			"error", err)
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// formatValidationErrors lists the failing fields without echoing values.
func formatValidationErrors(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return "invalid or missing fields: " + strings.Join(fields, ", ")
}
