package handler

import (
	"net/http"

	"github.com/gigmarket/backend/internal/domain"
	"github.com/gigmarket/backend/internal/service"
)

// SubscriptionHandler serves /api/subscription.
type SubscriptionHandler struct {
	svc *service.SubscriptionService
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(svc *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{svc: svc}
}

// Plans handles GET /api/subscription/plans?role=.
func (h *SubscriptionHandler) Plans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.svc.GetPlans(r.URL.Query().Get("role"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, plans)
}

// Create handles POST /api/subscription/create.
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req domain.CreateSubscriptionRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}

	resp, err := h.svc.CreateSubscription(r.Context(), userID, &req)
	if err != nil {
		Error(w, err)
		return
	}

	switch {
	case resp.Existing:
		Message(w, http.StatusOK, resp, "active subscription already exists")
	case resp.Order != nil:
		Message(w, http.StatusCreated, resp, "order created, complete payment to activate")
	default:
		Message(w, http.StatusCreated, resp, "subscription activated")
	}
}

// Status handles GET /api/subscription/status.
func (h *SubscriptionHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	status, err := h.svc.CheckSubscriptionStatus(r.Context(), userID)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, status)
}

// VerifyPayment handles POST /api/subscription/verify-payment.
func (h *SubscriptionHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req domain.VerifyPaymentRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}

	sub, err := h.svc.VerifyPayment(r.Context(), userID, &req)
	if err != nil {
		Error(w, err)
		return
	}
	Message(w, http.StatusOK, sub, "payment verified, subscription active")
}

// Manage handles GET /api/subscription/manage.
func (h *SubscriptionHandler) Manage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	resp, err := h.svc.GetSubscriptionManagement(r.Context(), userID)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, resp)
}

// UpdateSettings handles PATCH /api/subscription/manage.
func (h *SubscriptionHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req domain.UpdateSettingsRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}

	sub, err := h.svc.UpdateSubscriptionSettings(r.Context(), userID, &req)
	if err != nil {
		Error(w, err)
		return
	}
	Message(w, http.StatusOK, sub, "subscription updated")
}

// RecordUsage handles POST /api/subscription/usage.
func (h *SubscriptionHandler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req domain.RecordUsageRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}

	sub, err := h.svc.RecordUsage(r.Context(), userID, &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, sub.Usage)
}

// Payments handles GET /api/subscription/payments.
func (h *SubscriptionHandler) Payments(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	payments, err := h.svc.ListPayments(r.Context(), userID)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, payments)
}
