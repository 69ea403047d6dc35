package handler

import (
	"io"
	"net/http"

	"github.com/gigmarket/backend/internal/service"
)

// Razorpay delivery headers.
const (
	HeaderSignature = "X-Razorpay-Signature"
	HeaderEventID   = "X-Razorpay-Event-Id"
)

type WebhookHandler struct {
	svc *service.WebhookService
}

func NewWebhookHandler(svc *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{svc: svc}
}

// Handle handles POST /api/subscription/webhook. The signature covers the
// raw body, so it is read as bytes and never re-encoded.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		Fail(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if err := h.svc.Handle(r.Context(), body, r.Header.Get(HeaderSignature), r.Header.Get(HeaderEventID)); err != nil {
		Error(w, err)
		return
	}
	Message(w, http.StatusOK, nil, "webhook processed")
}
