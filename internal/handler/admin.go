package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gigmarket/backend/internal/domain"
	"github.com/gigmarket/backend/internal/service"
)

type AdminHandler struct {
	admin *service.AdminService
}

func NewAdminHandler(admin *service.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// GetStats returns marketplace-wide subscription and payment counters.
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, stats)
}

// ListPayments handles GET /api/admin/payments.
func (h *AdminHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.admin.ListPayments(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, payments)
}

// UpdatePaymentStatus handles PATCH /api/admin/payments/{id}/status.
func (h *AdminHandler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdatePaymentStatusRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}

	p, err := h.admin.UpdatePaymentStatus(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		Error(w, err)
		return
	}
	Message(w, http.StatusOK, p, "payment status updated")
}
