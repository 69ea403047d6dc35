package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gigmarket/backend/internal/domain"
	"github.com/gigmarket/backend/internal/service"
)

// UserHandler handles user management endpoints (admin only).
type UserHandler struct {
	auth *service.AuthService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(auth *service.AuthService) *UserHandler {
	return &UserHandler{auth: auth}
}

// List handles GET /api/admin/users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.auth.ListUsers(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, users)
}

// Create handles POST /api/admin/users.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateUserRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}

	user, err := h.auth.CreateUser(r.Context(), &req)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusCreated, user)
}

// Delete handles DELETE /api/admin/users/{id}.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		Error(w, err)
		return
	}
	Message(w, http.StatusOK, nil, "user deleted")
}
