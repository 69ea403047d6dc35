package handler

import (
	"net/http"

	"github.com/gigmarket/backend/internal/domain"
	"github.com/gigmarket/backend/internal/service"
)

// AuthHandler handles authentication HTTP endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}

	resp, err := h.auth.Register(r.Context(), &req)
	if err != nil {
		Error(w, err)
		return
	}

	Message(w, http.StatusCreated, resp, "account created")
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}

	resp, err := h.auth.Login(r.Context(), &req)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, resp)
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	user, err := h.auth.GetUserByID(r.Context(), userID)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, user)
}
