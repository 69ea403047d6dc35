package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gigmarket/backend/internal/contextkeys"
	"github.com/gigmarket/backend/internal/domain"
)

// maxBodyBytes bounds every decoded request body.
const maxBodyBytes = 1 << 20

// Envelope is the shape of every JSON answer.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Success    bool   `json:"success"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
}

func write(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// JSON writes a successful envelope carrying data.
func JSON(w http.ResponseWriter, status int, data any) {
	Message(w, status, data, "")
}

// Message writes a successful envelope with a human readable message.
func Message(w http.ResponseWriter, status int, data any, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	write(w, status, Envelope{StatusCode: status, Success: true, Data: data, Message: msg})
}

// Fail writes an error envelope.
func Fail(w http.ResponseWriter, status int, msg string) {
	write(w, status, Envelope{StatusCode: status, Success: false, Message: msg})
}

// Error writes an error envelope, using AppError status codes when available.
// Wrapped causes are logged, never sent to the client.
func Error(w http.ResponseWriter, err error) {
	if appErr, ok := domain.AsAppError(err); ok {
		if appErr.Code >= http.StatusInternalServerError {
			slog.Error(appErr.Message, "status", appErr.Code, "error", appErr.Err)
		}
		Fail(w, appErr.Code, appErr.Message)
		return
	}
	slog.Error("unhandled error", "error", err)
	Fail(w, http.StatusInternalServerError, "internal server error")
}

// DecodeJSON decodes a JSON request body into the given struct.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return domain.ErrBadRequest("invalid JSON body")
	}
	return nil
}

// UserID returns the authenticated user's id set by the auth middleware.
func UserID(r *http.Request) (string, bool) {
	id := contextkeys.UserIDFrom(r.Context())
	return id, id != ""
}

// requireUser answers 401 and reports false when the request carries no user.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := UserID(r)
	if !ok {
		Fail(w, http.StatusUnauthorized, "unauthorized")
	}
	return id, ok
}
