package api

import (
	"errors"
	"log/slog"
	"net/http"

	"mt5_dashboard/internal/auth"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// HandleLogin обрабатывает вход пользователя
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if h.authService == nil {
		h.respondError(w, http.StatusNotFound, "Authentication is disabled")
		return
	}

	var req LoginRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		h.respondError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	token, err := h.authService.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.logger.Warn("Login failed", slog.String("username", req.Username))
			h.respondError(w, http.StatusUnauthorized, "Invalid credentials")

			return
		}

		h.logger.Error("Failed to generate token", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Internal server error")

		return
	}

	h.respondSuccess(w, "Login successful", LoginResponse{
		Token:    token,
		Username: req.Username,
	})
}
