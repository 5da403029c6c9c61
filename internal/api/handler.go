package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"mt5_dashboard/internal/auth"
	"mt5_dashboard/internal/dashboard"
	"mt5_dashboard/internal/editor"
	"mt5_dashboard/pkg/services/backend"
)

// Handler обрабатывает API запросы локальной панели
type Handler struct {
	session     *dashboard.Session
	authService *auth.Service
	hub         *Hub
	logger      *slog.Logger
}

// New создает обработчик. authService == nil отключает авторизацию.
func New(session *dashboard.Session, authService *auth.Service, hub *Hub, logger *slog.Logger) *Handler {
	return &Handler{
		session:     session,
		authService: authService,
		hub:         hub,
		logger:      logger.With(slog.String("component", "api")),
	}
}

// Helper функции для JSON ответов

type ErrorResponse struct {
	Error string `json:"error"`
}

type SuccessResponse struct {
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, ErrorResponse{Error: message})
}

func (h *Handler) respondSuccess(w http.ResponseWriter, message string, data any) {
	h.respondJSON(w, http.StatusOK, SuccessResponse{
		Message: message,
		Data:    data,
	})
}

// respondFailure отвечает ошибкой действия с понятным пользователю текстом
func (h *Handler) respondFailure(w http.ResponseWriter, err error) {
	h.respondError(w, statusFor(err), dashboard.Describe(err))
}

// statusFor выбирает HTTP код для ошибки действия
func statusFor(err error) int {
	var (
		validation *editor.ValidationError
		rejected   *backend.RejectedError
	)

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, editor.ErrIndexOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, editor.ErrNotLoaded),
		errors.Is(err, editor.ErrBusy),
		errors.Is(err, dashboard.ErrBotRunning),
		errors.Is(err, dashboard.ErrBotNotRunning),
		errors.Is(err, dashboard.ErrMT5Disconnected),
		errors.Is(err, dashboard.ErrActionBusy):
		return http.StatusConflict
	case errors.As(err, &rejected):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	return dec.Decode(dst)
}
