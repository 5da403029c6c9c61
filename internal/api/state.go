package api

import (
	"net/http"

	"mt5_dashboard/internal/views"
)

type SelectViewRequest struct {
	View string `json:"view"`
}

// HandleState возвращает снимок панели
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	h.respondSuccess(w, "", h.session.Snapshot())
}

// HandleSelectView переключает вкладку
func (h *Handler) HandleSelectView(w http.ResponseWriter, r *http.Request) {
	var req SelectViewRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	view, err := views.ParseView(req.View)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.session.Views().Select(view)

	h.respondSuccess(w, "View selected", map[string]views.View{"view": view})
}

// HandleRefresh запрашивает статус и активность вне расписания
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	h.session.Refresh()

	h.respondJSON(w, http.StatusAccepted, SuccessResponse{Message: "Refresh requested"})
}

// HandleStartBot запускает бота
func (h *Handler) HandleStartBot(w http.ResponseWriter, r *http.Request) {
	result, err := h.session.StartBot(r.Context())
	if err != nil {
		h.respondFailure(w, err)
		return
	}

	h.respondSuccess(w, result.Message, result)
}

// HandleStopBot останавливает бота
func (h *Handler) HandleStopBot(w http.ResponseWriter, r *http.Request) {
	result, err := h.session.StopBot(r.Context())
	if err != nil {
		h.respondFailure(w, err)
		return
	}

	h.respondSuccess(w, result.Message, result)
}

// HandleTestMT5 проверяет соединение с MT5
func (h *Handler) HandleTestMT5(w http.ResponseWriter, r *http.Request) {
	result, err := h.session.TestMT5(r.Context())
	if err != nil {
		h.respondFailure(w, err)
		return
	}

	h.respondSuccess(w, result.Message, result)
}

// HandleNotifications возвращает последние уведомления
func (h *Handler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	h.respondSuccess(w, "", h.session.Notifications())
}
