package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"mt5_dashboard/internal/editor"
)

// HandleGetConfig возвращает состояние редактора конфигурации
func (h *Handler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	h.respondSuccess(w, "", h.session.Config().Snapshot())
}

// HandleLoadConfig загружает конфигурацию с бэкенда, правки теряются
func (h *Handler) HandleLoadConfig(w http.ResponseWriter, r *http.Request) {
	if err := h.session.LoadConfig(r.Context()); err != nil {
		h.respondFailure(w, err)
		return
	}

	h.respondSuccess(w, "Config loaded", h.session.Config().Snapshot())
}

// HandlePatchConfig меняет поля локальной записи.
// Тело - объект {поле: значение}, поля применяются по порядку формы до первой ошибки.
func (h *Handler) HandlePatchConfig(w http.ResponseWriter, r *http.Request) {
	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil || len(patch) == 0 {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	known := make(map[string]bool)
	for _, field := range editor.ConfigFields() {
		known[field] = true
	}

	for field := range patch {
		if !known[field] {
			h.respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown config field %q", field))
			return
		}
	}

	cfg := h.session.Config()

	for _, field := range editor.ConfigFields() {
		raw, ok := patch[field]
		if !ok {
			continue
		}

		if err := cfg.Set(field, rawValue(raw)); err != nil {
			h.session.Publish()
			h.respondFailure(w, err)

			return
		}
	}

	h.session.Publish()

	h.respondSuccess(w, "Config updated", cfg.Snapshot())
}

// rawValue превращает JSON значение в строку для ConfigEditor.Set
func rawValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	return strings.TrimSpace(string(raw))
}

// HandleSaveConfig отправляет запись целиком
func (h *Handler) HandleSaveConfig(w http.ResponseWriter, r *http.Request) {
	result, err := h.session.SaveConfig(r.Context())
	if err != nil {
		h.respondFailure(w, err)
		return
	}

	h.respondSuccess(w, result.Message, h.session.Config().Snapshot())
}
