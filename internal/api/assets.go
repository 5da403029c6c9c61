package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"mt5_dashboard/internal/dashboard"
	"mt5_dashboard/internal/editor"
)

type SetSymbolRequest struct {
	Symbol string `json:"symbol"`
}

// HandleGetAssets возвращает состояние редактора активов
func (h *Handler) HandleGetAssets(w http.ResponseWriter, r *http.Request) {
	h.respondSuccess(w, "", h.session.Snapshot().Assets)
}

// HandleLoadAssets загружает список с бэкенда, правки теряются
func (h *Handler) HandleLoadAssets(w http.ResponseWriter, r *http.Request) {
	if err := h.session.LoadAssets(r.Context()); err != nil {
		h.respondFailure(w, err)
		return
	}

	h.respondSuccess(w, "Assets loaded", h.session.Snapshot().Assets)
}

// HandleAddAsset добавляет пустой актив
func (h *Handler) HandleAddAsset(w http.ResponseWriter, r *http.Request) {
	h.editAssets(w, "Asset added", h.session.Assets().Add)
}

// HandleRemoveAsset удаляет актив по индексу
func (h *Handler) HandleRemoveAsset(w http.ResponseWriter, r *http.Request) {
	index, ok := h.assetIndex(w, r)
	if !ok {
		return
	}

	h.editAssets(w, "Asset removed", func() error {
		return h.session.Assets().Remove(index)
	})
}

// HandleSetAssetSymbol меняет символ актива
func (h *Handler) HandleSetAssetSymbol(w http.ResponseWriter, r *http.Request) {
	index, ok := h.assetIndex(w, r)
	if !ok {
		return
	}

	var req SetSymbolRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.editAssets(w, "Symbol updated", func() error {
		return h.session.Assets().SetSymbol(index, req.Symbol)
	})
}

// HandleToggleAssetActive переключает флаг active
func (h *Handler) HandleToggleAssetActive(w http.ResponseWriter, r *http.Request) {
	index, ok := h.assetIndex(w, r)
	if !ok {
		return
	}

	h.editAssets(w, "Asset toggled", func() error {
		return h.session.Assets().ToggleActive(index)
	})
}

// HandleToggleAssetTimeframe добавляет или убирает таймфрейм
func (h *Handler) HandleToggleAssetTimeframe(w http.ResponseWriter, r *http.Request) {
	index, ok := h.assetIndex(w, r)
	if !ok {
		return
	}

	timeframe := mux.Vars(r)["tf"]

	h.editAssets(w, "Timeframe toggled", func() error {
		return h.session.Assets().ToggleTimeframe(index, timeframe)
	})
}

// HandleSaveAssets проверяет и сохраняет список
func (h *Handler) HandleSaveAssets(w http.ResponseWriter, r *http.Request) {
	result, err := h.session.SaveAssets(r.Context())
	if err != nil {
		h.respondFailure(w, err)
		return
	}

	h.respondSuccess(w, result.Message, h.session.Snapshot().Assets)
}

// HandleCollectCandles запускает сбор свечей.
// Отчет возвращается и при отказе бэкенда, даже с нулевыми счетчиками.
func (h *Handler) HandleCollectCandles(w http.ResponseWriter, r *http.Request) {
	report, err := h.session.CollectCandles(r.Context())
	if err != nil {
		if editor.ServerReport(err) {
			h.respondJSON(w, statusFor(err), struct {
				ErrorResponse
				Data any `json:"data"`
			}{ErrorResponse{Error: dashboard.Describe(err)}, report})

			return
		}

		h.respondFailure(w, err)

		return
	}

	h.respondSuccess(w, report.Message, report)
}

// HandleAssetCandles возвращает свечи актива с бэкенда
func (h *Handler) HandleAssetCandles(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}

		limit = n
	}

	series, err := h.session.Candles(r.Context(), symbol, q.Get("timeframe"), limit)
	if err != nil {
		h.respondFailure(w, err)
		return
	}

	h.respondSuccess(w, "", series)
}

func (h *Handler) assetIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid asset index")
		return 0, false
	}

	return index, true
}

// editAssets применяет локальную правку и рассылает новый снимок
func (h *Handler) editAssets(w http.ResponseWriter, message string, edit func() error) {
	if err := edit(); err != nil {
		h.respondFailure(w, err)
		return
	}

	h.session.Publish()

	h.respondSuccess(w, message, h.session.Snapshot().Assets)
}
