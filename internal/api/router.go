package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"mt5_dashboard/internal/middleware"
)

// SetupRouter настраивает роутинг для API.
// CORS оборачивает весь роутер, чтобы preflight доходил до любого маршрута.
func (h *Handler) SetupRouter() http.Handler {
	r := mux.NewRouter()

	// Публичные маршруты (не требуют аутентификации)
	r.HandleFunc("/health", h.HandleHealth).Methods("GET")
	r.HandleFunc("/api/auth/login", h.HandleLogin).Methods("POST")

	// Защищенные маршруты, если задан JWT_SECRET
	api := r.PathPrefix("/api").Subrouter()
	if h.authService != nil {
		api.Use(middleware.AuthMiddleware(h.authService))
	}

	// Состояние панели
	api.HandleFunc("/state", h.HandleState).Methods("GET")
	api.HandleFunc("/ws", h.HandleWebSocket).Methods("GET")
	api.HandleFunc("/view", h.HandleSelectView).Methods("PUT")
	api.HandleFunc("/refresh", h.HandleRefresh).Methods("POST")
	api.HandleFunc("/notifications", h.HandleNotifications).Methods("GET")

	// Управление ботом
	api.HandleFunc("/bot/start", h.HandleStartBot).Methods("POST")
	api.HandleFunc("/bot/stop", h.HandleStopBot).Methods("POST")
	api.HandleFunc("/mt5/test", h.HandleTestMT5).Methods("POST")

	// Конфигурация
	api.HandleFunc("/config", h.HandleGetConfig).Methods("GET")
	api.HandleFunc("/config", h.HandlePatchConfig).Methods("PATCH")
	api.HandleFunc("/config/load", h.HandleLoadConfig).Methods("POST")
	api.HandleFunc("/config/save", h.HandleSaveConfig).Methods("POST")

	// Активы
	api.HandleFunc("/assets", h.HandleGetAssets).Methods("GET")
	api.HandleFunc("/assets", h.HandleAddAsset).Methods("POST")
	api.HandleFunc("/assets/load", h.HandleLoadAssets).Methods("POST")
	api.HandleFunc("/assets/save", h.HandleSaveAssets).Methods("POST")
	api.HandleFunc("/assets/collect", h.HandleCollectCandles).Methods("POST")
	api.HandleFunc("/assets/{index:[0-9]+}", h.HandleRemoveAsset).Methods("DELETE")
	api.HandleFunc("/assets/{index:[0-9]+}/symbol", h.HandleSetAssetSymbol).Methods("PUT")
	api.HandleFunc("/assets/{index:[0-9]+}/active", h.HandleToggleAssetActive).Methods("PUT")
	api.HandleFunc("/assets/{index:[0-9]+}/timeframes/{tf}", h.HandleToggleAssetTimeframe).Methods("PUT")
	api.HandleFunc("/assets/{symbol}/candles", h.HandleAssetCandles).Methods("GET")

	return middleware.CORS(r)
}

// HandleHealth возвращает статус здоровья сервиса
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondSuccess(w, "OK", map[string]string{
		"status": "healthy",
	})
}
