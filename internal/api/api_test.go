package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mt5_dashboard/internal/auth"
	"mt5_dashboard/internal/dashboard"
	"mt5_dashboard/pkg/models"
	"mt5_dashboard/pkg/services/backend"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBot - бэкенд торгового бота в формате FastAPI
type fakeBot struct {
	mu      sync.Mutex
	running bool
	config  models.BotConfig
	assets  []models.Asset
	collect map[string]any
}

func newFakeBot() *fakeBot {
	return &fakeBot{
		config: models.BotConfig{
			Symbol: "EURUSD", Timeframe: "M15", Volume: 0.01, StopLoss: 50, TakeProfit: 100,
			MagicNumber: 234000, MaxSimultaneousTrades: 1, AnalysisInterval: 60, DemoMode: true,
		},
		assets: []models.Asset{{Symbol: "EURUSD", Active: true, Timeframes: []string{"H1"}}},
	}
}

func (b *fakeBot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	reply := func(v any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}

	switch {
	case r.URL.Path == "/api/status":
		reply(map[string]any{"bot_running": b.running, "mt5_connected": true})
	case r.URL.Path == "/api/bot/start":
		b.running = true
		reply(map[string]any{"success": true, "message": "Bot started"})
	case r.URL.Path == "/api/config" && r.Method == http.MethodGet:
		reply(b.config)
	case r.URL.Path == "/api/config":
		json.NewDecoder(r.Body).Decode(&b.config)
		reply(map[string]any{"success": true, "message": "Config updated"})
	case r.URL.Path == "/api/assets" && r.Method == http.MethodGet:
		reply(map[string]any{"assets": b.assets})
	case r.URL.Path == "/api/assets":
		json.NewDecoder(r.Body).Decode(&b.assets)
		reply(map[string]any{"success": true, "message": "Assets updated"})
	case r.URL.Path == "/api/assets/collect":
		reply(b.collect)
	case r.URL.Path == "/api/trades":
		reply(map[string]any{"trades": []any{}})
	case r.URL.Path == "/api/logs":
		reply(map[string]any{"logs": []any{}})
	case strings.HasSuffix(r.URL.Path, "/candles"):
		reply([]map[string]any{{"timestamp": "2024-01-02T10:00:00", "open": 1.1, "high": 1.2, "low": 1.0, "close": 1.15, "volume": 100}})
	default:
		w.WriteHeader(http.StatusNotFound)
		reply(map[string]any{"detail": "Not Found"})
	}
}

type testEnv struct {
	bot     *fakeBot
	session *dashboard.Session
	hub     *Hub
	server  *httptest.Server
	token   string
}

func newTestEnv(t *testing.T, authService *auth.Service) *testEnv {
	t.Helper()

	bot := newFakeBot()
	botServer := httptest.NewServer(bot)
	t.Cleanup(botServer.Close)

	client, err := backend.NewClient(backend.Options{BaseURL: botServer.URL}, discardLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	hub := NewHub(discardLogger())
	session := dashboard.New(client, hub, discardLogger())
	session.Subscribe(hub.PublishSnapshot)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	server := httptest.NewServer(New(session, authService, hub, discardLogger()).SetupRouter())
	t.Cleanup(server.Close)

	return &testEnv{bot: bot, session: session, hub: hub, server: server}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, map[string]json.RawMessage) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}

	req, _ := http.NewRequest(method, e.server.URL+path, reader)
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]json.RawMessage
	json.NewDecoder(resp.Body).Decode(&out)

	return resp.StatusCode, out
}

func errorText(out map[string]json.RawMessage) string {
	var s string
	json.Unmarshal(out["error"], &s)

	return s
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	if code, _ := env.do(t, http.MethodGet, "/health", nil); code != http.StatusOK {
		t.Fatalf("health = %d", code)
	}
}

func TestAuthRequiredWhenEnabled(t *testing.T) {
	hash, _ := auth.HashPassword("pass")
	env := newTestEnv(t, auth.NewService("secret", time.Hour, "admin", hash))

	if code, _ := env.do(t, http.MethodGet, "/api/state", nil); code != http.StatusUnauthorized {
		t.Fatalf("state without token = %d", code)
	}

	if code, _ := env.do(t, http.MethodPost, "/api/auth/login", LoginRequest{Username: "admin", Password: "bad"}); code != http.StatusUnauthorized {
		t.Fatalf("bad login = %d", code)
	}

	code, out := env.do(t, http.MethodPost, "/api/auth/login", LoginRequest{Username: "admin", Password: "pass"})
	if code != http.StatusOK {
		t.Fatalf("login = %d", code)
	}

	var login LoginResponse
	json.Unmarshal(out["data"], &login)
	env.token = login.Token

	if code, _ := env.do(t, http.MethodGet, "/api/state", nil); code != http.StatusOK {
		t.Fatalf("state with token = %d", code)
	}
}

func TestAssetEditingFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	if code, _ := env.do(t, http.MethodPost, "/api/assets", nil); code != http.StatusConflict {
		t.Fatalf("add before load = %d", code)
	}

	if code, _ := env.do(t, http.MethodPost, "/api/assets/load", nil); code != http.StatusOK {
		t.Fatalf("load = %d", code)
	}

	env.do(t, http.MethodPost, "/api/assets", nil)

	if code, _ := env.do(t, http.MethodPut, "/api/assets/1/symbol", SetSymbolRequest{Symbol: " eurusd"}); code != http.StatusOK {
		t.Fatalf("set symbol = %d", code)
	}

	code, out := env.do(t, http.MethodPost, "/api/assets/save", nil)
	if code != http.StatusBadRequest || !strings.Contains(errorText(out), "duplicate symbol") {
		t.Fatalf("save duplicate = %d %s", code, errorText(out))
	}

	env.do(t, http.MethodPut, "/api/assets/1/symbol", SetSymbolRequest{Symbol: "gbpusd"})

	if code, _ := env.do(t, http.MethodPut, "/api/assets/1/timeframes/M5", nil); code != http.StatusOK {
		t.Fatalf("toggle timeframe = %d", code)
	}

	if code, _ := env.do(t, http.MethodPut, "/api/assets/7/active", nil); code != http.StatusNotFound {
		t.Fatalf("toggle out of range = %d", code)
	}

	if code, out := env.do(t, http.MethodPost, "/api/assets/save", nil); code != http.StatusOK {
		t.Fatalf("save = %d %s", code, errorText(out))
	}

	env.bot.mu.Lock()
	defer env.bot.mu.Unlock()

	if len(env.bot.assets) != 2 || env.bot.assets[1].Symbol != "GBPUSD" ||
		len(env.bot.assets[1].Timeframes) != 2 {
		t.Fatalf("saved assets = %+v", env.bot.assets)
	}
}

func TestConfigPatchAndSave(t *testing.T) {
	env := newTestEnv(t, nil)

	if code, _ := env.do(t, http.MethodPatch, "/api/config", map[string]any{"volume": 0.05}); code != http.StatusConflict {
		t.Fatalf("patch before load = %d", code)
	}

	env.do(t, http.MethodPost, "/api/config/load", nil)

	if code, out := env.do(t, http.MethodPatch, "/api/config", map[string]any{"volume": 0.05, "demo_mode": false, "timeframe": "h1"}); code != http.StatusOK {
		t.Fatalf("patch = %d %s", code, errorText(out))
	}

	code, out := env.do(t, http.MethodPatch, "/api/config", map[string]any{"volume": 500})
	if code != http.StatusBadRequest || !strings.Contains(errorText(out), "volume") {
		t.Fatalf("patch out of range = %d %s", code, errorText(out))
	}

	if code, _ := env.do(t, http.MethodPatch, "/api/config", map[string]any{"leverage": 10}); code != http.StatusBadRequest {
		t.Fatalf("patch unknown field = %d", code)
	}

	if code, _ := env.do(t, http.MethodPost, "/api/config/save", nil); code != http.StatusOK {
		t.Fatalf("save = %d", code)
	}

	env.bot.mu.Lock()
	defer env.bot.mu.Unlock()

	if env.bot.config.Volume != 0.05 || env.bot.config.DemoMode || env.bot.config.Timeframe != "H1" ||
		env.bot.config.MagicNumber != 234000 {
		t.Fatalf("saved config = %+v", env.bot.config)
	}
}

func TestControlPreconditions(t *testing.T) {
	env := newTestEnv(t, nil)

	if code, _ := env.do(t, http.MethodPost, "/api/bot/start", nil); code != http.StatusConflict {
		t.Fatalf("start without status = %d", code)
	}

	env.session.ApplyStatus(models.BotStatus{MT5Connected: true})

	if code, _ := env.do(t, http.MethodPost, "/api/bot/stop", nil); code != http.StatusConflict {
		t.Fatalf("stop while stopped = %d", code)
	}

	if code, _ := env.do(t, http.MethodPost, "/api/bot/start", nil); code != http.StatusOK {
		t.Fatalf("start = %d", code)
	}

	_, out := env.do(t, http.MethodGet, "/api/notifications", nil)

	var notes []models.Notification
	json.Unmarshal(out["data"], &notes)

	if len(notes) != 1 || notes[0].Message != "Bot started" {
		t.Fatalf("notifications = %+v", notes)
	}
}

func TestCollectReturnsReportOnFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.bot.collect = map[string]any{"success": false, "message": "MT5 not connected", "collected": 0, "skipped": 1, "errors": 1}

	env.do(t, http.MethodPost, "/api/assets/load", nil)

	code, out := env.do(t, http.MethodPost, "/api/assets/collect", nil)
	if code != http.StatusUnprocessableEntity || errorText(out) != "MT5 not connected" {
		t.Fatalf("collect = %d %s", code, errorText(out))
	}

	var report models.CollectReport
	json.Unmarshal(out["data"], &report)

	if report.Skipped != 1 || report.Errors != 1 {
		t.Fatalf("report = %+v", report)
	}
}

func TestCollectReturnsZeroCountReport(t *testing.T) {
	env := newTestEnv(t, nil)
	env.bot.collect = map[string]any{"success": false, "message": "MT5 not connected"}

	env.do(t, http.MethodPost, "/api/assets/load", nil)

	code, out := env.do(t, http.MethodPost, "/api/assets/collect", nil)
	if code != http.StatusUnprocessableEntity || len(out["data"]) == 0 || string(out["data"]) == "null" {
		t.Fatalf("collect = %d %v", code, out)
	}

	var report models.CollectReport
	if err := json.Unmarshal(out["data"], &report); err != nil || report.Message != "MT5 not connected" {
		t.Fatalf("report = %+v, %v", report, err)
	}
}

func TestSelectViewAndCandles(t *testing.T) {
	env := newTestEnv(t, nil)

	if code, _ := env.do(t, http.MethodPut, "/api/view", SelectViewRequest{View: "charts"}); code != http.StatusBadRequest {
		t.Fatalf("unknown view = %d", code)
	}

	if code, _ := env.do(t, http.MethodPut, "/api/view", SelectViewRequest{View: "logs"}); code != http.StatusOK {
		t.Fatalf("select view = %d", code)
	}

	if v := env.session.Views().Active(); v != "logs" {
		t.Fatalf("active view = %s", v)
	}

	code, out := env.do(t, http.MethodGet, "/api/assets/eurusd/candles?limit=10", nil)
	if code != http.StatusOK {
		t.Fatalf("candles = %d", code)
	}

	var series backend.CandleSeries
	json.Unmarshal(out["data"], &series)

	if series.Symbol != "EURUSD" || series.Timeframe != "H1" || len(series.Candles) != 1 {
		t.Fatalf("series = %+v", series)
	}
}

func TestWebSocketStreamsSnapshots(t *testing.T) {
	env := newTestEnv(t, nil)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first struct {
		Type string             `json:"type"`
		Data dashboard.Snapshot `json:"data"`
	}

	if err := conn.ReadJSON(&first); err != nil || first.Type != EventSnapshot {
		t.Fatalf("first event = %+v, %v", first.Type, err)
	}

	// первый снимок уходит из writePump, значит клиент уже зарегистрирован
	env.session.ApplyStatus(models.BotStatus{BotRunning: true, MT5Connected: true})

	for {
		var next struct {
			Type string             `json:"type"`
			Data dashboard.Snapshot `json:"data"`
		}

		if err := conn.ReadJSON(&next); err != nil {
			t.Fatalf("status update not streamed: %v", err)
		}

		if next.Type == EventSnapshot && next.Data.Status != nil && next.Data.Status.BotRunning {
			return
		}
	}
}

func TestHubWarnsWhenNotificationDropped(t *testing.T) {
	var buf bytes.Buffer
	hub := NewHub(slog.New(slog.NewTextHandler(&buf, nil)))

	// Run не запущен: очередь рассылки заполняется и больше не разбирается
	for i := 0; i < cap(hub.broadcast); i++ {
		hub.PublishSnapshot(dashboard.Snapshot{})
	}

	hub.Notify(context.Background(), models.Notification{ID: "n1", Title: "Start bot"})

	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "notification dropped") {
		t.Fatalf("log = %s", buf.String())
	}
}
