package dashboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"mt5_dashboard/internal/editor"
	"mt5_dashboard/internal/views"
	"mt5_dashboard/pkg/models"
	"mt5_dashboard/pkg/services/backend"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBackend struct {
	mu       sync.Mutex
	starts   int
	stops    int
	startErr error
	mt5      models.MT5TestResult
	mt5Err   error
	assets   []models.Asset
	config   models.BotConfig
	collect  models.CollectReport
	collErr  error
	saveErr  error
}

func (f *fakeBackend) Status(ctx context.Context) (models.BotStatus, error) {
	return models.BotStatus{}, nil
}

func (f *fakeBackend) Trades(ctx context.Context, limit int) ([]models.Trade, error) {
	return nil, nil
}

func (f *fakeBackend) Logs(ctx context.Context, limit int) ([]models.LogEntry, error) {
	return nil, nil
}

func (f *fakeBackend) StartBot(ctx context.Context) (models.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.starts++
	if f.startErr != nil {
		return models.ActionResult{}, f.startErr
	}

	return models.ActionResult{Success: true, Message: "Bot started successfully"}, nil
}

func (f *fakeBackend) StopBot(ctx context.Context) (models.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stops++

	return models.ActionResult{Success: true}, nil
}

func (f *fakeBackend) TestMT5(ctx context.Context) (models.MT5TestResult, error) {
	return f.mt5, f.mt5Err
}

func (f *fakeBackend) GetConfig(ctx context.Context) (models.BotConfig, error) {
	return f.config, nil
}

func (f *fakeBackend) UpdateConfig(ctx context.Context, cfg models.BotConfig) (models.ActionResult, error) {
	if f.saveErr != nil {
		return models.ActionResult{}, f.saveErr
	}

	f.config = cfg

	return models.ActionResult{Success: true}, nil
}

func (f *fakeBackend) Assets(ctx context.Context) ([]models.Asset, error) {
	return f.assets, nil
}

func (f *fakeBackend) UpdateAssets(ctx context.Context, assets []models.Asset) (models.ActionResult, error) {
	f.assets = assets

	return models.ActionResult{Success: true, Message: "Assets updated"}, nil
}

func (f *fakeBackend) CollectCandles(ctx context.Context) (models.CollectReport, error) {
	return f.collect, f.collErr
}

func (f *fakeBackend) AssetCandles(ctx context.Context, symbol, timeframe string, limit int) (backend.CandleSeries, error) {
	return backend.CandleSeries{Symbol: symbol, Timeframe: timeframe}, nil
}

type fakePoller struct {
	refreshes atomic.Int32
}

func (p *fakePoller) Refresh()              { p.refreshes.Add(1) }
func (p *fakePoller) ActivityRunning() bool { return false }

type recordingNotifier struct {
	mu    sync.Mutex
	items []models.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = append(r.items, n)

	return nil
}

func newSession(b *fakeBackend) (*Session, *fakePoller, *recordingNotifier) {
	notifier := &recordingNotifier{}
	s := New(b, notifier, discardLogger())
	p := &fakePoller{}
	s.AttachPoller(p)

	return s, p, notifier
}

func TestStartBotPreconditions(t *testing.T) {
	b := &fakeBackend{}
	s, p, _ := newSession(b)

	if _, err := s.StartBot(context.Background()); !errors.Is(err, ErrMT5Disconnected) {
		t.Fatalf("start without status = %v", err)
	}

	s.ApplyStatus(models.BotStatus{BotRunning: true, MT5Connected: true})

	if _, err := s.StartBot(context.Background()); !errors.Is(err, ErrBotRunning) {
		t.Fatalf("start while running = %v", err)
	}

	if b.starts != 0 || p.refreshes.Load() != 0 {
		t.Fatalf("refused start reached backend: starts=%d refreshes=%d", b.starts, p.refreshes.Load())
	}

	s.ApplyStatus(models.BotStatus{MT5Connected: true})

	if _, err := s.StopBot(context.Background()); !errors.Is(err, ErrBotNotRunning) {
		t.Fatalf("stop while stopped = %v", err)
	}
}

func TestStartBotNotifiesAndRefreshes(t *testing.T) {
	b := &fakeBackend{}
	s, p, notifier := newSession(b)
	s.ApplyStatus(models.BotStatus{MT5Connected: true})

	result, err := s.StartBot(context.Background())
	if err != nil || !result.Success {
		t.Fatalf("StartBot = %+v, %v", result, err)
	}

	if p.refreshes.Load() != 1 {
		t.Fatalf("refreshes = %d", p.refreshes.Load())
	}

	if len(notifier.items) != 1 || notifier.items[0].Level != models.NotifySuccess ||
		notifier.items[0].Message != "Bot started successfully" || notifier.items[0].ID == "" {
		t.Fatalf("notifications = %+v", notifier.items)
	}

	if feed := s.Notifications(); len(feed) != 1 || feed[0].ID != notifier.items[0].ID {
		t.Fatalf("feed = %+v", feed)
	}
}

func TestRejectedStartSurfacesServerMessage(t *testing.T) {
	b := &fakeBackend{startErr: &backend.RejectedError{Op: "start bot", Message: "MT5 not initialized"}}
	s, p, notifier := newSession(b)
	s.ApplyStatus(models.BotStatus{MT5Connected: true})

	if _, err := s.StartBot(context.Background()); !errors.Is(err, backend.ErrRejected) {
		t.Fatalf("StartBot = %v", err)
	}

	if p.refreshes.Load() != 1 {
		t.Fatal("status not refreshed after failed action")
	}

	if n := notifier.items[0]; n.Level != models.NotifyError || n.Message != "MT5 not initialized" {
		t.Fatalf("notification = %+v", n)
	}
}

func TestTestMT5IncludesAccountInfo(t *testing.T) {
	b := &fakeBackend{mt5: models.MT5TestResult{
		Success:     true,
		Message:     "Connected",
		AccountInfo: &models.AccountInfo{Login: 5012345, Server: "Demo-Server", Balance: 10000},
	}}
	s, _, notifier := newSession(b)

	if _, err := s.TestMT5(context.Background()); err != nil {
		t.Fatalf("TestMT5: %v", err)
	}

	msg := notifier.items[0].Message
	for _, want := range []string{"5012345", "Demo-Server", "10000.00"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q lacks %q", msg, want)
		}
	}
}

func TestPollingUpdatesNeverNotify(t *testing.T) {
	s, _, notifier := newSession(&fakeBackend{})

	s.ApplyStatus(models.BotStatus{BotRunning: true})
	s.ApplyActivity(nil, nil)

	if len(notifier.items) != 0 {
		t.Fatalf("poll produced notifications: %+v", notifier.items)
	}
}

func TestSnapshot(t *testing.T) {
	s, _, _ := newSession(&fakeBackend{})

	p := 12.5
	s.ApplyStatus(models.BotStatus{BotRunning: true, MT5Connected: true})
	s.ApplyActivity(
		[]models.Trade{
			{ID: "old", Status: models.TradeClosed, Profit: &p},
			{ID: "new", Status: models.TradeOpen},
		},
		[]models.LogEntry{{Level: models.LogInfo, Message: "first"}, {Level: models.LogError, Message: "second"}},
	)
	s.Views().Select(views.ViewOperations)

	snap := s.Snapshot()

	if snap.View != views.ViewOperations {
		t.Fatalf("view = %s", snap.View)
	}

	if snap.Controls.CanStart || !snap.Controls.CanStop {
		t.Fatalf("controls = %+v", snap.Controls)
	}

	if snap.Trades[0].ID != "new" || snap.Logs[0].Message != "second" {
		t.Fatalf("display order: trades=%+v logs=%+v", snap.Trades, snap.Logs)
	}

	if snap.Summary.TotalProfit != 12.5 || snap.Summary.OpenCount != 1 || snap.Summary.ClosedCount != 1 {
		t.Fatalf("summary = %+v", snap.Summary)
	}

	if snap.LogLevels[models.LogError] != 1 {
		t.Fatalf("log levels = %v", snap.LogLevels)
	}

	if snap.Config.State != editor.ConfigIdle || snap.Assets.Loaded {
		t.Fatalf("editors = %+v %+v", snap.Config, snap.Assets)
	}
}

func TestSubscribersReceiveChanges(t *testing.T) {
	s, _, _ := newSession(&fakeBackend{})

	var got []Snapshot
	unsubscribe := s.Subscribe(func(snap Snapshot) { got = append(got, snap) })

	s.ApplyStatus(models.BotStatus{MT5Connected: true})
	s.Views().Select(views.ViewLogs)

	if len(got) != 2 || got[1].View != views.ViewLogs {
		t.Fatalf("snapshots = %d", len(got))
	}

	unsubscribe()
	s.ApplyStatus(models.BotStatus{})

	if len(got) != 2 {
		t.Fatal("snapshot delivered after unsubscribe")
	}
}

func TestSaveConfigRefreshesStatus(t *testing.T) {
	b := &fakeBackend{config: models.BotConfig{Symbol: "EURUSD", Timeframe: "M15", Volume: 0.01, StopLoss: 50, TakeProfit: 100, MaxSimultaneousTrades: 1, AnalysisInterval: 60}}
	s, p, notifier := newSession(b)

	if err := s.LoadConfig(context.Background()); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	s.Config().SetVolume(0.1)

	if _, err := s.SaveConfig(context.Background()); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	if b.config.Volume != 0.1 || p.refreshes.Load() != 1 {
		t.Fatalf("config=%+v refreshes=%d", b.config, p.refreshes.Load())
	}

	if notifier.items[0].Message != "Settings saved" {
		t.Fatalf("notification = %+v", notifier.items[0])
	}
}

func TestSaveAssetsValidationNotifies(t *testing.T) {
	b := &fakeBackend{assets: []models.Asset{
		{Symbol: "EURUSD", Active: true, Timeframes: []string{"H1"}},
		{Symbol: "GBPUSD", Active: true, Timeframes: []string{"H1"}},
	}}
	s, _, notifier := newSession(b)
	s.LoadAssets(context.Background())

	s.Assets().SetSymbol(1, "eurusd")

	_, err := s.SaveAssets(context.Background())
	if !errors.Is(err, editor.ErrDuplicateSymbol) {
		t.Fatalf("SaveAssets = %v", err)
	}

	var verr *editor.ValidationError
	errors.As(err, &verr)

	if n := notifier.items[0]; n.Level != models.NotifyError || n.Message != verr.Message {
		t.Fatalf("notification = %+v", n)
	}
}

func TestCollectFailureReportsCounts(t *testing.T) {
	b := &fakeBackend{
		assets:  []models.Asset{{Symbol: "EURUSD", Active: true, Timeframes: []string{"H1"}}},
		collect: models.CollectReport{Collected: 1, Errors: 1},
		collErr: &backend.RejectedError{Op: "collect candles", Message: "MT5 not connected"},
	}
	s, _, notifier := newSession(b)
	s.LoadAssets(context.Background())

	s.CollectCandles(context.Background())

	n := notifier.items[0]
	if n.Level != models.NotifyError || !strings.Contains(n.Message, "MT5 not connected") || !strings.Contains(n.Message, "errors: 1") {
		t.Fatalf("notification = %+v", n)
	}
}

func TestCollectZeroCountRejectionReportsCounts(t *testing.T) {
	b := &fakeBackend{
		assets:  []models.Asset{{Symbol: "EURUSD", Active: true, Timeframes: []string{"H1"}}},
		collect: models.CollectReport{Message: "MT5 not connected"},
		collErr: &backend.RejectedError{Op: "collect candles", Message: "MT5 not connected"},
	}
	s, _, notifier := newSession(b)
	s.LoadAssets(context.Background())

	s.CollectCandles(context.Background())

	n := notifier.items[0]
	if n.Level != models.NotifyError || !strings.Contains(n.Message, "Collected: 0, skipped: 0, errors: 0") {
		t.Fatalf("notification = %+v", n)
	}

	if snap := s.Snapshot(); snap.Assets.LastReport == nil {
		t.Fatal("snapshot lost the rejected collect report")
	}
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&editor.ValidationError{Kind: editor.ErrEmptySymbol, Message: "asset 2 has an empty symbol"}, "asset 2 has an empty symbol"},
		{&backend.RejectedError{Op: "x", Message: "Bot is already running"}, "Bot is already running"},
		{&backend.HTTPError{Op: "x", StatusCode: 500, Detail: "Internal error"}, "Internal error"},
		{&backend.HTTPError{Op: "x", StatusCode: 502}, "Server responded with HTTP 502"},
		{ErrBotNotRunning, "bot is not running"},
		{errors.New("dial tcp: connection refused"), genericTransportMessage},
	}

	for _, tc := range cases {
		if got := Describe(tc.err); got != tc.want {
			t.Errorf("Describe(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
