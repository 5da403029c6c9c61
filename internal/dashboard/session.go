package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mt5_dashboard/internal/editor"
	"mt5_dashboard/internal/poller"
	"mt5_dashboard/internal/views"
	"mt5_dashboard/pkg/models"
	"mt5_dashboard/pkg/services/backend"
)

// Backend - все операции бэкенда, которые нужны сессии
type Backend interface {
	poller.Backend
	editor.AssetBackend
	editor.ConfigBackend

	StartBot(ctx context.Context) (models.ActionResult, error)
	StopBot(ctx context.Context) (models.ActionResult, error)
	TestMT5(ctx context.Context) (models.MT5TestResult, error)
	AssetCandles(ctx context.Context, symbol, timeframe string, limit int) (backend.CandleSeries, error)
}

// Poller - часть контроллера опроса, которой пользуется сессия
type Poller interface {
	Refresh()
	ActivityRunning() bool
}

// Controls - доступность кнопок панели управления
type Controls struct {
	CanStart bool `json:"can_start"`
	CanStop  bool `json:"can_stop"`
	CanTest  bool `json:"can_test"`
}

// AssetsView - состояние редактора активов
type AssetsView struct {
	Loaded      bool                  `json:"loaded"`
	Items       []models.Asset        `json:"items"`
	ActiveCount int                   `json:"active_count"`
	CanAdd      bool                  `json:"can_add"`
	CanRemove   bool                  `json:"can_remove"`
	CanCollect  bool                  `json:"can_collect"`
	LastReport  *models.CollectReport `json:"last_report,omitempty"`
}

// Snapshot - копия всего, что нужно для отрисовки панели
type Snapshot struct {
	View            views.View              `json:"view"`
	Status          *models.BotStatus       `json:"status,omitempty"`
	StatusAt        *time.Time              `json:"status_at,omitempty"`
	Controls        Controls                `json:"controls"`
	ActivityPolling bool                    `json:"activity_polling"`
	Trades          []models.Trade          `json:"trades"`
	Logs            []models.LogEntry       `json:"logs"`
	Summary         views.TradeSummary      `json:"summary"`
	LogLevels       map[models.LogLevel]int `json:"log_levels"`
	Config          editor.ConfigSnapshot   `json:"config"`
	Assets          AssetsView              `json:"assets"`
}

// Session связывает опрос, редакторы и вкладки одной панели.
// Блокировка сессии никогда не удерживается во время вызовов в Poller.
type Session struct {
	backend  Backend
	notifier Notifier
	logger   *slog.Logger

	views  *views.Coordinator
	config *editor.ConfigEditor
	assets *editor.AssetEditor

	poller atomic.Pointer[Poller]
	feed   feed

	controlBusy atomic.Bool

	mu       sync.RWMutex
	status   *models.BotStatus
	statusAt time.Time
	trades   []models.Trade
	logs     []models.LogEntry

	subsMu sync.Mutex
	subs   map[int]func(Snapshot)
	nextID int
}

// New создает сессию. notifier может быть nil.
func New(b Backend, notifier Notifier, logger *slog.Logger) *Session {
	s := &Session{
		backend:  b,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "session")),
		subs:     make(map[int]func(Snapshot)),
	}

	s.views = views.NewCoordinator(func(prev, next views.View) {
		s.logger.Debug("View switched", slog.String("from", string(prev)), slog.String("to", string(next)))
		s.Publish()
	})
	s.config = editor.NewConfigEditor(b, s.refresh, logger)
	s.assets = editor.NewAssetEditor(b, logger)

	return s
}

// AttachPoller подключает контроллер опроса для обновлений после действий
func (s *Session) AttachPoller(p Poller) {
	s.poller.Store(&p)
}

// Views возвращает координатор вкладок
func (s *Session) Views() *views.Coordinator {
	return s.views
}

// Config возвращает редактор конфигурации
func (s *Session) Config() *editor.ConfigEditor {
	return s.config
}

// Assets возвращает редактор активов
func (s *Session) Assets() *editor.AssetEditor {
	return s.assets
}

// ApplyStatus сохраняет свежий статус
func (s *Session) ApplyStatus(status models.BotStatus) {
	s.mu.Lock()
	s.status = &status
	s.statusAt = time.Now()
	s.mu.Unlock()

	s.Publish()
}

// ApplyActivity сохраняет свежие сделки и логи
func (s *Session) ApplyActivity(trades []models.Trade, logs []models.LogEntry) {
	s.mu.Lock()
	s.trades = trades
	s.logs = logs
	s.mu.Unlock()

	s.Publish()
}

// Status возвращает последний статус
func (s *Session) Status() (models.BotStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.status == nil {
		return models.BotStatus{}, false
	}

	return *s.status, true
}

// Snapshot собирает копию состояния
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	var (
		status   *models.BotStatus
		statusAt *time.Time
	)

	if s.status != nil {
		st := *s.status
		at := s.statusAt
		status, statusAt = &st, &at
	}

	trades, logs := s.trades, s.logs
	s.mu.RUnlock()

	snap := Snapshot{
		View:      s.views.Active(),
		Status:    status,
		StatusAt:  statusAt,
		Controls:  controlsFor(status),
		Trades:    views.NewestFirstTrades(trades),
		Logs:      views.NewestFirstLogs(logs),
		Summary:   views.Summarize(trades),
		LogLevels: views.CountLogLevels(logs),
		Config:    s.config.Snapshot(),
		Assets:    s.assetsView(),
	}

	if s.controlBusy.Load() {
		snap.Controls = Controls{}
	} else {
		snap.Controls.CanTest = true
	}

	if p := s.poller.Load(); p != nil {
		snap.ActivityPolling = (*p).ActivityRunning()
	}

	return snap
}

func (s *Session) assetsView() AssetsView {
	items := s.assets.Assets()

	return AssetsView{
		Loaded:      s.assets.Loaded(),
		Items:       items,
		ActiveCount: s.assets.ActiveCount(),
		CanAdd:      s.assets.Loaded() && len(items) < models.MaxAssets,
		CanRemove:   s.assets.CanRemove(),
		CanCollect:  s.assets.CanCollect(),
		LastReport:  s.assets.LastReport(),
	}
}

// controlsFor повторяет условия доступности кнопок панели управления
func controlsFor(status *models.BotStatus) Controls {
	if status == nil {
		return Controls{}
	}

	return Controls{
		CanStart: !status.BotRunning && status.MT5Connected,
		CanStop:  status.BotRunning,
	}
}

// StartBot запускает бота. Отказывает, если бот уже работает или MT5 не подключен.
func (s *Session) StartBot(ctx context.Context) (models.ActionResult, error) {
	status, _ := s.Status()

	switch {
	case status.BotRunning:
		return models.ActionResult{}, ErrBotRunning
	case !status.MT5Connected:
		return models.ActionResult{}, ErrMT5Disconnected
	}

	var result models.ActionResult

	err := s.control(ctx, "Start bot", func(ctx context.Context) (string, error) {
		var err error
		result, err = s.backend.StartBot(ctx)

		return messageOr(result.Message, "Bot started"), err
	})

	return result, err
}

// StopBot останавливает бота. Отказывает, если бот не работает.
func (s *Session) StopBot(ctx context.Context) (models.ActionResult, error) {
	if status, _ := s.Status(); !status.BotRunning {
		return models.ActionResult{}, ErrBotNotRunning
	}

	var result models.ActionResult

	err := s.control(ctx, "Stop bot", func(ctx context.Context) (string, error) {
		var err error
		result, err = s.backend.StopBot(ctx)

		return messageOr(result.Message, "Bot stopped"), err
	})

	return result, err
}

// TestMT5 проверяет соединение с MT5
func (s *Session) TestMT5(ctx context.Context) (models.MT5TestResult, error) {
	var result models.MT5TestResult

	err := s.control(ctx, "MT5 connection", func(ctx context.Context) (string, error) {
		var err error
		result, err = s.backend.TestMT5(ctx)

		msg := messageOr(result.Message, "MT5 connection OK")
		if info := result.AccountInfo; info != nil {
			msg = fmt.Sprintf("%s\nAccount: %d\nServer: %s\nBalance: %.2f",
				msg, info.Login, info.Server, info.Balance)
		}

		return msg, err
	})

	return result, err
}

// control выполняет действие панели управления: одно за раз,
// с уведомлением об итоге и обновлением статуса после ответа.
func (s *Session) control(ctx context.Context, title string, action func(context.Context) (string, error)) error {
	if !s.controlBusy.CompareAndSwap(false, true) {
		return ErrActionBusy
	}
	defer s.controlBusy.Store(false)

	msg, err := action(ctx)
	if err != nil {
		s.logger.Warn("Control action failed", slog.String("action", title), slog.Any("error", err))
		s.notify(ctx, models.NotifyError, title, Describe(err))
	} else {
		s.logger.Info("✅ Control action done", slog.String("action", title))
		s.notify(ctx, models.NotifySuccess, title, msg)
	}

	s.refresh()

	return err
}

// LoadConfig загружает конфигурацию в редактор
func (s *Session) LoadConfig(ctx context.Context) error {
	err := s.config.Load(ctx)
	if err != nil {
		s.notify(ctx, models.NotifyError, "Load settings", Describe(err))
	}

	s.Publish()

	return err
}

// SaveConfig сохраняет конфигурацию целиком
func (s *Session) SaveConfig(ctx context.Context) (models.ActionResult, error) {
	result, err := s.config.Save(ctx)
	if err != nil {
		s.notify(ctx, models.NotifyError, "Save settings", Describe(err))
	} else {
		s.notify(ctx, models.NotifySuccess, "Save settings", messageOr(result.Message, "Settings saved"))
	}

	s.Publish()

	return result, err
}

// LoadAssets загружает список активов в редактор
func (s *Session) LoadAssets(ctx context.Context) error {
	err := s.assets.Load(ctx)
	if err != nil {
		s.notify(ctx, models.NotifyError, "Load assets", Describe(err))
	}

	s.Publish()

	return err
}

// SaveAssets проверяет и сохраняет список активов
func (s *Session) SaveAssets(ctx context.Context) (models.ActionResult, error) {
	result, err := s.assets.Save(ctx)
	if err != nil {
		s.notify(ctx, models.NotifyError, "Save assets", Describe(err))
	} else {
		s.notify(ctx, models.NotifySuccess, "Save assets", messageOr(result.Message, "Assets saved"))
	}

	s.Publish()

	return result, err
}

// CollectCandles запускает сбор свечей. Счетчики попадают в уведомление при любом ответе.
func (s *Session) CollectCandles(ctx context.Context) (models.CollectReport, error) {
	report, err := s.assets.Collect(ctx)

	counts := fmt.Sprintf("Collected: %d, skipped: %d, errors: %d", report.Collected, report.Skipped, report.Errors)

	switch {
	case err == nil:
		s.notify(ctx, models.NotifySuccess, "Collect candles", counts)
	case editor.ServerReport(err):
		s.notify(ctx, models.NotifyError, "Collect candles", Describe(err)+"\n"+counts)
	default:
		s.notify(ctx, models.NotifyError, "Collect candles", Describe(err))
	}

	s.Publish()

	return report, err
}

// Candles возвращает свечи актива
func (s *Session) Candles(ctx context.Context, symbol, timeframe string, limit int) (backend.CandleSeries, error) {
	return s.backend.AssetCandles(ctx, symbol, timeframe, limit)
}

// Refresh запрашивает статус и активность вне расписания
func (s *Session) Refresh() {
	s.refresh()
}

func (s *Session) refresh() {
	if p := s.poller.Load(); p != nil {
		(*p).Refresh()
	}
}

// Notifications возвращает последние уведомления, новые первыми
func (s *Session) Notifications() []models.Notification {
	return s.feed.recent()
}

func (s *Session) notify(ctx context.Context, level models.NotificationLevel, title, message string) {
	n := models.Notification{
		ID:      uuid.NewString(),
		Level:   level,
		Title:   title,
		Message: message,
		Time:    time.Now().UTC(),
	}

	s.feed.push(n)

	if s.notifier == nil {
		return
	}

	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("Notification not delivered", slog.String("id", n.ID), slog.Any("error", err))
	}
}

// Subscribe регистрирует получателя снимков. fn не должен блокироваться.
func (s *Session) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

// Publish рассылает текущий снимок подписчикам
func (s *Session) Publish() {
	s.subsMu.Lock()
	if len(s.subs) == 0 {
		s.subsMu.Unlock()
		return
	}

	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subsMu.Unlock()

	snap := s.Snapshot()
	for _, fn := range subs {
		fn(snap)
	}
}

func messageOr(msg, fallback string) string {
	if msg != "" {
		return msg
	}

	return fallback
}
