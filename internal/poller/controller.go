package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mt5_dashboard/pkg/models"
)

const (
	DefaultStatusInterval   = 5 * time.Second
	DefaultActivityInterval = 3 * time.Second
	DefaultTradesLimit      = 50
	DefaultLogsLimit        = 100
)

// Backend - запросы, которые выполняет опрос
type Backend interface {
	Status(ctx context.Context) (models.BotStatus, error)
	Trades(ctx context.Context, limit int) ([]models.Trade, error)
	Logs(ctx context.Context, limit int) ([]models.LogEntry, error)
}

// Sink принимает свежие данные опроса
type Sink interface {
	ApplyStatus(status models.BotStatus)
	ApplyActivity(trades []models.Trade, logs []models.LogEntry)
}

// Options - интервалы и лимиты опроса
type Options struct {
	StatusInterval   time.Duration
	ActivityInterval time.Duration
	TradesLimit      int
	LogsLimit        int
}

func (o Options) withDefaults() Options {
	if o.StatusInterval <= 0 {
		o.StatusInterval = DefaultStatusInterval
	}

	if o.ActivityInterval <= 0 {
		o.ActivityInterval = DefaultActivityInterval
	}

	if o.TradesLimit <= 0 {
		o.TradesLimit = DefaultTradesLimit
	}

	if o.LogsLimit <= 0 {
		o.LogsLimit = DefaultLogsLimit
	}

	return o
}

// Controller управляет двумя каденциями: статус опрашивается все время работы,
// сделки и логи - только пока бот запущен.
type Controller struct {
	backend Backend
	sink    Sink
	opts    Options
	logger  *slog.Logger

	status   *Cadence
	activity *Cadence

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// New создает контроллер опроса
func New(backend Backend, sink Sink, opts Options, logger *slog.Logger) *Controller {
	logger = logger.With(slog.String("component", "poller"))

	c := &Controller{
		backend: backend,
		sink:    sink,
		opts:    opts.withDefaults(),
		logger:  logger,
	}

	c.status = NewCadence("status", c.opts.StatusInterval, c.fetchStatus, logger)
	c.activity = NewCadence("activity", c.opts.ActivityInterval, c.fetchActivity, logger)

	return c
}

// Options возвращает действующие параметры
func (c *Controller) Options() Options {
	return c.opts
}

// Start запускает опрос статуса и один раз загружает сделки и логи
func (c *Controller) Start(parent context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return
	}

	c.ctx, c.cancel = context.WithCancel(parent)
	c.started = true

	c.logger.Info("📡 Polling started",
		slog.Duration("status_interval", c.opts.StatusInterval),
		slog.Duration("activity_interval", c.opts.ActivityInterval))

	c.status.Start(c.ctx)
	c.activity.TriggerOnce(c.ctx)
}

// Stop останавливает обе каденции
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}

	c.started = false
	cancel := c.cancel
	c.mu.Unlock()

	// статус первым: его commit может снова запустить activity
	c.status.Stop()
	c.activity.Stop()
	cancel()
	c.status.Wait()
	c.activity.Wait()

	c.logger.Info("🛑 Polling stopped")
}

// Refresh запрашивает статус и активность вне расписания
func (c *Controller) Refresh() {
	c.mu.Lock()
	ctx, started := c.ctx, c.started
	c.mu.Unlock()

	if !started {
		return
	}

	c.status.Trigger()

	if !c.activity.Trigger() {
		c.activity.TriggerOnce(ctx)
	}
}

// ActivityRunning сообщает, идет ли опрос сделок и логов
func (c *Controller) ActivityRunning() bool {
	return c.activity.Running()
}

// StatusRunning сообщает, идет ли опрос статуса
func (c *Controller) StatusRunning() bool {
	return c.status.Running()
}

func (c *Controller) fetchStatus(ctx context.Context) (func(), error) {
	status, err := c.backend.Status(ctx)
	if err != nil {
		return nil, err
	}

	return func() {
		c.sink.ApplyStatus(status)
		c.followBotState(status.BotRunning)
	}, nil
}

// followBotState запускает или останавливает опрос активности по bot_running
func (c *Controller) followBotState(running bool) {
	c.mu.Lock()
	ctx, started := c.ctx, c.started
	c.mu.Unlock()

	if !started {
		return
	}

	switch {
	case running && !c.activity.Running():
		c.logger.Info("▶️ Bot is running, activity polling on")
		c.activity.Start(ctx)
	case !running && c.activity.Running():
		c.logger.Info("⏸️ Bot stopped, activity polling off")
		c.activity.Stop()
	}
}

func (c *Controller) fetchActivity(ctx context.Context) (func(), error) {
	var (
		trades []models.Trade
		logs   []models.LogEntry
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		trades, err = c.backend.Trades(gctx, c.opts.TradesLimit)

		return err
	})

	g.Go(func() error {
		var err error
		logs, err = c.backend.Logs(gctx, c.opts.LogsLimit)

		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return func() {
		c.sink.ApplyActivity(trades, logs)
	}, nil
}
