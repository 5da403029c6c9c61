package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// FetchFunc выполняет один запрос каденции.
// Возвращает commit, который применяет результат, если он еще актуален.
type FetchFunc func(ctx context.Context) (commit func(), err error)

// Cadence - периодический опрос одного источника.
//
// Каждый запрос получает монотонный номер. Результат применяется, только если
// более новый запрос той же каденции еще не был применен и каденция не остановлена.
// Плановый тик пропускается, пока предыдущий плановый запрос не завершился.
type Cadence struct {
	name     string
	interval time.Duration
	fetch    FetchFunc
	logger   *slog.Logger

	// running читается без mu: Running вызывается и из commit
	running atomic.Bool

	mu       sync.Mutex
	cancel   context.CancelFunc
	ctx      context.Context
	issued   uint64
	applied  uint64
	inFlight bool
	// gen растет при каждом Start, чтобы запрос прошлого запуска не снял inFlight нового
	gen uint64

	// once* - контекст разовых запросов, пока каденция остановлена
	onceCtx    context.Context
	onceCancel context.CancelFunc

	// loopWG ждет только цикл расписания, reqWG - запросы
	loopWG sync.WaitGroup
	reqWG  sync.WaitGroup
}

// NewCadence создает каденцию, она не запущена
func NewCadence(name string, interval time.Duration, fetch FetchFunc, logger *slog.Logger) *Cadence {
	return &Cadence{
		name:     name,
		interval: interval,
		fetch:    fetch,
		logger:   logger.With(slog.String("cadence", name)),
	}
}

// Name возвращает имя каденции
func (c *Cadence) Name() string {
	return c.name
}

// Running сообщает, запущена ли каденция
func (c *Cadence) Running() bool {
	return c.running.Load()
}

// Start делает немедленный запрос и затем опрашивает каждые interval.
// Повторный вызов на запущенной каденции ничего не делает.
func (c *Cadence) Start(parent context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running.Load() {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	c.ctx = ctx
	c.cancel = cancel
	c.running.Store(true)
	c.inFlight = false
	c.gen++

	c.logger.Debug("Cadence started", slog.Duration("interval", c.interval))

	c.loopWG.Add(1)
	go c.loop(ctx)
}

// Stop отменяет каденцию и ее разовые запросы и ждет выхода из цикла расписания.
// Запросы в полете не ожидаются: их контекст отменен, а результат будет отброшен.
// Поэтому Stop можно вызывать из commit другой каденции.
func (c *Cadence) Stop() {
	c.mu.Lock()
	wasRunning := c.running.Load()
	cancel, onceCancel := c.cancel, c.onceCancel
	c.running.Store(false)
	c.onceCtx, c.onceCancel = nil, nil
	c.mu.Unlock()

	if onceCancel != nil {
		onceCancel()
	}

	if !wasRunning {
		return
	}

	cancel()
	c.loopWG.Wait()

	c.logger.Debug("Cadence stopped")
}

// Trigger запрашивает данные вне расписания.
// Защита от параллельных запросов на него не действует, порядок сохраняют номера.
func (c *Cadence) Trigger() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running.Load() {
		return false
	}

	c.launch(c.ctx, false)

	return true
}

// TriggerOnce выполняет разовый запрос без запуска расписания.
// Используется для первичной загрузки, пока каденция остановлена.
// Запрос отменяется следующим Stop.
func (c *Cadence) TriggerOnce(parent context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running.Load() {
		c.launch(c.ctx, false)
		return
	}

	if c.onceCtx == nil {
		c.onceCtx, c.onceCancel = context.WithCancel(parent)
	}

	c.launch(c.onceCtx, false)
}

// Wait ждет завершения всех запросов каденции
func (c *Cadence) Wait() {
	c.loopWG.Wait()
	c.reqWG.Wait()
}

func (c *Cadence) loop(ctx context.Context) {
	defer c.loopWG.Done()

	c.tick(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick запускает плановый запрос, если предыдущий уже завершился
func (c *Cadence) tick(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	if c.inFlight {
		c.logger.Debug("Previous request still in flight, tick skipped")
		return
	}

	c.launch(ctx, true)
}

// launch вызывается под c.mu
func (c *Cadence) launch(ctx context.Context, scheduled bool) {
	c.issued++
	seq, gen := c.issued, c.gen

	if scheduled {
		c.inFlight = true
	}

	c.reqWG.Add(1)

	go func() {
		defer c.reqWG.Done()

		commit, err := c.fetch(ctx)

		c.mu.Lock()
		defer c.mu.Unlock()

		if scheduled && gen == c.gen {
			c.inFlight = false
		}

		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("Poll failed", slog.Uint64("seq", seq), slog.Any("error", err))
			}

			return
		}

		if ctx.Err() != nil {
			c.logger.Debug("Result discarded, cadence cancelled", slog.Uint64("seq", seq))
			return
		}

		if seq <= c.applied {
			c.logger.Debug("Stale result discarded",
				slog.Uint64("seq", seq),
				slog.Uint64("applied", c.applied))

			return
		}

		c.applied = seq

		if commit != nil {
			commit()
		}
	}()
}
