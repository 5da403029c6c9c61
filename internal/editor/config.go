package editor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"

	"mt5_dashboard/pkg/models"
)

// Границы полей, как в форме настроек
const (
	MinVolume           = 0.01
	MaxVolume           = 100.0
	MinStopDistance     = 10
	MinSimultaneous     = 1
	MaxSimultaneous     = 10
	MinAnalysisInterval = 10
)

// ConfigBackend - операции бэкенда для конфигурации
type ConfigBackend interface {
	GetConfig(ctx context.Context) (models.BotConfig, error)
	UpdateConfig(ctx context.Context, cfg models.BotConfig) (models.ActionResult, error)
}

// ConfigState - состояние редактора конфигурации
type ConfigState string

const (
	ConfigIdle    ConfigState = "idle"
	ConfigLoading ConfigState = "loading"
	ConfigLoaded  ConfigState = "loaded"
	ConfigSaving  ConfigState = "saving"
	ConfigFailed  ConfigState = "failed"
)

// ConfigSnapshot - копия состояния редактора для отображения
type ConfigSnapshot struct {
	State  ConfigState       `json:"state"`
	Record *models.BotConfig `json:"record,omitempty"`
	Dirty  bool              `json:"dirty"`
	Error  string            `json:"error,omitempty"`
}

// ConfigEditor держит одну редактируемую запись BotConfig.
// Поля меняются только в состоянии Loaded, поэтому правка не может
// обогнать первичную загрузку.
type ConfigEditor struct {
	backend ConfigBackend
	logger  *slog.Logger
	onSaved func()

	mu       sync.Mutex
	state    ConfigState
	record   models.BotConfig
	original models.BotConfig
	err      error
}

// NewConfigEditor создает редактор в состоянии Idle.
// onSaved вызывается после успешного сохранения.
func NewConfigEditor(backend ConfigBackend, onSaved func(), logger *slog.Logger) *ConfigEditor {
	return &ConfigEditor{
		backend: backend,
		onSaved: onSaved,
		logger:  logger.With(slog.String("component", "config")),
		state:   ConfigIdle,
	}
}

// State возвращает текущее состояние
func (e *ConfigEditor) State() ConfigState {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// Snapshot возвращает копию состояния
func (e *ConfigEditor) Snapshot() ConfigSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := ConfigSnapshot{State: e.state}

	if e.state == ConfigLoaded || e.state == ConfigSaving {
		record := e.record
		snap.Record = &record
		snap.Dirty = e.record != e.original
	}

	if e.err != nil {
		snap.Error = e.err.Error()
	}

	return snap
}

// Record возвращает запись, если она загружена
func (e *ConfigEditor) Record() (models.BotConfig, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != ConfigLoaded && e.state != ConfigSaving {
		return models.BotConfig{}, false
	}

	return e.record, true
}

// Load загружает запись. Несохраненные правки теряются.
func (e *ConfigEditor) Load(ctx context.Context) error {
	e.mu.Lock()
	if e.state == ConfigLoading || e.state == ConfigSaving {
		e.mu.Unlock()
		return ErrBusy
	}

	prev := e.state
	e.state = ConfigLoading
	e.mu.Unlock()

	cfg, err := e.backend.GetConfig(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.logger.Error("Failed to load config", slog.Any("error", err))

		// неудачная перезагрузка не должна терять уже загруженную запись
		if prev == ConfigLoaded {
			e.state = ConfigLoaded
		} else {
			e.state = ConfigFailed
		}

		e.err = err

		return err
	}

	e.state = ConfigLoaded
	e.record = cfg
	e.original = cfg
	e.err = nil

	return nil
}

// Save отправляет запись целиком.
// При отказе запись остается как есть, при успехе вызывается onSaved.
func (e *ConfigEditor) Save(ctx context.Context) (models.ActionResult, error) {
	e.mu.Lock()
	switch e.state {
	case ConfigLoaded:
	case ConfigSaving, ConfigLoading:
		e.mu.Unlock()
		return models.ActionResult{}, ErrBusy
	default:
		e.mu.Unlock()
		return models.ActionResult{}, ErrNotLoaded
	}

	record := e.record
	e.state = ConfigSaving
	e.mu.Unlock()

	result, err := e.backend.UpdateConfig(ctx, record)

	e.mu.Lock()
	e.state = ConfigLoaded
	e.err = err
	if err == nil {
		e.original = record
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.Warn("Config not saved", slog.Any("error", err))
		return result, err
	}

	e.logger.Info("✅ Config saved",
		slog.String("symbol", record.Symbol),
		slog.String("timeframe", record.Timeframe))

	if e.onSaved != nil {
		e.onSaved()
	}

	return result, nil
}

// SetSymbol меняет торговый символ
func (e *ConfigEditor) SetSymbol(symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return invalid(ErrInvalidValue, "symbol must not be empty")
	}

	return e.set(func(c *models.BotConfig) { c.Symbol = symbol })
}

// SetTimeframe меняет таймфрейм анализа
func (e *ConfigEditor) SetTimeframe(timeframe string) error {
	timeframe = strings.ToUpper(strings.TrimSpace(timeframe))
	if !slices.Contains(models.Timeframes, timeframe) {
		return invalid(ErrUnknownTimeframe,
			fmt.Sprintf("timeframe must be one of %s", strings.Join(models.Timeframes, ", ")))
	}

	return e.set(func(c *models.BotConfig) { c.Timeframe = timeframe })
}

// SetVolume меняет объем лота
func (e *ConfigEditor) SetVolume(volume float64) error {
	if math.IsNaN(volume) || volume < MinVolume || volume > MaxVolume {
		return invalid(ErrOutOfRange, fmt.Sprintf("volume must be between %.2f and %.0f", MinVolume, MaxVolume))
	}

	return e.set(func(c *models.BotConfig) { c.Volume = volume })
}

// SetStopLoss меняет stop loss в пунктах
func (e *ConfigEditor) SetStopLoss(points int) error {
	if points < MinStopDistance {
		return invalid(ErrOutOfRange, fmt.Sprintf("stop_loss must be at least %d points", MinStopDistance))
	}

	return e.set(func(c *models.BotConfig) { c.StopLoss = points })
}

// SetTakeProfit меняет take profit в пунктах
func (e *ConfigEditor) SetTakeProfit(points int) error {
	if points < MinStopDistance {
		return invalid(ErrOutOfRange, fmt.Sprintf("take_profit must be at least %d points", MinStopDistance))
	}

	return e.set(func(c *models.BotConfig) { c.TakeProfit = points })
}

// SetMagicNumber меняет magic number ордеров
func (e *ConfigEditor) SetMagicNumber(magic int) error {
	return e.set(func(c *models.BotConfig) { c.MagicNumber = magic })
}

// SetMaxSimultaneousTrades меняет лимит одновременных сделок
func (e *ConfigEditor) SetMaxSimultaneousTrades(n int) error {
	if n < MinSimultaneous || n > MaxSimultaneous {
		return invalid(ErrOutOfRange,
			fmt.Sprintf("max_simultaneous_trades must be between %d and %d", MinSimultaneous, MaxSimultaneous))
	}

	return e.set(func(c *models.BotConfig) { c.MaxSimultaneousTrades = n })
}

// SetAnalysisInterval меняет интервал анализа в секундах
func (e *ConfigEditor) SetAnalysisInterval(seconds int) error {
	if seconds < MinAnalysisInterval {
		return invalid(ErrOutOfRange, fmt.Sprintf("analysis_interval must be at least %d seconds", MinAnalysisInterval))
	}

	return e.set(func(c *models.BotConfig) { c.AnalysisInterval = seconds })
}

// SetDemoMode меняет режим демо-счета
func (e *ConfigEditor) SetDemoMode(demo bool) error {
	return e.set(func(c *models.BotConfig) { c.DemoMode = demo })
}

// Set меняет поле по его JSON-имени, значение приходит строкой (API, CLI)
func (e *ConfigEditor) Set(field, raw string) error {
	raw = strings.TrimSpace(raw)

	switch field {
	case "symbol":
		return e.SetSymbol(raw)
	case "timeframe":
		return e.SetTimeframe(raw)
	case "volume":
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return invalid(ErrInvalidValue, fmt.Sprintf("volume: %q is not a number", raw))
		}

		return e.SetVolume(v)
	case "demo_mode":
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return invalid(ErrInvalidValue, fmt.Sprintf("demo_mode: %q is not a boolean", raw))
		}

		return e.SetDemoMode(v)
	}

	intSetters := map[string]func(int) error{
		"stop_loss":               e.SetStopLoss,
		"take_profit":             e.SetTakeProfit,
		"magic_number":            e.SetMagicNumber,
		"max_simultaneous_trades": e.SetMaxSimultaneousTrades,
		"analysis_interval":       e.SetAnalysisInterval,
	}

	setter, ok := intSetters[field]
	if !ok {
		return invalid(ErrUnknownField, fmt.Sprintf("unknown config field %q", field))
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return invalid(ErrInvalidValue, fmt.Sprintf("%s: %q is not an integer", field, raw))
	}

	return setter(v)
}

// ConfigFields - имена полей, которые принимает Set
func ConfigFields() []string {
	return []string{
		"symbol", "timeframe", "volume", "stop_loss", "take_profit",
		"magic_number", "max_simultaneous_trades", "analysis_interval", "demo_mode",
	}
}

func (e *ConfigEditor) set(apply func(*models.BotConfig)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case ConfigLoaded:
	case ConfigSaving, ConfigLoading:
		return ErrBusy
	default:
		return ErrNotLoaded
	}

	apply(&e.record)

	return nil
}
