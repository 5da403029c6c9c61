package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"mt5_dashboard/pkg/models"
	"mt5_dashboard/pkg/services/backend"
)

// AssetBackend - операции бэкенда для списка активов
type AssetBackend interface {
	Assets(ctx context.Context) ([]models.Asset, error)
	UpdateAssets(ctx context.Context, assets []models.Asset) (models.ActionResult, error)
	CollectCandles(ctx context.Context) (models.CollectReport, error)
}

// AssetEditor держит редактируемый список отслеживаемых активов.
// Правки локальные до Save, уникальность и непустые символы проверяются только при сохранении.
type AssetEditor struct {
	backend AssetBackend
	logger  *slog.Logger

	mu         sync.Mutex
	assets     []models.Asset
	loaded     bool
	saving     bool
	collecting bool
	lastReport *models.CollectReport
}

// NewAssetEditor создает редактор, список пуст до Load
func NewAssetEditor(backend AssetBackend, logger *slog.Logger) *AssetEditor {
	return &AssetEditor{
		backend: backend,
		logger:  logger.With(slog.String("component", "assets")),
	}
}

// Load загружает список с бэкенда, несохраненные правки теряются
func (e *AssetEditor) Load(ctx context.Context) error {
	assets, err := e.backend.Assets(ctx)
	if err != nil {
		e.logger.Error("Failed to load assets", slog.Any("error", err))
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.assets = cloneAssets(assets)
	e.loaded = true

	e.logger.Debug("Assets loaded", slog.Int("count", len(assets)))

	return nil
}

// Loaded сообщает, был ли список загружен
func (e *AssetEditor) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.loaded
}

// Assets возвращает копию текущего списка
func (e *AssetEditor) Assets() []models.Asset {
	e.mu.Lock()
	defer e.mu.Unlock()

	return cloneAssets(e.assets)
}

// Len возвращает число активов в буфере
func (e *AssetEditor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.assets)
}

// ToggleActive переключает флаг active у одного актива
func (e *AssetEditor) ToggleActive(index int) error {
	return e.edit(index, func(a *models.Asset) error {
		a.Active = !a.Active
		return nil
	})
}

// SetSymbol заменяет символ, приводя его к верхнему регистру
func (e *AssetEditor) SetSymbol(index int, symbol string) error {
	return e.edit(index, func(a *models.Asset) error {
		a.Symbol = strings.ToUpper(symbol)
		return nil
	})
}

// ToggleTimeframe добавляет таймфрейм или убирает его, если он уже есть
func (e *AssetEditor) ToggleTimeframe(index int, timeframe string) error {
	timeframe = strings.ToUpper(strings.TrimSpace(timeframe))
	if !slices.Contains(models.Timeframes, timeframe) {
		return invalid(ErrUnknownTimeframe, fmt.Sprintf("unknown timeframe %q", timeframe))
	}

	return e.edit(index, func(a *models.Asset) error {
		if a.HasTimeframe(timeframe) {
			a.Timeframes = slices.DeleteFunc(a.Timeframes, func(tf string) bool { return tf == timeframe })
		} else {
			a.Timeframes = append(a.Timeframes, timeframe)
		}

		return nil
	})
}

// Add добавляет пустой активный актив с таймфреймом по умолчанию
func (e *AssetEditor) Add() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return ErrNotLoaded
	}

	if len(e.assets) >= models.MaxAssets {
		return invalid(ErrCapacity, fmt.Sprintf("maximum of %d assets allowed", models.MaxAssets))
	}

	e.assets = append(e.assets, models.Asset{
		Active:     true,
		Timeframes: []string{models.DefaultTimeframe},
	})

	return nil
}

// CanRemove сообщает, доступно ли удаление
func (e *AssetEditor) CanRemove() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.loaded && len(e.assets) > 1
}

// Remove удаляет актив по позиции, последний актив удалить нельзя
func (e *AssetEditor) Remove(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return ErrNotLoaded
	}

	if index < 0 || index >= len(e.assets) {
		return ErrIndexOutOfRange
	}

	if len(e.assets) <= 1 {
		return invalid(ErrLastAsset, "at least one asset must remain")
	}

	e.assets = slices.Delete(e.assets, index, index+1)

	return nil
}

// ActiveCount возвращает число активных активов
func (e *AssetEditor) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return activeCount(e.assets)
}

// CanCollect сообщает, можно ли запустить сбор свечей
func (e *AssetEditor) CanCollect() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.loaded && !e.collecting && activeCount(e.assets) > 0
}

// Validate проверяет буфер так же, как Save перед отправкой
func (e *AssetEditor) Validate() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return validateAssets(e.assets)
}

// Save проверяет список и отправляет его целиком.
// При ошибке проверки запрос не выполняется и буфер не меняется.
// После успешного сохранения список перечитывается с бэкенда.
func (e *AssetEditor) Save(ctx context.Context) (models.ActionResult, error) {
	e.mu.Lock()

	if !e.loaded {
		e.mu.Unlock()
		return models.ActionResult{}, ErrNotLoaded
	}

	if e.saving {
		e.mu.Unlock()
		return models.ActionResult{}, ErrBusy
	}

	if err := validateAssets(e.assets); err != nil {
		e.mu.Unlock()
		return models.ActionResult{}, err
	}

	payload := cloneAssets(e.assets)
	for i := range payload {
		payload[i].Symbol = normalizeSymbol(payload[i].Symbol)
	}

	e.saving = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.saving = false
		e.mu.Unlock()
	}()

	result, err := e.backend.UpdateAssets(ctx, payload)
	if err != nil {
		e.logger.Warn("Assets not saved", slog.Any("error", err))
		return result, err
	}

	e.logger.Info("✅ Assets saved", slog.Int("count", len(payload)))

	e.reload(ctx)

	return result, nil
}

// Collect запускает сбор свечей. Отчет возвращается при любом ответе бэкенда,
// список перечитывается только при успехе.
func (e *AssetEditor) Collect(ctx context.Context) (models.CollectReport, error) {
	e.mu.Lock()

	if !e.loaded {
		e.mu.Unlock()
		return models.CollectReport{}, ErrNotLoaded
	}

	if e.collecting {
		e.mu.Unlock()
		return models.CollectReport{}, ErrBusy
	}

	if activeCount(e.assets) == 0 {
		e.mu.Unlock()
		return models.CollectReport{}, invalid(ErrNoActiveAssets, "no active assets to collect")
	}

	e.collecting = true
	e.lastReport = nil
	e.mu.Unlock()

	report, err := e.backend.CollectCandles(ctx)

	e.mu.Lock()
	e.collecting = false
	if ServerReport(err) {
		stored := report
		e.lastReport = &stored
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.Warn("Candle collection failed", slog.Any("error", err))
		return report, err
	}

	e.logger.Info("🕯️ Candles collected",
		slog.Int("collected", report.Collected),
		slog.Int("skipped", report.Skipped),
		slog.Int("errors", report.Errors))

	e.reload(ctx)

	return report, nil
}

// ServerReport сообщает, пришел ли отчет сбора от бэкенда: при успехе
// или при отказе с {success: false}, даже если все счетчики нулевые
func ServerReport(err error) bool {
	var rejected *backend.RejectedError

	return err == nil || errors.As(err, &rejected)
}

// LastReport возвращает отчет последнего сбора
func (e *AssetEditor) LastReport() *models.CollectReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastReport == nil {
		return nil
	}

	report := *e.lastReport

	return &report
}

// reload перечитывает список после успешной операции, ошибка только логируется
func (e *AssetEditor) reload(ctx context.Context) {
	if err := e.Load(ctx); err != nil {
		e.logger.Warn("Reload after save failed", slog.Any("error", err))
	}
}

func (e *AssetEditor) edit(index int, fn func(*models.Asset) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return ErrNotLoaded
	}

	if index < 0 || index >= len(e.assets) {
		return ErrIndexOutOfRange
	}

	return fn(&e.assets[index])
}

func validateAssets(assets []models.Asset) error {
	if len(assets) == 0 {
		return invalid(ErrNoAssets, "at least one asset is required")
	}

	if len(assets) > models.MaxAssets {
		return invalid(ErrTooManyAssets, fmt.Sprintf("maximum of %d assets allowed", models.MaxAssets))
	}

	seen := make(map[string]int, len(assets))
	for i, a := range assets {
		symbol := normalizeSymbol(a.Symbol)
		if symbol == "" {
			return invalid(ErrEmptySymbol, fmt.Sprintf("asset #%d has no symbol, every asset must have a symbol", i+1))
		}

		if first, ok := seen[symbol]; ok {
			return invalid(ErrDuplicateSymbol,
				fmt.Sprintf("duplicate symbol %s (assets #%d and #%d)", symbol, first+1, i+1))
		}

		seen[symbol] = i
	}

	return nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func activeCount(assets []models.Asset) int {
	n := 0
	for _, a := range assets {
		if a.Active {
			n++
		}
	}

	return n
}

func cloneAssets(assets []models.Asset) []models.Asset {
	out := make([]models.Asset, len(assets))
	for i, a := range assets {
		out[i] = a.Clone()
	}

	return out
}
