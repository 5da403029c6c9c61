package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mt5_dashboard/pkg/models"
	"mt5_dashboard/pkg/services/httpmiddleware"
)

const (
	DefaultBaseURL = "http://localhost:8000"

	DefaultTradesLimit  = 50
	DefaultLogsLimit    = 100
	DefaultCandlesLimit = 100

	statusEndpoint  = "/api/status"
	startEndpoint   = "/api/bot/start"
	stopEndpoint    = "/api/bot/stop"
	configEndpoint  = "/api/config"
	tradesEndpoint  = "/api/trades"
	logsEndpoint    = "/api/logs"
	mt5TestEndpoint = "/api/mt5/test"
	assetsEndpoint  = "/api/assets"
	collectEndpoint = "/api/assets/collect"

	// maxErrorBody ограничивает тело ошибки, попадающее в HTTPError
	maxErrorBody = 512
)

// Options - параметры клиента
type Options struct {
	BaseURL string
	// Timeout на один запрос, 0 - без ограничения
	Timeout time.Duration
	// LogBodySize - сколько байт тела логировать (см. httpmiddleware.Logger)
	LogBodySize int
	// Transport подменяет базовый транспорт (тесты)
	Transport http.RoundTripper
}

// Client - клиент REST API торгового бота.
// Один метод на эндпоинт, без повторов и без кэша.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// NewClient создает клиента бэкенда
func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url %q: %w", baseURL, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend url %q: scheme must be http or https", baseURL)
	}

	base := opts.Transport
	if base == nil {
		base = httpmiddleware.DefaultTransport()
	}

	logger = logger.With(slog.String("component", "backend"))

	httpClient := &http.Client{
		Timeout: opts.Timeout,
		Transport: httpmiddleware.Wrap(
			base,
			httpmiddleware.RequestGetBodySetter,
			httpmiddleware.RequestID,
			httpmiddleware.StaticHeaders(map[string]string{"Accept": "application/json"}),
			httpmiddleware.Logger(logger, opts.LogBodySize),
		),
	}

	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
	}, nil
}

// BaseURL возвращает адрес бэкенда
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do выполняет запрос и разбирает JSON-ответ в out.
// Ошибки транспорта возвращаются обернутыми через %w.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	apiURL := c.baseURL + path
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	body := io.Reader(http.NoBody)
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}

		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{Op: op, StatusCode: resp.StatusCode, Detail: errorDetail(respBody)}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}

	return nil
}

// errorDetail достает сообщение из тела ошибки
func errorDetail(body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}

	if err := json.Unmarshal(body, &payload); err == nil {
		if len(payload.Detail) > 0 {
			var text string
			if json.Unmarshal(payload.Detail, &text) == nil {
				return text
			}

			// 422 от FastAPI приходит списком ошибок валидации
			return string(payload.Detail)
		}

		if payload.Message != "" {
			return payload.Message
		}

		if payload.Error != "" {
			return payload.Error
		}
	}

	detail := strings.TrimSpace(string(body))
	if len(detail) > maxErrorBody {
		detail = detail[:maxErrorBody]
	}

	return detail
}

// action выполняет команду вида {success, message}
func (c *Client) action(ctx context.Context, op, method, path string, in any) (models.ActionResult, error) {
	var raw struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
	}

	if err := c.do(ctx, op, method, path, nil, in, &raw); err != nil {
		return models.ActionResult{}, err
	}

	// stop может вернуть тело без success, это считается успехом
	result := models.ActionResult{Success: raw.Success == nil || *raw.Success, Message: raw.Message}
	if !result.Success {
		return result, &RejectedError{Op: op, Message: raw.Message}
	}

	return result, nil
}

// Status получает статус бота
func (c *Client) Status(ctx context.Context) (models.BotStatus, error) {
	var status models.BotStatus
	err := c.do(ctx, "status", http.MethodGet, statusEndpoint, nil, nil, &status)

	return status, err
}

// StartBot запускает бота
func (c *Client) StartBot(ctx context.Context) (models.ActionResult, error) {
	return c.action(ctx, "start bot", http.MethodPost, startEndpoint, nil)
}

// StopBot останавливает бота
func (c *Client) StopBot(ctx context.Context) (models.ActionResult, error) {
	return c.action(ctx, "stop bot", http.MethodPost, stopEndpoint, nil)
}

// GetConfig загружает конфигурацию бота
func (c *Client) GetConfig(ctx context.Context) (models.BotConfig, error) {
	var cfg models.BotConfig
	err := c.do(ctx, "get config", http.MethodGet, configEndpoint, nil, nil, &cfg)

	return cfg, err
}

// UpdateConfig сохраняет конфигурацию целиком
func (c *Client) UpdateConfig(ctx context.Context, cfg models.BotConfig) (models.ActionResult, error) {
	return c.action(ctx, "update config", http.MethodPost, configEndpoint, cfg)
}

// Trades получает последние limit сделок
func (c *Client) Trades(ctx context.Context, limit int) ([]models.Trade, error) {
	if limit <= 0 {
		limit = DefaultTradesLimit
	}

	var payload struct {
		Trades []models.Trade `json:"trades"`
	}

	query := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.do(ctx, "get trades", http.MethodGet, tradesEndpoint, query, nil, &payload); err != nil {
		return nil, err
	}

	if payload.Trades == nil {
		return []models.Trade{}, nil
	}

	return payload.Trades, nil
}

// Logs получает последние limit записей лога
func (c *Client) Logs(ctx context.Context, limit int) ([]models.LogEntry, error) {
	if limit <= 0 {
		limit = DefaultLogsLimit
	}

	var payload struct {
		Logs []models.LogEntry `json:"logs"`
	}

	query := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.do(ctx, "get logs", http.MethodGet, logsEndpoint, query, nil, &payload); err != nil {
		return nil, err
	}

	if payload.Logs == nil {
		return []models.LogEntry{}, nil
	}

	return payload.Logs, nil
}

// TestMT5 проверяет соединение с MT5
func (c *Client) TestMT5(ctx context.Context) (models.MT5TestResult, error) {
	var result models.MT5TestResult
	if err := c.do(ctx, "test mt5", http.MethodPost, mt5TestEndpoint, nil, nil, &result); err != nil {
		return result, err
	}

	if !result.Success {
		return result, &RejectedError{Op: "test mt5", Message: result.Message}
	}

	return result, nil
}

// Assets получает список отслеживаемых активов
func (c *Client) Assets(ctx context.Context) ([]models.Asset, error) {
	var payload struct {
		Assets []models.Asset `json:"assets"`
	}

	if err := c.do(ctx, "get assets", http.MethodGet, assetsEndpoint, nil, nil, &payload); err != nil {
		return nil, err
	}

	if payload.Assets == nil {
		return []models.Asset{}, nil
	}

	return payload.Assets, nil
}

// UpdateAssets сохраняет список активов целиком
func (c *Client) UpdateAssets(ctx context.Context, assets []models.Asset) (models.ActionResult, error) {
	if assets == nil {
		assets = []models.Asset{}
	}

	return c.action(ctx, "update assets", http.MethodPost, assetsEndpoint, assets)
}

// CollectCandles запускает сбор свечей по активным активам.
// Отчет возвращается и при отказе, вместе с *RejectedError.
func (c *Client) CollectCandles(ctx context.Context) (models.CollectReport, error) {
	var report models.CollectReport
	if err := c.do(ctx, "collect candles", http.MethodPost, collectEndpoint, nil, nil, &report); err != nil {
		return report, err
	}

	if !report.Success {
		return report, &RejectedError{Op: "collect candles", Message: report.Message}
	}

	return report, nil
}

// CandleSeries - свечи одного актива
type CandleSeries struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	Candles   []models.Candle `json:"candles"`
}

// AssetCandles получает сохраненные свечи актива.
// Бэкенд отдает либо массив свечей, либо объект с полем candles.
func (c *Client) AssetCandles(ctx context.Context, symbol, timeframe string, limit int) (CandleSeries, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return CandleSeries{}, errors.New("asset candles: symbol is required")
	}

	if timeframe == "" {
		timeframe = models.DefaultTimeframe
	}

	if limit <= 0 {
		limit = DefaultCandlesLimit
	}

	series := CandleSeries{Symbol: symbol, Timeframe: timeframe}

	var raw json.RawMessage

	path := assetsEndpoint + "/" + url.PathEscape(symbol) + "/candles"
	query := url.Values{"timeframe": {timeframe}, "limit": {strconv.Itoa(limit)}}

	if err := c.do(ctx, "asset candles", http.MethodGet, path, query, nil, &raw); err != nil {
		return series, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &series.Candles); err != nil {
			return series, fmt.Errorf("asset candles: decode response: %w", err)
		}
	} else if len(trimmed) > 0 {
		var wrapped CandleSeries
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return series, fmt.Errorf("asset candles: decode response: %w", err)
		}

		series.Candles = wrapped.Candles
	}

	if series.Candles == nil {
		series.Candles = []models.Candle{}
	}

	return series, nil
}
