package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Лимиты, которые соблюдают и бэкенд, и панель
const (
	MaxAssets        = 5
	DefaultTimeframe = "H1"
)

// TradeType - направление сделки
type TradeType string

const (
	TradeBuy  TradeType = "BUY"
	TradeSell TradeType = "SELL"
)

// TradeStatus - состояние сделки на стороне бэкенда
type TradeStatus string

const (
	TradeOpen      TradeStatus = "OPEN"
	TradeClosed    TradeStatus = "CLOSED"
	TradeCancelled TradeStatus = "CANCELLED"
)

// LogLevel - уровень записи в логе бота
type LogLevel string

const (
	LogInfo    LogLevel = "INFO"
	LogWarning LogLevel = "WARNING"
	LogError   LogLevel = "ERROR"
	LogDebug   LogLevel = "DEBUG"
)

// Timeframes - таймфреймы, которые принимает бэкенд
var Timeframes = []string{"M1", "M5", "M15", "M30", "H1"}

// Timestamp разбирает время в формате бэкенда.
// Python isoformat() отдает время без зоны, такие значения считаются UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999",
}

func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Time: t}
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}

	if raw == "" {
		return nil
	}

	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			t.Time = parsed
			return nil
		}
	}

	return fmt.Errorf("timestamp: unsupported format %q", raw)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}

	return json.Marshal(t.Format(time.RFC3339Nano))
}

// BotStatus - статус бота, заменяется целиком при каждом опросе
type BotStatus struct {
	BotRunning    bool       `json:"bot_running"`
	MT5Connected  bool       `json:"mt5_connected"`
	CurrentConfig *BotConfig `json:"current_config,omitempty"`
	Timestamp     *Timestamp `json:"timestamp,omitempty"`

	// Extra хранит поля, которых клиент не знает
	Extra map[string]json.RawMessage `json:"-"`
}

func (s *BotStatus) UnmarshalJSON(data []byte) error {
	type plain BotStatus

	var known plain
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	for _, key := range []string{"bot_running", "mt5_connected", "current_config", "timestamp"} {
		delete(all, key)
	}

	if len(all) > 0 {
		known.Extra = all
	}

	*s = BotStatus(known)

	return nil
}

func (s BotStatus) MarshalJSON() ([]byte, error) {
	type plain BotStatus

	base, err := json.Marshal(plain(s))
	if err != nil || len(s.Extra) == 0 {
		return base, err
	}

	merged := make(map[string]json.RawMessage, len(s.Extra)+4)
	for k, v := range s.Extra {
		merged[k] = v
	}

	var known map[string]json.RawMessage
	if err := json.Unmarshal(base, &known); err != nil {
		return nil, err
	}

	for k, v := range known {
		merged[k] = v
	}

	return json.Marshal(merged)
}

// BotConfig - параметры бота, сохраняются целиком
type BotConfig struct {
	Symbol                string  `json:"symbol"`
	Timeframe             string  `json:"timeframe"`
	Volume                float64 `json:"volume"`
	StopLoss              int     `json:"stop_loss"`
	TakeProfit            int     `json:"take_profit"`
	MagicNumber           int     `json:"magic_number"`
	MaxSimultaneousTrades int     `json:"max_simultaneous_trades"`
	AnalysisInterval      int     `json:"analysis_interval"`
	DemoMode              bool    `json:"demo_mode"`
}

// Asset - отслеживаемый инструмент
type Asset struct {
	Symbol         string     `json:"symbol"`
	Active         bool       `json:"active"`
	Timeframes     []string   `json:"timeframes"`
	LastCandleTime *Timestamp `json:"last_candle_time,omitempty"`
}

// Clone возвращает копию без общих слайсов
func (a Asset) Clone() Asset {
	out := a
	out.Timeframes = append([]string{}, a.Timeframes...)

	if a.LastCandleTime != nil {
		ts := *a.LastCandleTime
		out.LastCandleTime = &ts
	}

	return out
}

// HasTimeframe проверяет наличие таймфрейма
func (a Asset) HasTimeframe(tf string) bool {
	for _, existing := range a.Timeframes {
		if existing == tf {
			return true
		}
	}

	return false
}

// Trade - снимок сделки с сервера, клиент его не меняет
type Trade struct {
	ID         string      `json:"id"`
	Symbol     string      `json:"symbol"`
	Type       TradeType   `json:"type"`
	EntryPrice float64     `json:"entry_price"`
	ExitPrice  *float64    `json:"exit_price,omitempty"`
	Volume     float64     `json:"volume"`
	StopLoss   float64     `json:"stop_loss"`
	TakeProfit float64     `json:"take_profit"`
	Profit     *float64    `json:"profit,omitempty"`
	Status     TradeStatus `json:"status"`
	OpenTime   Timestamp   `json:"open_time"`
	CloseTime  *Timestamp  `json:"close_time,omitempty"`
}

// LogEntry - запись лога бота
type LogEntry struct {
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	Timestamp Timestamp `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

// Candle - закрытая свеча из хранилища бэкенда
type Candle struct {
	Timestamp Timestamp `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// ActionResult - ответ бэкенда на команду
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// AccountInfo - данные счета MT5
type AccountInfo struct {
	Login   int64   `json:"login"`
	Server  string  `json:"server"`
	Balance float64 `json:"balance"`
}

// MT5TestResult - результат проверки соединения с MT5
type MT5TestResult struct {
	Success     bool         `json:"success"`
	Message     string       `json:"message"`
	AccountInfo *AccountInfo `json:"account_info,omitempty"`
}

// CollectDetail - результат сбора по одной паре символ/таймфрейм
type CollectDetail struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// CollectReport - итог сбора свечей
type CollectReport struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message,omitempty"`
	Collected int             `json:"collected"`
	Skipped   int             `json:"skipped"`
	Errors    int             `json:"errors"`
	Details   []CollectDetail `json:"details,omitempty"`
}

// NotificationLevel - важность уведомления
type NotificationLevel string

const (
	NotifySuccess NotificationLevel = "success"
	NotifyInfo    NotificationLevel = "info"
	NotifyError   NotificationLevel = "error"
)

// Notification - итог пользовательского действия
type Notification struct {
	ID      string            `json:"id"`
	Level   NotificationLevel `json:"level"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Time    time.Time         `json:"time"`
}
