package views

import (
	"slices"

	"github.com/shopspring/decimal"

	"mt5_dashboard/pkg/models"
)

// TradeSummary - агрегаты вкладки операций
type TradeSummary struct {
	TotalProfit float64 `json:"total_profit"`
	OpenCount   int     `json:"open_count"`
	ClosedCount int     `json:"closed_count"`
	TotalCount  int     `json:"total_count"`
}

// TotalProfit суммирует profit закрытых сделок, у которых он есть.
// Сумма считается в decimal, чтобы 10.5 - 3.0 + 7.25 давало ровно 14.75.
func TotalProfit(trades []models.Trade) float64 {
	sum := decimal.Zero

	for _, t := range trades {
		if t.Status != models.TradeClosed || t.Profit == nil {
			continue
		}

		sum = sum.Add(decimal.NewFromFloat(*t.Profit))
	}

	return sum.InexactFloat64()
}

// OpenCount - число открытых сделок
func OpenCount(trades []models.Trade) int {
	return countStatus(trades, models.TradeOpen)
}

// ClosedCount - число закрытых сделок
func ClosedCount(trades []models.Trade) int {
	return countStatus(trades, models.TradeClosed)
}

// Summarize считает все агрегаты за один вызов
func Summarize(trades []models.Trade) TradeSummary {
	return TradeSummary{
		TotalProfit: TotalProfit(trades),
		OpenCount:   OpenCount(trades),
		ClosedCount: ClosedCount(trades),
		TotalCount:  len(trades),
	}
}

func countStatus(trades []models.Trade, status models.TradeStatus) int {
	n := 0
	for _, t := range trades {
		if t.Status == status {
			n++
		}
	}

	return n
}

// NewestFirstTrades возвращает сделки в обратном порядке, исходный слайс не меняется
func NewestFirstTrades(trades []models.Trade) []models.Trade {
	out := slices.Clone(trades)
	slices.Reverse(out)

	return out
}

// NewestFirstLogs возвращает записи лога в обратном порядке, исходный слайс не меняется
func NewestFirstLogs(logs []models.LogEntry) []models.LogEntry {
	out := slices.Clone(logs)
	slices.Reverse(out)

	return out
}

// CountLogLevels считает записи по уровням
func CountLogLevels(logs []models.LogEntry) map[models.LogLevel]int {
	counts := make(map[models.LogLevel]int, 4)
	for _, l := range logs {
		counts[l.Level]++
	}

	return counts
}
