package monitor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpbot/internal/domain"
	"github.com/rovshanmuradov/pumpbot/internal/events"
	"github.com/rovshanmuradov/pumpbot/internal/logger"
)

// TradeHistory is the CSV trade journal plus a bounded in-memory tail for
// statistics. It is fed from the event bus.
type TradeHistory struct {
	mu        sync.RWMutex
	csvWriter *logger.SafeCSVWriter
	trades    []Trade
	maxTrades int
	logger    *zap.Logger
	subs      []events.Subscription
	seq       uint64

	// Statistics
	totalTrades      int
	successfulTrades int
	totalVolume      float64
}

// NewTradeHistory opens a per-day journal file under logDir/trades.
func NewTradeHistory(logDir string, maxTrades int, zapLogger *zap.Logger) (*TradeHistory, error) {
	csvPath := filepath.Join(logDir, "trades", fmt.Sprintf("trades_%s.csv", time.Now().Format("20060102")))

	csvWriter, err := logger.NewSafeCSVWriter(csvPath, CSVHeaders(), 30*time.Second, zapLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV writer: %w", err)
	}

	th := &TradeHistory{
		csvWriter: csvWriter,
		trades:    make([]Trade, 0, maxTrades),
		maxTrades: maxTrades,
		logger:    zapLogger.Named("journal"),
	}

	th.logger.Info("Trade journal initialized",
		zap.String("csv_file", csvPath),
		zap.Int("max_memory_trades", maxTrades))

	return th, nil
}

// Attach subscribes the journal to trade outcome events.
func (th *TradeHistory) Attach(bus *events.Bus) {
	th.subs = append(th.subs,
		bus.SubscribeFunc(events.PositionOpened, th.handle),
		bus.SubscribeFunc(events.PositionClosed, th.handle),
		bus.SubscribeFunc(events.TradeFailed, th.handle),
	)
}

func (th *TradeHistory) handle(_ context.Context, e events.Event) error {
	var trade Trade
	switch ev := e.(type) {
	case events.PositionOpenedEvent:
		trade = tradeFromPosition(domain.ActionBuy, ev.Position, ev.Timestamp())
		trade.AmountSOL = ev.AmountSOL
		trade.TxSignature = ev.Reference
		trade.Success = true
	case events.PositionClosedEvent:
		trade = tradeFromPosition(domain.ActionSell, ev.Position, ev.Timestamp())
		trade.TxSignature = ev.Reference
		trade.Reason = ev.Reason
		trade.Success = true
	case events.TradeFailedEvent:
		trade = tradeFromPosition(ev.Intent.Action, ev.Position, ev.Timestamp())
		trade.TokenMint = ev.Intent.TokenID
		trade.Failures = ev.Failures
		if ev.Err != nil {
			trade.ErrorMsg = ev.Err.Error()
		}
	default:
		return nil
	}
	return th.LogTrade(trade)
}

// LogTrade appends a trade to the journal.
func (th *TradeHistory) LogTrade(trade Trade) error {
	th.mu.Lock()
	defer th.mu.Unlock()

	th.seq++
	if trade.ID == "" {
		trade.ID = fmt.Sprintf("%s_%d", logger.ShortenAddress(trade.TokenMint), th.seq)
	}
	if trade.Timestamp.IsZero() {
		trade.Timestamp = time.Now()
	}

	if err := th.csvWriter.WriteRecord(trade.ToCSV()); err != nil {
		th.logger.Error("Failed to write trade to CSV",
			zap.String("trade_id", trade.ID),
			zap.Error(err))
		return fmt.Errorf("failed to write trade: %w", err)
	}

	if th.maxTrades > 0 && len(th.trades) >= th.maxTrades {
		th.trades = th.trades[1:]
	}
	th.trades = append(th.trades, trade)

	th.totalTrades++
	if trade.Success {
		th.successfulTrades++
		th.totalVolume += trade.AmountSOL
	}

	th.logger.Debug("Trade logged",
		zap.String("id", trade.ID),
		zap.String("action", trade.Action),
		zap.String("token", trade.TokenMint),
		zap.Bool("success", trade.Success))

	return nil
}

// GetRecentTrades returns up to limit of the newest trades, oldest first.
func (th *TradeHistory) GetRecentTrades(limit int) []Trade {
	th.mu.RLock()
	defer th.mu.RUnlock()

	if limit <= 0 || limit > len(th.trades) {
		limit = len(th.trades)
	}
	result := make([]Trade, limit)
	copy(result, th.trades[len(th.trades)-limit:])
	return result
}

// GetStatistics returns trading statistics
func (th *TradeHistory) GetStatistics() TradeStatistics {
	th.mu.RLock()
	defer th.mu.RUnlock()
	return th.statisticsLocked()
}

func (th *TradeHistory) statisticsLocked() TradeStatistics {
	stats := TradeStatistics{
		TotalTrades:      th.totalTrades,
		SuccessfulTrades: th.successfulTrades,
		FailedTrades:     th.totalTrades - th.successfulTrades,
		TotalVolume:      th.totalVolume,
	}
	if th.totalTrades > 0 {
		stats.SuccessRate = float64(th.successfulTrades) / float64(th.totalTrades) * 100
	}

	var (
		winCount   int
		sumPnL     float64
		closeCount int
	)
	for _, trade := range th.trades {
		if !trade.Success {
			continue
		}
		switch trade.Action {
		case string(domain.ActionBuy):
			stats.BuyCount++
		case string(domain.ActionSell):
			stats.SellCount++
			if trade.EntryValue > 0 {
				closeCount++
				sumPnL += trade.PnLPercent
				if trade.PnLPercent > 0 {
					winCount++
				}
			}
		}
	}
	if closeCount > 0 {
		stats.WinRate = float64(winCount) / float64(closeCount) * 100
		stats.AvgPnLPercent = sumPnL / float64(closeCount)
	}
	return stats
}

// Flush forces a write of any buffered trades
func (th *TradeHistory) Flush() error {
	return th.csvWriter.Flush()
}

// Close unsubscribes from the bus and closes the CSV file.
func (th *TradeHistory) Close() error {
	for _, sub := range th.subs {
		sub.Unsubscribe()
	}

	th.mu.Lock()
	defer th.mu.Unlock()

	stats := th.statisticsLocked()
	th.logger.Info("Closing trade journal",
		zap.Int("total_trades", stats.TotalTrades),
		zap.Int("sells", stats.SellCount),
		zap.Float64("win_rate", stats.WinRate),
		zap.Float64("avg_pnl_percent", stats.AvgPnLPercent))

	return th.csvWriter.Close()
}

// TradeStatistics holds aggregate trade statistics over the in-memory tail.
type TradeStatistics struct {
	TotalTrades      int     `json:"total_trades"`
	SuccessfulTrades int     `json:"successful_trades"`
	FailedTrades     int     `json:"failed_trades"`
	SuccessRate      float64 `json:"success_rate"`
	BuyCount         int     `json:"buy_count"`
	SellCount        int     `json:"sell_count"`
	TotalVolume      float64 `json:"total_volume"`
	WinRate          float64 `json:"win_rate"`
	AvgPnLPercent    float64 `json:"avg_pnl_percent"`
}
