package monitor

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/pumpbot/internal/domain"
	"github.com/rovshanmuradov/pumpbot/internal/events"
)

func readJournal(t *testing.T, dir string) [][]string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "trades", "*.csv"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestTradeHistoryConcurrentAccess(t *testing.T) {
	history, err := NewTradeHistory(t.TempDir(), 100, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create trade history: %v", err)
	}
	defer history.Close()

	var wg sync.WaitGroup
	numGoroutines := 10
	tradesPerGoroutine := 50

	wg.Add(numGoroutines * 2)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < tradesPerGoroutine; j++ {
				trade := Trade{
					TokenMint:  fmt.Sprintf("token_%d_%d", id, j),
					Action:     string(domain.ActionBuy),
					AmountSOL:  0.1,
					EntryValue: 10000,
					Success:    true,
				}
				if j%2 == 0 {
					trade.Action = string(domain.ActionSell)
					trade.PnLPercent = float64(j)
				}
				if err := history.LogTrade(trade); err != nil {
					t.Errorf("Failed to log trade: %v", err)
				}
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = history.GetRecentTrades(10)
				_ = history.GetStatistics()
			}
		}()
	}
	wg.Wait()

	stats := history.GetStatistics()
	assert.Equal(t, numGoroutines*tradesPerGoroutine, stats.TotalTrades)
	assert.Equal(t, 100.0, stats.SuccessRate)
}

func TestTradeHistoryCircularBuffer(t *testing.T) {
	maxTrades := 5
	history, err := NewTradeHistory(t.TempDir(), maxTrades, zap.NewNop())
	require.NoError(t, err)
	defer history.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, history.LogTrade(Trade{
			ID:        fmt.Sprintf("trade%d", i),
			TokenMint: fmt.Sprintf("token%d", i),
			Action:    "buy",
			Success:   true,
		}))
	}

	recent := history.GetRecentTrades(10)
	require.Len(t, recent, maxTrades)
	for i, trade := range recent {
		assert.Equal(t, fmt.Sprintf("trade%d", i+5), trade.ID)
	}
	assert.Equal(t, 10, history.GetStatistics().TotalTrades)
}

func TestTradeHistoryRecordsBusEvents(t *testing.T) {
	dir := t.TempDir()
	log := zaptest.NewLogger(t)
	history, err := NewTradeHistory(dir, 10, log)
	require.NoError(t, err)

	bus := events.NewBus(log, 16)
	history.Attach(bus)

	opened := time.Now().Add(-90 * time.Second)
	p := domain.NewBotPosition("MintAAAAbbbb", "Alpha", 10000, opened)
	require.NoError(t, bus.Publish(events.NewPositionOpened(p, 0.1, "buy-sig")))

	p.History = append(p.History, 15000)
	p.PeakValue = 15000
	require.NoError(t, bus.Publish(events.NewPositionClosed(p, "profit level", "sell-sig")))

	intent := domain.TradeIntent{Action: domain.ActionSell, TokenID: "MintZZZ"}
	require.NoError(t, bus.Publish(events.NewTradeFailed(intent, domain.Position{}, 3, errors.New("slippage"))))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Shutdown(ctx))
	require.NoError(t, history.Close())

	rows := readJournal(t, dir)
	require.Len(t, rows, 4)
	assert.Equal(t, CSVHeaders(), rows[0])

	col := func(name string) int {
		for i, h := range CSVHeaders() {
			if h == name {
				return i
			}
		}
		t.Fatalf("no column %s", name)
		return -1
	}

	assert.Equal(t, "buy", rows[1][col("action")])
	assert.Equal(t, "buy-sig", rows[1][col("tx_signature")])

	assert.Equal(t, "sell", rows[2][col("action")])
	assert.Equal(t, "50.00", rows[2][col("pnl_percent")])
	assert.Equal(t, "1m", rows[2][col("hold_time")])
	assert.Equal(t, "profit level", rows[2][col("reason")])

	assert.Equal(t, "MintZZZ", rows[3][col("token_mint")])
	assert.Equal(t, "false", rows[3][col("success")])
	assert.Equal(t, "3", rows[3][col("failures")])
	assert.Equal(t, "slippage", rows[3][col("error_msg")])
}

func TestTradeHistoryStatistics(t *testing.T) {
	history, err := NewTradeHistory(t.TempDir(), 10, zap.NewNop())
	require.NoError(t, err)
	defer history.Close()

	for _, tr := range []Trade{
		{TokenMint: "a", Action: "buy", AmountSOL: 0.1, Success: true},
		{TokenMint: "a", Action: "sell", EntryValue: 100, PnLPercent: 40, Success: true},
		{TokenMint: "b", Action: "sell", EntryValue: 100, PnLPercent: -20, Success: true},
		{TokenMint: "c", Action: "sell", Success: false},
	} {
		require.NoError(t, history.LogTrade(tr))
	}

	stats := history.GetStatistics()
	assert.Equal(t, 4, stats.TotalTrades)
	assert.Equal(t, 1, stats.FailedTrades)
	assert.Equal(t, 1, stats.BuyCount)
	assert.Equal(t, 2, stats.SellCount)
	assert.Equal(t, 50.0, stats.WinRate)
	assert.Equal(t, 10.0, stats.AvgPnLPercent)
}

func TestCalculateHoldTime(t *testing.T) {
	base := time.Unix(0, 0)
	assert.Equal(t, "30s", CalculateHoldTime(base, base.Add(30*time.Second)))
	assert.Equal(t, "5m", CalculateHoldTime(base, base.Add(5*time.Minute)))
	assert.Equal(t, "2h15m", CalculateHoldTime(base, base.Add(135*time.Minute)))
	assert.Equal(t, "1d3h", CalculateHoldTime(base, base.Add(27*time.Hour)))
}
