package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/pumpbot/internal/domain"
	"github.com/rovshanmuradov/pumpbot/internal/events"
)

func TestCollector_CountsBusEvents(t *testing.T) {
	c := New(zaptest.NewLogger(t))
	bus := events.NewBus(zaptest.NewLogger(t), 16)
	t.Cleanup(func() { _ = bus.Shutdown(context.Background()) })
	c.Attach(bus)

	ctx := context.Background()
	pos := domain.NewBotPosition("MintA", "", 100, time.Now())
	sell := domain.Decision{Action: domain.DecisionSell, Rule: domain.RuleProfitLevel}
	intent := domain.TradeIntent{Action: domain.ActionSell, TokenID: "MintA"}

	require.NoError(t, bus.PublishSync(ctx, events.NewPositionOpened(pos, 0.1, "sig")))
	require.NoError(t, bus.PublishSync(ctx, events.NewSellDecided(pos, sell)))
	require.NoError(t, bus.PublishSync(ctx, events.NewSellDecided(pos, sell)))
	require.NoError(t, bus.PublishSync(ctx, events.NewTradeFailed(intent, pos, 1, errors.New("boom"))))
	require.NoError(t, bus.PublishSync(ctx, events.NewPositionClosed(pos, "profit", "sig2")))
	require.NoError(t, bus.PublishSync(ctx, events.NewPositionDiscovered("MintB", 5)))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.decisions.WithLabelValues(string(domain.RuleProfitLevel))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.trades.WithLabelValues("buy", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.trades.WithLabelValues("sell", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.trades.WithLabelValues("sell", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.discovered))

	require.NoError(t, c.Close())
	require.NoError(t, bus.PublishSync(ctx, events.NewPositionDiscovered("MintC", 5)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.discovered), "detached collector stops counting")
}

func TestCollector_LoopMetrics(t *testing.T) {
	c := New(zaptest.NewLogger(t))

	c.ObserveSnapshotFetch(120*time.Millisecond, nil)
	c.ObserveSnapshotFetch(80*time.Millisecond, errors.New("timeout"))
	c.SetTrackedPositions(domain.OriginBotAcquired, 3)
	c.SetTrackedPositions(domain.OriginWalletDiscovered, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.fetchFailures))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.positions.WithLabelValues("bot_acquired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.positions.WithLabelValues("wallet_discovered")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.fetchLatency))
}

func TestCollector_Handler(t *testing.T) {
	c := New(zaptest.NewLogger(t))
	c.SetTrackedPositions(domain.OriginBotAcquired, 2)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `pumpbot_tracked_positions{origin="bot_acquired"} 2`)

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
