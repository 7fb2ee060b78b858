package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/pumpbot/internal/domain"
	"github.com/rovshanmuradov/pumpbot/internal/events"
)

var buyAmount = decimal.RequireFromString("0.1")

func candidate(id string, v float64) domain.TokenSummary {
	return domain.TokenSummary{TokenID: id, Name: id + "-name", Value: v}
}

func TestCoordinator_BuyOpensPosition(t *testing.T) {
	exec := &fakeExecutor{result: okResult()}
	pub := &recordingPublisher{}
	c, store := newTestCoordinator(t, exec, pub)

	ok, err := c.Buy(context.Background(), candidate("A", 25000), buyAmount)
	require.NoError(t, err)
	assert.True(t, ok)

	p, tracked := store.Get("A")
	require.True(t, tracked)
	assert.Equal(t, domain.OriginBotAcquired, p.Origin)
	assert.Equal(t, 25000.0, p.EntryValue)
	assert.Equal(t, 25000.0, p.PeakValue)

	intents := exec.Intents()
	require.Len(t, intents, 1)
	assert.Equal(t, domain.ActionBuy, intents[0].Action)
	assert.True(t, intents[0].DenominatedInSol)
	assert.Equal(t, "0.1", intents[0].Quantity.String())
	assert.Equal(t, "pump", intents[0].Pool)
	assert.NotEmpty(t, intents[0].ID)

	assert.Equal(t, []events.EventType{events.PositionOpened}, pub.Types())
	assert.False(t, c.InFlight("A"))
}

func TestCoordinator_BuySkipsTrackedToken(t *testing.T) {
	exec := &fakeExecutor{result: okResult()}
	c, store := newTestCoordinator(t, exec, nil)
	store.Upsert(domain.NewDiscoveredPosition("A", 10, time.Now()))

	ok, err := c.Buy(context.Background(), candidate("A", 25000), buyAmount)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, exec.Calls())
}

func TestCoordinator_BuyFailure(t *testing.T) {
	exec := &fakeExecutor{result: failResult()}
	pub := &recordingPublisher{}
	c, store := newTestCoordinator(t, exec, pub)

	ok, err := c.Buy(context.Background(), candidate("A", 25000), buyAmount)
	assert.False(t, ok)
	assert.ErrorIs(t, err, errTradeRejected)
	assert.Zero(t, store.Len())
	assert.Equal(t, []events.EventType{events.TradeFailed}, pub.Types())
}

func TestCoordinator_BuyRejectsInvalidEntry(t *testing.T) {
	exec := &fakeExecutor{result: okResult()}
	c, _ := newTestCoordinator(t, exec, nil)

	_, err := c.Buy(context.Background(), candidate("A", 0), buyAmount)
	assert.ErrorIs(t, err, domain.ErrInvalidEntry)
	assert.Zero(t, exec.Calls())
}

func TestCoordinator_SellClosesPosition(t *testing.T) {
	exec := &fakeExecutor{result: okResult()}
	pub := &recordingPublisher{}
	c, store := newTestCoordinator(t, exec, pub)
	store.Upsert(domain.NewBotPosition("A", "", 100, time.Now()))

	assert.True(t, c.Sell(context.Background(), "A", "profit level 200% reached"))

	_, tracked := store.Get("A")
	assert.False(t, tracked)

	intents := exec.Intents()
	require.Len(t, intents, 1)
	assert.Equal(t, domain.ActionSell, intents[0].Action)
	assert.True(t, intents[0].Quantity.All)
	assert.False(t, intents[0].DenominatedInSol)
	assert.Equal(t, []events.EventType{events.PositionClosed}, pub.Types())
}

func TestCoordinator_SellUnknownTokenIsNoop(t *testing.T) {
	exec := &fakeExecutor{result: okResult()}
	c, _ := newTestCoordinator(t, exec, nil)

	assert.False(t, c.Sell(context.Background(), "missing", "x"))
	assert.Zero(t, exec.Calls())
}

func TestCoordinator_FailedSellKeepsPositionActive(t *testing.T) {
	exec := &fakeExecutor{result: failResult()}
	pub := &recordingPublisher{}
	c, store := newTestCoordinator(t, exec, pub)

	pos := domain.NewBotPosition("A", "", 100, time.Now())
	pos.History = []float64{100, 350, 310}
	pos.PeakValue = 350
	store.Upsert(pos)

	assert.False(t, c.Sell(context.Background(), "A", "peak decline"))

	after, tracked := store.Get("A")
	require.True(t, tracked)
	assert.Equal(t, domain.StatusActive, after.Status)
	assert.Equal(t, pos.History, after.History)
	assert.Equal(t, pos.PeakValue, after.PeakValue)
	assert.Len(t, store.ListActive(), 1)
	assert.Equal(t, 1, c.Failures("A"))
	assert.Equal(t, []events.EventType{events.TradeFailed}, pub.Types())
}

func TestCoordinator_SellBackoff(t *testing.T) {
	exec := &fakeExecutor{result: failResult()}
	c, store := newTestCoordinator(t, exec, nil)
	store.Upsert(domain.NewBotPosition("A", "", 100, time.Now()))

	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	// cooldowns: 1s, 2s, 4s, 8s, 8s (capped)
	for i, wait := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second} {
		assert.False(t, c.Sell(context.Background(), "A", "reason"))
		assert.Equal(t, i+1, exec.Calls())
		assert.Equal(t, wait, c.cooldownRemaining("A"))

		// still cooling down: no submission
		assert.False(t, c.Sell(context.Background(), "A", "reason"))
		assert.Equal(t, i+1, exec.Calls())

		now = now.Add(wait)
	}
	assert.Equal(t, 5, c.Failures("A"))

	exec.setResult(okResult())
	assert.True(t, c.Sell(context.Background(), "A", "reason"))
	assert.Zero(t, c.Failures("A"))
}

func TestCoordinator_ConcurrentSellsSubmitOnce(t *testing.T) {
	exec := &fakeExecutor{result: okResult(), block: make(chan struct{}), started: make(chan struct{}, 1)}
	c, store := newTestCoordinator(t, exec, nil)
	store.Upsert(domain.NewBotPosition("A", "", 100, time.Now()))

	var wg sync.WaitGroup
	results := make(chan bool, 20)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results <- c.Sell(context.Background(), "A", "first")
	}()
	<-exec.started

	for i := 0; i < 19; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.Sell(context.Background(), "A", "duplicate")
		}()
	}

	// let the duplicates hit the guard before releasing the first sell
	time.Sleep(20 * time.Millisecond)
	close(exec.block)
	wg.Wait()
	close(results)

	sold := 0
	for r := range results {
		if r {
			sold++
		}
	}
	assert.Equal(t, 1, sold)
	assert.Equal(t, 1, exec.Calls())
}

func TestCoordinator_ForgetClearsCooldown(t *testing.T) {
	exec := &fakeExecutor{result: failResult()}
	c, store := newTestCoordinator(t, exec, nil)
	store.Upsert(domain.NewBotPosition("A", "", 100, time.Now()))

	c.Sell(context.Background(), "A", "x")
	require.Equal(t, 1, c.Failures("A"))

	c.Forget("A")
	assert.Zero(t, c.Failures("A"))
	assert.Zero(t, c.cooldownRemaining("A"))
}
