package bot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/pumpbot/internal/domain"
	"github.com/rovshanmuradov/pumpbot/internal/events"
	"github.com/rovshanmuradov/pumpbot/internal/monitor"
)

// fakeExecutor records intents and answers with result. When block is set,
// Submit waits for it to be closed or for ctx to end.
type fakeExecutor struct {
	mu      sync.Mutex
	intents []domain.TradeIntent
	calls   int32
	result  domain.TradeResult
	block   chan struct{}
	started chan struct{}
}

func (f *fakeExecutor) Submit(ctx context.Context, intent domain.TradeIntent) domain.TradeResult {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.intents = append(f.intents, intent)
	result := f.result
	f.mu.Unlock()

	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return domain.TradeResult{Err: ctx.Err()}
		}
	}
	return result
}

func (f *fakeExecutor) setResult(r domain.TradeResult) {
	f.mu.Lock()
	f.result = r
	f.mu.Unlock()
}

func (f *fakeExecutor) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}

func (f *fakeExecutor) Intents() []domain.TradeIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.TradeIntent, len(f.intents))
	copy(out, f.intents)
	return out
}

var errTradeRejected = errors.New("trade rejected by API")

func okResult() domain.TradeResult {
	return domain.TradeResult{OK: true, Reference: "sig"}
}

func failResult() domain.TradeResult {
	return domain.TradeResult{Err: errTradeRejected}
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type()
	}
	return out
}

// fakeMarket serves scripted market caps per token.
type fakeMarket struct {
	mu         sync.Mutex
	values     map[string]float64
	candidates []domain.TokenSummary
	fetches    map[string]int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{values: make(map[string]float64), fetches: make(map[string]int)}
}

func (m *fakeMarket) set(tokenID string, v float64) {
	m.mu.Lock()
	m.values[tokenID] = v
	m.mu.Unlock()
}

func (m *fakeMarket) ListCandidates(context.Context) ([]domain.TokenSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.candidates, nil
}

func (m *fakeMarket) GetSnapshot(_ context.Context, tokenID string) (domain.MarketSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches[tokenID]++
	v, ok := m.values[tokenID]
	if !ok {
		return domain.MarketSnapshot{}, domain.ErrNotFound
	}
	return domain.MarketSnapshot{TokenID: tokenID, Value: v, Timestamp: time.Now()}, nil
}

func (m *fakeMarket) Fetches(tokenID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches[tokenID]
}

// fakeHoldings returns a fixed wallet content.
type fakeHoldings struct {
	mu       sync.Mutex
	holdings map[string]uint64
	err      error
}

func (h *fakeHoldings) set(holdings map[string]uint64) {
	h.mu.Lock()
	h.holdings = holdings
	h.mu.Unlock()
}

func (h *fakeHoldings) ListHoldings(context.Context) (map[string]uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]uint64, len(h.holdings))
	for k, v := range h.holdings {
		out[k] = v
	}
	return out, h.err
}

func newTestCoordinator(t *testing.T, exec TradeExecutor, pub events.Publisher) (*Coordinator, *monitor.Store) {
	t.Helper()
	log := zaptest.NewLogger(t)
	store := monitor.NewStore(domain.DefaultHistoryCapacity, log)
	c := NewCoordinator(store, exec, pub, CoordinatorConfig{
		Slippage:         10,
		PriorityFee:      0.005,
		Pool:             "pump",
		SellRetryInitial: time.Second,
		SellRetryMax:     8 * time.Second,
		MaxSellRetries:   3,
	}, log)
	return c, store
}
