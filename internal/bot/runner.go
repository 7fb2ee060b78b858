// internal/bot/runner.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/pumpbot/internal/domain"
	"github.com/rovshanmuradov/pumpbot/internal/events"
	"github.com/rovshanmuradov/pumpbot/internal/monitor"
	"github.com/rovshanmuradov/pumpbot/internal/sniping"
)

// MarketData reads candidate lists and market cap snapshots.
type MarketData interface {
	sniping.CandidateSource
	GetSnapshot(ctx context.Context, tokenID string) (domain.MarketSnapshot, error)
}

// HoldingsProvider lists the wallet's token balances.
type HoldingsProvider interface {
	ListHoldings(ctx context.Context) (map[string]uint64, error)
}

// Persister stores the tracked positions between restarts.
type Persister interface {
	SavePositions(ctx context.Context, positions []domain.Position) error
}

// Metrics receives loop level measurements.
type Metrics interface {
	ObserveSnapshotFetch(d time.Duration, err error)
	SetTrackedPositions(origin domain.Origin, n int)
}

// StatusRenderer formats the position table printed after a monitoring cycle.
type StatusRenderer func(positions []domain.Position) string

// RunnerConfig holds loop intervals and acquisition limits.
type RunnerConfig struct {
	AcquireInterval        time.Duration
	MonitorInterval        time.Duration
	ShutdownTimeout        time.Duration
	TradeTimeout           time.Duration
	FetchWorkers           int
	MaxConcurrentPositions int
	BuyAmount              decimal.Decimal
	// HoldWalletTokens keeps discovered holdings out of the exit rules.
	HoldWalletTokens bool
}

// Runner drives the acquisition and monitoring loops.
type Runner struct {
	cfg         RunnerConfig
	store       *monitor.Store
	selector    *sniping.Selector
	engine      *monitor.Engine
	coordinator *Coordinator
	market      MarketData
	holdings    HoldingsProvider
	events      events.Publisher
	logger      *zap.Logger

	persister Persister
	metrics   Metrics
	status    io.Writer
	render    StatusRenderer

	// set by Run; cycles driven without Run sell on a background context
	sellCtx    context.Context
	sellCancel context.CancelFunc
	sells      sync.WaitGroup
	pending    sync.Map // tokens with a sell goroutine outstanding
}

// RunnerDeps bundles the collaborators of a Runner.
type RunnerDeps struct {
	Store       *monitor.Store
	Selector    *sniping.Selector
	Engine      *monitor.Engine
	Coordinator *Coordinator
	Market      MarketData
	Holdings    HoldingsProvider
	Events      events.Publisher
	Logger      *zap.Logger

	// Optional
	Persister Persister
	Metrics   Metrics
	Status    io.Writer
	Render    StatusRenderer
}

// NewRunner creates a runner. Optional dependencies may be left nil.
func NewRunner(cfg RunnerConfig, deps RunnerDeps) *Runner {
	if cfg.FetchWorkers <= 0 {
		cfg.FetchWorkers = 1
	}
	if cfg.TradeTimeout <= 0 {
		cfg.TradeTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	return &Runner{
		cfg:         cfg,
		store:       deps.Store,
		selector:    deps.Selector,
		engine:      deps.Engine,
		coordinator: deps.Coordinator,
		market:      deps.Market,
		holdings:    deps.Holdings,
		events:      deps.Events,
		logger:      deps.Logger.Named("runner"),
		persister:   deps.Persister,
		metrics:     deps.Metrics,
		status:      deps.Status,
		render:      deps.Render,
	}
}

// Run starts both loops and blocks until ctx is cancelled or a loop fails.
// Sells already submitted are allowed to finish within ShutdownTimeout.
func (r *Runner) Run(ctx context.Context) error {
	// Sells must outlive the loops' cancellation.
	r.sellCtx, r.sellCancel = context.WithCancel(context.WithoutCancel(ctx))
	defer r.sellCancel()

	r.logger.Info("🚀 Starting loops",
		zap.Duration("acquire_interval", r.cfg.AcquireInterval),
		zap.Duration("monitor_interval", r.cfg.MonitorInterval),
		zap.Int("fetch_workers", r.cfg.FetchWorkers))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.loop(gctx, "acquisition", r.cfg.AcquireInterval, r.AcquireOnce)
	})
	g.Go(func() error {
		return r.loop(gctx, "monitoring", r.cfg.MonitorInterval, r.MonitorOnce)
	})
	err := g.Wait()

	r.logger.Info("Loops stopped, waiting for in-flight sells")
	if !r.waitForSells(r.cfg.ShutdownTimeout) {
		r.logger.Warn("Shutdown timeout reached, aborting in-flight sells")
		r.sellCancel()
		r.sells.Wait()
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ShutdownTimeout)
	defer cancel()
	r.persist(persistCtx)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// loop runs cycle immediately and then on every tick until ctx is done.
func (r *Runner) loop(ctx context.Context, name string, interval time.Duration, cycle func(context.Context)) error {
	if interval <= 0 {
		return fmt.Errorf("%s loop: invalid interval %v", name, interval)
	}
	logger := r.logger.With(zap.String("loop", name))
	logger.Debug("Loop started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		cycle(ctx)
		select {
		case <-ctx.Done():
			logger.Debug("Loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// AcquireOnce runs one acquisition cycle: select candidates and buy untracked
// ones until the position limit is reached.
func (r *Runner) AcquireOnce(ctx context.Context) {
	slots := r.cfg.MaxConcurrentPositions - r.store.CountActive(domain.OriginBotAcquired)
	if slots <= 0 {
		r.logger.Debug("Position limit reached, skipping acquisition")
		return
	}

	for _, candidate := range r.selector.Next(ctx) {
		if ctx.Err() != nil || slots <= 0 {
			return
		}
		if _, tracked := r.store.Get(candidate.TokenID); tracked {
			continue
		}
		bought, err := r.coordinator.Buy(ctx, candidate, r.cfg.BuyAmount)
		if err != nil {
			r.logger.Warn("Acquisition failed",
				zap.String("token", candidate.TokenID),
				zap.Error(err))
			continue
		}
		if bought {
			slots--
		}
	}
}

// MonitorOnce runs one monitoring cycle: reconcile holdings, refresh every
// active position and act on the exit decisions.
func (r *Runner) MonitorOnce(ctx context.Context) {
	r.reconcile(ctx)

	positions := r.store.ListActive()
	snapshots := r.fetchSnapshots(ctx, positions)

	for i, p := range positions {
		if ctx.Err() != nil {
			return
		}
		snap, ok := snapshots[i]
		if !ok {
			continue
		}
		r.evaluate(p.TokenID, snap)
	}

	r.afterCycle(ctx)
}

func (r *Runner) reconcile(ctx context.Context) {
	holdings, err := r.holdings.ListHoldings(ctx)
	if err != nil {
		r.logger.Warn("Holdings unavailable, skipping reconciliation", zap.Error(err))
		return
	}
	res := r.store.ReconcileWallet(holdings)
	for _, tokenID := range res.Added {
		r.publish(events.NewPositionDiscovered(tokenID, holdings[tokenID]))
	}
	for _, tokenID := range res.Removed {
		r.coordinator.Forget(tokenID)
	}
}

func (r *Runner) evaluate(tokenID string, snap domain.MarketSnapshot) {
	pos, err := r.store.Observe(snap)
	if err != nil {
		// removed or sold while the snapshot was in flight
		r.logger.Debug("Snapshot not recorded", zap.String("token", tokenID), zap.Error(err))
		return
	}
	if pos.Status != domain.StatusActive {
		return
	}
	if pos.Origin == domain.OriginWalletDiscovered && r.cfg.HoldWalletTokens {
		return
	}

	decision, err := r.engine.Evaluate(pos, snap)
	if err != nil {
		r.logger.Warn("Position not evaluated", zap.String("token", tokenID), zap.Error(err))
		return
	}
	if !decision.ShouldSell() {
		return
	}

	r.logger.Info("Sell decided",
		zap.String("token", tokenID),
		zap.String("rule", string(decision.Rule)),
		zap.String("reason", decision.Reason),
		zap.Float64("change_pct", decision.PercentChange),
		zap.Float64("decline_from_peak_pct", decision.DeclineFromPeak))
	r.publish(events.NewSellDecided(pos, decision))
	r.dispatchSell(tokenID, decision.Reason)
}

// dispatchSell submits the sell on its own goroutine under the detached sell
// context. A token with an outstanding sell goroutine is not dispatched again.
func (r *Runner) dispatchSell(tokenID, reason string) {
	if _, busy := r.pending.LoadOrStore(tokenID, struct{}{}); busy {
		return
	}
	r.sells.Add(1)
	go func() {
		defer r.sells.Done()
		defer r.pending.Delete(tokenID)

		base := r.sellCtx
		if base == nil {
			base = context.Background()
		}
		ctx, cancel := context.WithTimeout(base, r.cfg.TradeTimeout)
		defer cancel()
		r.coordinator.Sell(ctx, tokenID, reason)
	}()
}

func (r *Runner) waitForSells(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		r.sells.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (r *Runner) afterCycle(ctx context.Context) {
	positions := r.store.Snapshot()

	if r.metrics != nil {
		counts := map[domain.Origin]int{domain.OriginBotAcquired: 0, domain.OriginWalletDiscovered: 0}
		for _, p := range positions {
			counts[p.Origin]++
		}
		for origin, n := range counts {
			r.metrics.SetTrackedPositions(origin, n)
		}
	}

	r.persist(ctx)

	if r.status != nil && r.render != nil {
		if _, err := io.WriteString(r.status, r.render(positions)+"\n"); err != nil {
			r.logger.Debug("Status output failed", zap.Error(err))
		}
	}
}

func (r *Runner) persist(ctx context.Context) {
	if r.persister == nil {
		return
	}
	if err := r.persister.SavePositions(ctx, r.store.Snapshot()); err != nil {
		r.logger.Warn("Failed to persist positions", zap.Error(err))
	}
}

func (r *Runner) publish(e events.Event) {
	if r.events == nil {
		return
	}
	_ = r.events.Publish(e)
}
