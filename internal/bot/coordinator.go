// internal/bot/coordinator.go
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpbot/internal/domain"
	"github.com/rovshanmuradov/pumpbot/internal/events"
	"github.com/rovshanmuradov/pumpbot/internal/monitor"
)

// TradeExecutor submits a trade and reports the outcome.
type TradeExecutor interface {
	Submit(ctx context.Context, intent domain.TradeIntent) domain.TradeResult
}

// CoordinatorConfig holds the trade parameters and the sell retry policy.
type CoordinatorConfig struct {
	Slippage    float64
	PriorityFee float64
	Pool        string

	SellRetryInitial time.Duration
	SellRetryMax     time.Duration
	// MaxSellRetries is the number of consecutive failed sells after which
	// every further failure raises an alert. Zero disables the alert.
	MaxSellRetries int
}

// sellCooldown tracks consecutive sell failures of one token.
type sellCooldown struct {
	policy    *backoff.ExponentialBackOff
	failures  int
	notBefore time.Time
}

// Coordinator is the only component that turns decisions into trades.
//
// At most one trade per token is in flight at any time; a concurrent request
// for the same token is dropped. Failed sells put the token on an exponential
// cooldown so a broken token does not hammer the trade API every cycle.
type Coordinator struct {
	store    *monitor.Store
	executor TradeExecutor
	events   events.Publisher
	cfg      CoordinatorConfig
	logger   *zap.Logger
	now      func() time.Time

	inflight sync.Map // token -> struct{}

	mu        sync.Mutex
	cooldowns map[string]*sellCooldown
}

// NewCoordinator creates a trade coordinator. publisher may be nil.
func NewCoordinator(
	store *monitor.Store,
	executor TradeExecutor,
	publisher events.Publisher,
	cfg CoordinatorConfig,
	logger *zap.Logger,
) *Coordinator {
	if cfg.SellRetryInitial <= 0 {
		cfg.SellRetryInitial = 5 * time.Second
	}
	if cfg.SellRetryMax < cfg.SellRetryInitial {
		cfg.SellRetryMax = cfg.SellRetryInitial
	}
	return &Coordinator{
		store:     store,
		executor:  executor,
		events:    publisher,
		cfg:       cfg,
		logger:    logger.Named("coordinator"),
		now:       time.Now,
		cooldowns: make(map[string]*sellCooldown),
	}
}

func (c *Coordinator) acquire(tokenID string) bool {
	_, busy := c.inflight.LoadOrStore(tokenID, struct{}{})
	return !busy
}

func (c *Coordinator) release(tokenID string) {
	c.inflight.Delete(tokenID)
}

// InFlight reports whether a trade for tokenID is currently being submitted.
func (c *Coordinator) InFlight(tokenID string) bool {
	_, ok := c.inflight.Load(tokenID)
	return ok
}

func (c *Coordinator) newIntent(action domain.TradeAction, tokenID string, qty domain.Quantity) domain.TradeIntent {
	return domain.TradeIntent{
		ID:               uuid.New().String(),
		Action:           action,
		TokenID:          tokenID,
		Quantity:         qty,
		DenominatedInSol: action == domain.ActionBuy,
		Slippage:         c.cfg.Slippage,
		PriorityFee:      c.cfg.PriorityFee,
		Pool:             c.cfg.Pool,
	}
}

// Buy opens a position in candidate spending amount SOL. It returns false
// without error when the token is already tracked or has a trade in flight.
func (c *Coordinator) Buy(ctx context.Context, candidate domain.TokenSummary, amount decimal.Decimal) (bool, error) {
	if candidate.Value <= 0 {
		return false, fmt.Errorf("buy %s: value %v: %w", candidate.TokenID, candidate.Value, domain.ErrInvalidEntry)
	}
	if !c.acquire(candidate.TokenID) {
		c.logger.Debug("Trade already in flight, buy dropped", zap.String("token", candidate.TokenID))
		return false, nil
	}
	defer c.release(candidate.TokenID)

	if _, tracked := c.store.Get(candidate.TokenID); tracked {
		return false, nil
	}

	intent := c.newIntent(domain.ActionBuy, candidate.TokenID, domain.Amount(amount))
	c.logger.Info("Buying token",
		zap.String("intent_id", intent.ID),
		zap.String("token", candidate.TokenID),
		zap.String("name", candidate.Name),
		zap.Float64("market_cap", candidate.Value),
		zap.String("amount_sol", amount.String()))

	res := c.executor.Submit(ctx, intent)
	if !res.OK {
		err := tradeError(res)
		c.logger.Warn("Buy failed",
			zap.String("token", candidate.TokenID),
			zap.String("action", string(intent.Action)),
			zap.Error(err))
		c.publish(events.NewTradeFailed(intent, domain.Position{TokenID: candidate.TokenID, Name: candidate.Name}, 1, err))
		return false, fmt.Errorf("buy %s: %w", candidate.TokenID, err)
	}

	pos := domain.NewBotPosition(candidate.TokenID, candidate.Name, candidate.Value, c.now())
	c.store.Upsert(pos)

	c.logger.Info("Position opened",
		zap.String("token", candidate.TokenID),
		zap.Float64("entry", candidate.Value),
		zap.String("signature", res.Reference))
	amountSOL, _ := amount.Float64()
	c.publish(events.NewPositionOpened(pos, amountSOL, res.Reference))
	return true, nil
}

// Sell closes the whole position in tokenID. It reports whether the position
// was sold. Duplicate, cooling down or non-active requests are no-ops.
func (c *Coordinator) Sell(ctx context.Context, tokenID, reason string) bool {
	if !c.acquire(tokenID) {
		c.logger.Debug("Trade already in flight, sell dropped", zap.String("token", tokenID))
		return false
	}
	defer c.release(tokenID)

	if wait := c.cooldownRemaining(tokenID); wait > 0 {
		c.logger.Debug("Sell cooling down after failure",
			zap.String("token", tokenID),
			zap.Duration("remaining", wait))
		return false
	}

	if !c.store.MarkSellPending(tokenID) {
		return false
	}
	pos, _ := c.store.Get(tokenID)

	intent := c.newIntent(domain.ActionSell, tokenID, domain.AllTokens())
	c.logger.Info("Selling position",
		zap.String("intent_id", intent.ID),
		zap.String("token", tokenID),
		zap.String("reason", reason))

	res := c.executor.Submit(ctx, intent)
	if !res.OK {
		c.store.MarkActive(tokenID)
		err := tradeError(res)
		failures := c.recordFailure(tokenID, err)
		c.publish(events.NewTradeFailed(intent, pos, failures, err))
		return false
	}

	c.store.Remove(tokenID)
	c.Forget(tokenID)
	pos.Status = domain.StatusClosed

	c.logger.Info("Position closed",
		zap.String("token", tokenID),
		zap.String("reason", reason),
		zap.String("signature", res.Reference))
	c.publish(events.NewPositionClosed(pos, reason, res.Reference))
	return true
}

// Forget clears the sell cooldown of tokenID.
func (c *Coordinator) Forget(tokenID string) {
	c.mu.Lock()
	delete(c.cooldowns, tokenID)
	c.mu.Unlock()
}

// Failures returns the number of consecutive failed sells for tokenID.
func (c *Coordinator) Failures(tokenID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cd, ok := c.cooldowns[tokenID]; ok {
		return cd.failures
	}
	return 0
}

func (c *Coordinator) cooldownRemaining(tokenID string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	cd, ok := c.cooldowns[tokenID]
	if !ok {
		return 0
	}
	return cd.notBefore.Sub(c.now())
}

func (c *Coordinator) recordFailure(tokenID string, err error) int {
	c.mu.Lock()
	cd, ok := c.cooldowns[tokenID]
	if !ok {
		policy := &backoff.ExponentialBackOff{
			InitialInterval:     c.cfg.SellRetryInitial,
			RandomizationFactor: 0,
			Multiplier:          2,
			MaxInterval:         c.cfg.SellRetryMax,
		}
		policy.Reset()
		cd = &sellCooldown{policy: policy}
		c.cooldowns[tokenID] = cd
	}
	cd.failures++
	wait := cd.policy.NextBackOff()
	cd.notBefore = c.now().Add(wait)
	failures := cd.failures
	c.mu.Unlock()

	fields := []zap.Field{
		zap.String("token", tokenID),
		zap.String("action", string(domain.ActionSell)),
		zap.Int("failures", failures),
		zap.Duration("retry_in", wait),
		zap.Error(err),
	}
	if c.cfg.MaxSellRetries > 0 && failures >= c.cfg.MaxSellRetries {
		c.logger.Error("Sell keeps failing, manual attention required", fields...)
	} else {
		c.logger.Warn("Sell failed, position stays active", fields...)
	}
	return failures
}

func (c *Coordinator) publish(e events.Event) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(e); err != nil {
		c.logger.Debug("Event not published", zap.String("event_type", string(e.Type())), zap.Error(err))
	}
}

func tradeError(res domain.TradeResult) error {
	if res.Err != nil {
		return res.Err
	}
	return fmt.Errorf("trade rejected")
}
