// internal/monitor/engine.go
package monitor

import (
	"fmt"
	"sort"

	"github.com/rovshanmuradov/pumpbot/internal/domain"
)

// ExitConfig holds the sell rule thresholds, all in percent.
type ExitConfig struct {
	RapidRiseTrigger    float64
	PriceDeclineTrigger float64
	ProfitTakingLevels  []float64
	ReversalMinGain     float64
	// StopLossTrigger disables the stop-loss rule when zero.
	StopLossTrigger float64
}

// reversalWindow is the number of trailing history points inspected for a reversal.
const reversalWindow = 3

// Engine decides whether a position should be sold. It holds no state besides
// its configuration and is safe for concurrent use.
type Engine struct {
	cfg ExitConfig
}

// NewEngine copies cfg and sorts the profit ladder ascending.
func NewEngine(cfg ExitConfig) *Engine {
	levels := make([]float64, len(cfg.ProfitTakingLevels))
	copy(levels, cfg.ProfitTakingLevels)
	sort.Float64s(levels)
	cfg.ProfitTakingLevels = levels
	return &Engine{cfg: cfg}
}

// ValidateEntry rejects positions whose entry would make percentages meaningless.
func ValidateEntry(p domain.Position) error {
	if p.EntryValue <= 0 {
		return fmt.Errorf("position %s entry %v: %w", p.TokenID, p.EntryValue, domain.ErrInvalidEntry)
	}
	return nil
}

// Evaluate applies the exit rules in priority order to a position whose
// history already includes snap. The first matching rule wins.
func (e *Engine) Evaluate(p domain.Position, snap domain.MarketSnapshot) (domain.Decision, error) {
	if err := ValidateEntry(p); err != nil {
		return domain.Decision{}, err
	}

	v := snap.Value
	peak := p.PeakValue
	if v > peak {
		peak = v
	}
	if p.EntryValue > peak {
		peak = p.EntryValue
	}

	pct := p.PercentChange(v)
	decline := 0.0
	if peak > 0 {
		decline = (peak - v) / peak * 100
	}
	peakRise := p.PercentChange(peak)

	d := domain.Decision{
		Action:          domain.DecisionHold,
		Rule:            domain.RuleNone,
		PercentChange:   pct,
		DeclineFromPeak: decline,
	}

	if peakRise > e.cfg.RapidRiseTrigger && decline >= e.cfg.PriceDeclineTrigger {
		d.Action = domain.DecisionSell
		d.Rule = domain.RulePeakDecline
		d.Reason = fmt.Sprintf("decline-from-peak after rapid rise: peak +%.1f%%, down %.1f%% from peak", peakRise, decline)
		return d, nil
	}

	for _, level := range e.cfg.ProfitTakingLevels {
		if pct >= level {
			d.Action = domain.DecisionSell
			d.Rule = domain.RuleProfitLevel
			d.Reason = fmt.Sprintf("profit level %.0f%% reached (+%.1f%%)", level, pct)
			return d, nil
		}
	}

	if pct > e.cfg.ReversalMinGain && reversing(p.History) {
		d.Action = domain.DecisionSell
		d.Rule = domain.RuleReversal
		d.Reason = fmt.Sprintf("reversal pattern detected at +%.1f%%", pct)
		return d, nil
	}

	if e.cfg.StopLossTrigger > 0 && pct <= -e.cfg.StopLossTrigger {
		d.Action = domain.DecisionSell
		d.Rule = domain.RuleStopLoss
		d.Reason = fmt.Sprintf("stop-loss triggered at %.1f%%", pct)
		return d, nil
	}

	d.Reason = "hold"
	return d, nil
}

// reversing reports whether the last reversalWindow points strictly decrease.
func reversing(history []float64) bool {
	if len(history) < reversalWindow {
		return false
	}
	tail := history[len(history)-reversalWindow:]
	for i := 1; i < len(tail); i++ {
		if tail[i] >= tail[i-1] {
			return false
		}
	}
	return true
}
