// internal/domain/trade.go
package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TradeAction is the side of a trade.
type TradeAction string

const (
	ActionBuy  TradeAction = "buy"
	ActionSell TradeAction = "sell"
)

// Quantity is either an absolute amount or the whole balance.
type Quantity struct {
	Amount decimal.Decimal
	All    bool
}

// AllTokens sells the entire balance.
func AllTokens() Quantity {
	return Quantity{All: true}
}

// Amount builds an absolute quantity.
func Amount(d decimal.Decimal) Quantity {
	return Quantity{Amount: d}
}

// String renders the quantity the way the trade API expects it.
func (q Quantity) String() string {
	if q.All {
		return "100%"
	}
	return q.Amount.String()
}

// TradeIntent is an immutable order request built by the trade coordinator.
type TradeIntent struct {
	ID               string
	Action           TradeAction
	TokenID          string
	Quantity         Quantity
	DenominatedInSol bool
	Slippage         float64
	PriorityFee      float64
	Pool             string
}

func (t TradeIntent) String() string {
	return fmt.Sprintf("%s %s %s", t.Action, t.Quantity, t.TokenID)
}

// TradeResult is the outcome reported by the trade execution service.
type TradeResult struct {
	OK        bool
	Reference string
	Err       error
}

// DecisionAction is the verdict of the exit engine.
type DecisionAction string

const (
	DecisionHold DecisionAction = "hold"
	DecisionSell DecisionAction = "sell"
)

// Rule identifies which exit rule fired.
type Rule string

const (
	RuleNone        Rule = ""
	RulePeakDecline Rule = "peak_decline"
	RuleProfitLevel Rule = "profit_level"
	RuleReversal    Rule = "reversal"
	RuleStopLoss    Rule = "stop_loss"
)

// Decision is the exit engine verdict with a human readable reason.
type Decision struct {
	Action          DecisionAction
	Rule            Rule
	Reason          string
	PercentChange   float64
	DeclineFromPeak float64
}

// ShouldSell is a shorthand for Action == DecisionSell.
func (d Decision) ShouldSell() bool {
	return d.Action == DecisionSell
}
