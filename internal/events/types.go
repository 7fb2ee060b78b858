// internal/events/types.go
package events

import (
	"time"

	"github.com/rovshanmuradov/pumpbot/internal/domain"
)

// EventType represents the type of event.
type EventType string

const (
	// Position lifecycle
	PositionOpened     EventType = "position.opened"
	PositionClosed     EventType = "position.closed"
	PositionDiscovered EventType = "position.discovered"

	// Exit decisions and trade failures
	SellDecided EventType = "sell.decided"
	TradeFailed EventType = "trade.failed"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(event Event) error
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

func base(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now()}
}

// PositionOpenedEvent is emitted after a confirmed buy.
type PositionOpenedEvent struct {
	BaseEvent
	Position  domain.Position
	AmountSOL float64
	Reference string
}

// NewPositionOpened builds a PositionOpenedEvent stamped with the current time.
func NewPositionOpened(p domain.Position, amountSOL float64, reference string) PositionOpenedEvent {
	return PositionOpenedEvent{BaseEvent: base(PositionOpened), Position: p, AmountSOL: amountSOL, Reference: reference}
}

// PositionClosedEvent is emitted after a confirmed sell removed the position.
type PositionClosedEvent struct {
	BaseEvent
	Position  domain.Position
	Reason    string
	Reference string
}

// NewPositionClosed builds a PositionClosedEvent stamped with the current time.
func NewPositionClosed(p domain.Position, reason, reference string) PositionClosedEvent {
	return PositionClosedEvent{BaseEvent: base(PositionClosed), Position: p, Reason: reason, Reference: reference}
}

// PositionDiscoveredEvent is emitted when reconciliation finds an untracked holding.
type PositionDiscoveredEvent struct {
	BaseEvent
	TokenID string
	Amount  uint64
}

// NewPositionDiscovered builds a PositionDiscoveredEvent stamped with the current time.
func NewPositionDiscovered(tokenID string, amount uint64) PositionDiscoveredEvent {
	return PositionDiscoveredEvent{BaseEvent: base(PositionDiscovered), TokenID: tokenID, Amount: amount}
}

// SellDecidedEvent is emitted whenever the exit engine returns Sell.
type SellDecidedEvent struct {
	BaseEvent
	Position domain.Position
	Decision domain.Decision
}

// NewSellDecided builds a SellDecidedEvent stamped with the current time.
func NewSellDecided(p domain.Position, d domain.Decision) SellDecidedEvent {
	return SellDecidedEvent{BaseEvent: base(SellDecided), Position: p, Decision: d}
}

// TradeFailedEvent is emitted when a buy or sell was rejected or errored.
type TradeFailedEvent struct {
	BaseEvent
	Intent   domain.TradeIntent
	Position domain.Position
	Failures int
	Err      error
}

// NewTradeFailed builds a TradeFailedEvent stamped with the current time.
func NewTradeFailed(intent domain.TradeIntent, p domain.Position, failures int, err error) TradeFailedEvent {
	return TradeFailedEvent{BaseEvent: base(TradeFailed), Intent: intent, Position: p, Failures: failures, Err: err}
}
