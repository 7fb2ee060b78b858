// internal/domain/position.go
package domain

import (
	"time"
)

// Origin tells how a position entered the store.
type Origin string

const (
	// OriginBotAcquired marks positions opened by our own buy.
	OriginBotAcquired Origin = "bot_acquired"
	// OriginWalletDiscovered marks holdings found in the wallet during reconciliation.
	OriginWalletDiscovered Origin = "wallet_discovered"
)

// Status is the lifecycle state of a position.
type Status string

const (
	StatusActive      Status = "active"
	StatusSellPending Status = "sell_pending"
	StatusClosed      Status = "closed"
)

// DefaultHistoryCapacity is the number of snapshots kept per position.
const DefaultHistoryCapacity = 20

// Position is a tracked stake in one token.
//
// Values are market-cap proxies in USD as reported by the market data API.
// A WalletDiscovered position with a zero EntryValue has not been observed yet
// and is excluded from exit evaluation until its first snapshot arrives.
type Position struct {
	TokenID     string    `json:"token_id"`
	Name        string    `json:"name,omitempty"`
	EntryValue  float64   `json:"entry_value"`
	PeakValue   float64   `json:"peak_value"`
	History     []float64 `json:"history"`
	OwnedAmount uint64    `json:"owned_amount"`
	Origin      Origin    `json:"origin"`
	Status      Status    `json:"status"`
	OpenedAt    time.Time `json:"opened_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewBotPosition builds a position for a token we just bought.
func NewBotPosition(tokenID, name string, entry float64, now time.Time) Position {
	return Position{
		TokenID:    tokenID,
		Name:       name,
		EntryValue: entry,
		PeakValue:  entry,
		History:    []float64{entry},
		Origin:     OriginBotAcquired,
		Status:     StatusActive,
		OpenedAt:   now,
		UpdatedAt:  now,
	}
}

// NewDiscoveredPosition builds a pending position for an externally held token.
// Its entry is filled in by the first snapshot the monitor witnesses.
func NewDiscoveredPosition(tokenID string, amount uint64, now time.Time) Position {
	return Position{
		TokenID:     tokenID,
		OwnedAmount: amount,
		Origin:      OriginWalletDiscovered,
		Status:      StatusActive,
		OpenedAt:    now,
		UpdatedAt:   now,
	}
}

// Pending reports whether the position still waits for its first snapshot.
func (p Position) Pending() bool {
	return p.EntryValue <= 0
}

// LastValue returns the most recent observed value, or 0.
func (p Position) LastValue() float64 {
	if len(p.History) == 0 {
		return 0
	}
	return p.History[len(p.History)-1]
}

// PercentChange returns the change of v relative to the entry value.
// Callers must make sure the entry is positive.
func (p Position) PercentChange(v float64) float64 {
	return (v - p.EntryValue) / p.EntryValue * 100
}

// Clone returns a deep copy safe to hand across goroutines.
func (p Position) Clone() Position {
	c := p
	if p.History != nil {
		c.History = make([]float64, len(p.History))
		copy(c.History, p.History)
	}
	return c
}

// MarketSnapshot is a single point-in-time market-cap observation.
type MarketSnapshot struct {
	TokenID   string
	Name      string
	Value     float64
	Timestamp time.Time
}

// TokenSummary is a candidate as listed by the market data provider.
type TokenSummary struct {
	TokenID  string
	Name     string
	Symbol   string
	Value    float64
	Website  string
	Telegram string
	Twitter  string
}

// HasSocials reports whether the token lists website, telegram and twitter links.
func (t TokenSummary) HasSocials() bool {
	return t.Website != "" && t.Telegram != "" && t.Twitter != ""
}
