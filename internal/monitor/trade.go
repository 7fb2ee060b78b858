package monitor

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rovshanmuradov/pumpbot/internal/domain"
)

// Trade is one journal row: a buy or sell attempt and its outcome.
type Trade struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	TokenMint   string    `json:"token_mint"`
	TokenName   string    `json:"token_name"`
	Origin      string    `json:"origin"`
	Action      string    `json:"action"` // "buy" or "sell"
	AmountSOL   float64   `json:"amount_sol"`
	TxSignature string    `json:"tx_signature"`

	// Market cap values in USD
	EntryValue float64 `json:"entry_value"`
	ExitValue  float64 `json:"exit_value,omitempty"`
	PeakValue  float64 `json:"peak_value,omitempty"`
	PnLPercent float64 `json:"pnl_percent,omitempty"`
	HoldTime   string  `json:"hold_time,omitempty"`
	Reason     string  `json:"reason,omitempty"`

	Success  bool   `json:"success"`
	Failures int    `json:"failures,omitempty"`
	ErrorMsg string `json:"error_msg,omitempty"`
}

// ToCSV converts trade to CSV record
func (t *Trade) ToCSV() []string {
	return []string{
		t.ID,
		t.Timestamp.Format(time.RFC3339),
		t.TokenMint,
		t.TokenName,
		t.Origin,
		t.Action,
		formatFloat(t.AmountSOL),
		t.TxSignature,
		formatFloat(t.EntryValue),
		formatFloat(t.ExitValue),
		formatFloat(t.PeakValue),
		formatPercent(t.PnLPercent),
		t.HoldTime,
		t.Reason,
		strconv.FormatBool(t.Success),
		formatInt(t.Failures),
		t.ErrorMsg,
	}
}

// CSVHeaders returns the header row for trade CSV files
func CSVHeaders() []string {
	return []string{
		"id",
		"timestamp",
		"token_mint",
		"token_name",
		"origin",
		"action",
		"amount_sol",
		"tx_signature",
		"entry_value",
		"exit_value",
		"peak_value",
		"pnl_percent",
		"hold_time",
		"reason",
		"success",
		"failures",
		"error_msg",
	}
}

// tradeFromPosition fills the position derived columns of a journal row.
func tradeFromPosition(action domain.TradeAction, p domain.Position, at time.Time) Trade {
	t := Trade{
		Timestamp:  at,
		TokenMint:  p.TokenID,
		TokenName:  p.Name,
		Origin:     string(p.Origin),
		Action:     string(action),
		EntryValue: p.EntryValue,
	}
	if action == domain.ActionSell {
		t.ExitValue = p.LastValue()
		t.PeakValue = p.PeakValue
		if p.EntryValue > 0 {
			t.PnLPercent = p.PercentChange(t.ExitValue)
		}
		if !p.OpenedAt.IsZero() {
			t.HoldTime = CalculateHoldTime(p.OpenedAt, at)
		}
	}
	return t
}

func formatFloat(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'f', 6, 64)
}

func formatPercent(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func formatInt(i int) string {
	if i == 0 {
		return ""
	}
	return strconv.Itoa(i)
}

// CalculateHoldTime calculates the duration between buy and sell
func CalculateHoldTime(buyTime, sellTime time.Time) string {
	duration := sellTime.Sub(buyTime)
	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh%dm", int(duration.Hours()), int(duration.Minutes())%60)
	}
	days := int(duration.Hours() / 24)
	hours := int(duration.Hours()) % 24
	return fmt.Sprintf("%dd%dh", days, hours)
}
