// internal/ui/status.go
package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/rovshanmuradov/pumpbot/internal/domain"
	"github.com/rovshanmuradov/pumpbot/internal/logger"
	"github.com/rovshanmuradov/pumpbot/internal/ui/style"
)

var headers = []string{"TOKEN", "NAME", "ORIGIN", "ENTRY", "LAST", "CHANGE", "PEAK", "STATUS"}

const (
	colChange = 5
	colPeak   = 6
	colStatus = 7
)

// RenderPositions draws the tracked positions as a table. Change and peak are
// relative to the entry; pending discovered positions show dashes.
func RenderPositions(positions []domain.Position) string {
	palette := style.DefaultPalette()
	if len(positions) == 0 {
		return lipgloss.NewStyle().Foreground(palette.TextMuted).Render("No tracked positions")
	}

	rows := make([][]string, 0, len(positions))
	for _, p := range positions {
		rows = append(rows, positionRow(p))
	}

	cell := lipgloss.NewStyle().Padding(0, 1).Foreground(palette.Text)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(palette.Border)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return cell.Foreground(palette.Header).Bold(true)
			}
			if row < 0 || row >= len(positions) {
				return cell
			}
			p := positions[row]
			switch col {
			case colChange, colPeak:
				if p.Pending() {
					return cell.Foreground(palette.TextMuted)
				}
				v := p.LastValue()
				if col == colPeak {
					v = p.PeakValue
				}
				if v >= p.EntryValue {
					return cell.Foreground(palette.Profit)
				}
				return cell.Foreground(palette.Loss)
			case colStatus:
				if p.Status != domain.StatusActive {
					return cell.Foreground(palette.Pending)
				}
			}
			return cell
		})

	return t.String()
}

func positionRow(p domain.Position) []string {
	name := p.Name
	if name == "" {
		name = "-"
	}
	origin := "bot"
	if p.Origin == domain.OriginWalletDiscovered {
		origin = "wallet"
	}
	status := string(p.Status)
	if p.Pending() {
		return []string{logger.ShortenAddress(p.TokenID), name, origin, "-", "-", "-", "-", "pending"}
	}
	last := p.LastValue()
	return []string{
		logger.ShortenAddress(p.TokenID),
		name,
		origin,
		formatUSD(p.EntryValue),
		formatUSD(last),
		formatPercent(p.PercentChange(last)),
		formatPercent(p.PercentChange(p.PeakValue)),
		status,
	}
}

// formatUSD renders a market cap as $950, $12.3K or $1.25M.
func formatUSD(v float64) string {
	switch {
	case v >= 1_000_000:
		return fmt.Sprintf("$%.2fM", v/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("$%.1fK", v/1_000)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%+.1f%%", v)
}
