package style

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	Cyan    = lipgloss.Color("#00E5FF") // Primary highlight
	Magenta = lipgloss.Color("#FF1B6B") // Headers
	Yellow  = lipgloss.Color("#FFB500") // Pending / warnings
	Green   = lipgloss.Color("#2AFFAA") // Positive PnL
	Red     = lipgloss.Color("#FF5555") // Negative PnL

	Base01 = lipgloss.Color("#6C7280") // Muted text
	Base2  = lipgloss.Color("#ECEFF4") // Primary text
)

// Palette groups the colors used by the status output.
type Palette struct {
	Header    lipgloss.Color
	Border    lipgloss.Color
	Text      lipgloss.Color
	TextMuted lipgloss.Color
	Profit    lipgloss.Color
	Loss      lipgloss.Color
	Pending   lipgloss.Color
}

// DefaultPalette returns the default color palette
func DefaultPalette() Palette {
	return Palette{
		Header:    Magenta,
		Border:    Base01,
		Text:      Base2,
		TextMuted: Base01,
		Profit:    Green,
		Loss:      Red,
		Pending:   Yellow,
	}
}
