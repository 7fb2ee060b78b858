package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/pumpbot/internal/domain"
)

func defaultExitConfig() ExitConfig {
	return ExitConfig{
		RapidRiseTrigger:    100,
		PriceDeclineTrigger: 10,
		ProfitTakingLevels:  []float64{400, 200, 300},
		ReversalMinGain:     50,
	}
}

// positionWithHistory builds a position as the store would after observing history.
func positionWithHistory(entry float64, history ...float64) domain.Position {
	p := domain.NewBotPosition("mint", "TEST", entry, time.Unix(0, 0))
	for _, v := range history {
		p.History = append(p.History, v)
		if v > p.PeakValue {
			p.PeakValue = v
		}
	}
	return p
}

func evaluate(t *testing.T, e *Engine, p domain.Position) domain.Decision {
	t.Helper()
	d, err := e.Evaluate(p, domain.MarketSnapshot{TokenID: p.TokenID, Value: p.LastValue()})
	require.NoError(t, err)
	return d
}

func TestEngine_Evaluate(t *testing.T) {
	tests := []struct {
		name     string
		cfg      func(*ExitConfig)
		position domain.Position
		wantRule domain.Rule
	}{
		{
			name:     "Decline from peak after rapid rise",
			position: positionWithHistory(20000, 45000, 60000, 52000),
			wantRule: domain.RulePeakDecline,
		},
		{
			name:     "Profit ladder first rung",
			position: positionWithHistory(10000, 31000),
			wantRule: domain.RuleProfitLevel,
		},
		{
			name:     "Reversal above minimum gain",
			position: positionWithHistory(10000, 16600, 17100, 16300, 16000),
			wantRule: domain.RuleReversal,
		},
		{
			name:     "Reversal below minimum gain holds",
			position: positionWithHistory(10000, 14000, 13000, 12000),
			wantRule: domain.RuleNone,
		},
		{
			name:     "Plateau is not a reversal",
			position: positionWithHistory(10000, 17000, 17000, 16000),
			wantRule: domain.RuleNone,
		},
		{
			name:     "Rapid rise without decline holds",
			position: positionWithHistory(10000, 15000, 19000),
			wantRule: domain.RuleNone,
		},
		{
			name:     "Decline without rapid rise holds",
			position: positionWithHistory(10000, 15000, 13000),
			wantRule: domain.RuleNone,
		},
		{
			name:     "Peak decline outranks profit ladder",
			position: positionWithHistory(10000, 50000, 40000),
			wantRule: domain.RulePeakDecline,
		},
		{
			name:     "Stop loss disabled by default",
			position: positionWithHistory(10000, 5000),
			wantRule: domain.RuleNone,
		},
		{
			name:     "Stop loss when enabled",
			cfg:      func(c *ExitConfig) { c.StopLossTrigger = 30 },
			position: positionWithHistory(10000, 6900),
			wantRule: domain.RuleStopLoss,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultExitConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			d := evaluate(t, NewEngine(cfg), tt.position)
			assert.Equal(t, tt.wantRule, d.Rule, d.Reason)
			assert.Equal(t, tt.wantRule != domain.RuleNone, d.ShouldSell())
		})
	}
}

func TestEngine_PeakDeclineDetails(t *testing.T) {
	d := evaluate(t, NewEngine(defaultExitConfig()), positionWithHistory(20000, 45000, 60000, 52000))

	assert.Equal(t, domain.DecisionSell, d.Action)
	assert.InDelta(t, 13.33, d.DeclineFromPeak, 0.01)
	assert.InDelta(t, 160, d.PercentChange, 0.001)
	assert.Contains(t, d.Reason, "decline-from-peak after rapid rise")
}

func TestEngine_ProfitLadderNamesLowestLevel(t *testing.T) {
	d := evaluate(t, NewEngine(defaultExitConfig()), positionWithHistory(10000, 31000))

	assert.InDelta(t, 210, d.PercentChange, 0.001)
	assert.Contains(t, d.Reason, "200%")
}

func TestEngine_InvalidEntry(t *testing.T) {
	e := NewEngine(defaultExitConfig())
	p := domain.NewDiscoveredPosition("mint", 10, time.Now())

	_, err := e.Evaluate(p, domain.MarketSnapshot{TokenID: "mint", Value: 100})
	assert.ErrorIs(t, err, domain.ErrInvalidEntry)
	assert.ErrorIs(t, ValidateEntry(p), domain.ErrInvalidEntry)
}

func TestEngine_Deterministic(t *testing.T) {
	e := NewEngine(defaultExitConfig())
	p := positionWithHistory(20000, 45000, 60000, 52000)
	snap := domain.MarketSnapshot{TokenID: p.TokenID, Value: p.LastValue()}

	first, err := e.Evaluate(p, snap)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := e.Evaluate(p, snap)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestNewEngine_DoesNotMutateLevels(t *testing.T) {
	levels := []float64{400, 200, 300}
	NewEngine(ExitConfig{ProfitTakingLevels: levels})
	assert.Equal(t, []float64{400, 200, 300}, levels)
}
