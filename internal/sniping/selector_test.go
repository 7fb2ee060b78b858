package sniping

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/pumpbot/internal/domain"
)

type fakeSource struct {
	tokens []domain.TokenSummary
	err    error
}

func (f *fakeSource) ListCandidates(context.Context) ([]domain.TokenSummary, error) {
	return f.tokens, f.err
}

func tok(id string, v float64) domain.TokenSummary {
	return domain.TokenSummary{TokenID: id, Value: v, Website: "w", Telegram: "t", Twitter: "x"}
}

func ids(tokens []domain.TokenSummary) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.TokenID
	}
	return out
}

func TestSelect(t *testing.T) {
	noSocials := domain.TokenSummary{TokenID: "bare", Value: 50000}

	tests := []struct {
		name     string
		input    []domain.TokenSummary
		criteria Criteria
		want     []string
	}{
		{
			name:     "Filters floor and sorts ascending",
			input:    []domain.TokenSummary{tok("a", 90000), tok("b", 10000), tok("c", 30000), tok("d", 20000)},
			criteria: Criteria{MinMarketCap: 20000, MaxCandidates: 10},
			want:     []string{"d", "c", "a"},
		},
		{
			name:     "Truncates to max candidates",
			input:    []domain.TokenSummary{tok("a", 40000), tok("b", 30000), tok("c", 20000)},
			criteria: Criteria{MinMarketCap: 0, MaxCandidates: 2},
			want:     []string{"c", "b"},
		},
		{
			name:     "Stable for equal values",
			input:    []domain.TokenSummary{tok("x", 25000), tok("y", 25000), tok("z", 25000)},
			criteria: Criteria{MaxCandidates: 3},
			want:     []string{"x", "y", "z"},
		},
		{
			name:     "Requires socials when configured",
			input:    []domain.TokenSummary{noSocials, tok("ok", 60000)},
			criteria: Criteria{MaxCandidates: 5, RequireSocials: true},
			want:     []string{"ok"},
		},
		{
			name:     "Empty input",
			input:    nil,
			criteria: Criteria{MaxCandidates: 5},
			want:     []string{},
		},
		{
			name:     "Zero max candidates",
			input:    []domain.TokenSummary{tok("a", 1)},
			criteria: Criteria{MaxCandidates: 0},
			want:     []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Select(tt.input, tt.criteria)))
		})
	}
}

func TestSelect_DoesNotMutateInput(t *testing.T) {
	input := []domain.TokenSummary{tok("a", 3), tok("b", 1), tok("c", 2)}
	Select(input, Criteria{MaxCandidates: 3})
	assert.Equal(t, []string{"a", "b", "c"}, ids(input))
}

func TestSelector_NextSwallowsProviderError(t *testing.T) {
	s := NewSelector(&fakeSource{err: errors.New("503")}, Criteria{MaxCandidates: 3}, zaptest.NewLogger(t))
	assert.Empty(t, s.Next(context.Background()))

	s = NewSelector(&fakeSource{tokens: []domain.TokenSummary{tok("a", 5)}}, Criteria{MaxCandidates: 3}, zaptest.NewLogger(t))
	assert.Equal(t, []string{"a"}, ids(s.Next(context.Background())))
}
