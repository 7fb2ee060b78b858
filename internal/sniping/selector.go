// internal/sniping/selector.go
package sniping

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpbot/internal/domain"
)

// CandidateSource lists tokens currently promoted by the market.
type CandidateSource interface {
	ListCandidates(ctx context.Context) ([]domain.TokenSummary, error)
}

// Criteria filters and caps the candidate list.
type Criteria struct {
	MinMarketCap   float64
	MaxCandidates  int
	RequireSocials bool
}

// Selector picks the tokens the acquisition loop should consider buying.
type Selector struct {
	source   CandidateSource
	criteria Criteria
	logger   *zap.Logger
}

// NewSelector creates a selector reading from source.
func NewSelector(source CandidateSource, criteria Criteria, logger *zap.Logger) *Selector {
	return &Selector{
		source:   source,
		criteria: criteria,
		logger:   logger.Named("selector"),
	}
}

// Next fetches candidates and selects from them. A provider failure is logged
// and yields an empty list.
func (s *Selector) Next(ctx context.Context) []domain.TokenSummary {
	candidates, err := s.source.ListCandidates(ctx)
	if err != nil {
		s.logger.Warn("Failed to list candidates", zap.Error(err))
		return nil
	}
	selected := Select(candidates, s.criteria)
	s.logger.Debug("Candidates selected",
		zap.Int("listed", len(candidates)),
		zap.Int("selected", len(selected)))
	return selected
}

// Select keeps tokens at or above the market cap floor (and with social links
// when required), orders them by ascending value keeping input order for
// ties, and truncates to MaxCandidates. The input is not modified.
func Select(candidates []domain.TokenSummary, c Criteria) []domain.TokenSummary {
	out := make([]domain.TokenSummary, 0, len(candidates))
	for _, t := range candidates {
		if t.TokenID == "" || t.Value < c.MinMarketCap {
			continue
		}
		if c.RequireSocials && !t.HasSocials() {
			continue
		}
		out = append(out, t)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Value < out[j].Value })

	if c.MaxCandidates >= 0 && len(out) > c.MaxCandidates {
		out = out[:c.MaxCandidates]
	}
	return out
}
