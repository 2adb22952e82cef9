package filter

import (
	"testing"

	"market_maker/internal/config"
	"market_maker/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestComputeScore_HigherFundingScoresHigher(t *testing.T) {
	weights := config.ScoringConfig{WeightFunding: 1.0, WeightVolume: 0.1, WeightSpread: 1.0, WeightVolatility: 0.5}

	low := core.Candidate{FundingRate: decimal.NewFromFloat(0.001), Turnover24h: decimal.NewFromInt(1_000_000)}
	high := core.Candidate{FundingRate: decimal.NewFromFloat(0.01), Turnover24h: decimal.NewFromInt(1_000_000)}

	assert.Greater(t, ComputeScore(weights, high), ComputeScore(weights, low))
}

func TestComputeScore_ZeroVolumeClampsLogToZero(t *testing.T) {
	weights := config.ScoringConfig{WeightVolume: 1.0}
	c := core.Candidate{FundingRate: decimal.Zero, Turnover24h: decimal.Zero}
	assert.Equal(t, 0.0, ComputeScore(weights, c))
}

func TestComputeScore_MissingSpreadAndVolatilityContributeNoPenalty(t *testing.T) {
	weights := config.ScoringConfig{WeightFunding: 1.0, WeightSpread: 100, WeightVolatility: 100}
	c := core.Candidate{FundingRate: decimal.NewFromFloat(0.01), Turnover24h: decimal.NewFromInt(1)}
	assert.InDelta(t, 0.01, ComputeScore(weights, c), 1e-9)
}

func TestComputeScore_SpreadAndVolatilityPenalize(t *testing.T) {
	weights := config.ScoringConfig{WeightSpread: 1.0, WeightVolatility: 1.0}
	spread := decimal.NewFromFloat(0.002)
	vol := 0.05
	c := core.Candidate{
		FundingRate:        decimal.Zero,
		Turnover24h:        decimal.Zero,
		SpreadFraction:     &spread,
		VolatilityFraction: &vol,
	}
	assert.InDelta(t, -0.052, ComputeScore(weights, c), 1e-9)
}
