package filter

import (
	"math"

	"market_maker/internal/config"
	"market_maker/internal/core"
)

// ComputeScore returns the composite ranking score:
//
//	score = weight_funding*funding + weight_volume*ln(max(volume,1))
//	        - weight_spread*spread - weight_volatility*volatility
//
// A missing spread or volatility (nil pointer) contributes a zero penalty
// rather than excluding the candidate — exclusion is the filter stages'
// job, not the scorer's.
func ComputeScore(weights config.ScoringConfig, c core.Candidate) float64 {
	funding, _ := c.FundingRate.Float64()
	volume, _ := c.Turnover24h.Float64()
	logVolume := math.Log(math.Max(volume, 1.0))

	var spread, volatility float64
	if c.SpreadFraction != nil {
		spread, _ = c.SpreadFraction.Float64()
	}
	if c.VolatilityFraction != nil {
		volatility = *c.VolatilityFraction
	}

	return weights.WeightFunding*funding +
		weights.WeightVolume*logVolume -
		weights.WeightSpread*spread -
		weights.WeightVolatility*volatility
}
