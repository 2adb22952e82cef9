package filter

import (
	"context"
	"sort"
	"time"

	"market_maker/internal/config"
	"market_maker/internal/core"
	"market_maker/pkg/telemetry"

	"github.com/shopspring/decimal"
)

// StageResult is returned by Run alongside the final ranked candidates, one
// entry per pipeline stage, for callers that want the counts without going
// through the metrics sink.
type StageResult struct {
	Stage    string
	Kept     int
	Rejected int
}

// Pipeline runs the five ordered filter stages. It holds no
// mutable state of its own; Run is safe for concurrent use.
type Pipeline struct {
	cfg      config.Config
	volatile core.IVolatilityCache
	metrics  *telemetry.MetricsHolder
	logger   core.ILogger
	now      func() time.Time
}

// NewPipeline builds a Pipeline. volatile may be nil, in which case the
// volatility stage passes every candidate through unfiltered. logger may be
// nil, in which case stage reporting is metrics-only.
func NewPipeline(cfg config.Config, volatile core.IVolatilityCache, metrics *telemetry.MetricsHolder, logger core.ILogger) *Pipeline {
	return &Pipeline{cfg: cfg, volatile: volatile, metrics: metrics, logger: logger, now: time.Now}
}

// Run executes all five stages end-to-end, for callers (tests, single-shot
// scripts) that already have spreads in hand. Watchlist orchestration
// instead calls RunPreSpread then RunPostSpread, since the
// spread fetch in between is a network call that depends on stage 1-2's
// survivors.
func (p *Pipeline) Run(
	ctx context.Context,
	universe map[string]core.Category,
	fundingMap map[string]core.FundingSnapshot,
	spreads map[string]decimal.Decimal,
) ([]core.Candidate, []StageResult) {
	afterStage2, stages1 := p.RunPreSpread(ctx, universe, fundingMap)
	ranked, stages2 := p.RunPostSpread(ctx, afterStage2, spreads)
	return ranked, append(stages1, stages2...)
}

// RunPreSpread executes stages 1-2 (universe join, funding/volume/time
// window), used before the caller fetches spreads for the survivors only.
func (p *Pipeline) RunPreSpread(
	ctx context.Context,
	universe map[string]core.Category,
	fundingMap map[string]core.FundingSnapshot,
) ([]core.Candidate, []StageResult) {
	var stages []StageResult

	joined := p.stageUniverseJoin(universe, fundingMap)
	rejectedJoin := len(universe) - len(joined)
	stages = append(stages, StageResult{"universe_join", len(joined), rejectedJoin})
	p.report(ctx, "universe_join", len(joined), rejectedJoin)

	afterFunding := p.stageFundingVolumeTime(joined, fundingMap)
	stages = append(stages, StageResult{"funding_volume_time", len(afterFunding), len(joined) - len(afterFunding)})
	p.report(ctx, "funding_volume_time", len(afterFunding), len(joined)-len(afterFunding))

	return afterFunding, stages
}

// RunPostSpread executes stages 3-5 (spread, volatility, ranking) against
// the spreads the orchestrator fetched for RunPreSpread's survivors.
func (p *Pipeline) RunPostSpread(
	ctx context.Context,
	afterStage2 []core.Candidate,
	spreads map[string]decimal.Decimal,
) ([]core.Candidate, []StageResult) {
	var stages []StageResult

	afterSpread := p.stageSpread(afterStage2, spreads)
	stages = append(stages, StageResult{"spread", len(afterSpread), len(afterStage2) - len(afterSpread)})
	p.report(ctx, "spread", len(afterSpread), len(afterStage2)-len(afterSpread))

	afterVolatility := p.stageVolatility(afterSpread)
	stages = append(stages, StageResult{"volatility", len(afterVolatility), len(afterSpread) - len(afterVolatility)})
	p.report(ctx, "volatility", len(afterVolatility), len(afterSpread)-len(afterVolatility))

	ranked := p.stageRank(afterVolatility)
	stages = append(stages, StageResult{"ranking", len(ranked), len(afterVolatility) - len(ranked)})
	p.report(ctx, "ranking", len(ranked), len(afterVolatility)-len(ranked))

	return ranked, stages
}

func (p *Pipeline) report(ctx context.Context, stage string, kept, rejected int) {
	if p.metrics != nil {
		p.metrics.RecordFilterStage(ctx, stage, kept, rejected)
	}
	if p.logger != nil {
		p.logger.Info("[Filter]", "stage", stage, "kept", kept, "rejected", rejected)
	}
}

// stageUniverseJoin retains symbols present both in the perpetual universe
// and the funding map.
func (p *Pipeline) stageUniverseJoin(universe map[string]core.Category, fundingMap map[string]core.FundingSnapshot) []core.Candidate {
	out := make([]core.Candidate, 0, len(fundingMap))
	for symbol, cat := range universe {
		snap, ok := fundingMap[symbol]
		if !ok {
			continue
		}
		out = append(out, core.Candidate{
			Symbol:      symbol,
			Category:    cat,
			FundingRate: snap.FundingRate,
			Turnover24h: snap.Turnover24h,
		})
	}
	return out
}

// stageFundingVolumeTime applies the funding/volume/time-window bounds,
// then sorts by |fundingRate| descending and truncates to Limite. A zero bound is treated as "not set".
func (p *Pipeline) stageFundingVolumeTime(in []core.Candidate, fundingMap map[string]core.FundingSnapshot) []core.Candidate {
	now := p.now()
	volumeMin := effectiveVolumeMin(p.cfg)

	out := make([]core.Candidate, 0, len(in))
	for _, c := range in {
		absFunding := c.FundingRate.Abs().InexactFloat64()
		if p.cfg.FundingMin > 0 && absFunding < p.cfg.FundingMin {
			continue
		}
		if p.cfg.FundingMax > 0 && absFunding > p.cfg.FundingMax {
			continue
		}
		if volumeMin > 0 && c.Turnover24h.InexactFloat64() < volumeMin {
			continue
		}

		hasWindow := p.cfg.FundingTimeMinMinutes > 0 || p.cfg.FundingTimeMaxMinutes > 0

		var nextFunding interface{}
		if snap, ok := fundingMap[c.Symbol]; ok && !snap.NextFundingTime.IsZero() {
			nextFunding = snap.NextFundingTime
		}
		secs, ok := FundingTimeRemainingSeconds(nextFunding, now)
		if hasWindow {
			if !ok {
				continue
			}
			minutes := secs / 60.0
			if p.cfg.FundingTimeMinMinutes > 0 && minutes < p.cfg.FundingTimeMinMinutes {
				continue
			}
			if p.cfg.FundingTimeMaxMinutes > 0 && minutes > p.cfg.FundingTimeMaxMinutes {
				continue
			}
		}

		if ok {
			c.TimeToFundingSeconds = secs
			c.TimeToFundingFormatted = FormatFundingTimeRemaining(secs)
		} else {
			c.TimeToFundingFormatted = "-"
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FundingRate.Abs().GreaterThan(out[j].FundingRate.Abs())
	})

	if p.cfg.Limite > 0 && len(out) > p.cfg.Limite {
		out = out[:p.cfg.Limite]
	}
	return out
}

// effectiveVolumeMin prefers volume_min_millions over the legacy volume_min
// field, matching the original fetcher's precedence rule.
func effectiveVolumeMin(cfg config.Config) float64 {
	if cfg.VolumeMinMillions > 0 {
		return cfg.VolumeMinMillions * 1_000_000
	}
	return cfg.VolumeMin
}

// stageSpread drops candidates whose spread fraction exceeds SpreadMax.
// Candidates missing from spreads pass through with a nil SpreadFraction
// whether or not a bound is configured ("unknown, not excluded").
func (p *Pipeline) stageSpread(in []core.Candidate, spreads map[string]decimal.Decimal) []core.Candidate {
	out := make([]core.Candidate, 0, len(in))
	for _, c := range in {
		spread, ok := spreads[c.Symbol]
		if p.cfg.SpreadMax <= 0 {
			if ok {
				s := spread
				c.SpreadFraction = &s
			}
			out = append(out, c)
			continue
		}
		if !ok {
			out = append(out, c)
			continue
		}
		if spread.InexactFloat64() > p.cfg.SpreadMax {
			continue
		}
		s := spread
		c.SpreadFraction = &s
		out = append(out, c)
	}
	return out
}

// stageVolatility consults the volatility cache and drops candidates
// outside [VolatilityMin, VolatilityMax]. A candidate
// with no cached volatility remains eligible, per "unknown, not excluded".
func (p *Pipeline) stageVolatility(in []core.Candidate) []core.Candidate {
	if p.volatile == nil {
		return in
	}
	out := make([]core.Candidate, 0, len(in))
	for _, c := range in {
		vol, ok := p.volatile.Get(c.Symbol)
		if !ok {
			out = append(out, c)
			continue
		}
		if p.cfg.VolatilityMin > 0 && vol < p.cfg.VolatilityMin {
			continue
		}
		if p.cfg.VolatilityMax > 0 && vol > p.cfg.VolatilityMax {
			continue
		}
		v := vol
		c.VolatilityFraction = &v
		out = append(out, c)
	}
	return out
}

// stageRank computes the composite score for every remaining candidate,
// sorts descending, and truncates to TopN. Ties break
// by |fundingRate| descending, then symbol lexicographic order.
func (p *Pipeline) stageRank(in []core.Candidate) []core.Candidate {
	out := make([]core.Candidate, len(in))
	copy(out, in)
	for i := range out {
		score := ComputeScore(p.cfg.Scoring, out[i])
		out[i].Score = &score
	}

	sort.SliceStable(out, func(i, j int) bool {
		si, sj := *out[i].Score, *out[j].Score
		if si != sj {
			return si > sj
		}
		fi, fj := out[i].FundingRate.Abs(), out[j].FundingRate.Abs()
		if !fi.Equal(fj) {
			return fi.GreaterThan(fj)
		}
		return out[i].Symbol < out[j].Symbol
	})

	if p.cfg.Scoring.TopN > 0 && len(out) > p.cfg.Scoring.TopN {
		out = out[:p.cfg.Scoring.TopN]
	}
	return out
}
