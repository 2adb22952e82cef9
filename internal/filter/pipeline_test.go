package filter

import (
	"context"
	"testing"
	"time"

	"market_maker/internal/config"
	"market_maker/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVolatilityCache struct {
	data map[string]float64
}

func (f *fakeVolatilityCache) Get(symbol string) (float64, bool) {
	v, ok := f.data[symbol]
	return v, ok
}

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.FundingMin = 0.0001
	cfg.FundingMax = 1
	cfg.VolumeMinMillions = 1
	cfg.SpreadMax = 0.01
	cfg.VolatilityMax = 1
	cfg.FundingTimeMinMinutes = 0
	cfg.FundingTimeMaxMinutes = 0
	cfg.Limite = 100
	cfg.Scoring.TopN = 10
	return cfg
}

func TestPipeline_UniverseJoinDropsSymbolsMissingFundingData(t *testing.T) {
	p := NewPipeline(testConfig(), nil, nil, nil)
	universe := map[string]core.Category{"BTCUSDT": core.CategoryLinear, "NOFUNDING": core.CategoryLinear}
	fundingMap := map[string]core.FundingSnapshot{
		"BTCUSDT": {Symbol: "BTCUSDT", FundingRate: decimal.NewFromFloat(0.001), Turnover24h: decimal.NewFromInt(50_000_000)},
	}

	out, stages := p.Run(context.Background(), universe, fundingMap, nil)
	require.Len(t, out, 1)
	assert.Equal(t, "BTCUSDT", out[0].Symbol)
	assert.Equal(t, "universe_join", stages[0].Stage)
}

func TestPipeline_DropsBelowVolumeFloor(t *testing.T) {
	p := NewPipeline(testConfig(), nil, nil, nil)
	universe := map[string]core.Category{"LOWVOL": core.CategoryLinear}
	fundingMap := map[string]core.FundingSnapshot{
		"LOWVOL": {Symbol: "LOWVOL", FundingRate: decimal.NewFromFloat(0.001), Turnover24h: decimal.NewFromInt(100)},
	}

	out, _ := p.Run(context.Background(), universe, fundingMap, nil)
	assert.Empty(t, out)
}

func TestPipeline_DropsAboveSpreadMax(t *testing.T) {
	p := NewPipeline(testConfig(), nil, nil, nil)
	universe := map[string]core.Category{"WIDESPREAD": core.CategoryLinear}
	fundingMap := map[string]core.FundingSnapshot{
		"WIDESPREAD": {Symbol: "WIDESPREAD", FundingRate: decimal.NewFromFloat(0.001), Turnover24h: decimal.NewFromInt(50_000_000)},
	}
	spreads := map[string]decimal.Decimal{"WIDESPREAD": decimal.NewFromFloat(0.05)}

	out, _ := p.Run(context.Background(), universe, fundingMap, spreads)
	assert.Empty(t, out)
}

func TestPipeline_VolatilityOutsideBoundsDropped(t *testing.T) {
	cfg := testConfig()
	cfg.VolatilityMax = 0.1
	volatile := &fakeVolatilityCache{data: map[string]float64{"TOOVOLATILE": 0.5}}
	p := NewPipeline(cfg, volatile, nil, nil)

	universe := map[string]core.Category{"TOOVOLATILE": core.CategoryLinear}
	fundingMap := map[string]core.FundingSnapshot{
		"TOOVOLATILE": {Symbol: "TOOVOLATILE", FundingRate: decimal.NewFromFloat(0.001), Turnover24h: decimal.NewFromInt(50_000_000)},
	}
	spreads := map[string]decimal.Decimal{"TOOVOLATILE": decimal.NewFromFloat(0.001)}

	out, _ := p.Run(context.Background(), universe, fundingMap, spreads)
	assert.Empty(t, out)
}

func TestPipeline_UnknownVolatilityRemainsEligible(t *testing.T) {
	cfg := testConfig()
	cfg.VolatilityMax = 0.1
	volatile := &fakeVolatilityCache{data: map[string]float64{}}
	p := NewPipeline(cfg, volatile, nil, nil)

	universe := map[string]core.Category{"NOCACHE": core.CategoryLinear}
	fundingMap := map[string]core.FundingSnapshot{
		"NOCACHE": {Symbol: "NOCACHE", FundingRate: decimal.NewFromFloat(0.001), Turnover24h: decimal.NewFromInt(50_000_000)},
	}
	spreads := map[string]decimal.Decimal{"NOCACHE": decimal.NewFromFloat(0.001)}

	out, _ := p.Run(context.Background(), universe, fundingMap, spreads)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].VolatilityFraction)
}

func TestPipeline_RanksDescendingAndTruncatesToTopN(t *testing.T) {
	cfg := testConfig()
	cfg.Scoring.TopN = 1
	cfg.Scoring.WeightFunding = 1.0
	p := NewPipeline(cfg, nil, nil, nil)

	universe := map[string]core.Category{"LOW": core.CategoryLinear, "HIGH": core.CategoryLinear}
	fundingMap := map[string]core.FundingSnapshot{
		"LOW":  {Symbol: "LOW", FundingRate: decimal.NewFromFloat(0.0005), Turnover24h: decimal.NewFromInt(50_000_000)},
		"HIGH": {Symbol: "HIGH", FundingRate: decimal.NewFromFloat(0.02), Turnover24h: decimal.NewFromInt(50_000_000)},
	}
	spreads := map[string]decimal.Decimal{
		"LOW":  decimal.NewFromFloat(0.001),
		"HIGH": decimal.NewFromFloat(0.001),
	}

	out, _ := p.Run(context.Background(), universe, fundingMap, spreads)
	require.Len(t, out, 1)
	assert.Equal(t, "HIGH", out[0].Symbol)
	require.NotNil(t, out[0].Score)
}

func TestPipeline_TimeWindowExcludesOutOfRangeFunding(t *testing.T) {
	cfg := testConfig()
	cfg.FundingTimeMinMinutes = 60
	cfg.FundingTimeMaxMinutes = 120
	p := NewPipeline(cfg, nil, nil, nil)

	now := time.Now().UTC()
	universe := map[string]core.Category{"SOON": core.CategoryLinear, "INWINDOW": core.CategoryLinear}
	fundingMap := map[string]core.FundingSnapshot{
		"SOON":     {Symbol: "SOON", FundingRate: decimal.NewFromFloat(0.001), Turnover24h: decimal.NewFromInt(50_000_000), NextFundingTime: now.Add(5 * time.Minute)},
		"INWINDOW": {Symbol: "INWINDOW", FundingRate: decimal.NewFromFloat(0.001), Turnover24h: decimal.NewFromInt(50_000_000), NextFundingTime: now.Add(90 * time.Minute)},
	}
	spreads := map[string]decimal.Decimal{
		"SOON":     decimal.NewFromFloat(0.001),
		"INWINDOW": decimal.NewFromFloat(0.001),
	}

	out, _ := p.Run(context.Background(), universe, fundingMap, spreads)
	require.Len(t, out, 1)
	assert.Equal(t, "INWINDOW", out[0].Symbol)
}
