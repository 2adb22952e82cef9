package risk

import (
	"testing"
	"time"

	"market_maker/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolatilityCache_UnknownSymbolNotPresent(t *testing.T) {
	v := NewVolatilityCache(time.Minute, 20)
	_, ok := v.Get("BTCUSDT")
	assert.False(t, ok)
}

func TestVolatilityCache_SingleSampleNotEnough(t *testing.T) {
	v := NewVolatilityCache(time.Minute, 20)
	v.Observe("BTCUSDT", 100, time.Now())
	_, ok := v.Get("BTCUSDT")
	assert.False(t, ok)
}

func TestVolatilityCache_StablePriceLowVolatility(t *testing.T) {
	v := NewVolatilityCache(time.Minute, 20)
	now := time.Now()
	for i := 0; i < 10; i++ {
		v.Observe("BTCUSDT", 100, now.Add(time.Duration(i)*time.Second))
	}
	vol, ok := v.Get("BTCUSDT")
	require.True(t, ok)
	assert.InDelta(t, 0, vol, 1e-9)
}

func TestVolatilityCache_VolatilePriceHigherThanStable(t *testing.T) {
	v := NewVolatilityCache(time.Minute, 20)
	now := time.Now()
	stable := NewVolatilityCache(time.Minute, 20)

	prices := []float64{100, 110, 95, 120, 90, 115}
	for i, p := range prices {
		v.Observe("VOLATILE", p, now.Add(time.Duration(i)*time.Second))
		stable.Observe("STABLE", 100, now.Add(time.Duration(i)*time.Second))
	}

	volatileVol, ok := v.Get("VOLATILE")
	require.True(t, ok)
	stableVol, ok := stable.Get("STABLE")
	require.True(t, ok)

	assert.Greater(t, volatileVol, stableVol)
}

func TestVolatilityCache_StaleSampleNotPresent(t *testing.T) {
	v := NewVolatilityCache(10*time.Millisecond, 20)
	old := time.Now().Add(-time.Hour)
	v.Observe("BTCUSDT", 100, old)
	v.Observe("BTCUSDT", 101, old.Add(time.Second))

	_, ok := v.Get("BTCUSDT")
	assert.False(t, ok, "samples older than ttl must not be reported as present")
}

func TestVolatilityCache_WindowEvictsOldSamples(t *testing.T) {
	v := NewVolatilityCache(time.Hour, 3)
	now := time.Now()
	for i := 0; i < 10; i++ {
		v.Observe("BTCUSDT", float64(100+i), now.Add(time.Duration(i)*time.Second))
	}

	v.mu.RLock()
	n := len(v.samples["BTCUSDT"])
	v.mu.RUnlock()
	assert.Equal(t, 3, n)
}

func TestVolatilityCache_OnTickerUpdateIgnoresMissingLastPrice(t *testing.T) {
	v := NewVolatilityCache(time.Minute, 20)
	v.OnTickerUpdate(&core.InstantTicker{Symbol: "BTCUSDT"})
	_, ok := v.Get("BTCUSDT")
	assert.False(t, ok)
}

func TestVolatilityCache_OnTickerUpdateRecordsLastPrice(t *testing.T) {
	v := NewVolatilityCache(time.Minute, 20)
	p1 := decimal.NewFromFloat(100)
	p2 := decimal.NewFromFloat(105)
	now := time.Now()
	v.OnTickerUpdate(&core.InstantTicker{Symbol: "BTCUSDT", LastPrice: &p1, UpdatedAt: now})
	v.OnTickerUpdate(&core.InstantTicker{Symbol: "BTCUSDT", LastPrice: &p2, UpdatedAt: now.Add(time.Second)})

	_, ok := v.Get("BTCUSDT")
	assert.True(t, ok)
}
