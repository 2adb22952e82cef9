// Package risk provides C2's volatility cache collaborator and a PnL-based
// circuit breaker adapted to the turbo controller's risk caps.
package risk

import (
	"math"
	"sync"
	"time"

	"market_maker/internal/core"
)

type priceSample struct {
	price float64
	at    time.Time
}

// VolatilityCache implements core.IVolatilityCache: a rolling per-symbol
// window of price observations, collapsed into a realized-volatility
// fraction (stdev of log returns) on read. A symbol with no fresh samples
// reports not-present rather than zero, so C2's "unknown, not excluded"
// rule applies.
type VolatilityCache struct {
	mu         sync.RWMutex
	samples    map[string][]priceSample
	ttl        time.Duration
	windowSize int
}

// NewVolatilityCache builds a cache that keeps at most windowSize samples
// per symbol and treats a symbol's newest sample as stale once it is older
// than ttl (config's volatility_ttl_sec).
func NewVolatilityCache(ttl time.Duration, windowSize int) *VolatilityCache {
	if windowSize < 2 {
		windowSize = 2
	}
	return &VolatilityCache{
		samples:    make(map[string][]priceSample),
		ttl:        ttl,
		windowSize: windowSize,
	}
}

// Observe records a new price sample for symbol, evicting samples beyond
// windowSize. Fed by C4's ticker-update subscription (every LastPrice tick).
func (v *VolatilityCache) Observe(symbol string, price float64, at time.Time) {
	if price <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	samples := append(v.samples[symbol], priceSample{price: price, at: at})
	if len(samples) > v.windowSize {
		samples = samples[len(samples)-v.windowSize:]
	}
	v.samples[symbol] = samples
}

// OnTickerUpdate adapts VolatilityCache to core.TickerUpdateSubscriber, so
// it can subscribe directly to C4's fusion layer.
func (v *VolatilityCache) OnTickerUpdate(t *core.InstantTicker) {
	if t == nil || t.LastPrice == nil {
		return
	}
	price, _ := t.LastPrice.Float64()
	v.Observe(t.Symbol, price, t.UpdatedAt)
}

// Get returns the realized-volatility fraction (stdev of consecutive
// log-returns over the retained window) for symbol, per core.IVolatilityCache.
// ok is false when the symbol has fewer than two samples or its newest
// sample is older than ttl.
func (v *VolatilityCache) Get(symbol string) (float64, bool) {
	v.mu.RLock()
	samples := v.samples[symbol]
	v.mu.RUnlock()

	if len(samples) < 2 {
		return 0, false
	}
	if v.ttl > 0 && time.Since(samples[len(samples)-1].at) > v.ttl {
		return 0, false
	}

	returns := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1].price, samples[i].price
		if prev <= 0 || cur <= 0 {
			continue
		}
		returns = append(returns, math.Log(cur/prev))
	}
	if len(returns) == 0 {
		return 0, false
	}

	return stdev(returns), true
}

func stdev(xs []float64) float64 {
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))

	return math.Sqrt(variance)
}
