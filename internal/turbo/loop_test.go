package turbo

import (
	"context"
	"testing"
	"time"

	"market_maker/internal/config"
	"market_maker/internal/core"
	"market_maker/internal/mock"
	"market_maker/internal/risk"

	"github.com/stretchr/testify/require"
)

func newLoopTestController(t *testing.T, cfg config.Config, tickers *fakeTickers, orders *mock.OrderClient) *Controller {
	t.Helper()
	circuit := risk.NewCircuitBreaker(risk.CircuitConfig{})
	return NewController(cfg, tickers, fakePrecision{}, orders, circuit, nil, nil, testLogger(t), nil)
}

func registerActive(c *Controller, symbol string, state *core.TurboState) {
	c.mu.Lock()
	c.active[symbol] = &activeSymbol{cancel: func() {}, state: state}
	c.mu.Unlock()
}

func TestTick_EntersThenFillsThenExitsAtFunding(t *testing.T) {
	cfg := testConfig()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	tickers := newFakeTickers()
	tickers.set("BTCUSDT", &core.InstantTicker{
		Symbol: "BTCUSDT", NextFundingTime: ptrTime(now.Add(30 * time.Second)),
		BestBid: ptrDecimal("100"), BestAsk: ptrDecimal("100.2"), LastPrice: ptrDecimal("100.1"),
		FundingRate: ptrDecimal("0.001"), Turnover24h: ptrDecimal("5000000"),
	})
	orders := mock.NewOrderClient("x", dec("10000"))
	c := newLoopTestController(t, cfg, tickers, orders)
	c.now = func() time.Time { return now }

	cand := core.Candidate{Symbol: "BTCUSDT", Category: core.CategoryLinear, FundingRate: dec("0.001"), Turnover24h: dec("5000000")}
	state := &core.TurboState{Symbol: "BTCUSDT", Category: core.CategoryLinear, StartedAt: now}
	registerActive(c, "BTCUSDT", state)

	require.False(t, c.tick(context.Background(), cand, state, 2, 3))
	require.True(t, state.EntrySent)
	require.NotEmpty(t, state.OrderID)
	require.Equal(t, 1, state.Metrics.Entries)

	orders.SimulateFill(state.OrderID, state.EntryQty, dec("100"))

	require.False(t, c.tick(context.Background(), cand, state, 2, 3))
	require.True(t, state.PositionOpen)

	fundingNow := now.Add(31 * time.Second)
	c.now = func() time.Time { return fundingNow }
	tickers.set("BTCUSDT", &core.InstantTicker{
		Symbol: "BTCUSDT", NextFundingTime: ptrTime(fundingNow),
		BestBid: ptrDecimal("100"), BestAsk: ptrDecimal("100.2"), LastPrice: ptrDecimal("100.3"),
		FundingRate: ptrDecimal("0.001"), Turnover24h: ptrDecimal("5000000"),
	})

	require.True(t, c.tick(context.Background(), cand, state, 2, 3))
	require.False(t, c.IsActive("BTCUSDT"))
	require.Equal(t, 1, state.Metrics.Exits)
}

func TestTick_MissTerminatesAfterTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Turbo.MissOrderTimeoutS = 5
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	tickers := newFakeTickers()
	tickers.set("BTCUSDT", &core.InstantTicker{
		Symbol: "BTCUSDT", NextFundingTime: ptrTime(now.Add(30 * time.Second)),
		BestBid: ptrDecimal("100"), BestAsk: ptrDecimal("100.2"), LastPrice: ptrDecimal("100.1"),
		FundingRate: ptrDecimal("0.001"), Turnover24h: ptrDecimal("5000000"),
	})
	orders := mock.NewOrderClient("x", dec("10000"))
	c := newLoopTestController(t, cfg, tickers, orders)
	c.now = func() time.Time { return now }

	cand := core.Candidate{Symbol: "BTCUSDT", Category: core.CategoryLinear, FundingRate: dec("0.001"), Turnover24h: dec("5000000")}
	state := &core.TurboState{Symbol: "BTCUSDT", Category: core.CategoryLinear, StartedAt: now}
	registerActive(c, "BTCUSDT", state)

	require.False(t, c.tick(context.Background(), cand, state, 2, 3))
	require.True(t, state.EntrySent)

	c.now = func() time.Time { return now.Add(10 * time.Second) }
	stopped := c.tick(context.Background(), cand, state, 2, 3)

	require.True(t, stopped)
	require.False(t, c.IsActive("BTCUSDT"))
	require.Equal(t, 1, state.Metrics.Miss)
	require.Equal(t, 1, state.Metrics.Exits)
}

func TestTick_TerminatesOnFilterBreakBeforeEntry(t *testing.T) {
	cfg := testConfig()
	cfg.FundingMin = 0.01 // above the candidate's 0.001 funding rate
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	tickers := newFakeTickers()
	tickers.set("BTCUSDT", &core.InstantTicker{
		Symbol: "BTCUSDT", NextFundingTime: ptrTime(now.Add(30 * time.Second)),
		BestBid: ptrDecimal("100"), BestAsk: ptrDecimal("100.2"), LastPrice: ptrDecimal("100.1"),
		FundingRate: ptrDecimal("0.001"), Turnover24h: ptrDecimal("5000000"),
	})
	orders := mock.NewOrderClient("x", dec("10000"))
	c := newLoopTestController(t, cfg, tickers, orders)
	c.now = func() time.Time { return now }

	cand := core.Candidate{Symbol: "BTCUSDT", Category: core.CategoryLinear, FundingRate: dec("0.001"), Turnover24h: dec("5000000")}
	state := &core.TurboState{Symbol: "BTCUSDT", Category: core.CategoryLinear, StartedAt: now}
	registerActive(c, "BTCUSDT", state)

	stopped := c.tick(context.Background(), cand, state, 2, 3)

	require.True(t, stopped)
	require.False(t, state.EntrySent)
	require.Equal(t, 1, state.Metrics.FilterBreak)
	require.NotEmpty(t, state.FilterBreakReason)
}

func TestTick_CancelsRestingOrderOnFilterBreakWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Turbo.CancelOnFilterBreak = true
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	tickers := newFakeTickers()
	tickers.set("BTCUSDT", &core.InstantTicker{
		Symbol: "BTCUSDT", NextFundingTime: ptrTime(now.Add(30 * time.Second)),
		BestBid: ptrDecimal("100"), BestAsk: ptrDecimal("100.2"), LastPrice: ptrDecimal("100.1"),
		FundingRate: ptrDecimal("0.001"), Turnover24h: ptrDecimal("5000000"),
	})
	orders := mock.NewOrderClient("x", dec("10000"))
	c := newLoopTestController(t, cfg, tickers, orders)
	c.now = func() time.Time { return now }

	cand := core.Candidate{Symbol: "BTCUSDT", Category: core.CategoryLinear, FundingRate: dec("0.001"), Turnover24h: dec("5000000")}
	state := &core.TurboState{Symbol: "BTCUSDT", Category: core.CategoryLinear, StartedAt: now}
	registerActive(c, "BTCUSDT", state)

	require.False(t, c.tick(context.Background(), cand, state, 2, 3))
	require.True(t, state.EntrySent)

	cfg.FundingMin = 0.01
	c.cfg = cfg
	tickers.set("BTCUSDT", &core.InstantTicker{
		Symbol: "BTCUSDT", NextFundingTime: ptrTime(now.Add(30 * time.Second)),
		BestBid: ptrDecimal("100"), BestAsk: ptrDecimal("100.2"), LastPrice: ptrDecimal("100.1"),
		FundingRate: ptrDecimal("0.001"), Turnover24h: ptrDecimal("5000000"),
	})

	stopped := c.tick(context.Background(), cand, state, 2, 3)
	require.True(t, stopped)

	order, err := orders.GetOrderStatus(context.Background(), "BTCUSDT", state.OrderID)
	require.NoError(t, err)
	require.Equal(t, core.OrderStatusCancelled, order.Status)
}

func TestTick_TerminatesSortieConditionsWhenFundingAlreadyPassed(t *testing.T) {
	cfg := testConfig()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	tickers := newFakeTickers()
	tickers.set("BTCUSDT", &core.InstantTicker{
		Symbol: "BTCUSDT", NextFundingTime: ptrTime(now.Add(-5 * time.Second)),
		BestBid: ptrDecimal("100"), BestAsk: ptrDecimal("100.2"), LastPrice: ptrDecimal("100.1"),
		FundingRate: ptrDecimal("0.001"), Turnover24h: ptrDecimal("5000000"),
	})
	orders := mock.NewOrderClient("x", dec("10000"))
	c := newLoopTestController(t, cfg, tickers, orders)
	c.now = func() time.Time { return now }

	cand := core.Candidate{Symbol: "BTCUSDT", Category: core.CategoryLinear, FundingRate: dec("0.001"), Turnover24h: dec("5000000")}
	state := &core.TurboState{Symbol: "BTCUSDT", Category: core.CategoryLinear, StartedAt: now}
	registerActive(c, "BTCUSDT", state)

	stopped := c.tick(context.Background(), cand, state, 2, 3)

	require.True(t, stopped)
	require.False(t, state.EntrySent)
	require.False(t, c.IsActive("BTCUSDT"))
}

func TestFilterBroken_ChecksAbsoluteFundingBounds(t *testing.T) {
	cfg := testConfig()
	c := &Controller{cfg: cfg}

	broken, ok := c.filterBroken(snapshot{fundingRate: dec("0.00001"), turnover: dec("5000000")})
	require.NotEmpty(t, broken)
	require.True(t, ok)

	_, ok = c.filterBroken(snapshot{fundingRate: dec("0.001"), turnover: dec("5000000")})
	require.False(t, ok)
}
