package turbo

import (
	"context"
	"sync"
	"testing"
	"time"

	"market_maker/internal/config"
	"market_maker/internal/core"
	"market_maker/internal/mock"
	"market_maker/internal/risk"
	"market_maker/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// fakeTickers is a minimal, in-memory TickerSource for deterministic tests.
type fakeTickers struct {
	mu              sync.Mutex
	tickers         map[string]*core.InstantTicker
	subscribeErr    error
	streamDataReady bool
	subscribeCalls  int
}

func newFakeTickers() *fakeTickers {
	return &fakeTickers{tickers: make(map[string]*core.InstantTicker), streamDataReady: true}
}

func (f *fakeTickers) set(symbol string, t *core.InstantTicker) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickers[symbol] = t
}

func (f *fakeTickers) Get(symbol string) (*core.InstantTicker, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickers[symbol]
	return t, ok
}

func (f *fakeTickers) SubscribeTurbo(ctx context.Context, category core.Category, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeCalls++
	return f.subscribeErr
}

func (f *fakeTickers) WaitForStreamData(ctx context.Context, symbol string, timeout time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streamDataReady
}

type fakePrecision struct{}

func (fakePrecision) GetSymbolPrecision(ctx context.Context, category core.Category, symbol string) (int, int, error) {
	return 2, 3, nil
}

func testConfig() config.Config {
	return config.Config{
		FundingMin: 0.0001,
		FundingMax: 0.01,
		Turbo: config.TurboConfig{
			Enabled:          true,
			TriggerSeconds:   120,
			EntrySeconds:     60,
			RefreshMs:        10,
			MaxParallelPairs: 2,
			CooldownS:        60,
			WSTimeoutSeconds: 1,
		},
		Positions: config.PositionsConfig{
			Leverage:        5,
			CapitalFraction: 0.1,
			PostOnly:        true,
			ExitOrderType:   "market",
			PricePolicy:     "mid",
			MinNotionalUSD:  10,
		},
	}
}

func ptrDecimal(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func ptrTime(t time.Time) *time.Time { return &t }

func testLogger(t *testing.T) core.ILogger {
	t.Helper()
	l, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)
	return l
}

func newTestController(t *testing.T, cfg config.Config, tickers *fakeTickers, orders core.IOrderClient) *Controller {
	t.Helper()
	circuit := risk.NewCircuitBreaker(risk.CircuitConfig{})
	c := NewController(cfg, tickers, fakePrecision{}, orders, circuit, nil, nil, testLogger(t), nil)
	c.now = func() time.Time { return time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestController_CheckCandidates_SkipsOutsideTriggerWindow(t *testing.T) {
	cfg := testConfig()
	tickers := newFakeTickers()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	tickers.set("BTCUSDT", &core.InstantTicker{
		Symbol: "BTCUSDT", NextFundingTime: ptrTime(now.Add(1 * time.Hour)),
		BestBid: ptrDecimal("100"), BestAsk: ptrDecimal("100.1"), LastPrice: ptrDecimal("100"),
		FundingRate: ptrDecimal("0.001"), Turnover24h: ptrDecimal("5000000"),
	})

	orders := mock.NewOrderClient("x", dec("10000"))
	c := newTestController(t, cfg, tickers, orders)
	c.now = func() time.Time { return now }

	active := core.ActiveSet{Candidates: []core.Candidate{
		{Symbol: "BTCUSDT", Category: core.CategoryLinear, FundingRate: dec("0.001"), Turnover24h: dec("5000000")},
	}}
	c.CheckCandidates(context.Background(), active)

	require.False(t, c.IsActive("BTCUSDT"))
	c.Shutdown()
}

func TestController_CheckCandidates_ActivatesInsideTriggerWindow(t *testing.T) {
	cfg := testConfig()
	tickers := newFakeTickers()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	tickers.set("BTCUSDT", &core.InstantTicker{
		Symbol: "BTCUSDT", NextFundingTime: ptrTime(now.Add(90 * time.Second)),
		BestBid: ptrDecimal("100"), BestAsk: ptrDecimal("100.1"), LastPrice: ptrDecimal("100"),
		FundingRate: ptrDecimal("0.001"), Turnover24h: ptrDecimal("5000000"),
	})

	orders := mock.NewOrderClient("x", dec("10000"))
	c := newTestController(t, cfg, tickers, orders)
	c.now = func() time.Time { return now }

	active := core.ActiveSet{Candidates: []core.Candidate{
		{Symbol: "BTCUSDT", Category: core.CategoryLinear, FundingRate: dec("0.001"), Turnover24h: dec("5000000")},
	}}
	c.CheckCandidates(context.Background(), active)

	require.Eventually(t, func() bool { return c.IsActive("BTCUSDT") }, time.Second, 5*time.Millisecond)
	c.Shutdown()
}

func TestController_MaybeActivate_RespectsCooldown(t *testing.T) {
	cfg := testConfig()
	tickers := newFakeTickers()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	orders := mock.NewOrderClient("x", dec("10000"))
	c := newTestController(t, cfg, tickers, orders)
	c.now = func() time.Time { return now }
	c.cooldowns["BTCUSDT"] = now.Add(time.Minute)

	cand := core.Candidate{Symbol: "BTCUSDT", Category: core.CategoryLinear}
	c.maybeActivate(context.Background(), cand)

	require.False(t, c.IsActive("BTCUSDT"))
	require.Equal(t, 0, tickers.subscribeCalls)
	c.Shutdown()
}

func TestController_Activate_RejectsOverCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.Turbo.MaxParallelPairs = 1
	tickers := newFakeTickers()
	orders := mock.NewOrderClient("x", dec("10000"))
	c := newTestController(t, cfg, tickers, orders)

	// Fill the pool's one worker slot and its one queue slot directly, so
	// the activation below has nowhere to go and is rejected as a skip.
	release := make(chan struct{})
	defer close(release)
	for i := 0; i < 2; i++ {
		require.NoError(t, c.pool.Submit(func() {
			<-release
		}))
	}

	c.activate(context.Background(), core.Candidate{Symbol: "BTCUSDT", Category: core.CategoryLinear})
	require.False(t, c.IsActive("BTCUSDT"))
}

func TestController_Shutdown_IsIdempotentAndNoSelfJoin(t *testing.T) {
	cfg := testConfig()
	tickers := newFakeTickers()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	tickers.set("BTCUSDT", &core.InstantTicker{
		Symbol: "BTCUSDT", NextFundingTime: ptrTime(now.Add(90 * time.Second)),
		BestBid: ptrDecimal("100"), BestAsk: ptrDecimal("100.1"), LastPrice: ptrDecimal("100"),
		FundingRate: ptrDecimal("0.001"), Turnover24h: ptrDecimal("5000000"),
	})
	orders := mock.NewOrderClient("x", dec("10000"))
	c := newTestController(t, cfg, tickers, orders)
	c.now = func() time.Time { return now }

	active := core.ActiveSet{Candidates: []core.Candidate{
		{Symbol: "BTCUSDT", Category: core.CategoryLinear, FundingRate: dec("0.001"), Turnover24h: dec("5000000")},
	}}
	c.CheckCandidates(context.Background(), active)
	require.Eventually(t, func() bool { return c.IsActive("BTCUSDT") }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		c.Shutdown()
		c.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return")
	}
}
