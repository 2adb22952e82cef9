package watchlist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"market_maker/internal/config"
	"market_maker/internal/core"
	"market_maker/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMarket struct {
	mu         sync.Mutex
	universe   map[core.Category]map[string]core.Category
	fundingMap map[core.Category]map[string]core.FundingSnapshot
	spreads    map[core.Category]map[string]decimal.Decimal
	failErr    error
}

func (f *fakeMarket) FetchUniverse(ctx context.Context, cat core.Category) (map[string]core.Category, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	return f.universe[cat], nil
}

func (f *fakeMarket) FetchFundingMap(ctx context.Context, cat core.Category) (map[string]core.FundingSnapshot, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	return f.fundingMap[cat], nil
}

func (f *fakeMarket) FetchSpreads(ctx context.Context, cat core.Category, symbols []string) (map[string]decimal.Decimal, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	return f.spreads[cat], nil
}

func (f *fakeMarket) FetchInstrumentTicker(ctx context.Context, cat core.Category, symbol string) (*core.InstantTicker, error) {
	return nil, nil
}

func (f *fakeMarket) GetSymbolPrecision(ctx context.Context, cat core.Category, symbol string) (int, int, error) {
	return 2, 3, nil
}

type fakeSubscriber struct {
	mu      sync.Mutex
	calls   int
	linear  []string
	inverse []string
}

func (s *fakeSubscriber) OnActiveSetChange(linear, inverse []string, fundingData core.OriginalFundingMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.linear = linear
	s.inverse = inverse
}

func testCfg() config.Config {
	cfg := config.DefaultConfig()
	cfg.Categorie = "linear"
	cfg.FundingMin = 0.0001
	cfg.FundingMax = 1
	cfg.VolumeMinMillions = 1
	cfg.SpreadMax = 0.01
	cfg.VolatilityMax = 1
	cfg.FundingTimeMinMinutes = 0
	cfg.FundingTimeMaxMinutes = 0
	cfg.Limite = 100
	cfg.Scoring.TopN = 10
	cfg.RefreshWatchlistInterval = 0
	return cfg
}

func newLogger(t *testing.T) core.ILogger {
	t.Helper()
	l, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)
	return l
}

func TestManager_RefreshBuildsActiveSetAndNotifiesOnFirstCycle(t *testing.T) {
	market := &fakeMarket{
		universe: map[core.Category]map[string]core.Category{
			core.CategoryLinear: {"BTCUSDT": core.CategoryLinear},
		},
		fundingMap: map[core.Category]map[string]core.FundingSnapshot{
			core.CategoryLinear: {"BTCUSDT": {Symbol: "BTCUSDT", FundingRate: decimal.NewFromFloat(0.001), Turnover24h: decimal.NewFromInt(50_000_000)}},
		},
		spreads: map[core.Category]map[string]decimal.Decimal{
			core.CategoryLinear: {"BTCUSDT": decimal.NewFromFloat(0.001)},
		},
	}
	sub := &fakeSubscriber{}

	m := NewManager(testCfg(), market, nil, newLogger(t), nil)
	m.Subscribe(sub)

	err := m.Refresh(context.Background())
	require.NoError(t, err)

	active, ok := m.ActiveSet()
	require.True(t, ok)
	require.Len(t, active.Candidates, 1)
	assert.Equal(t, "BTCUSDT", active.Candidates[0].Symbol)

	sub.mu.Lock()
	defer sub.mu.Unlock()
	assert.Equal(t, 1, sub.calls)
	assert.Equal(t, []string{"BTCUSDT"}, sub.linear)
}

func TestManager_RefreshDoesNotNotifyWhenMembershipUnchanged(t *testing.T) {
	market := &fakeMarket{
		universe: map[core.Category]map[string]core.Category{
			core.CategoryLinear: {"BTCUSDT": core.CategoryLinear},
		},
		fundingMap: map[core.Category]map[string]core.FundingSnapshot{
			core.CategoryLinear: {"BTCUSDT": {Symbol: "BTCUSDT", FundingRate: decimal.NewFromFloat(0.001), Turnover24h: decimal.NewFromInt(50_000_000)}},
		},
		spreads: map[core.Category]map[string]decimal.Decimal{
			core.CategoryLinear: {"BTCUSDT": decimal.NewFromFloat(0.001)},
		},
	}
	sub := &fakeSubscriber{}

	m := NewManager(testCfg(), market, nil, newLogger(t), nil)
	m.Subscribe(sub)

	require.NoError(t, m.Refresh(context.Background()))
	require.NoError(t, m.Refresh(context.Background()))

	sub.mu.Lock()
	defer sub.mu.Unlock()
	assert.Equal(t, 1, sub.calls, "second cycle with identical membership must not notify again")
}

func TestManager_RefreshAbortsOnRESTFailureAndKeepsPreviousActiveSet(t *testing.T) {
	market := &fakeMarket{
		universe: map[core.Category]map[string]core.Category{
			core.CategoryLinear: {"BTCUSDT": core.CategoryLinear},
		},
		fundingMap: map[core.Category]map[string]core.FundingSnapshot{
			core.CategoryLinear: {"BTCUSDT": {Symbol: "BTCUSDT", FundingRate: decimal.NewFromFloat(0.001), Turnover24h: decimal.NewFromInt(50_000_000)}},
		},
		spreads: map[core.Category]map[string]decimal.Decimal{
			core.CategoryLinear: {"BTCUSDT": decimal.NewFromFloat(0.001)},
		},
	}
	m := NewManager(testCfg(), market, nil, newLogger(t), nil)
	require.NoError(t, m.Refresh(context.Background()))

	before, _ := m.ActiveSet()

	market.failErr = errors.New("upstream unavailable")
	err := m.Refresh(context.Background())
	require.Error(t, err)

	after, _ := m.ActiveSet()
	assert.Equal(t, before, after, "previous active set must remain authoritative on failure")
}

func TestManager_RunWithZeroIntervalNeverSchedules(t *testing.T) {
	market := &fakeMarket{
		universe:   map[core.Category]map[string]core.Category{core.CategoryLinear: {}},
		fundingMap: map[core.Category]map[string]core.FundingSnapshot{core.CategoryLinear: {}},
		spreads:    map[core.Category]map[string]decimal.Decimal{core.CategoryLinear: {}},
	}
	cfg := testCfg()
	cfg.RefreshWatchlistInterval = 0
	m := NewManager(cfg, market, nil, newLogger(t), nil)

	done := make(chan struct{})
	go func() {
		m.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run with zero interval should return immediately without scheduling")
	}
}
