package stream

import (
	"testing"
	"time"

	"market_maker/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSubscriber struct {
	updates []*core.InstantTicker
}

func (r *recordingSubscriber) OnTickerUpdate(t *core.InstantTicker) {
	r.updates = append(r.updates, t)
}

func TestFusionStore_MergePreservesNullFields(t *testing.T) {
	s := NewFusionStore(0)

	bid := decimal.NewFromFloat(100)
	s.Merge(&core.InstantTicker{Symbol: "BTCUSDT", Category: core.CategoryLinear, BestBid: &bid})

	last := decimal.NewFromFloat(101)
	s.Merge(&core.InstantTicker{Symbol: "BTCUSDT", LastPrice: &last})

	ticker, ok := s.Get("BTCUSDT")
	require.True(t, ok)
	require.NotNil(t, ticker.BestBid)
	assert.True(t, ticker.BestBid.Equal(bid), "second merge must not clear BestBid")
	require.NotNil(t, ticker.LastPrice)
	assert.True(t, ticker.LastPrice.Equal(last))
}

func TestFusionStore_MarkStreamDataCreatesEntryOnFirstSight(t *testing.T) {
	s := NewFusionStore(0)
	s.MarkStreamData("ETHUSDT", core.CategoryLinear)

	ticker, ok := s.Get("ETHUSDT")
	require.True(t, ok)
	assert.True(t, ticker.HasStreamData)
}

func TestFusionStore_NotifiesSubscribersOnMerge(t *testing.T) {
	s := NewFusionStore(0)
	sub := &recordingSubscriber{}
	s.Subscribe(sub)

	last := decimal.NewFromFloat(50)
	s.Merge(&core.InstantTicker{Symbol: "BTCUSDT", LastPrice: &last, UpdatedAt: time.Now()})

	require.Len(t, sub.updates, 1)
	assert.Equal(t, "BTCUSDT", sub.updates[0].Symbol)
}

func TestFusionStore_GetEvictsTickerOlderThanTTL(t *testing.T) {
	s := NewFusionStore(5 * time.Second)
	now := time.Now()
	s.now = func() time.Time { return now }

	last := decimal.NewFromFloat(10)
	s.Merge(&core.InstantTicker{Symbol: "BTCUSDT", LastPrice: &last})

	s.now = func() time.Time { return now.Add(10 * time.Second) }
	_, ok := s.Get("BTCUSDT")
	assert.False(t, ok, "ticker older than TTL must be evicted, not served stale")

	s.mu.Lock()
	_, stillPresent := s.tickers["BTCUSDT"]
	s.mu.Unlock()
	assert.False(t, stillPresent)
}

func TestFusionStore_PurgeSweepsStaleEntries(t *testing.T) {
	s := NewFusionStore(5 * time.Second)
	now := time.Now()
	s.now = func() time.Time { return now }

	last := decimal.NewFromFloat(10)
	s.Merge(&core.InstantTicker{Symbol: "BTCUSDT", LastPrice: &last})
	s.Merge(&core.InstantTicker{Symbol: "ETHUSDT", LastPrice: &last})

	s.now = func() time.Time { return now.Add(10 * time.Second) }
	removed := s.Purge()
	assert.Equal(t, 2, removed)
}

func TestFusionStore_GetReturnsDistinctInstancePerCall(t *testing.T) {
	s := NewFusionStore(0)
	last := decimal.NewFromFloat(10)
	s.Merge(&core.InstantTicker{Symbol: "BTCUSDT", LastPrice: &last})

	copy1, ok := s.Get("BTCUSDT")
	require.True(t, ok)
	copy2, ok := s.Get("BTCUSDT")
	require.True(t, ok)

	assert.NotSame(t, copy1, copy2, "each Get call must return its own InstantTicker instance")
	assert.True(t, copy1.LastPrice.Equal(*copy2.LastPrice))
}
