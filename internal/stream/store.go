// Package stream implements C4, the streaming fusion layer: two per-category
// WebSocket connections feeding a single null-preserving InstantTicker store,
// plus the dynamic subscription path turbo uses to arm a symbol fast.
package stream

import (
	"context"
	"sync"
	"time"

	"market_maker/internal/core"
)

// FusionStore is the single mutex-guarded map of per-symbol InstantTicker
// state shared by both category connections. Reads return a defensive
// copy; writes merge in place under the null-preserving rule.
type FusionStore struct {
	mu      sync.Mutex
	tickers map[string]*core.InstantTicker

	subMu       sync.RWMutex
	subscribers []core.TickerUpdateSubscriber

	ttl time.Duration
	now func() time.Time
}

// NewFusionStore builds an empty store. ttl <= 0 disables staleness checks
// and purging entirely.
func NewFusionStore(ttl time.Duration) *FusionStore {
	return &FusionStore{
		tickers: make(map[string]*core.InstantTicker),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Subscribe registers a collaborator notified on every merged update (e.g.
// the volatility cache). Subscribers are invoked synchronously, outside the
// store's lock, in registration order.
func (s *FusionStore) Subscribe(sub core.TickerUpdateSubscriber) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers = append(s.subscribers, sub)
}

// Get returns a defensive copy of the current ticker for symbol, if any. A
// ticker older than the configured TTL is treated as absent and evicted,
// so a feed that's gone silent stops being served to entry pricing and the
// volatility cache.
func (s *FusionStore) Get(symbol string) (*core.InstantTicker, bool) {
	s.mu.Lock()
	t, ok := s.tickers[symbol]
	if ok && s.stale(t) {
		delete(s.tickers, symbol)
		s.mu.Unlock()
		return nil, false
	}
	cp := t.Clone()
	s.mu.Unlock()
	return cp, ok
}

func (s *FusionStore) stale(t *core.InstantTicker) bool {
	if s.ttl <= 0 {
		return false
	}
	return s.now().Sub(t.UpdatedAt) > s.ttl
}

// Purge sweeps every entry and drops tickers older than the configured
// TTL. Called periodically by the stream layer; a no-op when TTL is
// disabled.
func (s *FusionStore) Purge() int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for symbol, t := range s.tickers {
		if s.stale(t) {
			delete(s.tickers, symbol)
			removed++
		}
	}
	return removed
}

// RunPurge sweeps the store on a fixed interval until ctx is canceled.
// interval <= 0 or a disabled TTL makes this a no-op.
func (s *FusionStore) RunPurge(ctx context.Context, interval time.Duration, logger core.ILogger) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Purge(); n > 0 && logger != nil {
				logger.Debug("stream: purged stale tickers", "count", n, "ttl", s.ttl.String())
			}
		}
	}
}

// Merge applies update to the symbol's ticker under the null-preserving
// rule, creating the entry on first sight, then fans the merged snapshot
// out to subscribers.
func (s *FusionStore) Merge(update *core.InstantTicker) {
	if update == nil || update.Symbol == "" {
		return
	}

	s.mu.Lock()
	existing, ok := s.tickers[update.Symbol]
	if !ok {
		existing = &core.InstantTicker{Symbol: update.Symbol, Category: update.Category}
		s.tickers[update.Symbol] = existing
	}
	existing.MergeFrom(update)
	merged := existing.Clone()
	s.mu.Unlock()

	s.subMu.RLock()
	subs := append([]core.TickerUpdateSubscriber(nil), s.subscribers...)
	s.subMu.RUnlock()
	for _, sub := range subs {
		sub.OnTickerUpdate(merged)
	}
}

// MarkStreamData records that at least one publicTrade/orderbook message has
// arrived for symbol, creating the entry if this is the very first message
// seen for it.
func (s *FusionStore) MarkStreamData(symbol string, category core.Category) {
	s.mu.Lock()
	t, ok := s.tickers[symbol]
	if !ok {
		t = &core.InstantTicker{Symbol: symbol, Category: category}
		s.tickers[symbol] = t
	}
	t.HasStreamData = true
	t.UpdatedAt = s.now()
	s.mu.Unlock()
}
