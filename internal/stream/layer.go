package stream

import (
	"context"
	"fmt"
	"time"

	"market_maker/internal/config"
	"market_maker/internal/core"
	"market_maker/pkg/telemetry"
)

const (
	mainnetLinearURL  = "wss://stream.bybit.com/v5/public/linear"
	mainnetInverseURL = "wss://stream.bybit.com/v5/public/inverse"
	testnetLinearURL  = "wss://stream-testnet.bybit.com/v5/public/linear"
	testnetInverseURL = "wss://stream-testnet.bybit.com/v5/public/inverse"

	turboSubscribeRetries   = 3
	turboSubscribeRetryWait = 2 * time.Second

	tickerPurgeInterval = 30 * time.Second
)

// Layer is C4: the two category connections plus the shared FusionStore
// they publish into.
type Layer struct {
	Store       *FusionStore
	connections map[core.Category]*Connection
	logger      core.ILogger
}

// NewLayer builds one linear and one inverse connection, each seeded with
// the symbols universe maps to that category, and wires the fused store. testnet selects the testnet public WS endpoints. tickerTTL
// <= 0 disables purging of stale fused tickers.
func NewLayer(universe map[string]core.Category, testnet bool, logger core.ILogger, metrics *telemetry.MetricsHolder, watchdogThreshold, tickerTTL time.Duration) *Layer {
	bySymbolCategory := make(map[core.Category][]string)
	for sym, cat := range universe {
		bySymbolCategory[cat] = append(bySymbolCategory[cat], sym)
	}

	store := NewFusionStore(tickerTTL)
	l := &Layer{
		Store:       store,
		connections: make(map[core.Category]*Connection),
		logger:      logger.WithField("component", "stream_layer"),
	}

	l.connections[core.CategoryLinear] = NewConnection(core.CategoryLinear, linearURL(testnet),
		bySymbolCategory[core.CategoryLinear], store, logger, metrics, watchdogThreshold)
	l.connections[core.CategoryInverse] = NewConnection(core.CategoryInverse, inverseURL(testnet),
		bySymbolCategory[core.CategoryInverse], store, logger, metrics, watchdogThreshold)

	return l
}

func linearURL(testnet bool) string {
	if testnet {
		return testnetLinearURL
	}
	return mainnetLinearURL
}

func inverseURL(testnet bool) string {
	if testnet {
		return testnetInverseURL
	}
	return mainnetInverseURL
}

// NewLayerFromConfig is a convenience constructor reading the watchdog
// threshold from cfg.DebugWSInactivityS and the ticker TTL from
// cfg.StreamTickerTTLSec.
func NewLayerFromConfig(cfg config.Config, universe map[string]core.Category, logger core.ILogger, metrics *telemetry.MetricsHolder) *Layer {
	watchdog := time.Duration(cfg.DebugWSInactivityS) * time.Second
	ttl := time.Duration(cfg.StreamTickerTTLSec) * time.Second
	return NewLayer(universe, cfg.Exchange.Testnet, logger, metrics, watchdog, ttl)
}

// Start opens both category connections and the background ticker-purge
// sweep.
func (l *Layer) Start(ctx context.Context) {
	for _, conn := range l.connections {
		conn.Start(ctx)
	}
	go l.Store.RunPurge(ctx, tickerPurgeInterval, l.logger)
}

// Stop closes both category connections.
func (l *Layer) Stop() {
	for _, conn := range l.connections {
		conn.Stop()
	}
}

// Subscribe registers sub to receive every merged ticker update across both
// categories (e.g. internal/risk's volatility cache).
func (l *Layer) Subscribe(sub core.TickerUpdateSubscriber) {
	l.Store.Subscribe(sub)
}

// Get returns the fused ticker for symbol, if any category connection has
// seen it.
func (l *Layer) Get(symbol string) (*core.InstantTicker, bool) {
	return l.Store.Get(symbol)
}

// SubscribeTurbo requests an incremental subscription for symbol on
// category's connection, making up to turboSubscribeRetries attempts with
// turboSubscribeRetryWait spacing.
func (l *Layer) SubscribeTurbo(ctx context.Context, category core.Category, symbol string) error {
	conn, ok := l.connections[category]
	if !ok {
		return fmt.Errorf("stream: no connection for category %s", category)
	}

	var lastErr error
	for attempt := 0; attempt < turboSubscribeRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(turboSubscribeRetryWait):
			}
		}
		if err := conn.SubscribeTurbo(symbol); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("stream: SubscribeTurbo(%s) failed after %d attempts: %w", symbol, turboSubscribeRetries, lastErr)
}

// WaitForStreamData blocks until symbol has received at least one
// publicTrade/orderbook message or timeout elapses.
func (l *Layer) WaitForStreamData(ctx context.Context, symbol string, timeout time.Duration) bool {
	deadline := time.After(timeout)
	poll := time.NewTicker(20 * time.Millisecond)
	defer poll.Stop()

	for {
		if t, ok := l.Store.Get(symbol); ok && t.HasStreamData {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline:
			if t, ok := l.Store.Get(symbol); ok {
				return t.HasStreamData
			}
			return false
		case <-poll.C:
		}
	}
}
