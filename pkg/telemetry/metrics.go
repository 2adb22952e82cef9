package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricFilterKeptTotal       = "watchlist_filter_kept_total"
	MetricFilterRejectedTotal   = "watchlist_filter_rejected_total"
	MetricWatchlistSize         = "watchlist_active_set_size"
	MetricWatchlistChurnTotal   = "watchlist_membership_churn_total"
	MetricWSMessagesTotal       = "stream_messages_total"
	MetricWSReconnectsTotal     = "stream_reconnects_total"
	MetricTurboEntriesTotal     = "turbo_entries_total"
	MetricTurboExitsTotal       = "turbo_exits_total"
	MetricTurboMissTotal        = "turbo_miss_total"
	MetricTurboFilterBreakTotal = "turbo_filter_break_total"
	MetricTurboErrorsTotal      = "turbo_errors_total"
	MetricTurboSkipsTotal       = "turbo_skips_total"
	MetricTurboActive           = "turbo_active_symbols"
	MetricScoreComputed         = "watchlist_candidate_score"
)

// MetricsHolder holds initialized instruments for the watchlist/turbo
// domain. Per-symbol observable state is kept in plain maps guarded by a
// single mutex.
type MetricsHolder struct {
	FilterKeptTotal     metric.Int64Counter
	FilterRejectedTotal metric.Int64Counter
	WatchlistChurnTotal metric.Int64Counter
	WSMessagesTotal     metric.Int64Counter
	WSReconnectsTotal   metric.Int64Counter
	TurboEntriesTotal   metric.Int64Counter
	TurboExitsTotal     metric.Int64Counter
	TurboMissTotal      metric.Int64Counter
	TurboFilterBreak    metric.Int64Counter
	TurboErrorsTotal    metric.Int64Counter
	TurboSkipsTotal     metric.Int64Counter

	WatchlistSize metric.Int64ObservableGauge
	TurboActive   metric.Int64ObservableGauge
	ScoreComputed metric.Float64ObservableGauge

	mu              sync.RWMutex
	watchlistSize   map[string]int64 // category -> count
	turboActiveMap  map[string]int64 // "global" -> count
	candidateScores map[string]float64
	circuitOpen     map[string]bool // scope -> open
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder.
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			watchlistSize:   make(map[string]int64),
			turboActiveMap:  make(map[string]int64),
			candidateScores: make(map[string]float64),
			circuitOpen:     make(map[string]bool),
		}
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter.
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	if m.FilterKeptTotal, err = meter.Int64Counter(MetricFilterKeptTotal, metric.WithDescription("Symbols kept per filter stage")); err != nil {
		return err
	}
	if m.FilterRejectedTotal, err = meter.Int64Counter(MetricFilterRejectedTotal, metric.WithDescription("Symbols rejected per filter stage")); err != nil {
		return err
	}
	if m.WatchlistChurnTotal, err = meter.Int64Counter(MetricWatchlistChurnTotal, metric.WithDescription("Active-set membership changes")); err != nil {
		return err
	}
	if m.WSMessagesTotal, err = meter.Int64Counter(MetricWSMessagesTotal, metric.WithDescription("Streaming messages received")); err != nil {
		return err
	}
	if m.WSReconnectsTotal, err = meter.Int64Counter(MetricWSReconnectsTotal, metric.WithDescription("Streaming reconnect attempts")); err != nil {
		return err
	}
	if m.TurboEntriesTotal, err = meter.Int64Counter(MetricTurboEntriesTotal, metric.WithDescription("Turbo entry orders submitted")); err != nil {
		return err
	}
	if m.TurboExitsTotal, err = meter.Int64Counter(MetricTurboExitsTotal, metric.WithDescription("Turbo sorties ended by a funding exit, a miss or a fatal error")); err != nil {
		return err
	}
	if m.TurboMissTotal, err = meter.Int64Counter(MetricTurboMissTotal, metric.WithDescription("Turbo entries that never filled")); err != nil {
		return err
	}
	if m.TurboFilterBreak, err = meter.Int64Counter(MetricTurboFilterBreakTotal, metric.WithDescription("Turbo terminations due to filter break")); err != nil {
		return err
	}
	if m.TurboErrorsTotal, err = meter.Int64Counter(MetricTurboErrorsTotal, metric.WithDescription("Turbo fatal errors")); err != nil {
		return err
	}
	if m.TurboSkipsTotal, err = meter.Int64Counter(MetricTurboSkipsTotal, metric.WithDescription("Turbo activations skipped due to the parallelism cap")); err != nil {
		return err
	}

	m.WatchlistSize, err = meter.Int64ObservableGauge(MetricWatchlistSize, metric.WithDescription("Current active-set size per category"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for cat, val := range m.watchlistSize {
				obs.Observe(val, metric.WithAttributes(attribute.String("category", cat)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.TurboActive, err = meter.Int64ObservableGauge(MetricTurboActive, metric.WithDescription("Currently active turbo symbols"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for k, val := range m.turboActiveMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("scope", k)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.ScoreComputed, err = meter.Float64ObservableGauge(MetricScoreComputed, metric.WithDescription("Most recent composite score per symbol"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.candidateScores {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// RecordFilterStage increments the kept/rejected counters for a named filter
// pipeline stage.
func (m *MetricsHolder) RecordFilterStage(ctx context.Context, stage string, kept, rejected int) {
	attrs := metric.WithAttributes(attribute.String("stage", stage))
	if m.FilterKeptTotal != nil {
		m.FilterKeptTotal.Add(ctx, int64(kept), attrs)
	}
	if m.FilterRejectedTotal != nil {
		m.FilterRejectedTotal.Add(ctx, int64(rejected), attrs)
	}
}

// RecordWSMessage increments the streaming message counter for category.
func (m *MetricsHolder) RecordWSMessage(ctx context.Context, category string) {
	if m.WSMessagesTotal != nil {
		m.WSMessagesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
	}
}

// RecordWSReconnect increments the reconnect-attempt counter for category.
func (m *MetricsHolder) RecordWSReconnect(ctx context.Context, category string) {
	if m.WSReconnectsTotal != nil {
		m.WSReconnectsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
	}
}

// SetCircuitBreakerOpen records the tripped state of a named circuit
// breaker scope ("global" or per-symbol).
func (m *MetricsHolder) SetCircuitBreakerOpen(scope string, open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.circuitOpen[scope] = open
}

// SetWatchlistSize records the active-set size for a category.
func (m *MetricsHolder) SetWatchlistSize(category string, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchlistSize[category] = int64(size)
}

// SetTurboActiveCount records the current number of active turbo symbols.
func (m *MetricsHolder) SetTurboActiveCount(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turboActiveMap["global"] = int64(count)
}

// SetCandidateScore records the latest composite score for a symbol.
func (m *MetricsHolder) SetCandidateScore(symbol string, score float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidateScores[symbol] = score
}

// Snapshot returns a read-only summary used by the health endpoint.
func (m *MetricsHolder) Snapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	watchlist := make(map[string]int64, len(m.watchlistSize))
	for k, v := range m.watchlistSize {
		watchlist[k] = v
	}
	return map[string]interface{}{
		"watchlist_size": watchlist,
		"turbo_active":   m.turboActiveMap["global"],
	}
}
