// Package watchlist implements C3, the orchestration layer that runs a
// single refresh cycle over C1 (market data) and C2 (filter/scorer) and
// notifies subscribers when the ranked active set's membership changes.
package watchlist

import (
	"context"
	"sync"
	"time"

	"market_maker/internal/config"
	"market_maker/internal/core"
	"market_maker/internal/filter"
	"market_maker/pkg/telemetry"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Manager runs refresh cycles and holds the last ActiveSet produced, so
// readers observe a consistent snapshot even mid-cycle.
type Manager struct {
	cfg      config.Config
	market   core.IMarketDataClient
	pipeline *filter.Pipeline
	logger   core.ILogger
	metrics  *telemetry.MetricsHolder

	mu        sync.RWMutex
	active    core.ActiveSet
	haveCycle bool

	subMu       sync.RWMutex
	subscribers []core.ActiveSetSubscriber

	cycleMu sync.Mutex // serializes Refresh so periodic runs never overlap

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewManager builds a Manager. volatile may be nil (no volatility filtering).
func NewManager(cfg config.Config, market core.IMarketDataClient, volatile core.IVolatilityCache, logger core.ILogger, metrics *telemetry.MetricsHolder) *Manager {
	return &Manager{
		cfg:      cfg,
		market:   market,
		pipeline: filter.NewPipeline(cfg, volatile, metrics, logger.WithField("component", "filter_pipeline")),
		logger:   logger.WithField("component", "watchlist"),
		metrics:  metrics,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Subscribe registers a subscriber notified on every cycle that actually
// changes membership.
func (m *Manager) Subscribe(sub core.ActiveSetSubscriber) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.subscribers = append(m.subscribers, sub)
}

// ActiveSet returns a copy of the most recently committed active set. It is
// safe to call before the first cycle completes — haveCycle reports false.
func (m *Manager) ActiveSet() (core.ActiveSet, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active, m.haveCycle
}

func (m *Manager) categories() []core.Category {
	switch m.cfg.Categorie {
	case "linear":
		return []core.Category{core.CategoryLinear}
	case "inverse":
		return []core.Category{core.CategoryInverse}
	default:
		return []core.Category{core.CategoryLinear, core.CategoryInverse}
	}
}

// Refresh executes one complete refresh cycle. On any REST failure the
// cycle aborts and the previous ActiveSet remains authoritative — this
// method never partially mutates state.
func (m *Manager) Refresh(ctx context.Context) error {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	cats := m.categories()

	// Step 1: instrument universe, concurrent per category.
	universe, err := m.fetchUniverse(ctx, cats)
	if err != nil {
		return err
	}

	// Step 2: funding maps, concurrent per category.
	fundingMap, err := m.fetchFundingMaps(ctx, cats)
	if err != nil {
		return err
	}

	// Step 3: snapshot nextFundingTime (OriginalFundingMap).
	original := make(core.OriginalFundingMap, len(fundingMap))
	for symbol, snap := range fundingMap {
		if !snap.NextFundingTime.IsZero() {
			original[symbol] = snap.NextFundingTime
		}
	}

	// Steps 4, 5: filters 1-2, then spread fetch split by category and run
	// concurrently.
	afterStage2, _ := m.pipeline.RunPreSpread(ctx, universe, fundingMap)

	spreads, err := m.fetchSpreads(ctx, afterStage2, cats)
	if err != nil {
		return err
	}

	// Steps 6-8: filters 3-4, ranking (stage 5).
	ranked, _ := m.pipeline.RunPostSpread(ctx, afterStage2, spreads)

	newActive := core.ActiveSet{Candidates: ranked, FundingMap: original}

	// Step 9: notify only when membership changed.
	m.mu.Lock()
	prev := m.active
	prevHadCycle := m.haveCycle
	m.active = newActive
	m.haveCycle = true
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetWatchlistSize(string(core.CategoryLinear), len(newActive.LinearSymbols()))
		m.metrics.SetWatchlistSize(string(core.CategoryInverse), len(newActive.InverseSymbols()))
	}

	if !prevHadCycle || membershipChanged(prev, newActive) {
		m.notifySubscribers(newActive)
	}

	return nil
}

func membershipChanged(prev, next core.ActiveSet) bool {
	prevSet := make(map[string]bool, len(prev.Candidates))
	for _, c := range prev.Candidates {
		prevSet[c.Symbol] = true
	}
	if len(prevSet) != len(next.Candidates) {
		return true
	}
	for _, c := range next.Candidates {
		if !prevSet[c.Symbol] {
			return true
		}
	}
	return false
}

func (m *Manager) notifySubscribers(active core.ActiveSet) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	linear := active.LinearSymbols()
	inverse := active.InverseSymbols()
	for _, sub := range m.subscribers {
		sub.OnActiveSetChange(linear, inverse, active.FundingMap)
	}
}

func (m *Manager) fetchUniverse(ctx context.Context, cats []core.Category) (map[string]core.Category, error) {
	results := make([]map[string]core.Category, len(cats))
	g, gctx := errgroup.WithContext(ctx)
	for i, cat := range cats {
		i, cat := i, cat
		g.Go(func() error {
			u, err := m.market.FetchUniverse(gctx, cat)
			if err != nil {
				return err
			}
			results[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]core.Category)
	for _, r := range results {
		for symbol, cat := range r {
			out[symbol] = cat
		}
	}
	return out, nil
}

func (m *Manager) fetchFundingMaps(ctx context.Context, cats []core.Category) (map[string]core.FundingSnapshot, error) {
	results := make([]map[string]core.FundingSnapshot, len(cats))
	g, gctx := errgroup.WithContext(ctx)
	for i, cat := range cats {
		i, cat := i, cat
		g.Go(func() error {
			f, err := m.market.FetchFundingMap(gctx, cat)
			if err != nil {
				return err
			}
			results[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]core.FundingSnapshot)
	for _, r := range results {
		for symbol, snap := range r {
			out[symbol] = snap
		}
	}
	return out, nil
}

// fetchSpreads splits candidates by category and fetches spreads for each
// category concurrently.
func (m *Manager) fetchSpreads(ctx context.Context, candidates []core.Candidate, cats []core.Category) (map[string]decimal.Decimal, error) {
	bySymbol := make(map[core.Category][]string)
	for _, c := range candidates {
		bySymbol[c.Category] = append(bySymbol[c.Category], c.Symbol)
	}

	results := make([]map[string]decimal.Decimal, len(cats))
	g, gctx := errgroup.WithContext(ctx)
	for i, cat := range cats {
		i, cat := i, cat
		symbols := bySymbol[cat]
		if len(symbols) == 0 {
			continue
		}
		g.Go(func() error {
			s, err := m.market.FetchSpreads(gctx, cat, symbols)
			if err != nil {
				return err
			}
			results[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]decimal.Decimal)
	for _, r := range results {
		for symbol, spread := range r {
			out[symbol] = spread
		}
	}
	return out, nil
}

// Run starts the periodic refresh task. If RefreshWatchlistInterval is
// zero the task never runs; Run returns immediately. The cycle never
// overlaps with itself — Refresh's internal
// mutex makes a concurrent manual Refresh call simply wait its turn.
func (m *Manager) Run(ctx context.Context) {
	interval := time.Duration(m.cfg.RefreshWatchlistInterval) * time.Second
	if interval <= 0 {
		close(m.doneChan)
		return
	}

	go func() {
		defer close(m.doneChan)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopChan:
				return
			case <-ticker.C:
				if err := m.Refresh(ctx); err != nil {
					m.logger.Error("refresh cycle failed, previous active set remains authoritative", "error", err)
				}
			}
		}
	}()
}

// Stop signals the periodic task to exit and waits for it to do so.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
	<-m.doneChan
}
