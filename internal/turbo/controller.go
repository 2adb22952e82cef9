package turbo

import (
	"context"
	"sync"
	"time"

	"market_maker/internal/config"
	"market_maker/internal/core"
	"market_maker/internal/filter"
	"market_maker/internal/risk"
	"market_maker/pkg/concurrency"
	"market_maker/pkg/telemetry"
)

// TickerSource is the subset of internal/stream.Layer the controller
// depends on: a snapshot read, a dynamic per-symbol subscribe, and a wait
// for the first streaming message.
type TickerSource interface {
	Get(symbol string) (*core.InstantTicker, bool)
	SubscribeTurbo(ctx context.Context, category core.Category, symbol string) error
	WaitForStreamData(ctx context.Context, symbol string, timeout time.Duration) bool
}

// PrecisionSource resolves the price/quantity decimal precision a symbol's
// orders must round to.
type PrecisionSource interface {
	GetSymbolPrecision(ctx context.Context, category core.Category, symbol string) (priceDecimals, qtyDecimals int, err error)
}

// activeSymbol is the controller's handle on one running fast loop.
type activeSymbol struct {
	cancel context.CancelFunc
	state  *core.TurboState
}

// Controller is C5: it decides which candidates near their funding window
// deserve a fast-path sortie, and owns the bounded pool of per-symbol loops
// that run them.
type Controller struct {
	cfg        config.Config
	tickers    TickerSource
	precision  PrecisionSource
	orders     core.IOrderClient
	circuit    *risk.CircuitBreaker
	volatility core.IVolatilityCache
	alerter    core.Alerter
	logger     core.ILogger
	metrics    *telemetry.MetricsHolder
	pool       *concurrency.WorkerPool

	mu        sync.Mutex
	active    map[string]*activeSymbol
	cooldowns map[string]time.Time

	now func() time.Time

	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// NewController wires a bounded worker pool sized to max_parallel_pairs.
// activate refuses a new symbol once max_parallel_pairs loops are active,
// and unwinds one the pool rejects (NonBlocking TrySubmit), so a candidate
// that arrives at the cap is counted as a skip rather than queued.
func NewController(cfg config.Config, tickers TickerSource, precision PrecisionSource, orders core.IOrderClient, circuit *risk.CircuitBreaker, volatility core.IVolatilityCache, alerter core.Alerter, logger core.ILogger, metrics *telemetry.MetricsHolder) *Controller {
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "turbo",
		MaxWorkers:  max(cfg.Turbo.MaxParallelPairs, 1),
		MaxCapacity: 1,
		NonBlocking: true,
	}, logger)

	return &Controller{
		cfg:        cfg,
		tickers:    tickers,
		precision:  precision,
		orders:     orders,
		circuit:    circuit,
		volatility: volatility,
		alerter:    alerter,
		logger:     logger.WithField("component", "turbo_controller"),
		metrics:    metrics,
		pool:       pool,
		active:     make(map[string]*activeSymbol),
		cooldowns:  make(map[string]time.Time),
		now:        time.Now,
	}
}

// CheckCandidates evaluates every ranked candidate against the activation
// window and, for each one inside trigger_seconds of its funding instant,
// attempts to start its fast loop.
func (c *Controller) CheckCandidates(ctx context.Context, active core.ActiveSet) {
	if !c.cfg.Turbo.Enabled {
		return
	}

	now := c.now()
	for _, cand := range active.Candidates {
		secs, ok := c.timeToFundingSeconds(cand, active.FundingMap, now)
		if !ok {
			continue
		}
		if secs < 0 || secs > float64(c.cfg.Turbo.TriggerSeconds) {
			continue
		}
		c.maybeActivate(ctx, cand)
	}
}

// timeToFundingSeconds resolves time-to-funding from three sources in
// priority order: the fused streaming ticker, the last
// REST-pulled funding map, and finally the candidate's own formatted
// display string.
func (c *Controller) timeToFundingSeconds(cand core.Candidate, fundingMap core.OriginalFundingMap, now time.Time) (float64, bool) {
	if t, ok := c.tickers.Get(cand.Symbol); ok && t.NextFundingTime != nil {
		return filter.FundingTimeRemainingSeconds(*t.NextFundingTime, now)
	}
	if when, ok := fundingMap[cand.Symbol]; ok {
		return filter.FundingTimeRemainingSeconds(when, now)
	}
	if secs, ok := filter.ParseFundingTimeFormatted(cand.TimeToFundingFormatted); ok {
		return secs, true
	}
	return 0, false
}

// maybeActivate checks the remaining activation conditions — not already
// active, not in cooldown, streaming data present — and on success submits
// the fast loop to the bounded pool.
func (c *Controller) maybeActivate(ctx context.Context, cand core.Candidate) {
	c.mu.Lock()
	if _, ok := c.active[cand.Symbol]; ok {
		c.mu.Unlock()
		return
	}
	if until, inCooldown := c.cooldowns[cand.Symbol]; inCooldown {
		if c.now().Before(until) {
			c.mu.Unlock()
			return
		}
		delete(c.cooldowns, cand.Symbol)
	}
	c.mu.Unlock()

	if err := c.tickers.SubscribeTurbo(ctx, cand.Category, cand.Symbol); err != nil {
		c.logger.Warn("turbo: subscribe failed", "symbol", cand.Symbol, "error", err)
		return
	}

	timeout := time.Duration(c.cfg.Turbo.WSTimeoutSeconds) * time.Second
	if !c.tickers.WaitForStreamData(ctx, cand.Symbol, timeout) {
		c.logger.Warn("turbo: no stream data before timeout", "symbol", cand.Symbol)
		return
	}

	c.activate(ctx, cand)
}

// activate registers the symbol's state and submits its fast loop to the
// pool. Reaching max_parallel_pairs active symbols counts as a skip; a pool
// rejection unwinds the registration and also counts as a skip.
func (c *Controller) activate(parent context.Context, cand core.Candidate) {
	c.mu.Lock()
	if _, ok := c.active[cand.Symbol]; ok {
		c.mu.Unlock()
		return
	}
	if len(c.active) >= max(c.cfg.Turbo.MaxParallelPairs, 1) {
		c.mu.Unlock()
		c.recordSkip(cand.Symbol)
		return
	}
	loopCtx, cancel := context.WithCancel(parent)
	state := &core.TurboState{
		Symbol:    cand.Symbol,
		Category:  cand.Category,
		StartedAt: c.now(),
	}
	c.active[cand.Symbol] = &activeSymbol{cancel: cancel, state: state}
	c.mu.Unlock()
	c.updateActiveGauge()

	c.wg.Add(1)
	err := c.pool.Submit(func() {
		defer c.wg.Done()
		c.runLoop(loopCtx, cand, state)
	})
	if err != nil {
		c.wg.Done()
		cancel()
		c.mu.Lock()
		delete(c.active, cand.Symbol)
		c.mu.Unlock()
		c.updateActiveGauge()
		c.recordSkip(cand.Symbol)
		return
	}
	c.logger.Info("[Turbo ON]", "symbol", cand.Symbol, "category", cand.Category)
}

// terminate unregisters symbol, starts its cooldown window, and cancels its
// loop context (idempotent: a second call on an already-removed symbol is a
// no-op, matching the original's "self-stop vs controller-stop" races).
func (c *Controller) terminate(symbol string, reason core.TurboTermination) {
	c.mu.Lock()
	as, ok := c.active[symbol]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.active, symbol)
	if cooldown := time.Duration(c.cfg.Turbo.CooldownS) * time.Second; cooldown > 0 {
		c.cooldowns[symbol] = c.now().Add(cooldown)
	}
	c.mu.Unlock()

	as.cancel()
	c.recordTermination(symbol, reason, as.state)
	c.updateActiveGauge()
}

// recordTermination maps a termination reason onto the metrics counters
// grouped under "turbo_exits" vs "turbo_filter_break", and alerts on fatal
// errors.
func (c *Controller) recordTermination(symbol string, reason core.TurboTermination, state *core.TurboState) {
	ctx := context.Background()

	switch reason {
	case core.TerminationFilterBreak:
		state.Metrics.FilterBreak++
		if c.metrics != nil {
			c.metrics.TurboFilterBreak.Add(ctx, 1)
		}
	case core.TerminationMiss:
		state.Metrics.Miss++
		state.Metrics.Exits++
		if c.metrics != nil {
			c.metrics.TurboMissTotal.Add(ctx, 1)
			c.metrics.TurboExitsTotal.Add(ctx, 1)
		}
	case core.TerminationFundingDone:
		state.Metrics.Exits++
		if c.metrics != nil {
			c.metrics.TurboExitsTotal.Add(ctx, 1)
		}
	case core.TerminationFatalError:
		state.Metrics.Errors++
		state.Metrics.Exits++
		if c.metrics != nil {
			c.metrics.TurboErrorsTotal.Add(ctx, 1)
			c.metrics.TurboExitsTotal.Add(ctx, 1)
		}
		if c.alerter != nil {
			c.alerter.Alert(ctx, "turbo fatal error", symbol, map[string]string{"symbol": symbol})
		}
	case core.TerminationSortieConditions, core.TerminationShutdown:
		// Logged below only; no dedicated counter for these reasons.
	}

	c.logger.Info("[Turbo OFF]", "symbol", symbol, "reason", reason)
}

// recordSkip counts an activation refused at the parallelism cap.
func (c *Controller) recordSkip(symbol string) {
	if c.metrics != nil {
		c.metrics.TurboSkipsTotal.Add(context.Background(), 1)
	}
	c.logger.Debug("turbo: activation skipped at capacity", "symbol", symbol)
}

func (c *Controller) updateActiveGauge() {
	c.mu.Lock()
	n := len(c.active)
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.SetTurboActiveCount(n)
	}
}

// IsActive reports whether symbol currently has a running fast loop.
func (c *Controller) IsActive(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[symbol]
	return ok
}

// Shutdown cancels every active loop, waits for all of them to return, and
// stops the pool. It never joins the calling goroutine against itself: a
// loop's own cancellation (ctx.Done) is what makes it exit, not a direct
// join.
func (c *Controller) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.mu.Lock()
		for _, as := range c.active {
			as.cancel()
		}
		c.mu.Unlock()

		c.wg.Wait()
		c.pool.Stop()
	})
}
