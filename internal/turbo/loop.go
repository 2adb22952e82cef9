package turbo

import (
	"context"
	"fmt"
	"time"

	"market_maker/internal/config"
	"market_maker/internal/core"
	apperrors "market_maker/pkg/errors"
	"market_maker/pkg/orderid"

	"github.com/shopspring/decimal"
)

// snapshot is the read-only view of a symbol's market state a single tick
// acts on, assembled from the fused streaming ticker plus the last cached
// realized volatility.
type snapshot struct {
	bid, ask, lastPrice decimal.Decimal
	fundingRate         decimal.Decimal
	turnover            decimal.Decimal
	nextFundingTime     time.Time
	hasFunding          bool
	hasVolatility       bool
	volatility          float64
}

func (c *Controller) snapshot(cand core.Candidate) (snapshot, bool) {
	t, ok := c.tickers.Get(cand.Symbol)
	if !ok || t == nil {
		return snapshot{}, false
	}

	s := snapshot{fundingRate: cand.FundingRate, turnover: cand.Turnover24h}
	if t.BestBid != nil {
		s.bid = *t.BestBid
	}
	if t.BestAsk != nil {
		s.ask = *t.BestAsk
	}
	switch {
	case t.LastPrice != nil:
		s.lastPrice = *t.LastPrice
	case t.MarkPrice != nil:
		s.lastPrice = *t.MarkPrice
	}
	if t.FundingRate != nil {
		s.fundingRate = *t.FundingRate
	}
	if t.Turnover24h != nil {
		s.turnover = *t.Turnover24h
	}
	if t.NextFundingTime != nil {
		s.nextFundingTime = *t.NextFundingTime
		s.hasFunding = true
	}
	if c.volatility != nil {
		if vol, ok := c.volatility.Get(cand.Symbol); ok {
			s.volatility = vol
			s.hasVolatility = true
		}
	}
	return s, true
}

// runLoop is the per-symbol fast path: one goroutine, owned exclusively by
// this symbol's TurboState, running until it self-terminates or its context
// is cancelled by Controller.Shutdown or Controller.terminate.
func (c *Controller) runLoop(ctx context.Context, cand core.Candidate, state *core.TurboState) {
	priceDecimals, qtyDecimals, err := c.precision.GetSymbolPrecision(ctx, cand.Category, cand.Symbol)
	if err != nil {
		c.logger.Error("turbo: precision lookup failed", "symbol", cand.Symbol, "error", err)
		c.terminate(cand.Symbol, core.TerminationFatalError)
		return
	}

	interval := time.Duration(c.cfg.Turbo.RefreshMs) * time.Millisecond
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.tick(ctx, cand, state, priceDecimals, qtyDecimals) {
				return
			}
		}
	}
}

// tick runs the state machine once: snapshot, filter re-validation, entry gate, fill detection,
// miss detection, funding-window exit. It returns true once it has called
// terminate, telling runLoop to stop.
func (c *Controller) tick(ctx context.Context, cand core.Candidate, state *core.TurboState, priceDecimals, qtyDecimals int) bool {
	snap, ok := c.snapshot(cand)
	if !ok {
		return false
	}

	now := c.now()
	secsToFunding, fundingKnown := 0.0, false
	if snap.hasFunding {
		secsToFunding = snap.nextFundingTime.Sub(now).Seconds()
		fundingKnown = true
	} else if secs, ok := c.timeToFundingSeconds(cand, nil, now); ok {
		secsToFunding, fundingKnown = secs, true
	}

	if reason, broken := c.filterBroken(snap); broken {
		state.FilterBreakReason = reason
		if state.EntrySent && !state.PositionOpen && c.cfg.Turbo.CancelOnFilterBreak {
			c.cancelResting(ctx, cand.Symbol, state)
		}
		c.terminate(cand.Symbol, core.TerminationFilterBreak)
		return true
	}

	if !state.EntrySent {
		if !fundingKnown {
			return false
		}
		if secsToFunding < 0 {
			c.terminate(cand.Symbol, core.TerminationSortieConditions)
			return true
		}
		if secsToFunding > float64(c.cfg.Turbo.EntrySeconds) {
			return false
		}
		if err := c.tryEnter(ctx, cand, state, snap, priceDecimals, qtyDecimals); err != nil {
			if apperrors.IsTransient(err) {
				c.logger.Warn("turbo: transient entry error, will retry next tick", "symbol", cand.Symbol, "error", err)
				return false
			}
			c.logger.Error("turbo: fatal entry error", "symbol", cand.Symbol, "error", err)
			c.terminate(cand.Symbol, core.TerminationFatalError)
			return true
		}
		return false
	}

	if !state.PositionOpen {
		filled, err := c.checkFill(ctx, cand.Symbol, state)
		if err != nil {
			if apperrors.IsTransient(err) {
				c.logger.Warn("turbo: transient fill-check error", "symbol", cand.Symbol, "error", err)
				return false
			}
			c.logger.Error("turbo: fatal fill-check error", "symbol", cand.Symbol, "error", err)
			c.terminate(cand.Symbol, core.TerminationFatalError)
			return true
		}
		if filled {
			return false
		}

		timeout := time.Duration(c.cfg.Turbo.MissOrderTimeoutS) * time.Second
		if timeout > 0 && !state.LastEntryAttemptAt.IsZero() && now.Sub(state.LastEntryAttemptAt) > timeout {
			c.cancelResting(ctx, cand.Symbol, state)
			c.terminate(cand.Symbol, core.TerminationMiss)
			return true
		}
		return false
	}

	if fundingKnown && secsToFunding <= 0 {
		if err := c.exitAtFunding(ctx, cand, state, snap); err != nil {
			c.logger.Error("turbo: funding exit failed", "symbol", cand.Symbol, "error", err)
			c.terminate(cand.Symbol, core.TerminationFatalError)
			return true
		}
		c.terminate(cand.Symbol, core.TerminationFundingDone)
		return true
	}

	return false
}

// tryEnter submits (at most once per tick) the entry order sized from live
// equity and priced from the current book. A nil error
// with no order placed (held back by the circuit breaker, or a size/price
// that can't be computed yet) is not a failure — the loop simply waits for
// the next tick.
func (c *Controller) tryEnter(ctx context.Context, cand core.Candidate, state *core.TurboState, snap snapshot, priceDecimals, qtyDecimals int) error {
	if c.circuit != nil && c.circuit.IsTripped() {
		return nil
	}

	equity, err := c.orders.GetEquity(ctx)
	if err != nil {
		return err
	}

	side := DetermineSide(snap.fundingRate, cand.Score)

	qty, ok := EntryQuantity(equity,
		decimal.NewFromFloat(c.cfg.Positions.CapitalFraction),
		decimal.NewFromFloat(c.cfg.Positions.Leverage),
		snap.lastPrice,
		decimal.NewFromFloat(c.cfg.Positions.MinNotionalUSD),
		qtyDecimals)
	if !ok {
		return nil
	}

	price, ok := EntryPrice(c.cfg.Positions.PricePolicy, snap.bid, snap.ask,
		decimal.NewFromFloat(c.cfg.Positions.MakerOffsetBps), priceDecimals)
	if !ok {
		return nil
	}

	sideCode := "BUY"
	if side == core.SideSell {
		sideCode = "SELL"
	}
	clientOrderID := orderid.GenerateDeterministicOrderID(cand.Symbol, price, sideCode, priceDecimals)

	tif := "GTC"
	if c.cfg.Positions.PostOnly {
		tif = "PostOnly"
	}

	order, err := c.orders.PlaceOrder(ctx, core.PlaceOrderRequest{
		Symbol:        cand.Symbol,
		Category:      cand.Category,
		Side:          side,
		OrderType:     "Limit",
		Qty:           qty,
		Price:         price,
		TimeInForce:   tif,
		ClientOrderID: clientOrderID,
	})
	if err != nil {
		return err
	}

	state.EntrySent = true
	state.OrderID = order.OrderID
	state.EntrySide = side
	state.EntryQty = qty
	state.LastEntryAttemptAt = c.now()
	state.Metrics.Entries++
	if c.metrics != nil {
		c.metrics.TurboEntriesTotal.Add(ctx, 1)
	}
	c.logger.Info("[Turbo ENTRY]", "symbol", cand.Symbol, "side", sideCode,
		"qty", qty.String(), "price", price.String(), "order_id", order.OrderID)
	return nil
}

// checkFill polls the resting entry order's status, marking the position
// open the instant it reports any fill.
func (c *Controller) checkFill(ctx context.Context, symbol string, state *core.TurboState) (bool, error) {
	order, err := c.orders.GetOrderStatus(ctx, symbol, state.OrderID)
	if err != nil {
		return false, err
	}
	if order.Status == core.OrderStatusFilled || order.Status == core.OrderStatusPartiallyFilled {
		state.PositionOpen = true
		state.EntryPrice = order.AvgFillPrice
		if order.FilledQty.IsPositive() {
			state.EntryQty = order.FilledQty
		}
		return true, nil
	}
	return false, nil
}

// cancelResting best-effort cancels a not-yet-filled entry order; failures
// are logged, not propagated, since the caller is already on its way to
// terminating the symbol.
func (c *Controller) cancelResting(ctx context.Context, symbol string, state *core.TurboState) {
	if state.OrderID == "" || state.PositionOpen {
		return
	}
	if err := c.orders.CancelOrder(ctx, symbol, state.OrderID); err != nil {
		c.logger.Warn("turbo: cancel resting order failed", "symbol", symbol, "order_id", state.OrderID, "error", err)
	}
}

// exitAtFunding unwinds an open position with an opposite-side, reduce-only
// order at the funding instant.
func (c *Controller) exitAtFunding(ctx context.Context, cand core.Candidate, state *core.TurboState, snap snapshot) error {
	exitSide := core.SideSell
	if state.EntrySide == core.SideSell {
		exitSide = core.SideBuy
	}

	orderType := "Market"
	tif := "IOC"
	exitPrice := snap.lastPrice
	if c.cfg.Positions.ExitOrderType == "limit_post_only" {
		orderType = "Limit"
		tif = "PostOnly"
		if exitSide == core.SideBuy {
			exitPrice = snap.ask
		} else {
			exitPrice = snap.bid
		}
	}

	_, err := c.orders.PlaceOrder(ctx, core.PlaceOrderRequest{
		Symbol:      cand.Symbol,
		Category:    cand.Category,
		Side:        exitSide,
		OrderType:   orderType,
		Qty:         state.EntryQty,
		Price:       exitPrice,
		TimeInForce: tif,
		ReduceOnly:  c.cfg.Positions.ReduceOnlyOnExit,
	})
	if err != nil {
		return err
	}

	pnl, slippage := computePnL(state.EntrySide, state.EntryPrice, state.EntryQty, exitPrice)
	if c.circuit != nil {
		c.circuit.RecordTrade(pnl)
	}
	c.logger.Info("turbo: closed position at funding", "symbol", cand.Symbol,
		"pnl", pnl.String(), "slippage", slippage.String())
	return nil
}

// filterBroken re-checks the same thresholds C2 applied at ranking time
// against the symbol's live snapshot:
// a symbol can drift out of bounds during its own sortie.
func (c *Controller) filterBroken(snap snapshot) (string, bool) {
	absFunding := snap.fundingRate.Abs().InexactFloat64()
	if c.cfg.FundingMin > 0 && absFunding < c.cfg.FundingMin {
		return fmt.Sprintf("funding %.6f below min %.6f", absFunding, c.cfg.FundingMin), true
	}
	if c.cfg.FundingMax > 0 && absFunding > c.cfg.FundingMax {
		return fmt.Sprintf("funding %.6f above max %.6f", absFunding, c.cfg.FundingMax), true
	}

	if volumeMin := effectiveVolumeMinMillions(c.cfg); volumeMin > 0 {
		millions := snap.turnover.InexactFloat64() / 1_000_000
		if millions < volumeMin {
			return fmt.Sprintf("volume %.1fM below min %.1fM", millions, volumeMin), true
		}
	}

	if c.cfg.SpreadMax > 0 && snap.bid.IsPositive() {
		mid := snap.bid.Add(snap.ask).Div(decimal.NewFromInt(2))
		spread := snap.ask.Sub(snap.bid).Div(mid).InexactFloat64()
		if spread > c.cfg.SpreadMax {
			return fmt.Sprintf("spread %.4f above max %.4f", spread, c.cfg.SpreadMax), true
		}
	}

	if c.cfg.VolatilityMax > 0 && snap.hasVolatility && snap.volatility > c.cfg.VolatilityMax {
		return fmt.Sprintf("volatility %.4f above max %.4f", snap.volatility, c.cfg.VolatilityMax), true
	}

	return "", false
}

// effectiveVolumeMinMillions mirrors internal/filter's precedence rule:
// volume_min_millions, when set, wins over the raw volume_min.
func effectiveVolumeMinMillions(cfg config.Config) float64 {
	if cfg.VolumeMinMillions > 0 {
		return cfg.VolumeMinMillions
	}
	if cfg.VolumeMin > 0 {
		return cfg.VolumeMin / 1_000_000
	}
	return 0
}
