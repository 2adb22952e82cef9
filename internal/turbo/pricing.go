// Package turbo implements C5, the fast-path controller that opens and
// unwinds a funding-capture position around a single settlement instant for
// symbols close enough to their next funding time.
package turbo

import (
	"market_maker/internal/core"

	"github.com/shopspring/decimal"
)

// DetermineSide picks the entry side from the sign of the funding rate: a
// positive rate means longs pay shorts, so turbo goes short to collect it;
// a negative rate means turbo goes long. A zero rate falls back to score
// sign, and ultimately defaults to buy.
func DetermineSide(fundingRate decimal.Decimal, score *float64) core.Side {
	switch {
	case fundingRate.IsPositive():
		return core.SideSell
	case fundingRate.IsNegative():
		return core.SideBuy
	case score != nil && *score < 0:
		return core.SideSell
	default:
		return core.SideBuy
	}
}

// EntryQuantity sizes the entry from equity*capitalFraction*leverage at
// lastPrice, rejecting sizes below minNotionalUSD. ok is false when any
// input prevents a sane order size.
func EntryQuantity(equity, capitalFraction, leverage, lastPrice, minNotionalUSD decimal.Decimal, qtyDecimals int) (decimal.Decimal, bool) {
	if lastPrice.IsZero() || lastPrice.IsNegative() || equity.IsNegative() {
		return decimal.Zero, false
	}

	notional := equity.Mul(capitalFraction)
	if notional.LessThan(minNotionalUSD) {
		return decimal.Zero, false
	}

	exposure := notional.Mul(leverage)
	qty := exposure.Div(lastPrice).Round(int32(qtyDecimals))
	if qty.IsZero() || qty.IsNegative() {
		return decimal.Zero, false
	}
	return qty, true
}

// EntryPrice derives the maker-offset limit price from the configured price
// policy: best_bid/best_ask shade the quote away from the touch by
// makerOffsetBps so the order rests rather than crosses; mid splits the
// difference unshaded.
func EntryPrice(policy string, bid, ask, makerOffsetBps decimal.Decimal, priceDecimals int) (decimal.Decimal, bool) {
	if bid.IsZero() && ask.IsZero() {
		return decimal.Zero, false
	}

	offset := makerOffsetBps.Div(decimal.NewFromInt(10000))

	var price decimal.Decimal
	switch policy {
	case "best_bid":
		price = bid.Mul(decimal.NewFromInt(1).Sub(offset))
	case "best_ask":
		price = ask.Mul(decimal.NewFromInt(1).Add(offset))
	case "mid":
		price = bid.Add(ask).Div(decimal.NewFromInt(2))
	default:
		return decimal.Zero, false
	}

	if price.IsZero() || price.IsNegative() {
		return decimal.Zero, false
	}
	return price.Round(int32(priceDecimals)), true
}

// computePnL returns the realized PnL and the price-slippage that produced
// it for closing entrySide's position at exitPrice. Slippage is exitPrice's
// deviation from entryPrice, signed in the position's favor (positive when
// the move profits the position).
func computePnL(entrySide core.Side, entryPrice, entryQty, exitPrice decimal.Decimal) (pnl, slippage decimal.Decimal) {
	diff := exitPrice.Sub(entryPrice)
	if entrySide == core.SideSell {
		diff = diff.Neg()
	}
	pnl = diff.Mul(entryQty)
	slippage = diff
	return pnl, slippage
}
