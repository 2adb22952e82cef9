package turbo

import (
	"testing"

	"market_maker/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestDetermineSide_PositiveFundingGoesShort(t *testing.T) {
	assert.Equal(t, core.SideSell, DetermineSide(dec("0.0005"), nil))
}

func TestDetermineSide_NegativeFundingGoesLong(t *testing.T) {
	assert.Equal(t, core.SideBuy, DetermineSide(dec("-0.0005"), nil))
}

func TestDetermineSide_ZeroFundingFallsBackToScore(t *testing.T) {
	negative := -1.0
	positive := 1.0
	assert.Equal(t, core.SideSell, DetermineSide(decimal.Zero, &negative))
	assert.Equal(t, core.SideBuy, DetermineSide(decimal.Zero, &positive))
	assert.Equal(t, core.SideBuy, DetermineSide(decimal.Zero, nil))
}

func TestEntryQuantity_RejectsBelowMinNotional(t *testing.T) {
	_, ok := EntryQuantity(dec("1000"), dec("0.01"), dec("5"), dec("50000"), dec("50"), 3)
	assert.False(t, ok)
}

func TestEntryQuantity_SizesFromEquityFractionAndLeverage(t *testing.T) {
	qty, ok := EntryQuantity(dec("10000"), dec("0.1"), dec("5"), dec("50000"), dec("50"), 3)
	require := assert.New(t)
	require.True(ok)
	// notional = 10000*0.1 = 1000, exposure = 1000*5 = 5000, qty = 5000/50000 = 0.1
	require.True(qty.Equal(dec("0.1")), "got %s", qty.String())
}

func TestEntryQuantity_RejectsZeroPrice(t *testing.T) {
	_, ok := EntryQuantity(dec("10000"), dec("0.1"), dec("5"), decimal.Zero, dec("50"), 3)
	assert.False(t, ok)
}

func TestEntryPrice_BestBidShadesBelowTouch(t *testing.T) {
	price, ok := EntryPrice("best_bid", dec("100"), dec("100.2"), dec("10"), 2)
	require := assert.New(t)
	require.True(ok)
	require.True(price.LessThan(dec("100")))
}

func TestEntryPrice_BestAskShadesAboveTouch(t *testing.T) {
	price, ok := EntryPrice("best_ask", dec("100"), dec("100.2"), dec("10"), 2)
	require := assert.New(t)
	require.True(ok)
	require.True(price.GreaterThan(dec("100.2")))
}

func TestEntryPrice_MidSplitsTheDifference(t *testing.T) {
	price, ok := EntryPrice("mid", dec("100"), dec("100.2"), decimal.Zero, 2)
	require := assert.New(t)
	require.True(ok)
	require.True(price.Equal(dec("100.1")))
}

func TestEntryPrice_RejectsUnknownPolicy(t *testing.T) {
	_, ok := EntryPrice("worst_bid", dec("100"), dec("100.2"), dec("10"), 2)
	assert.False(t, ok)
}

func TestComputePnL_LongProfitsWhenPriceRises(t *testing.T) {
	pnl, slippage := computePnL(core.SideBuy, dec("100"), dec("2"), dec("101"))
	assert.True(t, pnl.Equal(dec("2")), "got %s", pnl.String())
	assert.True(t, slippage.Equal(dec("1")))
}

func TestComputePnL_ShortProfitsWhenPriceFalls(t *testing.T) {
	pnl, _ := computePnL(core.SideSell, dec("100"), dec("2"), dec("98"))
	assert.True(t, pnl.Equal(dec("4")), "got %s", pnl.String())
}
