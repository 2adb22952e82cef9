package marketdata

import (
	"context"
	"encoding/json"
	"market_maker/internal/core"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type tickerRow struct {
	Symbol          string `json:"symbol"`
	FundingRate     string `json:"fundingRate"`
	Turnover24h     string `json:"turnover24h"`
	NextFundingTime string `json:"nextFundingTime"`
	Bid1Price       string `json:"bid1Price"`
	Ask1Price       string `json:"ask1Price"`
	MarkPrice       string `json:"markPrice"`
	LastPrice       string `json:"lastPrice"`
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func parseFundingTimeMs(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

// FetchFundingMap iterates /v5/market/tickers for category until the cursor
// is exhausted, collecting fundingRate/turnover24h/nextFundingTime per
// symbol.
func (c *Client) FetchFundingMap(ctx context.Context, category core.Category) (map[string]core.FundingSnapshot, error) {
	out := make(map[string]core.FundingSnapshot)
	cursor := ""
	page := 0

	for {
		page++
		params := map[string]string{"category": string(category), "limit": "1000"}
		if cursor != "" {
			params["cursor"] = cursor
		}

		res, err := c.get(ctx, "/v5/market/tickers", params)
		if err != nil {
			return nil, err
		}

		var rows []tickerRow
		if len(res.List) > 0 {
			if err := json.Unmarshal(res.List, &rows); err != nil {
				return nil, err
			}
		}

		for _, row := range rows {
			if row.Symbol == "" || row.FundingRate == "" {
				continue
			}
			rate, ok := parseDecimal(row.FundingRate)
			if !ok {
				continue
			}
			turnover, _ := parseDecimal(row.Turnover24h)
			nextFunding, _ := parseFundingTimeMs(row.NextFundingTime)

			out[row.Symbol] = core.FundingSnapshot{
				Symbol:          row.Symbol,
				Category:        category,
				FundingRate:     rate,
				Turnover24h:     turnover,
				NextFundingTime: nextFunding,
			}
		}

		if res.NextPageCursor == "" {
			break
		}
		cursor = res.NextPageCursor
	}

	return out, nil
}

// FetchSpreads pages through tickers collecting bid/ask for the requested
// symbols, short-circuiting once every symbol has been found, then falls
// back to a unary per-symbol call for whatever pagination missed.
func (c *Client) FetchSpreads(ctx context.Context, category core.Category, symbols []string) (map[string]decimal.Decimal, error) {
	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[s] = true
	}

	found := make(map[string]decimal.Decimal)
	cursor := ""
	page := 0

	for {
		page++
		params := map[string]string{"category": string(category), "limit": "1000"}
		if cursor != "" {
			params["cursor"] = cursor
		}

		res, err := c.get(ctx, "/v5/market/tickers", params)
		if err != nil {
			c.logger.Warn("spread pagination failed, falling back to per-symbol lookups", "category", category, "page", page, "error", err)
			break
		}

		var rows []tickerRow
		if len(res.List) > 0 {
			if err := json.Unmarshal(res.List, &rows); err != nil {
				break
			}
		}

		for _, row := range rows {
			if !wanted[row.Symbol] {
				continue
			}
			if spread, ok := spreadFromQuote(row.Bid1Price, row.Ask1Price); ok {
				found[row.Symbol] = spread
			}
		}

		if len(found) >= len(wanted) {
			break
		}
		if res.NextPageCursor == "" {
			break
		}
		cursor = res.NextPageCursor
	}

	for _, symbol := range symbols {
		if _, ok := found[symbol]; ok {
			continue
		}
		if spread, ok := c.fetchSingleSpread(ctx, category, symbol); ok {
			found[symbol] = spread
		}
	}

	return found, nil
}

// spreadFromQuote computes (ask - bid) / mid, the spread fraction, from raw
// bid/ask quote strings.
func spreadFromQuote(bidStr, askStr string) (decimal.Decimal, bool) {
	bid, ok := parseDecimal(bidStr)
	if !ok || bid.IsZero() || bid.IsNegative() {
		return decimal.Zero, false
	}
	ask, ok := parseDecimal(askStr)
	if !ok || ask.IsZero() || ask.IsNegative() {
		return decimal.Zero, false
	}
	mid := ask.Add(bid).Div(decimal.NewFromInt(2))
	if !mid.IsPositive() {
		return decimal.Zero, false
	}
	return ask.Sub(bid).Div(mid), true
}

func (c *Client) fetchSingleSpread(ctx context.Context, category core.Category, symbol string) (decimal.Decimal, bool) {
	res, err := c.get(ctx, "/v5/market/tickers", map[string]string{"category": string(category), "symbol": symbol})
	if err != nil {
		return decimal.Zero, false
	}

	var rows []tickerRow
	if len(res.List) == 0 {
		return decimal.Zero, false
	}
	if err := json.Unmarshal(res.List, &rows); err != nil || len(rows) == 0 {
		return decimal.Zero, false
	}

	return spreadFromQuote(rows[0].Bid1Price, rows[0].Ask1Price)
}

// FetchInstrumentTicker seeds a single InstantTicker from REST, used by C4
// when no streaming tick has arrived yet for a newly-watched symbol.
func (c *Client) FetchInstrumentTicker(ctx context.Context, category core.Category, symbol string) (*core.InstantTicker, error) {
	res, err := c.get(ctx, "/v5/market/tickers", map[string]string{"category": string(category), "symbol": symbol})
	if err != nil {
		return nil, err
	}

	var rows []tickerRow
	if len(res.List) > 0 {
		if err := json.Unmarshal(res.List, &rows); err != nil {
			return nil, err
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]

	t := &core.InstantTicker{
		Symbol:    symbol,
		Category:  category,
		UpdatedAt: time.Now(),
	}
	if v, ok := parseDecimal(row.FundingRate); ok {
		t.FundingRate = &v
	}
	if v, ok := parseDecimal(row.Turnover24h); ok {
		t.Turnover24h = &v
	}
	if v, ok := parseDecimal(row.Bid1Price); ok {
		t.BestBid = &v
	}
	if v, ok := parseDecimal(row.Ask1Price); ok {
		t.BestAsk = &v
	}
	if v, ok := parseDecimal(row.MarkPrice); ok {
		t.MarkPrice = &v
	}
	if v, ok := parseDecimal(row.LastPrice); ok {
		t.LastPrice = &v
	}
	if v, ok := parseFundingTimeMs(row.NextFundingTime); ok {
		t.NextFundingTime = &v
	}

	return t, nil
}

type instrumentRow struct {
	Symbol      string `json:"symbol"`
	PriceScale  string `json:"priceScale"`
	PriceFilter struct {
		TickSize string `json:"tickSize"`
	} `json:"priceFilter"`
	LotSizeFilter struct {
		QtyStep string `json:"qtyStep"`
	} `json:"lotSizeFilter"`
}

// FetchUniverse returns every tradeable symbol in category via paginated
// instruments-info.
func (c *Client) FetchUniverse(ctx context.Context, category core.Category) (map[string]core.Category, error) {
	out := make(map[string]core.Category)
	cursor := ""

	for {
		params := map[string]string{"category": string(category), "limit": "1000"}
		if cursor != "" {
			params["cursor"] = cursor
		}

		res, err := c.get(ctx, "/v5/market/instruments-info", params)
		if err != nil {
			return nil, err
		}

		var rows []instrumentRow
		if len(res.List) > 0 {
			if err := json.Unmarshal(res.List, &rows); err != nil {
				return nil, err
			}
		}
		for _, row := range rows {
			out[row.Symbol] = category
		}

		if res.NextPageCursor == "" {
			break
		}
		cursor = res.NextPageCursor
	}

	return out, nil
}

// GetSymbolPrecision returns price/quantity decimal precision sourced from
// instruments-info.
func (c *Client) GetSymbolPrecision(ctx context.Context, category core.Category, symbol string) (int, int, error) {
	res, err := c.get(ctx, "/v5/market/instruments-info", map[string]string{"category": string(category), "symbol": symbol})
	if err != nil {
		return 0, 0, err
	}

	var rows []instrumentRow
	if len(res.List) > 0 {
		if err := json.Unmarshal(res.List, &rows); err != nil {
			return 0, 0, err
		}
	}
	if len(rows) == 0 {
		return 0, 0, errSymbolNotFound(symbol)
	}

	row := rows[0]
	priceDecimals := 0
	if tickSize, ok := parseDecimal(row.PriceFilter.TickSize); ok {
		priceDecimals = int(-tickSize.Exponent())
		if priceDecimals < 0 {
			priceDecimals = 0
		}
	}
	qtyDecimals := 0
	if qtyStep, ok := parseDecimal(row.LotSizeFilter.QtyStep); ok {
		qtyDecimals = int(-qtyStep.Exponent())
		if qtyDecimals < 0 {
			qtyDecimals = 0
		}
	}

	return priceDecimals, qtyDecimals, nil
}
