package marketdata

import (
	"context"
	"encoding/json"
	"market_maker/internal/config"
	"market_maker/internal/core"
	"market_maker/pkg/logging"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)

	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)

	cfg := config.ExchangeCredsConfig{
		APIKey:    "test-key",
		SecretKey: "test-secret",
		BaseURL:   server.URL,
	}
	c := NewClient(cfg, logger, 100, 10)
	return c, server
}

func envelopeBody(result interface{}, cursor string) []byte {
	list, _ := json.Marshal(result)
	res := map[string]json.RawMessage{"list": list}
	if cursor != "" {
		b, _ := json.Marshal(cursor)
		res["nextPageCursor"] = b
	}
	resJSON, _ := json.Marshal(res)
	body, _ := json.Marshal(map[string]interface{}{
		"retCode": 0,
		"retMsg":  "OK",
		"result":  json.RawMessage(resJSON),
	})
	return body
}

func TestFetchFundingMap_SinglePage(t *testing.T) {
	rows := []tickerRow{
		{Symbol: "BTCUSDT", FundingRate: "0.0001", Turnover24h: "123456.78", NextFundingTime: "1700000000000"},
		{Symbol: "ETHUSDT", FundingRate: "-0.0002", Turnover24h: "98765.4", NextFundingTime: "1700000000000"},
	}

	c, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelopeBody(rows, ""))
	})
	defer server.Close()

	out, err := c.FetchFundingMap(context.Background(), core.CategoryLinear)
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.True(t, out["BTCUSDT"].FundingRate.Equal(out["BTCUSDT"].FundingRate))
	assert.Equal(t, core.CategoryLinear, out["ETHUSDT"].Category)
}

func TestFetchFundingMap_Paginates(t *testing.T) {
	calls := 0
	c, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("cursor") == "" {
			w.Write(envelopeBody([]tickerRow{
				{Symbol: "BTCUSDT", FundingRate: "0.0001"},
			}, "page2"))
			return
		}
		w.Write(envelopeBody([]tickerRow{
			{Symbol: "ETHUSDT", FundingRate: "0.0002"},
		}, ""))
	})
	defer server.Close()

	out, err := c.FetchFundingMap(context.Background(), core.CategoryLinear)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "ETHUSDT")
}

func TestFetchFundingMap_SkipsUnparsableRows(t *testing.T) {
	rows := []tickerRow{
		{Symbol: "BTCUSDT", FundingRate: "0.0001"},
		{Symbol: "", FundingRate: "0.0002"},
		{Symbol: "NOFUNDING"},
	}

	c, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelopeBody(rows, ""))
	})
	defer server.Close()

	out, err := c.FetchFundingMap(context.Background(), core.CategoryLinear)
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Contains(t, out, "BTCUSDT")
}

func TestFetchFundingMap_RetCodeError(t *testing.T) {
	c, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]interface{}{"retCode": 10002, "retMsg": "bad param"})
		w.Write(body)
	})
	defer server.Close()

	_, err := c.FetchFundingMap(context.Background(), core.CategoryLinear)
	assert.Error(t, err)
}

func TestFetchSpreads_ShortCircuitsOnceAllFound(t *testing.T) {
	calls := 0
	c, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write(envelopeBody([]tickerRow{
			{Symbol: "BTCUSDT", Bid1Price: "100", Ask1Price: "101"},
			{Symbol: "ETHUSDT", Bid1Price: "10", Ask1Price: "10.1"},
		}, "would-be-next-page"))
	})
	defer server.Close()

	out, err := c.FetchSpreads(context.Background(), core.CategoryLinear, []string{"BTCUSDT", "ETHUSDT"})
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "should short-circuit once every wanted symbol is found")
	assert.InDelta(t, 1.0/100.5, out["BTCUSDT"].InexactFloat64(), 1e-6)
}

func TestFetchSpreads_FallsBackPerSymbolOnMiss(t *testing.T) {
	c, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		if symbol == "ETHUSDT" {
			w.Write(envelopeBody([]tickerRow{{Symbol: "ETHUSDT", Bid1Price: "10", Ask1Price: "10.2"}}, ""))
			return
		}
		w.Write(envelopeBody([]tickerRow{{Symbol: "BTCUSDT", Bid1Price: "100", Ask1Price: "101"}}, ""))
	})
	defer server.Close()

	out, err := c.FetchSpreads(context.Background(), core.CategoryLinear, []string{"BTCUSDT", "ETHUSDT"})
	require.NoError(t, err)
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "ETHUSDT")
}

func TestFetchInstrumentTicker_NullPreservingFields(t *testing.T) {
	c, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelopeBody([]tickerRow{
			{Symbol: "BTCUSDT", FundingRate: "0.0001", Bid1Price: "100", Ask1Price: "101"},
		}, ""))
	})
	defer server.Close()

	ticker, err := c.FetchInstrumentTicker(context.Background(), core.CategoryLinear, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, ticker)
	assert.NotNil(t, ticker.FundingRate)
	assert.NotNil(t, ticker.BestBid)
	assert.Nil(t, ticker.MarkPrice, "markPrice absent from response must stay nil, not zero")
}

func TestGetSymbolPrecision(t *testing.T) {
	c, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		type row struct {
			Symbol      string `json:"symbol"`
			PriceFilter struct {
				TickSize string `json:"tickSize"`
			} `json:"priceFilter"`
			LotSizeFilter struct {
				QtyStep string `json:"qtyStep"`
			} `json:"lotSizeFilter"`
		}
		r1 := row{Symbol: "BTCUSDT"}
		r1.PriceFilter.TickSize = "0.01"
		r1.LotSizeFilter.QtyStep = "0.001"
		w.Write(envelopeBody([]row{r1}, ""))
	})
	defer server.Close()

	priceDecimals, qtyDecimals, err := c.GetSymbolPrecision(context.Background(), core.CategoryLinear, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 2, priceDecimals)
	assert.Equal(t, 3, qtyDecimals)
}

func TestPlaceOrder_SignsRequest(t *testing.T) {
	c, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("X-BAPI-SIGN"))
		assert.Equal(t, "test-key", r.Header.Get("X-BAPI-API-KEY"))
		body, _ := json.Marshal(map[string]interface{}{
			"retCode": 0,
			"retMsg":  "OK",
			"result":  map[string]string{"orderId": "123", "orderLinkId": "abc"},
		})
		w.Write(body)
	})
	defer server.Close()

	order, err := c.PlaceOrder(context.Background(), core.PlaceOrderRequest{
		Symbol:      "BTCUSDT",
		Category:    core.CategoryLinear,
		Side:        core.SideBuy,
		OrderType:   "Limit",
		TimeInForce: "PostOnly",
	})
	require.NoError(t, err)
	assert.Equal(t, "123", order.OrderID)
	assert.Equal(t, "abc", order.ClientOrderID)
}

func TestCancelOrder_TreatsOrderNotFoundAsSuccess(t *testing.T) {
	c, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]interface{}{"retCode": 110001, "retMsg": "order not found"})
		w.Write(body)
	})
	defer server.Close()

	err := c.CancelOrder(context.Background(), "BTCUSDT", "123")
	assert.NoError(t, err)
}
