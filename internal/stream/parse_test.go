package stream

import (
	"encoding/json"
	"testing"
	"time"

	"market_maker/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTickerPayload_ParsesKnownFields(t *testing.T) {
	raw := json.RawMessage(`{
		"symbol": "BTCUSDT",
		"lastPrice": "45000.5",
		"markPrice": "45001.0",
		"bid1Price": "45000.0",
		"ask1Price": "45002.0",
		"turnover24h": "123456789",
		"fundingRate": "0.0001",
		"nextFundingTime": "1700000000000"
	}`)

	ticker := parseTickerPayload(core.CategoryLinear, raw, time.Unix(0, 0))
	require.NotNil(t, ticker)
	assert.Equal(t, "BTCUSDT", ticker.Symbol)
	require.NotNil(t, ticker.LastPrice)
	assert.Equal(t, "45000.5", ticker.LastPrice.String())
	require.NotNil(t, ticker.BestBid)
	require.NotNil(t, ticker.BestAsk)
	require.NotNil(t, ticker.NextFundingTime)
}

func TestParseTickerPayload_AcceptsAlternateBidAskFieldNames(t *testing.T) {
	raw := json.RawMessage(`{
		"symbol": "BTCUSD",
		"bidPrice": "45000.0",
		"askPrice": "45002.0"
	}`)

	ticker := parseTickerPayload(core.CategoryInverse, raw, time.Now())
	require.NotNil(t, ticker)
	require.NotNil(t, ticker.BestBid)
	require.NotNil(t, ticker.BestAsk)
}

func TestParseTickerPayload_MissingSymbolReturnsNil(t *testing.T) {
	raw := json.RawMessage(`{"lastPrice": "100"}`)
	assert.Nil(t, parseTickerPayload(core.CategoryLinear, raw, time.Now()))
}

func TestTopicSymbolAndPrefix(t *testing.T) {
	assert.Equal(t, "BTCUSDT", topicSymbol("tickers.BTCUSDT"))
	assert.Equal(t, "BTCUSDT", topicSymbol("orderbook.1.BTCUSDT"))
	assert.Equal(t, "tickers", topicPrefix("tickers.BTCUSDT"))
	assert.Equal(t, "orderbook", topicPrefix("orderbook.1.BTCUSDT"))
}

func TestSubscriptionTopicsListsAllThreeTopicsPerSymbol(t *testing.T) {
	topics := subscriptionTopics([]string{"BTCUSDT", "ETHUSDT"})
	assert.ElementsMatch(t, []string{
		"tickers.BTCUSDT", "publicTrade.BTCUSDT", "orderbook.1.BTCUSDT",
		"tickers.ETHUSDT", "publicTrade.ETHUSDT", "orderbook.1.ETHUSDT",
	}, topics)
}
