package stream

import (
	"testing"

	"market_maker/internal/core"
	"market_maker/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) core.ILogger {
	t.Helper()
	l, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)
	return l
}

func newTestConnection(t *testing.T) *Connection {
	store := NewFusionStore(0)
	return NewConnection(core.CategoryLinear, "wss://example.invalid/v5/public/linear",
		[]string{"BTCUSDT"}, store, newTestLogger(t), nil, 0)
}

func TestConnection_HandleMessage_MergesTickerIntoStore(t *testing.T) {
	c := newTestConnection(t)
	c.handleMessage([]byte(`{"topic":"tickers.BTCUSDT","type":"snapshot","data":{"symbol":"BTCUSDT","lastPrice":"45000"}}`))

	ticker, ok := c.store.Get("BTCUSDT")
	require.True(t, ok)
	require.NotNil(t, ticker.LastPrice)
	assert.Equal(t, "45000", ticker.LastPrice.String())
}

func TestConnection_HandleMessage_MarksStreamDataOnTradeTopic(t *testing.T) {
	c := newTestConnection(t)
	c.handleMessage([]byte(`{"topic":"publicTrade.BTCUSDT","data":[{"s":"BTCUSDT","p":"45000"}]}`))

	ticker, ok := c.store.Get("BTCUSDT")
	require.True(t, ok)
	assert.True(t, ticker.HasStreamData)
}

func TestConnection_HandleMessage_MarksStreamDataOnOrderbookTopic(t *testing.T) {
	c := newTestConnection(t)
	c.handleMessage([]byte(`{"topic":"orderbook.1.BTCUSDT","data":{"s":"BTCUSDT"}}`))

	ticker, ok := c.store.Get("BTCUSDT")
	require.True(t, ok)
	assert.True(t, ticker.HasStreamData)
}

func TestConnection_SubscribeTurbo_FailsFastWhenDisconnected(t *testing.T) {
	c := newTestConnection(t)
	err := c.SubscribeTurbo("ETHUSDT")
	assert.Error(t, err)
}

func TestConnection_HandleSubscriptionResponse_DoesNotPanicOnFailure(t *testing.T) {
	c := newTestConnection(t)
	success := false
	assert.NotPanics(t, func() {
		c.handleSubscriptionResponse(frame{Success: &success, RetMsg: "invalid topic"})
	})
}

func TestConnection_OnConnected_DoesNotPanicWhenSendFails(t *testing.T) {
	c := newTestConnection(t)
	// onConnected attempts a real send over an unestablished websocket
	// connection, which fails and degrades the state rather than panicking.
	assert.NotPanics(t, func() {
		c.onConnected()
	})
	state := c.State()
	assert.True(t, state == StateSubscribed || state == StateDegraded)
}
