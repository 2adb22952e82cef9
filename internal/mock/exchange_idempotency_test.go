package mock

import (
	"context"
	"testing"

	"market_maker/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Verifies that duplicate ClientOrderID does not create multiple orders.
func TestOrderClient_IdempotentClientOrderID(t *testing.T) {
	client := NewOrderClient("test", decimal.NewFromInt(10000))
	req := core.PlaceOrderRequest{
		Symbol:        "BTCUSDT",
		OrderType:     "Limit",
		Qty:           decimal.NewFromInt(1),
		Price:         decimal.NewFromInt(45000),
		ClientOrderID: "client-123",
	}

	order1, err := client.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	order2, err := client.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, order1.OrderID, order2.OrderID)
}

func TestOrderClient_MarketOrderFillsImmediately(t *testing.T) {
	client := NewOrderClient("test", decimal.NewFromInt(10000))
	req := core.PlaceOrderRequest{
		Symbol:    "BTCUSDT",
		OrderType: "Market",
		Qty:       decimal.NewFromInt(1),
	}

	order, err := client.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, core.OrderStatusFilled, order.Status)
	assert.True(t, order.FilledQty.Equal(req.Qty))
}

func TestOrderClient_CancelOrderAfterFillFails(t *testing.T) {
	client := NewOrderClient("test", decimal.NewFromInt(10000))
	order, err := client.PlaceOrder(context.Background(), core.PlaceOrderRequest{
		Symbol:    "BTCUSDT",
		OrderType: "Limit",
		Qty:       decimal.NewFromInt(1),
		Price:     decimal.NewFromInt(45000),
	})
	require.NoError(t, err)

	client.SimulateFill(order.OrderID, order.Qty, order.Price)

	err = client.CancelOrder(context.Background(), "BTCUSDT", order.OrderID)
	assert.Error(t, err)
}
