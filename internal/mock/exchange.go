// Package mock provides a plain in-memory core.IOrderClient used by
// turbo's tests.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"market_maker/internal/core"

	"github.com/shopspring/decimal"
)

// OrderClient implements core.IOrderClient entirely in memory: no network
// calls, deterministic order IDs, optional scripted fills.
type OrderClient struct {
	mu             sync.RWMutex
	name           string
	orders         map[string]*core.Order
	clientOrderMap map[string]string
	orderIDCounter int64
	equity         decimal.Decimal

	// placeErr, when set, is returned by every PlaceOrder call.
	placeErr error
}

// NewOrderClient builds an OrderClient seeded with equity for sizing checks.
func NewOrderClient(name string, equity decimal.Decimal) *OrderClient {
	return &OrderClient{
		name:           name,
		orders:         make(map[string]*core.Order),
		clientOrderMap: make(map[string]string),
		equity:         equity,
	}
}

// SetPlaceOrderError makes every subsequent PlaceOrder call fail with err.
func (m *OrderClient) SetPlaceOrderError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placeErr = err
}

// PlaceOrder records the order. Duplicate ClientOrderID returns the
// previously placed order rather than creating a new one.
func (m *OrderClient) PlaceOrder(ctx context.Context, req core.PlaceOrderRequest) (*core.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.placeErr != nil {
		return nil, m.placeErr
	}

	if req.ClientOrderID != "" {
		if existingID, exists := m.clientOrderMap[req.ClientOrderID]; exists {
			if existing, ok := m.orders[existingID]; ok {
				return existing, nil
			}
		}
	}

	m.orderIDCounter++
	id := fmt.Sprintf("mock-%d", m.orderIDCounter)

	status := core.OrderStatusNew
	filled := decimal.Zero
	if req.OrderType == "Market" {
		status = core.OrderStatusFilled
		filled = req.Qty
	}

	order := &core.Order{
		OrderID:       id,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Status:        status,
		Price:         req.Price,
		Qty:           req.Qty,
		FilledQty:     filled,
		AvgFillPrice:  req.Price,
		CreatedAt:     time.Now(),
	}

	m.orders[id] = order
	if req.ClientOrderID != "" {
		m.clientOrderMap[req.ClientOrderID] = id
	}

	return order, nil
}

// CancelOrder marks a resting order cancelled.
func (m *OrderClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, exists := m.orders[orderID]
	if !exists {
		return fmt.Errorf("order not found: %s", orderID)
	}
	if order.Status == core.OrderStatusFilled || order.Status == core.OrderStatusCancelled {
		return fmt.Errorf("cannot cancel order in status %s", order.Status)
	}
	order.Status = core.OrderStatusCancelled
	return nil
}

// GetOrderStatus returns the current recorded state of orderID.
func (m *OrderClient) GetOrderStatus(ctx context.Context, symbol, orderID string) (*core.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, exists := m.orders[orderID]
	if !exists {
		return nil, fmt.Errorf("order not found: %s", orderID)
	}
	return order, nil
}

// GetEquity returns the configured mock equity.
func (m *OrderClient) GetEquity(ctx context.Context) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.equity, nil
}

// SimulateFill fills orderID at avgPrice, as if a maker order crossed.
func (m *OrderClient) SimulateFill(orderID string, filledQty, avgPrice decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, exists := m.orders[orderID]
	if !exists {
		return
	}
	order.Status = core.OrderStatusFilled
	order.FilledQty = filledQty
	order.AvgFillPrice = avgPrice
}
