package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"market_maker/internal/core"
	apperrors "market_maker/pkg/errors"
	"market_maker/pkg/retry"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type placeOrderResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

// PlaceOrder submits a single order and retries once on a transient retCode
// before giving up.
func (c *Client) PlaceOrder(ctx context.Context, req core.PlaceOrderRequest) (*core.Order, error) {
	body := map[string]interface{}{
		"category":    string(req.Category),
		"symbol":      req.Symbol,
		"side":        string(req.Side),
		"orderType":   req.OrderType,
		"qty":         req.Qty.String(),
		"timeInForce": req.TimeInForce,
	}
	if req.OrderType != "Market" && !req.Price.IsZero() {
		body["price"] = req.Price.String()
	}
	if req.ReduceOnly {
		body["reduceOnly"] = true
	}
	if req.ClientOrderID != "" {
		body["orderLinkId"] = req.ClientOrderID
	}

	var result placeOrderResult
	err := retry.Do(ctx, onceTransientPolicy, apperrors.IsTransient, func() error {
		raw, err := c.post(ctx, "/v5/order/create", body)
		if err != nil {
			if errors.Is(err, apperrors.ErrDuplicateOrder) && req.ClientOrderID != "" {
				existing, fetchErr := c.GetOrderStatus(ctx, req.Symbol, "")
				if fetchErr == nil {
					result = placeOrderResult{OrderID: existing.OrderID, OrderLinkID: existing.ClientOrderID}
					return nil
				}
			}
			return err
		}
		return json.Unmarshal(raw, &result)
	})
	if err != nil {
		return nil, err
	}

	return &core.Order{
		OrderID:       result.OrderID,
		ClientOrderID: result.OrderLinkID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Status:        core.OrderStatusNew,
		Price:         req.Price,
		Qty:           req.Qty,
		CreatedAt:     time.Now(),
	}, nil
}

// onceTransientPolicy caps retries at a single extra attempt: retryable
// codes get one more try, everything else is terminal.
var onceTransientPolicy = retry.RetryPolicy{
	MaxAttempts:    2,
	InitialBackoff: retry.DefaultPolicy.InitialBackoff,
	MaxBackoff:     retry.DefaultPolicy.MaxBackoff,
}

// CancelOrder cancels a resting order; a 110001 "order not found" response is
// treated as success (already gone).
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	body := map[string]interface{}{
		"symbol":  symbol,
		"orderId": orderID,
	}
	_, err := c.post(ctx, "/v5/order/cancel", body)
	if err != nil {
		var up *apperrors.UpstreamError
		if errors.As(err, &up) && up.RetCode == 110001 {
			return nil
		}
		return err
	}
	return nil
}

type orderStatusRow struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	Qty         string `json:"qty"`
	OrderStatus string `json:"orderStatus"`
	CumExecQty  string `json:"cumExecQty"`
	AvgPrice    string `json:"avgPrice"`
	CreatedTime string `json:"createdTime"`
}

var bybitOrderStatus = map[string]core.OrderStatus{
	"Created":         core.OrderStatusNew,
	"New":             core.OrderStatusNew,
	"PartiallyFilled": core.OrderStatusPartiallyFilled,
	"Filled":          core.OrderStatusFilled,
	"Cancelled":       core.OrderStatusCancelled,
	"Rejected":        core.OrderStatusRejected,
}

// GetOrderStatus looks up a single order by id (or by symbol alone, used by
// PlaceOrder's duplicate-order recovery path).
func (c *Client) GetOrderStatus(ctx context.Context, symbol, orderID string) (*core.Order, error) {
	params := map[string]string{"category": "linear", "symbol": symbol}
	if orderID != "" {
		params["orderId"] = orderID
	}

	res, err := c.get(ctx, "/v5/order/realtime", params)
	if err != nil {
		return nil, err
	}

	var rows []orderStatusRow
	if len(res.List) > 0 {
		if err := json.Unmarshal(res.List, &rows); err != nil {
			return nil, err
		}
	}
	if len(rows) == 0 {
		return nil, apperrors.ErrOrderNotFound
	}

	row := rows[0]
	price, _ := parseDecimal(row.Price)
	qty, _ := parseDecimal(row.Qty)
	filled, _ := parseDecimal(row.CumExecQty)
	avgPrice, _ := parseDecimal(row.AvgPrice)
	createdMs, _ := strconv.ParseInt(row.CreatedTime, 10, 64)

	status, ok := bybitOrderStatus[row.OrderStatus]
	if !ok {
		status = core.OrderStatusNew
	}

	return &core.Order{
		OrderID:       row.OrderID,
		ClientOrderID: row.OrderLinkID,
		Symbol:        row.Symbol,
		Side:          core.Side(row.Side),
		Status:        status,
		Price:         price,
		Qty:           qty,
		FilledQty:     filled,
		AvgFillPrice:  avgPrice,
		CreatedAt:     time.UnixMilli(createdMs),
	}, nil
}

type walletRow struct {
	TotalEquity string `json:"totalEquity"`
}

// GetEquity returns unified-account total equity in USD, used to size entry
// quantity.
func (c *Client) GetEquity(ctx context.Context) (decimal.Decimal, error) {
	res, err := c.get(ctx, "/v5/account/wallet-balance", map[string]string{"accountType": "UNIFIED"})
	if err != nil {
		return decimal.Zero, err
	}

	var rows []walletRow
	if len(res.List) > 0 {
		if err := json.Unmarshal(res.List, &rows); err != nil {
			return decimal.Zero, err
		}
	}
	if len(rows) == 0 {
		return decimal.Zero, errors.New("marketdata: empty wallet-balance list")
	}

	equity, _ := parseDecimal(rows[0].TotalEquity)
	return equity, nil
}
