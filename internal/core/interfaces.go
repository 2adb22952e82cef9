package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ILogger is the narrow logging interface implemented by both pkg/logging's
// zap-backed logger and internal/logging's fallback logger.
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

// IMarketDataClient is C1's contract: paginated REST fetch of funding,
// volume, spread, and instrument data.
type IMarketDataClient interface {
	// FetchFundingMap iterates the tickers endpoint for category, returning
	// funding rate / turnover / next funding time per symbol.
	FetchFundingMap(ctx context.Context, category Category) (map[string]FundingSnapshot, error)

	// FetchSpreads returns spread fraction per requested symbol, falling
	// back to a unary call for any symbol not found during pagination.
	FetchSpreads(ctx context.Context, category Category, symbols []string) (map[string]decimal.Decimal, error)

	// FetchInstrumentTicker seeds a single InstantTicker from REST, used
	// when no streaming tick has arrived yet.
	FetchInstrumentTicker(ctx context.Context, category Category, symbol string) (*InstantTicker, error)

	// FetchUniverse returns every tradeable symbol and its category.
	FetchUniverse(ctx context.Context, category Category) (map[string]Category, error)

	// GetSymbolPrecision returns price/quantity decimal precision sourced
	// from instruments-info.
	GetSymbolPrecision(ctx context.Context, category Category, symbol string) (priceDecimals, qtyDecimals int, err error)
}

// PlaceOrderRequest is the order-client's order-placement contract.
type PlaceOrderRequest struct {
	Symbol        string
	Category      Category
	Side          Side
	OrderType     string // "Limit" | "Market"
	Qty           decimal.Decimal
	Price         decimal.Decimal // zero for market orders
	TimeInForce   string          // "PostOnly" | "GTC" | "IOC"
	ReduceOnly    bool
	ClientOrderID string
}

// OrderStatus mirrors the subset of Bybit v5 order states the turbo
// controller needs to observe.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "New"
	OrderStatusPartiallyFilled OrderStatus = "PartiallyFilled"
	OrderStatusFilled          OrderStatus = "Filled"
	OrderStatusCancelled       OrderStatus = "Cancelled"
	OrderStatusRejected        OrderStatus = "Rejected"
)

// Order is the result of a successful PlaceOrder/GetOrderStatus call.
type Order struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          Side
	Status        OrderStatus
	Price         decimal.Decimal
	Qty           decimal.Decimal
	FilledQty     decimal.Decimal
	AvgFillPrice  decimal.Decimal
	CreatedAt     time.Time
}

// IOrderClient is the narrow order-placement transport consumed by the
// turbo controller.
type IOrderClient interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOrderStatus(ctx context.Context, symbol, orderID string) (*Order, error)

	// GetEquity returns current account equity, used for entry sizing.
	// Must never be hard-coded by the caller.
	GetEquity(ctx context.Context) (decimal.Decimal, error)
}

// IVolatilityCache is C2's external collaborator.
type IVolatilityCache interface {
	// Get returns the cached realized-volatility fraction for symbol and
	// whether it is present and not expired.
	Get(symbol string) (vol float64, ok bool)
}

// ActiveSetSubscriber is notified by C3 exactly once per refresh cycle in
// which membership actually changed.
type ActiveSetSubscriber interface {
	OnActiveSetChange(linearSymbols, inverseSymbols []string, fundingData OriginalFundingMap)
}

// TickerUpdateSubscriber is notified by C4 on every normalized ticker
// update.
type TickerUpdateSubscriber interface {
	OnTickerUpdate(t *InstantTicker)
}

// Alerter publishes structured notifications to external channels (Slack,
// etc.) beyond plain log lines.
type Alerter interface {
	Alert(ctx context.Context, title, message string, fields map[string]string)
}

// RateLimiter is the shared token-bucket acquired before every outbound
// REST call.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// IHealthMonitor aggregates liveness checks across components for the
// process health endpoint.
type IHealthMonitor interface {
	Register(component string, check func() error)
	GetStatus() map[string]string
	IsHealthy() bool
}
