// Package orderid generates deterministic client order IDs for turbo's
// entry/retry path, so a retried PlaceOrder call after a timeout lands on
// the same ID as the original attempt instead of opening a duplicate.
package orderid

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// GenerateDeterministicOrderID derives a ClientOrderID from strategyID,
// price, and side only, so calling it twice with identical inputs
// (e.g. a retried entry at the same funding cycle) returns the same ID.
func GenerateDeterministicOrderID(strategyID string, price decimal.Decimal, side string, priceDecimals int) string {
	priceInt := price.Mul(decimal.NewFromFloat(10).Pow(decimal.NewFromInt(int64(priceDecimals)))).Round(0).IntPart()

	sideCode := "B"
	if side == "SELL" {
		sideCode = "S"
	}

	return fmt.Sprintf("%d_%s_%s", priceInt, sideCode, strategyID)
}

// AddBrokerPrefix prepends exchange-specific prefixes required for
// commission/referral tracking, truncating to the exchange's max length.
func AddBrokerPrefix(exchangeName, clientOID string) string {
	switch strings.ToLower(exchangeName) {
	case "binance":
		prefix := "x-zdfVM8vY"
		return truncateID(prefix+clientOID, 36)
	case "gate":
		prefix := "t-"
		return truncateID(prefix+clientOID, 30)
	default:
		return clientOID
	}
}

func truncateID(id string, maxLen int) string {
	if len(id) > maxLen {
		return id[:maxLen]
	}
	return id
}

// ParseCompactOrderID reconstructs price and side from a ClientOrderID
// produced by GenerateDeterministicOrderID, stripping any broker prefix.
func ParseCompactOrderID(clientOID string, priceDecimals int) (decimal.Decimal, string, bool) {
	oid := clientOID
	if strings.HasPrefix(oid, "x-zdfVM8vY") {
		oid = strings.TrimPrefix(oid, "x-zdfVM8vY")
	} else if strings.HasPrefix(oid, "t-") {
		oid = strings.TrimPrefix(oid, "t-")
	}

	parts := strings.Split(oid, "_")
	if len(parts) != 3 {
		return decimal.Zero, "", false
	}

	priceInt, err := decimal.NewFromString(parts[0])
	if err != nil {
		return decimal.Zero, "", false
	}

	price := priceInt.Div(decimal.NewFromFloat(10).Pow(decimal.NewFromInt(int64(priceDecimals))))

	side := "BUY"
	if parts[1] == "S" {
		side = "SELL"
	}

	return price, side, true
}
