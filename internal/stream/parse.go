package stream

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"market_maker/internal/core"
	"market_maker/internal/filter"

	"github.com/shopspring/decimal"
)

// frame is the envelope shared by every Bybit v5 public WS message: either a
// subscription op response (Success/Op/RetMsg set) or a data push (Topic set).
type frame struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Success *bool           `json:"success"`
	RetMsg  string          `json:"ret_msg"`
	Op      string          `json:"op"`
	ReqID   string          `json:"req_id"`
}

// isSubscriptionResponse reports whether f is an ack/nack for a subscribe
// request rather than a data push.
func (f frame) isSubscriptionResponse() bool {
	return f.Success != nil
}

// topicSymbol extracts the trailing symbol from a "prefix.SYMBOL" or
// "prefix.depth.SYMBOL" topic string.
func topicSymbol(topic string) string {
	parts := strings.Split(topic, ".")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

func topicPrefix(topic string) string {
	idx := strings.Index(topic, ".")
	if idx < 0 {
		return topic
	}
	return topic[:idx]
}

// tickerPayload covers the superset of fields Bybit's linear and inverse
// tickers topics emit; alternate field names across the two categories are
// tried in parseTickerPayload below.
type tickerPayload struct {
	Symbol          string `json:"symbol"`
	LastPrice       string `json:"lastPrice"`
	MarkPrice       string `json:"markPrice"`
	Bid1Price       string `json:"bid1Price"`
	BidPrice        string `json:"bidPrice"`
	Ask1Price       string `json:"ask1Price"`
	AskPrice        string `json:"askPrice"`
	Turnover24h     string `json:"turnover24h"`
	FundingRate     string `json:"fundingRate"`
	NextFundingTime string `json:"nextFundingTime"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseDecimalField(raw string) *decimal.Decimal {
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil
	}
	return &d
}

// parseTickerPayload normalizes a tickers.* data payload into an
// InstantTicker fragment ready for FusionStore.Merge. Unset fields stay nil
// so the null-preserving merge leaves the store's existing value untouched.
func parseTickerPayload(category core.Category, raw json.RawMessage, now time.Time) *core.InstantTicker {
	var p tickerPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Symbol == "" {
		return nil
	}

	t := &core.InstantTicker{
		Symbol:      p.Symbol,
		Category:    category,
		LastPrice:   parseDecimalField(p.LastPrice),
		MarkPrice:   parseDecimalField(p.MarkPrice),
		BestBid:     parseDecimalField(firstNonEmpty(p.Bid1Price, p.BidPrice)),
		BestAsk:     parseDecimalField(firstNonEmpty(p.Ask1Price, p.AskPrice)),
		Turnover24h: parseDecimalField(p.Turnover24h),
		FundingRate: parseDecimalField(p.FundingRate),
	}

	if p.NextFundingTime != "" {
		if parsed, ok := filter.NormalizeFundingTime(p.NextFundingTime, now); ok {
			t.NextFundingTime = &parsed
		}
	}

	return t
}

func subscriptionTopics(symbols []string) []string {
	topics := make([]string, 0, len(symbols)*3)
	for _, sym := range symbols {
		topics = append(topics,
			"tickers."+sym,
			"publicTrade."+sym,
			"orderbook.1."+sym,
		)
	}
	return topics
}

func formatSubscribeFrame(reqID string, topics []string) map[string]interface{} {
	frame := map[string]interface{}{
		"op":   "subscribe",
		"args": topics,
	}
	if reqID != "" {
		frame["req_id"] = reqID
	}
	return frame
}

func parseNextReqID(seq int64) string {
	return strconv.FormatInt(seq, 10)
}
