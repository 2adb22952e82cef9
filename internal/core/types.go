// Package core defines the domain types shared across the watchlist and
// turbo subsystems.
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category distinguishes Bybit v5 contract families.
type Category string

const (
	CategoryLinear  Category = "linear"
	CategoryInverse Category = "inverse"
)

// Side is an order side.
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// FundingSettlementInterval is the exchange's fixed funding cadence.
const FundingSettlementInterval = 8 * time.Hour

// InstantTicker is the mutable, per-symbol fused market state owned by the
// streaming fusion layer. Every field is a pointer so that an absent field
// can be distinguished from a zero value: the null-preserving merge rule
// ("latest non-null wins") depends on being able to tell "not present" from
// "present and zero".
type InstantTicker struct {
	Symbol          string
	Category        Category
	FundingRate     *decimal.Decimal
	Turnover24h     *decimal.Decimal
	BestBid         *decimal.Decimal
	BestAsk         *decimal.Decimal
	NextFundingTime *time.Time
	MarkPrice       *decimal.Decimal
	LastPrice       *decimal.Decimal
	UpdatedAt       time.Time

	// HasStreamData is true once at least one publicTrade/orderbook message
	// has been observed for this symbol; it gates turbo activation.
	HasStreamData bool
}

// Clone returns a defensive, independent copy of the ticker. Callers that
// read InstantTicker state must receive a copy, never the owned instance.
func (t *InstantTicker) Clone() *InstantTicker {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// mergeDecimal implements "latest non-null wins": `incoming` overwrites
// `existing` only when non-nil.
func mergeDecimal(existing, incoming *decimal.Decimal) *decimal.Decimal {
	if incoming != nil {
		return incoming
	}
	return existing
}

func mergeTime(existing, incoming *time.Time) *time.Time {
	if incoming != nil {
		return incoming
	}
	return existing
}

// MergeFrom applies the null-preserving merge rule in place: fields present
// (non-nil) on `update` overwrite t's fields; nil fields on `update` never
// clear an existing value.
func (t *InstantTicker) MergeFrom(update *InstantTicker) {
	if update == nil {
		return
	}
	t.FundingRate = mergeDecimal(t.FundingRate, update.FundingRate)
	t.Turnover24h = mergeDecimal(t.Turnover24h, update.Turnover24h)
	t.BestBid = mergeDecimal(t.BestBid, update.BestBid)
	t.BestAsk = mergeDecimal(t.BestAsk, update.BestAsk)
	t.NextFundingTime = mergeTime(t.NextFundingTime, update.NextFundingTime)
	t.MarkPrice = mergeDecimal(t.MarkPrice, update.MarkPrice)
	t.LastPrice = mergeDecimal(t.LastPrice, update.LastPrice)
	if update.Category != "" {
		t.Category = update.Category
	}
	t.UpdatedAt = time.Now()
	if update.HasStreamData {
		t.HasStreamData = true
	}
}

// FundingSnapshot is the subset of fields pulled from a single REST tickers
// page, used both as C1's FetchFundingMap result and as the basis for
// OriginalFundingMap snapshots.
type FundingSnapshot struct {
	Symbol          string
	Category        Category
	FundingRate     decimal.Decimal
	Turnover24h     decimal.Decimal
	NextFundingTime time.Time
}

// OriginalFundingMap is the last REST-pulled nextFundingTime per symbol,
// used as a fallback when streaming hasn't delivered that field yet.
type OriginalFundingMap map[string]time.Time

// Candidate is the 7-tuple produced by the ranking stage. Score
// is present (non-nil) only after C2 has ranked the candidate.
type Candidate struct {
	Symbol                 string
	Category               Category
	FundingRate            decimal.Decimal
	Turnover24h            decimal.Decimal
	TimeToFundingFormatted string
	TimeToFundingSeconds   float64
	SpreadFraction         *decimal.Decimal
	VolatilityFraction     *float64
	Score                  *float64
}

// ActiveSet is the ordered Top-N selection consumed by C4 (subscriptions)
// and C5 (eligibility).
type ActiveSet struct {
	Candidates []Candidate
	FundingMap OriginalFundingMap
}

// LinearSymbols returns the symbols of category linear, in ranked order.
func (a ActiveSet) LinearSymbols() []string {
	return a.symbolsOf(CategoryLinear)
}

// InverseSymbols returns the symbols of category inverse, in ranked order.
func (a ActiveSet) InverseSymbols() []string {
	return a.symbolsOf(CategoryInverse)
}

func (a ActiveSet) symbolsOf(cat Category) []string {
	out := make([]string, 0, len(a.Candidates))
	for _, c := range a.Candidates {
		if c.Category == cat {
			out = append(out, c.Symbol)
		}
	}
	return out
}

// MembershipKey returns a canonical representation of set membership,
// independent of ranking order changes that don't add or remove symbols —
// used by C3 to decide whether to fire the membership-change callback.
func (a ActiveSet) MembershipKey() string {
	symbols := make([]string, 0, len(a.Candidates))
	for _, c := range a.Candidates {
		symbols = append(symbols, string(c.Category)+":"+c.Symbol)
	}
	return joinSorted(symbols)
}

// TurboTermination enumerates the reasons a turbo loop stops.
type TurboTermination string

const (
	TerminationFundingDone      TurboTermination = "funding_done"
	TerminationMiss             TurboTermination = "miss"
	TerminationFilterBreak      TurboTermination = "filter_break"
	TerminationSortieConditions TurboTermination = "sortie_conditions"
	TerminationFatalError       TurboTermination = "fatal_error"
	TerminationShutdown         TurboTermination = "shutdown"
)

// TurboMetrics are the per-symbol counters surfaced in shutdown logs and
// aggregated into the global telemetry sink.
type TurboMetrics struct {
	Entries     int
	Exits       int
	Miss        int
	FilterBreak int
	Errors      int
	Skips       int
}

// TurboState is the per-symbol state owned exclusively by its fast loop
// goroutine. External observers only ever see a registry snapshot, never
// this struct directly.
type TurboState struct {
	Symbol   string
	Category Category

	StartedAt          time.Time
	LastEntryAttemptAt time.Time

	EntrySent    bool
	OrderID      string
	PositionOpen bool
	EntryPrice   decimal.Decimal
	EntryQty     decimal.Decimal
	EntrySide    Side

	FilterBreakReason string
	Metrics           TurboMetrics
}

// CooldownMap is symbol -> wall-clock deadline before which reactivation is
// forbidden.
type CooldownMap map[string]time.Time

func joinSorted(items []string) string {
	sorted := append([]string(nil), items...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	out := ""
	for i, s := range sorted {
		if i > 0 {
			out += "|"
		}
		out += s
	}
	return out
}
