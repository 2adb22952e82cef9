// Package filter implements C2, the pure filter-and-scoring pipeline: no
// network or disk I/O, every function total over its documented domain.
package filter

import (
	"strconv"
	"strings"
	"time"

	"market_maker/internal/core"
)

// NormalizeFundingTime accepts any of the representations the exchange (or
// a cached snapshot) may hand back for a next-funding instant — epoch
// millis, an epoch-millis numeric string, or an RFC3339 string — and
// advances it by FundingSettlementInterval steps until it lies strictly in
// the future relative to now. ok is false when raw cannot be parsed at all.
func NormalizeFundingTime(raw interface{}, now time.Time) (t time.Time, ok bool) {
	switch v := raw.(type) {
	case time.Time:
		t = v
	case int64:
		t = time.UnixMilli(v).UTC()
	case float64:
		t = time.UnixMilli(int64(v)).UTC()
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return time.Time{}, false
		}
		if ms, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			t = time.UnixMilli(ms).UTC()
		} else {
			parsed, err := time.Parse(time.RFC3339, trimmed)
			if err != nil {
				return time.Time{}, false
			}
			t = parsed.UTC()
		}
	default:
		return time.Time{}, false
	}

	for !t.After(now) {
		t = t.Add(core.FundingSettlementInterval)
	}
	return t, true
}

// FundingTimeRemainingSeconds returns the number of seconds between now and
// the next eligible funding instant derived from raw. ok mirrors NormalizeFundingTime.
func FundingTimeRemainingSeconds(raw interface{}, now time.Time) (seconds float64, ok bool) {
	t, ok := NormalizeFundingTime(raw, now)
	if !ok {
		return 0, false
	}
	return t.Sub(now).Seconds(), true
}

// FormatFundingTimeRemaining renders seconds as "Hh Mm Ss", suppressing any
// higher unit that is zero.
func FormatFundingTimeRemaining(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60

	if h > 0 {
		return formatHMS(h, m, s)
	}
	if m > 0 {
		return formatMS(m, s)
	}
	return formatS(s)
}

// ParseFundingTimeFormatted is the inverse of FormatFundingTimeRemaining: it
// recovers the second count from an "Hh Mm Ss" / "Mm Ss" / "Ss" string. Used
// as turbo's last-resort time-to-funding source when neither the fused
// ticker nor the original funding map carry a usable instant.
func ParseFundingTimeFormatted(formatted string) (seconds float64, ok bool) {
	trimmed := strings.TrimSpace(formatted)
	if trimmed == "" {
		return 0, false
	}

	var h, m, s int64
	for _, part := range strings.Fields(trimmed) {
		var unit byte
		if len(part) < 2 {
			return 0, false
		}
		unit = part[len(part)-1]
		digits := part[:len(part)-1]
		v, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return 0, false
		}
		switch unit {
		case 'h':
			h = v
		case 'm':
			m = v
		case 's':
			s = v
		default:
			return 0, false
		}
	}
	return float64(h*3600 + m*60 + s), true
}

func formatHMS(h, m, s int64) string {
	return strconv.FormatInt(h, 10) + "h " + strconv.FormatInt(m, 10) + "m " + strconv.FormatInt(s, 10) + "s"
}

func formatMS(m, s int64) string {
	return strconv.FormatInt(m, 10) + "m " + strconv.FormatInt(s, 10) + "s"
}

func formatS(s int64) string {
	return strconv.FormatInt(s, 10) + "s"
}
