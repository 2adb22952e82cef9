package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFundingTime_AdvancesPastInstantsBy8h(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	past := now.Add(-90 * time.Minute)

	got, ok := NormalizeFundingTime(past, now)
	require.True(t, ok)
	assert.True(t, got.After(now))
	assert.Equal(t, past.Add(8*time.Hour), got)
}

func TestNormalizeFundingTime_AdvancesMultipleIncrements(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	wayPast := now.Add(-20 * time.Hour)

	got, ok := NormalizeFundingTime(wayPast, now)
	require.True(t, ok)
	assert.True(t, got.After(now))
	assert.True(t, got.Sub(now) < 8*time.Hour)
}

func TestNormalizeFundingTime_AcceptsEpochMillisString(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	future := now.Add(2 * time.Hour)
	millisStr := "1785499200000" // arbitrary future-ish value, only parseability matters
	_ = future

	_, ok := NormalizeFundingTime(millisStr, now)
	assert.True(t, ok)
}

func TestNormalizeFundingTime_AcceptsISO8601(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	got, ok := NormalizeFundingTime("2026-07-30T20:00:00Z", now)
	require.True(t, ok)
	assert.True(t, got.After(now))
}

func TestNormalizeFundingTime_RejectsGarbage(t *testing.T) {
	_, ok := NormalizeFundingTime("not-a-time", time.Now())
	assert.False(t, ok)
}

func TestNormalizeFundingTime_RejectsNil(t *testing.T) {
	_, ok := NormalizeFundingTime(nil, time.Now())
	assert.False(t, ok)
}

func TestFormatFundingTimeRemaining_SuppressesEmptyHigherUnits(t *testing.T) {
	assert.Equal(t, "1h 2m 3s", FormatFundingTimeRemaining(3723))
	assert.Equal(t, "2m 3s", FormatFundingTimeRemaining(123))
	assert.Equal(t, "7s", FormatFundingTimeRemaining(7))
	assert.Equal(t, "0s", FormatFundingTimeRemaining(0))
}

func TestFundingTimeRemainingSeconds(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	future := now.Add(90 * time.Minute)

	secs, ok := FundingTimeRemainingSeconds(future, now)
	require.True(t, ok)
	assert.InDelta(t, 5400, secs, 1)
}

func TestParseFundingTimeFormatted_RoundTripsWithFormat(t *testing.T) {
	for _, secs := range []float64{7, 123, 3723, 28799} {
		formatted := FormatFundingTimeRemaining(secs)
		parsed, ok := ParseFundingTimeFormatted(formatted)
		require.True(t, ok)
		assert.Equal(t, float64(int64(secs)), parsed)
	}
}

func TestParseFundingTimeFormatted_RejectsGarbage(t *testing.T) {
	_, ok := ParseFundingTimeFormatted("not a duration")
	assert.False(t, ok)
}
