package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDay(t *testing.T) {
	ts := time.Date(2026, 8, 21, 15, 30, 45, 123, time.UTC)
	assert.Equal(t, date(2026, 8, 21), Day(ts))
}

func TestIsTradingDay(t *testing.T) {
	assert.True(t, IsTradingDay(date(2026, 8, 21)))  // Friday
	assert.False(t, IsTradingDay(date(2026, 8, 22))) // Saturday
	assert.False(t, IsTradingDay(date(2026, 8, 23))) // Sunday
	assert.True(t, IsTradingDay(date(2026, 8, 24)))  // Monday
}

func TestPrevNextTradingDay(t *testing.T) {
	friday := date(2026, 8, 21)
	monday := date(2026, 8, 24)

	assert.Equal(t, friday, PrevTradingDay(monday))
	assert.Equal(t, monday, NextTradingDay(friday))

	// From mid-weekend both directions skip to the nearest weekday.
	saturday := date(2026, 8, 22)
	assert.Equal(t, friday, PrevTradingDay(saturday))
	assert.Equal(t, monday, NextTradingDay(saturday))
}

func TestTradingDaysBetween(t *testing.T) {
	// Tuesday through Friday of the same week, exclusive of the start.
	got := TradingDaysBetween(date(2026, 8, 18), date(2026, 8, 21))
	want := []time.Time{date(2026, 8, 19), date(2026, 8, 20), date(2026, 8, 21)}
	assert.Equal(t, want, got)

	// Across a weekend.
	got = TradingDaysBetween(date(2026, 8, 20), date(2026, 8, 25))
	want = []time.Time{date(2026, 8, 21), date(2026, 8, 24), date(2026, 8, 25)}
	assert.Equal(t, want, got)

	// Empty when already caught up.
	assert.Empty(t, TradingDaysBetween(date(2026, 8, 21), date(2026, 8, 21)))
}

func TestMostRecentTradingDay(t *testing.T) {
	assert.Equal(t, date(2026, 8, 21), MostRecentTradingDay(date(2026, 8, 21)))
	assert.Equal(t, date(2026, 8, 21), MostRecentTradingDay(date(2026, 8, 22)))
	assert.Equal(t, date(2026, 8, 21), MostRecentTradingDay(date(2026, 8, 23)))
}
