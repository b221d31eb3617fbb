package common

import "time"

// Day truncates a timestamp to midnight UTC. All batch keys are day-keyed.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsTradingDay reports whether the date is a weekday. Exchange holidays are
// handled downstream: a holiday simply has no cached bars, and the bounded
// prior-close lookback skips over it.
func IsTradingDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}

// PrevTradingDay returns the most recent weekday strictly before t.
func PrevTradingDay(t time.Time) time.Time {
	d := Day(t).AddDate(0, 0, -1)
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// NextTradingDay returns the first weekday strictly after t.
func NextTradingDay(t time.Time) time.Time {
	d := Day(t).AddDate(0, 0, 1)
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// TradingDaysBetween returns all weekdays in (after, until], oldest first.
// Used by backfill to enumerate missed dates in processing order.
func TradingDaysBetween(after, until time.Time) []time.Time {
	var days []time.Time
	d := NextTradingDay(after)
	last := Day(until)
	for !d.After(last) {
		days = append(days, d)
		d = NextTradingDay(d)
	}
	return days
}

// MostRecentTradingDay returns t itself when t is a weekday, otherwise the
// closest preceding weekday.
func MostRecentTradingDay(t time.Time) time.Time {
	d := Day(t)
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}
