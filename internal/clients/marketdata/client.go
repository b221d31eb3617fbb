// Package marketdata provides the market data provider clients and the
// priority selector that picks between them per call.
//
// Three provider variants sit behind interfaces.MarketDataClient: Tiingo
// (primary, no meaningful quota), Polygon (strict per-minute quota, gated by
// a token bucket), and Alpha Vantage (hard daily quota, last resort).
package marketdata

import (
	"fmt"
	"time"
)

const defaultTimeout = 30 * time.Second

// APIError represents a provider API error.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %s (status: %d, endpoint: %s)",
		e.Provider, e.Message, e.StatusCode, e.Endpoint)
}

// parseBarDate handles both "2006-01-02" and RFC3339-style date strings.
func parseBarDate(s string) (time.Time, error) {
	if len(s) >= 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t, nil
		}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse bar date %q: %w", s, err)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
