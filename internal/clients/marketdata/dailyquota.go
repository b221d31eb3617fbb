package marketdata

import (
	"errors"
	"sync"
	"time"
)

// ErrDailyQuotaExhausted is returned when a provider's daily request budget
// is spent. The selector treats it like any other provider failure and moves
// on; the count resets at the next UTC midnight.
var ErrDailyQuotaExhausted = errors.New("daily request quota exhausted")

// DailyQuota is a process-wide daily request counter shared by all in-flight
// fetches against one provider.
type DailyQuota struct {
	mu    sync.Mutex
	limit int
	used  int
	day   time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewDailyQuota creates a counter allowing limit requests per UTC day.
func NewDailyQuota(limit int) *DailyQuota {
	return &DailyQuota{limit: limit, now: time.Now}
}

// Acquire consumes one request from today's budget, or returns
// ErrDailyQuotaExhausted.
func (q *DailyQuota) Acquire() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	today := q.now().UTC().Truncate(24 * time.Hour)
	if !today.Equal(q.day) {
		q.day = today
		q.used = 0
	}

	if q.used >= q.limit {
		return ErrDailyQuotaExhausted
	}
	q.used++
	return nil
}

// Remaining returns the unused budget for today.
func (q *DailyQuota) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	today := q.now().UTC().Truncate(24 * time.Hour)
	if !today.Equal(q.day) {
		return q.limit
	}
	return q.limit - q.used
}
