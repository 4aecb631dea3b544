package reconcile

import (
	"time"

	"github.com/warp/alimony-tracker/ledger"
)

// Clock abstracts time.Now() so "today" can be pinned in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the local wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

// FixedDay pins the clock at noon UTC on the given date.
func FixedDay(year int, month time.Month, day int) FixedClock {
	return FixedClock(time.Date(year, month, day, 12, 0, 0, 0, time.UTC))
}

// today converts the clock reading into the calendar date used by the ledger.
func today(c Clock) ledger.Date {
	return ledger.DateOf(c.Now())
}
