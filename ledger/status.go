package ledger

import "time"

// =============================================================================
// MONTH STATUS - Per (child, year, month) classification
// =============================================================================

type MonthStatus string

const (
	MonthNotApplicable MonthStatus = "not_applicable" // future month, nothing owed yet
	MonthUnpaid        MonthStatus = "unpaid"
	MonthPartial       MonthStatus = "partially_paid"
	MonthPaid          MonthStatus = "fully_paid"
)

// Owes reports whether a month with this status contributes to debt.
func (s MonthStatus) Owes() bool {
	return s == MonthUnpaid || s == MonthPartial
}

// ClassifyMonth compares what was paid in a month with the obligation.
// Months after the month containing today are never owed, whatever the
// bucket holds.
func ClassifyMonth(obligation Money, bucket Bucket, year int, month time.Month, today Date) MonthStatus {
	if IsFutureMonth(year, month, today) {
		return MonthNotApplicable
	}
	return classifyPaid(obligation, bucket.Total())
}

func classifyPaid(obligation, paid Money) MonthStatus {
	switch {
	case paid.GreaterOrEqual(obligation):
		return MonthPaid
	case paid.IsPositive():
		return MonthPartial
	default:
		return MonthUnpaid
	}
}
