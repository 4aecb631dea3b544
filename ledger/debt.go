/*
debt.go - Debt aggregator and year view

PURPOSE:
  Computes how much is owed for a child across its enabled years, and the
  12-month grid a renderer shows for one year.

CALCULATION:
  For each enabled year up to the current year:
    months = Jan..Dec, or Jan..current month for the current year
    shortfall(month) = max(0, obligation - paid(month))
    total += shortfall(month)

  Future years are skipped. A child with no enabled years owes nothing.

STATUS:
  Severity order: delinquent > partial > clear.
    - delinquent: some month with a shortfall had nothing paid
    - partial:    every month with a shortfall had something paid
    - clear:      total owed is exactly zero

  The result is independent of the order of years and months.

EXAMPLE:
  obligation 500.00, enabled [2024], today 2024-03-15
  Jan paid 500, Feb paid 200, Mar paid 0
    -> shortfalls 0 + 300 + 500 = 800.00, delinquent

SEE ALSO:
  - status.go: Per-month classification
  - toggle.go: Changing which years are enabled
*/
package ledger

import "time"

// =============================================================================
// DEBT STATUS
// =============================================================================

type DebtStatus string

const (
	DebtClear      DebtStatus = "clear"
	DebtPartial    DebtStatus = "partial"
	DebtDelinquent DebtStatus = "delinquent"
)

func (s DebtStatus) severity() int {
	switch s {
	case DebtDelinquent:
		return 2
	case DebtPartial:
		return 1
	default:
		return 0
	}
}

// Color is the traffic-light colour shown next to the owed amount.
func (s DebtStatus) Color() string {
	switch s {
	case DebtDelinquent:
		return "red"
	case DebtPartial:
		return "yellow"
	default:
		return "green"
	}
}

// =============================================================================
// DEBT SUMMARY
// =============================================================================

// MonthDebt is one counted month that still owes something.
type MonthDebt struct {
	Year      int
	Month     time.Month
	Paid      Money
	Shortfall Money
	Status    MonthStatus
}

type DebtSummary struct {
	ChildID   ChildID
	AsOf      Date
	TotalOwed Money
	Status    DebtStatus
	Owing     []MonthDebt // ascending by (year, month)
}

// ComputeDebt aggregates the shortfall of every counted month of every
// enabled year.
func ComputeDebt(child Child, l Ledger, today Date) DebtSummary {
	summary := DebtSummary{
		ChildID:   child.ID,
		AsOf:      today,
		TotalOwed: Zero,
		Status:    DebtClear,
	}
	obligation := child.MonthlyObligation

	for _, year := range NewYearSet(child.EnabledYears...) {
		last, ok := LastCountedMonth(year, today)
		if !ok {
			continue
		}
		for month := time.January; month <= last; month++ {
			paid := l.Bucket(year, month).Total()
			shortfall := obligation.Sub(paid).Clamp()
			if shortfall.IsZero() {
				continue
			}
			status := classifyPaid(obligation, paid)
			summary.TotalOwed = summary.TotalOwed.Add(shortfall)
			summary.Owing = append(summary.Owing, MonthDebt{
				Year: year, Month: month, Paid: paid, Shortfall: shortfall, Status: status,
			})

			observed := DebtPartial
			if paid.IsZero() {
				observed = DebtDelinquent
			}
			if observed.severity() > summary.Status.severity() {
				summary.Status = observed
			}
		}
	}

	if summary.TotalOwed.IsZero() {
		summary.Status = DebtClear
	}
	return summary
}

// =============================================================================
// YEAR VIEW - Display grid for one year
// =============================================================================

type MonthView struct {
	Month     time.Month
	Status    MonthStatus
	Paid      Money
	Shortfall Money // zero for future months
	Payments  Bucket
}

type YearView struct {
	ChildID ChildID
	Year    int
	Enabled bool
	Months  [12]MonthView
}

// BuildYearView classifies all twelve months of year. Months of a disabled
// year are still classified so the grid shows what was paid; Enabled tells the
// renderer whether they count toward the debt.
func BuildYearView(child Child, l Ledger, year int, today Date) YearView {
	v := YearView{
		ChildID: child.ID,
		Year:    year,
		Enabled: child.EnabledYears.Contains(year),
	}
	for i := range v.Months {
		month := time.Month(i + 1)
		bucket := l.Bucket(year, month)
		status := ClassifyMonth(child.MonthlyObligation, bucket, year, month, today)
		mv := MonthView{
			Month:     month,
			Status:    status,
			Paid:      bucket.Total(),
			Shortfall: Zero,
			Payments:  bucket,
		}
		if status.Owes() {
			mv.Shortfall = child.MonthlyObligation.Sub(mv.Paid).Clamp()
		}
		v.Months[i] = mv
	}
	return v
}
