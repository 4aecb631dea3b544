package ledger

import (
	"slices"
	"strings"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ChildID int64
type PaymentID int64

// =============================================================================
// CHILD - The record an obligation is tracked for
// =============================================================================

type Child struct {
	ID                ChildID
	FullName          string
	Gender            string
	DateOfBirth       string // YYYY-MM-DD as received; may be empty or malformed
	MonthlyObligation Money
	EnabledYears      YearSet
}

// Validate applies the child form rules: name, gender and date of birth are
// required, the obligation cannot be negative.
func (c Child) Validate() error {
	if strings.TrimSpace(c.FullName) == "" {
		return &ValidationError{Field: "full_name", Message: "full name is required"}
	}
	if strings.TrimSpace(c.Gender) == "" {
		return &ValidationError{Field: "gender", Message: "gender is required"}
	}
	if _, err := ParseISODate(c.DateOfBirth); err != nil {
		return &ValidationError{Field: "date_of_birth", Message: "date of birth must be YYYY-MM-DD"}
	}
	if c.MonthlyObligation.IsNegative() {
		return &ValidationError{Field: "monthly_alimony_value", Message: "monthly value cannot be negative"}
	}
	return nil
}

// =============================================================================
// YEAR SET - Enabled years, ascending and unique
// =============================================================================

// YearSet is an ordered set of years. Build one with NewYearSet; the methods
// never modify the receiver.
type YearSet []int

func NewYearSet(years ...int) YearSet {
	out := slices.Clone(years)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		out = YearSet{}
	}
	return YearSet(out)
}

// DefaultEnabledYears seeds a child whose record carries no enabled years at
// all. An explicit empty list is not a missing one and must not be seeded.
func DefaultEnabledYears(today Date) YearSet {
	return YearSet{today.Year()}
}

func (s YearSet) Contains(year int) bool {
	_, found := slices.BinarySearch(s, year)
	return found
}

func (s YearSet) With(year int) YearSet {
	return NewYearSet(append(slices.Clone(s), year)...)
}

func (s YearSet) Without(year int) YearSet {
	out := YearSet{}
	for _, y := range s {
		if y != year {
			out = append(out, y)
		}
	}
	return out
}

func (s YearSet) Equal(o YearSet) bool {
	return slices.Equal(NewYearSet(s...), NewYearSet(o...))
}

// Clone copies s. A nil set stays nil so "never set" survives the copy.
func (s YearSet) Clone() YearSet {
	if s == nil {
		return nil
	}
	return NewYearSet(s...)
}

// =============================================================================
// PAYMENT
// =============================================================================

type Payment struct {
	ID             PaymentID
	ChildID        ChildID
	Amount         Money
	PaymentDate    Date
	MonthReference int // 1-12, 0 when absent
	YearReference  int // four-digit, 0 when absent
	CreatedAt      time.Time
}

// Validate checks the payment invariants. today bounds the payment date, a
// payment cannot be recorded in the future.
func (p Payment) Validate(today Date) error {
	if !p.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "amount must be positive"}
	}
	if p.PaymentDate.IsZero() {
		return &ValidationError{Field: "payment_date", Message: "payment date is required"}
	}
	if p.PaymentDate.After(today) {
		return &ValidationError{Field: "payment_date", Message: "payment date cannot be in the future"}
	}
	if p.MonthReference < 0 || p.MonthReference > 12 {
		return &ValidationError{Field: "month_reference", Message: "month reference must be 1-12"}
	}
	if p.YearReference != 0 && (p.YearReference < 1000 || p.YearReference > 9999) {
		return &ValidationError{Field: "year_reference", Message: "year reference must have four digits"}
	}
	return nil
}

// PaymentInput is a payment as typed into the payment form.
type PaymentInput struct {
	ChildID ChildID
	Amount  string // "150,00" or "150.00"
	Date    string // DD/MM/YYYY
	Month   time.Month
	Year    int
}

// Parse validates the form and returns the payment it describes.
func (in PaymentInput) Parse(today Date) (Payment, error) {
	amount, err := ParseMoney(in.Amount)
	if err != nil {
		return Payment{}, err
	}
	date, err := ParseDisplayDate(in.Date)
	if err != nil {
		return Payment{}, err
	}
	p := Payment{
		ChildID:        in.ChildID,
		Amount:         amount,
		PaymentDate:    date,
		MonthReference: int(in.Month),
		YearReference:  in.Year,
	}
	if err := p.Validate(today); err != nil {
		return Payment{}, err
	}
	return p, nil
}
