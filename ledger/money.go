/*
Package ledger provides the debt-computation and payment-ledger core.

PURPOSE:
  Everything in this package is a pure function of its inputs. Given a child's
  monthly obligation, the set of calendar years that count toward debt, and the
  raw list of payments, it answers two questions:
    1. Per month: was the obligation fully paid, partially paid, or not at all?
    2. Overall: how much is owed, and how severe is it?

KEY CONCEPTS IN THIS FILE (money.go):
  - Money: A currency value normalised to the minor unit (2 decimal places)

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal, never float64, for arithmetic
  2. Normalisation: Every operation rounds back to cents, so repeated
     summation never drifts
  3. Determinism: "today" is always a parameter, never read from the clock

USAGE:
  obligation := ledger.MustParseMoney("500.00")
  paid := ledger.NewMoney(200)
  shortfall := obligation.Sub(paid) // 300.00

SEE ALSO:
  - date.go: Calendar dates and display conversions
  - organize.go: Payment organizer
  - debt.go: Debt aggregator
*/
package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnits is the number of decimal places kept for currency values.
const MinorUnits = 2

// =============================================================================
// MONEY - Currency value rounded to cents
// =============================================================================

// Money is a non-float currency amount. The zero value is 0.00.
type Money struct {
	Value decimal.Decimal
}

// Zero is 0.00.
var Zero = Money{Value: decimal.Zero}

func NewMoney(value float64) Money {
	return Money{Value: decimal.NewFromFloat(value)}.normalize()
}

func NewMoneyFromCents(cents int64) Money {
	return Money{Value: decimal.New(cents, -MinorUnits)}
}

// ParseMoney accepts "1234.5", "1234,50" and surrounding whitespace.
// Thousands separators are not accepted.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, &ValidationError{Field: "amount", Message: "amount is required"}
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, &ValidationError{Field: "amount", Message: fmt.Sprintf("invalid amount %q", s)}
	}
	return Money{Value: d}.normalize(), nil
}

func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) normalize() Money {
	return Money{Value: m.Value.Round(MinorUnits)}
}

func (m Money) Add(o Money) Money { return Money{Value: m.Value.Add(o.Value)}.normalize() }
func (m Money) Sub(o Money) Money { return Money{Value: m.Value.Sub(o.Value)}.normalize() }
func (m Money) Neg() Money        { return Money{Value: m.Value.Neg()}.normalize() }

func (m Money) IsZero() bool                { return m.normalize().Value.IsZero() }
func (m Money) IsPositive() bool            { return m.normalize().Value.IsPositive() }
func (m Money) IsNegative() bool            { return m.normalize().Value.IsNegative() }
func (m Money) Equal(o Money) bool          { return m.normalize().Value.Equal(o.normalize().Value) }
func (m Money) LessThan(o Money) bool       { return m.normalize().Value.LessThan(o.normalize().Value) }
func (m Money) GreaterThan(o Money) bool    { return m.normalize().Value.GreaterThan(o.normalize().Value) }
func (m Money) GreaterOrEqual(o Money) bool { return !m.LessThan(o) }

// Cents returns the amount in minor units.
func (m Money) Cents() int64 {
	return m.normalize().Value.Shift(MinorUnits).IntPart()
}

// Float64 is for display and wire encoding only.
func (m Money) Float64() float64 {
	f, _ := m.normalize().Value.Float64()
	return f
}

// Clamp returns m, or zero when m is negative.
func (m Money) Clamp() Money {
	if m.IsNegative() {
		return Zero
	}
	return m.normalize()
}

// String renders with a dot separator and exactly two decimals: "1234.50".
func (m Money) String() string {
	return m.Value.StringFixed(MinorUnits)
}

// MarshalJSON encodes as a bare JSON number, matching the wire format.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*m = Zero
		return nil
	}
	s = strings.Trim(s, `"`)
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Sum adds all amounts, rounding after each step.
func Sum(amounts ...Money) Money {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
