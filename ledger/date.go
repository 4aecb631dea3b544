package ledger

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// ISOLayout is the wire format for dates.
	ISOLayout = "2006-01-02"
	// DisplayLayout is the format shown to and typed by users.
	DisplayLayout = "02/01/2006"
)

var displayPattern = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)

// =============================================================================
// DATE - Calendar date without time of day
// =============================================================================

// Date is a calendar date held at UTC midnight.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the time of day and location of t.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseISODate parses "YYYY-MM-DD". Out-of-range days are rejected.
func ParseISODate(s string) (Date, error) {
	t, err := time.Parse(ISOLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, &ValidationError{Field: "date", Message: fmt.Sprintf("invalid date %q (use YYYY-MM-DD)", s)}
	}
	return DateOf(t), nil
}

// ParseDisplayDate parses "DD/MM/YYYY" strictly: two-digit day and month,
// four-digit year, and the date must exist in the calendar.
func ParseDisplayDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if !displayPattern.MatchString(s) {
		return Date{}, &ValidationError{Field: "date", Message: fmt.Sprintf("invalid date %q (use DD/MM/YYYY)", s)}
	}
	t, err := time.Parse(DisplayLayout, s)
	if err != nil {
		return Date{}, &ValidationError{Field: "date", Message: fmt.Sprintf("invalid date %q (use DD/MM/YYYY)", s)}
	}
	return DateOf(t), nil
}

// ToBackendDate converts "DD/MM/YYYY" to "YYYY-MM-DD".
func ToBackendDate(display string) (string, error) {
	d, err := ParseDisplayDate(display)
	if err != nil {
		return "", err
	}
	return d.String(), nil
}

// ToDisplayDate converts "YYYY-MM-DD" to "DD/MM/YYYY". Empty input yields "".
func ToDisplayDate(iso string) (string, error) {
	if strings.TrimSpace(iso) == "" {
		return "", nil
	}
	d, err := ParseISODate(iso)
	if err != nil {
		return "", err
	}
	return d.Display(), nil
}

func (d Date) Year() int          { return d.Time.Year() }
func (d Date) Month() time.Month  { return d.Time.Month() }
func (d Date) Day() int           { return d.Time.Day() }
func (d Date) IsZero() bool       { return d.Time.IsZero() }
func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool  { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool  { return d.Time.Equal(o.Time) }

func (d Date) String() string  { return d.Time.Format(ISOLayout) }
func (d Date) Display() string { return d.Time.Format(DisplayLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseISODate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// PERIOD HELPERS
// =============================================================================

// IsFutureMonth reports whether (year, month) lies strictly after the month
// containing today.
func IsFutureMonth(year int, month time.Month, today Date) bool {
	if year != today.Year() {
		return year > today.Year()
	}
	return month > today.Month()
}

// LastCountedMonth is the last month of year that can owe anything as of today.
// ok is false when the whole year is in the future.
func LastCountedMonth(year int, today Date) (month time.Month, ok bool) {
	switch {
	case year > today.Year():
		return 0, false
	case year == today.Year():
		return today.Month(), true
	default:
		return time.December, true
	}
}
