package client

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/warp/alimony-tracker/ledger"
)

// =============================================================================
// WIRE RECORDS
// =============================================================================

type messageBody struct {
	Message  string `json:"message"`
	Redirect string `json:"redirect,omitempty"`
}

type loginResponse struct {
	Message   string `json:"message"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
}

type childRecord struct {
	ID                  int64           `json:"id"`
	UserID              int64           `json:"user_id"`
	FullName            string          `json:"full_name"`
	Gender              *string         `json:"gender"`
	DateOfBirth         *string         `json:"date_of_birth"`
	MonthlyAlimonyValue ledger.Money    `json:"monthly_alimony_value"`
	EnabledYears        json.RawMessage `json:"enabled_years"`
}

type childEnvelope struct {
	Message string      `json:"message"`
	Child   childRecord `json:"child"`
}

func (r childRecord) toChild(today ledger.Date) ledger.Child {
	c := ledger.Child{
		ID:                ledger.ChildID(r.ID),
		FullName:          r.FullName,
		MonthlyObligation: r.MonthlyAlimonyValue,
		EnabledYears:      decodeEnabledYears(r.EnabledYears, today),
	}
	if r.Gender != nil {
		c.Gender = *r.Gender
	}
	if r.DateOfBirth != nil {
		c.DateOfBirth = *r.DateOfBirth
	}
	return c
}

// decodeEnabledYears applies the enabled_years rules: a missing, null or
// non-array value is seeded with the current year, an explicit [] stays
// empty. Numeric strings inside the array are accepted.
func decodeEnabledYears(raw json.RawMessage, today ledger.Date) ledger.YearSet {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || raw[0] != '[' {
		return ledger.DefaultEnabledYears(today)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return ledger.DefaultEnabledYears(today)
	}
	years := make([]int, 0, len(items))
	for _, item := range items {
		if y, ok := decodeYear(item); ok {
			years = append(years, y)
		}
	}
	return ledger.NewYearSet(years...)
}

func decodeYear(raw json.RawMessage) (int, bool) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		if f, err := n.Float64(); err == nil && f == float64(int(f)) {
			return int(f), true
		}
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
	}
	return 0, false
}

type paymentRecord struct {
	ID             int64        `json:"id"`
	ChildID        int64        `json:"child_id"`
	Amount         ledger.Money `json:"amount"`
	PaymentDate    ledger.Date  `json:"payment_date"`
	MonthReference *int         `json:"month_reference"`
	YearReference  *int         `json:"year_reference"`
	CreatedAt      string       `json:"created_at"`
}

type paymentEnvelope struct {
	Message string        `json:"message"`
	Payment paymentRecord `json:"payment"`
}

func (r paymentRecord) toPayment() ledger.Payment {
	p := ledger.Payment{
		ID:          ledger.PaymentID(r.ID),
		ChildID:     ledger.ChildID(r.ChildID),
		Amount:      r.Amount,
		PaymentDate: r.PaymentDate,
		CreatedAt:   parseTimestamp(r.CreatedAt),
	}
	if r.MonthReference != nil {
		p.MonthReference = *r.MonthReference
	}
	if r.YearReference != nil {
		p.YearReference = *r.YearReference
	}
	return p
}

// parseTimestamp accepts RFC 3339 and the zone-less ISO form. Anything else
// yields the zero time.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

type paymentBody struct {
	ChildID        int64        `json:"child_id,omitempty"`
	Amount         ledger.Money `json:"amount"`
	PaymentDate    string       `json:"payment_date"`
	MonthReference *int         `json:"month_reference,omitempty"`
	YearReference  *int         `json:"year_reference,omitempty"`
}

func newPaymentBody(p ledger.Payment) paymentBody {
	b := paymentBody{
		ChildID:     int64(p.ChildID),
		Amount:      p.Amount,
		PaymentDate: p.PaymentDate.String(),
	}
	if p.MonthReference != 0 {
		m := p.MonthReference
		b.MonthReference = &m
	}
	if p.YearReference != 0 {
		y := p.YearReference
		b.YearReference = &y
	}
	return b
}

// ChildInput is the body of the child form. Nil fields are left unchanged on update.
type ChildInput struct {
	FullName            *string       `json:"full_name,omitempty"`
	Gender              *string       `json:"gender,omitempty"`
	DateOfBirth         *string       `json:"date_of_birth,omitempty"`
	MonthlyAlimonyValue *ledger.Money `json:"monthly_alimony_value,omitempty"`
	EnabledYears        *[]int        `json:"enabled_years,omitempty"`
}

// NewChildInput fills every field from c, for creation.
func NewChildInput(c ledger.Child) ChildInput {
	obligation := c.MonthlyObligation
	in := ChildInput{
		FullName:            &c.FullName,
		Gender:              &c.Gender,
		DateOfBirth:         &c.DateOfBirth,
		MonthlyAlimonyValue: &obligation,
	}
	if c.EnabledYears != nil {
		years := []int(c.EnabledYears.Clone())
		in.EnabledYears = &years
	}
	return in
}
