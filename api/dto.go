/*
dto.go - Data Transfer Objects for the HTTP API

PURPOSE:
  Defines request and response shapes for JSON serialization. DTOs decouple
  the wire format from the ledger types, so field names follow the JSON
  contract (snake_case) while the domain keeps Go names.

CONVENTIONS:
  - JSON field names use snake_case
  - Amounts are JSON numbers ("monthly_alimony_value": 500.0)
  - Dates are YYYY-MM-DD strings, timestamps ISO 8601
  - Request fields are pointers so "absent" and "zero" can be told apart
  - enabled_years is kept raw on input: absent, null, a list and anything
    else are four different cases

SEE ALSO:
  - handlers.go: Uses these DTOs
  - client/wire.go: The consuming side of the same JSON
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/warp/alimony-tracker/ledger"
)

// =============================================================================
// ACCOUNT DTOs
// =============================================================================

type RegisterRequest struct {
	Name     string `json:"name"`
	Surname  string `json:"surname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Message   string `json:"message"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token           string `json:"token"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// =============================================================================
// CHILD DTOs
// =============================================================================

type ChildDTO struct {
	ID                  int64        `json:"id"`
	UserID              int64        `json:"user_id"`
	FullName            string       `json:"full_name"`
	Gender              *string      `json:"gender"`
	DateOfBirth         string       `json:"date_of_birth"`
	MonthlyAlimonyValue ledger.Money `json:"monthly_alimony_value"`
	EnabledYears        []int        `json:"enabled_years"` // null when never set
}

// ChildRequest is the body of POST and PUT /api/children. On PUT, nil
// fields are left unchanged.
type ChildRequest struct {
	FullName            *string         `json:"full_name"`
	Gender              *string         `json:"gender"`
	DateOfBirth         *string         `json:"date_of_birth"`
	MonthlyAlimonyValue *ledger.Money   `json:"monthly_alimony_value"`
	EnabledYears        json.RawMessage `json:"enabled_years"`
}

type ChildResponse struct {
	Message string   `json:"message"`
	Child   ChildDTO `json:"child"`
}

// =============================================================================
// PAYMENT DTOs
// =============================================================================

type PaymentDTO struct {
	ID             int64        `json:"id"`
	ChildID        int64        `json:"child_id"`
	Amount         ledger.Money `json:"amount"`
	PaymentDate    ledger.Date  `json:"payment_date"`
	MonthReference *int         `json:"month_reference"`
	YearReference  *int         `json:"year_reference"`
	CreatedAt      string       `json:"created_at"`
}

// PaymentRequest is the body of POST and PUT /api/payments. child_id is
// ignored on PUT.
type PaymentRequest struct {
	ChildID        *int64        `json:"child_id"`
	Amount         *ledger.Money `json:"amount"`
	PaymentDate    *string       `json:"payment_date"`
	MonthReference *int          `json:"month_reference"`
	YearReference  *int          `json:"year_reference"`
}

type PaymentResponse struct {
	Message string     `json:"message"`
	Payment PaymentDTO `json:"payment"`
}

// =============================================================================
// LEDGER DTOs
// =============================================================================

// LedgerDTO is the server-side year view plus the child's debt summary.
type LedgerDTO struct {
	ChildID      int64            `json:"child_id"`
	Year         int              `json:"year"`
	Enabled      bool             `json:"enabled"`
	TotalOwed    ledger.Money     `json:"total_owed"`
	Status       string           `json:"status"`
	StatusColor  string           `json:"status_color"`
	EnabledYears []int            `json:"enabled_years"`
	Months       []LedgerMonthDTO `json:"months"`
}

type LedgerMonthDTO struct {
	Month     int          `json:"month"`
	Status    string       `json:"status"`
	Paid      ledger.Money `json:"paid"`
	Shortfall ledger.Money `json:"shortfall"`
	Payments  int          `json:"payments"`
}

// =============================================================================
// SCENARIO & ERROR DTOs
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// MessageResponse is every plain answer and every error of the API.
type MessageResponse struct {
	Message  string `json:"message"`
	Redirect string `json:"redirect,omitempty"`
}

// =============================================================================
// CONVERSION FUNCTIONS
// =============================================================================

func toChildDTO(userID int64, c ledger.Child) ChildDTO {
	dto := ChildDTO{
		ID:                  int64(c.ID),
		UserID:              userID,
		FullName:            c.FullName,
		DateOfBirth:         c.DateOfBirth,
		MonthlyAlimonyValue: c.MonthlyObligation,
	}
	if c.Gender != "" {
		g := c.Gender
		dto.Gender = &g
	}
	if c.EnabledYears != nil {
		dto.EnabledYears = []int(c.EnabledYears.Clone())
	}
	return dto
}

func toChildDTOs(userID int64, children []ledger.Child) []ChildDTO {
	out := make([]ChildDTO, 0, len(children))
	for _, c := range children {
		out = append(out, toChildDTO(userID, c))
	}
	return out
}

func toPaymentDTO(p ledger.Payment) PaymentDTO {
	dto := PaymentDTO{
		ID:          int64(p.ID),
		ChildID:     int64(p.ChildID),
		Amount:      p.Amount,
		PaymentDate: p.PaymentDate,
	}
	if p.MonthReference != 0 {
		m := p.MonthReference
		dto.MonthReference = &m
	}
	if p.YearReference != 0 {
		y := p.YearReference
		dto.YearReference = &y
	}
	if !p.CreatedAt.IsZero() {
		dto.CreatedAt = p.CreatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toPaymentDTOs(payments []ledger.Payment) []PaymentDTO {
	out := make([]PaymentDTO, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentDTO(p))
	}
	return out
}

func toLedgerDTO(view ledger.YearView, summary ledger.DebtSummary, years ledger.YearSet) LedgerDTO {
	dto := LedgerDTO{
		ChildID:      int64(view.ChildID),
		Year:         view.Year,
		Enabled:      view.Enabled,
		TotalOwed:    summary.TotalOwed,
		Status:       string(summary.Status),
		StatusColor:  summary.Status.Color(),
		EnabledYears: []int(years.Clone()),
		Months:       make([]LedgerMonthDTO, 0, len(view.Months)),
	}
	for _, m := range view.Months {
		dto.Months = append(dto.Months, LedgerMonthDTO{
			Month:     int(m.Month),
			Status:    string(m.Status),
			Paid:      m.Paid,
			Shortfall: m.Shortfall,
			Payments:  len(m.Payments),
		})
	}
	return dto
}
