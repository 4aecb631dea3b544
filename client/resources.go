package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/warp/alimony-tracker/ledger"
)

// =============================================================================
// CHILDREN
// =============================================================================

func (c *Client) ListChildren(ctx context.Context) ([]ledger.Child, error) {
	var records []childRecord
	if err := c.do(ctx, http.MethodGet, "/api/children", nil, &records); err != nil {
		return nil, err
	}
	today := c.today()
	out := make([]ledger.Child, 0, len(records))
	for _, r := range records {
		out = append(out, r.toChild(today))
	}
	return out, nil
}

func (c *Client) GetChild(ctx context.Context, id ledger.ChildID) (ledger.Child, error) {
	var record childRecord
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/children/%d", id), nil, &record); err != nil {
		return ledger.Child{}, err
	}
	return record.toChild(c.today()), nil
}

// CreateChild validates the child locally before sending it.
func (c *Client) CreateChild(ctx context.Context, child ledger.Child) (ledger.Child, error) {
	if err := child.Validate(); err != nil {
		return ledger.Child{}, err
	}
	var out childEnvelope
	if err := c.do(ctx, http.MethodPost, "/api/children", NewChildInput(child), &out); err != nil {
		return ledger.Child{}, err
	}
	return out.Child.toChild(c.today()), nil
}

// UpdateChild sends a partial update; nil fields of in are left unchanged.
func (c *Client) UpdateChild(ctx context.Context, id ledger.ChildID, in ChildInput) (ledger.Child, error) {
	var out childEnvelope
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/children/%d", id), in, &out); err != nil {
		return ledger.Child{}, err
	}
	return out.Child.toChild(c.today()), nil
}

func (c *Client) DeleteChild(ctx context.Context, id ledger.ChildID) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/children/%d", id), nil, nil)
}

// UpdateEnabledYears persists the full enabled set. An empty set is sent as [].
func (c *Client) UpdateEnabledYears(ctx context.Context, id ledger.ChildID, years ledger.YearSet) error {
	list := []int(ledger.NewYearSet(years...))
	_, err := c.UpdateChild(ctx, id, ChildInput{EnabledYears: &list})
	return err
}

// =============================================================================
// PAYMENTS
// =============================================================================

// ListPayments returns the child's payments ordered by date. A 404 is
// returned as is; the engine treats it as "no payments".
func (c *Client) ListPayments(ctx context.Context, childID ledger.ChildID) ([]ledger.Payment, error) {
	var records []paymentRecord
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/payments/%d", childID), nil, &records); err != nil {
		return nil, err
	}
	out := make([]ledger.Payment, 0, len(records))
	for _, r := range records {
		p := r.toPayment()
		if p.ChildID == 0 {
			p.ChildID = childID
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *Client) CreatePayment(ctx context.Context, p ledger.Payment) (ledger.Payment, error) {
	var out paymentEnvelope
	if err := c.do(ctx, http.MethodPost, "/api/payments", newPaymentBody(p), &out); err != nil {
		return ledger.Payment{}, err
	}
	return out.Payment.toPayment(), nil
}

func (c *Client) UpdatePayment(ctx context.Context, p ledger.Payment) (ledger.Payment, error) {
	body := newPaymentBody(p)
	body.ChildID = 0
	var out paymentEnvelope
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/payments/%d", p.ID), body, &out); err != nil {
		return ledger.Payment{}, err
	}
	return out.Payment.toPayment(), nil
}

func (c *Client) DeletePayment(ctx context.Context, id ledger.PaymentID) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/payments/%d", id), nil, nil)
}

// =============================================================================
// SERVER-SIDE LEDGER
// =============================================================================

// LedgerReport is the server's own computation for one child and year.
type LedgerReport struct {
	ChildID      int64            `json:"child_id"`
	Year         int              `json:"year"`
	Enabled      bool             `json:"enabled"`
	TotalOwed    ledger.Money     `json:"total_owed"`
	Status       string           `json:"status"`
	StatusColor  string           `json:"status_color"`
	EnabledYears []int            `json:"enabled_years"`
	Months       []LedgerMonthRow `json:"months"`
}

type LedgerMonthRow struct {
	Month     int          `json:"month"`
	Status    string       `json:"status"`
	Paid      ledger.Money `json:"paid"`
	Shortfall ledger.Money `json:"shortfall"`
	Payments  int          `json:"payments"`
}

// Ledger fetches GET /api/children/{id}/ledger?year=YYYY.
func (c *Client) Ledger(ctx context.Context, id ledger.ChildID, year int) (LedgerReport, error) {
	q := url.Values{}
	q.Set("year", fmt.Sprint(year))
	var out LedgerReport
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/children/%d/ledger?%s", id, q.Encode()), nil, &out)
	return out, err
}
