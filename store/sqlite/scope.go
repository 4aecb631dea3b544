package sqlite

import (
	"context"
	"fmt"

	"github.com/warp/alimony-tracker/ledger"
)

// =============================================================================
// USER SCOPE - One account's children and payments
// =============================================================================

// UserScope exposes one user's rows through the reconcile collaborator
// interfaces, so the engine can run against a local database.
type UserScope struct {
	store  *Store
	userID int64
}

func (s *Store) ForUser(userID int64) *UserScope {
	return &UserScope{store: s, userID: userID}
}

func (u *UserScope) UserID() int64 { return u.userID }

func (u *UserScope) ListChildren(ctx context.Context) ([]ledger.Child, error) {
	return u.store.ListChildren(ctx, u.userID)
}

func (u *UserScope) UpdateEnabledYears(ctx context.Context, id ledger.ChildID, years ledger.YearSet) error {
	c, err := u.child(ctx, id)
	if err != nil {
		return err
	}
	c.EnabledYears = ledger.NewYearSet(years...)
	return u.store.UpdateChild(ctx, u.userID, c)
}

func (u *UserScope) ListPayments(ctx context.Context, childID ledger.ChildID) ([]ledger.Payment, error) {
	if _, err := u.child(ctx, childID); err != nil {
		return nil, err
	}
	return u.store.ListPayments(ctx, childID)
}

func (u *UserScope) CreatePayment(ctx context.Context, p ledger.Payment) (ledger.Payment, error) {
	if _, err := u.child(ctx, p.ChildID); err != nil {
		return ledger.Payment{}, err
	}
	return u.store.CreatePayment(ctx, p)
}

// UpdatePayment keeps the stored child and creation time of the payment.
func (u *UserScope) UpdatePayment(ctx context.Context, p ledger.Payment) (ledger.Payment, error) {
	current, err := u.payment(ctx, p.ID)
	if err != nil {
		return ledger.Payment{}, err
	}
	p.ChildID = current.ChildID
	p.CreatedAt = current.CreatedAt
	if err := u.store.UpdatePayment(ctx, p); err != nil {
		return ledger.Payment{}, err
	}
	return p, nil
}

func (u *UserScope) DeletePayment(ctx context.Context, id ledger.PaymentID) error {
	if _, err := u.payment(ctx, id); err != nil {
		return err
	}
	return u.store.DeletePayment(ctx, id)
}

func (u *UserScope) child(ctx context.Context, id ledger.ChildID) (ledger.Child, error) {
	c, err := u.store.GetChild(ctx, u.userID, id)
	if err != nil {
		return ledger.Child{}, err
	}
	if c == nil {
		return ledger.Child{}, fmt.Errorf("child %d: %w", id, ledger.ErrNotFound)
	}
	return *c, nil
}

func (u *UserScope) payment(ctx context.Context, id ledger.PaymentID) (ledger.Payment, error) {
	r, err := u.store.GetPayment(ctx, id)
	if err != nil {
		return ledger.Payment{}, err
	}
	if r == nil {
		return ledger.Payment{}, fmt.Errorf("payment %d: %w", id, ledger.ErrNotFound)
	}
	if r.UserID != u.userID {
		return ledger.Payment{}, fmt.Errorf("payment %d: %w", id, ledger.ErrForbidden)
	}
	return r.Payment, nil
}
