package reconcile

import (
	"context"
	"fmt"

	"github.com/warp/alimony-tracker/ledger"
)

// =============================================================================
// PAYMENT MUTATIONS
// =============================================================================

// AddPayment validates the form, creates the payment and inserts it into the
// child's ledger. Only the bucket of the payment date is rebuilt.
func (e *Engine) AddPayment(ctx context.Context, in ledger.PaymentInput) (ledger.Payment, error) {
	p, err := in.Parse(e.Today())
	if err != nil {
		return ledger.Payment{}, err
	}
	release, err := e.acquire(in.ChildID)
	if err != nil {
		return ledger.Payment{}, err
	}
	defer release()

	if _, err := e.state(ctx, in.ChildID); err != nil {
		return ledger.Payment{}, err
	}

	created, err := e.payments.CreatePayment(ctx, p)
	if err != nil {
		e.logger.Warn("create payment failed", "child_id", in.ChildID, "error", err)
		return ledger.Payment{}, fmt.Errorf("create payment: %w", err)
	}
	if created.ChildID == 0 {
		created.ChildID = in.ChildID
	}
	e.update(in.ChildID, func(st *childState) *childState {
		return st.withLedger(st.organized.Put(created))
	})

	e.logger.Info("payment created", "child_id", in.ChildID, "payment_id", created.ID, "amount", created.Amount.String())
	return created, nil
}

// UpdatePayment replaces amount and date of a cached payment. Zero month or
// year in the form keep the payment's previous references.
func (e *Engine) UpdatePayment(ctx context.Context, childID ledger.ChildID, id ledger.PaymentID, in ledger.PaymentInput) (ledger.Payment, error) {
	in.ChildID = childID
	p, err := in.Parse(e.Today())
	if err != nil {
		return ledger.Payment{}, err
	}
	release, err := e.acquire(childID)
	if err != nil {
		return ledger.Payment{}, err
	}
	defer release()

	st, err := e.state(ctx, childID)
	if err != nil {
		return ledger.Payment{}, err
	}
	old, ok := st.organized.Find(id)
	if !ok {
		return ledger.Payment{}, e.stale(ctx, childID, fmt.Errorf("payment %d not cached", id))
	}

	p.ID = id
	p.CreatedAt = old.CreatedAt
	if p.MonthReference == 0 {
		p.MonthReference = old.MonthReference
	}
	if p.YearReference == 0 {
		p.YearReference = old.YearReference
	}

	updated, err := e.payments.UpdatePayment(ctx, p)
	if err != nil {
		if ledger.IsNotFound(err) {
			return ledger.Payment{}, e.stale(ctx, childID, err)
		}
		e.logger.Warn("update payment failed", "child_id", childID, "payment_id", id, "error", err)
		return ledger.Payment{}, fmt.Errorf("update payment %d: %w", id, err)
	}
	if updated.ID == 0 {
		updated = p
	}
	if updated.ChildID == 0 {
		updated.ChildID = childID
	}
	e.update(childID, func(st *childState) *childState {
		return st.withLedger(st.organized.Put(updated))
	})

	e.logger.Info("payment updated", "child_id", childID, "payment_id", id)
	return updated, nil
}

// DeletePayment removes a cached payment.
func (e *Engine) DeletePayment(ctx context.Context, childID ledger.ChildID, id ledger.PaymentID) error {
	release, err := e.acquire(childID)
	if err != nil {
		return err
	}
	defer release()

	st, err := e.state(ctx, childID)
	if err != nil {
		return err
	}
	if _, ok := st.organized.Find(id); !ok {
		return e.stale(ctx, childID, fmt.Errorf("payment %d not cached", id))
	}

	if err := e.payments.DeletePayment(ctx, id); err != nil {
		if ledger.IsNotFound(err) {
			return e.stale(ctx, childID, err)
		}
		e.logger.Warn("delete payment failed", "child_id", childID, "payment_id", id, "error", err)
		return fmt.Errorf("delete payment %d: %w", id, err)
	}
	e.update(childID, func(st *childState) *childState {
		return st.withLedger(st.organized.Remove(id))
	})

	e.logger.Info("payment deleted", "child_id", childID, "payment_id", id)
	return nil
}

// stale refetches the child so the cache matches the collaborators again,
// then reports ErrStaleCache with the cause.
func (e *Engine) stale(ctx context.Context, id ledger.ChildID, cause error) error {
	e.logger.Warn("stale cache, refetching", "child_id", id, "cause", cause)
	if err := e.Refresh(ctx, id); err != nil {
		return fmt.Errorf("%w: %v (refetch failed: %w)", ledger.ErrStaleCache, cause, err)
	}
	return fmt.Errorf("%w: %v", ledger.ErrStaleCache, cause)
}
