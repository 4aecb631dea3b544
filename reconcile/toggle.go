package reconcile

import (
	"context"
	"fmt"

	"github.com/warp/alimony-tracker/ledger"
)

// =============================================================================
// YEAR TOGGLE - Propose, then apply or reject
// =============================================================================
//
// ProposeToggle marks the child busy and keeps the decision pending until
// ApplyToggle is called for the same year or CancelToggle drops it. Nothing
// reaches the children service before the user confirms.

// ToggleResult is what the renderer needs after ApplyToggle.
type ToggleResult struct {
	Decision     ledger.Decision
	Applied      bool
	Checked      bool // checkbox state to show for the year
	EnabledYears ledger.YearSet
	Debt         ledger.DebtSummary
}

// ProposeToggle computes the candidate enabled set for flipping year, along
// with the owed total before and after.
func (e *Engine) ProposeToggle(ctx context.Context, id ledger.ChildID, year int) (ledger.Decision, error) {
	release, err := e.acquire(id)
	if err != nil {
		return ledger.Decision{}, err
	}
	st, err := e.state(ctx, id)
	if err != nil {
		release()
		return ledger.Decision{}, err
	}

	t := e.Today()
	d := ledger.ProposeToggle(st.child, year)
	d.OwedNow = ledger.ComputeDebt(st.child, st.organized, t).TotalOwed
	after := st.child
	after.EnabledYears = d.Proposed
	d.OwedAfter = ledger.ComputeDebt(after, st.organized, t).TotalOwed

	e.mu.Lock()
	e.pending[id] = d
	e.mu.Unlock()

	e.logger.Debug("toggle proposed", "child_id", id, "year", year, "action", d.Action)
	return d, nil
}

// PendingToggle returns the decision awaiting confirmation, if any.
func (e *Engine) PendingToggle(id ledger.ChildID) (ledger.Decision, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.pending[id]
	return d, ok
}

// CancelToggle drops the child's pending toggle without touching the enabled
// years and frees the child for other actions. It reports whether a toggle
// was pending.
func (e *Engine) CancelToggle(id ledger.ChildID) bool {
	e.mu.Lock()
	_, ok := e.pending[id]
	delete(e.pending, id)
	e.mu.Unlock()
	if !ok {
		return false
	}
	e.release(id)
	e.logger.Debug("toggle cancelled", "child_id", id)
	return true
}

// ApplyToggle finishes a pending toggle. A rejected toggle changes nothing.
// A confirmed one is shown immediately, persisted, and reverted to the last
// persisted set if the children service refuses it.
func (e *Engine) ApplyToggle(ctx context.Context, id ledger.ChildID, year int, confirmed bool) (ToggleResult, error) {
	e.mu.Lock()
	d, ok := e.pending[id]
	if !ok || d.Year != year {
		e.mu.Unlock()
		return ToggleResult{}, ledger.ErrNoPendingToggle
	}
	delete(e.pending, id)
	e.mu.Unlock()
	defer e.release(id)

	st, err := e.state(ctx, id)
	if err != nil {
		return ToggleResult{Decision: d, Checked: d.CheckedBefore()}, err
	}

	if !confirmed {
		e.logger.Debug("toggle rejected", "child_id", id, "year", year)
		return e.toggleResult(st, d, false, d.CheckedBefore()), nil
	}

	e.update(id, func(cur *childState) *childState { return cur.withYears(d.Proposed) })

	if err := e.children.UpdateEnabledYears(ctx, id, d.Proposed); err != nil {
		e.logger.Warn("update enabled years failed, reverting", "child_id", id, "year", year, "error", err)
		reverted := e.update(id, func(cur *childState) *childState { return cur.withYears(cur.persisted) })
		if reverted == nil {
			reverted = st.withYears(st.persisted)
		}
		return e.toggleResult(reverted, d, false, d.CheckedBefore()), fmt.Errorf("update enabled years: %w", err)
	}

	committed := e.update(id, func(cur *childState) *childState {
		next := cur.withYears(d.Proposed)
		next.persisted = d.Proposed.Clone()
		return next
	})
	if committed == nil {
		committed = st.withYears(d.Proposed)
	}

	e.logger.Info("enabled years updated", "child_id", id, "year", year, "action", d.Action)
	return e.toggleResult(committed, d, true, d.CheckedAfter()), nil
}

func (e *Engine) toggleResult(st *childState, d ledger.Decision, applied, checked bool) ToggleResult {
	return ToggleResult{
		Decision:     d,
		Applied:      applied,
		Checked:      checked,
		EnabledYears: st.child.EnabledYears.Clone(),
		Debt:         ledger.ComputeDebt(st.child, st.organized, e.Today()),
	}
}
