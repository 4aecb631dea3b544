package ledger

import "fmt"

// =============================================================================
// YEAR TOGGLE - Candidate computation for enabling/disabling a year
// =============================================================================

type ToggleAction string

const (
	ActionEnable  ToggleAction = "enable"
	ActionDisable ToggleAction = "disable"
)

// ToggleEffect is the direction the owed total can move.
type ToggleEffect string

const (
	EffectIncrease ToggleEffect = "increase"
	EffectDecrease ToggleEffect = "decrease"
)

// Decision is the first phase of a year toggle: what would change if the user
// confirms. Nothing is persisted until the decision is applied.
type Decision struct {
	ChildID   ChildID
	ChildName string
	Year      int
	Action    ToggleAction
	Effect    ToggleEffect
	Current   YearSet
	Proposed  YearSet

	// Debt preview, filled by the engine.
	OwedNow   Money
	OwedAfter Money
}

// ProposeToggle flips year in the child's enabled set.
func ProposeToggle(child Child, year int) Decision {
	d := Decision{
		ChildID:   child.ID,
		ChildName: child.FullName,
		Year:      year,
		Current:   child.EnabledYears.Clone(),
	}
	if child.EnabledYears.Contains(year) {
		d.Action = ActionDisable
		d.Effect = EffectDecrease
		d.Proposed = child.EnabledYears.Without(year)
	} else {
		d.Action = ActionEnable
		d.Effect = EffectIncrease
		d.Proposed = child.EnabledYears.With(year)
	}
	return d
}

// CheckedBefore is the checkbox state before the toggle.
func (d Decision) CheckedBefore() bool { return d.Action == ActionDisable }

// CheckedAfter is the checkbox state once the toggle is persisted.
func (d Decision) CheckedAfter() bool { return d.Action == ActionEnable }

// Describer renders a decision for the confirmation prompt.
type Describer interface {
	DescribeToggle(d Decision) string
}

// Describe uses desc when given, plain English otherwise.
func (d Decision) Describe(desc Describer) string {
	if desc != nil {
		return desc.DescribeToggle(d)
	}
	if d.Action == ActionEnable {
		return fmt.Sprintf("Enable year %d for %s? Enabling will increase the total owed.", d.Year, d.ChildName)
	}
	return fmt.Sprintf("Disable year %d for %s? Disabling will decrease the total owed.", d.Year, d.ChildName)
}
