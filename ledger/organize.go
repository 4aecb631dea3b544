/*
organize.go - Payment organizer

PURPOSE:
  Turns the flat payment list of one child into the Organized Ledger:
  year -> 12 month buckets -> payments sorted by date.

BUCKETING RULE:
  The payment DATE decides the bucket. MonthReference and YearReference
  record what the payer intended, but they never move a payment between
  buckets.

INVARIANTS:
  1. Every year present has exactly 12 buckets, empty ones included
  2. Buckets are sorted ascending by payment date, ties keep input order
  3. Organize never mutates its input and always returns a fresh ledger
  4. Put/Remove return a new Ledger; only the affected buckets are rebuilt,
     untouched years are shared with the receiver (copy-on-write)

SEE ALSO:
  - status.go: Classifies one bucket
  - debt.go: Aggregates buckets into a debt summary
*/
package ledger

import (
	"slices"
	"sort"
	"time"
)

// Bucket holds the payments of one calendar month, sorted by date.
type Bucket []Payment

// Total sums the bucket, normalised to cents.
func (b Bucket) Total() Money {
	total := Zero
	for _, p := range b {
		total = total.Add(p.Amount)
	}
	return total
}

// Year holds the twelve month buckets of one year, index 0 is January.
type Year [12]Bucket

// Ledger is the Organized Ledger of one child.
type Ledger struct {
	years map[int]*Year
}

// Organize groups payments by the year and month of their payment date.
func Organize(payments []Payment) Ledger {
	l := Ledger{years: make(map[int]*Year)}
	for _, p := range payments {
		y := l.yearFor(p.PaymentDate.Year())
		m := p.PaymentDate.Month() - 1
		y[m] = append(y[m], p)
	}
	for _, y := range l.years {
		for m := range y {
			sortBucket(y[m])
		}
	}
	return l
}

func sortBucket(b Bucket) {
	sort.SliceStable(b, func(i, j int) bool {
		return b[i].PaymentDate.Before(b[j].PaymentDate)
	})
}

func (l *Ledger) yearFor(year int) *Year {
	if l.years == nil {
		l.years = make(map[int]*Year)
	}
	y, ok := l.years[year]
	if !ok {
		y = &Year{}
		for m := range y {
			y[m] = Bucket{}
		}
		l.years[year] = y
	}
	return y
}

// Bucket returns the payments of (year, month). Missing years yield an empty bucket.
func (l Ledger) Bucket(year int, month time.Month) Bucket {
	if month < time.January || month > time.December {
		return nil
	}
	y, ok := l.years[year]
	if !ok {
		return nil
	}
	return y[month-1]
}

// Years lists the years that have buckets, ascending.
func (l Ledger) Years() []int {
	out := make([]int, 0, len(l.years))
	for y := range l.years {
		out = append(out, y)
	}
	slices.Sort(out)
	return out
}

// Payments flattens the ledger back into a list ordered by year, month and date.
func (l Ledger) Payments() []Payment {
	var out []Payment
	for _, year := range l.Years() {
		for _, b := range l.years[year] {
			out = append(out, b...)
		}
	}
	return out
}

// Find locates a payment by id.
func (l Ledger) Find(id PaymentID) (Payment, bool) {
	for _, y := range l.years {
		for _, b := range y {
			for _, p := range b {
				if p.ID == id {
					return p, true
				}
			}
		}
	}
	return Payment{}, false
}

// Equal compares two ledgers bucket by bucket.
func (l Ledger) Equal(o Ledger) bool {
	if len(l.years) != len(o.years) {
		return false
	}
	for year, y := range l.years {
		oy, ok := o.years[year]
		if !ok {
			return false
		}
		for m := range y {
			if len(y[m]) != len(oy[m]) {
				return false
			}
			for i := range y[m] {
				a, b := y[m][i], oy[m][i]
				if a.ID != b.ID || !a.Amount.Equal(b.Amount) || !a.PaymentDate.Equal(b.PaymentDate) {
					return false
				}
			}
		}
	}
	return true
}

// =============================================================================
// COPY-ON-WRITE UPDATES
// =============================================================================

func (l Ledger) clone() Ledger {
	out := Ledger{years: make(map[int]*Year, len(l.years))}
	for k, v := range l.years {
		out.years[k] = v
	}
	return out
}

// detach gives out its own copy of one year so buckets can be rewritten.
func (l *Ledger) detach(year int) *Year {
	if y, ok := l.years[year]; ok {
		cp := *y
		l.years[year] = &cp
		return &cp
	}
	return l.yearFor(year)
}

// Put inserts p, or replaces the payment with the same id. An edit that moves
// the payment to another month rebuilds both the old and the new bucket.
func (l Ledger) Put(p Payment) Ledger {
	out := l.clone()
	if old, ok := l.Find(p.ID); ok && p.ID != 0 {
		oy := old.PaymentDate.Year()
		om := old.PaymentDate.Month() - 1
		if oy == p.PaymentDate.Year() && om == p.PaymentDate.Month()-1 {
			y := out.detach(oy)
			b := slices.Clone(y[om])
			for i := range b {
				if b[i].ID == p.ID {
					b[i] = p
				}
			}
			sortBucket(b)
			y[om] = b
			return out
		}
		out = out.Remove(p.ID)
	}
	y := out.detach(p.PaymentDate.Year())
	m := p.PaymentDate.Month() - 1
	b := append(slices.Clone(y[m]), p)
	sortBucket(b)
	y[m] = b
	return out
}

// Remove drops the payment with the given id. Unknown ids return an equal ledger.
func (l Ledger) Remove(id PaymentID) Ledger {
	old, ok := l.Find(id)
	if !ok {
		return l.clone()
	}
	out := l.clone()
	y := out.detach(old.PaymentDate.Year())
	m := old.PaymentDate.Month() - 1
	b := make(Bucket, 0, len(y[m]))
	for _, p := range y[m] {
		if p.ID != id {
			b = append(b, p)
		}
	}
	y[m] = b
	return out
}
