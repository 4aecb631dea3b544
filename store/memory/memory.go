// Package memory provides an in-memory children and payments store.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/warp/alimony-tracker/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Store satisfies reconcile.ChildService and reconcile.PaymentService.
type Store struct {
	mu          sync.RWMutex
	order       []ledger.ChildID
	children    map[ledger.ChildID]ledger.Child
	payments    map[ledger.ChildID][]ledger.Payment // sorted by payment date
	owner       map[ledger.PaymentID]ledger.ChildID
	nextChild   ledger.ChildID
	nextPayment ledger.PaymentID
	now         func() time.Time
}

func New() *Store {
	return &Store{
		children: make(map[ledger.ChildID]ledger.Child),
		payments: make(map[ledger.ChildID][]ledger.Payment),
		owner:    make(map[ledger.PaymentID]ledger.ChildID),
		now:      time.Now,
	}
}

// AddChild stores c under a fresh id (or c.ID when set) and returns it.
func (s *Store) AddChild(c ledger.Child) ledger.Child {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		s.nextChild++
		c.ID = s.nextChild
	} else if c.ID > s.nextChild {
		s.nextChild = c.ID
	}
	if c.EnabledYears != nil {
		c.EnabledYears = ledger.NewYearSet(c.EnabledYears...)
	}
	if _, ok := s.children[c.ID]; !ok {
		s.order = append(s.order, c.ID)
	}
	s.children[c.ID] = c
	return c
}

func (s *Store) ListChildren(_ context.Context) ([]ledger.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Child, 0, len(s.order))
	for _, id := range s.order {
		c := s.children[id]
		c.EnabledYears = c.EnabledYears.Clone()
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) UpdateEnabledYears(_ context.Context, id ledger.ChildID, years ledger.YearSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.children[id]
	if !ok {
		return fmt.Errorf("child %d: %w", id, ledger.ErrNotFound)
	}
	c.EnabledYears = ledger.NewYearSet(years...)
	s.children[id] = c
	return nil
}

// ListPayments answers ErrNotFound for an unknown child.
func (s *Store) ListPayments(_ context.Context, childID ledger.ChildID) ([]ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.children[childID]; !ok {
		return nil, fmt.Errorf("child %d: %w", childID, ledger.ErrNotFound)
	}
	return slices.Clone(s.payments[childID]), nil
}

func (s *Store) CreatePayment(_ context.Context, p ledger.Payment) (ledger.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.children[p.ChildID]; !ok {
		return ledger.Payment{}, fmt.Errorf("child %d: %w", p.ChildID, ledger.ErrNotFound)
	}
	s.nextPayment++
	p.ID = s.nextPayment
	p.CreatedAt = s.now().UTC()
	s.insertLocked(p)
	return p, nil
}

func (s *Store) UpdatePayment(_ context.Context, p ledger.Payment) (ledger.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	childID, ok := s.owner[p.ID]
	if !ok {
		return ledger.Payment{}, fmt.Errorf("payment %d: %w", p.ID, ledger.ErrNotFound)
	}
	old := s.removeLocked(p.ID)
	p.ChildID = childID
	p.CreatedAt = old.CreatedAt
	s.insertLocked(p)
	return p, nil
}

func (s *Store) DeletePayment(_ context.Context, id ledger.PaymentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owner[id]; !ok {
		return fmt.Errorf("payment %d: %w", id, ledger.ErrNotFound)
	}
	s.removeLocked(id)
	return nil
}

// insertLocked keeps each child's list sorted by date, equal dates in
// insertion order.
func (s *Store) insertLocked(p ledger.Payment) {
	ps := s.payments[p.ChildID]
	i := sort.Search(len(ps), func(i int) bool {
		return ps[i].PaymentDate.After(p.PaymentDate)
	})
	ps = slices.Insert(ps, i, p)
	s.payments[p.ChildID] = ps
	s.owner[p.ID] = p.ChildID
}

func (s *Store) removeLocked(id ledger.PaymentID) ledger.Payment {
	childID := s.owner[id]
	ps := s.payments[childID]
	i := slices.IndexFunc(ps, func(p ledger.Payment) bool { return p.ID == id })
	if i < 0 {
		return ledger.Payment{}
	}
	old := ps[i]
	s.payments[childID] = slices.Delete(slices.Clone(ps), i, i+1)
	delete(s.owner, id)
	return old
}
