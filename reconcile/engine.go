/*
engine.go - Ledger reconciliation engine

PURPOSE:
  Keeps a read-through cache of every child's record and organised payment
  ledger, answers debt and year-view queries from it, and routes mutations
  (payments, year toggles) through the collaborators before updating the
  cache.

STATE:
  One childState per child, treated as immutable. Every write builds a new
  value and swaps the pointer under the engine lock, so readers never see a
  half-applied change.

CONCURRENCY:
  - One action per child at a time. A second action gets ErrChildBusy.
  - Concurrent cache misses for one child share a single fetch (singleflight).
  - Each fetch carries a per-child generation. A response older than the
    newest issued request is not installed (last request wins).
  - Load fetches every child's payments in parallel with a bounded errgroup
    and swaps the whole cache at the end.

FAILURES:
  A failed collaborator call never mutates the cache. Referencing a payment
  the cache does not know refetches the child and returns ErrStaleCache.

SEE ALSO:
  - payments.go: Payment mutations
  - toggle.go: Two-phase year toggle
  - ledger/debt.go: The pure computations served from the cache
*/
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/warp/alimony-tracker/ledger"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// ChildService lists the user's children and persists their enabled years.
type ChildService interface {
	ListChildren(ctx context.Context) ([]ledger.Child, error)
	UpdateEnabledYears(ctx context.Context, id ledger.ChildID, years ledger.YearSet) error
}

// PaymentService stores payments. ListPayments may answer ErrNotFound for a
// child without payments.
type PaymentService interface {
	ListPayments(ctx context.Context, childID ledger.ChildID) ([]ledger.Payment, error)
	CreatePayment(ctx context.Context, p ledger.Payment) (ledger.Payment, error)
	UpdatePayment(ctx context.Context, p ledger.Payment) (ledger.Payment, error)
	DeletePayment(ctx context.Context, id ledger.PaymentID) error
}

// =============================================================================
// CHILD STATE
// =============================================================================

type childState struct {
	child     ledger.Child   // EnabledYears is the in-memory copy
	persisted ledger.YearSet // last set the children service accepted
	organized ledger.Ledger
	fetchedAt time.Time
}

// newChildState normalises the child's enabled years. A child whose years
// were never recorded (nil) counts the current year; an explicit empty set
// stays empty.
func newChildState(child ledger.Child, payments []ledger.Payment, at time.Time) *childState {
	if child.EnabledYears == nil {
		child.EnabledYears = ledger.DefaultEnabledYears(ledger.DateOf(at))
	}
	child.EnabledYears = ledger.NewYearSet(child.EnabledYears...)
	return &childState{
		child:     child,
		persisted: child.EnabledYears.Clone(),
		organized: ledger.Organize(payments),
		fetchedAt: at,
	}
}

func (s *childState) withLedger(l ledger.Ledger) *childState {
	cp := *s
	cp.organized = l
	return &cp
}

func (s *childState) withYears(years ledger.YearSet) *childState {
	cp := *s
	cp.child.EnabledYears = years.Clone()
	return &cp
}

// =============================================================================
// ENGINE
// =============================================================================

const defaultConcurrency = 4

// viewTag identifies the newest year view requested for a child.
type viewTag struct {
	gen  uint64
	year int
}

type Engine struct {
	children ChildService
	payments PaymentService
	clock    Clock
	logger   *slog.Logger
	limit    int

	mu      sync.Mutex
	loaded  bool
	order   []ledger.ChildID
	states  map[ledger.ChildID]*childState
	issued  map[ledger.ChildID]uint64
	views   map[ledger.ChildID]viewTag
	busy    map[ledger.ChildID]bool
	pending map[ledger.ChildID]ledger.Decision

	flight singleflight.Group
}

type Option func(*Engine)

func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithConcurrency bounds the number of parallel payment fetches during Load.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.limit = n
		}
	}
}

func New(children ChildService, payments PaymentService, opts ...Option) *Engine {
	e := &Engine{
		children: children,
		payments: payments,
		clock:    SystemClock{},
		logger:   slog.Default(),
		limit:    defaultConcurrency,
		states:   make(map[ledger.ChildID]*childState),
		issued:   make(map[ledger.ChildID]uint64),
		views:    make(map[ledger.ChildID]viewTag),
		busy:     make(map[ledger.ChildID]bool),
		pending:  make(map[ledger.ChildID]ledger.Decision),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "reconcile")
	return e
}

// Today is the date every computation of this engine uses.
func (e *Engine) Today() ledger.Date { return today(e.clock) }

// Busy reports whether an action on the child is in flight.
func (e *Engine) Busy(id ledger.ChildID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy[id]
}

// Reset drops every cached state, pending toggle and generation, as after a logout.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loaded = false
	e.order = nil
	e.states = make(map[ledger.ChildID]*childState)
	e.pending = make(map[ledger.ChildID]ledger.Decision)
	e.busy = make(map[ledger.ChildID]bool)
	for id := range e.issued {
		e.issued[id]++
	}
}

// =============================================================================
// LOADING
// =============================================================================

// Load fetches all children and their payments and replaces the whole cache.
// Nothing is replaced when any fetch fails.
func (e *Engine) Load(ctx context.Context) error {
	_, err, _ := e.flight.Do("load", func() (any, error) {
		return nil, e.load(ctx)
	})
	return err
}

func (e *Engine) load(ctx context.Context) error {
	children, err := e.children.ListChildren(ctx)
	if err != nil {
		return fmt.Errorf("list children: %w", err)
	}

	e.mu.Lock()
	gens := make(map[ledger.ChildID]uint64, len(children))
	for _, c := range children {
		gens[c.ID] = e.issueLocked(c.ID)
	}
	e.mu.Unlock()

	lists := make([][]ledger.Payment, len(children))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)
	for i, c := range children {
		g.Go(func() error {
			payments, err := e.listPayments(gctx, c.ID)
			if err != nil {
				return fmt.Errorf("list payments of child %d: %w", c.ID, err)
			}
			lists[i] = payments
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	now := e.clock.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	states := make(map[ledger.ChildID]*childState, len(children))
	order := make([]ledger.ChildID, 0, len(children))
	for i, c := range children {
		order = append(order, c.ID)
		if e.issued[c.ID] != gens[c.ID] {
			// A newer request for this child finished first.
			if cur, ok := e.states[c.ID]; ok {
				states[c.ID] = cur
			}
			continue
		}
		states[c.ID] = newChildState(c, lists[i], now)
	}
	e.states = states
	e.order = order
	e.loaded = true

	e.logger.Info("cache loaded", "children", len(children))
	return nil
}

func (e *Engine) listPayments(ctx context.Context, id ledger.ChildID) ([]ledger.Payment, error) {
	payments, err := e.payments.ListPayments(ctx, id)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, nil
	}
	return payments, err
}

func (e *Engine) issueLocked(id ledger.ChildID) uint64 {
	e.issued[id]++
	return e.issued[id]
}

// state returns the cached state, fetching it on a miss.
func (e *Engine) state(ctx context.Context, id ledger.ChildID) (*childState, error) {
	e.mu.Lock()
	st, ok := e.states[id]
	e.mu.Unlock()
	if ok {
		return st, nil
	}
	return e.fetch(ctx, id)
}

// fetch always goes to the collaborators. Concurrent fetches of one child
// share the same call.
func (e *Engine) fetch(ctx context.Context, id ledger.ChildID) (*childState, error) {
	v, err, _ := e.flight.Do(fmt.Sprintf("child:%d", id), func() (any, error) {
		return e.fetchChild(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*childState), nil
}

func (e *Engine) fetchChild(ctx context.Context, id ledger.ChildID) (*childState, error) {
	e.mu.Lock()
	gen := e.issueLocked(id)
	e.mu.Unlock()

	children, err := e.children.ListChildren(ctx)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	idx := slices.IndexFunc(children, func(c ledger.Child) bool { return c.ID == id })
	if idx < 0 {
		e.forget(id)
		return nil, fmt.Errorf("child %d: %w", id, ledger.ErrChildNotFound)
	}
	payments, err := e.listPayments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list payments of child %d: %w", id, err)
	}
	st := newChildState(children[idx], payments, e.clock.Now())

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.issued[id] != gen {
		e.logger.Debug("discarding superseded fetch", "child_id", id, "generation", gen)
		if cur, ok := e.states[id]; ok {
			return cur, nil
		}
		return nil, ledger.ErrStaleResponse
	}
	e.installLocked(st)
	return st, nil
}

func (e *Engine) installLocked(st *childState) {
	id := st.child.ID
	if _, ok := e.states[id]; !ok && !slices.Contains(e.order, id) {
		e.order = append(e.order, id)
	}
	e.states[id] = st
}

func (e *Engine) forget(id ledger.ChildID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.states, id)
	e.order = slices.DeleteFunc(e.order, func(o ledger.ChildID) bool { return o == id })
}

// update replaces the child's state with fn(current) and supersedes any
// in-flight fetch. It returns nil when the child is no longer cached.
func (e *Engine) update(id ledger.ChildID, fn func(*childState) *childState) *childState {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur, ok := e.states[id]
	if !ok {
		return nil
	}
	next := fn(cur)
	e.issueLocked(id)
	e.states[id] = next
	return next
}

// acquire marks the child busy for the duration of one action.
func (e *Engine) acquire(id ledger.ChildID) (release func(), err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy[id] {
		return nil, ledger.ErrChildBusy
	}
	e.busy[id] = true
	return func() { e.release(id) }, nil
}

func (e *Engine) release(id ledger.ChildID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.busy, id)
}

// =============================================================================
// QUERIES
// =============================================================================

// ChildOverview is one row of the children list.
type ChildOverview struct {
	Child ledger.Child
	Age   string
	Debt  ledger.DebtSummary
}

// Refresh refetches one child and its payments.
func (e *Engine) Refresh(ctx context.Context, id ledger.ChildID) error {
	_, err := e.fetch(ctx, id)
	return err
}

// Children lists the cached children in collaborator order, loading on first use.
func (e *Engine) Children(ctx context.Context) ([]ledger.Child, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ledger.Child, 0, len(e.order))
	for _, id := range e.order {
		if st, ok := e.states[id]; ok {
			out = append(out, st.child)
		}
	}
	return out, nil
}

func (e *Engine) ensureLoaded(ctx context.Context) error {
	e.mu.Lock()
	loaded := e.loaded
	e.mu.Unlock()
	if loaded {
		return nil
	}
	return e.Load(ctx)
}

// Overview is Children plus each child's age label and debt.
func (e *Engine) Overview(ctx context.Context) ([]ChildOverview, error) {
	children, err := e.Children(ctx)
	if err != nil {
		return nil, err
	}
	t := e.Today()
	out := make([]ChildOverview, 0, len(children))
	for _, c := range children {
		st, err := e.state(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, ChildOverview{
			Child: st.child,
			Age:   ledger.AgeLabel(st.child.DateOfBirth, t),
			Debt:  ledger.ComputeDebt(st.child, st.organized, t),
		})
	}
	return out, nil
}

func (e *Engine) Child(ctx context.Context, id ledger.ChildID) (ledger.Child, error) {
	st, err := e.state(ctx, id)
	if err != nil {
		return ledger.Child{}, err
	}
	return st.child, nil
}

func (e *Engine) Ledger(ctx context.Context, id ledger.ChildID) (ledger.Ledger, error) {
	st, err := e.state(ctx, id)
	if err != nil {
		return ledger.Ledger{}, err
	}
	return st.organized, nil
}

// Summary computes the child's debt as of today.
func (e *Engine) Summary(ctx context.Context, id ledger.ChildID) (ledger.DebtSummary, error) {
	st, err := e.state(ctx, id)
	if err != nil {
		return ledger.DebtSummary{}, err
	}
	return ledger.ComputeDebt(st.child, st.organized, e.Today()), nil
}

// YearView builds the 12-month grid for one year. When a newer view of the
// same child was requested meanwhile, whatever its year, this one returns
// ErrStaleResponse.
func (e *Engine) YearView(ctx context.Context, id ledger.ChildID, year int) (ledger.YearView, error) {
	e.mu.Lock()
	gen := e.views[id].gen + 1
	e.views[id] = viewTag{gen: gen, year: year}
	e.mu.Unlock()

	st, err := e.state(ctx, id)
	if err != nil {
		return ledger.YearView{}, err
	}

	e.mu.Lock()
	latest := e.views[id]
	e.mu.Unlock()
	if latest.gen != gen {
		e.logger.Debug("discarding superseded year view", "child_id", id, "year", year, "newer_year", latest.year)
		return ledger.YearView{}, ledger.ErrStaleResponse
	}
	return ledger.BuildYearView(st.child, st.organized, year, e.Today()), nil
}

// Years lists the years worth rendering for a child: every year with
// payments or enabled, plus the current year, ascending.
func (e *Engine) Years(ctx context.Context, id ledger.ChildID) ([]int, error) {
	st, err := e.state(ctx, id)
	if err != nil {
		return nil, err
	}
	years := append(st.organized.Years(), st.child.EnabledYears...)
	years = append(years, e.Today().Year())
	return ledger.NewYearSet(years...), nil
}
