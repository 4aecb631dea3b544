package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/alimony-tracker/ledger"
	"github.com/warp/alimony-tracker/reconcile"
	"github.com/warp/alimony-tracker/store/memory"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

// flaky wraps the memory store with injectable failures, call counters and an
// optional gate that blocks ListPayments until released.
type flaky struct {
	*memory.Store

	mu         sync.Mutex
	failUpdate error
	failCreate error
	failList   error
	paymentsNF bool
	gate       chan struct{}
	listCalls  atomic.Int32
	childCalls atomic.Int32
}

func (f *flaky) ListChildren(ctx context.Context) ([]ledger.Child, error) {
	f.childCalls.Add(1)
	return f.Store.ListChildren(ctx)
}

func (f *flaky) ListPayments(ctx context.Context, id ledger.ChildID) ([]ledger.Payment, error) {
	f.listCalls.Add(1)
	f.mu.Lock()
	gate, err, nf := f.gate, f.failList, f.paymentsNF
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if nf {
		return nil, &ledger.RejectedError{Status: 404, Message: "Nenhum pagamento"}
	}
	return f.Store.ListPayments(ctx, id)
}

func (f *flaky) UpdateEnabledYears(ctx context.Context, id ledger.ChildID, years ledger.YearSet) error {
	f.mu.Lock()
	err := f.failUpdate
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.UpdateEnabledYears(ctx, id, years)
}

func (f *flaky) CreatePayment(ctx context.Context, p ledger.Payment) (ledger.Payment, error) {
	f.mu.Lock()
	err := f.failCreate
	f.mu.Unlock()
	if err != nil {
		return ledger.Payment{}, err
	}
	return f.Store.CreatePayment(ctx, p)
}

type fixture struct {
	store  *flaky
	engine *reconcile.Engine
	child  ledger.Child
}

// newFixture seeds the scenario child: 500/month, 2024 enabled, Jan 500,
// Feb 200, March nothing, today 2024-03-15.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := &flaky{Store: memory.New()}
	c := store.AddChild(ledger.Child{
		FullName:          "Ana Souza",
		Gender:            "F",
		DateOfBirth:       "2010-05-20",
		MonthlyObligation: ledger.MustParseMoney("500.00"),
		EnabledYears:      ledger.YearSet{2024},
	})
	ctx := context.Background()
	_, err := store.Store.CreatePayment(ctx, ledger.Payment{ChildID: c.ID, Amount: ledger.MustParseMoney("500"), PaymentDate: ledger.NewDate(2024, time.January, 10)})
	require.NoError(t, err)
	_, err = store.Store.CreatePayment(ctx, ledger.Payment{ChildID: c.ID, Amount: ledger.MustParseMoney("200"), PaymentDate: ledger.NewDate(2024, time.February, 5)})
	require.NoError(t, err)

	engine := reconcile.New(store, store, reconcile.WithClock(reconcile.FixedDay(2024, time.March, 15)))
	return &fixture{store: store, engine: engine, child: c}
}

// =============================================================================
// QUERY TESTS
// =============================================================================

func TestEngine_SummaryScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	summary, err := f.engine.Summary(ctx, f.child.ID)
	require.NoError(t, err)
	assert.Equal(t, "800.00", summary.TotalOwed.String())
	assert.Equal(t, ledger.DebtDelinquent, summary.Status)

	view, err := f.engine.YearView(ctx, f.child.ID, 2024)
	require.NoError(t, err)
	assert.Equal(t, ledger.MonthPaid, view.Months[0].Status)
	assert.Equal(t, ledger.MonthPartial, view.Months[1].Status)
	assert.Equal(t, ledger.MonthUnpaid, view.Months[2].Status)
	assert.Equal(t, ledger.MonthNotApplicable, view.Months[11].Status)
}

func TestEngine_OverviewIncludesAge(t *testing.T) {
	f := newFixture(t)

	rows, err := f.engine.Overview(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "13", rows[0].Age)
	assert.Equal(t, "800.00", rows[0].Debt.TotalOwed.String())
}

func TestEngine_ReadThroughCachesState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.engine.Summary(ctx, f.child.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.store.listCalls.Load(), "payments fetched once")
}

func TestEngine_ConcurrentMissesShareOneFetch(t *testing.T) {
	f := newFixture(t)
	f.store.gate = make(chan struct{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Summary(ctx, f.child.ID)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(f.store.gate)
	wg.Wait()

	assert.Equal(t, int32(1), f.store.listCalls.Load())
}

func TestEngine_PaymentsNotFoundMeansEmpty(t *testing.T) {
	f := newFixture(t)
	f.store.paymentsNF = true

	summary, err := f.engine.Summary(context.Background(), f.child.ID)
	require.NoError(t, err)
	assert.Equal(t, "1500.00", summary.TotalOwed.String())
}

func TestEngine_LoadFetchesEveryChild(t *testing.T) {
	f := newFixture(t)
	second := f.store.AddChild(ledger.Child{
		FullName: "Bruno", Gender: "M", DateOfBirth: "2018-01-01",
		MonthlyObligation: ledger.MustParseMoney("100"), EnabledYears: ledger.YearSet{},
	})

	require.NoError(t, f.engine.Load(context.Background()))

	children, err := f.engine.Children(context.Background())
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, f.child.ID, children[0].ID)
	assert.Equal(t, second.ID, children[1].ID)

	summary, err := f.engine.Summary(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.DebtClear, summary.Status, "explicit empty years owe nothing")
	assert.Equal(t, int32(2), f.store.listCalls.Load())
}

func TestEngine_LoadFailureKeepsPreviousState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Load(ctx))

	f.store.failList = ledger.ErrUnreachable
	err := f.engine.Load(ctx)
	assert.ErrorIs(t, err, ledger.ErrUnreachable)

	summary, err := f.engine.Summary(ctx, f.child.ID)
	require.NoError(t, err)
	assert.Equal(t, "800.00", summary.TotalOwed.String())
}

func TestEngine_UnknownChild(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Summary(context.Background(), 999)
	assert.ErrorIs(t, err, ledger.ErrChildNotFound)
	assert.True(t, ledger.IsNotFound(err))
}

func TestEngine_Years(t *testing.T) {
	f := newFixture(t)
	years, err := f.engine.Years(context.Background(), f.child.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{2024}, years)
}

// =============================================================================
// PAYMENT MUTATION TESTS
// =============================================================================

func TestEngine_AddPaymentRecomputes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// WHEN: March is paid in full
	p, err := f.engine.AddPayment(ctx, ledger.PaymentInput{
		ChildID: f.child.ID, Amount: "500,00", Date: "15/03/2024", Month: time.March, Year: 2024,
	})
	require.NoError(t, err)
	assert.NotZero(t, p.ID)

	// THEN: Only February's 300 remains, and nothing was paid-zero
	summary, err := f.engine.Summary(ctx, f.child.ID)
	require.NoError(t, err)
	assert.Equal(t, "300.00", summary.TotalOwed.String())
	assert.Equal(t, ledger.DebtPartial, summary.Status)
}

func TestEngine_AddPaymentValidatesBeforeCalling(t *testing.T) {
	f := newFixture(t)
	f.store.failCreate = errors.New("must not be called")

	_, err := f.engine.AddPayment(context.Background(), ledger.PaymentInput{
		ChildID: f.child.ID, Amount: "10", Date: "16/03/2024",
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidInput, "future date is rejected locally")
	assert.Equal(t, int32(0), f.store.listCalls.Load())
}

func TestEngine_AddPaymentFailureLeavesState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.Summary(ctx, f.child.ID)
	require.NoError(t, err)

	f.store.failCreate = ledger.ErrUnreachable
	_, err = f.engine.AddPayment(ctx, ledger.PaymentInput{ChildID: f.child.ID, Amount: "10", Date: "01/03/2024"})
	assert.ErrorIs(t, err, ledger.ErrUnreachable)

	summary, err := f.engine.Summary(ctx, f.child.ID)
	require.NoError(t, err)
	assert.Equal(t, "800.00", summary.TotalOwed.String())
	assert.False(t, f.engine.Busy(f.child.ID))
}

func TestEngine_UpdatePaymentMovesBetweenMonths(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l, err := f.engine.Ledger(ctx, f.child.ID)
	require.NoError(t, err)
	feb := l.Bucket(2024, time.February)[0]

	// WHEN: The February payment is re-dated into March
	updated, err := f.engine.UpdatePayment(ctx, f.child.ID, feb.ID, ledger.PaymentInput{Amount: "200", Date: "01/03/2024"})
	require.NoError(t, err)
	assert.Equal(t, feb.ID, updated.ID)

	// THEN: February is unpaid, March partial
	view, err := f.engine.YearView(ctx, f.child.ID, 2024)
	require.NoError(t, err)
	assert.Equal(t, ledger.MonthUnpaid, view.Months[1].Status)
	assert.Equal(t, ledger.MonthPartial, view.Months[2].Status)
}

func TestEngine_UpdateUnknownPaymentIsStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.Summary(ctx, f.child.ID)
	require.NoError(t, err)

	// GIVEN: Another session added a March payment behind our back
	_, err = f.store.Store.CreatePayment(ctx, ledger.Payment{
		ChildID: f.child.ID, Amount: ledger.MustParseMoney("500"), PaymentDate: ledger.NewDate(2024, time.March, 1),
	})
	require.NoError(t, err)

	// WHEN: Editing an id the cache does not know
	_, err = f.engine.UpdatePayment(ctx, f.child.ID, 999, ledger.PaymentInput{Amount: "1", Date: "01/03/2024"})

	// THEN: Stale cache is reported and the cache was refetched
	assert.ErrorIs(t, err, ledger.ErrStaleCache)
	summary, err := f.engine.Summary(ctx, f.child.ID)
	require.NoError(t, err)
	assert.Equal(t, "300.00", summary.TotalOwed.String())
}

func TestEngine_DeletePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l, err := f.engine.Ledger(ctx, f.child.ID)
	require.NoError(t, err)
	jan := l.Bucket(2024, time.January)[0]

	require.NoError(t, f.engine.DeletePayment(ctx, f.child.ID, jan.ID))

	summary, err := f.engine.Summary(ctx, f.child.ID)
	require.NoError(t, err)
	assert.Equal(t, "1300.00", summary.TotalOwed.String())

	err = f.engine.DeletePayment(ctx, f.child.ID, jan.ID)
	assert.ErrorIs(t, err, ledger.ErrStaleCache)
}

func TestEngine_UnsetYearsCountCurrentYear(t *testing.T) {
	store := memory.New()
	c := store.AddChild(ledger.Child{FullName: "Bia", MonthlyObligation: ledger.MustParseMoney("500")})
	require.Nil(t, c.EnabledYears)
	engine := reconcile.New(store, store, reconcile.WithClock(reconcile.FixedDay(2024, time.March, 15)))
	ctx := context.Background()

	// GIVEN: A child whose years were never recorded
	summary, err := engine.Summary(ctx, c.ID)
	require.NoError(t, err)

	// THEN: The current year counts
	assert.Equal(t, "1500.00", summary.TotalOwed.String())
	child, err := engine.Child(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.YearSet{2024}, child.EnabledYears)

	// WHEN: 2024 is disabled, the explicit empty set is persisted
	d, err := engine.ProposeToggle(ctx, c.ID, 2024)
	require.NoError(t, err)
	assert.Equal(t, ledger.ActionDisable, d.Action)
	_, err = engine.ApplyToggle(ctx, c.ID, 2024, true)
	require.NoError(t, err)

	children, err := store.ListChildren(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.YearSet{}, children[0].EnabledYears)
	summary, err = engine.Summary(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", summary.TotalOwed.String())
}

// =============================================================================
// LAST REQUEST WINS
// =============================================================================

func TestEngine_SupersededFetchIsDiscarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.Summary(ctx, f.child.ID)
	require.NoError(t, err)

	// GIVEN: A refresh stuck in ListPayments
	f.store.mu.Lock()
	f.store.gate = make(chan struct{})
	f.store.mu.Unlock()
	done := make(chan error, 1)
	go func() { done <- f.engine.Refresh(ctx, f.child.ID) }()
	require.Eventually(t, func() bool { return f.store.listCalls.Load() == 2 }, time.Second, 5*time.Millisecond)

	// WHEN: A payment is added through the engine meanwhile, and another one
	// lands in the store out of band before the refresh answers
	_, err = f.engine.AddPayment(ctx, ledger.PaymentInput{ChildID: f.child.ID, Amount: "300", Date: "01/03/2024"})
	require.NoError(t, err)
	_, err = f.store.Store.CreatePayment(ctx, ledger.Payment{
		ChildID: f.child.ID, Amount: ledger.MustParseMoney("200"), PaymentDate: ledger.NewDate(2024, time.March, 2),
	})
	require.NoError(t, err)
	close(f.store.gate)
	require.NoError(t, <-done)

	// THEN: The older response did not overwrite the newer state
	summary, err := f.engine.Summary(ctx, f.child.ID)
	require.NoError(t, err)
	assert.Equal(t, "500.00", summary.TotalOwed.String())
}

func TestEngine_StaleYearViewIsDiscarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.gate = make(chan struct{})

	type result struct {
		view ledger.YearView
		err  error
	}
	older := make(chan result, 1)
	newer := make(chan result, 1)

	// GIVEN: A 2023 view waiting on the fetch
	go func() {
		v, err := f.engine.YearView(ctx, f.child.ID, 2023)
		older <- result{v, err}
	}()
	require.Eventually(t, func() bool { return f.store.listCalls.Load() == 1 }, time.Second, 5*time.Millisecond)

	// WHEN: The user moves on to 2024 before it answers
	go func() {
		v, err := f.engine.YearView(ctx, f.child.ID, 2024)
		newer <- result{v, err}
	}()
	time.Sleep(20 * time.Millisecond)
	close(f.store.gate)

	// THEN: Only the 2024 view is delivered
	got := <-older
	assert.ErrorIs(t, got.err, ledger.ErrStaleResponse)
	got = <-newer
	require.NoError(t, got.err)
	assert.Equal(t, 2024, got.view.Year)
	assert.Equal(t, ledger.MonthPartial, got.view.Months[1].Status)
}

// =============================================================================
// YEAR TOGGLE TESTS
// =============================================================================

func TestEngine_ToggleRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// GIVEN: A proposal to disable 2024
	d, err := f.engine.ProposeToggle(ctx, f.child.ID, 2024)
	require.NoError(t, err)
	assert.Equal(t, ledger.ActionDisable, d.Action)
	assert.Equal(t, "800.00", d.OwedNow.String())
	assert.True(t, d.OwedAfter.IsZero())
	assert.True(t, f.engine.Busy(f.child.ID))

	// WHEN: The user says no
	res, err := f.engine.ApplyToggle(ctx, f.child.ID, 2024, false)
	require.NoError(t, err)

	// THEN: Nothing changed and the checkbox shows the pre-toggle state
	assert.False(t, res.Applied)
	assert.True(t, res.Checked)
	assert.Equal(t, ledger.YearSet{2024}, res.EnabledYears)
	assert.False(t, f.engine.Busy(f.child.ID))

	children, err := f.store.Store.ListChildren(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.YearSet{2024}, children[0].EnabledYears)
}

func TestEngine_ToggleConfirmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.ProposeToggle(ctx, f.child.ID, 2023)
	require.NoError(t, err)
	res, err := f.engine.ApplyToggle(ctx, f.child.ID, 2023, true)
	require.NoError(t, err)

	assert.True(t, res.Applied)
	assert.True(t, res.Checked)
	assert.Equal(t, ledger.YearSet{2023, 2024}, res.EnabledYears)
	assert.Equal(t, "6800.00", res.Debt.TotalOwed.String())

	children, err := f.store.Store.ListChildren(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.YearSet{2023, 2024}, children[0].EnabledYears)
}

func TestEngine_ToggleFailureReverts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.failUpdate = &ledger.RejectedError{Status: 500, Message: "boom"}

	_, err := f.engine.ProposeToggle(ctx, f.child.ID, 2024)
	require.NoError(t, err)
	res, err := f.engine.ApplyToggle(ctx, f.child.ID, 2024, true)

	require.Error(t, err)
	assert.False(t, res.Applied)
	assert.True(t, res.Checked, "checkbox goes back to checked")
	assert.Equal(t, ledger.YearSet{2024}, res.EnabledYears)

	child, err := f.engine.Child(ctx, f.child.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.YearSet{2024}, child.EnabledYears)
	assert.False(t, f.engine.Busy(f.child.ID))
}

func TestEngine_BusyChildRejectsActions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.ProposeToggle(ctx, f.child.ID, 2024)
	require.NoError(t, err)

	_, err = f.engine.ProposeToggle(ctx, f.child.ID, 2023)
	assert.ErrorIs(t, err, ledger.ErrChildBusy)
	_, err = f.engine.AddPayment(ctx, ledger.PaymentInput{ChildID: f.child.ID, Amount: "1", Date: "01/03/2024"})
	assert.ErrorIs(t, err, ledger.ErrChildBusy)
	assert.True(t, ledger.IsRetryable(err))

	// Reads still work while busy.
	_, err = f.engine.Summary(ctx, f.child.ID)
	assert.NoError(t, err)

	_, err = f.engine.ApplyToggle(ctx, f.child.ID, 2023, true)
	assert.ErrorIs(t, err, ledger.ErrNoPendingToggle, "year must match the pending proposal")

	_, err = f.engine.ApplyToggle(ctx, f.child.ID, 2024, false)
	require.NoError(t, err)
	_, err = f.engine.ApplyToggle(ctx, f.child.ID, 2024, false)
	assert.ErrorIs(t, err, ledger.ErrNoPendingToggle)
}

func TestEngine_ResetDropsCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.Summary(ctx, f.child.ID)
	require.NoError(t, err)

	f.engine.Reset()
	_, err = f.engine.Summary(ctx, f.child.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.store.listCalls.Load())
}

func TestEngine_CancelToggleFreesChild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.ProposeToggle(ctx, f.child.ID, 2024)
	require.NoError(t, err)
	assert.True(t, f.engine.Busy(f.child.ID))

	// WHEN: The prompt is dropped
	assert.True(t, f.engine.CancelToggle(f.child.ID))

	// THEN: Nothing pending, nothing persisted, and the child takes new actions
	assert.False(t, f.engine.Busy(f.child.ID))
	_, ok := f.engine.PendingToggle(f.child.ID)
	assert.False(t, ok)
	_, err = f.engine.ApplyToggle(ctx, f.child.ID, 2024, true)
	assert.ErrorIs(t, err, ledger.ErrNoPendingToggle)

	children, err := f.store.ListChildren(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.YearSet{2024}, children[0].EnabledYears)

	_, err = f.engine.AddPayment(ctx, ledger.PaymentInput{ChildID: f.child.ID, Amount: "1", Date: "01/03/2024"})
	assert.NoError(t, err)
	assert.False(t, f.engine.CancelToggle(f.child.ID))
}
