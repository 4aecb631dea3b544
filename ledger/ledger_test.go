package ledger_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/alimony-tracker/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func money(s string) ledger.Money { return ledger.MustParseMoney(s) }

func day(y int, m time.Month, d int) ledger.Date { return ledger.NewDate(y, m, d) }

func pay(id int64, amount string, date ledger.Date) ledger.Payment {
	return ledger.Payment{
		ID:          ledger.PaymentID(id),
		ChildID:     1,
		Amount:      money(amount),
		PaymentDate: date,
	}
}

func child(obligation string, years ...int) ledger.Child {
	return ledger.Child{
		ID:                1,
		FullName:          "Ana Souza",
		Gender:            "F",
		DateOfBirth:       "2015-06-01",
		MonthlyObligation: money(obligation),
		EnabledYears:      ledger.NewYearSet(years...),
	}
}

// scenarioPayments is January paid in full, February partially, March nothing.
func scenarioPayments() []ledger.Payment {
	return []ledger.Payment{
		pay(1, "500.00", day(2024, time.January, 10)),
		pay(2, "200.00", day(2024, time.February, 5)),
	}
}

// =============================================================================
// ORGANIZER TESTS
// =============================================================================

func TestOrganize_BucketsByPaymentDate(t *testing.T) {
	// GIVEN: A payment whose reference month differs from its payment date
	p := pay(1, "100", day(2024, time.March, 3))
	p.MonthReference = 1
	p.YearReference = 2023

	// WHEN: Organizing
	l := ledger.Organize([]ledger.Payment{p})

	// THEN: The payment date decides the bucket
	assert.Equal(t, []int{2024}, l.Years())
	assert.Len(t, l.Bucket(2024, time.March), 1)
	assert.Empty(t, l.Bucket(2024, time.January))
	assert.Empty(t, l.Bucket(2023, time.January))
}

func TestOrganize_AllocatesTwelveBuckets(t *testing.T) {
	l := ledger.Organize([]ledger.Payment{pay(1, "10", day(2022, time.July, 1))})

	for m := time.January; m <= time.December; m++ {
		assert.NotNil(t, l.Bucket(2022, m), "month %s should have a bucket", m)
	}
	assert.Nil(t, l.Bucket(2021, time.July), "absent year has no bucket")
}

func TestOrganize_SortsStablyByDate(t *testing.T) {
	// GIVEN: Out-of-order payments with a tie on the 10th
	payments := []ledger.Payment{
		pay(1, "10", day(2024, time.May, 20)),
		pay(2, "20", day(2024, time.May, 10)),
		pay(3, "30", day(2024, time.May, 1)),
		pay(4, "40", day(2024, time.May, 10)),
	}

	l := ledger.Organize(payments)

	// THEN: Ascending by date, the tie keeps input order (2 before 4)
	var ids []ledger.PaymentID
	for _, p := range l.Bucket(2024, time.May) {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []ledger.PaymentID{3, 2, 4, 1}, ids)
}

func TestOrganize_IdempotentAndOrderIndependentSortedness(t *testing.T) {
	payments := []ledger.Payment{
		pay(1, "10", day(2023, time.December, 31)),
		pay(2, "20", day(2024, time.January, 15)),
		pay(3, "30", day(2024, time.January, 2)),
		pay(4, "40", day(2024, time.August, 9)),
		pay(5, "50", day(2024, time.August, 1)),
	}

	first := ledger.Organize(payments)
	second := ledger.Organize(payments)
	assert.True(t, first.Equal(second), "organize must be idempotent")

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]ledger.Payment(nil), payments...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		l := ledger.Organize(shuffled)
		assert.True(t, l.Equal(first), "no ties, so any input order yields the same ledger")
	}
}

func TestOrganize_DoesNotMutateInput(t *testing.T) {
	payments := []ledger.Payment{
		pay(1, "10", day(2024, time.May, 20)),
		pay(2, "20", day(2024, time.May, 1)),
	}
	ledger.Organize(payments)
	assert.Equal(t, ledger.PaymentID(1), payments[0].ID)
}

func TestLedger_PutAndRemoveMatchFullRebuild(t *testing.T) {
	base := []ledger.Payment{
		pay(1, "100", day(2024, time.January, 5)),
		pay(2, "200", day(2024, time.February, 5)),
	}
	l := ledger.Organize(base)

	// Add
	added := l.Put(pay(3, "50", day(2024, time.January, 2)))
	assert.True(t, added.Equal(ledger.Organize(append(base, pay(3, "50", day(2024, time.January, 2))))))
	assert.Len(t, l.Bucket(2024, time.January), 1, "receiver is untouched")

	// Edit within the same month
	edited := added.Put(pay(3, "75", day(2024, time.January, 2)))
	got, ok := edited.Find(3)
	require.True(t, ok)
	assert.True(t, got.Amount.Equal(money("75")))

	// Edit that moves the payment to another year
	moved := edited.Put(pay(3, "75", day(2023, time.December, 30)))
	assert.Len(t, moved.Bucket(2024, time.January), 1)
	assert.Len(t, moved.Bucket(2023, time.December), 1)

	// Delete
	removed := moved.Remove(3)
	assert.Equal(t, ledger.Organize(base).Payments(), removed.Payments())
	assert.Empty(t, removed.Bucket(2023, time.December))
	_, ok = removed.Find(3)
	assert.False(t, ok)
	assert.Len(t, removed.Payments(), 2)
}

// =============================================================================
// CLASSIFIER TESTS
// =============================================================================

func TestClassifyMonth(t *testing.T) {
	today := day(2024, time.March, 15)
	obligation := money("500.00")

	tests := []struct {
		name   string
		bucket ledger.Bucket
		year   int
		month  time.Month
		want   ledger.MonthStatus
	}{
		{"fully paid", ledger.Bucket{pay(1, "500", day(2024, 1, 1))}, 2024, time.January, ledger.MonthPaid},
		{"overpaid", ledger.Bucket{pay(1, "600", day(2024, 1, 1))}, 2024, time.January, ledger.MonthPaid},
		{"partial", ledger.Bucket{pay(1, "200", day(2024, 2, 1))}, 2024, time.February, ledger.MonthPartial},
		{"unpaid current month", nil, 2024, time.March, ledger.MonthUnpaid},
		{"unpaid past year", ledger.Bucket{}, 2023, time.December, ledger.MonthUnpaid},
		{"future month same year", nil, 2024, time.April, ledger.MonthNotApplicable},
		{"future year", nil, 2025, time.January, ledger.MonthNotApplicable},
		{"split payments sum to obligation", ledger.Bucket{
			pay(1, "0.10", day(2024, 1, 1)),
			pay(2, "0.20", day(2024, 1, 2)),
			pay(3, "499.70", day(2024, 1, 3)),
		}, 2024, time.January, ledger.MonthPaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ledger.ClassifyMonth(obligation, tt.bucket, tt.year, tt.month, today)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyMonth_FutureIgnoresPayments(t *testing.T) {
	// A payment recorded against a future month is stored but not counted.
	today := day(2024, time.March, 15)
	bucket := ledger.Bucket{pay(1, "9999", day(2024, time.April, 1))}

	for _, obligation := range []string{"0", "1", "500", "10000"} {
		got := ledger.ClassifyMonth(money(obligation), bucket, 2024, time.April, today)
		assert.Equal(t, ledger.MonthNotApplicable, got)
	}
}

func TestClassifyMonth_FloatRepresentation(t *testing.T) {
	// 0.1 + 0.2 must compare equal to 0.3.
	bucket := ledger.Bucket{
		{ID: 1, Amount: ledger.NewMoney(0.1), PaymentDate: day(2024, 1, 1)},
		{ID: 2, Amount: ledger.NewMoney(0.2), PaymentDate: day(2024, 1, 2)},
	}
	got := ledger.ClassifyMonth(ledger.NewMoney(0.3), bucket, 2024, time.January, day(2024, 6, 1))
	assert.Equal(t, ledger.MonthPaid, got)
}

// =============================================================================
// DEBT AGGREGATOR TESTS
// =============================================================================

func TestComputeDebt_Scenario(t *testing.T) {
	// GIVEN: 500/month, 2024 enabled, Jan full, Feb 200, Mar nothing
	c := child("500.00", 2024)
	l := ledger.Organize(scenarioPayments())
	today := day(2024, time.March, 15)

	// WHEN
	summary := ledger.ComputeDebt(c, l, today)
	view := ledger.BuildYearView(c, l, 2024, today)

	// THEN
	assert.Equal(t, ledger.MonthPaid, view.Months[0].Status)
	assert.Equal(t, ledger.MonthPartial, view.Months[1].Status)
	assert.Equal(t, ledger.MonthUnpaid, view.Months[2].Status)
	assert.Equal(t, ledger.MonthNotApplicable, view.Months[3].Status)
	assert.True(t, view.Enabled)

	assert.Equal(t, "800.00", summary.TotalOwed.String())
	assert.Equal(t, ledger.DebtDelinquent, summary.Status)
	assert.Equal(t, "red", summary.Status.Color())
	require.Len(t, summary.Owing, 2)
	assert.Equal(t, time.February, summary.Owing[0].Month)
	assert.Equal(t, "300.00", summary.Owing[0].Shortfall.String())
}

func TestComputeDebt_NoEnabledYears(t *testing.T) {
	c := child("500.00")
	l := ledger.Organize(scenarioPayments())

	summary := ledger.ComputeDebt(c, l, day(2024, time.March, 15))

	assert.True(t, summary.TotalOwed.IsZero())
	assert.Equal(t, "0.00", summary.TotalOwed.String())
	assert.Equal(t, ledger.DebtClear, summary.Status)
}

func TestComputeDebt_PartialOnly(t *testing.T) {
	// Every counted month had something paid, so yellow rather than red.
	c := child("100", 2024)
	l := ledger.Organize([]ledger.Payment{
		pay(1, "100", day(2024, time.January, 1)),
		pay(2, "40", day(2024, time.February, 1)),
	})

	summary := ledger.ComputeDebt(c, l, day(2024, time.February, 20))

	assert.Equal(t, "60.00", summary.TotalOwed.String())
	assert.Equal(t, ledger.DebtPartial, summary.Status)
}

func TestComputeDebt_DelinquentTakesPrecedence(t *testing.T) {
	// Unpaid January followed by a partial February stays delinquent.
	c := child("100", 2024)
	l := ledger.Organize([]ledger.Payment{pay(1, "40", day(2024, time.February, 1))})

	summary := ledger.ComputeDebt(c, l, day(2024, time.February, 20))

	assert.Equal(t, "160.00", summary.TotalOwed.String())
	assert.Equal(t, ledger.DebtDelinquent, summary.Status)
}

func TestComputeDebt_AllPaidIsClear(t *testing.T) {
	c := child("100", 2024)
	l := ledger.Organize([]ledger.Payment{
		pay(1, "100", day(2024, time.January, 1)),
		pay(2, "150", day(2024, time.February, 1)),
	})

	summary := ledger.ComputeDebt(c, l, day(2024, time.February, 20))

	assert.True(t, summary.TotalOwed.IsZero())
	assert.Equal(t, ledger.DebtClear, summary.Status)
	assert.Empty(t, summary.Owing)
}

func TestComputeDebt_FutureYearsContributeNothing(t *testing.T) {
	c := child("100", 2030)
	summary := ledger.ComputeDebt(c, ledger.Organize(nil), day(2024, time.February, 20))
	assert.True(t, summary.TotalOwed.IsZero())
	assert.Equal(t, ledger.DebtClear, summary.Status)
}

func TestComputeDebt_PastYearCountsAllMonths(t *testing.T) {
	c := child("10", 2023)
	summary := ledger.ComputeDebt(c, ledger.Organize(nil), day(2024, time.February, 20))
	assert.Equal(t, "120.00", summary.TotalOwed.String())
	assert.Len(t, summary.Owing, 12)
}

func TestComputeDebt_OverpaymentDoesNotCarryOver(t *testing.T) {
	// Paying double in January does not cover February.
	c := child("100", 2024)
	l := ledger.Organize([]ledger.Payment{pay(1, "200", day(2024, time.January, 1))})

	summary := ledger.ComputeDebt(c, l, day(2024, time.February, 1))

	assert.Equal(t, "100.00", summary.TotalOwed.String())
}

func TestComputeDebt_ZeroObligationIsClear(t *testing.T) {
	c := child("0", 2023, 2024)
	summary := ledger.ComputeDebt(c, ledger.Organize(nil), day(2024, time.June, 1))
	assert.Equal(t, ledger.DebtClear, summary.Status)
	assert.True(t, summary.TotalOwed.IsZero())
}

func TestComputeDebt_YearOrderDoesNotMatter(t *testing.T) {
	l := ledger.Organize([]ledger.Payment{
		pay(1, "33.33", day(2022, time.March, 1)),
		pay(2, "100", day(2023, time.July, 1)),
		pay(3, "12.5", day(2024, time.January, 9)),
	})
	today := day(2024, time.April, 2)

	base := child("66.67")
	base.EnabledYears = ledger.YearSet{2022, 2023, 2024}
	want := ledger.ComputeDebt(base, l, today)

	for _, order := range [][]int{{2024, 2023, 2022}, {2023, 2022, 2024}, {2024, 2022, 2023}} {
		c := base
		c.EnabledYears = ledger.YearSet(order)
		got := ledger.ComputeDebt(c, l, today)
		assert.True(t, want.TotalOwed.Equal(got.TotalOwed), "order %v", order)
		assert.Equal(t, want.Status, got.Status, "order %v", order)
	}
}

func TestComputeDebt_NoFloatDrift(t *testing.T) {
	// Thirty-six months of 0.10 shortfall add up to exactly 3.60.
	c := child("0.30", 2021, 2022, 2023)
	var payments []ledger.Payment
	id := int64(1)
	for _, y := range []int{2021, 2022, 2023} {
		for m := time.January; m <= time.December; m++ {
			payments = append(payments, ledger.Payment{
				ID: ledger.PaymentID(id), Amount: ledger.NewMoney(0.1), PaymentDate: day(y, m, 1),
			}, ledger.Payment{
				ID: ledger.PaymentID(id + 1), Amount: ledger.NewMoney(0.1), PaymentDate: day(y, m, 2),
			})
			id += 2
		}
	}

	summary := ledger.ComputeDebt(c, ledger.Organize(payments), day(2024, time.January, 1))

	assert.Equal(t, "3.60", summary.TotalOwed.String())
	assert.Equal(t, ledger.DebtPartial, summary.Status)
}

// =============================================================================
// TOGGLE TESTS
// =============================================================================

func TestProposeToggle(t *testing.T) {
	c := child("100", 2022, 2024)

	enable := ledger.ProposeToggle(c, 2023)
	assert.Equal(t, ledger.ActionEnable, enable.Action)
	assert.Equal(t, ledger.EffectIncrease, enable.Effect)
	assert.Equal(t, ledger.YearSet{2022, 2023, 2024}, enable.Proposed)
	assert.False(t, enable.CheckedBefore())
	assert.True(t, enable.CheckedAfter())
	assert.Contains(t, enable.Describe(nil), "increase")

	disable := ledger.ProposeToggle(c, 2024)
	assert.Equal(t, ledger.ActionDisable, disable.Action)
	assert.Equal(t, ledger.EffectDecrease, disable.Effect)
	assert.Equal(t, ledger.YearSet{2022}, disable.Proposed)
	assert.Contains(t, disable.Describe(nil), "decrease")

	// The child itself is untouched.
	assert.Equal(t, ledger.YearSet{2022, 2024}, c.EnabledYears)
}

func TestYearSet(t *testing.T) {
	s := ledger.NewYearSet(2024, 2022, 2024, 2023)
	assert.Equal(t, ledger.YearSet{2022, 2023, 2024}, s)
	assert.True(t, s.Contains(2023))
	assert.Equal(t, ledger.YearSet{2022, 2024}, s.Without(2023))
	assert.Equal(t, s, s.With(2022), "adding an existing year is a no-op")
	assert.Equal(t, ledger.YearSet{}, ledger.NewYearSet())
	assert.True(t, ledger.YearSet{2024, 2022}.Equal(ledger.YearSet{2022, 2024}))

	var unset ledger.YearSet
	assert.Nil(t, unset.Clone(), "never set stays nil")
	assert.Equal(t, ledger.YearSet{}, ledger.YearSet{}.Clone(), "explicit empty stays empty")
}

// =============================================================================
// AGE & DATE TESTS
// =============================================================================

func TestAgeOn(t *testing.T) {
	age, ok := ledger.AgeOn("2010-05-20", day(2024, time.May, 19))
	require.True(t, ok)
	assert.Equal(t, 13, age, "birthday not reached yet")

	age, ok = ledger.AgeOn("2010-05-20", day(2024, time.May, 20))
	require.True(t, ok)
	assert.Equal(t, 14, age)

	age, ok = ledger.AgeOn("2010-05-20", day(2024, time.April, 30))
	require.True(t, ok)
	assert.Equal(t, 13, age)

	_, ok = ledger.AgeOn("", day(2024, time.May, 20))
	assert.False(t, ok)
	_, ok = ledger.AgeOn("20/05/2010", day(2024, time.May, 20))
	assert.False(t, ok)
	assert.Equal(t, ledger.AgeNotAvailable, ledger.AgeLabel("garbage", day(2024, 1, 1)))
	assert.Equal(t, "14", ledger.AgeLabel("2010-05-20", day(2024, time.May, 20)))
}

func TestDateConversion_RoundTrip(t *testing.T) {
	for _, s := range []string{"15/03/2024", "01/01/2000", "29/02/2024", "31/12/1999"} {
		iso, err := ledger.ToBackendDate(s)
		require.NoError(t, err, s)
		back, err := ledger.ToDisplayDate(iso)
		require.NoError(t, err, s)
		assert.Equal(t, s, back)
	}

	iso, err := ledger.ToBackendDate("15/03/2024")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", iso)
}

func TestDateConversion_RejectsInvalid(t *testing.T) {
	for _, s := range []string{"", "1/3/2024", "31/02/2024", "29/02/2023", "2024-03-15", "aa/bb/cccc", "15/13/2024"} {
		_, err := ledger.ToBackendDate(s)
		assert.ErrorIs(t, err, ledger.ErrInvalidInput, s)
	}
	_, err := ledger.ToDisplayDate("2024-02-30")
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
}

// =============================================================================
// MONEY & VALIDATION TESTS
// =============================================================================

func TestParseMoney(t *testing.T) {
	m, err := ledger.ParseMoney(" 1234,5 ")
	require.NoError(t, err)
	assert.Equal(t, "1234.50", m.String())
	assert.Equal(t, int64(123450), m.Cents())

	_, err = ledger.ParseMoney("abc")
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
	_, err = ledger.ParseMoney("")
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
}

func TestPaymentInput_Parse(t *testing.T) {
	today := day(2024, time.March, 15)

	p, err := ledger.PaymentInput{ChildID: 1, Amount: "150,00", Date: "10/03/2024", Month: time.March, Year: 2024}.Parse(today)
	require.NoError(t, err)
	assert.Equal(t, "150.00", p.Amount.String())
	assert.Equal(t, "2024-03-10", p.PaymentDate.String())
	assert.Equal(t, 3, p.MonthReference)

	cases := map[string]ledger.PaymentInput{
		"negative amount": {Amount: "-5", Date: "10/03/2024"},
		"zero amount":     {Amount: "0", Date: "10/03/2024"},
		"bad date":        {Amount: "5", Date: "32/03/2024"},
		"future date":     {Amount: "5", Date: "16/03/2024"},
		"bad month":       {Amount: "5", Date: "10/03/2024", Month: 13},
	}
	for name, in := range cases {
		_, err := in.Parse(today)
		var verr *ledger.ValidationError
		assert.ErrorAs(t, err, &verr, name)
	}
}

func TestChild_Validate(t *testing.T) {
	assert.NoError(t, child("100").Validate())

	c := child("100")
	c.MonthlyObligation = money("-1")
	assert.ErrorIs(t, c.Validate(), ledger.ErrInvalidInput)

	c = child("100")
	c.FullName = " "
	assert.ErrorIs(t, c.Validate(), ledger.ErrInvalidInput)
}

func TestRejectedError_Unwrap(t *testing.T) {
	assert.True(t, ledger.IsSessionInvalid(&ledger.RejectedError{Status: 401}))
	assert.True(t, ledger.IsNotFound(&ledger.RejectedError{Status: 404}))
	assert.False(t, ledger.IsSessionInvalid(&ledger.RejectedError{Status: 500}))
	assert.Contains(t, (&ledger.RejectedError{Status: 400, Message: "Dados em falta"}).Error(), "Dados em falta")
}
