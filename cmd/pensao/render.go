package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/warp/alimony-tracker/client"
	"github.com/warp/alimony-tracker/ledger"
	"github.com/warp/alimony-tracker/locale"
	"github.com/warp/alimony-tracker/reconcile"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func renderOverview(w io.Writer, loc *locale.Localizer, rows []reconcile.ChildOverview) {
	if len(rows) == 0 {
		fmt.Fprintln(w, loc.Msg(locale.KeyNoChildren, nil))
		return
	}
	tw := newTable(w)
	fmt.Fprintf(tw, "ID\t%s\t%s\t%s\t%s\tSTATUS\n",
		"NOME", loc.Msg(locale.KeyAgeLabel, nil), loc.Msg(locale.KeyObligationLabel, nil), loc.Msg(locale.KeyDebtLabel, nil))
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.Child.ID,
			r.Child.FullName,
			r.Age,
			loc.FormatMoney(r.Child.MonthlyObligation),
			loc.FormatMoney(r.Debt.TotalOwed),
			loc.DebtStatus(r.Debt.Status),
		)
	}
	tw.Flush()
}

// renderYear prints the twelve months of view followed by the child's total.
func renderYear(w io.Writer, loc *locale.Localizer, child ledger.Child, view ledger.YearView, summary ledger.DebtSummary) {
	state := loc.Msg(locale.KeyYearDisabled, nil)
	if view.Enabled {
		state = loc.Msg(locale.KeyYearEnabled, nil)
	}
	fmt.Fprintf(w, "%s - %d (%s)\n", child.FullName, view.Year, state)
	fmt.Fprintf(w, "%s: %s\n\n", loc.Msg(locale.KeyObligationLabel, nil), loc.FormatMoney(child.MonthlyObligation))

	tw := newTable(w)
	for _, m := range view.Months {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			loc.MonthName(m.Month),
			loc.MonthStatus(m.Status),
			loc.FormatMoney(m.Paid),
			describePayments(loc, m.Payments),
		)
	}
	tw.Flush()

	fmt.Fprintf(w, "\n%s: %s (%s)\n",
		loc.Msg(locale.KeyDebtLabel, nil), loc.FormatMoney(summary.TotalOwed), loc.DebtStatus(summary.Status))
}

func describePayments(loc *locale.Localizer, b ledger.Bucket) string {
	if len(b) == 0 {
		return loc.Msg(locale.KeyNoPayments, nil)
	}
	parts := make([]string, 0, len(b))
	for _, p := range b {
		parts = append(parts, fmt.Sprintf("#%d %s %s", p.ID, loc.FormatDate(p.PaymentDate), loc.FormatMoney(p.Amount)))
	}
	return strings.Join(parts, "; ")
}

// renderServerCheck compares the local total with the server's and flags
// any month classified differently.
func renderServerCheck(w io.Writer, loc *locale.Localizer, local ledger.DebtSummary, view ledger.YearView, report client.LedgerReport) {
	fmt.Fprintf(w, "server: %s (%s)\n", loc.FormatMoney(report.TotalOwed), report.Status)
	if !report.TotalOwed.Equal(local.TotalOwed) {
		fmt.Fprintf(w, "mismatch: local %s, server %s\n", loc.FormatMoney(local.TotalOwed), loc.FormatMoney(report.TotalOwed))
	}
	for _, row := range report.Months {
		if row.Month < 1 || row.Month > 12 {
			continue
		}
		m := view.Months[row.Month-1]
		if string(m.Status) != row.Status {
			fmt.Fprintf(w, "mismatch: %s local %s, server %s\n",
				loc.MonthName(m.Month), loc.MonthStatus(m.Status), loc.MonthStatus(ledger.MonthStatus(row.Status)))
		}
	}
}

func renderToggle(w io.Writer, loc *locale.Localizer, res reconcile.ToggleResult) {
	years := make([]string, 0, len(res.EnabledYears))
	for _, y := range res.EnabledYears {
		years = append(years, strconv.Itoa(y))
	}
	state := loc.Msg(locale.KeyYearDisabled, nil)
	if res.Checked {
		state = loc.Msg(locale.KeyYearEnabled, nil)
	}
	fmt.Fprintf(w, "%d: %s [%s]\n", res.Decision.Year, state, strings.Join(years, ", "))
	fmt.Fprintf(w, "%s: %s\n", loc.Msg(locale.KeyDebtLabel, nil), loc.FormatMoney(res.Debt.TotalOwed))
}

