package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/warp/alimony-tracker/client"
	"github.com/warp/alimony-tracker/ledger"
	"github.com/warp/alimony-tracker/locale"
)

// command binds flags on setup and returns the function that runs once the
// flags are parsed. Commands with session set run after a login.
type command struct {
	summary string
	session bool
	setup   func(fs *flag.FlagSet) func(ctx context.Context, a *app) error
}

var commandOrder = []string{
	"register", "forgot", "reset",
	"add-child", "children", "ledger",
	"pay", "edit-payment", "delete-payment", "toggle-year",
}

var commands = map[string]command{
	"register":       {summary: "create an account", setup: registerCmd},
	"forgot":         {summary: "request a password reset link", setup: forgotCmd},
	"reset":          {summary: "set a new password with a reset token", setup: resetCmd},
	"add-child":      {summary: "register a child", session: true, setup: addChildCmd},
	"children":       {summary: "list children with the amount owed", session: true, setup: childrenCmd},
	"ledger":         {summary: "show the month grid of one year", session: true, setup: ledgerCmd},
	"pay":            {summary: "record a payment", session: true, setup: payCmd},
	"edit-payment":   {summary: "change a payment", session: true, setup: editPaymentCmd},
	"delete-payment": {summary: "delete a payment", session: true, setup: deletePaymentCmd},
	"toggle-year":    {summary: "include or exclude a year from the debt", session: true, setup: toggleYearCmd},
}

// =============================================================================
// ACCOUNT
// =============================================================================

func registerCmd(fs *flag.FlagSet) func(context.Context, *app) error {
	var req client.RegisterRequest
	fs.StringVar(&req.Name, "name", "", "first name")
	fs.StringVar(&req.Surname, "surname", "", "surname")
	fs.StringVar(&req.Email, "email", "", "email address")
	fs.StringVar(&req.Password, "password", "", "password")

	return func(ctx context.Context, a *app) error {
		if req.Name == "" || req.Surname == "" || req.Email == "" || req.Password == "" {
			return usagef("-name, -surname, -email and -password are required")
		}
		if err := a.client.Register(ctx, req); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "registered %s\n", strings.ToLower(req.Email))
		return nil
	}
}

func forgotCmd(fs *flag.FlagSet) func(context.Context, *app) error {
	email := fs.String("email", "", "email address")

	return func(ctx context.Context, a *app) error {
		if *email == "" {
			return usagef("-email is required")
		}
		msg, err := a.client.ForgotPassword(ctx, *email)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, msg)
		return nil
	}
}

func resetCmd(fs *flag.FlagSet) func(context.Context, *app) error {
	token := fs.String("token", "", "token from the reset link")
	password := fs.String("password", "", "new password")
	confirm := fs.String("confirm", "", "new password again")

	return func(ctx context.Context, a *app) error {
		if *token == "" || *password == "" {
			return usagef("-token and -password are required")
		}
		if err := a.client.ResetPassword(ctx, *token, *password, *confirm); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "password updated")
		return nil
	}
}

// =============================================================================
// CHILDREN
// =============================================================================

func addChildCmd(fs *flag.FlagSet) func(context.Context, *app) error {
	name := fs.String("name", "", "full name")
	gender := fs.String("gender", "", "M or F")
	dob := fs.String("dob", "", "date of birth, YYYY-MM-DD or DD/MM/YYYY")
	value := fs.String("value", "", "monthly obligation, e.g. 500,00")
	years := fs.String("years", "", "comma separated enabled years (default: current year)")

	return func(ctx context.Context, a *app) error {
		if *name == "" || *value == "" {
			return usagef("-name and -value are required")
		}
		obligation, err := ledger.ParseMoney(*value)
		if err != nil {
			return err
		}
		child := ledger.Child{
			FullName:          *name,
			Gender:            strings.ToUpper(*gender),
			DateOfBirth:       normalizeDOB(*dob),
			MonthlyObligation: obligation,
		}
		if *years != "" {
			set, err := parseYears(*years)
			if err != nil {
				return err
			}
			child.EnabledYears = set
		}

		created, err := a.client.CreateChild(ctx, child)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "child %d: %s\n", created.ID, created.FullName)
		return nil
	}
}

func childrenCmd(fs *flag.FlagSet) func(context.Context, *app) error {
	return func(ctx context.Context, a *app) error {
		rows, err := a.engine.Overview(ctx)
		if err != nil {
			return err
		}
		renderOverview(a.out, a.loc, rows)
		return nil
	}
}

func ledgerCmd(fs *flag.FlagSet) func(context.Context, *app) error {
	childID := fs.Int64("child", 0, "child id")
	year := fs.Int("year", 0, "year to show (default: current year)")
	server := fs.Bool("server", false, "also print the server's own computation")

	return func(ctx context.Context, a *app) error {
		if *childID <= 0 {
			return usagef("-child is required")
		}
		id := ledger.ChildID(*childID)
		y := *year
		if y == 0 {
			y = a.engine.Today().Year()
		}

		child, err := a.engine.Child(ctx, id)
		if err != nil {
			return err
		}
		view, err := a.engine.YearView(ctx, id, y)
		if err != nil {
			return err
		}
		summary, err := a.engine.Summary(ctx, id)
		if err != nil {
			return err
		}
		renderYear(a.out, a.loc, child, view, summary)

		if *server {
			report, err := a.client.Ledger(ctx, id, y)
			if err != nil {
				return err
			}
			renderServerCheck(a.out, a.loc, summary, view, report)
		}
		return nil
	}
}

// =============================================================================
// PAYMENTS
// =============================================================================

func paymentFlags(fs *flag.FlagSet, in *ledger.PaymentInput) (childID *int64, month *int) {
	childID = fs.Int64("child", 0, "child id")
	fs.StringVar(&in.Amount, "amount", "", "amount, e.g. 150,00")
	fs.StringVar(&in.Date, "date", "", "payment date, DD/MM/YYYY")
	month = fs.Int("month", 0, "month the payment is for (1-12, default: payment month)")
	fs.IntVar(&in.Year, "year", 0, "year the payment is for (default: payment year)")
	return childID, month
}

func payCmd(fs *flag.FlagSet) func(context.Context, *app) error {
	var in ledger.PaymentInput
	childID, month := paymentFlags(fs, &in)

	return func(ctx context.Context, a *app) error {
		if *childID <= 0 || in.Amount == "" || in.Date == "" {
			return usagef("-child, -amount and -date are required")
		}
		if *month < 0 || *month > 12 {
			return usagef("-month must be between 1 and 12")
		}
		in.ChildID = ledger.ChildID(*childID)
		in.Month = time.Month(*month)

		p, err := a.engine.AddPayment(ctx, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s (#%d)\n", a.loc.Msg(locale.KeyPaymentSaved, nil), p.ID)
		return a.printDebt(ctx, in.ChildID)
	}
}

// editPaymentCmd keeps the stored amount and date when the flags are left
// empty.
func editPaymentCmd(fs *flag.FlagSet) func(context.Context, *app) error {
	var in ledger.PaymentInput
	childID, month := paymentFlags(fs, &in)
	paymentID := fs.Int64("id", 0, "payment id")

	return func(ctx context.Context, a *app) error {
		if *childID <= 0 || *paymentID <= 0 {
			return usagef("-child and -id are required")
		}
		if *month < 0 || *month > 12 {
			return usagef("-month must be between 1 and 12")
		}
		id := ledger.ChildID(*childID)
		pid := ledger.PaymentID(*paymentID)

		l, err := a.engine.Ledger(ctx, id)
		if err != nil {
			return err
		}
		old, ok := l.Find(pid)
		if !ok {
			return fmt.Errorf("payment %d: %w", pid, ledger.ErrNotFound)
		}
		if in.Amount == "" {
			in.Amount = old.Amount.String()
		}
		if in.Date == "" {
			in.Date = old.PaymentDate.Display()
		}
		in.Month = time.Month(*month)

		if _, err := a.engine.UpdatePayment(ctx, id, pid, in); err != nil {
			return err
		}
		fmt.Fprintln(a.out, a.loc.Msg(locale.KeyPaymentSaved, nil))
		return a.printDebt(ctx, id)
	}
}

func deletePaymentCmd(fs *flag.FlagSet) func(context.Context, *app) error {
	childID := fs.Int64("child", 0, "child id")
	paymentID := fs.Int64("id", 0, "payment id")
	yes := fs.Bool("yes", false, "do not ask for confirmation")

	return func(ctx context.Context, a *app) error {
		if *childID <= 0 || *paymentID <= 0 {
			return usagef("-child and -id are required")
		}
		id := ledger.ChildID(*childID)
		if !*yes && !a.confirm(a.loc.Msg(locale.KeyConfirmDelete, nil)) {
			fmt.Fprintln(a.out, "cancelled")
			return nil
		}
		if err := a.engine.DeletePayment(ctx, id, ledger.PaymentID(*paymentID)); err != nil {
			return err
		}
		fmt.Fprintln(a.out, a.loc.Msg(locale.KeyPaymentDeleted, nil))
		return a.printDebt(ctx, id)
	}
}

// =============================================================================
// ENABLED YEARS
// =============================================================================

// toggleYearCmd shows the confirmation text before anything is persisted. A
// declined prompt leaves the enabled set unchanged.
func toggleYearCmd(fs *flag.FlagSet) func(context.Context, *app) error {
	childID := fs.Int64("child", 0, "child id")
	year := fs.Int("year", 0, "year to flip")
	yes := fs.Bool("yes", false, "do not ask for confirmation")

	return func(ctx context.Context, a *app) error {
		if *childID <= 0 || *year <= 0 {
			return usagef("-child and -year are required")
		}
		id := ledger.ChildID(*childID)

		decision, err := a.engine.ProposeToggle(ctx, id, *year)
		if err != nil {
			return err
		}
		confirmed := *yes || a.confirm(decision.Describe(a.loc))

		res, err := a.engine.ApplyToggle(ctx, id, *year, confirmed)
		if err != nil {
			fmt.Fprintln(a.out, a.loc.Msg(locale.KeyToggleFailed, nil))
			return err
		}
		if !res.Applied {
			fmt.Fprintln(a.out, "cancelled")
			return nil
		}
		fmt.Fprintln(a.out, a.loc.Msg(locale.KeyToggleSaved, nil))
		renderToggle(a.out, a.loc, res)
		return nil
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func (a *app) printDebt(ctx context.Context, id ledger.ChildID) error {
	summary, err := a.engine.Summary(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: %s (%s)\n",
		a.loc.Msg(locale.KeyDebtLabel, nil), a.loc.FormatMoney(summary.TotalOwed), a.loc.DebtStatus(summary.Status))
	return nil
}

// confirm prints question and reads a y/N answer. EOF counts as no.
func (a *app) confirm(question string) bool {
	fmt.Fprintf(a.out, "%s [y/N] ", question)
	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(a.out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "s", "sim":
		return true
	}
	return false
}

func parseYears(s string) (ledger.YearSet, error) {
	var years []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		y, err := strconv.Atoi(part)
		if err != nil || y < 1000 || y > 9999 {
			return nil, usagef("invalid year %q", part)
		}
		years = append(years, y)
	}
	return ledger.NewYearSet(years...), nil
}

// normalizeDOB accepts the display form and converts it to YYYY-MM-DD.
// Anything else is passed through for the server to judge.
func normalizeDOB(s string) string {
	s = strings.TrimSpace(s)
	if iso, err := ledger.ToBackendDate(s); err == nil {
		return iso
	}
	return s
}
