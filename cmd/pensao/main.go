/*
main.go - Terminal front-end for the alimony tracker

PURPOSE:
  Lists children with their debt, shows the month grid of a year, records,
  edits and deletes payments, and toggles which years count towards the
  debt. All computation goes through the reconcile engine; the API only
  stores data.

SUBCOMMANDS:
  register        -name -surname -email -password
  forgot          -email
  reset           -token -password -confirm
  add-child       -name -gender -dob YYYY-MM-DD -value 500,00 [-years 2023,2024]
  children        Overview: age, obligation, amount owed, status
  ledger          -child ID [-year YYYY] [-server]
  pay             -child ID -amount 150,00 -date DD/MM/YYYY [-month M] [-year YYYY]
  edit-payment    -child ID -id ID [-amount] [-date] [-month] [-year]
  delete-payment  -child ID -id ID [-yes]
  toggle-year     -child ID -year YYYY [-yes]

CONFIGURATION:
  PENSAO_API_URL, PENSAO_EMAIL, PENSAO_PASSWORD, PENSAO_TIMEOUT,
  PENSAO_LOCALE, PENSAO_CONCURRENCY, PENSAO_LOG_LEVEL, PENSAO_LOG_FORMAT.
  A .env file in the working directory is loaded first.

EXIT CODES:
  0 success, 1 failure, 2 usage error, 3 session expired.

SEE ALSO:
  - reconcile/engine.go: Cache, toggles, payment mutations
  - client/client.go: HTTP collaborator
  - locale/locale.go: Messages and currency formatting
*/
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/warp/alimony-tracker/client"
	"github.com/warp/alimony-tracker/config"
	"github.com/warp/alimony-tracker/ledger"
	"github.com/warp/alimony-tracker/locale"
	"github.com/warp/alimony-tracker/logging"
	"github.com/warp/alimony-tracker/reconcile"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
	exitSession = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return exitUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		printUsage(stderr)
		return exitUsage
	}

	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitFailure
	}
	cfg := config.LoadClient()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitFailure
	}
	logger, err := logging.Setup(stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitFailure
	}

	a := &app{
		cfg:    cfg,
		loc:    locale.New(cfg.Locale, logger),
		in:     bufio.NewReader(stdin),
		out:    stdout,
		logger: logger,
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	exec := cmd.setup(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return exitUsage
	}

	if cmd.session {
		if err := a.login(ctx); err != nil {
			return a.fail(stderr, err)
		}
	} else if err := a.connect(); err != nil {
		return a.fail(stderr, err)
	}

	if err := exec(ctx, a); err != nil {
		return a.fail(stderr, err)
	}
	return exitOK
}

// =============================================================================
// APP
// =============================================================================

type app struct {
	cfg    *config.Client
	client *client.Client
	engine *reconcile.Engine
	loc    *locale.Localizer
	in     *bufio.Reader
	out    io.Writer
	logger *slog.Logger
}

func (a *app) connect() error {
	if a.client != nil {
		return nil
	}
	c, err := client.New(a.cfg.APIURL,
		client.WithTimeout(a.cfg.Timeout),
		client.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	a.client = c
	return nil
}

// login opens a session with the configured credentials and builds the
// engine on top of the logged-in client.
func (a *app) login(ctx context.Context) error {
	if err := a.cfg.RequireCredentials(); err != nil {
		return err
	}
	if err := a.connect(); err != nil {
		return err
	}
	if _, err := a.client.Login(ctx, a.cfg.Email, a.cfg.Password); err != nil {
		return err
	}
	a.engine = reconcile.New(a.client, a.client,
		reconcile.WithLogger(a.logger),
		reconcile.WithConcurrency(a.cfg.Concurrency),
	)
	return nil
}

// fail prints err for the user and picks the exit code. A session error
// tells the user to log in again.
func (a *app) fail(w io.Writer, err error) int {
	var usage usageError
	switch {
	case errors.As(err, &usage):
		fmt.Fprintln(w, "error:", usage.msg)
		return exitUsage
	case ledger.IsSessionInvalid(err):
		fmt.Fprintln(w, a.loc.Error(err))
		return exitSession
	case errors.Is(err, context.Canceled):
		return exitFailure
	}
	a.logger.Debug("command failed", logging.FieldError, err)
	fmt.Fprintln(w, a.loc.Error(err))
	return exitFailure
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: pensao <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-15s %s\n", name, commands[name].summary)
	}
}
