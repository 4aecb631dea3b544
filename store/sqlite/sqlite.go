/*
Package sqlite provides the SQLite-backed persistence of the backend API.

PURPOSE:
  Stores accounts, login sessions, password reset tokens, children and
  their payments. Every child query is scoped to its owning user; the API
  never reads another user's rows.

KEY TABLES:
  users:                 Accounts (bcrypt password hash, unique email)
  sessions:              Login sessions keyed by a random UUID
  password_reset_tokens: One-shot reset tokens with an expiry
  children:              Children and their monthly obligation
  payments:              Payments made for a child

STORED FORMATS:
  Amounts are decimal strings ("150.50"), never floats.
  Dates are YYYY-MM-DD, timestamps RFC 3339 in UTC.
  enabled_years_json is NULL when the child never had a year list, which is
  not the same as an explicit "[]".

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite serialises writers anyway; the
  mutex keeps multi-statement operations consistent.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./pensao.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  scope := store.ForUser(userID) // reconcile.ChildService + PaymentService

SEE ALSO:
  - store/memory: In-memory implementation for tests
  - api/handlers.go: The HTTP layer using this store
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/alimony-tracker/ledger"
)

var (
	// ErrDuplicateEmail is returned when registering an email twice.
	ErrDuplicateEmail = errors.New("email already registered")
)

// Store persists every backend record in one SQLite database.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// each connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetClock replaces the time source used for created_at columns.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		surname TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		expires_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_user
		ON sessions(user_id);

	CREATE TABLE IF NOT EXISTS password_reset_tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		token TEXT NOT NULL UNIQUE,
		expires_at TEXT NOT NULL,
		used INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS children (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		full_name TEXT NOT NULL,
		gender TEXT,
		date_of_birth TEXT NOT NULL,
		monthly_alimony_value TEXT NOT NULL,
		enabled_years_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_children_user
		ON children(user_id);

	CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		child_id INTEGER NOT NULL REFERENCES children(id) ON DELETE CASCADE,
		value_paid TEXT NOT NULL,
		payment_date TEXT NOT NULL,
		month_reference INTEGER,
		year_reference INTEGER,
		created_at TEXT NOT NULL
	);

	-- Payment listing is always per child, ordered by date (hot path)
	CREATE INDEX IF NOT EXISTS idx_payments_child_date
		ON payments(child_id, payment_date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// USERS
// =============================================================================

type User struct {
	ID           int64
	Name         string
	Surname      string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// CreateUser inserts u and returns it with its id. A taken email yields
// ErrDuplicateEmail.
func (s *Store) CreateUser(ctx context.Context, u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (name, surname, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		u.Name, u.Surname, u.Email, u.PasswordHash, now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return User{}, ErrDuplicateEmail
		}
		return User{}, fmt.Errorf("failed to create user: %w", err)
	}
	u.ID, err = res.LastInsertId()
	u.CreatedAt = now.Truncate(time.Second)
	return u, err
}

// GetUserByEmail returns nil when no account uses email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUser(ctx, "email = ?", email)
}

// GetUser returns nil when the id is unknown.
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.getUser(ctx, "id = ?", id)
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u User
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, surname, email, password_hash, created_at FROM users WHERE "+where,
		arg,
	).Scan(&u.ID, &u.Name, &u.Surname, &u.Email, &u.PasswordHash, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

// =============================================================================
// SESSIONS
// =============================================================================

type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
}

func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)",
		sess.ID, sess.UserID, sess.ExpiresAt.UTC().Format(time.RFC3339), s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession returns nil for an unknown id. Expiry is checked by the caller.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sess Session
	var expiresAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, expires_at FROM sessions WHERE id = ?", id,
	).Scan(&sess.ID, &sess.UserID, &expiresAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sess.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
	return &sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	return err
}

// PurgeExpiredSessions deletes sessions that expired before now and reports
// how many were removed.
func (s *Store) PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE expires_at < ?", now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// =============================================================================
// PASSWORD RESET TOKENS
// =============================================================================

type ResetToken struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
	Used      bool
}

func (s *Store) CreateResetToken(ctx context.Context, t ResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO password_reset_tokens (user_id, token, expires_at, used, created_at) VALUES (?, ?, ?, ?, ?)",
		t.UserID, t.Token, t.ExpiresAt.UTC().Format(time.RFC3339), t.Used, s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to create reset token: %w", err)
	}
	return nil
}

// GetResetToken returns nil for an unknown token.
func (s *Store) GetResetToken(ctx context.Context, token string) (*ResetToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t ResetToken
	var expiresAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT token, user_id, expires_at, used FROM password_reset_tokens WHERE token = ?", token,
	).Scan(&t.Token, &t.UserID, &expiresAt, &t.Used)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
	return &t, nil
}

// ConsumeResetToken sets the new password hash and marks the token used in
// one transaction. A token that was used meanwhile yields ledger.ErrNotFound.
func (s *Store) ConsumeResetToken(ctx context.Context, token, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var userID int64
	err = tx.QueryRowContext(ctx,
		"SELECT user_id FROM password_reset_tokens WHERE token = ? AND used = 0", token,
	).Scan(&userID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("reset token: %w", ledger.ErrNotFound)
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "UPDATE users SET password_hash = ? WHERE id = ?", passwordHash, userID); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE password_reset_tokens SET used = 1 WHERE token = ?", token); err != nil {
		return fmt.Errorf("failed to mark token used: %w", err)
	}
	return tx.Commit()
}

// =============================================================================
// CHILDREN
// =============================================================================

// CreateChild inserts c for userID and returns it with its id. A nil
// EnabledYears is stored as NULL.
func (s *Store) CreateChild(ctx context.Context, userID int64, c ledger.Child) (ledger.Child, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	years, err := encodeYears(c.EnabledYears)
	if err != nil {
		return ledger.Child{}, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO children (user_id, full_name, gender, date_of_birth, monthly_alimony_value, enabled_years_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, c.FullName, nullString(c.Gender), c.DateOfBirth, c.MonthlyObligation.String(), years,
	)
	if err != nil {
		return ledger.Child{}, fmt.Errorf("failed to create child: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ledger.Child{}, err
	}
	c.ID = ledger.ChildID(id)
	return c, nil
}

// ListChildren returns the user's children in creation order.
func (s *Store) ListChildren(ctx context.Context, userID int64) ([]ledger.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, full_name, gender, date_of_birth, monthly_alimony_value, enabled_years_json
		FROM children WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	children := []ledger.Child{}
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	return children, rows.Err()
}

// GetChild returns nil when the child does not exist or belongs to another user.
func (s *Store) GetChild(ctx context.Context, userID int64, id ledger.ChildID) (*ledger.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, full_name, gender, date_of_birth, monthly_alimony_value, enabled_years_json
		FROM children WHERE id = ? AND user_id = ?`, id, userID)
	c, err := scanChild(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateChild overwrites every column of c. The child must belong to userID,
// otherwise ledger.ErrNotFound is returned.
func (s *Store) UpdateChild(ctx context.Context, userID int64, c ledger.Child) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	years, err := encodeYears(c.EnabledYears)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE children SET full_name = ?, gender = ?, date_of_birth = ?,
			monthly_alimony_value = ?, enabled_years_json = ?
		WHERE id = ? AND user_id = ?`,
		c.FullName, nullString(c.Gender), c.DateOfBirth, c.MonthlyObligation.String(), years,
		c.ID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update child: %w", err)
	}
	return expectOne(res, "child", int64(c.ID))
}

// DeleteChild removes the child and, through the foreign key, its payments.
func (s *Store) DeleteChild(ctx context.Context, userID int64, id ledger.ChildID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM children WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete child: %w", err)
	}
	return expectOne(res, "child", int64(id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChild(row rowScanner) (ledger.Child, error) {
	var c ledger.Child
	var gender, years sql.NullString
	var amount string
	if err := row.Scan(&c.ID, &c.FullName, &gender, &c.DateOfBirth, &amount, &years); err != nil {
		return ledger.Child{}, err
	}
	c.Gender = gender.String
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return ledger.Child{}, fmt.Errorf("child %d: bad monthly value %q: %w", c.ID, amount, err)
	}
	c.MonthlyObligation = ledger.Money{Value: value}
	if years.Valid {
		var list []int
		if err := json.Unmarshal([]byte(years.String), &list); err != nil {
			return ledger.Child{}, fmt.Errorf("child %d: bad enabled years: %w", c.ID, err)
		}
		c.EnabledYears = ledger.NewYearSet(list...)
	}
	return c, nil
}

func encodeYears(years ledger.YearSet) (sql.NullString, error) {
	if years == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal([]int(ledger.NewYearSet(years...)))
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentRecord is a payment with the user owning its child.
type PaymentRecord struct {
	ledger.Payment
	UserID int64
}

// CreatePayment inserts p. The caller checks that p.ChildID is owned.
func (s *Store) CreatePayment(ctx context.Context, p ledger.Payment) (ledger.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (child_id, value_paid, payment_date, month_reference, year_reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ChildID, p.Amount.String(), p.PaymentDate.String(),
		nullInt(p.MonthReference), nullInt(p.YearReference), now.Format(time.RFC3339),
	)
	if err != nil {
		return ledger.Payment{}, fmt.Errorf("failed to create payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ledger.Payment{}, err
	}
	p.ID = ledger.PaymentID(id)
	p.CreatedAt = now.Truncate(time.Second)
	return p, nil
}

// ListPayments returns the child's payments ordered by payment date.
func (s *Store) ListPayments(ctx context.Context, childID ledger.ChildID) ([]ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.child_id, p.value_paid, p.payment_date, p.month_reference, p.year_reference, p.created_at, c.user_id
		FROM payments p JOIN children c ON c.id = p.child_id
		WHERE p.child_id = ? ORDER BY p.payment_date, p.id`, childID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []ledger.Payment{}
	for rows.Next() {
		r, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, r.Payment)
	}
	return payments, rows.Err()
}

// GetPayment returns nil for an unknown id.
func (s *Store) GetPayment(ctx context.Context, id ledger.PaymentID) (*PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.child_id, p.value_paid, p.payment_date, p.month_reference, p.year_reference, p.created_at, c.user_id
		FROM payments p JOIN children c ON c.id = p.child_id
		WHERE p.id = ?`, id)
	r, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdatePayment rewrites amount, date and references. child_id and
// created_at never change.
func (s *Store) UpdatePayment(ctx context.Context, p ledger.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE payments SET value_paid = ?, payment_date = ?, month_reference = ?, year_reference = ?
		WHERE id = ?`,
		p.Amount.String(), p.PaymentDate.String(), nullInt(p.MonthReference), nullInt(p.YearReference), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return expectOne(res, "payment", int64(p.ID))
}

func (s *Store) DeletePayment(ctx context.Context, id ledger.PaymentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM payments WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	return expectOne(res, "payment", int64(id))
}

func scanPayment(row rowScanner) (PaymentRecord, error) {
	var r PaymentRecord
	var amount, date, createdAt string
	var month, year sql.NullInt64
	if err := row.Scan(&r.ID, &r.ChildID, &amount, &date, &month, &year, &createdAt, &r.UserID); err != nil {
		return PaymentRecord{}, err
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return PaymentRecord{}, fmt.Errorf("payment %d: bad amount %q: %w", r.ID, amount, err)
	}
	r.Amount = ledger.Money{Value: value}
	if r.PaymentDate, err = ledger.ParseISODate(date); err != nil {
		return PaymentRecord{}, fmt.Errorf("payment %d: %w", r.ID, err)
	}
	r.MonthReference = int(month.Int64)
	r.YearReference = int(year.Int64)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return r, nil
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Reset deletes every row. Used by the demo scenarios and tests.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"payments", "children", "password_reset_tokens", "sessions", "users"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}

func expectOne(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, ledger.ErrNotFound)
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
