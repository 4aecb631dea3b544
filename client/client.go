/*
Package client talks to the alimony tracker HTTP API.

PURPOSE:
  Implements reconcile.ChildService and reconcile.PaymentService over HTTP,
  plus the account operations (register, login, logout, password reset).
  The session lives in a cookie jar, so one Client is one logged-in user.

ERROR MAPPING:
  - transport failure         -> ledger.ErrUnreachable
  - non-2xx answer            -> *ledger.RejectedError{Status, Message}
                                 (401 unwraps to ErrUnauthorized)
  - undecodable 2xx body      -> wrapped decode error

SEE ALSO:
  - wire.go: JSON records and the enabled_years rules
  - api/: The server side of the same contract
*/
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/warp/alimony-tracker/ledger"
)

const (
	// DefaultTimeout bounds every request.
	DefaultTimeout = 15 * time.Second

	maxResponseSize = 4 << 20
)

type Client struct {
	base   *url.URL
	http   *http.Client
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the underlying client. Its Jar should be set for
// the session cookie to survive between calls.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithTimeout(d time.Duration) Option { return func(c *Client) { c.http.Timeout = d } }

// WithClock sets the clock used to seed missing enabled years.
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// New creates a client for the API rooted at baseURL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Jar: jar, Timeout: DefaultTimeout},
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "client", "base_url", u.Scheme+"://"+u.Host)
	return c, nil
}

func (c *Client) today() ledger.Date { return ledger.DateOf(c.now()) }

// =============================================================================
// TRANSPORT
// =============================================================================

// do sends body as JSON and decodes a 2xx answer into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.Warn("request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("%w: %s %s: %v", ledger.ErrUnreachable, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ledger.ErrUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var msg messageBody
		_ = json.Unmarshal(data, &msg)
		c.logger.Debug("request rejected", "method", method, "path", path, "status", resp.StatusCode, "message", msg.Message)
		return &ledger.RejectedError{Status: resp.StatusCode, Message: msg.Message}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// =============================================================================
// ACCOUNT
// =============================================================================

// User is the logged-in account.
type User struct {
	Name  string
	Email string
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Surname  string `json:"surname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *Client) Register(ctx context.Context, r RegisterRequest) error {
	return c.do(ctx, http.MethodPost, "/api/register", r, nil)
}

// Login stores the session cookie in the client's jar.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	var out loginResponse
	err := c.do(ctx, http.MethodPost, "/api/login", map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		return User{}, err
	}
	c.logger.Info("logged in", "email", out.UserEmail)
	return User{Name: out.UserName, Email: out.UserEmail}, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/logout", nil, nil)
}

// ForgotPassword asks for a reset link. The server answers the same message
// whether or not the email is registered.
func (c *Client) ForgotPassword(ctx context.Context, email string) (string, error) {
	var out messageBody
	if err := c.do(ctx, http.MethodPost, "/api/forgot-password", map[string]string{"email": email}, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *Client) ResetPassword(ctx context.Context, token, password, confirm string) error {
	if password != confirm {
		return &ledger.ValidationError{Field: "confirm_password", Message: "passwords do not match"}
	}
	body := map[string]string{"token": token, "new_password": password, "confirm_password": confirm}
	return c.do(ctx, http.MethodPost, "/api/reset-password", body, nil)
}
