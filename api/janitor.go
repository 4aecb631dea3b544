/*
janitor.go - Expired session cleanup

PURPOSE:
  Periodically deletes sessions whose expiry has passed. Expired sessions
  are already refused by requireSession; the janitor only keeps the
  sessions table from growing.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Runs once immediately on Start
  - Stop waits for the goroutine to exit

USAGE:
  janitor := NewSessionJanitor(store, logger)
  janitor.Start()
  // ... later
  janitor.Stop()

SEE ALSO:
  - middleware.go: requireSession
  - store/sqlite/sqlite.go: PurgeExpiredSessions
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/alimony-tracker/logging"
	"github.com/warp/alimony-tracker/store/sqlite"
)

// SessionJanitor purges expired sessions on a ticker.
type SessionJanitor struct {
	Store    *sqlite.Store
	Interval time.Duration

	now    func() time.Time
	logger *slog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewSessionJanitor(store *sqlite.Store, logger *slog.Logger) *SessionJanitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionJanitor{
		Store:    store,
		Interval: time.Hour,
		now:      time.Now,
		logger:   logging.Component(logger, "janitor"),
	}
}

// Start begins the periodic purge. Calling Start twice is a no-op.
func (j *SessionJanitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.ticker != nil {
		return
	}
	j.ticker = time.NewTicker(j.Interval)
	j.stop = make(chan struct{})
	j.wg.Add(1)
	go j.run(j.ticker, j.stop)

	j.logger.Info("session janitor started", "interval", j.Interval)
}

// Stop stops the janitor and waits for a running purge to finish.
func (j *SessionJanitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.ticker == nil {
		return
	}
	j.ticker.Stop()
	close(j.stop)
	j.wg.Wait()
	j.ticker = nil
	j.logger.Info("session janitor stopped")
}

func (j *SessionJanitor) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer j.wg.Done()

	j.Purge(context.Background())
	for {
		select {
		case <-ticker.C:
			j.Purge(context.Background())
		case <-stop:
			return
		}
	}
}

// Purge deletes the expired sessions once and returns how many went.
func (j *SessionJanitor) Purge(ctx context.Context) int64 {
	n, err := j.Store.PurgeExpiredSessions(ctx, j.now())
	if err != nil {
		j.logger.Error("session purge failed", logging.FieldError, err)
		return 0
	}
	if n > 0 {
		j.logger.Info("expired sessions purged", "count", n)
	}
	return n
}
