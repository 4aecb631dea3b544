/*
errors.go - Centralized error types for the ledger core and its callers

PURPOSE:
  All error types in one place so that the reconciliation engine, the HTTP
  client and the front-ends classify failures the same way.

ERROR CATEGORIES:
  1. Unreachable - the collaborator could not be contacted (network failure)
  2. Rejected    - the collaborator answered with an error status
  3. Invalid     - input refused before any collaborator call
  4. Stale       - local cache no longer matches the collaborator

  None of these is fatal. Callers show the error and keep the last
  consistent state.

USAGE:
  if ledger.IsSessionInvalid(err) {
      // send the user back to login
  }
  var verr *ledger.ValidationError
  if errors.As(err, &verr) {
      fmt.Println(verr.Field, verr.Message)
  }

SEE ALSO:
  - client/client.go: Maps HTTP responses onto these errors
  - reconcile/engine.go: Handles ErrStaleCache by refetching
*/
package ledger

import (
	"errors"
	"fmt"
	"net/http"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnreachable is returned when a collaborator cannot be contacted.
	ErrUnreachable = errors.New("service unreachable")

	// ErrUnauthorized is returned when the session is missing or expired.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the record belongs to another account.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when a collaborator does not know the record.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned for input rejected before any collaborator call.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStaleCache is returned when an action references data that is no
	// longer in the local cache. The cache is refreshed before returning it.
	ErrStaleCache = errors.New("stale cache")

	// ErrChildNotFound is returned when the child is not in the local cache.
	ErrChildNotFound = errors.New("child not found")

	// ErrChildBusy is returned when another action on the same child has not
	// completed yet.
	ErrChildBusy = errors.New("another action on this child is in progress")

	// ErrNoPendingToggle is returned by ApplyToggle without a matching proposal.
	ErrNoPendingToggle = errors.New("no pending year toggle")

	// ErrStaleResponse is returned when a newer request for the same child
	// superseded this one; its result was discarded.
	ErrStaleResponse = errors.New("response superseded by a newer request")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RejectedError is a collaborator answer with a non-success status.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request rejected: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("request rejected (%d): %s", e.Status, e.Message)
}

func (e *RejectedError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return ErrInvalidInput
	}
	return nil
}

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsSessionInvalid returns true if the user has to log in again.
func IsSessionInvalid(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrChildNotFound)
}

// IsRetryable returns true if the same action might succeed later unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrChildBusy)
}
