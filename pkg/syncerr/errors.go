package syncerr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

var (
	// ErrAuth is matched by every AuthError
	ErrAuth = errors.New("source authorization failed")

	// ErrTransient is matched by every TransientFetchError
	ErrTransient = errors.New("transient source failure")

	// ErrNotFound is matched by every NotFoundError
	ErrNotFound = errors.New("record no longer exists at source")

	// ErrStoreUnavailable is matched by every StoreUnavailableError
	ErrStoreUnavailable = errors.New("sink store unavailable")

	// ErrDataIntegrity is matched by every DataIntegrityWarning
	ErrDataIntegrity = errors.New("data integrity warning")
)

// AuthError means the source rejected our credentials. It aborts the run.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %v", ErrAuth, e.Err)
}

func (e *AuthError) Unwrap() []error { return []error{ErrAuth, e.Err} }

// TransientFetchError is a per-call source failure. The item is skipped and picked up next run.
type TransientFetchError struct {
	RecordID string
	Catalog  string
	Err      error
}

func (e *TransientFetchError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("%s: %v", ErrTransient, e.Err)
	}
	return fmt.Sprintf("%s for record %s in catalog %s: %v", ErrTransient, e.RecordID, e.Catalog, e.Err)
}

func (e *TransientFetchError) Unwrap() []error { return []error{ErrTransient, e.Err} }

// NotFoundError means the record vanished between enumeration and detail fetch
type NotFoundError struct {
	RecordID string
	Catalog  string
	Err      error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("record %s in catalog %s: %s", e.RecordID, e.Catalog, ErrNotFound)
}

func (e *NotFoundError) Unwrap() []error { return []error{ErrNotFound, e.Err} }

// StoreUnavailableError means the sink could not be reached. It aborts the run.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrStoreUnavailable, e.Err)
}

func (e *StoreUnavailableError) Unwrap() []error { return []error{ErrStoreUnavailable, e.Err} }

// DataIntegrityWarning is a non-fatal data quality problem. It is logged and counted.
type DataIntegrityWarning struct {
	RecordID string
	Message  string
}

func (e *DataIntegrityWarning) Error() string {
	return fmt.Sprintf("%s: record %s: %s", ErrDataIntegrity, e.RecordID, e.Message)
}

func (e *DataIntegrityWarning) Unwrap() error { return ErrDataIntegrity }

// NewAuthError wraps err as an AuthError
func NewAuthError(err error) error {
	return &AuthError{Err: err}
}

// NewStoreUnavailableError wraps err as a StoreUnavailableError for the named operation
func NewStoreUnavailableError(op string, err error) error {
	return &StoreUnavailableError{Op: op, Err: err}
}

// NewDataIntegrityWarning builds a warning for a record
func NewDataIntegrityWarning(recordID, format string, args ...any) error {
	return &DataIntegrityWarning{RecordID: recordID, Message: fmt.Sprintf(format, args...)}
}

// FromHTTP classifies an error returned by the source client.
// 401/403 become AuthError, 404 becomes NotFoundError and everything else is transient.
// The error is returned untouched only when ctx itself is done so the run stops. A request
// timeout from the HTTP client while ctx is still live is transient.
func FromHTTP(ctx context.Context, err error, recordID, catalog string) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return err
	}

	if httperror.IsHTTPError(err) {
		switch httperror.GetStatusCode(err) {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &AuthError{Err: err}
		case http.StatusNotFound:
			return &NotFoundError{RecordID: recordID, Catalog: catalog, Err: err}
		}
	}
	return &TransientFetchError{RecordID: recordID, Catalog: catalog, Err: err}
}

// IsFatal reports whether err must abort the whole run.
// A TransientFetchError is never fatal, even when it wraps a deadline.
func IsFatal(err error) bool {
	if err == nil || errors.Is(err, ErrTransient) {
		return false
	}
	return errors.Is(err, ErrAuth) ||
		errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
