package orbql

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors. The typed errors below report true for
// errors.Is against their matching sentinel.
var (
	// ErrQueryIsNull is returned when a predicate is statically empty,
	// e.g. `id IN ()`. Compilers propagate it up to the nearest AND boundary
	// and callers turn it into zero rows.
	ErrQueryIsNull = errors.New("orbql: query is statically empty")

	// ErrColumnNotFound is returned when a query references an unknown column.
	ErrColumnNotFound = errors.New("orbql: column not found")

	// ErrQueryInvalid is returned for illegal operator/value combinations.
	ErrQueryInvalid = errors.New("orbql: invalid query")

	// ErrConnectionLost is returned when an established connection drops.
	ErrConnectionLost = errors.New("orbql: connection lost")

	// ErrConnectionFailed is returned when a connection cannot be opened.
	ErrConnectionFailed = errors.New("orbql: connection failed")

	// ErrInterrupted is returned when a running statement was interrupted
	// by another goroutine.
	ErrInterrupted = errors.New("orbql: query interrupted")

	// ErrQueryTimeout is returned when a statement exceeded its timeout.
	ErrQueryTimeout = errors.New("orbql: query timed out")
)

// ColumnNotFoundError reports a column lookup failure against a schema.
type ColumnNotFoundError struct {
	Schema string
	Column string
}

// Error returns the error string.
func (e *ColumnNotFoundError) Error() string {
	if e.Schema == "" {
		return fmt.Sprintf("orbql: column %q not found", e.Column)
	}
	return fmt.Sprintf("orbql: column %q not found in %s", e.Column, e.Schema)
}

// Is reports whether the target error matches ErrColumnNotFound.
func (e *ColumnNotFoundError) Is(err error) bool {
	return err == ErrColumnNotFound
}

// NewColumnNotFoundError returns a new ColumnNotFoundError.
func NewColumnNotFoundError(schema, column string) *ColumnNotFoundError {
	return &ColumnNotFoundError{Schema: schema, Column: column}
}

// IsColumnNotFound returns true if the error is a ColumnNotFoundError.
func IsColumnNotFound(err error) bool {
	return err != nil && errors.Is(err, ErrColumnNotFound)
}

// QueryInvalidError reports a query that cannot be compiled.
type QueryInvalidError struct {
	msg string
}

// Error returns the error string.
func (e *QueryInvalidError) Error() string {
	return "orbql: invalid query: " + e.msg
}

// Is reports whether the target error matches ErrQueryInvalid.
func (e *QueryInvalidError) Is(err error) bool {
	return err == ErrQueryInvalid
}

// NewQueryInvalidError returns a QueryInvalidError with a formatted message.
func NewQueryInvalidError(format string, args ...any) *QueryInvalidError {
	return &QueryInvalidError{msg: fmt.Sprintf(format, args...)}
}

// IsQueryInvalid returns true if the error is a QueryInvalidError.
func IsQueryInvalid(err error) bool {
	return err != nil && errors.Is(err, ErrQueryInvalid)
}

// IsQueryIsNull returns true if the error marks a statically empty query.
func IsQueryIsNull(err error) bool {
	return err != nil && errors.Is(err, ErrQueryIsNull)
}

// ConnectionLostError wraps a driver error that dropped the connection.
// It is retryable.
type ConnectionLostError struct {
	Err error
}

// Error returns the error string.
func (e *ConnectionLostError) Error() string {
	return fmt.Sprintf("orbql: connection lost: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectionLostError) Unwrap() error { return e.Err }

// Is reports whether the target error matches ErrConnectionLost.
func (e *ConnectionLostError) Is(err error) bool {
	return err == ErrConnectionLost
}

// IsConnectionLost returns true if the error is a ConnectionLostError.
func IsConnectionLost(err error) bool {
	return err != nil && errors.Is(err, ErrConnectionLost)
}

// ConnectionFailedError wraps an error raised while opening a connection.
type ConnectionFailedError struct {
	Err error
}

// Error returns the error string.
func (e *ConnectionFailedError) Error() string {
	return fmt.Sprintf("orbql: connection failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectionFailedError) Unwrap() error { return e.Err }

// Is reports whether the target error matches ErrConnectionFailed.
func (e *ConnectionFailedError) Is(err error) bool {
	return err == ErrConnectionFailed
}

// IsConnectionFailed returns true if the error is a ConnectionFailedError.
func IsConnectionFailed(err error) bool {
	return err != nil && errors.Is(err, ErrConnectionFailed)
}

// DuplicateEntryError is a unique constraint violation.
type DuplicateEntryError struct {
	Field string // Constrained field, if the driver reported it.
	Value string // Offending value, if the driver reported it.
	Err   error
}

// Error returns a user presentable message.
func (e *DuplicateEntryError) Error() string {
	switch {
	case e.Value != "":
		return fmt.Sprintf("orbql: %s is already being used", e.Value)
	case e.Field != "":
		return fmt.Sprintf("orbql: duplicate entry for %s", e.Field)
	default:
		return "orbql: duplicate entry found"
	}
}

// Unwrap returns the underlying error.
func (e *DuplicateEntryError) Unwrap() error { return e.Err }

// IsDuplicateEntry returns true if the error is a DuplicateEntryError.
func IsDuplicateEntry(err error) bool {
	if err == nil {
		return false
	}
	var e *DuplicateEntryError
	return errors.As(err, &e)
}

// CannotDeleteError is a foreign key violation raised while removing or
// updating a referenced row.
type CannotDeleteError struct {
	Err error
}

// Error returns the error string.
func (e *CannotDeleteError) Error() string {
	return "orbql: cannot delete record, it is still referenced"
}

// Unwrap returns the underlying error.
func (e *CannotDeleteError) Unwrap() error { return e.Err }

// IsCannotDelete returns true if the error is a CannotDeleteError.
func IsCannotDelete(err error) bool {
	if err == nil {
		return false
	}
	var e *CannotDeleteError
	return errors.As(err, &e)
}

// InvalidReferenceError is a foreign key violation raised while storing a
// row that references a missing record.
type InvalidReferenceError struct {
	Err error
}

// Error returns the error string.
func (e *InvalidReferenceError) Error() string {
	return "orbql: invalid reference, the referenced record does not exist"
}

// Unwrap returns the underlying error.
func (e *InvalidReferenceError) Unwrap() error { return e.Err }

// IsInvalidReference returns true if the error is an InvalidReferenceError.
func IsInvalidReference(err error) bool {
	if err == nil {
		return false
	}
	var e *InvalidReferenceError
	return errors.As(err, &e)
}

// QueryFailedError is an unclassified driver error. It carries the
// statement and its parameters for diagnostics.
type QueryFailedError struct {
	Statement string
	Params    map[string]any
	Err       error
}

// Error returns the error string.
func (e *QueryFailedError) Error() string {
	return fmt.Sprintf("orbql: query failed: %v\n%s", e.Err, e.Statement)
}

// Unwrap returns the underlying error.
func (e *QueryFailedError) Unwrap() error { return e.Err }

// IsQueryFailed returns true if the error is a QueryFailedError.
func IsQueryFailed(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryFailedError
	return errors.As(err, &e)
}

// DatabaseError reports malformed values handed to the database layer,
// such as a negative LIMIT.
type DatabaseError struct {
	msg string
}

// Error returns the error string.
func (e *DatabaseError) Error() string {
	return "orbql: database error: " + e.msg
}

// NewDatabaseError returns a DatabaseError with a formatted message.
func NewDatabaseError(format string, args ...any) *DatabaseError {
	return &DatabaseError{msg: fmt.Sprintf(format, args...)}
}

// IsDatabaseError returns true if the error is a DatabaseError.
func IsDatabaseError(err error) bool {
	if err == nil {
		return false
	}
	var e *DatabaseError
	return errors.As(err, &e)
}

// InterruptedError is returned on the executing goroutine after its
// session was interrupted.
type InterruptedError struct {
	Err error
}

// Error returns the error string.
func (e *InterruptedError) Error() string {
	if e.Err == nil {
		return ErrInterrupted.Error()
	}
	return fmt.Sprintf("orbql: query interrupted: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *InterruptedError) Unwrap() error { return e.Err }

// Is reports whether the target error matches ErrInterrupted.
func (e *InterruptedError) Is(err error) bool {
	return err == ErrInterrupted
}

// IsInterrupted returns true if the error is an InterruptedError.
func IsInterrupted(err error) bool {
	return err != nil && errors.Is(err, ErrInterrupted)
}

// QueryTimeoutError is returned when a statement exceeded the configured
// statement timeout. Callers may retry with a larger limit.
type QueryTimeoutError struct {
	Statement string
	Err       error
}

// Error returns the error string.
func (e *QueryTimeoutError) Error() string {
	return fmt.Sprintf("orbql: query timed out: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryTimeoutError) Unwrap() error { return e.Err }

// Is reports whether the target error matches ErrQueryTimeout.
func (e *QueryTimeoutError) Is(err error) bool {
	return err == ErrQueryTimeout
}

// IsQueryTimeout returns true if the error is a QueryTimeoutError.
func IsQueryTimeout(err error) bool {
	return err != nil && errors.Is(err, ErrQueryTimeout)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Original error that triggered rollback
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("orbql: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "orbql: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("orbql: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}

// IsRetryable reports whether the error is transient: a lost connection or
// a statement timeout.
func IsRetryable(err error) bool {
	return IsConnectionLost(err) || IsQueryTimeout(err)
}
