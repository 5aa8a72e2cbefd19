// Package apperr defines the structured errors the service layer returns.
// Handlers translate kinds into HTTP status codes; storage errors are
// wrapped so callers never see a raw driver error.
package apperr

import "errors"

// Kind classifies a failure.
type Kind int

const (
	// KindNotFound means the requested entity does not exist.
	KindNotFound Kind = iota + 1
	// KindForbidden means the actor lacks rights for the operation.
	KindForbidden
	// KindInsufficientFunds means a debit would make a balance negative.
	KindInsufficientFunds
	// KindInvalidState means the entity is not in a state that allows the
	// operation, e.g. approving a non-pending loan or repaying a paid schedule.
	KindInvalidState
	// KindAmountExceedsDue means a repayment is larger than the installment due.
	KindAmountExceedsDue
	// KindConflict means a storage-level conflict: a write race that exhausted
	// retries, or an operation on an entity with dependent records.
	KindConflict
)

// Error is a structured service error: a kind plus a user-safe message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind that wraps an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
