package session

import "errors"

var (
	// ErrNoSession is reported by operations that need a signed-in identity.
	ErrNoSession = errors.New("no active session")
	// ErrNotFound is reported when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
)

// Kind classifies the outcome of a controller operation.
type Kind int

const (
	KindOK Kind = iota
	KindEmpty
	KindNoSession
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindEmpty:
		return "empty"
	case KindNoSession:
		return "no_session"
	case KindFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Result is the outcome of a controller operation. Failure results carry an
// *apperr.Error describing the external failure.
type Result[T any] struct {
	kind  Kind
	value T
	err   error
}

func ok[T any](value T) Result[T] {
	return Result[T]{kind: KindOK, value: value}
}

func empty[T any]() Result[T] {
	return Result[T]{kind: KindEmpty}
}

func noSession[T any]() Result[T] {
	return Result[T]{kind: KindNoSession}
}

func failure[T any](err error) Result[T] {
	return Result[T]{kind: KindFailure, err: err}
}

func (r Result[T]) Kind() Kind { return r.kind }

func (r Result[T]) OK() bool { return r.kind == KindOK }

// Value returns the value of an OK result and the zero value otherwise, so
// callers that only check for "no value" see every non-OK outcome alike.
func (r Result[T]) Value() T {
	return r.value
}

// Err returns nil for OK results, ErrNotFound, ErrNoSession or the failure.
func (r Result[T]) Err() error {
	switch r.kind {
	case KindOK:
		return nil
	case KindEmpty:
		return ErrNotFound
	case KindNoSession:
		return ErrNoSession
	default:
		return r.err
	}
}

// Unwrap returns the value and the error together.
func (r Result[T]) Unwrap() (T, error) {
	return r.value, r.Err()
}
