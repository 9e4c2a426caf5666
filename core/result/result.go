package result

import (
	"errors"
	"fmt"
)

// Kind classifies a decode failure.
type Kind int

const (
	// KindNoValuePresent means the path resolved to no data.
	KindNoValuePresent Kind = iota + 1
	// KindConversion means stored data could not be converted to or from the target type.
	KindConversion
	// KindInternal means the store itself failed (transport, permissions, contract violations).
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNoValuePresent:
		return "no_value_present"
	case KindConversion:
		return "conversion"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

var (
	ErrNoValuePresent = errors.New("no value present")
	ErrConversion     = errors.New("conversion error")
	ErrInternal       = errors.New("internal error")

	// ErrUnexpectedEmptyCallback is the cause recorded when a store callback
	// carried neither a snapshot nor an error.
	ErrUnexpectedEmptyCallback = errors.New("store callback carried neither snapshot nor error")
)

// DecodeError is the failure branch of a [Result].
// Conversion and internal failures always carry their underlying cause.
type DecodeError struct {
	Kind Kind
	Err  error
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case KindNoValuePresent:
		return ErrNoValuePresent.Error()
	case KindConversion:
		return fmt.Sprintf("%s: %v", ErrConversion, e.Err)
	case KindInternal:
		return fmt.Sprintf("%s: %v", ErrInternal, e.Err)
	default:
		return fmt.Sprintf("decode error (%s): %v", e.Kind, e.Err)
	}
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is matches the kind sentinels, so errors.Is(err, ErrConversion) works on
// any error chain containing a DecodeError.
func (e *DecodeError) Is(target error) bool {
	switch target {
	case ErrNoValuePresent:
		return e.Kind == KindNoValuePresent
	case ErrConversion:
		return e.Kind == KindConversion
	case ErrInternal:
		return e.Kind == KindInternal
	}
	return false
}

func NoValuePresent() *DecodeError { return &DecodeError{Kind: KindNoValuePresent} }

func ConversionError(cause error) *DecodeError {
	return &DecodeError{Kind: KindConversion, Err: cause}
}

func InternalError(cause error) *DecodeError {
	if cause == nil {
		cause = ErrUnexpectedEmptyCallback
	}
	return &DecodeError{Kind: KindInternal, Err: cause}
}

// AsDecodeError extracts a DecodeError from err. Errors that carry none are
// classified as internal failures.
func AsDecodeError(err error) *DecodeError {
	if err == nil {
		return nil
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return de
	}
	return InternalError(err)
}

// Result is the outcome of one decode attempt.
// Exactly one of value or err is meaningful; the zero Result is invalid.
type Result[V any] struct {
	value V
	err   *DecodeError
	ok    bool
}

func Success[V any](v V) Result[V] { return Result[V]{value: v, ok: true} }

func Failure[V any](err *DecodeError) Result[V] {
	if err == nil {
		err = InternalError(nil)
	}
	return Result[V]{err: err}
}

// From builds a Result from a decode attempt. A non-nil err that is not a
// DecodeError is treated as a conversion failure.
func From[V any](v V, err error) Result[V] {
	if err == nil {
		return Success(v)
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return Failure[V](de)
	}
	return Failure[V](ConversionError(err))
}

func (r Result[V]) IsSuccess() bool { return r.ok }

func (r Result[V]) IsNoValuePresent() bool {
	return !r.ok && r.err != nil && r.err.Kind == KindNoValuePresent
}

// Value returns the decoded value and whether the result is a success.
func (r Result[V]) Value() (V, bool) { return r.value, r.ok }

// Err returns the failure, or nil for a success.
func (r Result[V]) Err() *DecodeError {
	if r.ok {
		return nil
	}
	if r.err == nil {
		return InternalError(nil)
	}
	return r.err
}

// Kind returns the failure kind, or 0 for a success.
func (r Result[V]) Kind() Kind {
	if r.ok {
		return 0
	}
	return r.Err().Kind
}

// Get returns the value, or the failure as an error.
func (r Result[V]) Get() (V, error) {
	if r.ok {
		return r.value, nil
	}
	return r.value, r.Err()
}

func (r Result[V]) String() string {
	if r.ok {
		return fmt.Sprintf("success(%v)", r.value)
	}
	return fmt.Sprintf("failure(%s)", r.Err().Kind)
}

// Map transforms the value of a success, keeping failures as they are.
func Map[V, U any](r Result[V], fn func(V) U) Result[U] {
	if v, ok := r.Value(); ok {
		return Success(fn(v))
	}
	return Failure[U](r.Err())
}
