package result

import (
	"github.com/codewandler/docstream-go/core/stream"
)

// ErrorHandler receives failures dropped by a combinator.
type ErrorHandler func(err *DecodeError)

// IfPresent forwards successes and absences: a success is delivered as a
// pointer to its value, NoValuePresent as nil. Every other failure is dropped.
func IfPresent[V any](src stream.Stream[Result[V]]) stream.Stream[*V] {
	return stream.FilterMap(src, presentValue[V])
}

// IfPresentHandlingErrors is IfPresent, reporting every dropped failure to
// onError before filtering. NoValuePresent is not reported since it is
// forwarded as nil.
func IfPresentHandlingErrors[V any](src stream.Stream[Result[V]], onError ErrorHandler) stream.Stream[*V] {
	return stream.FilterMap(src, func(r Result[V]) (*V, bool) {
		if !r.IsSuccess() && !r.IsNoValuePresent() && onError != nil {
			onError(r.Err())
		}
		return presentValue(r)
	})
}

// Successes forwards only the values of successes.
func Successes[V any](src stream.Stream[Result[V]]) stream.Stream[V] {
	return stream.FilterMap(src, Result[V].Value)
}

// SuccessesHandlingErrors is Successes, reporting every failure to onError,
// NoValuePresent included.
func SuccessesHandlingErrors[V any](src stream.Stream[Result[V]], onError ErrorHandler) stream.Stream[V] {
	return stream.FilterMap(src, func(r Result[V]) (V, bool) {
		if !r.IsSuccess() && onError != nil {
			onError(r.Err())
		}
		return r.Value()
	})
}

func presentValue[V any](r Result[V]) (*V, bool) {
	if v, ok := r.Value(); ok {
		return &v, true
	}
	if r.IsNoValuePresent() {
		return nil, true
	}
	return nil, false
}
