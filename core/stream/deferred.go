package stream

import (
	"context"
	"sync"
)

// Deferred is a single-assignment future: it is settled at most once, by
// either Resolve or Reject, and can be awaited any number of times.
type Deferred[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func NewDeferred[T any]() *Deferred[T] {
	return &Deferred[T]{done: make(chan struct{})}
}

// Resolved returns an already settled Deferred.
func Resolved[T any](v T) *Deferred[T] {
	d := NewDeferred[T]()
	d.Resolve(v)
	return d
}

// Rejected returns an already failed Deferred.
func Rejected[T any](err error) *Deferred[T] {
	d := NewDeferred[T]()
	d.Reject(err)
	return d
}

// Resolve settles d with v. It reports false if d was already settled.
func (d *Deferred[T]) Resolve(v T) bool {
	return d.settle(v, nil)
}

// Reject settles d with err. It reports false if d was already settled.
func (d *Deferred[T]) Reject(err error) bool {
	var zero T
	return d.settle(zero, err)
}

func (d *Deferred[T]) settle(v T, err error) (settled bool) {
	d.once.Do(func() {
		d.value = v
		d.err = err
		close(d.done)
		settled = true
	})
	return settled
}

// Done is closed once d is settled.
func (d *Deferred[T]) Done() <-chan struct{} { return d.done }

// Await blocks until d is settled or ctx is done.
func (d *Deferred[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-d.done:
		return d.value, d.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Stream exposes d as a single-item stream. The item is delivered once d
// resolves; a rejected d delivers nothing.
func (d *Deferred[T]) Stream() Stream[T] {
	return Func[T](func(ctx context.Context, next func(T)) (Subscription, error) {
		em := NewEmitter(ctx, next)
		go func() {
			select {
			case <-d.done:
				if d.err == nil {
					em.Emit(d.value)
				}
			case <-em.Subscription().Done():
			}
		}()
		return em.Subscription(), nil
	})
}
