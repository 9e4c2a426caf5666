package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

// Stream is a lazily activated, ordered sequence of values.
type Stream[T any] interface {
	// Subscribe activates the stream. next is called for every item until the
	// returned Subscription is cancelled or ctx is done.
	Subscribe(ctx context.Context, next func(T)) (Subscription, error)
}

// Subscription is the teardown handle of an active stream.
type Subscription interface {
	// Cancel releases the subscription. It is safe to call more than once.
	// Once the first call returns no further item is accepted; an item whose
	// delivery was already under way on a producer goroutine may still land.
	Cancel()
	// Done is closed once the subscription has been cancelled.
	Done() <-chan struct{}
}

// Func implements Stream with a function.
type Func[T any] func(ctx context.Context, next func(T)) (Subscription, error)

func (f Func[T]) Subscribe(ctx context.Context, next func(T)) (Subscription, error) {
	return f(ctx, next)
}

// === Subscription ===

type subscription struct {
	mu        sync.Mutex
	cancelled atomic.Bool
	done      chan struct{}
	teardowns []func()
}

func newSubscription(ctx context.Context) *subscription {
	s := &subscription{done: make(chan struct{})}
	if ctx != nil && ctx.Done() != nil {
		stop := context.AfterFunc(ctx, s.Cancel)
		s.OnCancel(func() { stop() })
	}
	return s
}

// NewSubscription returns a Subscription running teardown exactly once, on
// the first Cancel or when ctx is done.
func NewSubscription(ctx context.Context, teardown func()) Subscription {
	s := newSubscription(ctx)
	if teardown != nil {
		s.OnCancel(teardown)
	}
	return s
}

// OnCancel registers fn to run on cancellation. If the subscription is
// already cancelled fn runs immediately.
func (s *subscription) OnCancel(fn func()) {
	s.mu.Lock()
	if s.cancelled.Load() {
		s.mu.Unlock()
		fn()
		return
	}
	s.teardowns = append(s.teardowns, fn)
	s.mu.Unlock()
}

func (s *subscription) Cancel() {
	s.mu.Lock()
	if s.cancelled.Swap(true) {
		s.mu.Unlock()
		return
	}
	teardowns := s.teardowns
	s.teardowns = nil
	s.mu.Unlock()

	// release in reverse registration order
	for i := len(teardowns) - 1; i >= 0; i-- {
		teardowns[i]()
	}
	close(s.done)
}

func (s *subscription) Done() <-chan struct{} { return s.done }

// === Emitter ===

// Emitter guards a next callback with a subscription: once the subscription
// is cancelled, Emit becomes a no-op.
type Emitter[T any] struct {
	ctx  context.Context
	sub  *subscription
	next func(T)
}

// NewEmitter creates an Emitter and its Subscription. The subscription is
// cancelled when ctx is done.
func NewEmitter[T any](ctx context.Context, next func(T)) *Emitter[T] {
	return &Emitter[T]{ctx: ctx, sub: newSubscription(ctx), next: next}
}

// Emit delivers v unless the subscription was cancelled. It reports whether
// v was delivered.
//
// The cancellation check and the call to next are not atomic: an Emit that
// passed the check before a concurrent Cancel still delivers its item. Each
// producer goroutine can therefore land at most one item after Cancel
// returns. next may itself call Cancel.
func (e *Emitter[T]) Emit(v T) bool {
	if e.Cancelled() {
		return false
	}
	e.next(v)
	return true
}

// OnCancel registers a teardown; see Subscription.Cancel.
func (e *Emitter[T]) OnCancel(fn func()) { e.sub.OnCancel(fn) }

// Cancelled reports whether the subscription was cancelled or its context is done.
func (e *Emitter[T]) Cancelled() bool {
	return e.sub.cancelled.Load() || (e.ctx != nil && e.ctx.Err() != nil)
}

func (e *Emitter[T]) Subscription() Subscription { return e.sub }
