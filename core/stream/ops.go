package stream

import (
	"context"
	"sync"
)

// Map transforms every item of src with fn.
func Map[In, Out any](src Stream[In], fn func(In) Out) Stream[Out] {
	return Func[Out](func(ctx context.Context, next func(Out)) (Subscription, error) {
		return src.Subscribe(ctx, func(v In) { next(fn(v)) })
	})
}

// Filter forwards the items of src for which keep returns true.
func Filter[T any](src Stream[T], keep func(T) bool) Stream[T] {
	return Func[T](func(ctx context.Context, next func(T)) (Subscription, error) {
		return src.Subscribe(ctx, func(v T) {
			if keep(v) {
				next(v)
			}
		})
	})
}

// FilterMap forwards fn(v) for every item where fn reports true.
func FilterMap[In, Out any](src Stream[In], fn func(In) (Out, bool)) Stream[Out] {
	return Func[Out](func(ctx context.Context, next func(Out)) (Subscription, error) {
		return src.Subscribe(ctx, func(v In) {
			if out, ok := fn(v); ok {
				next(out)
			}
		})
	})
}

// Tap calls fn for every item before forwarding it unchanged.
func Tap[T any](src Stream[T], fn func(T)) Stream[T] {
	return Func[T](func(ctx context.Context, next func(T)) (Subscription, error) {
		return src.Subscribe(ctx, func(v T) {
			fn(v)
			next(v)
		})
	})
}

// FromSlice is a finite stream delivering items synchronously inside
// Subscribe. Delivery stops early if the subscription gets cancelled.
func FromSlice[T any](items ...T) Stream[T] {
	return Func[T](func(ctx context.Context, next func(T)) (Subscription, error) {
		em := NewEmitter(ctx, next)
		for _, v := range items {
			if !em.Emit(v) {
				break
			}
		}
		return em.Subscription(), nil
	})
}

// Chan subscribes to src and forwards its items into a channel of the given
// buffer size. The producer blocks while the buffer is full, so synchronous
// producers such as FromSlice need a buffer large enough for all items. The
// channel is closed once the subscription is cancelled or ctx is done.
func Chan[T any](ctx context.Context, src Stream[T], size int) (<-chan T, Subscription, error) {
	var (
		mu     sync.Mutex
		closed bool
		ch     = make(chan T, size)
		done   = make(chan struct{})
	)
	sub, err := src.Subscribe(ctx, func(v T) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- v:
		case <-done:
		}
	})
	if err != nil {
		return nil, nil, err
	}

	go func() {
		select {
		case <-sub.Done():
		case <-ctx.Done():
			sub.Cancel()
		}
		close(done)
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()

	return ch, sub, nil
}

// Collect subscribes to src and gathers n items, or fewer if ctx ends first.
// The subscription is cancelled before Collect returns.
func Collect[T any](ctx context.Context, src Stream[T], n int) ([]T, error) {
	var (
		mu    sync.Mutex
		items = make([]T, 0, max(n, 0))
		full  = make(chan struct{})
	)
	if n <= 0 {
		return items, nil
	}

	sub, err := src.Subscribe(ctx, func(v T) {
		mu.Lock()
		defer mu.Unlock()
		if len(items) >= n {
			return
		}
		items = append(items, v)
		if len(items) == n {
			close(full)
		}
	})
	if err != nil {
		return nil, err
	}
	defer sub.Cancel()

	select {
	case <-full:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]T, len(items))
	copy(out, items)
	if len(out) < n {
		return out, ctx.Err()
	}
	return out, nil
}
