// Package stream provides a small push-based stream abstraction with explicit
// teardown, and a single-assignment deferred value.
//
// A [Stream] is lazy: calling [Stream.Subscribe] activates it, and every call
// is an independent activation. Items are delivered to the next callback on
// whatever goroutine the producer runs on, in the order the producer emits
// them, never concurrently for one subscription.
//
// Producers wrap next in an [Emitter]. Once [Subscription.Cancel] returns the
// emitter accepts no further items; an item a producer goroutine was already
// delivering may still arrive.
//
// # Usage
//
//	src := stream.Func[int](func(ctx context.Context, next func(int)) (stream.Subscription, error) {
//	    em := stream.NewEmitter(ctx, next)
//	    reg := store.Listen(func(v int) { em.Emit(v) })
//	    em.OnCancel(reg.Cancel)
//	    return em.Subscription(), nil
//	})
//
//	sub, err := stream.Map(src, strconv.Itoa).Subscribe(ctx, func(s string) {
//	    fmt.Println(s)
//	})
//	defer sub.Cancel()
//
// A [Deferred] carries the result of a one-shot operation:
//
//	d := stream.NewDeferred[string]()
//	go func() { d.Resolve("done") }()
//	v, err := d.Await(ctx)
package stream
