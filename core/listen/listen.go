// Package listen adapts the callback-based store primitives into deferred
// values and cancelable streams of decode results.
package listen

import (
	"context"

	"github.com/codewandler/docstream-go/core/convert"
	"github.com/codewandler/docstream-go/core/result"
	"github.com/codewandler/docstream-go/core/stream"
	"github.com/codewandler/docstream-go/ports/docstore"
)

// FetchDocument reads the document at address once. The returned Deferred
// resolves with the decoded value, or rejects with a *result.DecodeError,
// NoValuePresent included.
func FetchDocument[V any](
	ctx context.Context,
	store docstore.Store,
	address string,
	conv convert.DocumentFunc[V],
) *stream.Deferred[V] {
	d := stream.NewDeferred[V]()
	store.FetchDocument(ctx, address, func(snap *docstore.DocumentSnapshot, err error) {
		settle(d, conv(snap, err))
	})
	return d
}

// FetchCollection reads the collection at address once; see FetchDocument.
func FetchCollection[V any](
	ctx context.Context,
	store docstore.Store,
	address string,
	conv convert.CollectionFunc[V],
) *stream.Deferred[V] {
	d := stream.NewDeferred[V]()
	store.FetchCollection(ctx, address, func(snap *docstore.CollectionSnapshot, err error) {
		settle(d, conv(snap, err))
	})
	return d
}

func settle[V any](d *stream.Deferred[V], r result.Result[V]) {
	if v, ok := r.Value(); ok {
		d.Resolve(v)
		return
	}
	d.Reject(r.Err())
}

// ObserveDocument returns a stream of decode results for the document at
// address. Each Subscribe registers one store listener; cancelling the
// subscription cancels that registration before returning. Store callbacks
// arriving after cancellation are dropped.
func ObserveDocument[V any](
	store docstore.Store,
	address string,
	conv convert.DocumentFunc[V],
) stream.Stream[result.Result[V]] {
	return stream.Func[result.Result[V]](func(ctx context.Context, next func(result.Result[V])) (stream.Subscription, error) {
		em := stream.NewEmitter(ctx, next)
		reg := store.ListenDocument(ctx, address, func(snap *docstore.DocumentSnapshot, err error) {
			if em.Cancelled() {
				return
			}
			em.Emit(conv(snap, err))
		})
		em.OnCancel(reg.Cancel)
		return em.Subscription(), nil
	})
}

// ObserveCollection is ObserveDocument for collections.
func ObserveCollection[V any](
	store docstore.Store,
	address string,
	conv convert.CollectionFunc[V],
) stream.Stream[result.Result[V]] {
	return stream.Func[result.Result[V]](func(ctx context.Context, next func(result.Result[V])) (stream.Subscription, error) {
		em := stream.NewEmitter(ctx, next)
		reg := store.ListenCollection(ctx, address, func(snap *docstore.CollectionSnapshot, err error) {
			if em.Cancelled() {
				return
			}
			em.Emit(conv(snap, err))
		})
		em.OnCancel(reg.Cancel)
		return em.Subscription(), nil
	})
}

// ObserveSnapshots streams raw collection snapshots and store errors without
// decoding. It follows the same registration rules as ObserveCollection.
func ObserveSnapshots(store docstore.Store, address string) stream.Stream[Snapshot] {
	return stream.Func[Snapshot](func(ctx context.Context, next func(Snapshot)) (stream.Subscription, error) {
		em := stream.NewEmitter(ctx, next)
		reg := store.ListenCollection(ctx, address, func(snap *docstore.CollectionSnapshot, err error) {
			em.Emit(Snapshot{Collection: snap, Err: err})
		})
		em.OnCancel(reg.Cancel)
		return em.Subscription(), nil
	})
}

// Snapshot is one raw collection callback.
type Snapshot struct {
	Collection *docstore.CollectionSnapshot
	Err        error
}
