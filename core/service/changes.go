package service

import (
	"context"
	"log/slog"

	"github.com/codewandler/docstream-go/core/codec"
	"github.com/codewandler/docstream-go/core/listen"
	"github.com/codewandler/docstream-go/core/path"
	"github.com/codewandler/docstream-go/core/result"
	"github.com/codewandler/docstream-go/core/stream"
	"github.com/codewandler/docstream-go/internal/typename"
	"github.com/codewandler/docstream-go/ports/docstore"
)

// Change is one decoded document change in a collection.
type Change[T any] struct {
	Kind docstore.ChangeKind
	ID   string
	// Value is the new content, or the last known content for a removal.
	Value T
	// Err is a conversion failure when the content could not be decoded.
	Err *result.DecodeError
}

// ObserveChanges streams per-document changes of the collection at p.
//
// Experimental. The first snapshot reports every existing document as
// added. Store errors are logged and not forwarded, and snapshots without
// changes emit nothing.
func ObserveChanges[T any](s *Service, p path.Collection[T]) stream.Stream[Change[T]] {
	name := typename.Of[T]()
	address := p.Render()
	log := s.log.With(slog.String("path", address), slog.String("type", name))

	src := stream.Func[Change[T]](func(ctx context.Context, next func(Change[T])) (stream.Subscription, error) {
		em := stream.NewEmitter(ctx, next)
		sub, err := listen.ObserveSnapshots(s.store, address).Subscribe(ctx, func(snap listen.Snapshot) {
			if snap.Err != nil {
				s.metrics.StoreErrorDropped(name)
				log.Warn("dropping store error", slog.Any("error", snap.Err))
				return
			}
			if snap.Collection == nil {
				return
			}
			for _, ch := range snap.Collection.Changes {
				c := decodeChange[T](s.codec, ch)
				s.recordOutcome(name, kindOf(c.Err))
				if !em.Emit(c) {
					return
				}
			}
		})
		if err != nil {
			return nil, err
		}
		em.OnCancel(sub.Cancel)
		return em.Subscription(), nil
	})
	return tracked(s, src, address, name)
}

func decodeChange[T any](c *codec.Codec, ch docstore.Change) Change[T] {
	out := Change[T]{Kind: ch.Kind, ID: ch.ID}
	if ch.Fields == nil {
		return out
	}
	v, err := codec.Decode[T](c, ch.Fields)
	if err != nil {
		out.Err = result.ConversionError(err)
		return out
	}
	out.Value = v
	return out
}

func kindOf(err *result.DecodeError) result.Kind {
	if err == nil {
		return 0
	}
	return err.Kind
}
