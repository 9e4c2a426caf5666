package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/codewandler/docstream-go/core/codec"
	"github.com/codewandler/docstream-go/core/convert"
	"github.com/codewandler/docstream-go/core/listen"
	"github.com/codewandler/docstream-go/core/path"
	"github.com/codewandler/docstream-go/core/result"
	"github.com/codewandler/docstream-go/core/stream"
	"github.com/codewandler/docstream-go/internal/typename"
	"github.com/codewandler/docstream-go/ports/docstore"
)

// Option configures a Service.
type Option func(*config)

type config struct {
	codec   codec.Config
	log     *slog.Logger
	metrics Metrics
}

// WithCodecConfig sets the decode and encode strategies (default: codec.DefaultConfig()).
func WithCodecConfig(cfg codec.Config) Option {
	return func(c *config) { c.codec = cfg }
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(log *slog.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetrics sets the metrics implementation (default: NopMetrics()).
func WithMetrics(m Metrics) Option {
	return func(c *config) {
		if m != nil {
			c.metrics = m
		}
	}
}

// Service binds a store to a codec.
type Service struct {
	store   docstore.Store
	codec   *codec.Codec
	log     *slog.Logger
	metrics Metrics
}

func New(store docstore.Store, opts ...Option) *Service {
	cfg := &config{
		codec:   codec.DefaultConfig(),
		log:     slog.Default(),
		metrics: NopMetrics(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Service{
		store:   store,
		codec:   codec.New(cfg.codec),
		log:     cfg.log.With(slog.String("component", "service")),
		metrics: cfg.metrics,
	}
}

func (s *Service) Store() docstore.Store { return s.store }
func (s *Service) Codec() *codec.Codec   { return s.codec }

// === documents ===

// FetchDocument reads the document at p once.
func FetchDocument[T any](ctx context.Context, s *Service, p path.Document[T]) *stream.Deferred[T] {
	name := typename.Of[T]()
	s.log.Debug("fetch document", slog.String("path", p.Render()), slog.String("type", name))
	timer := s.metrics.FetchDuration(name)
	conv := convert.DocumentWith[T](s.codec)
	return listen.FetchDocument[T](ctx, s.store, p.Render(), func(snap *docstore.DocumentSnapshot, err error) result.Result[T] {
		timer.ObserveDuration()
		return recorded(s, name, conv(snap, err))
	})
}

// GetDocument reads the document at p once and returns nil if it does not
// exist. Other failures are returned as *result.DecodeError.
func GetDocument[T any](ctx context.Context, s *Service, p path.Document[T]) (*T, error) {
	v, err := FetchDocument(ctx, s, p).Await(ctx)
	if errors.Is(err, result.ErrNoValuePresent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ObserveDocument streams the decoded state of the document at p.
func ObserveDocument[T any](s *Service, p path.Document[T]) stream.Stream[result.Result[T]] {
	name := typename.Of[T]()
	conv := convert.DocumentWith[T](s.codec)
	src := listen.ObserveDocument[T](s.store, p.Render(), func(snap *docstore.DocumentSnapshot, err error) result.Result[T] {
		return recorded(s, name, conv(snap, err))
	})
	return tracked(s, src, p.Render(), name)
}

// SetValue encodes v and writes it to p, replacing the document. Encoding
// failures are returned as a conversion *result.DecodeError; store errors
// are returned unchanged.
func SetValue[T any](ctx context.Context, s *Service, p path.Document[T], v T) error {
	name := typename.Of[T]()
	fields, err := s.codec.Encode(v)
	if err != nil {
		s.metrics.Written(name, false)
		return result.ConversionError(err)
	}

	timer := s.metrics.WriteDuration(name)
	err = s.store.Write(ctx, p.Render(), fields)
	timer.ObserveDuration()
	s.metrics.Written(name, err == nil)
	if err != nil {
		s.log.Debug("set value failed", slog.String("path", p.Render()), slog.Any("error", err))
		return err
	}
	return nil
}

// === collections ===

// FetchCollection reads the collection at p once as a map keyed by
// document id. An empty collection rejects with NoValuePresent.
func FetchCollection[T any](ctx context.Context, s *Service, p path.Collection[T]) *stream.Deferred[map[string]T] {
	return fetchCollection(ctx, s, p, convert.CollectionMapWith[T](s.codec))
}

// FetchCollectionSlice reads the collection at p once as a slice in
// document id order. An empty collection resolves with an empty slice.
func FetchCollectionSlice[T any](ctx context.Context, s *Service, p path.Collection[T]) *stream.Deferred[[]T] {
	return fetchCollection(ctx, s, p, convert.CollectionSliceWith[T](s.codec))
}

func fetchCollection[T, V any](
	ctx context.Context,
	s *Service,
	p path.Collection[T],
	conv convert.CollectionFunc[V],
) *stream.Deferred[V] {
	name := typename.Of[V]()
	s.log.Debug("fetch collection", slog.String("path", p.Render()), slog.String("type", name))
	timer := s.metrics.FetchDuration(name)
	return listen.FetchCollection[V](ctx, s.store, p.Render(), func(snap *docstore.CollectionSnapshot, err error) result.Result[V] {
		timer.ObserveDuration()
		return recorded(s, name, conv(snap, err))
	})
}

// ObserveCollection streams the decoded state of the collection at p as a
// map keyed by document id.
func ObserveCollection[T any](s *Service, p path.Collection[T]) stream.Stream[result.Result[map[string]T]] {
	return observeCollection(s, p, convert.CollectionMapWith[T](s.codec))
}

// ObserveCollectionSlice streams the decoded state of the collection at p as
// a slice in document id order.
func ObserveCollectionSlice[T any](s *Service, p path.Collection[T]) stream.Stream[result.Result[[]T]] {
	return observeCollection(s, p, convert.CollectionSliceWith[T](s.codec))
}

func observeCollection[T, V any](
	s *Service,
	p path.Collection[T],
	conv convert.CollectionFunc[V],
) stream.Stream[result.Result[V]] {
	name := typename.Of[V]()
	src := listen.ObserveCollection[V](s.store, p.Render(), func(snap *docstore.CollectionSnapshot, err error) result.Result[V] {
		return recorded(s, name, conv(snap, err))
	})
	return tracked(s, src, p.Render(), name)
}

// AddValue encodes v and stores it as a new document in p under a
// store-generated id, which is returned.
func AddValue[T any](ctx context.Context, s *Service, p path.Collection[T], v T) (string, error) {
	name := typename.Of[T]()
	fields, err := s.codec.Encode(v)
	if err != nil {
		s.metrics.Written(name, false)
		return "", result.ConversionError(err)
	}

	timer := s.metrics.WriteDuration(name)
	id, err := s.store.CreateWithGeneratedID(ctx, p.Render(), fields)
	timer.ObserveDuration()
	s.metrics.Written(name, err == nil)
	if err != nil {
		s.log.Debug("add value failed", slog.String("path", p.Render()), slog.Any("error", err))
		return "", err
	}
	return id, nil
}

// === internals ===

func recorded[V any](s *Service, name string, r result.Result[V]) result.Result[V] {
	s.recordOutcome(name, r.Kind())
	return r
}

func (s *Service) recordOutcome(name string, kind result.Kind) {
	if kind == 0 {
		s.metrics.Decoded(name, OutcomeSuccess)
		return
	}
	s.metrics.Decoded(name, kind.String())
}

// tracked logs and counts the lifetime of every subscription to src. The
// stop is recorded by the cancel teardown, on the cancelling goroutine.
func tracked[T any](s *Service, src stream.Stream[T], address, name string) stream.Stream[T] {
	return stream.Func[T](func(ctx context.Context, next func(T)) (stream.Subscription, error) {
		sub, err := src.Subscribe(ctx, next)
		if err != nil {
			return nil, err
		}
		log := s.log.With(slog.String("path", address), slog.String("type", name))
		log.Debug("subscribed")
		s.metrics.SubscriptionStarted(name)
		return stream.NewSubscription(ctx, func() {
			sub.Cancel()
			s.metrics.SubscriptionStopped(name)
			log.Debug("unsubscribed")
		}), nil
	})
}
