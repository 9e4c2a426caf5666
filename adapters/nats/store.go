package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/oklog/ulid/v2"

	"github.com/codewandler/docstream-go/ports/docstore"
)

const (
	defaultBucket  = "docstream"
	defaultTimeout = 5 * time.Second
)

type StoreConfig struct {
	Connect  Connector    // Connect is used to create the underlying NATS connection. If nil, ConnectDefault() is used.
	Log      *slog.Logger // Log for diagnostics (optional)
	Bucket   string       // Bucket is the KV bucket holding the documents (default: "docstream")
	Compress bool         // Compress stores values as zstd frames. Reads accept both forms.

	// Timeout bounds one-shot reads and writes (default: 5s).
	Timeout time.Duration

	// MaxBytes is the maximum size of the bucket (0 means unlimited).
	MaxBytes int64
}

// Store is a docstore.Store backed by a JetStream key-value bucket.
// Document "users/alice" is stored under key "users.alice"; a collection is
// the set of keys one token below its address.
type Store struct {
	close   closeFunc
	kv      jetstream.KeyValue
	log     *slog.Logger
	values  *valueCodec
	timeout time.Duration
}

func NewStore(cfg StoreConfig) (*Store, error) {
	doConnect := cfg.Connect
	if doConnect == nil {
		doConnect = ConnectDefault()
	}

	nc, closeConn, err := doConnect()
	if err != nil {
		return nil, mapError(err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		closeConn()
		return nil, err
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = defaultBucket
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	maxBytes := cfg.MaxBytes
	if maxBytes == 0 {
		maxBytes = -1
	}

	log = log.With(
		slog.String("store", "nats_kv"),
		slog.String("bucket", bucket),
	)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:   bucket,
		Storage:  jetstream.FileStorage,
		MaxBytes: maxBytes,
		History:  1,
	})
	if err != nil {
		closeConn()
		return nil, mapError(err)
	}

	values, err := newValueCodec(cfg.Compress)
	if err != nil {
		closeConn()
		return nil, err
	}

	log.Debug("ensured bucket", slog.Bool("compress", cfg.Compress))

	return &Store{
		close:   closeConn,
		kv:      kv,
		log:     log,
		values:  values,
		timeout: timeout,
	}, nil
}

// Close releases the connection lease.
func (s *Store) Close() error {
	s.values.close()
	s.close()
	s.log.Debug("closed store")
	return nil
}

// === reads ===

func (s *Store) FetchDocument(ctx context.Context, address string, cb docstore.DocumentCallback) {
	key, err := s.documentKey(address)
	if err != nil {
		cb(nil, err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		entry, err := s.kv.Get(ctx, key)
		switch {
		case errors.Is(err, jetstream.ErrKeyNotFound), errors.Is(err, jetstream.ErrKeyDeleted):
			cb(&docstore.DocumentSnapshot{ID: idOf(key), Address: address}, nil)
		case err != nil:
			cb(nil, mapError(err))
		default:
			cb(s.values.snapshotOf(address, entry))
		}
	}()
}

func (s *Store) FetchCollection(ctx context.Context, address string, cb docstore.CollectionCallback) {
	key, err := s.collectionKey(address)
	if err != nil {
		cb(nil, err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		w, err := s.kv.Watch(ctx, key+keySeparator+"*", jetstream.IgnoreDeletes())
		if err != nil {
			cb(nil, mapError(err))
			return
		}
		defer func() { _ = w.Stop() }()

		state := map[string]docstore.DocumentSnapshot{}
		for {
			select {
			case <-ctx.Done():
				cb(nil, mapError(ctx.Err()))
				return
			case entry, ok := <-w.Updates():
				if !ok {
					cb(nil, fmt.Errorf("%w: watcher closed", docstore.ErrUnavailable))
					return
				}
				if entry == nil {
					cb(docstore.NewCollectionSnapshot(address, state, docstore.Diff(nil, state)), nil)
					return
				}
				if err := s.apply(state, address, entry); err != nil {
					cb(nil, err)
					return
				}
			}
		}
	}()
}

// === listeners ===

type registration struct {
	cancelled atomic.Bool
	mu        sync.Mutex
	watcher   jetstream.KeyWatcher
}

func (r *registration) Cancel() {
	if r.cancelled.Swap(true) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watcher != nil {
		_ = r.watcher.Stop()
	}
}

func (r *registration) active() bool { return !r.cancelled.Load() }

func (s *Store) ListenDocument(ctx context.Context, address string, cb docstore.DocumentCallback) docstore.Registration {
	reg := newRegistration(ctx)
	key, err := s.documentKey(address)
	if err != nil {
		cb(nil, err)
		return reg
	}

	seen := false
	s.watch(ctx, reg, key, address, func(entry jetstream.KeyValueEntry, err error) {
		switch {
		case err != nil:
			cb(nil, err)
		case entry == nil:
			// end of initial values; report absence if the key had none
			if !seen {
				cb(&docstore.DocumentSnapshot{ID: idOf(key), Address: address}, nil)
			}
		default:
			seen = true
			cb(s.values.snapshotOf(address, entry))
		}
	})
	return reg
}

func (s *Store) ListenCollection(ctx context.Context, address string, cb docstore.CollectionCallback) docstore.Registration {
	reg := newRegistration(ctx)
	key, err := s.collectionKey(address)
	if err != nil {
		cb(nil, err)
		return reg
	}

	var (
		state     = map[string]docstore.DocumentSnapshot{}
		delivered map[string]docstore.DocumentSnapshot
		ready     bool
	)
	emit := func() {
		next := make(map[string]docstore.DocumentSnapshot, len(state))
		for id, snap := range state {
			next[id] = snap
		}
		changes := docstore.Diff(delivered, next)
		delivered = next
		cb(docstore.NewCollectionSnapshot(address, next, changes), nil)
	}

	s.watch(ctx, reg, key+keySeparator+"*", address, func(entry jetstream.KeyValueEntry, err error) {
		switch {
		case err != nil:
			cb(nil, err)
		case entry == nil:
			ready = true
			emit()
		default:
			if err := s.apply(state, address, entry); err != nil {
				cb(nil, err)
				return
			}
			if ready {
				emit()
			}
		}
	})
	return reg
}

func newRegistration(ctx context.Context) *registration {
	reg := &registration{}
	context.AfterFunc(ctx, reg.Cancel)
	return reg
}

// watch runs a KV watcher for reg on its own goroutine. handle receives each
// entry, a nil entry once the initial values were replayed, or an error.
// Nothing is delivered once reg is cancelled.
func (s *Store) watch(
	ctx context.Context,
	reg *registration,
	pattern string,
	address string,
	handle func(entry jetstream.KeyValueEntry, err error),
) {
	log := s.log.With(slog.String("address", address))

	w, err := s.kv.Watch(context.WithoutCancel(ctx), pattern)
	if err != nil {
		if reg.active() {
			handle(nil, mapError(err))
		}
		return
	}

	reg.mu.Lock()
	reg.watcher = w
	reg.mu.Unlock()
	if !reg.active() {
		_ = w.Stop()
		return
	}

	log.Debug("listen", slog.String("pattern", pattern))

	go func() {
		defer log.Debug("unlisten")
		for entry := range w.Updates() {
			if !reg.active() {
				return
			}
			handle(entry, nil)
		}
		if reg.active() {
			handle(nil, fmt.Errorf("%w: watcher closed", docstore.ErrUnavailable))
		}
	}()
}

// apply folds one watcher entry into a collection state.
func (s *Store) apply(state map[string]docstore.DocumentSnapshot, collection string, entry jetstream.KeyValueEntry) error {
	id := idOf(entry.Key())
	if entry.Operation() != jetstream.KeyValuePut {
		delete(state, id)
		return nil
	}
	snap, err := s.values.snapshotOf(docstore.Join(collection, id), entry)
	if err != nil {
		return err
	}
	state[id] = *snap
	return nil
}

// === writes ===

func (s *Store) Write(ctx context.Context, address string, fields docstore.Fields) error {
	key, err := s.documentKey(address)
	if err != nil {
		return err
	}
	data, err := s.values.marshal(fields)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rev, err := s.kv.Put(ctx, key, data)
	if err != nil {
		return mapError(err)
	}
	s.log.Debug("write", slog.String("address", address), slog.Uint64("rev", rev))
	return nil
}

func (s *Store) CreateWithGeneratedID(ctx context.Context, collectionAddress string, fields docstore.Fields) (string, error) {
	key, err := s.collectionKey(collectionAddress)
	if err != nil {
		return "", err
	}
	data, err := s.values.marshal(fields)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	id := ulid.Make().String()
	rev, err := s.kv.Create(ctx, key+keySeparator+id, data)
	if err != nil {
		return "", mapError(err)
	}
	s.log.Debug("create", slog.String("address", docstore.Join(collectionAddress, id)), slog.Uint64("rev", rev))
	return id, nil
}

// Delete removes the document at address.
func (s *Store) Delete(ctx context.Context, address string) error {
	key, err := s.documentKey(address)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.kv.Delete(ctx, key); err != nil {
		return mapError(err)
	}
	s.log.Debug("delete", slog.String("address", address))
	return nil
}

// === helpers ===

func (s *Store) documentKey(address string) (string, error) {
	if !docstore.IsDocument(address) {
		return "", fmt.Errorf("%w: %q is not a document address", docstore.ErrInvalidAddress, address)
	}
	return keyFor(address)
}

func (s *Store) collectionKey(address string) (string, error) {
	if !docstore.IsCollection(address) {
		return "", fmt.Errorf("%w: %q is not a collection address", docstore.ErrInvalidAddress, address)
	}
	return keyFor(address)
}

var _ docstore.Store = (*Store)(nil)
