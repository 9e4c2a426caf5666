package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// MemStore is an in-memory Store for tests and development.
//
// Documents are kept as encoded JSON, so snapshots never alias caller maps.
// Listener callbacks run on the goroutine of the write that caused them, in
// write order; writes issued from inside a callback are queued and delivered
// after the current callback returns.
type MemStore struct {
	mu        sync.Mutex
	log       *slog.Logger
	rev       uint64
	docs      map[string]memEntry
	faults    map[string]error
	listeners map[string]*memListener

	queue    []func()
	draining bool
}

type memEntry struct {
	data []byte
	rev  uint64
}

type memListener struct {
	id         string
	address    string
	collection bool
	docCB      DocumentCallback
	collCB     CollectionCallback
	state      map[string]DocumentSnapshot
	cancelled  atomic.Bool
	store      *MemStore
}

func NewMemStore() *MemStore {
	return &MemStore{
		log:       slog.Default().With(slog.String("store", "memory")),
		docs:      map[string]memEntry{},
		faults:    map[string]error{},
		listeners: map[string]*memListener{},
	}
}

// WithLogger replaces the store logger.
func (m *MemStore) WithLogger(log *slog.Logger) *MemStore {
	m.log = log.With(slog.String("store", "memory"))
	return m
}

// === reads ===

func (m *MemStore) FetchDocument(ctx context.Context, address string, cb DocumentCallback) {
	if err := ctx.Err(); err != nil {
		cb(nil, err)
		return
	}
	if !IsDocument(address) {
		cb(nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address))
		return
	}

	m.mu.Lock()
	if err := m.faults[address]; err != nil {
		m.mu.Unlock()
		cb(nil, err)
		return
	}
	snap, err := m.documentLocked(address)
	m.mu.Unlock()

	if err != nil {
		cb(nil, err)
		return
	}
	cb(snap, nil)
}

func (m *MemStore) FetchCollection(ctx context.Context, address string, cb CollectionCallback) {
	if err := ctx.Err(); err != nil {
		cb(nil, err)
		return
	}
	if !IsCollection(address) {
		cb(nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address))
		return
	}

	m.mu.Lock()
	if err := m.faults[address]; err != nil {
		m.mu.Unlock()
		cb(nil, err)
		return
	}
	state, err := m.collectionLocked(address)
	m.mu.Unlock()

	if err != nil {
		cb(nil, err)
		return
	}
	cb(NewCollectionSnapshot(address, state, Diff(nil, state)), nil)
}

// === listeners ===

func (m *MemStore) ListenDocument(ctx context.Context, address string, cb DocumentCallback) Registration {
	l := &memListener{address: address, docCB: cb, store: m}
	return m.register(ctx, l)
}

func (m *MemStore) ListenCollection(ctx context.Context, address string, cb CollectionCallback) Registration {
	l := &memListener{address: address, collection: true, collCB: cb, store: m}
	return m.register(ctx, l)
}

func (m *MemStore) register(ctx context.Context, l *memListener) Registration {
	l.id = gonanoid.Must()

	m.mu.Lock()
	m.listeners[l.id] = l
	m.log.Debug(
		"listen",
		slog.String("listener", l.id),
		slog.String("address", l.address),
		slog.Bool("collection", l.collection),
	)
	m.enqueueLocked(l.notifyLocked(ctx.Err()))
	m.mu.Unlock()

	context.AfterFunc(ctx, l.Cancel)

	m.drain()
	return l
}

func (l *memListener) Cancel() {
	if l.cancelled.Swap(true) {
		return
	}
	m := l.store
	m.mu.Lock()
	delete(m.listeners, l.id)
	m.mu.Unlock()
	m.log.Debug("unlisten", slog.String("listener", l.id), slog.String("address", l.address))
}

// notifyLocked builds the callback delivering the listener's current state,
// or err if non-nil.
func (l *memListener) notifyLocked(err error) func() {
	m := l.store
	if err == nil {
		err = m.faults[l.address]
	}
	if err == nil {
		if l.collection && !IsCollection(l.address) || !l.collection && !IsDocument(l.address) {
			err = fmt.Errorf("%w: %q", ErrInvalidAddress, l.address)
		}
	}

	if l.collection {
		var snap *CollectionSnapshot
		if err == nil {
			var state map[string]DocumentSnapshot
			state, err = m.collectionLocked(l.address)
			if err == nil {
				snap = NewCollectionSnapshot(l.address, state, Diff(l.state, state))
				l.state = state
			}
		}
		return func() {
			if !l.cancelled.Load() {
				l.collCB(snap, err)
			}
		}
	}

	var snap *DocumentSnapshot
	if err == nil {
		snap, err = m.documentLocked(l.address)
	}
	return func() {
		if !l.cancelled.Load() {
			l.docCB(snap, err)
		}
	}
}

// === writes ===

func (m *MemStore) Write(ctx context.Context, address string, fields Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !IsDocument(address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	data, err := MarshalFields(fields)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if err := m.faults[address]; err != nil {
		m.mu.Unlock()
		return err
	}
	m.putLocked(address, data)
	m.mu.Unlock()

	m.drain()
	return nil
}

func (m *MemStore) CreateWithGeneratedID(ctx context.Context, collectionAddress string, fields Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !IsCollection(collectionAddress) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, collectionAddress)
	}
	data, err := MarshalFields(fields)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	if err := m.faults[collectionAddress]; err != nil {
		m.mu.Unlock()
		return "", err
	}
	id := gonanoid.Must()
	address := Join(collectionAddress, id)
	if _, exists := m.docs[address]; exists {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrAlreadyExists, address)
	}
	m.putLocked(address, data)
	m.mu.Unlock()

	m.drain()
	return id, nil
}

// Delete removes the document at address. Deleting a missing document is a no-op.
func (m *MemStore) Delete(ctx context.Context, address string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !IsDocument(address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	m.mu.Lock()
	if _, ok := m.docs[address]; !ok {
		m.mu.Unlock()
		return nil
	}
	m.rev++
	delete(m.docs, address)
	m.log.Debug("delete", slog.String("address", address), slog.Uint64("rev", m.rev))
	m.notifyAddressLocked(address)
	m.mu.Unlock()

	m.drain()
	return nil
}

// FailWith makes every read, write and listener on address fail with err
// until cleared with a nil err. Active listeners are notified immediately.
func (m *MemStore) FailWith(address string, err error) {
	m.mu.Lock()
	if err == nil {
		delete(m.faults, address)
	} else {
		m.faults[address] = err
	}
	for _, l := range m.listeners {
		if l.address == address {
			m.enqueueLocked(l.notifyLocked(nil))
		}
	}
	m.mu.Unlock()

	m.drain()
}

// Listeners returns the number of active listener registrations.
func (m *MemStore) Listeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

// === internals ===

func (m *MemStore) putLocked(address string, data []byte) {
	m.rev++
	m.docs[address] = memEntry{data: data, rev: m.rev}
	m.log.Debug("write", slog.String("address", address), slog.Uint64("rev", m.rev))
	m.notifyAddressLocked(address)
}

// notifyAddressLocked queues notifications for the listeners affected by a
// change of the document at address.
func (m *MemStore) notifyAddressLocked(address string) {
	parent, _, err := Split(address)
	if err != nil {
		return
	}
	for _, l := range m.listeners {
		if l.collection && l.address == parent || !l.collection && l.address == address {
			m.enqueueLocked(l.notifyLocked(nil))
		}
	}
}

func (m *MemStore) documentLocked(address string) (*DocumentSnapshot, error) {
	_, id, err := Split(address)
	if err != nil {
		return nil, err
	}
	snap := &DocumentSnapshot{ID: id, Address: address}
	entry, ok := m.docs[address]
	if !ok {
		return snap, nil
	}
	fields, err := UnmarshalFields(entry.data)
	if err != nil {
		return nil, fmt.Errorf("corrupt document %s: %w", address, err)
	}
	snap.Fields = fields
	snap.Revision = entry.rev
	return snap, nil
}

func (m *MemStore) collectionLocked(address string) (map[string]DocumentSnapshot, error) {
	state := map[string]DocumentSnapshot{}
	for addr, entry := range m.docs {
		parent, id, err := Split(addr)
		if err != nil || parent != address {
			continue
		}
		fields, err := UnmarshalFields(entry.data)
		if err != nil {
			return nil, fmt.Errorf("corrupt document %s: %w", addr, err)
		}
		state[id] = DocumentSnapshot{ID: id, Address: addr, Fields: fields, Revision: entry.rev}
	}
	return state, nil
}

func (m *MemStore) enqueueLocked(fn func()) {
	m.queue = append(m.queue, fn)
}

// drain delivers queued callbacks outside the store lock. Only one goroutine
// drains at a time, which keeps delivery in enqueue order.
func (m *MemStore) drain() {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true
	for len(m.queue) > 0 {
		fn := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		fn()
		m.mu.Lock()
	}
	m.draining = false
	m.mu.Unlock()
}

var _ Store = (*MemStore)(nil)
