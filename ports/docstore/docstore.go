package docstore

import (
	"context"
	"errors"
	"sort"
)

var (
	ErrInvalidAddress   = errors.New("invalid address")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnavailable      = errors.New("store unavailable")
	ErrAlreadyExists    = errors.New("document already exists")
)

// Fields is the raw, untyped content of a document.
type Fields = map[string]any

// DocumentSnapshot is the state of one document at a point in time.
type DocumentSnapshot struct {
	ID       string
	Address  string
	Fields   Fields // nil when the document does not exist
	Revision uint64
}

// Exists reports whether the document holds data.
func (s *DocumentSnapshot) Exists() bool { return s != nil && s.Fields != nil }

// ChangeKind classifies how a document changed between two collection snapshots.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota + 1
	ChangeModified
	ChangeRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Change describes one document change. Fields holds the new content, or the
// last known content for removals.
type Change struct {
	Kind   ChangeKind
	ID     string
	Fields Fields
}

// CollectionSnapshot is the state of a collection at a point in time.
type CollectionSnapshot struct {
	Address   string
	Documents []DocumentSnapshot // existing documents, ordered by id
	// Changes relative to the previous snapshot delivered on the same listener
	// registration; for a first snapshot every document is added.
	Changes []Change
}

func (s *CollectionSnapshot) Empty() bool { return s == nil || len(s.Documents) == 0 }

// Items returns the documents keyed by id.
func (s *CollectionSnapshot) Items() map[string]Fields {
	items := make(map[string]Fields, len(s.Documents))
	for _, d := range s.Documents {
		items[d.ID] = d.Fields
	}
	return items
}

type (
	// DocumentCallback receives a snapshot, an error, or (on contract
	// violation) neither.
	DocumentCallback func(snap *DocumentSnapshot, err error)
	// CollectionCallback receives a snapshot, an error, or (on contract
	// violation) neither.
	CollectionCallback func(snap *CollectionSnapshot, err error)
)

// Registration is the handle of a live listener.
type Registration interface {
	// Cancel stops the listener. No callback starts after Cancel returns.
	// Calling it more than once is a no-op.
	Cancel()
}

// Store is the document store collaborator.
type Store interface {
	// FetchDocument reads a document once; cb is invoked exactly once.
	FetchDocument(ctx context.Context, address string, cb DocumentCallback)
	// ListenDocument invokes cb with the current state and on every change.
	ListenDocument(ctx context.Context, address string, cb DocumentCallback) Registration

	// FetchCollection reads a collection once; cb is invoked exactly once.
	FetchCollection(ctx context.Context, address string, cb CollectionCallback)
	// ListenCollection invokes cb with the current state and on every change.
	ListenCollection(ctx context.Context, address string, cb CollectionCallback) Registration

	// Write overwrites the document at address.
	Write(ctx context.Context, address string, fields Fields) error
	// CreateWithGeneratedID creates a new document below collectionAddress
	// and returns its id.
	CreateWithGeneratedID(ctx context.Context, collectionAddress string, fields Fields) (id string, err error)
}

// Diff computes the changes between two collection states keyed by id.
// Modified documents are detected through their revision.
func Diff(prev, next map[string]DocumentSnapshot) []Change {
	var changes []Change
	for id, doc := range next {
		old, ok := prev[id]
		switch {
		case !ok:
			changes = append(changes, Change{Kind: ChangeAdded, ID: id, Fields: doc.Fields})
		case old.Revision != doc.Revision:
			changes = append(changes, Change{Kind: ChangeModified, ID: id, Fields: doc.Fields})
		}
	}
	for id, doc := range prev {
		if _, ok := next[id]; !ok {
			changes = append(changes, Change{Kind: ChangeRemoved, ID: id, Fields: doc.Fields})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].ID < changes[j].ID })
	return changes
}

// NewCollectionSnapshot builds a snapshot from a state keyed by id.
func NewCollectionSnapshot(address string, docs map[string]DocumentSnapshot, changes []Change) *CollectionSnapshot {
	snap := &CollectionSnapshot{
		Address:   address,
		Documents: make([]DocumentSnapshot, 0, len(docs)),
		Changes:   changes,
	}
	for _, d := range docs {
		snap.Documents = append(snap.Documents, d)
	}
	sort.Slice(snap.Documents, func(i, j int) bool { return snap.Documents[i].ID < snap.Documents[j].ID })
	return snap
}
