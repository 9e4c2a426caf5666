package nats

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/docstream-go/core/path"
	"github.com/codewandler/docstream-go/core/service"
	"github.com/codewandler/docstream-go/core/stream"
	"github.com/codewandler/docstream-go/ports/docstore"
)

const (
	time5s = 5 * time.Second
	tick   = 25 * time.Millisecond
)

type docEvent struct {
	snap *docstore.DocumentSnapshot
	err  error
}

type collEvent struct {
	snap *docstore.CollectionSnapshot
	err  error
}

type events[T any] struct {
	mu    sync.Mutex
	items []T
}

func (e *events[T]) add(v T) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = append(e.items, v)
}

func (e *events[T]) len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.items)
}

func (e *events[T]) at(i int) T {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.items[i]
}

func newTestStore(t *testing.T, compress bool) *Store {
	t.Helper()
	s, err := NewStore(StoreConfig{
		Connect:  NewTestContainer(t),
		Bucket:   "docs",
		Compress: compress,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func fetchDoc(t *testing.T, s *Store, address string) (*docstore.DocumentSnapshot, error) {
	t.Helper()
	done := make(chan docEvent, 1)
	s.FetchDocument(t.Context(), address, func(snap *docstore.DocumentSnapshot, err error) {
		done <- docEvent{snap, err}
	})
	select {
	case ev := <-done:
		return ev.snap, ev.err
	case <-time.After(time5s):
		t.Fatal("fetch timed out")
		return nil, nil
	}
}

func fetchColl(t *testing.T, s *Store, address string) (*docstore.CollectionSnapshot, error) {
	t.Helper()
	done := make(chan collEvent, 1)
	s.FetchCollection(t.Context(), address, func(snap *docstore.CollectionSnapshot, err error) {
		done <- collEvent{snap, err}
	})
	select {
	case ev := <-done:
		return ev.snap, ev.err
	case <-time.After(time5s):
		t.Fatal("fetch timed out")
		return nil, nil
	}
}

func TestStore_Documents(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "zstd"}[compress], func(t *testing.T) {
			s := newTestStore(t, compress)

			snap, err := fetchDoc(t, s, "users/alice")
			require.NoError(t, err)
			require.False(t, snap.Exists())
			require.Equal(t, "alice", snap.ID)

			require.NoError(t, s.Write(t.Context(), "users/alice", docstore.Fields{"name": "Alice", "age": 30}))
			snap, err = fetchDoc(t, s, "users/alice")
			require.NoError(t, err)
			require.True(t, snap.Exists())
			require.Equal(t, "Alice", snap.Fields["name"])
			require.Equal(t, json.Number("30"), snap.Fields["age"])
			require.NotZero(t, snap.Revision)

			require.NoError(t, s.Delete(t.Context(), "users/alice"))
			snap, err = fetchDoc(t, s, "users/alice")
			require.NoError(t, err)
			require.False(t, snap.Exists())
		})
	}
}

func TestStore_InvalidAddress(t *testing.T) {
	s := newTestStore(t, false)

	_, err := fetchDoc(t, s, "users")
	require.ErrorIs(t, err, docstore.ErrInvalidAddress)
	require.ErrorIs(t, s.Write(t.Context(), "users/a.b", docstore.Fields{}), docstore.ErrInvalidAddress)
	_, err = s.CreateWithGeneratedID(t.Context(), "users/alice", docstore.Fields{})
	require.ErrorIs(t, err, docstore.ErrInvalidAddress)
}

func TestStore_Collection(t *testing.T) {
	s := newTestStore(t, false)

	snap, err := fetchColl(t, s, "users")
	require.NoError(t, err)
	require.True(t, snap.Empty())

	require.NoError(t, s.Write(t.Context(), "users/bob", docstore.Fields{"name": "Bob"}))
	id, err := s.CreateWithGeneratedID(t.Context(), "users", docstore.Fields{"name": "Generated"})
	require.NoError(t, err)
	require.Len(t, id, 26)
	require.NoError(t, s.Write(t.Context(), "users/bob/posts/p1", docstore.Fields{"title": "nested"}))
	require.NoError(t, s.Write(t.Context(), "users/gone", docstore.Fields{"name": "Gone"}))
	require.NoError(t, s.Delete(t.Context(), "users/gone"))

	snap, err = fetchColl(t, s, "users")
	require.NoError(t, err)
	require.Len(t, snap.Documents, 2)
	items := snap.Items()
	require.Equal(t, "Bob", items["bob"]["name"])
	require.Equal(t, "Generated", items[id]["name"])
}

func TestStore_ListenDocument(t *testing.T) {
	s := newTestStore(t, false)
	var got events[docEvent]

	reg := s.ListenDocument(t.Context(), "users/alice", func(snap *docstore.DocumentSnapshot, err error) {
		got.add(docEvent{snap, err})
	})
	require.Eventually(t, func() bool { return got.len() == 1 }, time5s, tick)
	require.False(t, got.at(0).snap.Exists())

	require.NoError(t, s.Write(t.Context(), "users/alice", docstore.Fields{"n": 1}))
	require.Eventually(t, func() bool { return got.len() == 2 }, time5s, tick)
	require.Equal(t, json.Number("1"), got.at(1).snap.Fields["n"])

	require.NoError(t, s.Delete(t.Context(), "users/alice"))
	require.Eventually(t, func() bool { return got.len() == 3 }, time5s, tick)
	require.False(t, got.at(2).snap.Exists())

	reg.Cancel()
	reg.Cancel()
	require.NoError(t, s.Write(t.Context(), "users/alice", docstore.Fields{"n": 2}))
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, 3, got.len())
}

func TestStore_ListenDocument_ExistingValue(t *testing.T) {
	s := newTestStore(t, false)
	require.NoError(t, s.Write(t.Context(), "users/alice", docstore.Fields{"n": 1}))

	var got events[docEvent]
	reg := s.ListenDocument(t.Context(), "users/alice", func(snap *docstore.DocumentSnapshot, err error) {
		got.add(docEvent{snap, err})
	})
	defer reg.Cancel()

	require.Eventually(t, func() bool { return got.len() >= 1 }, time5s, tick)
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, 1, got.len())
	require.True(t, got.at(0).snap.Exists())
}

func TestStore_ListenCollectionChanges(t *testing.T) {
	s := newTestStore(t, false)
	require.NoError(t, s.Write(t.Context(), "users/a", docstore.Fields{"v": 1}))

	var got events[collEvent]
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	s.ListenCollection(ctx, "users", func(snap *docstore.CollectionSnapshot, err error) {
		got.add(collEvent{snap, err})
	})
	require.Eventually(t, func() bool { return got.len() == 1 }, time5s, tick)
	require.Equal(t, docstore.ChangeAdded, got.at(0).snap.Changes[0].Kind)

	require.NoError(t, s.Write(t.Context(), "users/b", docstore.Fields{"v": 2}))
	require.Eventually(t, func() bool { return got.len() == 2 }, time5s, tick)
	require.Equal(t, "b", got.at(1).snap.Changes[0].ID)
	require.Len(t, got.at(1).snap.Documents, 2)

	require.NoError(t, s.Write(t.Context(), "users/a", docstore.Fields{"v": 3}))
	require.Eventually(t, func() bool { return got.len() == 3 }, time5s, tick)
	require.Equal(t, docstore.ChangeModified, got.at(2).snap.Changes[0].Kind)

	require.NoError(t, s.Delete(t.Context(), "users/b"))
	require.Eventually(t, func() bool { return got.len() == 4 }, time5s, tick)
	require.Equal(t, docstore.ChangeRemoved, got.at(3).snap.Changes[0].Kind)
	require.Len(t, got.at(3).snap.Documents, 1)

	cancel()
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, s.Write(t.Context(), "users/c", docstore.Fields{"v": 4}))
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, 4, got.len())
}

type user struct {
	Name string `json:"name"`
}

func TestStore_WithService(t *testing.T) {
	s := newTestStore(t, true)
	svc := service.New(s)
	users := path.MustColl[user]("users")

	ch, sub, err := stream.Chan(t.Context(), service.ObserveCollectionSlice(svc, users), 16)
	require.NoError(t, err)
	defer sub.Cancel()

	first := <-ch
	v, err := first.Get()
	require.NoError(t, err)
	require.Empty(t, v)

	id, err := service.AddValue(t.Context(), svc, users, user{Name: "Ada"})
	require.NoError(t, err)

	next := <-ch
	v, err = next.Get()
	require.NoError(t, err)
	require.Equal(t, []user{{Name: "Ada"}}, v)

	u, err := service.GetDocument(t.Context(), svc, users.Doc(id))
	require.NoError(t, err)
	require.Equal(t, "Ada", u.Name)
}

func TestStore_CloseReleasesConnection(t *testing.T) {
	connect := ReuseConnection(NewTestContainer(t))
	nc, release, err := connect()
	require.NoError(t, err)

	s, err := NewStore(StoreConfig{Connect: connect, Bucket: "close"})
	require.NoError(t, err)
	require.NoError(t, s.Write(t.Context(), "users/alice", docstore.Fields{"name": "Alice"}))

	release()
	require.Equal(t, "CONNECTED", nc.Status().String())

	require.NoError(t, s.Close())
	require.Equal(t, "CLOSED", nc.Status().String())
}
