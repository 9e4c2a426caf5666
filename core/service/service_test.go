package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/docstream-go/core/codec"
	"github.com/codewandler/docstream-go/core/metrics"
	"github.com/codewandler/docstream-go/core/path"
	"github.com/codewandler/docstream-go/core/result"
	"github.com/codewandler/docstream-go/core/stream"
	"github.com/codewandler/docstream-go/ports/docstore"
)

const (
	time2s = 2 * time.Second
	tick   = 10 * time.Millisecond
)

type User struct {
	Name      string    `json:"name"`
	Age       int       `json:"age"`
	CreatedAt time.Time `json:"createdAt"`
}

type Reading struct {
	Value float64 `json:"value"`
}

var (
	users = path.MustColl[User]("users")
	alice = users.Doc("alice")
)

// recordingMetrics counts calls per metric and label.
type recordingMetrics struct {
	mu       sync.Mutex
	decoded  map[string]int
	active   int
	dropped  int
	writes   map[bool]int
	fetches  int
	writeObs int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{decoded: map[string]int{}, writes: map[bool]int{}}
}

type countingTimer struct{ n *int }

func (t countingTimer) ObserveDuration() { *t.n++ }

func (m *recordingMetrics) FetchDuration(string) metrics.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return countingTimer{n: &m.fetches}
}

func (m *recordingMetrics) Decoded(_ string, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decoded[outcome]++
}

func (m *recordingMetrics) SubscriptionStarted(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active++
}

func (m *recordingMetrics) SubscriptionStopped(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active--
}

func (m *recordingMetrics) StoreErrorDropped(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped++
}

func (m *recordingMetrics) WriteDuration(string) metrics.Timer {
	return countingTimer{n: &m.writeObs}
}

func (m *recordingMetrics) Written(_ string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes[success]++
}

func (m *recordingMetrics) activeSubs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func setup(t *testing.T, opts ...Option) (*Service, *docstore.MemStore) {
	t.Helper()
	store := docstore.NewMemStore()
	return New(store, opts...), store
}

func TestSetAndFetchDocument(t *testing.T) {
	s, _ := setup(t)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, SetValue(t.Context(), s, alice, User{Name: "Alice", Age: 30, CreatedAt: created}))

	u, err := FetchDocument(t.Context(), s, alice).Await(t.Context())
	require.NoError(t, err)
	require.Equal(t, "Alice", u.Name)
	require.Equal(t, 30, u.Age)
	require.True(t, u.CreatedAt.Equal(created))
}

func TestFetchDocument_Missing(t *testing.T) {
	s, _ := setup(t)
	_, err := FetchDocument(t.Context(), s, users.Doc("nobody")).Await(t.Context())

	var de *result.DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, result.KindNoValuePresent, de.Kind)
}

func TestGetDocument(t *testing.T) {
	s, store := setup(t)

	u, err := GetDocument(t.Context(), s, alice)
	require.NoError(t, err)
	require.Nil(t, u)

	require.NoError(t, SetValue(t.Context(), s, alice, User{Name: "Alice"}))
	u, err = GetDocument(t.Context(), s, alice)
	require.NoError(t, err)
	require.Equal(t, "Alice", u.Name)

	require.NoError(t, store.Write(t.Context(), alice.Render(), docstore.Fields{"age": "thirty"}))
	_, err = GetDocument(t.Context(), s, alice)
	require.ErrorIs(t, err, result.ErrConversion)

	store.FailWith(alice.Render(), docstore.ErrPermissionDenied)
	_, err = GetDocument(t.Context(), s, alice)
	require.ErrorIs(t, err, result.ErrInternal)
	require.ErrorIs(t, err, docstore.ErrPermissionDenied)
}

func TestSetValue_EncodeFailure(t *testing.T) {
	m := newRecordingMetrics()
	s, store := setup(t, WithMetrics(m))
	readings := path.MustColl[Reading]("readings")

	err := SetValue(t.Context(), s, readings.Doc("r1"), Reading{Value: math.NaN()})
	var de *result.DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, result.KindConversion, de.Kind)
	require.Equal(t, 1, m.writes[false])

	snapCalls := 0
	store.FetchDocument(t.Context(), "readings/r1", func(snap *docstore.DocumentSnapshot, err error) {
		snapCalls++
		require.NoError(t, err)
		require.False(t, snap.Exists())
	})
	require.Equal(t, 1, snapCalls)
}

func TestSetValue_StoreErrorUnchanged(t *testing.T) {
	s, store := setup(t)
	boom := errors.New("boom")
	store.FailWith(alice.Render(), boom)

	err := SetValue(t.Context(), s, alice, User{Name: "Alice"})
	require.Same(t, boom, err)
}

func TestCodecConfigIsApplied(t *testing.T) {
	readings := path.MustColl[Reading]("readings")
	s, store := setup(t, WithCodecConfig(codec.Symmetric(codec.Strategies{Float: codec.FloatConvertString})))

	require.NoError(t, SetValue(t.Context(), s, readings.Doc("r1"), Reading{Value: math.Inf(1)}))
	store.FetchDocument(t.Context(), "readings/r1", func(snap *docstore.DocumentSnapshot, err error) {
		require.NoError(t, err)
		require.Equal(t, codec.PositiveInfinity, snap.Fields["value"])
	})

	r, err := GetDocument(t.Context(), s, readings.Doc("r1"))
	require.NoError(t, err)
	require.True(t, math.IsInf(r.Value, 1))
}

func TestAddValueAndFetchCollection(t *testing.T) {
	s, _ := setup(t)

	_, err := FetchCollection(t.Context(), s, users).Await(t.Context())
	require.ErrorIs(t, err, result.ErrNoValuePresent)

	empty, err := FetchCollectionSlice(t.Context(), s, users).Await(t.Context())
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)

	id, err := AddValue(t.Context(), s, users, User{Name: "Bob"})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, SetValue(t.Context(), s, alice, User{Name: "Alice"}))

	byID, err := FetchCollection(t.Context(), s, users).Await(t.Context())
	require.NoError(t, err)
	require.Len(t, byID, 2)
	require.Equal(t, "Bob", byID[id].Name)
	require.Equal(t, "Alice", byID["alice"].Name)

	list, err := FetchCollectionSlice(t.Context(), s, users).Await(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestAddValue_EncodeFailure(t *testing.T) {
	s, store := setup(t)
	readings := path.MustColl[Reading]("readings")

	_, err := AddValue(t.Context(), s, readings, Reading{Value: math.Inf(-1)})
	require.ErrorIs(t, err, result.ErrConversion)

	store.FetchCollection(t.Context(), "readings", func(snap *docstore.CollectionSnapshot, err error) {
		require.NoError(t, err)
		require.True(t, snap.Empty())
	})
}

func TestObserveDocument(t *testing.T) {
	m := newRecordingMetrics()
	s, store := setup(t, WithMetrics(m))

	src := ObserveDocument(s, alice)
	require.Equal(t, 0, store.Listeners())

	ch, sub, err := stream.Chan(t.Context(), src, 16)
	require.NoError(t, err)
	require.Equal(t, 1, store.Listeners())

	require.NoError(t, SetValue(t.Context(), s, alice, User{Name: "Alice"}))
	require.NoError(t, store.Write(t.Context(), alice.Render(), docstore.Fields{"age": "x"}))
	require.NoError(t, store.Delete(t.Context(), alice.Render()))

	kinds := make([]result.Kind, 0, 4)
	for range 4 {
		kinds = append(kinds, (<-ch).Kind())
	}
	require.Equal(t, []result.Kind{
		result.KindNoValuePresent,
		0,
		result.KindConversion,
		result.KindNoValuePresent,
	}, kinds)

	require.Equal(t, 1, m.activeSubs())
	sub.Cancel()
	require.Equal(t, 0, store.Listeners())
	require.Equal(t, 0, m.activeSubs())

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 2, m.decoded["no_value_present"])
	assert.Equal(t, 1, m.decoded["conversion"])
	assert.Equal(t, 1, m.decoded[OutcomeSuccess])
}

func TestObserveDocument_IfPresentHandlingErrors(t *testing.T) {
	s, store := setup(t)

	var (
		mu     sync.Mutex
		errs   []*result.DecodeError
		values []*User
	)
	src := result.IfPresentHandlingErrors(ObserveDocument(s, alice), func(err *result.DecodeError) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, err)
	})
	sub, err := src.Subscribe(t.Context(), func(u *User) {
		mu.Lock()
		defer mu.Unlock()
		values = append(values, u)
	})
	require.NoError(t, err)
	defer sub.Cancel()

	require.NoError(t, SetValue(t.Context(), s, alice, User{Name: "Alice"}))
	require.NoError(t, store.Write(t.Context(), alice.Render(), docstore.Fields{"age": "x"}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, values, 2)
	require.Nil(t, values[0])
	require.Equal(t, "Alice", values[1].Name)
	require.Len(t, errs, 1)
	require.Equal(t, result.KindConversion, errs[0].Kind)
}

func TestObserveCollection_Shapes(t *testing.T) {
	s, _ := setup(t)

	maps, err := stream.Collect(t.Context(), ObserveCollection(s, users), 1)
	require.NoError(t, err)
	require.True(t, maps[0].IsNoValuePresent())

	slices, err := stream.Collect(t.Context(), ObserveCollectionSlice(s, users), 1)
	require.NoError(t, err)
	v, ok := slices[0].Value()
	require.True(t, ok)
	require.Empty(t, v)

	require.NoError(t, SetValue(t.Context(), s, users.Doc("b"), User{Name: "B"}))
	require.NoError(t, SetValue(t.Context(), s, users.Doc("a"), User{Name: "A"}))

	slices, err = stream.Collect(t.Context(), ObserveCollectionSlice(s, users), 1)
	require.NoError(t, err)
	v, err = slices[0].Get()
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, []string{v[0].Name, v[1].Name})
}

func TestObserveCollection_IndependentSubscriptions(t *testing.T) {
	s, store := setup(t)
	src := ObserveCollection(s, users)

	ctx1, cancel1 := context.WithCancel(t.Context())
	ch1, _, err := stream.Chan(ctx1, src, 16)
	require.NoError(t, err)
	ch2, sub2, err := stream.Chan(t.Context(), src, 16)
	require.NoError(t, err)
	defer sub2.Cancel()
	require.Equal(t, 2, store.Listeners())

	<-ch1
	<-ch2
	cancel1()
	require.Eventually(t, func() bool { return store.Listeners() == 1 }, time2s, tick)

	require.NoError(t, SetValue(t.Context(), s, alice, User{Name: "Alice"}))
	r := <-ch2
	require.True(t, r.IsSuccess())
}

func TestObserve_SubscriptionLifecycleMetrics(t *testing.T) {
	m := newRecordingMetrics()
	s, store := setup(t, WithMetrics(m))

	sub, err := ObserveCollectionSlice(s, users).Subscribe(t.Context(), func(result.Result[[]User]) {})
	require.NoError(t, err)
	require.Equal(t, 1, m.activeSubs())

	sub.Cancel()
	require.Equal(t, 0, m.activeSubs())
	require.Equal(t, 0, store.Listeners())
	<-sub.Done()

	sub.Cancel()
	require.Equal(t, 0, m.activeSubs())

	ctx, cancel := context.WithCancel(t.Context())
	sub, err = ObserveDocument(s, alice).Subscribe(ctx, func(result.Result[User]) {})
	require.NoError(t, err)
	require.Equal(t, 1, m.activeSubs())
	cancel()
	<-sub.Done()
	require.Equal(t, 0, m.activeSubs())
	require.Equal(t, 0, store.Listeners())
}

func TestObserveChanges(t *testing.T) {
	m := newRecordingMetrics()
	s, store := setup(t, WithMetrics(m))
	require.NoError(t, SetValue(t.Context(), s, users.Doc("a"), User{Name: "A"}))

	ch, sub, err := stream.Chan(t.Context(), ObserveChanges(s, users), 16)
	require.NoError(t, err)
	defer sub.Cancel()

	require.NoError(t, SetValue(t.Context(), s, users.Doc("b"), User{Name: "B"}))
	require.NoError(t, SetValue(t.Context(), s, users.Doc("a"), User{Name: "A2"}))
	require.NoError(t, store.Write(t.Context(), "users/c", docstore.Fields{"age": "x"}))
	require.NoError(t, store.Delete(t.Context(), "users/b"))

	// an error snapshot is dropped, the recovery snapshot carries no changes
	store.FailWith("users", errors.New("flaky"))
	store.FailWith("users", nil)
	require.NoError(t, store.Delete(t.Context(), "users/a"))

	got := make([]Change[User], 0, 6)
	for range 6 {
		got = append(got, <-ch)
	}

	require.Equal(t, docstore.ChangeAdded, got[0].Kind)
	require.Equal(t, "A", got[0].Value.Name)

	require.Equal(t, docstore.ChangeAdded, got[1].Kind)
	require.Equal(t, "b", got[1].ID)

	require.Equal(t, docstore.ChangeModified, got[2].Kind)
	require.Equal(t, "A2", got[2].Value.Name)

	require.Equal(t, docstore.ChangeAdded, got[3].Kind)
	require.Equal(t, "c", got[3].ID)
	require.NotNil(t, got[3].Err)
	require.Equal(t, result.KindConversion, got[3].Err.Kind)

	require.Equal(t, docstore.ChangeRemoved, got[4].Kind)
	require.Equal(t, "b", got[4].ID)
	require.Equal(t, "B", got[4].Value.Name)

	require.Equal(t, docstore.ChangeRemoved, got[5].Kind)
	require.Equal(t, "a", got[5].ID)

	select {
	case extra := <-ch:
		t.Fatalf("unexpected change %+v", extra)
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	require.Equal(t, 1, m.dropped)
}

func TestNopMetrics(t *testing.T) {
	m := NopMetrics()
	m.FetchDuration("x").ObserveDuration()
	m.WriteDuration("x").ObserveDuration()
	m.Decoded("x", OutcomeSuccess)
	m.SubscriptionStarted("x")
	m.SubscriptionStopped("x")
	m.StoreErrorDropped("x")
	m.Written("x", true)
}
