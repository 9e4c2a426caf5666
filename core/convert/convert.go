// Package convert turns store callbacks into decode results.
//
// Every converter maps a (snapshot, error) pair onto exactly one
// result.Result: a decoded value, or a DecodeError classifying why there is
// none. Converters never panic on store input.
package convert

import (
	"github.com/codewandler/docstream-go/core/codec"
	"github.com/codewandler/docstream-go/core/result"
	"github.com/codewandler/docstream-go/ports/docstore"
)

type (
	// DocumentFunc converts a document callback into a Result.
	DocumentFunc[V any] func(snap *docstore.DocumentSnapshot, err error) result.Result[V]
	// CollectionFunc converts a collection callback into a Result.
	CollectionFunc[V any] func(snap *docstore.CollectionSnapshot, err error) result.Result[V]
)

// Document decodes a document snapshot into T.
//
// A snapshot without data yields NoValuePresent, a store error yields an
// internal failure, and a decode failure yields a conversion failure. A
// present snapshot takes precedence over an error.
func Document[T any](c *codec.Codec, snap *docstore.DocumentSnapshot, err error) result.Result[T] {
	if snap != nil {
		if !snap.Exists() {
			return result.Failure[T](result.NoValuePresent())
		}
		return decode(func() (T, error) { return codec.Decode[T](c, snap.Fields) })
	}
	return storeFailure[T](err)
}

// CollectionMap decodes a collection into a map keyed by document id. An
// empty collection yields NoValuePresent.
func CollectionMap[T any](c *codec.Codec, snap *docstore.CollectionSnapshot, err error) result.Result[map[string]T] {
	if snap != nil {
		if snap.Empty() {
			return result.Failure[map[string]T](result.NoValuePresent())
		}
		return decode(func() (map[string]T, error) { return codec.DecodeMap[T](c, snap.Items()) })
	}
	return storeFailure[map[string]T](err)
}

// CollectionSlice decodes a collection into a slice in document order. An
// empty collection yields an empty, non-nil slice.
func CollectionSlice[T any](c *codec.Codec, snap *docstore.CollectionSnapshot, err error) result.Result[[]T] {
	if snap != nil {
		items := make([]docstore.Fields, 0, len(snap.Documents))
		for _, doc := range snap.Documents {
			items = append(items, doc.Fields)
		}
		return decode(func() ([]T, error) { return codec.DecodeSlice[T](c, items) })
	}
	return storeFailure[[]T](err)
}

// DocumentWith binds Document to a codec.
func DocumentWith[T any](c *codec.Codec) DocumentFunc[T] {
	return func(snap *docstore.DocumentSnapshot, err error) result.Result[T] {
		return Document[T](c, snap, err)
	}
}

// CollectionMapWith binds CollectionMap to a codec.
func CollectionMapWith[T any](c *codec.Codec) CollectionFunc[map[string]T] {
	return func(snap *docstore.CollectionSnapshot, err error) result.Result[map[string]T] {
		return CollectionMap[T](c, snap, err)
	}
}

// CollectionSliceWith binds CollectionSlice to a codec.
func CollectionSliceWith[T any](c *codec.Codec) CollectionFunc[[]T] {
	return func(snap *docstore.CollectionSnapshot, err error) result.Result[[]T] {
		return CollectionSlice[T](c, snap, err)
	}
}

func storeFailure[V any](err error) result.Result[V] {
	// InternalError(nil) reports the empty callback.
	return result.Failure[V](result.InternalError(err))
}

// decode runs fn, classifying both returned errors and panics from custom
// unmarshalers as conversion failures.
func decode[V any](fn func() (V, error)) (res result.Result[V]) {
	defer func() {
		if r := recover(); r != nil {
			res = result.Failure[V](result.ConversionError(&panicError{value: r}))
		}
	}()
	v, err := fn()
	if err != nil {
		return result.Failure[V](result.ConversionError(err))
	}
	return result.Success(v)
}
