// Package codec converts between raw document fields and typed Go values.
//
// A Codec is built from a Config whose decode and encode strategies are
// enumerated choices for bytes, dates, non-finite floats and key naming.
// Values travel through JSON: fields are rendered as a JSON object and
// decoded into the target type with a jsoniter API specialised for the
// configured strategies.
package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/jellydator/ttlcache/v3"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/singleflight"

	"github.com/codewandler/docstream-go/internal/typename"
	"github.com/codewandler/docstream-go/ports/docstore"
)

// ErrNotAnObject is returned by Encode when a value does not encode to a
// JSON object and therefore cannot be stored as document fields.
var ErrNotAnObject = errors.New("value does not encode to an object")

const apiCacheCapacity = 64

// Codec decodes raw fields into typed values and encodes typed values into
// raw fields. It is safe for concurrent use.
type Codec struct {
	cfg Config
	dec jsoniter.API
	enc jsoniter.API
}

func New(cfg Config) *Codec {
	return &Codec{
		cfg: cfg,
		dec: apis.get(cfg.Decode),
		enc: apis.get(cfg.Encode),
	}
}

func (c *Codec) Config() Config { return c.cfg }

// DecodeInto decodes fields into out, which must be a non-nil pointer.
func (c *Codec) DecodeInto(fields docstore.Fields, out any) error {
	data, err := docstore.MarshalFields(fields)
	if err != nil {
		return fmt.Errorf("render fields: %w", err)
	}
	if err := c.dec.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %T: %w", out, err)
	}
	return nil
}

// Encode encodes v into raw fields.
func (c *Codec) Encode(v any) (docstore.Fields, error) {
	data, err := c.enc.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("encode %T: %w", v, ErrNotAnObject)
	}
	fields, err := docstore.UnmarshalFields(data)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return fields, nil
}

// Decode decodes fields into a new T.
func Decode[T any](c *Codec, fields docstore.Fields) (T, error) {
	var out T
	if err := c.DecodeInto(fields, &out); err != nil {
		return out, err
	}
	return out, nil
}

// DecodeMap decodes a table of identifier to fields into identifier to T.
func DecodeMap[T any](c *Codec, table map[string]docstore.Fields) (map[string]T, error) {
	out := make(map[string]T, len(table))
	for id, fields := range table {
		v, err := Decode[T](c, fields)
		if err != nil {
			return nil, fmt.Errorf("decode %s[%s]: %w", typename.Of[T](), id, err)
		}
		out[id] = v
	}
	return out, nil
}

// DecodeSlice decodes each fields value into a T, preserving order. The
// result is never nil.
func DecodeSlice[T any](c *Codec, items []docstore.Fields) ([]T, error) {
	out := make([]T, 0, len(items))
	for i, fields := range items {
		v, err := Decode[T](c, fields)
		if err != nil {
			return nil, fmt.Errorf("decode %s[%d]: %w", typename.Of[T](), i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// === api cache ===

var apis = newAPICache(apiCacheCapacity)

// apiCache holds one frozen jsoniter API per Strategies value. Freezing
// builds fresh decoder and encoder caches, so APIs are shared between codecs.
type apiCache struct {
	cache  *ttlcache.Cache[Strategies, jsoniter.API]
	loader ttlcache.Loader[Strategies, jsoniter.API]
}

func newAPICache(capacity uint64) *apiCache {
	cache := ttlcache.New[Strategies, jsoniter.API](
		ttlcache.WithCapacity[Strategies, jsoniter.API](capacity),
	)
	loader := ttlcache.LoaderFunc[Strategies, jsoniter.API](
		func(c *ttlcache.Cache[Strategies, jsoniter.API], s Strategies) *ttlcache.Item[Strategies, jsoniter.API] {
			return c.Set(s, freeze(s), ttlcache.NoTTL)
		},
	)
	return &apiCache{
		cache:  cache,
		loader: ttlcache.NewSuppressedLoader[Strategies, jsoniter.API](loader, new(singleflight.Group)),
	}
}

func (a *apiCache) get(s Strategies) jsoniter.API {
	item := a.cache.Get(s, ttlcache.WithLoader[Strategies, jsoniter.API](a.loader))
	if item == nil {
		return freeze(s)
	}
	return item.Value()
}

func (a *apiCache) len() int { return a.cache.Len() }

func freeze(s Strategies) jsoniter.API {
	api := jsoniter.Config{
		EscapeHTML:             true,
		SortMapKeys:            true,
		ValidateJsonRawMessage: true,
		UseNumber:              true,
	}.Froze()
	api.RegisterExtension(&strategyExtension{s: s})
	return api
}
