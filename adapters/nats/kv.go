package nats

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/codewandler/docstream-go/ports/docstore"
)

const keySeparator = "."

// zstdMagic starts every zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// keyFor maps a store address onto a KV key: "users/alice" -> "users.alice".
func keyFor(address string) (string, error) {
	if address == "" {
		return "", fmt.Errorf("%w: empty address", docstore.ErrInvalidAddress)
	}
	segments := strings.Split(address, "/")
	for _, s := range segments {
		if s == "" || !validToken(s) {
			return "", fmt.Errorf("%w: %q", docstore.ErrInvalidAddress, address)
		}
	}
	return strings.Join(segments, keySeparator), nil
}

func validToken(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '=':
		default:
			return false
		}
	}
	return true
}

// idOf returns the last token of a KV key.
func idOf(key string) string {
	return key[strings.LastIndex(key, keySeparator)+1:]
}

// valueCodec compresses values on write when enabled and transparently
// decompresses zstd frames on read.
type valueCodec struct {
	compress bool
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

func newValueCodec(compress bool) (*valueCodec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &valueCodec{compress: compress, enc: enc, dec: dec}, nil
}

func (c *valueCodec) marshal(fields docstore.Fields) ([]byte, error) {
	data, err := docstore.MarshalFields(fields)
	if err != nil {
		return nil, err
	}
	if !c.compress {
		return data, nil
	}
	return c.enc.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func (c *valueCodec) unmarshal(data []byte) (docstore.Fields, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		raw, err := c.dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress: %w", err)
		}
		data = raw
	}
	return docstore.UnmarshalFields(data)
}

func (c *valueCodec) close() {
	_ = c.enc.Close()
	c.dec.Close()
}

// snapshotOf converts a KV entry into a document snapshot. Delete and purge
// markers yield a snapshot without fields.
func (c *valueCodec) snapshotOf(address string, entry jetstream.KeyValueEntry) (*docstore.DocumentSnapshot, error) {
	snap := &docstore.DocumentSnapshot{ID: idOf(entry.Key()), Address: address}
	if entry.Operation() != jetstream.KeyValuePut {
		return snap, nil
	}
	fields, err := c.unmarshal(entry.Value())
	if err != nil {
		return nil, fmt.Errorf("corrupt document %s: %w", address, err)
	}
	snap.Fields = fields
	snap.Revision = entry.Revision()
	return snap, nil
}

// mapError classifies NATS errors onto the docstore sentinels. The original
// error stays in the chain.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jetstream.ErrKeyExists):
		return fmt.Errorf("%w: %w", docstore.ErrAlreadyExists, err)
	case errors.Is(err, jetstream.ErrInvalidKey):
		return fmt.Errorf("%w: %w", docstore.ErrInvalidAddress, err)
	case errors.Is(err, natsgo.ErrPermissionViolation),
		errors.Is(err, natsgo.ErrAuthorization),
		strings.Contains(strings.ToLower(err.Error()), "permissions violation"):
		return fmt.Errorf("%w: %w", docstore.ErrPermissionDenied, err)
	case errors.Is(err, jetstream.ErrBucketNotFound),
		errors.Is(err, natsgo.ErrConnectionClosed),
		errors.Is(err, natsgo.ErrNoResponders),
		errors.Is(err, natsgo.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", docstore.ErrUnavailable, err)
	default:
		return err
	}
}
