package path

import (
	"errors"
	"fmt"
	"strings"
)

const Separator = "/"

var ErrInvalidPath = errors.New("invalid path")

// Document addresses a single document holding a T.
type Document[T any] struct {
	segments []string
}

// Collection addresses the documents below a collection, each holding a T.
type Collection[T any] struct {
	segments []string
}

// Doc builds a document path from collection/id segment pairs.
func Doc[T any](segments ...string) (Document[T], error) {
	if len(segments) == 0 || len(segments)%2 != 0 {
		return Document[T]{}, fmt.Errorf("%w: document path needs an even number of segments, got %d", ErrInvalidPath, len(segments))
	}
	if err := validate(segments); err != nil {
		return Document[T]{}, err
	}
	return Document[T]{segments: clone(segments)}, nil
}

// Coll builds a collection path; the last segment names the collection.
func Coll[T any](segments ...string) (Collection[T], error) {
	if len(segments)%2 != 1 {
		return Collection[T]{}, fmt.Errorf("%w: collection path needs an odd number of segments, got %d", ErrInvalidPath, len(segments))
	}
	if err := validate(segments); err != nil {
		return Collection[T]{}, err
	}
	return Collection[T]{segments: clone(segments)}, nil
}

func MustDoc[T any](segments ...string) Document[T] {
	p, err := Doc[T](segments...)
	if err != nil {
		panic(err)
	}
	return p
}

func MustColl[T any](segments ...string) Collection[T] {
	p, err := Coll[T](segments...)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseDoc reads a rendered document address, e.g. "users/alice".
func ParseDoc[T any](address string) (Document[T], error) {
	return Doc[T](strings.Split(address, Separator)...)
}

// ParseColl reads a rendered collection address, e.g. "users".
func ParseColl[T any](address string) (Collection[T], error) {
	return Coll[T](strings.Split(address, Separator)...)
}

// === Document ===

func (d Document[T]) Render() string { return strings.Join(d.segments, Separator) }
func (d Document[T]) String() string { return d.Render() }
func (d Document[T]) IsZero() bool   { return len(d.segments) == 0 }

// ID is the last segment of the path.
func (d Document[T]) ID() string {
	if d.IsZero() {
		return ""
	}
	return d.segments[len(d.segments)-1]
}

// Parent returns the collection the document belongs to.
func (d Document[T]) Parent() Collection[T] {
	if d.IsZero() {
		return Collection[T]{}
	}
	return Collection[T]{segments: clone(d.segments[:len(d.segments)-1])}
}

// SubCollection addresses a collection nested below a document.
func SubCollection[U, T any](d Document[T], name string) (Collection[U], error) {
	if d.IsZero() {
		return Collection[U]{}, fmt.Errorf("%w: empty parent document", ErrInvalidPath)
	}
	return Coll[U](append(clone(d.segments), name)...)
}

// === Collection ===

func (c Collection[T]) Render() string { return strings.Join(c.segments, Separator) }
func (c Collection[T]) String() string { return c.Render() }
func (c Collection[T]) IsZero() bool   { return len(c.segments) == 0 }

// Name is the last segment of the path.
func (c Collection[T]) Name() string {
	if c.IsZero() {
		return ""
	}
	return c.segments[len(c.segments)-1]
}

// Doc addresses the document with the given id inside c. It panics if id is
// not a valid segment; use DocE for ids that are not known to be valid.
func (c Collection[T]) Doc(id string) Document[T] {
	d, err := c.DocE(id)
	if err != nil {
		panic(err)
	}
	return d
}

func (c Collection[T]) DocE(id string) (Document[T], error) {
	if c.IsZero() {
		return Document[T]{}, fmt.Errorf("%w: empty collection", ErrInvalidPath)
	}
	return Doc[T](append(clone(c.segments), id)...)
}

// === helpers ===

func validate(segments []string) error {
	for i, s := range segments {
		if s == "" {
			return fmt.Errorf("%w: segment %d is empty", ErrInvalidPath, i)
		}
		for _, r := range s {
			if !validRune(r) {
				return fmt.Errorf("%w: segment %q contains %q", ErrInvalidPath, s, r)
			}
		}
	}
	return nil
}

// validRune accepts the characters every store backend can use in a key token.
func validRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '=':
		return true
	}
	return false
}

func clone(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
