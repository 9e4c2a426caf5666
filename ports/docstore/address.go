package docstore

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

const separator = "/"

// rawJSON keeps numbers as json.Number so integers survive the round trip
// through Fields.
var rawJSON = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

func splitAddress(address string) []string {
	if address == "" {
		return nil
	}
	return strings.Split(address, separator)
}

func validSegments(segments []string) bool {
	if len(segments) == 0 {
		return false
	}
	for _, s := range segments {
		if s == "" {
			return false
		}
	}
	return true
}

// IsDocument reports whether address names a document.
func IsDocument(address string) bool {
	segs := splitAddress(address)
	return validSegments(segs) && len(segs)%2 == 0
}

// IsCollection reports whether address names a collection.
func IsCollection(address string) bool {
	segs := splitAddress(address)
	return validSegments(segs) && len(segs)%2 == 1
}

// Split returns the collection address and id of a document address.
func Split(address string) (collection, id string, err error) {
	if !IsDocument(address) {
		return "", "", fmt.Errorf("%w: %q is not a document address", ErrInvalidAddress, address)
	}
	i := strings.LastIndex(address, separator)
	return address[:i], address[i+1:], nil
}

// Join builds the address of document id inside collection.
func Join(collection, id string) string { return collection + separator + id }

// MarshalFields encodes fields as JSON.
func MarshalFields(fields Fields) ([]byte, error) {
	if fields == nil {
		fields = Fields{}
	}
	return rawJSON.Marshal(fields)
}

// UnmarshalFields decodes a JSON object. Numbers are kept as json.Number.
func UnmarshalFields(data []byte) (Fields, error) {
	fields := Fields{}
	if err := rawJSON.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
