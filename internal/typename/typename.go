// Package typename renders short, stable names for Go types. They are used in
// error messages and as metric label values.
package typename

import (
	"reflect"
	"sync"
)

var (
	muCache sync.RWMutex
	cache   = make(map[reflect.Type]string)
)

// Of returns the short name of T, e.g. "service.User", "[]service.User" or
// "map[string]service.User". Pointer types are unwrapped.
func Of[T any]() string {
	return ForType(reflect.TypeFor[T]())
}

// ForType is Of for a reflect.Type. A nil type yields "".
func ForType(t reflect.Type) string {
	if t == nil {
		return ""
	}

	muCache.RLock()
	name, ok := cache[t]
	muCache.RUnlock()
	if ok {
		return name
	}

	name = render(t)

	muCache.Lock()
	cache[t] = name
	muCache.Unlock()
	return name
}

func render(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		// t.String() qualifies with the package name, not the import path
		return t.String()
	}
	switch t.Kind() {
	case reflect.Slice:
		return "[]" + render(t.Elem())
	case reflect.Map:
		return "map[" + render(t.Key()) + "]" + render(t.Elem())
	default:
		return t.String()
	}
}
