package typename

import (
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type user struct {
	Name string
}

func TestOf(t *testing.T) {
	require.Equal(t, "typename.user", Of[user]())
	require.Equal(t, "typename.user", Of[*user]())
	require.Equal(t, "[]typename.user", Of[[]*user]())
	require.Equal(t, "map[string]typename.user", Of[map[string]user]())
	require.Equal(t, "string", Of[string]())
}

func TestForType_Nil(t *testing.T) {
	require.Equal(t, "", ForType(nil))
}

func TestForType_Cached(t *testing.T) {
	rt := reflect.TypeFor[user]()
	first := ForType(rt)

	muCache.RLock()
	cached, ok := cache[rt]
	muCache.RUnlock()

	require.True(t, ok)
	require.Equal(t, first, cached)
}

func TestConcurrentAccess(t *testing.T) {
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_ = Of[user]()
				_ = Of[[]user]()
			}
		}()
	}
	wg.Wait()
}
