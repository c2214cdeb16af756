package service

import (
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionClock_StrictlyIncreasing(t *testing.T) {
	clock := newVersionClock()

	prev := clock.Next()
	for i := 0; i < 1000; i++ {
		next := clock.Next()
		assert.True(t, versionLess(prev, next), "%s then %s", prev, next)
		prev = next
	}
}

func TestVersionClock_Concurrent(t *testing.T) {
	clock := newVersionClock()

	const goroutines = 16
	const perGoroutine = 200

	var mu sync.Mutex
	var keys []string
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perGoroutine)
			for j := 0; j < perGoroutine; j++ {
				local = append(local, clock.Next())
			}
			mu.Lock()
			keys = append(keys, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	// No duplicates across all goroutines.
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		require.False(t, seen[k], "duplicate version key %s", k)
		seen[k] = true
	}

	// All keys are numeric timestamps.
	sort.Slice(keys, func(i, j int) bool { return versionLess(keys[i], keys[j]) })
	for _, k := range keys {
		_, err := strconv.ParseInt(k, 10, 64)
		require.NoError(t, err)
	}
}
