package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequentialIDs_StartsAtOne(t *testing.T) {
	ids := NewSequentialIDs("animal")
	assert.Equal(t, int64(0), ids.Issued())
	assert.Equal(t, "animal-1", ids.Next())
	assert.Equal(t, "animal-2", ids.Next())
	assert.Equal(t, int64(2), ids.Issued())
}

func TestSequentialIDs_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "id-1", NewSequentialIDs("").Next())
}

func TestSequentialIDs_Reset(t *testing.T) {
	ids := NewSequentialIDs("x")
	ids.Next()
	ids.Next()

	ids.Reset()
	assert.Equal(t, int64(0), ids.Issued())
	assert.Equal(t, "x-1", ids.Next())
}

func TestSequentialIDs_ThreadSafe(t *testing.T) {
	ids := NewSequentialIDs("t")
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make([][]string, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		results[i] = make([]string, callsPerGoroutine)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				results[idx][j] = ids.Next()
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, row := range results {
		for _, id := range row {
			require.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
		}
	}
	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
}
