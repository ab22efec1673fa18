package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"ragdocs-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rankedResult(id string) []models.RankedChunk {
	return []models.RankedChunk{{
		SearchCandidate: models.SearchCandidate{ChunkID: id, Similarity: 0.9},
		Score:           0.9,
	}}
}

func TestCacheKeyNormalization(t *testing.T) {
	assert.Equal(t, CacheKey("What is FastAPI?", "", 10), CacheKey("  what   IS fastapi? ", "", 10))
	assert.NotEqual(t, CacheKey("what is fastapi?", "", 10), CacheKey("what is fastapi?", "doc1", 10))
	assert.NotEqual(t, CacheKey("what is fastapi?", "", 10), CacheKey("what is fastapi?", "", 5))
}

func TestCachePutThenGet(t *testing.T) {
	qc := NewQueryCache(10)
	key := CacheKey("what is fastapi?", "", 10)

	_, ok := qc.Get(key)
	assert.False(t, ok)

	qc.Put(key, rankedResult("a"))
	got, ok := qc.Get(key)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ChunkID)
	assert.Equal(t, 2, qc.entries[key].frequency)
}

func TestCacheEvictsLowestFrequency(t *testing.T) {
	qc := NewQueryCache(2)

	qc.Put("hot", rankedResult("a"))
	qc.Put("cold", rankedResult("b"))

	// Access "hot" so its frequency exceeds "cold".
	_, ok := qc.Get("hot")
	require.True(t, ok)

	qc.Put("new", rankedResult("c"))

	_, ok = qc.Get("cold")
	assert.False(t, ok, "lowest-frequency entry should have been evicted")
	_, ok = qc.Get("hot")
	assert.True(t, ok)
	_, ok = qc.Get("new")
	assert.True(t, ok)
}

func TestCacheEvictionTieBreaksByOldestAccess(t *testing.T) {
	qc := NewQueryCache(2)

	clock := time.Now()
	qc.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}

	qc.Put("older", rankedResult("a"))
	qc.Put("newer", rankedResult("b"))

	// Equal frequency: the entry touched longest ago goes first.
	qc.Put("third", rankedResult("c"))

	_, ok := qc.Get("older")
	assert.False(t, ok)
	_, ok = qc.Get("newer")
	assert.True(t, ok)
	_, ok = qc.Get("third")
	assert.True(t, ok)
}

func TestCacheInvalidate(t *testing.T) {
	qc := NewQueryCache(10)
	qc.Put("k", rankedResult("a"))
	require.Equal(t, 1, qc.Len())

	qc.Invalidate()
	assert.Equal(t, 0, qc.Len())
	_, ok := qc.Get("k")
	assert.False(t, ok)
}

func TestCacheConcurrentAccess(t *testing.T) {
	qc := NewQueryCache(50)
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := CacheKey(fmt.Sprintf("query %d", j%60), "", 10)
				if j%2 == 0 {
					qc.Put(key, rankedResult("x"))
				} else {
					qc.Get(key)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, qc.Len(), 50)
}
