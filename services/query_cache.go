package services

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"ragdocs-api/models"
)

// QueryCache is a bounded least-frequently-used cache for ranked query
// results. Eviction picks the entry with the lowest access frequency,
// breaking ties by oldest last access. Safe for concurrent use.
type QueryCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*cacheEntry
	now      func() time.Time
}

type cacheEntry struct {
	results    []models.RankedChunk
	frequency  int
	lastAccess time.Time
}

func NewQueryCache(capacity int) *QueryCache {
	if capacity <= 0 {
		capacity = 100
	}
	return &QueryCache{
		capacity: capacity,
		entries:  make(map[string]*cacheEntry, capacity),
		now:      time.Now,
	}
}

// CacheKey normalizes the query and joins it with the document scope and
// result count, so "What is X?" and " what is x? " hit the same entry.
func CacheKey(query, docID string, k int) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return fmt.Sprintf("%s|%s|%d", normalized, docID, k)
}

// Get returns the cached results for key, bumping the entry's frequency and
// refreshing its last-access time on a hit.
func (qc *QueryCache) Get(key string) ([]models.RankedChunk, bool) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	entry, ok := qc.entries[key]
	if !ok {
		return nil, false
	}
	entry.frequency++
	entry.lastAccess = qc.now()
	return entry.results, true
}

// Put stores results under key, overwriting any existing entry. When the
// cache is full, the least-frequently-used entry is evicted first.
func (qc *QueryCache) Put(key string, results []models.RankedChunk) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	if entry, ok := qc.entries[key]; ok {
		entry.results = results
		entry.frequency++
		entry.lastAccess = qc.now()
		return
	}

	if len(qc.entries) >= qc.capacity {
		qc.evictLocked()
	}

	qc.entries[key] = &cacheEntry{
		results:    results,
		frequency:  1,
		lastAccess: qc.now(),
	}
}

// evictLocked removes the entry with the lowest frequency, oldest last
// access on ties. Caller holds the mutex.
func (qc *QueryCache) evictLocked() {
	var victim string
	var victimEntry *cacheEntry
	for key, entry := range qc.entries {
		if victimEntry == nil ||
			entry.frequency < victimEntry.frequency ||
			(entry.frequency == victimEntry.frequency && entry.lastAccess.Before(victimEntry.lastAccess)) {
			victim = key
			victimEntry = entry
		}
	}
	if victimEntry != nil {
		delete(qc.entries, victim)
	}
}

// Len reports the number of cached entries.
func (qc *QueryCache) Len() int {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	return len(qc.entries)
}

// Invalidate drops every cached entry. Called after document deletion since
// cached results may reference removed chunks.
func (qc *QueryCache) Invalidate() {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	qc.entries = make(map[string]*cacheEntry, qc.capacity)
}
