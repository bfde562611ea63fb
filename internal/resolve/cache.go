package resolve

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ibkr-mcp/gateway/internal/models"
)

// CacheStats is the snapshot returned by the CACHE_STATS synthetic query.
type CacheStats struct {
	HitRate            float64        `json:"hit_rate"`
	TotalRequests       int64          `json:"total_requests"`
	ReverseLookupHits   int64          `json:"reverse_lookup_hits"`
	MemoryEntries       int            `json:"memory_entries"`
	AvgResponseMsHit    float64        `json:"avg_response_ms_hit"`
	AvgResponseMsMiss   float64        `json:"avg_response_ms_miss"`
	APICallsByKind      map[string]int64 `json:"api_calls_by_kind"`
}

type cachedResult struct {
	matches  []models.SymbolMatch
	cachedAt time.Time
}

// Cache is the resolution cache: LRU-ordered query-key → matches, TTL'd,
// with a reverse company-name index so a later lookup by name hits without
// a remote call. Eviction is handled by the underlying LRU; entries are
// additionally treated as stale (miss) once older than ttl.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	lru     *lru.Cache[string, cachedResult]
	reverse map[string]string // name_lookup key -> primary cache key

	totalRequests     int64
	hits              int64
	reverseHits       int64
	sumHitMs          float64
	sumMissMs         float64
	missCount         int64
	apiCallsByKind    map[string]int64
}

// NewCache builds a resolution cache with the given TTL and LRU capacity.
func NewCache(ttl time.Duration, capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1000
	}
	l, _ := lru.New[string, cachedResult](capacity)
	return &Cache{
		ttl:            ttl,
		lru:            l,
		reverse:        make(map[string]string),
		apiCallsByKind: make(map[string]int64),
	}
}

// Get returns the cached matches for key if present and fresh.
func (c *Cache) Get(key string) ([]models.SymbolMatch, bool) {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRequests++
	entry, ok := c.lru.Get(key)
	if !ok || time.Since(entry.cachedAt) >= c.ttl {
		c.missCount++
		c.sumMissMs += time.Since(start).Seconds() * 1000
		return nil, false
	}
	c.hits++
	c.sumHitMs += time.Since(start).Seconds() * 1000
	return entry.matches, true
}

// GetByName checks the reverse company-name index and, on hit, resolves
// the pointed-to primary key. Returns false if the name isn't indexed or
// the primary entry has since expired/been evicted.
func (c *Cache) GetByName(name string) ([]models.SymbolMatch, bool) {
	c.mu.Lock()
	key, ok := c.reverse[models.NormalizeName(name)]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	matches, ok := c.Get(key)
	if ok {
		c.mu.Lock()
		c.reverseHits++
		c.mu.Unlock()
	}
	return matches, ok
}

// Put stores matches under key and indexes each match's name (if present)
// into the reverse lookup.
func (c *Cache) Put(key string, matches []models.SymbolMatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, cachedResult{matches: matches, cachedAt: time.Now()})
	for _, m := range matches {
		if m.Name != "" {
			c.reverse[models.NormalizeName(m.Name)] = key
		}
	}
}

// RecordAPICall tallies one remote call of the given kind, for stats.
func (c *Cache) RecordAPICall(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiCallsByKind[kind]++
}

// Invalidate clears every entry and the reverse index. Called on broker
// disconnect: the set of qualifiable contracts can differ across sessions.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.reverse = make(map[string]string)
}

// Clear is the CLEAR_CACHE synthetic-query handler; behaviorally identical
// to Invalidate but named separately to mirror the two distinct triggers
// (operator-issued vs. connection-state-issued).
func (c *Cache) Clear() {
	c.Invalidate()
}

// Stats returns the CACHE_STATS snapshot.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		TotalRequests:     c.totalRequests,
		ReverseLookupHits: c.reverseHits,
		MemoryEntries:     c.lru.Len(),
		APICallsByKind:    copyAPICallsByKind(c.apiCallsByKind),
	}
	if c.totalRequests > 0 {
		stats.HitRate = float64(c.hits) / float64(c.totalRequests)
	}
	if c.hits > 0 {
		stats.AvgResponseMsHit = c.sumHitMs / float64(c.hits)
	}
	if c.missCount > 0 {
		stats.AvgResponseMsMiss = c.sumMissMs / float64(c.missCount)
	}
	return stats
}

func copyAPICallsByKind(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// IsSyntheticQuery reports whether rawInput is one of the two synthetic
// queries intercepted before any resolution strategy runs.
func IsSyntheticQuery(rawInput string) bool {
	switch strings.TrimSpace(rawInput) {
	case "CACHE_STATS", "CLEAR_CACHE":
		return true
	default:
		return false
	}
}
