package resolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibkr-mcp/gateway/internal/models"
)

func TestCache_PutGetRoundTrip(t *testing.T) {
	c := NewCache(time.Minute, 10)
	matches := []models.SymbolMatch{{Symbol: "AAPL", Name: "Apple Inc"}}
	c.Put("key1", matches)

	got, ok := c.Get("key1")
	require.True(t, ok)
	assert.Equal(t, matches, got)
}

func TestCache_MissOnUnknownKey(t *testing.T) {
	c := NewCache(time.Minute, 10)
	_, ok := c.Get("nope")
	assert.False(t, ok)
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c := NewCache(1*time.Millisecond, 10)
	c.Put("key1", []models.SymbolMatch{{Symbol: "AAPL"}})
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("key1")
	assert.False(t, ok)
}

func TestCache_ReverseNameLookup(t *testing.T) {
	c := NewCache(time.Minute, 10)
	c.Put("key1", []models.SymbolMatch{{Symbol: "AAPL", Name: "Apple Inc"}})

	got, ok := c.GetByName("  APPLE   Inc ")
	require.True(t, ok)
	assert.Equal(t, "AAPL", got[0].Symbol)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.ReverseLookupHits)
}

func TestCache_InvalidateClearsReverseIndex(t *testing.T) {
	c := NewCache(time.Minute, 10)
	c.Put("key1", []models.SymbolMatch{{Symbol: "AAPL", Name: "Apple Inc"}})
	c.Invalidate()

	_, ok := c.Get("key1")
	assert.False(t, ok)
	_, ok = c.GetByName("Apple Inc")
	assert.False(t, ok)
}

func TestCache_StatsHitRate(t *testing.T) {
	c := NewCache(time.Minute, 10)
	c.Put("key1", []models.SymbolMatch{{Symbol: "AAPL"}})

	_, _ = c.Get("key1")
	_, _ = c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.TotalRequests)
	assert.InDelta(t, 0.5, stats.HitRate, 0.001)
}

func TestIsSyntheticQuery(t *testing.T) {
	assert.True(t, IsSyntheticQuery("CACHE_STATS"))
	assert.True(t, IsSyntheticQuery("CLEAR_CACHE"))
	assert.False(t, IsSyntheticQuery("AAPL"))
}

func TestCache_LRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(time.Minute, 2)
	c.Put("a", []models.SymbolMatch{{Symbol: "A"}})
	c.Put("b", []models.SymbolMatch{{Symbol: "B"}})
	c.Put("c", []models.SymbolMatch{{Symbol: "C"}})

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}
