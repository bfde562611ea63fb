// Package forex implements the short-TTL quote cache and conversion engine
// sitting above the broker session's market-data stream.
package forex

import (
	"math"
	"sync"
	"time"

	"github.com/ibkr-mcp/gateway/internal/gatewayerr"
	"github.com/ibkr-mcp/gateway/internal/models"
)

// QuoteProvider is the broker-facing dependency the cache fetches fresh
// quotes through on a miss. Implemented by the broker session.
type QuoteProvider interface {
	ReqForexQuote(pair string) (bid, ask, last, close float64, err error)
}

// mockRate is one entry of the deterministic fallback seed table.
type mockRate struct {
	bid, ask, last, close float64
}

// seedTable is the fixed per-pair mock-rate table substituted when a
// broker quote comes back non-finite or non-positive. Spreads are
// intentionally tighter for major pairs than for the rest.
var seedTable = map[string]mockRate{
	"EURUSD": {1.0850, 1.0852, 1.0851, 1.0849},
	"GBPUSD": {1.2650, 1.2653, 1.2651, 1.2648},
	"USDJPY": {149.50, 149.53, 149.51, 149.45},
	"USDCHF": {0.8810, 0.8813, 0.8811, 0.8808},
	"USDCAD": {1.3590, 1.3593, 1.3591, 1.3588},
	"AUDUSD": {0.6520, 0.6523, 0.6521, 0.6518},
	"USDHKD": {7.8050, 7.8070, 7.8060, 7.8055},
	"USDSGD": {1.3420, 1.3425, 1.3422, 1.3418},
	"USDSEK": {10.420, 10.427, 10.423, 10.415},
	"USDNOK": {10.650, 10.658, 10.654, 10.645},
	"USDKRW": {1330.0, 1330.8, 1330.4, 1329.2},
	"USDINR": {83.200, 83.215, 83.207, 83.190},
	"USDCNH": {7.2400, 7.2420, 7.2410, 7.2395},
	"EURGBP": {0.8570, 0.8573, 0.8571, 0.8568},
}

// entry is one cached rate plus its insertion time, for TTL enforcement.
type entry struct {
	rate     models.ForexRate
	cachedAt time.Time
}

// Cache holds one quote per canonical pair, refreshed on a fixed TTL.
type Cache struct {
	mu       sync.Mutex
	ttl      time.Duration
	provider QuoteProvider
	entries  map[string]entry
}

// NewCache constructs a Cache with the given TTL and broker-facing provider.
func NewCache(ttl time.Duration, provider QuoteProvider) *Cache {
	return &Cache{ttl: ttl, provider: provider, entries: make(map[string]entry)}
}

// Get returns the cached rate for pair if fresh, else fetches, falls back
// to the mock seed table on a non-finite upstream quote, caches, and
// returns the result.
func (c *Cache) Get(pair string) (models.ForexRate, error) {
	c.mu.Lock()
	if e, ok := c.entries[pair]; ok && time.Since(e.cachedAt) < c.ttl {
		c.mu.Unlock()
		return e.rate, nil
	}
	c.mu.Unlock()

	bid, ask, last, closePx, err := c.provider.ReqForexQuote(pair)
	if err != nil {
		// Transport-level failures surface to the caller; the mock
		// fallback only papers over a quote that arrived malformed.
		return models.ForexRate{}, err
	}
	now := time.Now().UTC()

	var rate models.ForexRate
	if !finitePositive(bid) || !finitePositive(ask) || !finitePositive(last) {
		seed, ok := seedTable[pair]
		if !ok {
			return models.ForexRate{}, gatewayerr.NoRateAvailableErr(pair[:3], pair[3:])
		}
		rate = models.ForexRate{
			Pair: pair, Bid: seed.bid, Ask: seed.ask, Last: seed.last, Close: seed.close,
			Timestamp: now, Source: models.SourceMockFallback,
		}
	} else {
		rate = models.ForexRate{
			Pair: pair, Bid: bid, Ask: ask, Last: last, Close: closePx,
			Timestamp: now, Source: models.SourceLive,
		}
	}

	c.mu.Lock()
	c.entries[pair] = entry{rate: rate, cachedAt: now}
	c.mu.Unlock()
	return rate, nil
}

func finitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
