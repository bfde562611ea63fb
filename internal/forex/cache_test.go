package forex

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibkr-mcp/gateway/internal/models"
)

type stubProvider struct {
	bid, ask, last, closePx float64
	err                     error
	calls                   int
}

func (s *stubProvider) ReqForexQuote(_ string) (float64, float64, float64, float64, error) {
	s.calls++
	return s.bid, s.ask, s.last, s.closePx, s.err
}

func TestCache_LiveQuoteCachedWithinTTL(t *testing.T) {
	p := &stubProvider{bid: 1.10, ask: 1.11, last: 1.105, closePx: 1.09}
	c := NewCache(5*time.Second, p)

	r1, err := c.Get("EURUSD")
	require.NoError(t, err)
	assert.Equal(t, models.SourceLive, r1.Source)

	_, err = c.Get("EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)
}

func TestCache_RefetchesAfterTTLExpires(t *testing.T) {
	p := &stubProvider{bid: 1.10, ask: 1.11, last: 1.105, closePx: 1.09}
	c := NewCache(1*time.Millisecond, p)

	_, err := c.Get("EURUSD")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = c.Get("EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls)
}

func TestCache_NonFiniteUpstreamFallsBackToSeed(t *testing.T) {
	p := &stubProvider{bid: math.NaN(), ask: 1.11, last: 1.105}
	c := NewCache(5*time.Second, p)

	r, err := c.Get("EURUSD")
	require.NoError(t, err)
	assert.Equal(t, models.SourceMockFallback, r.Source)
	assert.Equal(t, seedTable["EURUSD"].bid, r.Bid)
}

func TestCache_NonPositiveUpstreamFallsBackToSeed(t *testing.T) {
	p := &stubProvider{bid: -1, ask: 1.11, last: 1.105}
	c := NewCache(5*time.Second, p)

	r, err := c.Get("GBPUSD")
	require.NoError(t, err)
	assert.Equal(t, models.SourceMockFallback, r.Source)
}

func TestCache_ProviderErrorWithNoSeedPropagates(t *testing.T) {
	p := &stubProvider{err: errors.New("broker unreachable")}
	c := NewCache(5*time.Second, p)

	_, err := c.Get("ZZZXXX")
	require.Error(t, err)
}

func TestCache_ProviderErrorPropagatesEvenWithSeed(t *testing.T) {
	p := &stubProvider{err: errors.New("broker unreachable")}
	c := NewCache(5*time.Second, p)

	_, err := c.Get("EURUSD")
	require.Error(t, err)
}
