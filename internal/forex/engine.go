package forex

import (
	"github.com/ibkr-mcp/gateway/internal/gatewayerr"
	"github.com/ibkr-mcp/gateway/internal/models"
)

// intermediary is the currency used for cross-conversion when neither the
// direct nor inverse pair is available.
const intermediary = "USD"

// Engine converts between currencies using Cache as its sole rate source.
type Engine struct {
	cache *Cache
}

// NewEngine wraps cache in a conversion engine.
func NewEngine(cache *Cache) *Engine {
	return &Engine{cache: cache}
}

// Convert implements the direct / inverse / cross-via-USD algorithm. amount
// is in from's currency; the result is in to's currency.
func (e *Engine) Convert(amount float64, from, to string) (models.ConversionResult, error) {
	if from == to {
		return models.ConversionResult{
			Amount: amount, ConvertedAmount: amount, ExchangeRate: 1,
			From: from, To: to, PairUsed: from + to,
			ConversionMethod: models.MethodIdentity, RateSource: models.SourceLive,
		}, nil
	}

	directPair := from + to
	if rate, err := e.cache.Get(directPair); err == nil {
		return models.ConversionResult{
			Amount: amount, ConvertedAmount: amount * rate.Bid, ExchangeRate: rate.Bid,
			From: from, To: to, PairUsed: directPair,
			ConversionMethod: models.MethodDirect, RateSource: rate.Source,
		}, nil
	}

	inversePair := to + from
	if rate, err := e.cache.Get(inversePair); err == nil && rate.Bid != 0 {
		inverseRate := 1 / rate.Bid
		return models.ConversionResult{
			Amount: amount, ConvertedAmount: amount * inverseRate, ExchangeRate: inverseRate,
			From: from, To: to, PairUsed: inversePair,
			ConversionMethod: models.MethodInverse, RateSource: rate.Source,
		}, nil
	}

	if from != intermediary && to != intermediary {
		firstRate, firstPair, firstSource, err1 := e.legRate(from, intermediary)
		secondRate, secondPair, secondSource, err2 := e.legRate(intermediary, to)
		if err1 == nil && err2 == nil {
			crossRate := firstRate * secondRate
			source := firstSource
			if secondSource == models.SourceMockFallback {
				source = models.SourceMockFallback
			}
			return models.ConversionResult{
				Amount: amount, ConvertedAmount: amount * crossRate, ExchangeRate: crossRate,
				From: from, To: to, PairUsed: firstPair + "->" + secondPair,
				ConversionMethod: models.MethodCrossViaUSD, RateSource: source,
			}, nil
		}
	}

	return models.ConversionResult{}, gatewayerr.NoRateAvailableErr(from, to)
}

// legRate resolves the conversion rate for one leg of a cross-via-USD
// conversion (a -> b), trying the direct pair first and its inverse second,
// the same fallback order Convert itself uses for a whole conversion. Without
// this, a leg quoted only in its natural direction (e.g. GBPUSD but no
// USDGBP) would make the whole cross-conversion fail even though the rate is
// available.
func (e *Engine) legRate(a, b string) (rate float64, pairUsed string, source models.RateSource, err error) {
	if r, err := e.cache.Get(a + b); err == nil {
		return r.Bid, a + b, r.Source, nil
	}
	if r, err := e.cache.Get(b + a); err == nil && r.Bid != 0 {
		return 1 / r.Bid, b + a, r.Source, nil
	}
	return 0, "", "", gatewayerr.NoRateAvailableErr(a, b)
}
