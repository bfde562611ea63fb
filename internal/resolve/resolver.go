package resolve

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/ibkr-mcp/gateway/internal/gatewayerr"
	"github.com/ibkr-mcp/gateway/internal/models"
)

// ContractProvider is the broker-facing dependency the resolver issues
// remote lookups through. Implemented by the broker session.
type ContractProvider interface {
	QualifyContracts(symbol, exchange, currency, secType string) ([]models.SymbolMatch, error)
	ReqMatchingSymbols(rawInput string) ([]models.SymbolMatch, error)
}

const (
	defaultExchange = "SMART"
	defaultCurrency = "USD"
	hardMaxResults  = 16
	fuzzyBaseScore  = 0.9
)

var (
	exactSymbolPattern = regexp.MustCompile(`^[A-Z0-9.\-]{1,10}$`)
	cusipPattern       = regexp.MustCompile(`^[A-Z0-9]{9}$`)
	isinPattern        = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)
	numericIDPattern   = regexp.MustCompile(`^[0-9]+$`)
)

// inputKind classifies raw_input per the first-match-wins pattern cascade.
type inputKind int

const (
	kindExactSymbol inputKind = iota
	kindAlternativeID
	kindFuzzy
)

func classify(rawInput string) inputKind {
	switch {
	case exactSymbolPattern.MatchString(rawInput):
		return kindExactSymbol
	case cusipPattern.MatchString(rawInput), isinPattern.MatchString(rawInput), numericIDPattern.MatchString(rawInput):
		return kindAlternativeID
	default:
		return kindFuzzy
	}
}

// Resolver dispatches a ResolutionQuery to the appropriate strategy,
// scores matches, and caches successful (non-empty, non-error) results.
type Resolver struct {
	cache      *Cache
	aliases    *AliasMap
	contracts  ContractProvider
	rateLimit  func() error // fuzzy rate window check, injected from safety.RateLimiter
	fallbackToExactOnFuzzyFail bool

	sf singleflight.Group
}

// NewResolver wires the resolver's dependencies. rateLimit should call
// through to the shared fuzzy_search rate window (1 call / 1.1s default).
func NewResolver(cache *Cache, aliases *AliasMap, contracts ContractProvider, rateLimit func() error, fallbackToExactOnFuzzyFail bool) *Resolver {
	return &Resolver{
		cache: cache, aliases: aliases, contracts: contracts,
		rateLimit: rateLimit, fallbackToExactOnFuzzyFail: fallbackToExactOnFuzzyFail,
	}
}

// SyntheticResult is the response to a synthetic resolve_symbol query
// (CACHE_STATS or CLEAR_CACHE), returned in place of a match list.
type SyntheticResult struct {
	Stats        *CacheStats
	Acknowledged bool
}

// Resolve runs the full cascade: synthetic-query interception, cache hit,
// strategy dispatch, confidence scoring, and cache population. A synthetic
// query (CACHE_STATS, CLEAR_CACHE) is intercepted before the cache lookup
// and never reaches classify/dispatch.
func (r *Resolver) Resolve(q models.ResolutionQuery) ([]models.SymbolMatch, *SyntheticResult, error) {
	if IsSyntheticQuery(q.RawInput) {
		switch strings.TrimSpace(q.RawInput) {
		case "CACHE_STATS":
			stats := r.cache.Stats()
			return nil, &SyntheticResult{Stats: &stats}, nil
		default: // CLEAR_CACHE
			r.cache.Clear()
			return nil, &SyntheticResult{Acknowledged: true}, nil
		}
	}

	if q.MaxResults <= 0 || q.MaxResults > hardMaxResults {
		q.MaxResults = hardMaxResults
	}

	key := q.CacheKey()
	if matches, ok := r.cache.Get(key); ok {
		return truncate(matches, q.MaxResults), nil, nil
	}

	// singleflight coalesces concurrent misses for the same key into one
	// remote-lookup chain.
	v, err, _ := r.sf.Do(key, func() (any, error) {
		matches, rerr := r.dispatch(q)
		if rerr == nil && len(matches) > 0 {
			r.cache.Put(key, matches)
		}
		return matches, rerr
	})
	if err != nil {
		return nil, nil, err
	}
	matches := v.([]models.SymbolMatch)
	return truncate(matches, q.MaxResults), nil, nil
}

func (r *Resolver) dispatch(q models.ResolutionQuery) ([]models.SymbolMatch, error) {
	switch classify(q.RawInput) {
	case kindExactSymbol:
		return r.resolveExactSymbol(q)
	case kindAlternativeID:
		return r.resolveAlternativeID(q)
	default:
		return r.resolveFuzzy(q)
	}
}

// resolveExactSymbol implements the cascading exchange-fallback strategy.
func (r *Resolver) resolveExactSymbol(q models.ResolutionQuery) ([]models.SymbolMatch, error) {
	exchange := q.ExchangeHint
	if exchange == "" {
		exchange = defaultExchange
	}
	currency := q.CurrencyHint
	if currency == "" {
		currency = defaultCurrency
	}

	r.cache.RecordAPICall("qualify_contracts")
	matches, err := r.contracts.QualifyContracts(q.RawInput, exchange, currency, q.SecType)
	if err == nil && len(matches) > 0 {
		return r.score(matches, q, models.MethodExactSymbol), nil
	}

	var triedExchanges []string
	if q.ExchangeHint != "" {
		triedExchanges = append(triedExchanges, q.ExchangeHint)
		for _, alias := range r.aliases.Fallbacks(q.ExchangeHint) {
			triedExchanges = append(triedExchanges, alias)
			r.cache.RecordAPICall("qualify_contracts")
			m, aerr := r.contracts.QualifyContracts(q.RawInput, alias, currency, q.SecType)
			if aerr == nil && len(m) > 0 {
				scored := r.score(m, q, models.MethodExchangeAlias)
				for i := range scored {
					scored[i].ResolvedViaAlias = true
					scored[i].OriginalExchange = q.ExchangeHint
					scored[i].ActualExchange = alias
					scored[i].ExchangesTried = append([]string{}, triedExchanges...)
				}
				return scored, nil
			}
		}
	}

	if exchange != defaultExchange {
		r.cache.RecordAPICall("qualify_contracts")
		m, serr := r.contracts.QualifyContracts(q.RawInput, defaultExchange, currency, q.SecType)
		if serr == nil && len(m) > 0 {
			return r.score(m, q, models.MethodSmartFallback), nil
		}
	}

	return nil, nil
}

// resolveAlternativeID performs the single remote lookup for CUSIP/ISIN/
// numeric contract IDs, at the fixed 0.95 confidence.
func (r *Resolver) resolveAlternativeID(q models.ResolutionQuery) ([]models.SymbolMatch, error) {
	exchange := q.ExchangeHint
	if exchange == "" {
		exchange = defaultExchange
	}
	currency := q.CurrencyHint
	if currency == "" {
		currency = defaultCurrency
	}
	r.cache.RecordAPICall("qualify_contracts")
	matches, err := r.contracts.QualifyContracts(q.RawInput, exchange, currency, q.SecType)
	if err != nil {
		return nil, nil
	}
	for i := range matches {
		matches[i].ResolutionMethod = models.MethodAlternativeID
		matches[i].Confidence = 0.95
	}
	return matches, nil
}

// resolveFuzzy consults the reverse-name index, then the rate-limited
// remote matching-symbols lookup, with an optional exact-symbol fallback
// on remote failure.
func (r *Resolver) resolveFuzzy(q models.ResolutionQuery) ([]models.SymbolMatch, error) {
	if matches, ok := r.cache.GetByName(q.RawInput); ok {
		return matches, nil
	}

	if r.rateLimit != nil {
		if err := r.rateLimit(); err != nil {
			return nil, nil
		}
	}

	r.cache.RecordAPICall("matching_symbols")
	matches, err := r.contracts.ReqMatchingSymbols(q.RawInput)
	if err != nil {
		if r.fallbackToExactOnFuzzyFail {
			fallbackQuery := q
			fallbackQuery.RawInput = strings.ToUpper(q.RawInput)
			return r.resolveExactSymbol(fallbackQuery)
		}
		return nil, gatewayerr.Wrap(gatewayerr.BrokerTimeout, "matching-symbols lookup failed", err)
	}

	for i := range matches {
		matches[i].ResolutionMethod = models.MethodFuzzy
		base := stringSimilarity(q.RawInput, matches[i].Symbol)
		if alt := stringSimilarity(q.RawInput, matches[i].Name); alt > base {
			base = alt
		}
		conf := base * fuzzyBaseScore
		if conf > fuzzyBaseScore {
			conf = fuzzyBaseScore
		}
		if conf < 0 {
			conf = 0
		}
		matches[i].Confidence = conf
	}
	return matches, nil
}

// score applies the confidence-scoring bonuses on top of each match's
// method-base confidence, clamps to [0,1], and sorts descending.
func (r *Resolver) score(matches []models.SymbolMatch, q models.ResolutionQuery, method models.ResolutionMethod) []models.SymbolMatch {
	upperInput := strings.ToUpper(q.RawInput)
	for i := range matches {
		m := &matches[i]
		m.ResolutionMethod = method
		conf := 0.5 // strategy-level base for a qualified exact/alias/smart hit
		if strings.ToUpper(m.Symbol) == upperInput {
			conf += 0.4
		}
		if q.ExchangeHint != "" && m.Exchange == q.ExchangeHint {
			conf += 0.2
		}
		if m.PrimaryExchange != "" && m.PrimaryExchange == m.Exchange {
			conf += 0.15
		}
		if q.CurrencyHint != "" && m.Currency == q.CurrencyHint {
			conf += 0.1
		}
		if m.Name != "" {
			conf += 0.3 * stringSimilarity(m.Name, q.RawInput)
		}
		if conf > 1 {
			conf = 1
		}
		if conf < 0 {
			conf = 0
		}
		m.Confidence = conf
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Confidence > matches[j].Confidence })
	return matches
}

func truncate(matches []models.SymbolMatch, max int) []models.SymbolMatch {
	if max <= 0 || max >= len(matches) {
		return matches
	}
	return matches[:max]
}
