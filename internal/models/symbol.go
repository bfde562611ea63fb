package models

import (
	"strconv"
	"strings"
)

// ResolutionMethod records which resolver strategy produced a match.
type ResolutionMethod string

const (
	MethodExactSymbol    ResolutionMethod = "ExactSymbol"
	MethodExchangeAlias  ResolutionMethod = "ExchangeAlias"
	MethodAlternativeID  ResolutionMethod = "AlternativeId"
	MethodFuzzy          ResolutionMethod = "Fuzzy"
	MethodSmartFallback  ResolutionMethod = "SmartFallback"
)

// SymbolMatch is one candidate contract returned by the resolver.
type SymbolMatch struct {
	Symbol            string           `json:"symbol"`
	Name              string           `json:"name"`
	ContractID        int64            `json:"contract_id"`
	Exchange          string           `json:"exchange"`
	PrimaryExchange   string           `json:"primary_exchange"`
	Currency          string           `json:"currency"`
	SecurityType      string           `json:"security_type"`
	Country           string           `json:"country,omitempty"`
	CUSIP             string           `json:"cusip,omitempty"`
	ISIN              string           `json:"isin,omitempty"`
	Confidence        float64          `json:"confidence"`
	ResolutionMethod  ResolutionMethod `json:"resolution_method"`

	// Populated only when resolution succeeded via an exchange alias.
	ResolvedViaAlias bool     `json:"resolved_via_alias,omitempty"`
	OriginalExchange string   `json:"original_exchange,omitempty"`
	ActualExchange   string   `json:"actual_exchange,omitempty"`
	ExchangesTried   []string `json:"exchanges_tried,omitempty"`
}

// ResolutionQuery is the normalized request driving a symbol resolution.
type ResolutionQuery struct {
	RawInput             string
	ExchangeHint         string
	CurrencyHint         string
	SecType              string
	MaxResults           int
	FuzzyEnabled         bool
	IncludeAltIDs        bool
	PreferNativeExchange bool
}

// DefaultResolutionQuery fills in the documented defaults for an otherwise
// zero-value query (SecType=Stock, MaxResults=5, FuzzyEnabled=true).
func DefaultResolutionQuery(rawInput string) ResolutionQuery {
	return ResolutionQuery{
		RawInput:     rawInput,
		SecType:      "STK",
		MaxResults:   5,
		FuzzyEnabled: true,
	}
}

// CacheKey returns the canonical tuple used to key the resolution cache.
func (q ResolutionQuery) CacheKey() string {
	return strings.Join([]string{
		strings.ToLower(strings.TrimSpace(q.RawInput)),
		q.ExchangeHint,
		q.CurrencyHint,
		q.SecType,
		strconv.Itoa(q.MaxResults),
		strconv.FormatBool(q.PreferNativeExchange),
	}, "|")
}

// NormalizeName applies the reverse-lookup name normalization: lowercased,
// trimmed, internal whitespace collapsed to single spaces. See DESIGN.md's
// Open Question resolution for why this normalization was chosen.
func NormalizeName(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	return strings.Join(fields, " ")
}
