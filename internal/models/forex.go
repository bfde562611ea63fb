package models

import "time"

// RateSource distinguishes a live broker quote from the deterministic
// mock-rate fallback used when the upstream quote is non-finite.
type RateSource string

const (
	// SourceLive means bid/ask/last came from the broker's quote stream.
	SourceLive RateSource = "Live"
	// SourceMockFallback means the upstream quote was non-finite or
	// non-positive and a fixed plausible rate was substituted.
	SourceMockFallback RateSource = "MockFallback"
)

// ForexRate is a single cached quote for a currency pair.
type ForexRate struct {
	Pair      string     `json:"pair"`
	Bid       float64    `json:"bid"`
	Ask       float64    `json:"ask"`
	Last      float64    `json:"last"`
	Close     float64    `json:"close"`
	Timestamp time.Time  `json:"timestamp"`
	Source    RateSource `json:"source"`
}

// ConversionMethod records which path a currency conversion took.
type ConversionMethod string

const (
	MethodIdentity     ConversionMethod = "Identity"
	MethodDirect       ConversionMethod = "Direct"
	MethodInverse      ConversionMethod = "Inverse"
	MethodCrossViaUSD  ConversionMethod = "CrossViaUSD"
)

// ConversionResult is the response of ForexEngine.Convert.
type ConversionResult struct {
	Amount           float64          `json:"amount"`
	ConvertedAmount  float64          `json:"converted_amount"`
	ExchangeRate     float64          `json:"exchange_rate"`
	From             string           `json:"from"`
	To               string           `json:"to"`
	PairUsed         string           `json:"pair_used"`
	ConversionMethod ConversionMethod `json:"conversion_method"`
	RateSource       RateSource       `json:"rate_source"`
}
