package resolve

// aliasTable is the static exchange-code → ordered-fallback-codes map.
// Entries mix IBKR regional exchange codes and raw MIC translations, per
// the coverage implied by the ~140-exchange universe the resolver fans
// fallback attempts across. An entry absent from this table has no known
// aliases.
var aliasTable = map[string][]string{
	"XETRA":    {"IBIS", "IBIS2"},
	"TRADEGATE": {"TGATE"},
	"SWX":      {"EBS"},
	"TSX":      {"TSE"},
	"BIT":      {"BVME"},
	"BSE":      {"NSE"},
	"TSE":      {"TSEJ"},
	"OMX":      {"SFB"},
	"XNYS":     {"NYSE"},
	"XLON":     {"LSE", "LSEETF"},
	"XTKS":     {"TSEJ"},
	"XPAR":     {"SBF"},
	"XAMS":     {"AEB"},
	"XBRU":     {"ENEXT.BE"},
	"XMIL":     {"BVME"},
	"XMAD":     {"BME"},
	"XSWX":     {"EBS"},
	"XHKG":     {"SEHK"},
	"XASX":     {"ASX"},
	"XSES":     {"SGX"},
	"XTSE":     {"TSE"},
	"XIDX":     {"IDX"},
	"XKRX":     {"KSE"},
	"XSHG":     {"SEHKSZSE"},
	"XSHE":     {"SEHKSZSE"},
}

// AliasMap resolves an exchange code to its ordered fallback codes.
type AliasMap struct{}

// NewAliasMap returns the static compile-time alias table.
func NewAliasMap() *AliasMap {
	return &AliasMap{}
}

// Fallbacks returns code's ordered fallback list, or nil if code has no
// known aliases.
func (AliasMap) Fallbacks(code string) []string {
	return aliasTable[code]
}
