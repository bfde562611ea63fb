// Package config provides configuration management for the IBKR MCP gateway.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Defaults mirrored from the configuration table.
const (
	defaultMaxOrderSize               = 1000
	defaultMaxOrderValueUSD           = 10000.0
	defaultMaxDailyOrders             = 50
	defaultMaxStopLossOrders          = 25
	defaultMaxOrdersPerMinute         = 5
	defaultMaxMarketDataReqsPerMinute = 30
	defaultSymbolSearchRateLimitSecs  = 1.1
	defaultRateWindowSeconds          = 60
	defaultResolutionCacheTTLSeconds  = 300
	defaultResolutionCacheCapacity    = 1000
	defaultForexCacheTTLSeconds       = 5
	defaultResolveTimeoutSeconds      = 10
	defaultOrderTimeoutSeconds        = 30
)

// Duration wraps time.Duration so YAML values like "30s" or "5m" decode;
// yaml.v3 has no native duration support.
type Duration time.Duration

// UnmarshalYAML parses a duration string via time.ParseDuration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard-library duration value.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the complete gateway configuration tree.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Trading     TradingConfig     `yaml:"trading"`
	Safety      SafetyConfig      `yaml:"safety"`
	Audit       AuditConfig       `yaml:"audit"`
	OpsAPI      OpsAPIConfig      `yaml:"ops_api"`
	Cache       CacheConfig       `yaml:"cache"`
}

// CacheConfig configures the Resolution Cache and Forex Cache TTLs and the
// Resolution Cache's LRU capacity.
type CacheConfig struct {
	ResolutionCacheTTL      Duration `yaml:"resolution_cache_ttl"`
	ResolutionCacheCapacity int      `yaml:"resolution_cache_capacity"`
	ForexCacheTTL           Duration `yaml:"forex_cache_ttl"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BrokerConfig defines broker-gateway connection settings.
type BrokerConfig struct {
	Host                   string        `yaml:"host"`
	Port                   int           `yaml:"port"`
	ClientID               int           `yaml:"client_id"`
	ResolveTimeout         Duration `yaml:"resolve_timeout"`
	OrderTimeout           Duration `yaml:"order_timeout"`
	CircuitBreakerFailures uint32   `yaml:"circuit_breaker_failures"`
	CircuitBreakerCooldown Duration `yaml:"circuit_breaker_cooldown"`
}

// TradingConfig holds the master/per-domain trading toggles and order
// sizing limits from the configuration table.
type TradingConfig struct {
	EnableTrading               bool    `yaml:"enable_trading"`
	EnableForexTrading          bool    `yaml:"enable_forex_trading"`
	EnableInternationalTrading  bool    `yaml:"enable_international_trading"`
	EnableStopLossOrders        bool    `yaml:"enable_stop_loss_orders"`
	MaxOrderSize                int     `yaml:"max_order_size"`
	MaxOrderValueUSD            float64 `yaml:"max_order_value_usd"`
}

// SafetyConfig holds the safety-framework parameters: kill switch, account
// verification, daily limits, and rate caps.
type SafetyConfig struct {
	EnableKillSwitch                   bool     `yaml:"enable_kill_switch"`
	KillSwitchOverrideToken            string   `yaml:"kill_switch_override_token"`
	RequirePaperAccountVerification    bool     `yaml:"require_paper_account_verification"`
	AllowedAccountPrefixes             []string `yaml:"allowed_account_prefixes"`
	MaxDailyOrders                     int      `yaml:"max_daily_orders"`
	MaxStopLossOrders                  int      `yaml:"max_stop_loss_orders"`
	MaxPortfolioValueAtRisk            float64  `yaml:"max_portfolio_value_at_risk"`
	MaxOrdersPerMinute                 int      `yaml:"max_orders_per_minute"`
	MaxMarketDataRequestsPerMinute     int      `yaml:"max_market_data_requests_per_minute"`
	IBKRSymbolSearchRateLimitSeconds   float64  `yaml:"ibkr_symbol_search_rate_limit_seconds"`
	FallbackToExactOnFuzzyFail         bool     `yaml:"fallback_to_exact_on_fuzzy_fail"`
}

// AuditConfig configures the append-only audit log writer.
type AuditConfig struct {
	LogFile string `yaml:"log_file"`
}

// OpsAPIConfig configures the operator-facing HTTP status surface.
type OpsAPIConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is an operator-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", configPath, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", configPath, err)
	}

	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Normalize fills in default values for unset fields.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Environment.LogLevel) == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Broker.Port == 0 {
		c.Broker.Port = 7497 // IB Gateway paper-trading default port
	}
	if c.Broker.ResolveTimeout == 0 {
		c.Broker.ResolveTimeout = Duration(defaultResolveTimeoutSeconds * time.Second)
	}
	if c.Broker.OrderTimeout == 0 {
		c.Broker.OrderTimeout = Duration(defaultOrderTimeoutSeconds * time.Second)
	}
	if c.Broker.CircuitBreakerFailures == 0 {
		c.Broker.CircuitBreakerFailures = 5
	}
	if c.Broker.CircuitBreakerCooldown == 0 {
		c.Broker.CircuitBreakerCooldown = Duration(30 * time.Second)
	}
	if c.Trading.MaxOrderSize == 0 {
		c.Trading.MaxOrderSize = defaultMaxOrderSize
	}
	if c.Trading.MaxOrderValueUSD == 0 {
		c.Trading.MaxOrderValueUSD = defaultMaxOrderValueUSD
	}
	if len(c.Safety.AllowedAccountPrefixes) == 0 {
		c.Safety.AllowedAccountPrefixes = []string{"DU", "DUH"}
	}
	if c.Safety.MaxDailyOrders == 0 {
		c.Safety.MaxDailyOrders = defaultMaxDailyOrders
	}
	if c.Safety.MaxStopLossOrders == 0 {
		c.Safety.MaxStopLossOrders = defaultMaxStopLossOrders
	}
	if c.Safety.MaxOrdersPerMinute == 0 {
		c.Safety.MaxOrdersPerMinute = defaultMaxOrdersPerMinute
	}
	if c.Safety.MaxMarketDataRequestsPerMinute == 0 {
		c.Safety.MaxMarketDataRequestsPerMinute = defaultMaxMarketDataReqsPerMinute
	}
	if c.Safety.IBKRSymbolSearchRateLimitSeconds == 0 {
		c.Safety.IBKRSymbolSearchRateLimitSeconds = defaultSymbolSearchRateLimitSecs
	}
	if strings.TrimSpace(c.Audit.LogFile) == "" {
		c.Audit.LogFile = defaultAuditLogPath()
	}
	if c.OpsAPI.Port == 0 {
		c.OpsAPI.Port = 8765
	}
	if c.Cache.ResolutionCacheTTL == 0 {
		c.Cache.ResolutionCacheTTL = Duration(defaultResolutionCacheTTLSeconds * time.Second)
	}
	if c.Cache.ResolutionCacheCapacity == 0 {
		c.Cache.ResolutionCacheCapacity = defaultResolutionCacheCapacity
	}
	if c.Cache.ForexCacheTTL == 0 {
		c.Cache.ForexCacheTTL = Duration(defaultForexCacheTTLSeconds * time.Second)
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Environment.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of: debug, info, warn, error")
	}

	if strings.TrimSpace(c.Broker.Host) == "" {
		return fmt.Errorf("broker.host is required")
	}
	if c.Broker.Port <= 0 {
		return fmt.Errorf("broker.port must be > 0")
	}

	if c.Trading.MaxOrderSize <= 0 {
		return fmt.Errorf("trading.max_order_size must be > 0")
	}
	if c.Trading.MaxOrderValueUSD <= 0 {
		return fmt.Errorf("trading.max_order_value_usd must be > 0")
	}

	if c.Safety.RequirePaperAccountVerification && len(c.Safety.AllowedAccountPrefixes) == 0 {
		return fmt.Errorf("safety.allowed_account_prefixes must be non-empty when require_paper_account_verification is true")
	}
	if c.Safety.MaxDailyOrders <= 0 {
		return fmt.Errorf("safety.max_daily_orders must be > 0")
	}
	if c.Safety.MaxStopLossOrders <= 0 {
		return fmt.Errorf("safety.max_stop_loss_orders must be > 0")
	}
	if c.Safety.MaxOrdersPerMinute <= 0 {
		return fmt.Errorf("safety.max_orders_per_minute must be > 0")
	}
	if c.Safety.MaxMarketDataRequestsPerMinute <= 0 {
		return fmt.Errorf("safety.max_market_data_requests_per_minute must be > 0")
	}
	if c.Safety.IBKRSymbolSearchRateLimitSeconds <= 0 {
		return fmt.Errorf("safety.ibkr_symbol_search_rate_limit_seconds must be > 0")
	}

	if c.OpsAPI.Enabled && c.OpsAPI.Port <= 0 {
		return fmt.Errorf("ops_api.port must be > 0 when ops_api.enabled is true")
	}

	return nil
}

func defaultAuditLogPath() string {
	dir := os.TempDir()
	return dir + string(os.PathSeparator) + "ibkr-mcp-audit.log"
}
