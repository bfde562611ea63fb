// Package gateway assembles every component into a single Context object,
// constructed once at process start and passed down instead of relying on
// package-level globals.
package gateway

import (
	"log"
	"sync"
	"time"

	"github.com/ibkr-mcp/gateway/internal/audit"
	"github.com/ibkr-mcp/gateway/internal/broker"
	"github.com/ibkr-mcp/gateway/internal/config"
	"github.com/ibkr-mcp/gateway/internal/forex"
	"github.com/ibkr-mcp/gateway/internal/gatewayerr"
	"github.com/ibkr-mcp/gateway/internal/models"
	"github.com/ibkr-mcp/gateway/internal/opsapi"
	"github.com/ibkr-mcp/gateway/internal/orders"
	"github.com/ibkr-mcp/gateway/internal/resolve"
	"github.com/ibkr-mcp/gateway/internal/safety"
)

// accountTracker holds the gateway's notion of "the current account",
// updated only through SwitchAccount. The broker library's Session
// contract has no account-identity call of its own: the
// gateway, not the broker session, is the source of truth for which
// account trading-side operations are checked against.
type accountTracker struct {
	mu      sync.RWMutex
	current string
}

func (a *accountTracker) CurrentAccountID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

func (a *accountTracker) set(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = id
}

// Context holds every wired component. Nothing in this package (or any
// caller) reaches for a package-level singleton; every dependency is a
// field here, set once in New.
type Context struct {
	Config *config.Config
	Logger *log.Logger

	KillSwitch  *safety.KillSwitch
	RateLimiter *safety.RateLimiter
	DailyLimits *safety.DailyLimits
	Safety      *safety.Manager
	account     *accountTracker

	ForexCache  *forex.Cache
	ForexEngine *forex.Engine

	ResolveCache *resolve.Cache
	AliasMap     *resolve.AliasMap
	Resolver     *resolve.Resolver

	Broker *broker.Manager
	Orders *orders.Manager

	Audit *audit.Log
}

// SwitchAccount validates and records a new current account identifier.
func (c *Context) SwitchAccount(accountID string) error {
	d := c.Safety.Validate(models.OpAccountSwitch, models.AccountSwitchParams{AccountID: accountID})
	if !d.Safe {
		return gatewayerr.FromDecision(d.FailKind, d.Errors[0])
	}
	c.account.set(accountID)
	return nil
}

// CurrentAccountID returns the account last set by SwitchAccount, or "" if
// none has been set yet.
func (c *Context) CurrentAccountID() string {
	return c.account.CurrentAccountID()
}

// GetMarketData validates an OpMarketData request and fetches quote
// snapshots for the given symbols.
func (c *Context) GetMarketData(symbols []string) ([]models.TickerSnapshot, error) {
	d := c.Safety.Validate(models.OpMarketData, models.MarketDataParams{Symbols: symbols})
	if !d.Safe {
		return nil, gatewayerr.FromDecision(d.FailKind, d.Errors[0])
	}
	return c.Broker.ReqTickers(symbols)
}

// GetPortfolio validates an OpPortfolioRead request and returns the account
// summary plus positions, both passed through from the broker unmodified.
func (c *Context) GetPortfolio() (models.PortfolioSnapshot, error) {
	d := c.Safety.Validate(models.OpPortfolioRead, models.PortfolioReadParams{})
	if !d.Safe {
		return models.PortfolioSnapshot{}, gatewayerr.FromDecision(d.FailKind, d.Errors[0])
	}
	summary, err := c.Broker.ReqAccountSummary()
	if err != nil {
		return models.PortfolioSnapshot{}, err
	}
	positions, err := c.Broker.ReqPositions()
	if err != nil {
		return models.PortfolioSnapshot{}, err
	}
	return models.PortfolioSnapshot{Summary: summary, Positions: positions}, nil
}

// GetForexRates validates an OpForexRate request and returns one rate per
// requested pair, live or mock-fallback per the cache's sourcing rules.
func (c *Context) GetForexRates(pairs []string) ([]models.ForexRate, error) {
	d := c.Safety.Validate(models.OpForexRate, models.ForexRateParams{Pairs: pairs})
	if !d.Safe {
		return nil, gatewayerr.FromDecision(d.FailKind, d.Errors[0])
	}
	rates := make([]models.ForexRate, 0, len(pairs))
	for _, pair := range pairs {
		rate, err := c.ForexCache.Get(pair)
		if err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, nil
}

// ConvertCurrency validates an OpCurrencyConvert request and runs the
// direct/inverse/cross conversion.
func (c *Context) ConvertCurrency(amount float64, from, to string) (models.ConversionResult, error) {
	d := c.Safety.Validate(models.OpCurrencyConvert, models.CurrencyConvertParams{Amount: amount, From: from, To: to})
	if !d.Safe {
		return models.ConversionResult{}, gatewayerr.FromDecision(d.FailKind, d.Errors[0])
	}
	return c.ForexEngine.Convert(amount, from, to)
}

// ResolveSymbol validates an OpResolveSymbol request and dispatches it to
// the resolver. The second return value is non-nil only for the synthetic
// CACHE_STATS / CLEAR_CACHE inputs.
func (c *Context) ResolveSymbol(q models.ResolutionQuery) ([]models.SymbolMatch, *resolve.SyntheticResult, error) {
	d := c.Safety.Validate(models.OpResolveSymbol, q)
	if !d.Safe {
		return nil, nil, gatewayerr.FromDecision(d.FailKind, d.Errors[0])
	}
	return c.Resolver.Resolve(q)
}

// Status implements opsapi.StatusProvider.
func (c *Context) Status() opsapi.StatusSnapshot {
	st := c.Safety.Status()
	breakers := map[string]string{
		"quote":   c.Broker.BreakerState("quote"),
		"resolve": c.Broker.BreakerState("resolve"),
		"order":   c.Broker.BreakerState("order"),
		"account": c.Broker.BreakerState("account"),
	}
	return opsapi.StatusSnapshot{
		KillSwitchActive:   st.KillSwitchActive,
		KillSwitchReason:   st.KillSwitchReason,
		BrokerConnected:    c.Broker.IsConnected(),
		DailyCounters:      st.DailyCounters,
		RateLimitOccupancy: st.RateLimitOccupancy,
		BreakerStates:      breakers,
		GeneratedAt:        time.Now().UTC(),
	}
}

// CacheStats implements opsapi.CacheStatsProvider.
func (c *Context) CacheStats() any {
	return c.ResolveCache.Stats()
}

// AuditTail implements opsapi.AuditTailProvider.
func (c *Context) AuditTail(n int) ([]string, error) {
	return c.Audit.Tail(n)
}

// New wires every component per cfg, using session as the broker-library
// connection and auditPath as the append-only audit log destination.
func New(cfg *config.Config, session broker.Session, auditPath, sessionID string, logger *log.Logger) (*Context, error) {
	auditLog, err := audit.New(auditPath, sessionID)
	if err != nil {
		return nil, err
	}

	ks := safety.NewKillSwitch(cfg.Safety.KillSwitchOverrideToken)
	rl := safety.NewRateLimiter(safety.RateLimiterConfig{
		OrdersPerMinute:            cfg.Safety.MaxOrdersPerMinute,
		MarketDataPerMinute:        cfg.Safety.MaxMarketDataRequestsPerMinute,
		FuzzySearchIntervalSeconds: cfg.Safety.IBKRSymbolSearchRateLimitSeconds,
	})
	dl := safety.NewDailyLimits(cfg.Safety.MaxDailyOrders, cfg.Safety.MaxStopLossOrders, cfg.Safety.MaxPortfolioValueAtRisk)

	brokerMgr := broker.NewManagerWithTimeouts(session, broker.CircuitBreakerSettings{
		MinRequests: cfg.Broker.CircuitBreakerFailures,
		Timeout:     cfg.Broker.CircuitBreakerCooldown.Std(),
	}, cfg.Broker.ResolveTimeout.Std(), cfg.Broker.OrderTimeout.Std())

	safetyCfg := safety.Config{
		EnableTrading:                   cfg.Trading.EnableTrading,
		EnableForexTrading:              cfg.Trading.EnableForexTrading,
		EnableInternationalTrading:      cfg.Trading.EnableInternationalTrading,
		EnableStopLossOrders:            cfg.Trading.EnableStopLossOrders,
		EnableKillSwitch:                cfg.Safety.EnableKillSwitch,
		RequirePaperAccountVerification: cfg.Safety.RequirePaperAccountVerification,
		AllowedAccountPrefixes:          cfg.Safety.AllowedAccountPrefixes,
		MaxOrderSize:                    cfg.Trading.MaxOrderSize,
		MaxOrderValueUSD:                cfg.Trading.MaxOrderValueUSD,
	}
	account := &accountTracker{}
	safetyMgr := safety.NewManager(safetyCfg, ks, rl, dl, account, auditLog)

	forexCache := forex.NewCache(cfg.Cache.ForexCacheTTL.Std(), brokerMgr)
	forexEngine := forex.NewEngine(forexCache)

	aliases := resolve.NewAliasMap()
	resolveCache := resolve.NewCache(cfg.Cache.ResolutionCacheTTL.Std(), cfg.Cache.ResolutionCacheCapacity)
	resolver := resolve.NewResolver(resolveCache, aliases, brokerMgr, func() error {
		return rl.Check("fuzzy_search")
	}, cfg.Safety.FallbackToExactOnFuzzyFail)

	orderMgr := orders.NewManager(safetyMgr, dl, brokerMgr, auditLog)

	brokerMgr.OnDisconnect(func() { resolveCache.Invalidate() })

	return &Context{
		Config: cfg, Logger: logger,
		KillSwitch: ks, RateLimiter: rl, DailyLimits: dl, Safety: safetyMgr, account: account,
		ForexCache: forexCache, ForexEngine: forexEngine,
		ResolveCache: resolveCache, AliasMap: aliases, Resolver: resolver,
		Broker: brokerMgr, Orders: orderMgr,
		Audit: auditLog,
	}, nil
}
