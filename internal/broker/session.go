// Package broker holds the gateway's one opaque dependency: the broker
// library's socket session. Session is a narrow interface over it; Manager
// wraps every call in a per-class circuit breaker and tracks connection
// state under a mutex.
package broker

import (
	"errors"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ibkr-mcp/gateway/internal/gatewayerr"
	"github.com/ibkr-mcp/gateway/internal/models"
)

// Session is the broker-library contract the gateway depends on. It is
// treated as an opaque collaborator: Manager never reaches past it into
// library internals.
type Session interface {
	Connect() error
	Disconnect() error
	IsConnected() bool

	QualifyContracts(symbol, exchange, currency, secType string) ([]models.SymbolMatch, error)
	ReqMatchingSymbols(rawInput string) ([]models.SymbolMatch, error)
	ReqForexQuote(pair string) (bid, ask, last, closePx float64, err error)
	ReqTickers(symbols []string) ([]models.TickerSnapshot, error)
	ReqPositions() ([]models.Position, error)
	ReqAccountSummary() (models.AccountSummary, error)

	PlaceStopLoss(p models.PlaceStopLossParams) (models.StopLossOrder, error)
	ModifyStopLoss(p models.ModifyStopLossParams) (models.StopLossOrder, error)
	CancelStopLoss(orderID string) error
	PlaceOrder(p models.PlaceOrderParams) (models.OpenOrder, error)
	CancelOrder(orderID string) error

	ReqOpenOrders() ([]models.OpenOrder, error)
	ReqCompletedOrders(kind models.OrderHistoryKind) ([]models.CompletedOrder, error)
	ReqExecutions() ([]models.Execution, error)
}

// CircuitBreakerSettings configures one call-class breaker. Zero-valued
// fields fall back to NormalizeSettings' defaults. CallTimeout bounds a
// single broker call (0 disables the bound); Timeout is the breaker's
// open-state cooldown.
type CircuitBreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
	CallTimeout  time.Duration
}

// NormalizeSettings fills zero fields with conservative defaults.
func NormalizeSettings(s CircuitBreakerSettings) CircuitBreakerSettings {
	if s.MaxRequests == 0 {
		s.MaxRequests = 3
	}
	if s.Interval == 0 {
		s.Interval = 60 * time.Second
	}
	if s.Timeout == 0 {
		s.Timeout = 30 * time.Second
	}
	if s.MinRequests == 0 {
		s.MinRequests = 5
	}
	if s.FailureRatio == 0 {
		s.FailureRatio = 0.6
	}
	return s
}

// callClass groups broker calls that should trip together: a burst of
// quote timeouts shouldn't block order placement, and vice versa.
type callClass string

const (
	classQuote   callClass = "quote"
	classResolve callClass = "resolve"
	classOrder   callClass = "order"
	classAccount callClass = "account"
)

// DisconnectHook is invoked after every Disconnect, including one whose
// underlying session call returned an error, letting the
// resolution cache invalidate itself (the set of qualifiable contracts can
// differ across sessions).
type DisconnectHook func()

// Manager wraps a Session with per-class circuit breakers and serializes
// connection-state transitions.
type Manager struct {
	mu        sync.RWMutex
	session   Session
	connected bool
	onDisconnect []DisconnectHook

	breakers map[callClass]*gobreaker.CircuitBreaker[any]
	timeouts map[callClass]time.Duration
}

// NewManager wires a Manager around session using settings for every call
// class alike. Use NewManagerWithClassSettings for per-class tuning.
func NewManager(session Session, settings CircuitBreakerSettings) *Manager {
	classes := map[callClass]CircuitBreakerSettings{
		classQuote: settings, classResolve: settings, classOrder: settings, classAccount: settings,
	}
	return NewManagerWithClassSettings(session, classes)
}

// NewManagerWithTimeouts wires a Manager whose read-side calls (quote,
// resolve, account) are bounded by readTimeout and order calls by
// orderTimeout, surfacing as BrokerTimeout when exceeded.
func NewManagerWithTimeouts(session Session, settings CircuitBreakerSettings, readTimeout, orderTimeout time.Duration) *Manager {
	read := settings
	read.CallTimeout = readTimeout
	order := settings
	order.CallTimeout = orderTimeout
	return NewManagerWithClassSettings(session, map[callClass]CircuitBreakerSettings{
		classQuote: read, classResolve: read, classAccount: read, classOrder: order,
	})
}

// NewManagerWithClassSettings wires a Manager with independently tuned
// breaker settings per call class.
func NewManagerWithClassSettings(session Session, classes map[callClass]CircuitBreakerSettings) *Manager {
	m := &Manager{
		session:  session,
		breakers: make(map[callClass]*gobreaker.CircuitBreaker[any]),
		timeouts: make(map[callClass]time.Duration),
	}
	for class, s := range classes {
		m.timeouts[class] = s.CallTimeout
		s = NormalizeSettings(s)
		name := string(class)
		m.breakers[class] = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        name,
			MaxRequests: s.MaxRequests,
			Interval:    s.Interval,
			Timeout:     s.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.Requests >= s.MinRequests && float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
			},
		})
	}
	return m
}

// OnDisconnect registers a hook run after every Disconnect, whether or not
// the underlying session call succeeded.
func (m *Manager) OnDisconnect(hook DisconnectHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnect = append(m.onDisconnect, hook)
}

// Connect opens the session and marks it connected.
func (m *Manager) Connect() error {
	if err := m.session.Connect(); err != nil {
		return gatewayerr.Wrap(gatewayerr.NotConnected, "broker connect failed", err)
	}
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	return nil
}

// Disconnect closes the session, marks it disconnected, and runs every
// registered disconnect hook.
func (m *Manager) Disconnect() error {
	err := m.session.Disconnect()
	m.mu.Lock()
	m.connected = false
	hooks := append([]DisconnectHook{}, m.onDisconnect...)
	m.mu.Unlock()
	for _, h := range hooks {
		h()
	}
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.NotConnected, "broker disconnect failed", err)
	}
	return nil
}

// IsConnected reports the last known connection state.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// execute runs fn through class's breaker, translating a tripped breaker
// or a library error into the matching gatewayerr.Kind.
func execute[T any](m *Manager, class callClass, fn func() (T, error)) (T, error) {
	var zero T
	b, ok := m.breakers[class]
	if !ok {
		return fn()
	}
	v, err := b.Execute(func() (any, error) {
		if !m.IsConnected() {
			return nil, gatewayerr.New(gatewayerr.NotConnected, "broker session not connected")
		}
		return callWithTimeout(m.timeouts[class], string(class), func() (any, error) {
			return fn()
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, gatewayerr.Wrap(gatewayerr.BrokerTimeout, "circuit breaker open for "+string(class), err)
		}
		var gwErr *gatewayerr.Error
		if errors.As(err, &gwErr) {
			return zero, err
		}
		return zero, gatewayerr.Wrap(gatewayerr.BrokerRejected, "broker call failed", err)
	}
	return v.(T), nil
}

// callWithTimeout bounds fn to timeout (0 means unbounded). A call that
// overruns leaves its goroutine to finish in the background; its eventual
// result is dropped. Timeouts are not retried.
func callWithTimeout(timeout time.Duration, class string, fn func() (any, error)) (any, error) {
	if timeout <= 0 {
		return fn()
	}
	type result struct {
		v   any
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-time.After(timeout):
		return nil, gatewayerr.New(gatewayerr.BrokerTimeout, "broker call timed out for "+class)
	}
}

func (m *Manager) QualifyContracts(symbol, exchange, currency, secType string) ([]models.SymbolMatch, error) {
	return execute(m, classResolve, func() ([]models.SymbolMatch, error) {
		return m.session.QualifyContracts(symbol, exchange, currency, secType)
	})
}

func (m *Manager) ReqMatchingSymbols(rawInput string) ([]models.SymbolMatch, error) {
	return execute(m, classResolve, func() ([]models.SymbolMatch, error) {
		return m.session.ReqMatchingSymbols(rawInput)
	})
}

func (m *Manager) ReqForexQuote(pair string) (float64, float64, float64, float64, error) {
	type quote struct{ bid, ask, last, closePx float64 }
	q, err := execute(m, classQuote, func() (quote, error) {
		bid, ask, last, closePx, ierr := m.session.ReqForexQuote(pair)
		return quote{bid, ask, last, closePx}, ierr
	})
	return q.bid, q.ask, q.last, q.closePx, err
}

func (m *Manager) ReqTickers(symbols []string) ([]models.TickerSnapshot, error) {
	return execute(m, classQuote, func() ([]models.TickerSnapshot, error) {
		return m.session.ReqTickers(symbols)
	})
}

func (m *Manager) ReqPositions() ([]models.Position, error) {
	return execute(m, classAccount, func() ([]models.Position, error) {
		return m.session.ReqPositions()
	})
}

func (m *Manager) ReqAccountSummary() (models.AccountSummary, error) {
	return execute(m, classAccount, func() (models.AccountSummary, error) {
		return m.session.ReqAccountSummary()
	})
}

func (m *Manager) PlaceStopLoss(p models.PlaceStopLossParams) (models.StopLossOrder, error) {
	return execute(m, classOrder, func() (models.StopLossOrder, error) {
		return m.session.PlaceStopLoss(p)
	})
}

func (m *Manager) ModifyStopLoss(p models.ModifyStopLossParams) (models.StopLossOrder, error) {
	return execute(m, classOrder, func() (models.StopLossOrder, error) {
		return m.session.ModifyStopLoss(p)
	})
}

func (m *Manager) CancelStopLoss(orderID string) error {
	_, err := execute(m, classOrder, func() (struct{}, error) {
		return struct{}{}, m.session.CancelStopLoss(orderID)
	})
	return err
}

func (m *Manager) PlaceOrder(p models.PlaceOrderParams) (models.OpenOrder, error) {
	return execute(m, classOrder, func() (models.OpenOrder, error) {
		return m.session.PlaceOrder(p)
	})
}

func (m *Manager) CancelOrder(orderID string) error {
	_, err := execute(m, classOrder, func() (struct{}, error) {
		return struct{}{}, m.session.CancelOrder(orderID)
	})
	return err
}

func (m *Manager) ReqOpenOrders() ([]models.OpenOrder, error) {
	return execute(m, classAccount, func() ([]models.OpenOrder, error) {
		return m.session.ReqOpenOrders()
	})
}

func (m *Manager) ReqCompletedOrders(kind models.OrderHistoryKind) ([]models.CompletedOrder, error) {
	return execute(m, classAccount, func() ([]models.CompletedOrder, error) {
		return m.session.ReqCompletedOrders(kind)
	})
}

func (m *Manager) ReqExecutions() ([]models.Execution, error) {
	return execute(m, classAccount, func() ([]models.Execution, error) {
		return m.session.ReqExecutions()
	})
}

// BreakerState exposes a call class's current gobreaker state for the
// operator status surface.
func (m *Manager) BreakerState(class string) string {
	b, ok := m.breakers[callClass(class)]
	if !ok {
		return ""
	}
	return b.State().String()
}
