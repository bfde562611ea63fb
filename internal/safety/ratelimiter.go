package safety

import (
	"sync"
	"time"

	"github.com/ibkr-mcp/gateway/internal/gatewayerr"
)

// window holds one op-class's sliding-window state: a configured (max,
// duration) cap and the ordered timestamps of recent accepted events.
type window struct {
	mu     sync.Mutex
	max    int
	period time.Duration
	events []time.Time
}

// prune drops timestamps older than now-period. Caller must hold w.mu.
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.period)
	i := 0
	for i < len(w.events) && w.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.events = append(w.events[:0], w.events[i:]...)
	}
}

// check prunes, then accepts (appending now) if under max, else rejects
// with the seconds remaining until the oldest event ages out.
func (w *window) check(now time.Time, class string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now)
	if len(w.events) >= w.max {
		retryAfter := w.events[0].Add(w.period).Sub(now).Seconds()
		if retryAfter < 0 {
			retryAfter = 0
		}
		return gatewayerr.RateLimitedErr(class, retryAfter)
	}
	w.events = append(w.events, now)
	return nil
}

func (w *window) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(time.Now())
	return len(w.events)
}

// RateLimiter holds one sliding window per operation class. There is no
// wait/block path: a breach returns RateLimited immediately.
type RateLimiter struct {
	windows map[string]*window
}

// RateLimiterConfig configures the per-class caps. FuzzySearchIntervalSeconds
// is expressed as an interval (e.g. 1.1s between calls) rather than a
// per-minute cap, matching the upstream symbol-search throttle.
type RateLimiterConfig struct {
	OrdersPerMinute            int
	MarketDataPerMinute        int
	FuzzySearchIntervalSeconds float64
}

// NewRateLimiter builds the fixed set of op-class windows. History reads
// share the quote_request window rather than carrying a class of their own.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		windows: map[string]*window{
			"order_placement": {max: cfg.OrdersPerMinute, period: time.Minute},
			"quote_request":   {max: cfg.MarketDataPerMinute, period: time.Minute},
			"fuzzy_search":    {max: 1, period: time.Duration(cfg.FuzzySearchIntervalSeconds * float64(time.Second))},
		},
	}
}

// Check prunes class's window and either records now as an accepted event
// or returns RateLimited(class, retry_after_seconds).
func (r *RateLimiter) Check(class string) error {
	w, ok := r.windows[class]
	if !ok {
		return nil
	}
	return w.check(time.Now(), class)
}

// Occupancy returns the current (post-prune) event count for class, used by
// the operator status surface.
func (r *RateLimiter) Occupancy(class string) int {
	w, ok := r.windows[class]
	if !ok {
		return 0
	}
	return w.len()
}
