package safety

import (
	"math"
	"regexp"
	"strings"

	"github.com/ibkr-mcp/gateway/internal/gatewayerr"
	"github.com/ibkr-mcp/gateway/internal/models"
	"github.com/ibkr-mcp/gateway/internal/util"
)

var forexPairPattern = regexp.MustCompile(`^[A-Z]{6}$`)

// checkOpSpecific dispatches to the kind's parameter validation. Unknown or
// parameter-less kinds pass through unchanged.
func (m *Manager) checkOpSpecific(kind models.OperationKind, payload any, d *models.ValidationDecision) bool {
	d.AddCheck("op_specific")
	var err *gatewayerr.Error
	switch kind {
	case models.OpPlaceStopLoss:
		if p, ok := payload.(models.PlaceStopLossParams); ok {
			err = validatePlaceStopLoss(p, m.cfg.MaxOrderSize, m.cfg.MaxOrderValueUSD)
			if err == nil {
				if !tickAligned(p.StopPrice) {
					d.AddWarning("stop_price is not aligned to the 0.01 tick")
				}
				if p.Variant.Kind == models.VariantStopLimit && !tickAligned(p.Variant.LimitPrice) {
					d.AddWarning("limit_price is not aligned to the 0.01 tick")
				}
			}
		}
	case models.OpModifyStopLoss:
		if p, ok := payload.(models.ModifyStopLossParams); ok {
			err = validateModifyStopLoss(p)
		}
	case models.OpPlaceOrder:
		if p, ok := payload.(models.PlaceOrderParams); ok {
			err = validatePlaceOrder(p, m.cfg.MaxOrderSize, m.cfg.MaxOrderValueUSD)
		}
	case models.OpCurrencyConvert:
		if p, ok := payload.(models.CurrencyConvertParams); ok {
			err = validateCurrencyConvert(p)
		}
	case models.OpForexRate:
		if p, ok := payload.(models.ForexRateParams); ok {
			err = validateForexRate(p)
		}
	case models.OpMarketData:
		if p, ok := payload.(models.MarketDataParams); ok {
			err = validateMarketData(p)
		}
	case models.OpResolveSymbol:
		// CACHE_STATS / CLEAR_CACHE are intercepted inside Resolver.Resolve,
		// before classification; this check only enforces a non-empty input.
		if p, ok := payload.(models.ResolutionQuery); ok && strings.TrimSpace(p.RawInput) == "" {
			err = gatewayerr.InvalidParameterErr("raw_input", "must not be empty")
		}
	}
	if err != nil {
		d.Fail(string(err.Kind), err.Error())
		return false
	}
	return true
}

// tickAligned reports whether price sits on the US-equity 0.01 tick grid.
// Misalignment is a warning, not an error: the broker widens or rejects
// such prices itself, so the gateway only flags them.
func tickAligned(price float64) bool {
	return math.Abs(util.RoundToTick(price, 0.01)-price) < 1e-9
}

func validateMarketData(p models.MarketDataParams) *gatewayerr.Error {
	if len(p.Symbols) == 0 {
		return gatewayerr.InvalidParameterErr("symbols", "must include at least one symbol")
	}
	for _, s := range p.Symbols {
		if strings.TrimSpace(s) == "" {
			return gatewayerr.InvalidParameterErr("symbols", "symbols must not be blank")
		}
	}
	return nil
}

func validatePlaceStopLoss(p models.PlaceStopLossParams, maxSize int, maxValueUSD float64) *gatewayerr.Error {
	if strings.TrimSpace(p.Symbol) == "" {
		return gatewayerr.InvalidParameterErr("symbol", "must not be empty")
	}
	if p.Quantity <= 0 {
		return gatewayerr.InvalidParameterErr("quantity", "must be positive")
	}
	if maxSize > 0 && p.Quantity > maxSize {
		return gatewayerr.InvalidParameterErr("quantity", "exceeds max_order_size")
	}
	if p.StopPrice <= 0 {
		return gatewayerr.InvalidParameterErr("stop_price", "must be positive")
	}
	if maxValueUSD > 0 && p.OrderEstimateNotional() > maxValueUSD {
		return gatewayerr.InvalidParameterErr("stop_price", "estimated order value exceeds max_order_value_usd")
	}
	switch p.Variant.Kind {
	case models.VariantBasic:
		// no extra constraints
	case models.VariantStopLimit:
		if p.Variant.LimitPrice <= 0 {
			return gatewayerr.InvalidParameterErr("limit_price", "must be positive for StopLimit")
		}
		if p.Side == models.SideSell && p.Variant.LimitPrice > p.StopPrice {
			return gatewayerr.InvalidParameterErr("limit_price", "must be <= stop_price for a sell stop-limit")
		}
		if p.Side == models.SideBuy && p.Variant.LimitPrice < p.StopPrice {
			return gatewayerr.InvalidParameterErr("limit_price", "must be >= stop_price for a buy stop-limit")
		}
	case models.VariantTrailing:
		hasAmount := p.Variant.TrailAmount != nil
		hasPercent := p.Variant.TrailPercent != nil
		if hasAmount == hasPercent {
			return gatewayerr.InvalidParameterErr("trailing", "exactly one of amount or percent must be set")
		}
		if hasAmount && *p.Variant.TrailAmount <= 0 {
			return gatewayerr.InvalidParameterErr("trail_amount", "must be positive")
		}
		if hasPercent && *p.Variant.TrailPercent <= 0 {
			return gatewayerr.InvalidParameterErr("trail_percent", "must be positive")
		}
	default:
		return gatewayerr.InvalidParameterErr("variant", "unknown stop-loss variant")
	}
	return nil
}

func validateModifyStopLoss(p models.ModifyStopLossParams) *gatewayerr.Error {
	if strings.TrimSpace(p.OrderID) == "" {
		return gatewayerr.InvalidParameterErr("order_id", "must not be empty")
	}
	if p.NewStopPrice != nil && *p.NewStopPrice <= 0 {
		return gatewayerr.InvalidParameterErr("new_stop_price", "must be positive")
	}
	if p.NewQuantity != nil && *p.NewQuantity <= 0 {
		return gatewayerr.InvalidParameterErr("new_quantity", "must be positive")
	}
	return nil
}

func validatePlaceOrder(p models.PlaceOrderParams, maxSize int, maxValueUSD float64) *gatewayerr.Error {
	if strings.TrimSpace(p.Symbol) == "" {
		return gatewayerr.InvalidParameterErr("symbol", "must not be empty")
	}
	if p.Quantity <= 0 {
		return gatewayerr.InvalidParameterErr("quantity", "must be positive")
	}
	if maxSize > 0 && p.Quantity > maxSize {
		return gatewayerr.InvalidParameterErr("quantity", "exceeds max_order_size")
	}
	if p.OrderType == "LMT" && p.LimitPrice <= 0 {
		return gatewayerr.InvalidParameterErr("limit_price", "must be positive for a limit order")
	}
	if maxValueUSD > 0 && p.OrderType == "LMT" && p.LimitPrice*float64(p.Quantity) > maxValueUSD {
		return gatewayerr.InvalidParameterErr("limit_price", "estimated order value exceeds max_order_value_usd")
	}
	return nil
}

func validateCurrencyConvert(p models.CurrencyConvertParams) *gatewayerr.Error {
	if p.Amount <= 0 {
		return gatewayerr.InvalidParameterErr("amount", "must be positive")
	}
	if !currencyCodePattern.MatchString(p.From) {
		return gatewayerr.InvalidParameterErr("from", "must be exactly 3 uppercase letters")
	}
	if !currencyCodePattern.MatchString(p.To) {
		return gatewayerr.InvalidParameterErr("to", "must be exactly 3 uppercase letters")
	}
	return nil
}

var currencyCodePattern = regexp.MustCompile(`^[A-Z]{3}$`)

func validateForexRate(p models.ForexRateParams) *gatewayerr.Error {
	if len(p.Pairs) == 0 {
		return gatewayerr.InvalidParameterErr("pairs", "must include at least one pair")
	}
	for _, pair := range p.Pairs {
		if !forexPairPattern.MatchString(pair) {
			return gatewayerr.InvalidParameterErr("pairs", "each pair must be exactly 6 uppercase letters, e.g. EURUSD")
		}
	}
	return nil
}
