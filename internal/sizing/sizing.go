// Package sizing turns account equity and price into an order quantity.
package sizing

import (
	"github.com/shopspring/decimal"

	"hl-signal-bot/internal/errs"
)

// Quantity is either a concrete size or the EntirePosition sentinel used for closes.
type Quantity struct {
	Size           decimal.Decimal
	EntirePosition bool
}

// EntirePosition asks the builder to close whatever the exchange reports as open.
var EntirePosition = Quantity{EntirePosition: true}

// FullExposure sizes an order as equity * MarginFraction * Leverage / price.
type FullExposure struct {
	MarginFraction decimal.Decimal
	Leverage       int
	MinNotional    decimal.Decimal
}

// Sizing is the outcome of FullExposure.Compute. Raw is the exact formula value,
// Size is Raw truncated to the instrument's size granularity.
type Sizing struct {
	Raw  decimal.Decimal
	Size decimal.Decimal
}

// Compute returns the order size for equity at price. Size is truncated toward
// zero at szDecimals so that Size*price never exceeds Leverage*equity.
func (p FullExposure) Compute(equity, price decimal.Decimal, szDecimals int) (Sizing, error) {
	const op = "compute size"
	if !equity.IsPositive() {
		return Sizing{}, errs.New(errs.ZeroBalance, op, "equity %s", equity)
	}
	if !price.IsPositive() {
		return Sizing{}, errs.New(errs.InvalidMarketPrice, op, "price %s", price)
	}

	notional := equity.Mul(p.MarginFraction).Mul(decimal.NewFromInt(int64(p.Leverage)))
	size, _ := notional.QuoRem(price, int32(szDecimals))
	out := Sizing{Raw: notional.Div(price), Size: size}

	if !size.IsPositive() {
		return out, errs.New(errs.SizeBelowMinimum, op, "size rounds to zero at %d decimals (raw %s)", szDecimals, out.Raw)
	}
	if value := size.Mul(price); value.LessThan(p.MinNotional) {
		return out, errs.New(errs.SizeBelowMinimum, op, "order value %s below minimum %s", value.StringFixed(2), p.MinNotional)
	}
	return out, nil
}

// Quantity wraps Compute for callers that only need the size.
func (p FullExposure) Quantity(equity, price decimal.Decimal, szDecimals int) (Quantity, error) {
	s, err := p.Compute(equity, price, szDecimals)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Size: s.Size}, nil
}

// CloseAll sizes closing orders. The exchange is authoritative for what is open.
type CloseAll struct{}

func (CloseAll) Quantity() Quantity { return EntirePosition }
