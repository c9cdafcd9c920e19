// Package order assembles exchange-neutral order intents from a sized signal.
package order

import (
	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/shopspring/decimal"

	"hl-signal-bot/internal/errs"
	"hl-signal-bot/internal/exchange"
	"hl-signal-bot/internal/sizing"
	"hl-signal-bot/internal/strategy"
)

// DefaultSlippage is the offset from mark used to make an IOC limit behave like a market order.
const DefaultSlippage = 0.05

// priceSigFigs is the exchange's significant-figure limit for prices.
const priceSigFigs = 5

type Builder struct {
	Instrument exchange.Instrument
	Slippage   decimal.Decimal
	// NewID returns a client order id; uuid.NewString when nil.
	NewID func() string
}

func NewBuilder(inst exchange.Instrument, slippage float64) *Builder {
	return &Builder{
		Instrument: inst,
		Slippage:   decimal.NewFromFloat(slippage),
		NewID:      uuid.NewString,
	}
}

// Build turns an intent, a quantity and the current mark into an IOC limit
// order. EntirePosition is resolved against the freshly read account state.
func (b *Builder) Build(intent strategy.Intent, qty sizing.Quantity, mark exchange.MarketPrice, st exchange.AccountState) (exchange.OrderIntent, error) {
	size := qty.Size
	isBuy := intent.IsBuy()
	if qty.EntirePosition {
		pos, ok := st.OpenPosition.Get()
		if !ok {
			return exchange.OrderIntent{}, errs.New(errs.SizeBelowMinimum, "build order", "no open %s position to close", b.Instrument.Coin)
		}
		size = pos.SignedSize.Abs()
		// closing trades against the position, whichever side it is on
		isBuy = pos.IsShort()
	}
	size = size.Truncate(int32(b.Instrument.SzDecimals))
	if !size.IsPositive() {
		return exchange.OrderIntent{}, errs.New(errs.SizeBelowMinimum, "build order", "size %s is not tradable", size)
	}
	if !mark.MarkPrice.IsPositive() {
		return exchange.OrderIntent{}, errs.New(errs.InvalidMarketPrice, "build order", "mark %s", mark.MarkPrice)
	}

	newID := b.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return exchange.OrderIntent{
		Coin:          b.Instrument.Coin,
		Asset:         b.Instrument.Asset,
		IsBuy:         isBuy,
		Size:          size,
		PriceHint:     mo.Some(b.LimitPrice(mark.MarkPrice, isBuy)),
		ReduceOnly:    !intent.Opens(),
		TimeInForce:   exchange.TifIoc,
		ClientOrderID: newID(),
	}, nil
}

// LimitPrice offsets mark by the slippage in the crossing direction and rounds
// to what the exchange accepts for this instrument.
func (b *Builder) LimitPrice(mark decimal.Decimal, isBuy bool) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(b.Slippage)
	if !isBuy {
		factor = decimal.NewFromInt(1).Sub(b.Slippage)
	}
	return RoundPrice(mark.Mul(factor), b.Instrument.MaxPriceDecimals())
}

// RoundPrice limits px to five significant figures and maxDecimals decimals.
// Integer prices are always accepted regardless of significant figures.
func RoundPrice(px decimal.Decimal, maxDecimals int32) decimal.Decimal {
	if px.IsZero() {
		return px
	}
	magnitude := int32(px.NumDigits()) + px.Exponent() - 1
	places := priceSigFigs - 1 - magnitude
	if places < 0 {
		places = 0
	}
	if places > maxDecimals {
		places = maxDecimals
	}
	return px.Round(places)
}
