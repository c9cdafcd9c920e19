package exchange

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/mo"
	"github.com/shopspring/decimal"

	"hl-signal-bot/internal/errs"
)

// Side is the direction carried by an inbound signal.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// ParseSide accepts exactly "long" or "short".
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case Long, Short:
		return Side(s), nil
	}
	return "", errs.New(errs.InvalidSignal, "parse side", "unsupported side %q", s)
}

// Signal is one inbound directional instruction.
type Signal struct {
	Side Side
}

// Instrument is the traded perp and its size/price granularity.
// Sizes are base-asset units and prices are quote (USDC).
type Instrument struct {
	Coin        string
	Asset       int
	SzDecimals  int
	MaxLeverage int
}

// MaxPriceDecimals is the number of decimals a perp price may carry.
func (i Instrument) MaxPriceDecimals() int32 {
	d := 6 - i.SzDecimals
	if d < 0 {
		return 0
	}
	return int32(d)
}

type Position struct {
	Coin       string
	SignedSize decimal.Decimal
}

func (p Position) IsOpen() bool  { return !p.SignedSize.IsZero() }
func (p Position) IsLong() bool  { return p.SignedSize.IsPositive() }
func (p Position) IsShort() bool { return p.SignedSize.IsNegative() }

// AccountState is read fresh for every signal.
type AccountState struct {
	Equity          decimal.Decimal
	AvailableMargin decimal.Decimal
	OpenPosition    mo.Option[Position]
}

// HasOpenPosition reports whether a non-zero position exists.
func (s AccountState) HasOpenPosition() bool {
	p, ok := s.OpenPosition.Get()
	return ok && p.IsOpen()
}

type MarketPrice struct {
	Coin      string
	MarkPrice decimal.Decimal
}

type TimeInForce string

const (
	TifIoc TimeInForce = "Ioc"
	TifGtc TimeInForce = "Gtc"
	TifAlo TimeInForce = "Alo"
)

// OrderIntent is the exchange-neutral order derived from one signal.
type OrderIntent struct {
	Coin          string
	Asset         int
	IsBuy         bool
	Size          decimal.Decimal
	PriceHint     mo.Option[decimal.Decimal]
	ReduceOnly    bool
	TimeInForce   TimeInForce
	ClientOrderID string
}

func (o OrderIntent) Validate() error {
	if !o.Size.IsPositive() {
		return errs.New(errs.SizeBelowMinimum, "order intent", "size must be positive, got %s", o.Size)
	}
	if _, ok := o.PriceHint.Get(); !ok {
		return fmt.Errorf("order intent: price hint required for limit orders")
	}
	return nil
}

type LeverageUpdate struct {
	Asset    int
	Leverage int
	IsCross  bool
}

// Result is the raw outcome of one exchange call. Parsed is None whenever the
// body is not valid JSON; RawBody is always kept for diagnosis.
type Result struct {
	HTTPStatus int
	RawBody    []byte
	Parsed     mo.Option[json.RawMessage]
}

// NewResult captures status and body, parsing the body only if it is valid JSON.
func NewResult(status int, body []byte) Result {
	res := Result{HTTPStatus: status, RawBody: body}
	if len(body) > 0 && json.Valid(body) {
		res.Parsed = mo.Some(json.RawMessage(body))
	}
	return res
}

// Snippet returns the body trimmed for error messages.
func (r Result) Snippet() string {
	s := strings.TrimSpace(string(r.RawBody))
	if len(s) > 256 {
		return s[:256] + "..."
	}
	return s
}

// JSON returns the parsed body or a typed error explaining why it is unusable.
func (r Result) JSON(op string) (json.RawMessage, error) {
	switch {
	case r.HTTPStatus >= 500:
		return nil, errs.New(errs.UpstreamUnavailable, op, "http %d: %s", r.HTTPStatus, r.Snippet())
	case r.HTTPStatus/100 != 2:
		return nil, errs.New(errs.ExchangeRejected, op, "http %d: %s", r.HTTPStatus, r.Snippet())
	}
	body, ok := r.Parsed.Get()
	if !ok {
		return nil, errs.New(errs.UpstreamMalformed, op, "non-JSON response: %s", r.Snippet())
	}
	return body, nil
}

type OrderStatus string

const (
	OrderFilled  OrderStatus = "filled"
	OrderResting OrderStatus = "resting"
)

// OrderResult is the decoded status of one accepted order.
type OrderResult struct {
	Status     OrderStatus     `json:"status"`
	OrderID    int64           `json:"oid"`
	FilledSize decimal.Decimal `json:"filled_size"`
	AvgPrice   decimal.Decimal `json:"avg_price"`
}
