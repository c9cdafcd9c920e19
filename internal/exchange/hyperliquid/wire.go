package hyperliquid

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sonirico/go-hyperliquid"

	"hl-signal-bot/internal/exchange"
)

// exchangeRequest is the body posted to /exchange.
type exchangeRequest struct {
	Action       any       `json:"action"`
	Nonce        uint64    `json:"nonce"`
	Signature    Signature `json:"signature"`
	VaultAddress *string   `json:"vaultAddress,omitempty"`
}

type infoRequest struct {
	Type string `json:"type"`
	User string `json:"user,omitempty"`
}

func newOrderAction(intent exchange.OrderIntent) (hyperliquid.OrderAction, error) {
	if err := intent.Validate(); err != nil {
		return hyperliquid.OrderAction{}, err
	}
	px, _ := intent.PriceHint.Get()
	w := hyperliquid.OrderWire{
		Asset:      intent.Asset,
		IsBuy:      intent.IsBuy,
		LimitPx:    decimalToWire(px),
		Size:       decimalToWire(intent.Size),
		ReduceOnly: intent.ReduceOnly,
		OrderType: hyperliquid.OrderWireType{
			Limit: &hyperliquid.OrderWireTypeLimit{Tif: hyperliquid.Tif(intent.TimeInForce)},
		},
	}
	if intent.ClientOrderID != "" {
		cloid, err := toCloid(intent.ClientOrderID)
		if err != nil {
			return hyperliquid.OrderAction{}, err
		}
		w.Cloid = &cloid
	}
	return hyperliquid.OrderAction{Type: "order", Orders: []hyperliquid.OrderWire{w}, Grouping: "na"}, nil
}

func newUpdateLeverageAction(u exchange.LeverageUpdate) hyperliquid.UpdateLeverageAction {
	return hyperliquid.UpdateLeverageAction{
		Type:     "updateLeverage",
		Asset:    u.Asset,
		IsCross:  u.IsCross,
		Leverage: u.Leverage,
	}
}

// decimalToWire renders at most 8 decimals with trailing zeros removed.
func decimalToWire(v decimal.Decimal) string {
	s := v.Round(8).String()
	if s == "-0" {
		return "0"
	}
	return s
}

// toCloid maps a uuid onto the exchange's 16-byte hex client order id.
func toCloid(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("client order id %q: %w", id, err)
	}
	return hexutil.Encode(u[:]), nil
}
