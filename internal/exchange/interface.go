package exchange

import (
	"context"
)

// Reader is the read side of the exchange: authoritative account and market state.
type Reader interface {
	FetchState(ctx context.Context, account string, inst Instrument) (AccountState, error)
	FetchMarkPrice(ctx context.Context, inst Instrument) (MarketPrice, error)
}

// Trader is the write side: signed actions dispatched to the exchange.
type Trader interface {
	PlaceOrder(ctx context.Context, intent OrderIntent) (*OrderResult, error)
	UpdateLeverage(ctx context.Context, update LeverageUpdate) error
}

// Endpoint names the exchange API surface a payload is posted to.
type Endpoint string

const (
	EndpointInfo     Endpoint = "info"
	EndpointExchange Endpoint = "exchange"
)

// Transport moves one request/response pair to the exchange. Non-2xx statuses
// and non-JSON bodies come back as a Result; only transport failures are errors.
type Transport interface {
	Post(ctx context.Context, endpoint Endpoint, payload any) (Result, error)
}
