package hyperliquid

import (
	"context"
	"fmt"
	"strings"

	"github.com/sonirico/go-hyperliquid"

	"hl-signal-bot/internal/exchange"
)

type assetMeta struct {
	Name        string
	SzDecimals  int
	MaxLeverage int
}

// LoadInstrument resolves the coin's asset index and size decimals from the
// exchange universe. Called once at startup; failures are fatal there.
func LoadInstrument(ctx context.Context, baseURL, symbol string) (exchange.Instrument, error) {
	// NewInfo(ctx, baseURL, skipWS, meta, spotMeta, opts...)
	info := hyperliquid.NewInfo(ctx, baseURL, true, nil, nil)

	meta, err := info.Meta(ctx)
	if err != nil {
		return exchange.Instrument{}, fmt.Errorf("fetch meta: %w", err)
	}

	assets := make([]assetMeta, 0, len(meta.Universe))
	for _, a := range meta.Universe {
		assets = append(assets, assetMeta{Name: a.Name, SzDecimals: a.SzDecimals, MaxLeverage: a.MaxLeverage})
	}
	return findInstrument(assets, symbol)
}

// NormalizeCoin maps "BTC-USD", "BTC-USDC" or "BTC-PERP" onto the exchange coin name.
func NormalizeCoin(symbol string) string {
	s := strings.TrimSpace(symbol)
	for _, suffix := range []string{"-USDC", "-USD", "-PERP"} {
		s = strings.TrimSuffix(s, suffix)
	}
	return s
}

func findInstrument(assets []assetMeta, symbol string) (exchange.Instrument, error) {
	coin := NormalizeCoin(symbol)
	for i, a := range assets {
		if a.Name == coin {
			return exchange.Instrument{
				Coin:        coin,
				Asset:       i,
				SzDecimals:  a.SzDecimals,
				MaxLeverage: a.MaxLeverage,
			}, nil
		}
	}
	return exchange.Instrument{}, fmt.Errorf("symbol %s not found in universe", coin)
}
