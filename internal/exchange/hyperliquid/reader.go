package hyperliquid

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"
	"github.com/samber/mo"
	"github.com/shopspring/decimal"

	"hl-signal-bot/internal/errs"
	"hl-signal-bot/internal/exchange"
)

// Reader fetches account and market state through the info endpoint.
// It never retries; each call is bounded by timeout.
type Reader struct {
	transport exchange.Transport
	timeout   time.Duration
}

func NewReader(t exchange.Transport, timeout time.Duration) *Reader {
	return &Reader{transport: t, timeout: timeout}
}

var _ exchange.Reader = (*Reader)(nil)

func (r *Reader) FetchState(ctx context.Context, account string, inst exchange.Instrument) (exchange.AccountState, error) {
	const op = "fetch state"
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.transport.Post(ctx, exchange.EndpointInfo, infoRequest{Type: "clearinghouseState", User: account})
	if err != nil {
		return exchange.AccountState{}, err
	}
	body, err := res.JSON(op)
	if err != nil {
		return exchange.AccountState{}, err
	}
	return parseClearinghouseState(body, inst.Coin)
}

func parseClearinghouseState(body json.RawMessage, coin string) (exchange.AccountState, error) {
	const op = "fetch state"
	var raw clearinghouseState
	if err := sonic.Unmarshal(body, &raw); err != nil {
		return exchange.AccountState{}, errs.New(errs.UpstreamMalformed, op, "decode clearinghouse state: %v", err)
	}

	shape, summary := raw.summary()
	if shape == shapeUnrecognized {
		return exchange.AccountState{}, errs.New(errs.UpstreamMalformed, op, "no accountValue in response")
	}
	equity, err := decimal.NewFromString(*summary.AccountValue)
	if err != nil {
		return exchange.AccountState{}, errs.New(errs.UpstreamMalformed, op, "accountValue %q", *summary.AccountValue)
	}
	if !equity.IsPositive() {
		return exchange.AccountState{}, errs.New(errs.ZeroBalance, op, "equity %s", equity)
	}

	st := exchange.AccountState{Equity: equity}
	if raw.Withdrawable != "" {
		avail, err := decimal.NewFromString(raw.Withdrawable)
		if err != nil {
			return exchange.AccountState{}, errs.New(errs.UpstreamMalformed, op, "withdrawable %q", raw.Withdrawable)
		}
		st.AvailableMargin = avail
	}
	for _, ap := range raw.AssetPositions {
		if ap.Position.Coin != coin {
			continue
		}
		szi, err := decimal.NewFromString(ap.Position.Szi)
		if err != nil {
			return exchange.AccountState{}, errs.New(errs.UpstreamMalformed, op, "position szi %q", ap.Position.Szi)
		}
		st.OpenPosition = mo.Some(exchange.Position{Coin: coin, SignedSize: szi})
		break
	}
	return st, nil
}

func (r *Reader) FetchMarkPrice(ctx context.Context, inst exchange.Instrument) (exchange.MarketPrice, error) {
	const op = "fetch mark price"
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.transport.Post(ctx, exchange.EndpointInfo, infoRequest{Type: "metaAndAssetCtxs"})
	if err != nil {
		return exchange.MarketPrice{}, err
	}
	body, err := res.JSON(op)
	if err != nil {
		return exchange.MarketPrice{}, err
	}
	return parseMarkPrice(body, inst)
}

func parseMarkPrice(body json.RawMessage, inst exchange.Instrument) (exchange.MarketPrice, error) {
	const op = "fetch mark price"
	var parts []json.RawMessage
	if err := sonic.Unmarshal(body, &parts); err != nil || len(parts) != 2 {
		return exchange.MarketPrice{}, errs.New(errs.UpstreamMalformed, op, "expected [meta, assetCtxs]")
	}
	var meta struct {
		Universe []universeEntry `json:"universe"`
	}
	if err := sonic.Unmarshal(parts[0], &meta); err != nil {
		return exchange.MarketPrice{}, errs.New(errs.UpstreamMalformed, op, "decode meta: %v", err)
	}
	var ctxs []assetCtx
	if err := sonic.Unmarshal(parts[1], &ctxs); err != nil {
		return exchange.MarketPrice{}, errs.New(errs.UpstreamMalformed, op, "decode asset contexts: %v", err)
	}

	idx := inst.Asset
	if idx < 0 || idx >= len(meta.Universe) || meta.Universe[idx].Name != inst.Coin {
		idx = -1
		for i, u := range meta.Universe {
			if u.Name == inst.Coin {
				idx = i
				break
			}
		}
	}
	if idx < 0 || idx >= len(ctxs) {
		return exchange.MarketPrice{}, errs.New(errs.UpstreamMalformed, op, "no asset context for %s", inst.Coin)
	}
	if ctxs[idx].MarkPx == nil {
		return exchange.MarketPrice{}, errs.New(errs.UpstreamMalformed, op, "no markPx for %s", inst.Coin)
	}
	px, err := decimal.NewFromString(*ctxs[idx].MarkPx)
	if err != nil {
		return exchange.MarketPrice{}, errs.New(errs.UpstreamMalformed, op, "markPx %q", *ctxs[idx].MarkPx)
	}
	if !px.IsPositive() {
		return exchange.MarketPrice{}, errs.New(errs.InvalidMarketPrice, op, "markPx %s for %s", px, inst.Coin)
	}
	return exchange.MarketPrice{Coin: inst.Coin, MarkPrice: px}, nil
}
