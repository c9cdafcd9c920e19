package hyperliquid

import (
	"encoding/json"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"hl-signal-bot/internal/errs"
	"hl-signal-bot/internal/exchange"
)

// ---------- /exchange responses ----------

type responseKind int

const (
	respUnrecognized responseKind = iota
	respOrder
	respDefault
	respError
)

type filledWire struct {
	TotalSz string `json:"totalSz"`
	AvgPx   string `json:"avgPx"`
	Oid     int64  `json:"oid"`
}

type restingWire struct {
	Oid int64 `json:"oid"`
}

type orderStatusWire struct {
	Filled  *filledWire  `json:"filled"`
	Resting *restingWire `json:"resting"`
	Error   *string      `json:"error"`
}

type actionResponse struct {
	Kind     responseKind
	Statuses []orderStatusWire
	Message  string
}

// decodeActionResponse classifies an /exchange body into one of the known shapes.
func decodeActionResponse(body json.RawMessage) actionResponse {
	var env struct {
		Status   string          `json:"status"`
		Response json.RawMessage `json:"response"`
	}
	if err := sonic.Unmarshal(body, &env); err != nil {
		return actionResponse{Kind: respUnrecognized, Message: err.Error()}
	}

	switch env.Status {
	case "err":
		var msg string
		if err := sonic.Unmarshal(env.Response, &msg); err != nil {
			msg = strings.TrimSpace(string(env.Response))
		}
		return actionResponse{Kind: respError, Message: msg}
	case "ok":
	default:
		return actionResponse{Kind: respUnrecognized, Message: "status " + env.Status}
	}

	var inner struct {
		Type string `json:"type"`
		Data *struct {
			Statuses []orderStatusWire `json:"statuses"`
		} `json:"data"`
	}
	if err := sonic.Unmarshal(env.Response, &inner); err != nil {
		return actionResponse{Kind: respUnrecognized, Message: err.Error()}
	}
	switch inner.Type {
	case "order":
		if inner.Data == nil {
			return actionResponse{Kind: respUnrecognized, Message: "order response without data"}
		}
		return actionResponse{Kind: respOrder, Statuses: inner.Data.Statuses}
	case "default":
		return actionResponse{Kind: respDefault}
	}
	return actionResponse{Kind: respUnrecognized, Message: "response type " + inner.Type}
}

func (r actionResponse) orderResult(op string) (*exchange.OrderResult, error) {
	switch r.Kind {
	case respError:
		return nil, errs.New(errs.ExchangeRejected, op, "%s", r.Message)
	case respOrder:
	default:
		return nil, errs.New(errs.UpstreamMalformed, op, "unexpected response: %s", r.Message)
	}
	if len(r.Statuses) == 0 {
		return nil, errs.New(errs.UpstreamMalformed, op, "order response has no statuses")
	}

	st := r.Statuses[0]
	switch {
	case st.Error != nil:
		return nil, errs.New(errs.ExchangeRejected, op, "%s", *st.Error)
	case st.Filled != nil:
		sz, err := decimal.NewFromString(st.Filled.TotalSz)
		if err != nil {
			return nil, errs.New(errs.UpstreamMalformed, op, "filled totalSz %q", st.Filled.TotalSz)
		}
		px, err := decimal.NewFromString(st.Filled.AvgPx)
		if err != nil {
			return nil, errs.New(errs.UpstreamMalformed, op, "filled avgPx %q", st.Filled.AvgPx)
		}
		return &exchange.OrderResult{Status: exchange.OrderFilled, OrderID: st.Filled.Oid, FilledSize: sz, AvgPrice: px}, nil
	case st.Resting != nil:
		return &exchange.OrderResult{Status: exchange.OrderResting, OrderID: st.Resting.Oid}, nil
	}
	return nil, errs.New(errs.UpstreamMalformed, op, "order status has no known field")
}

func (r actionResponse) ack(op string) error {
	switch r.Kind {
	case respDefault:
		return nil
	case respError:
		return errs.New(errs.ExchangeRejected, op, "%s", r.Message)
	}
	return errs.New(errs.UpstreamMalformed, op, "unexpected response: %s", r.Message)
}

// ---------- /info responses ----------

type marginSummary struct {
	AccountValue    *string `json:"accountValue"`
	TotalMarginUsed string  `json:"totalMarginUsed"`
}

type assetPosition struct {
	Position struct {
		Coin string `json:"coin"`
		Szi  string `json:"szi"`
	} `json:"position"`
}

type clearinghouseState struct {
	MarginSummary      *marginSummary  `json:"marginSummary"`
	CrossMarginSummary *marginSummary  `json:"crossMarginSummary"`
	Withdrawable       string          `json:"withdrawable"`
	AssetPositions     []assetPosition `json:"assetPositions"`
}

type stateShape int

const (
	shapeUnrecognized stateShape = iota
	shapeMarginSummary
	shapeCrossMarginSummary
)

// summary picks the equity-bearing summary. Current payloads carry
// marginSummary; older ones only crossMarginSummary.
func (s clearinghouseState) summary() (stateShape, *marginSummary) {
	switch {
	case s.MarginSummary != nil && s.MarginSummary.AccountValue != nil:
		return shapeMarginSummary, s.MarginSummary
	case s.CrossMarginSummary != nil && s.CrossMarginSummary.AccountValue != nil:
		return shapeCrossMarginSummary, s.CrossMarginSummary
	}
	return shapeUnrecognized, nil
}

type assetCtx struct {
	MarkPx *string `json:"markPx"`
	MidPx  *string `json:"midPx"`
}

type universeEntry struct {
	Name       string `json:"name"`
	SzDecimals int    `json:"szDecimals"`
}
