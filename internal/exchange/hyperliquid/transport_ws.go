package hyperliquid

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bytedance/sonic"

	"hl-signal-bot/internal/errs"
	"hl-signal-bot/internal/exchange"
	"hl-signal-bot/internal/metrics"
	"hl-signal-bot/pkg/ws"
)

// WSTransport carries info and action requests over the websocket post
// channel. Responses are normalized into the same Result shape the HTTP
// transport produces.
type WSTransport struct {
	client *ws.Client
}

func NewWSTransport(client *ws.Client) *WSTransport {
	return &WSTransport{client: client}
}

var _ exchange.Transport = (*WSTransport)(nil)

func (t *WSTransport) Post(ctx context.Context, endpoint exchange.Endpoint, payload any) (exchange.Result, error) {
	op := "ws post " + string(endpoint)
	reqType := "info"
	if endpoint == exchange.EndpointExchange {
		reqType = "action"
	}

	resp, err := t.client.Post(ctx, ws.PostRequest{Type: reqType, Payload: payload})
	if err != nil {
		metrics.ExchangeRequestsTotal.WithLabelValues(string(endpoint), "error").Inc()
		switch {
		case errors.Is(err, ws.ErrNotReady):
			return exchange.Result{}, errs.Wrap(errs.TransportNotReady, op, err)
		case errors.Is(err, context.DeadlineExceeded):
			return exchange.Result{}, errs.Wrap(errs.UpstreamTimeout, op, err)
		}
		return exchange.Result{}, errs.Wrap(errs.UpstreamUnavailable, op, err)
	}
	metrics.ExchangeRequestsTotal.WithLabelValues(string(endpoint), resp.Type).Inc()

	switch resp.Type {
	case "info":
		var inner struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := sonic.Unmarshal(resp.Payload, &inner); err != nil {
			return exchange.Result{}, errs.New(errs.UpstreamMalformed, op, "decode info payload: %v", err)
		}
		return exchange.NewResult(http.StatusOK, inner.Data), nil
	case "action":
		return exchange.NewResult(http.StatusOK, resp.Payload), nil
	case "error":
		return exchange.NewResult(http.StatusBadRequest, resp.Payload), nil
	}
	return exchange.Result{}, errs.New(errs.UpstreamMalformed, op, "unknown response type %q", resp.Type)
}
