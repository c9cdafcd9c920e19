package hyperliquid

import (
	"context"
	"time"

	"go.uber.org/zap"

	"hl-signal-bot/internal/errs"
	"hl-signal-bot/internal/exchange"
)

// Client signs actions and dispatches them to /exchange.
type Client struct {
	transport exchange.Transport
	signer    *Signer
	nonces    *NonceSource
	timeout   time.Duration
	log       *zap.Logger
}

func NewClient(t exchange.Transport, signer *Signer, nonces *NonceSource, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		transport: t,
		signer:    signer,
		nonces:    nonces,
		timeout:   timeout,
		log:       log,
	}
}

// Implement Trader interface
var _ exchange.Trader = (*Client)(nil)

func (c *Client) PlaceOrder(ctx context.Context, intent exchange.OrderIntent) (*exchange.OrderResult, error) {
	const op = "place order"
	action, err := newOrderAction(intent)
	if err != nil {
		return nil, err
	}

	res, err := c.send(ctx, action)
	if err != nil {
		return nil, err
	}
	body, err := res.JSON(op)
	if err != nil {
		return nil, err
	}
	return decodeActionResponse(body).orderResult(op)
}

func (c *Client) UpdateLeverage(ctx context.Context, update exchange.LeverageUpdate) error {
	const op = "update leverage"
	if update.Leverage < 1 {
		return errs.New(errs.ExchangeRejected, op, "leverage must be >= 1, got %d", update.Leverage)
	}
	res, err := c.send(ctx, newUpdateLeverageAction(update))
	if err != nil {
		return err
	}
	body, err := res.JSON(op)
	if err != nil {
		return err
	}
	return decodeActionResponse(body).ack(op)
}

// send issues a nonce, signs and posts one action. The nonce is taken
// immediately before signing so concurrent callers never share one.
func (c *Client) send(ctx context.Context, action any) (exchange.Result, error) {
	nonce := c.nonces.Next()
	sig, err := c.signer.SignL1Action(action, nonce)
	if err != nil {
		return exchange.Result{}, err
	}

	req := exchangeRequest{Action: action, Nonce: nonce, Signature: sig}
	if vault, ok := c.signer.Vault().Get(); ok {
		addr := vault.Hex()
		req.VaultAddress = &addr
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.log.Debug("dispatching action", zap.Uint64("nonce", nonce), zap.String("signer", c.signer.Address().Hex()))
	res, err := c.transport.Post(ctx, exchange.EndpointExchange, req)
	if err != nil {
		return exchange.Result{}, err
	}
	c.log.Debug("exchange response", zap.Int("status", res.HTTPStatus), zap.String("body", res.Snippet()))
	return res, nil
}
