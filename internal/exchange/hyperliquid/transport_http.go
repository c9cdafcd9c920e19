package hyperliquid

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"hl-signal-bot/internal/errs"
	"hl-signal-bot/internal/exchange"
	"hl-signal-bot/internal/metrics"
)

const maxResponseBytes = 4 << 20

// HTTPTransport posts JSON to {baseURL}/info and {baseURL}/exchange.
type HTTPTransport struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewHTTPTransport(baseURL string, timeout time.Duration, log *zap.Logger) *HTTPTransport {
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

var _ exchange.Transport = (*HTTPTransport)(nil)

func (t *HTTPTransport) Post(ctx context.Context, endpoint exchange.Endpoint, payload any) (exchange.Result, error) {
	op := "post /" + string(endpoint)
	body, err := sonic.Marshal(payload)
	if err != nil {
		return exchange.Result{}, errs.Wrap(errs.SigningFailure, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/"+string(endpoint), bytes.NewReader(body))
	if err != nil {
		return exchange.Result{}, errs.Wrap(errs.UpstreamUnavailable, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		metrics.ExchangeRequestsTotal.WithLabelValues(string(endpoint), "error").Inc()
		return exchange.Result{}, classifyTransportError(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.ExchangeRequestsTotal.WithLabelValues(string(endpoint), "error").Inc()
		return exchange.Result{}, classifyTransportError(op, err)
	}
	metrics.ExchangeRequestsTotal.WithLabelValues(string(endpoint), strconv.Itoa(resp.StatusCode)).Inc()

	res := exchange.NewResult(resp.StatusCode, raw)
	if !res.Parsed.IsPresent() {
		t.log.Warn("non-JSON response from exchange",
			zap.String("endpoint", string(endpoint)),
			zap.Int("status", resp.StatusCode),
			zap.String("body", res.Snippet()))
	}
	return res, nil
}

func classifyTransportError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.UpstreamTimeout, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errs.Wrap(errs.UpstreamTimeout, op, err)
	}
	return errs.Wrap(errs.UpstreamUnavailable, op, err)
}
