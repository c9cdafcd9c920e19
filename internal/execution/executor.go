// Package execution runs one signal through read, size, sign and dispatch.
package execution

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"hl-signal-bot/internal/errs"
	"hl-signal-bot/internal/exchange"
	"hl-signal-bot/internal/metrics"
	"hl-signal-bot/internal/order"
	"hl-signal-bot/internal/sizing"
	"hl-signal-bot/internal/strategy"
)

const (
	StatusSent    = "sent"
	StatusSkipped = "skipped"
)

// Sizer computes the quantity for an opening order.
type Sizer interface {
	Quantity(equity, price decimal.Decimal, szDecimals int) (sizing.Quantity, error)
}

type Config struct {
	Account       string
	Instrument    exchange.Instrument
	Policy        strategy.SignalPolicy
	PositionGuard bool
	SetLeverage   bool
	Leverage      int
	CrossMargin   bool
}

// Outcome is returned to the webhook caller.
type Outcome struct {
	Status     string                `json:"status"`
	Reason     string                `json:"reason,omitempty"`
	RequestID  string                `json:"request_id"`
	Side       exchange.Side         `json:"side"`
	Intent     string                `json:"intent,omitempty"`
	Size       string                `json:"size,omitempty"`
	LimitPrice string                `json:"limit_price,omitempty"`
	Order      *exchange.OrderResult `json:"order,omitempty"`
}

type Executor struct {
	cfg     Config
	reader  exchange.Reader
	trader  exchange.Trader
	sizer   Sizer
	builder *order.Builder
	gate    *Gate
	log     *zap.Logger
	newID   func() string
}

func NewExecutor(cfg Config, reader exchange.Reader, trader exchange.Trader, sizer Sizer, builder *order.Builder, log *zap.Logger) *Executor {
	return &Executor{
		cfg:     cfg,
		reader:  reader,
		trader:  trader,
		sizer:   sizer,
		builder: builder,
		gate:    NewGate(),
		log:     log,
		newID:   uuid.NewString,
	}
}

// Execute handles one signal. The returned Outcome always carries the
// request id, also when err is non-nil.
func (e *Executor) Execute(ctx context.Context, sig exchange.Signal) (Outcome, error) {
	out := Outcome{RequestID: e.newID(), Side: sig.Side}
	log := e.log.With(zap.String("request_id", out.RequestID), zap.String("side", string(sig.Side)))

	if _, err := exchange.ParseSide(string(sig.Side)); err != nil {
		metrics.SignalsTotal.WithLabelValues("invalid", "rejected").Inc()
		return out, err
	}

	start := time.Now()
	defer func() {
		metrics.ExecutionDuration.WithLabelValues(string(sig.Side)).Observe(time.Since(start).Seconds())
	}()

	out, err := e.execute(ctx, sig, out, log)
	status := out.Status
	if err != nil {
		status = "failed"
		log.Error("signal failed", zap.String("kind", string(errs.KindOf(err))), zap.Error(err))
	}
	metrics.SignalsTotal.WithLabelValues(string(sig.Side), status).Inc()
	return out, err
}

func (e *Executor) execute(ctx context.Context, sig exchange.Signal, out Outcome, log *zap.Logger) (Outcome, error) {
	intent := e.cfg.Policy.Intent(sig.Side)
	out.Intent = intent.String()
	inst := e.cfg.Instrument

	release, err := e.gate.Acquire(ctx, e.cfg.Account)
	if err != nil {
		return out, err
	}
	defer release()

	st, err := e.reader.FetchState(ctx, e.cfg.Account, inst)
	if err != nil {
		return out, err
	}
	log.Info("account state",
		zap.String("equity", st.Equity.String()),
		zap.String("available", st.AvailableMargin.String()),
		zap.Bool("has_position", st.HasOpenPosition()))

	if e.cfg.PositionGuard {
		if reason := strategy.SkipReason(intent, st); reason != "" {
			log.Info("signal skipped", zap.String("intent", out.Intent), zap.String("reason", reason))
			out.Status = StatusSkipped
			out.Reason = reason
			return out, nil
		}
	}

	if e.cfg.SetLeverage && intent.Opens() {
		update := exchange.LeverageUpdate{Asset: inst.Asset, Leverage: e.cfg.Leverage, IsCross: e.cfg.CrossMargin}
		if err := e.trader.UpdateLeverage(ctx, update); err != nil {
			return out, err
		}
		log.Info("leverage set", zap.Int("leverage", update.Leverage), zap.Bool("cross", update.IsCross))
	}

	mark, err := e.reader.FetchMarkPrice(ctx, inst)
	if err != nil {
		return out, err
	}

	qty := sizing.CloseAll{}.Quantity()
	if intent.Opens() {
		if qty, err = e.sizer.Quantity(st.Equity, mark.MarkPrice, inst.SzDecimals); err != nil {
			return out, err
		}
	}

	o, err := e.builder.Build(intent, qty, mark, st)
	if err != nil {
		return out, err
	}
	out.Size = o.Size.String()
	if px, ok := o.PriceHint.Get(); ok {
		out.LimitPrice = px.String()
	}
	log.Info("placing order",
		zap.String("intent", out.Intent),
		zap.Bool("is_buy", o.IsBuy),
		zap.Bool("reduce_only", o.ReduceOnly),
		zap.String("size", out.Size),
		zap.String("mark", mark.MarkPrice.String()),
		zap.String("limit_price", out.LimitPrice),
		zap.String("cloid", o.ClientOrderID))

	res, err := e.trader.PlaceOrder(ctx, o)
	if err != nil {
		outcome := "error"
		if errs.Is(err, errs.ExchangeRejected) {
			outcome = "rejected"
		}
		metrics.OrdersTotal.WithLabelValues(string(sig.Side), outcome).Inc()
		return out, err
	}
	metrics.OrdersTotal.WithLabelValues(string(sig.Side), string(res.Status)).Inc()
	log.Info("order accepted",
		zap.String("status", string(res.Status)),
		zap.Int64("oid", res.OrderID),
		zap.String("filled", res.FilledSize.String()),
		zap.String("avg_px", res.AvgPrice.String()))

	out.Status = StatusSent
	out.Order = res
	return out, nil
}
