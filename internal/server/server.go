// Package server exposes the webhook, health and metrics endpoints.
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"hl-signal-bot/internal/errs"
	"hl-signal-bot/internal/exchange"
	"hl-signal-bot/internal/execution"
)

const maxWebhookBody = 64 << 10

type Config struct {
	Addr string
}

// Executor runs one validated signal.
type Executor interface {
	Execute(ctx context.Context, sig exchange.Signal) (execution.Outcome, error)
}

type webhookRequest struct {
	Side *string `json:"side"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func NewMux(state *State, exec Executor, log *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /webhook", func(w http.ResponseWriter, r *http.Request) {
		sig, ok := decodeSignal(w, r)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid payload"})
			return
		}
		state.TouchSignal(time.Now())

		// a caller hanging up must not abort an order halfway; outbound calls carry their own timeouts
		out, err := exec.Execute(context.WithoutCancel(r.Context()), sig)
		if err != nil {
			kind := errs.KindOf(err)
			msg := "execution failed"
			if kind == errs.InvalidSignal {
				msg = "invalid payload"
			}
			writeJSON(w, kind.HTTPStatus(), errorResponse{
				Error:     msg,
				Kind:      string(kind),
				Details:   err.Error(),
				RequestID: out.RequestID,
			})
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"uptime_sec": int64(state.Uptime().Seconds()),
		})
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !state.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"ready":          state.Ready(),
			"wsConnected":    state.WSConnected(),
			"uptimeSec":      int64(state.Uptime().Seconds()),
			"lastSignalUnix": unixOrZero(state.LastSignal()),
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

func decodeSignal(w http.ResponseWriter, r *http.Request) (exchange.Signal, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		return exchange.Signal{}, false
	}
	var req webhookRequest
	if err := sonic.Unmarshal(body, &req); err != nil || req.Side == nil {
		return exchange.Signal{}, false
	}
	side, err := exchange.ParseSide(*req.Side)
	if err != nil {
		return exchange.Signal{}, false
	}
	return exchange.Signal{Side: side}, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func RunHTTP(lc fx.Lifecycle, cfg Config, mux *http.ServeMux, state *State, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return err
			}
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			state.SetReady(true)
			log.Info("http server listening", zap.String("addr", ln.Addr().String()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			state.SetReady(false)
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("server",
		fx.Provide(NewMux),
		fx.Invoke(RunHTTP),
	)
}
