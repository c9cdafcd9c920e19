// Command wscheck opens the exchange socket and runs the two reads a signal
// needs, to verify connectivity and credentials without placing an order.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"hl-signal-bot/internal/config"
	"hl-signal-bot/internal/exchange/hyperliquid"
	"hl-signal-bot/pkg/logger"
	"hl-signal-bot/pkg/ws"
)

func main() {
	cfg, err := config.LoadConfig("config")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	zl, err := logger.New(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inst, err := hyperliquid.LoadInstrument(ctx, cfg.Exchange.BaseURL, cfg.Instrument.Coin)
	if err != nil {
		zl.Fatal("load instrument", zap.Error(err))
	}

	wsURL := cfg.Exchange.WSURL
	if wsURL == "" {
		wsURL = config.WSURLFromBase(cfg.Exchange.BaseURL)
	}
	client := ws.NewClient(wsURL, ws.WithLogger(zl))
	client.Start(ctx)
	defer client.Close()

	deadline := time.Now().Add(10 * time.Second)
	for client.State() != ws.StateOpen {
		if time.Now().After(deadline) {
			zl.Fatal("socket did not open", zap.String("url", wsURL), zap.Error(client.LastError()))
		}
		time.Sleep(100 * time.Millisecond)
	}

	reader := hyperliquid.NewReader(hyperliquid.NewWSTransport(client), cfg.Exchange.RequestTimeout)

	st, err := reader.FetchState(ctx, cfg.Exchange.AccountAddress, inst)
	if err != nil {
		zl.Error("fetch state", zap.Error(err))
	} else {
		zl.Info("account state",
			zap.String("account", cfg.Exchange.AccountAddress),
			zap.String("equity", st.Equity.String()),
			zap.String("available", st.AvailableMargin.String()),
			zap.Bool("has_position", st.HasOpenPosition()))
	}

	px, err := reader.FetchMarkPrice(ctx, inst)
	if err != nil {
		zl.Error("fetch mark price", zap.Error(err))
		return
	}
	zl.Info("mark price", zap.String("coin", px.Coin), zap.String("mark", px.MarkPrice.String()))
}
