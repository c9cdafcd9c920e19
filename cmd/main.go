package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"hl-signal-bot/internal/config"
	"hl-signal-bot/internal/exchange"
	"hl-signal-bot/internal/exchange/hyperliquid"
	"hl-signal-bot/internal/execution"
	"hl-signal-bot/internal/order"
	"hl-signal-bot/internal/server"
	"hl-signal-bot/internal/sizing"
	"hl-signal-bot/internal/strategy"
	"hl-signal-bot/pkg/logger"
	"hl-signal-bot/pkg/ws"
)

func main() {
	app := fx.New(
		fx.Provide(
			func() (*config.Config, error) { return config.LoadConfig("config") },
			newLogger,
			newSigner,
			hyperliquid.NewNonceSource,
			newServerState,
			newServerConfig,
			newTransport,
			newInstrument,
			newReader,
			newClient,
			newExecutor,
			func(e *execution.Executor) server.Executor { return e },
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		server.Module(),
		fx.Invoke(logStartup),
	)
	app.Run()
}

func newLogger(lc fx.Lifecycle, cfg *config.Config) (*zap.Logger, error) {
	log, err := logger.New(cfg.App.LogLevel)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = log.Sync()
			return nil
		},
	})
	return log, nil
}

func newSigner(cfg *config.Config) (*hyperliquid.Signer, error) {
	key, err := config.ParsePrivateKey(cfg.Exchange.PrivateKey)
	if err != nil {
		return nil, err
	}
	return hyperliquid.NewSigner(key, cfg.Exchange.IsMainnet(), cfg.Exchange.VaultAddress), nil
}

func newServerState(cfg *config.Config) *server.State {
	return server.NewState(cfg.Exchange.Transport == config.TransportWS)
}

func newServerConfig(cfg *config.Config) server.Config {
	return server.Config{Addr: fmt.Sprintf(":%d", cfg.App.Port)}
}

func newTransport(lc fx.Lifecycle, cfg *config.Config, state *server.State, log *zap.Logger) exchange.Transport {
	if cfg.Exchange.Transport != config.TransportWS {
		return hyperliquid.NewHTTPTransport(cfg.Exchange.BaseURL, cfg.Exchange.RequestTimeout, log)
	}

	client := ws.NewClient(cfg.Exchange.WSURL,
		ws.WithLogger(log.Named("ws")),
		ws.WithStateHook(func(s ws.State) { state.SetWSConnected(s == ws.StateOpen) }),
	)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// the start ctx expires once startup completes; the socket lives until OnStop
			client.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return hyperliquid.NewWSTransport(client)
}

func newInstrument(cfg *config.Config, log *zap.Logger) (exchange.Instrument, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.Exchange.RequestTimeout)
	defer cancel()

	inst, err := hyperliquid.LoadInstrument(ctx, cfg.Exchange.BaseURL, cfg.Instrument.Coin)
	if err != nil {
		return exchange.Instrument{}, fmt.Errorf("load instrument: %w", err)
	}
	if inst.MaxLeverage > 0 && cfg.Sizing.Leverage > inst.MaxLeverage {
		return exchange.Instrument{}, fmt.Errorf("sizing.leverage %d exceeds %s max leverage %d", cfg.Sizing.Leverage, inst.Coin, inst.MaxLeverage)
	}
	log.Info("instrument loaded",
		zap.String("coin", inst.Coin),
		zap.Int("asset", inst.Asset),
		zap.Int("sz_decimals", inst.SzDecimals),
		zap.Int("max_leverage", inst.MaxLeverage))
	return inst, nil
}

func newReader(cfg *config.Config, t exchange.Transport) *hyperliquid.Reader {
	return hyperliquid.NewReader(t, cfg.Exchange.RequestTimeout)
}

func newClient(cfg *config.Config, t exchange.Transport, signer *hyperliquid.Signer, nonces *hyperliquid.NonceSource, log *zap.Logger) *hyperliquid.Client {
	return hyperliquid.NewClient(t, signer, nonces, cfg.Exchange.RequestTimeout, log.Named("exchange"))
}

func newExecutor(cfg *config.Config, inst exchange.Instrument, reader *hyperliquid.Reader, client *hyperliquid.Client, log *zap.Logger) (*execution.Executor, error) {
	mode, err := strategy.ParseShortMode(cfg.Execution.ShortMode)
	if err != nil {
		return nil, err
	}
	// a vault trades on its own balance, so state is read for the vault
	account := cfg.Exchange.AccountAddress
	if cfg.Exchange.VaultAddress != "" {
		account = cfg.Exchange.VaultAddress
	}

	sizer := sizing.FullExposure{
		MarginFraction: decimal.NewFromFloat(cfg.Sizing.MarginFraction),
		Leverage:       cfg.Sizing.Leverage,
		MinNotional:    decimal.NewFromFloat(cfg.Sizing.MinNotional),
	}
	execCfg := execution.Config{
		Account:       account,
		Instrument:    inst,
		Policy:        strategy.SignalPolicy{Short: mode},
		PositionGuard: cfg.Execution.PositionGuard,
		SetLeverage:   cfg.Execution.SetLeverage,
		Leverage:      cfg.Sizing.Leverage,
		CrossMargin:   cfg.Execution.CrossMargin,
	}
	builder := order.NewBuilder(inst, cfg.Sizing.Slippage)
	return execution.NewExecutor(execCfg, reader, client, sizer, builder, log.Named("execution")), nil
}

func logStartup(cfg *config.Config, signer *hyperliquid.Signer, log *zap.Logger) {
	log.Info("hl-signal-bot configured",
		zap.String("signer", signer.Address().Hex()),
		zap.String("account", cfg.Exchange.AccountAddress),
		zap.String("vault", cfg.Exchange.VaultAddress),
		zap.Bool("mainnet", cfg.Exchange.IsMainnet()),
		zap.String("transport", cfg.Exchange.Transport),
		zap.String("coin", cfg.Instrument.Coin),
		zap.String("short_mode", cfg.Execution.ShortMode),
		zap.Int("leverage", cfg.Sizing.Leverage),
		zap.Duration("request_timeout", cfg.Exchange.RequestTimeout),
		zap.Time("started_at", time.Now()))
}
