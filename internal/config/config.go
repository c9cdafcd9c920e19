package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/sonirico/go-hyperliquid"
	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Exchange   ExchangeConfig   `mapstructure:"exchange"`
	Instrument InstrumentConfig `mapstructure:"instrument"`
	Sizing     SizingConfig     `mapstructure:"sizing"`
	Execution  ExecutionConfig  `mapstructure:"execution"`
}

type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
	Port     int    `mapstructure:"port"`
}

const (
	TransportHTTP = "http"
	TransportWS   = "ws"
)

type ExchangeConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	WSURL          string        `mapstructure:"ws_url"`
	Transport      string        `mapstructure:"transport"`
	PrivateKey     string        `mapstructure:"private_key"`
	AccountAddress string        `mapstructure:"account_address"`
	VaultAddress   string        `mapstructure:"vault_address"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type InstrumentConfig struct {
	Coin string `mapstructure:"coin"`
}

type SizingConfig struct {
	MarginFraction float64 `mapstructure:"margin_fraction"`
	Leverage       int     `mapstructure:"leverage"`
	MinNotional    float64 `mapstructure:"min_notional"`
	Slippage       float64 `mapstructure:"slippage"`
}

const (
	ShortModeClose     = "close"
	ShortModeOpenShort = "open_short"
)

type ExecutionConfig struct {
	ShortMode     string `mapstructure:"short_mode"`
	PositionGuard bool   `mapstructure:"position_guard"`
	SetLeverage   bool   `mapstructure:"set_leverage"`
	CrossMargin   bool   `mapstructure:"cross_margin"`
}

// envAliases binds the variable names used by existing deployments on top of
// the EXCHANGE_PRIVATE_KEY style names AutomaticEnv derives.
var envAliases = map[string][]string{
	"exchange.private_key":     {"EXCHANGE_PRIVATE_KEY", "HL_PRIVATE_KEY", "PRIVATE_KEY"},
	"exchange.account_address": {"EXCHANGE_ACCOUNT_ADDRESS", "HL_ACCOUNT", "ACCOUNT"},
	"app.port":                 {"APP_PORT", "PORT"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.port", 10000)
	v.SetDefault("exchange.base_url", hyperliquid.MainnetAPIURL)
	v.SetDefault("exchange.ws_url", "")
	v.SetDefault("exchange.transport", TransportHTTP)
	v.SetDefault("exchange.private_key", "")
	v.SetDefault("exchange.account_address", "")
	v.SetDefault("exchange.vault_address", "")
	v.SetDefault("exchange.request_timeout", 10*time.Second)
	v.SetDefault("instrument.coin", "BTC")
	v.SetDefault("sizing.margin_fraction", 0.95)
	v.SetDefault("sizing.leverage", 1)
	v.SetDefault("sizing.min_notional", 10.0)
	v.SetDefault("sizing.slippage", 0.05)
	v.SetDefault("execution.short_mode", ShortModeClose)
	v.SetDefault("execution.position_guard", true)
	v.SetDefault("execution.set_leverage", false)
	v.SetDefault("execution.cross_margin", true)
}

// LoadConfig reads config.yaml from path (optional), a local .env file
// (optional) and the environment, then validates the result.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate normalizes and checks the configuration. It fills AccountAddress
// from the signing key when unset.
func (c *Config) Validate() error {
	key, err := ParsePrivateKey(c.Exchange.PrivateKey)
	if err != nil {
		return err
	}
	if c.Exchange.AccountAddress == "" {
		c.Exchange.AccountAddress = crypto.PubkeyToAddress(key.PublicKey).Hex()
	}
	if !common.IsHexAddress(c.Exchange.AccountAddress) {
		return fmt.Errorf("exchange.account_address %q is not a hex address", c.Exchange.AccountAddress)
	}
	if c.Exchange.VaultAddress != "" && !common.IsHexAddress(c.Exchange.VaultAddress) {
		return fmt.Errorf("exchange.vault_address %q is not a hex address", c.Exchange.VaultAddress)
	}
	if c.Exchange.BaseURL == "" {
		return errors.New("exchange.base_url is required")
	}
	switch c.Exchange.Transport {
	case TransportHTTP:
	case TransportWS:
		if c.Exchange.WSURL == "" {
			c.Exchange.WSURL = WSURLFromBase(c.Exchange.BaseURL)
		}
	default:
		return fmt.Errorf("exchange.transport must be %q or %q, got %q", TransportHTTP, TransportWS, c.Exchange.Transport)
	}
	if c.Exchange.RequestTimeout <= 0 {
		return errors.New("exchange.request_timeout must be positive")
	}
	if strings.TrimSpace(c.Instrument.Coin) == "" {
		return errors.New("instrument.coin is required")
	}
	if c.Sizing.MarginFraction <= 0 || c.Sizing.MarginFraction > 1 {
		return fmt.Errorf("sizing.margin_fraction must be in (0, 1], got %v", c.Sizing.MarginFraction)
	}
	if c.Sizing.Leverage < 1 {
		return fmt.Errorf("sizing.leverage must be >= 1, got %d", c.Sizing.Leverage)
	}
	if c.Sizing.MinNotional < 0 {
		return fmt.Errorf("sizing.min_notional must be >= 0, got %v", c.Sizing.MinNotional)
	}
	if c.Sizing.Slippage <= 0 || c.Sizing.Slippage >= 1 {
		return fmt.Errorf("sizing.slippage must be in (0, 1), got %v", c.Sizing.Slippage)
	}
	switch c.Execution.ShortMode {
	case ShortModeClose, ShortModeOpenShort:
	default:
		return fmt.Errorf("execution.short_mode must be %q or %q, got %q", ShortModeClose, ShortModeOpenShort, c.Execution.ShortMode)
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("app.port out of range: %d", c.App.Port)
	}
	return nil
}

// ParsePrivateKey accepts a hex key with or without one 0x prefix.
func ParsePrivateKey(raw string) (*ecdsa.PrivateKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("exchange.private_key is required")
	}
	if strings.HasPrefix(strings.ToLower(raw), "0x0x") {
		return nil, errors.New("exchange.private_key has a double 0x prefix")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X"))
	if err != nil {
		return nil, fmt.Errorf("exchange.private_key is not a valid secp256k1 hex key: %w", err)
	}
	return key, nil
}

// IsMainnet reports whether the base URL points at mainnet.
func (c ExchangeConfig) IsMainnet() bool {
	return !strings.Contains(strings.ToLower(c.BaseURL), "testnet")
}

// WSURLFromBase derives the socket endpoint from the REST base URL.
func WSURLFromBase(base string) string {
	u := strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}
