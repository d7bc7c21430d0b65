package ioc

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/KNICEX/trading-gateway/internal/service/exchange"
	"github.com/spf13/viper"
)

var ErrMissingCredentials = errors.New("binance api key and secret are required")

// GatewayConfig cex.binance 配置
type GatewayConfig struct {
	ApiKey        string               `mapstructure:"api_key"`
	ApiSecret     string               `mapstructure:"api_secret"`
	RetryCount    int                  `mapstructure:"retry_count"`
	RetryDelay    time.Duration        `mapstructure:"retry_delay"`
	MaxRetryDelay time.Duration        `mapstructure:"max_retry_delay"`
	TradingType   exchange.TradingType `mapstructure:"trading_type"`
	Leverage      int                  `mapstructure:"leverage"`
	MarginType    exchange.MarginType  `mapstructure:"margin_type"`
	Symbol        string               `mapstructure:"symbol"`
	// BaseURL / SpotBaseURL 覆盖默认的接口地址, 一般用于代理
	BaseURL     string        `mapstructure:"base_url"`
	SpotBaseURL string        `mapstructure:"spot_base_url"`
	Testnet     bool          `mapstructure:"testnet"`
	RecvWindow  time.Duration `mapstructure:"recv_window"`
	// RateLimit 每秒请求数, 0 表示不限制
	RateLimit float64 `mapstructure:"rate_limit"`
	// ClockSyncInterval 定时同步服务器时间的间隔
	ClockSyncInterval time.Duration `mapstructure:"clock_sync_interval"`
}

func setGatewayDefaults(v *viper.Viper) {
	v.SetDefault("cex.binance.retry_count", 3)
	v.SetDefault("cex.binance.retry_delay", time.Second)
	v.SetDefault("cex.binance.max_retry_delay", time.Minute)
	v.SetDefault("cex.binance.trading_type", string(exchange.TradingTypeFutures))
	v.SetDefault("cex.binance.leverage", 5)
	v.SetDefault("cex.binance.margin_type", string(exchange.MarginTypeIsolated))
	v.SetDefault("cex.binance.symbol", "BTCUSDT")
	v.SetDefault("cex.binance.recv_window", 10*time.Second)
	v.SetDefault("cex.binance.clock_sync_interval", 30*time.Minute)
}

// LoadGatewayConfig 从全局 viper 读取网关配置
func LoadGatewayConfig() (GatewayConfig, error) {
	return loadGatewayConfig(viper.GetViper())
}

func loadGatewayConfig(v *viper.Viper) (GatewayConfig, error) {
	setGatewayDefaults(v)

	// 整体反序列化才会合并默认值, UnmarshalKey 只取配置文件里的子树
	var root struct {
		Cex struct {
			Binance GatewayConfig `mapstructure:"binance"`
		} `mapstructure:"cex"`
	}
	if err := v.Unmarshal(&root); err != nil {
		return GatewayConfig{}, fmt.Errorf("unmarshal cex.binance: %w", err)
	}
	cfg := root.Cex.Binance
	cfg.TradingType = exchange.TradingType(strings.ToLower(string(cfg.TradingType)))
	cfg.MarginType = exchange.MarginType(strings.ToUpper(string(cfg.MarginType)))
	cfg.Symbol = strings.ToUpper(cfg.Symbol)

	if err := cfg.Validate(); err != nil {
		return GatewayConfig{}, err
	}
	return cfg, nil
}

func (c GatewayConfig) Validate() error {
	if c.ApiKey == "" || c.ApiSecret == "" {
		return ErrMissingCredentials
	}
	switch c.TradingType {
	case exchange.TradingTypeFutures, exchange.TradingTypeSpot:
	default:
		return fmt.Errorf("unknown trading_type %q", c.TradingType)
	}
	switch c.MarginType {
	case exchange.MarginTypeIsolated, exchange.MarginTypeCross:
	default:
		return fmt.Errorf("unknown margin_type %q", c.MarginType)
	}
	if c.Leverage <= 0 {
		return fmt.Errorf("leverage must be positive, got %d", c.Leverage)
	}
	if c.RetryCount <= 0 {
		return fmt.Errorf("retry_count must be positive, got %d", c.RetryCount)
	}
	// 用于 time.NewTicker, 非正数会 panic
	if c.ClockSyncInterval <= 0 {
		return fmt.Errorf("clock_sync_interval must be positive, got %s", c.ClockSyncInterval)
	}
	return nil
}

func (c GatewayConfig) TradingPair() exchange.TradingPair {
	return exchange.ParseTradingPair(c.Symbol)
}
