package ioc

import (
	"log/slog"

	"github.com/KNICEX/trading-gateway/internal/service/exchange/binance"
	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
)

func InitFuturesCli(cfg GatewayConfig) *futures.Client {
	futures.UseTestnet = cfg.Testnet
	cli := futures.NewClient(cfg.ApiKey, cfg.ApiSecret)
	if cfg.BaseURL != "" {
		cli.BaseURL = cfg.BaseURL
	}
	return cli
}

func InitSpotCli(cfg GatewayConfig) *gobinance.Client {
	gobinance.UseTestnet = cfg.Testnet
	cli := gobinance.NewClient(cfg.ApiKey, cfg.ApiSecret)
	if cfg.SpotBaseURL != "" {
		cli.BaseURL = cfg.SpotBaseURL
	}
	return cli
}

// InitBinanceGateway 构建网关, 还未连接, 调用方需要执行 Connect
func InitBinanceGateway(cfg GatewayConfig, logger *slog.Logger, opts ...binance.Option) *binance.Gateway {
	futuresAPI := binance.NewFuturesAPI(InitFuturesCli(cfg), cfg.RecvWindow)
	spotAPI := binance.NewSpotAPI(InitSpotCli(cfg), cfg.RecvWindow)

	opts = append([]binance.Option{
		binance.WithLogger(logger.With("component", "binance_gateway")),
		binance.WithRateLimit(cfg.RateLimit, max(int(cfg.RateLimit), 1)),
	}, opts...)

	return binance.NewGateway(futuresAPI, spotAPI, binance.Config{
		TradingType:   cfg.TradingType,
		RetryCount:    cfg.RetryCount,
		RetryDelay:    cfg.RetryDelay,
		MaxRetryDelay: cfg.MaxRetryDelay,
	}, opts...)
}
