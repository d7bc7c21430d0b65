package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KNICEX/trading-gateway/internal/repo"
	"github.com/KNICEX/trading-gateway/internal/schedule"
	"github.com/KNICEX/trading-gateway/internal/service/exchange"
	"github.com/KNICEX/trading-gateway/internal/service/exchange/binance"
	"github.com/KNICEX/trading-gateway/internal/service/risk"
	"github.com/KNICEX/trading-gateway/ioc"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const faultRetention = 7 * 24 * time.Hour

func initViper() {
	// --config=./config/xxx.yaml
	file := pflag.String("config", "./config/config.dev.yaml", "specify config file")
	pflag.Parse()

	viper.SetConfigFile(*file)
	err := viper.ReadInConfig()
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %s \n", err))
	}
}

func main() {
	initViper()
	logger := ioc.InitLogger()

	cfg, err := ioc.LoadGatewayConfig()
	if err != nil {
		if errors.Is(err, ioc.ErrMissingCredentials) {
			logger.Error("binance credentials missing, set cex.binance.api_key and cex.binance.api_secret")
		} else {
			logger.Error("invalid gateway config", "error", err)
		}
		os.Exit(1)
	}

	db := ioc.InitDB()
	faultRepo := repo.NewFaultRepo(db)

	var gateway *binance.Gateway
	recorder := ioc.NewFaultRecorder(faultRepo, logger, func() bool {
		return gateway.FuturesAvailable()
	})
	gateway = ioc.InitBinanceGateway(cfg, logger, binance.WithFaultHook(recorder))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := gateway.Connect(ctx); err != nil {
		logger.Error("connect binance failed", "error", err)
		os.Exit(1)
	}

	pair := cfg.TradingPair()
	if err := gateway.ConfigureFutures(ctx, pair, cfg.Leverage, cfg.MarginType); err != nil {
		logger.Warn("configure futures failed", "symbol", pair.ToString(), "error", err)
	}

	go schedule.Every(ctx, cfg.ClockSyncInterval, schedule.NewClockSyncTask(gateway, logger), logger)
	go schedule.Every(ctx, time.Hour, schedule.NewFaultCleanupTask(faultRepo, faultRetention, logger), logger)

	riskCfg := risk.DefaultConfig()
	riskCfg.Leverage = cfg.Leverage
	riskManager := risk.NewManager(gateway, riskCfg, risk.WithLogger(logger.With("component", "risk_manager")))

	snapshot(ctx, logger, gateway, riskManager, pair)

	<-ctx.Done()
	logger.Info("shutting down")
}

// snapshot 打印账户和交易对的当前状态
func snapshot(ctx context.Context, logger *slog.Logger, gateway exchange.Gateway, riskManager *risk.Manager,
	pair exchange.TradingPair) {
	balance, err := gateway.GetAccountBalance(ctx)
	if err != nil {
		logger.Warn("get balance failed", "error", err)
	}
	price, err := gateway.GetCurrentPrice(ctx, pair)
	if err != nil {
		logger.Warn("get price failed", "symbol", pair.ToString(), "error", err)
		return
	}
	logger.Info("account snapshot", "balance", balance, "symbol", pair.ToString(), "price", price)

	if rules, err := gateway.GetSymbolRules(ctx, pair); err == nil && rules != nil {
		logger.Info("symbol rules", "symbol", pair.ToString(), "price_precision", rules.PricePrecision,
			"step_size", rules.StepSize, "min_notional", rules.MinNotional)
	}

	position, err := gateway.GetPosition(ctx, pair)
	switch {
	case errors.Is(err, binance.ErrFuturesUnavailable):
		logger.Info("futures unavailable, running on spot")
	case err != nil:
		logger.Warn("get position failed", "error", err)
	case position.IsOpen():
		logger.Info("open position", "side", position.Side(), "amount", position.PositionAmount,
			"entry_price", position.EntryPrice, "unrealized_profit", position.UnrealizedProfit)
	}

	if _, err := riskManager.UpdateBalanceForCompounding(ctx); err != nil {
		logger.Warn("update compounding balance failed", "error", err)
	}
	if summary, ok := riskManager.Compounding(); ok {
		logger.Info("compounding", "initial_balance", summary.InitialBalance,
			"growth", summary.Growth(), "reinvested", summary.Reinvested)
	}

	stopLoss := riskManager.CalculateStopLoss(ctx, pair, exchange.SideBuy, price)
	quantity, err := riskManager.CalculatePositionSize(ctx, pair, exchange.SideBuy, price, stopLoss)
	if err != nil {
		logger.Info("no position size available", "reason", err)
		return
	}
	logger.Info("suggested long entry", "quantity", quantity, "stop_loss", stopLoss,
		"take_profit", riskManager.CalculateTakeProfit(ctx, pair, exchange.SideBuy, price))
}
