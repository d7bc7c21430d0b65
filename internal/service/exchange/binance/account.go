package binance

import (
	"context"
	"fmt"

	"github.com/KNICEX/trading-gateway/internal/service/exchange"
	"github.com/shopspring/decimal"
)

// GetAccountBalance 查询 USDT 余额: 合约余额 -> 现货可用余额 -> 0
func (g *Gateway) GetAccountBalance(ctx context.Context) (decimal.Decimal, error) {
	if g.FuturesAvailable() {
		balance, err := call(ctx, g, "futures_balance", g.futuresBalance)
		if err == nil {
			g.logger.Info("fetched futures balance", "asset", g.quoteAsset, "balance", balance)
			return balance, nil
		}
		g.logger.Warn("futures balance failed, trying spot", "error", err)
	}

	balance, err := call(ctx, g, "spot_balance", g.spotBalance)
	if err != nil {
		return decimal.Zero, err
	}
	g.logger.Info("fetched spot balance", "asset", g.quoteAsset, "balance", balance)
	return balance, nil
}

func (g *Gateway) futuresBalance(ctx context.Context) (decimal.Decimal, error) {
	balances, err := g.futures.GetBalances(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	for _, b := range balances {
		if b != nil && b.Asset == g.quoteAsset {
			return parseDecimal("futures_balance", "balance", b.Balance)
		}
	}
	return decimal.Zero, nil
}

func (g *Gateway) spotBalance(ctx context.Context) (decimal.Decimal, error) {
	account, err := g.spot.GetAccount(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if account == nil {
		return decimal.Zero, &ParseError{Op: "spot_balance", Field: "account", Value: nil}
	}
	for _, b := range account.Balances {
		if b.Asset == g.quoteAsset {
			return parseDecimal("spot_balance", "free", b.Free)
		}
	}
	return decimal.Zero, nil
}

// ConfigureFutures 设置杠杆和保证金模式, 合约不可用时什么都不做
func (g *Gateway) ConfigureFutures(ctx context.Context, pair exchange.TradingPair, leverage int, marginType exchange.MarginType) error {
	if !g.FuturesAvailable() {
		g.logger.Info("futures unavailable, skip futures configuration", "symbol", pair.ToString())
		return nil
	}
	if leverage <= 0 {
		return invalidRequest("configure_futures", fmt.Errorf("%w: leverage %d", ErrInvalidRequest, leverage))
	}
	symbol := pair.ToString()

	_, err := call(ctx, g, "change_leverage", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.futures.ChangeLeverage(ctx, symbol, leverage)
	})
	if err != nil {
		return err
	}

	_, err = call(ctx, g, "change_margin_type", func(ctx context.Context) (struct{}, error) {
		err := g.futures.ChangeMarginType(ctx, symbol, binanceMarginType(marginType))
		// 已经是目标模式
		if isAPICode(err, codeNoNeedToChangeMargin) {
			return struct{}{}, nil
		}
		return struct{}{}, err
	})
	if err != nil {
		return err
	}

	g.logger.Info("futures configured", "symbol", symbol, "leverage", leverage, "margin_type", marginType)
	return nil
}
