package binance

import (
	"context"
	"strconv"
	"strings"

	"github.com/KNICEX/trading-gateway/internal/service/exchange"
	"github.com/adshao/go-binance/v2/futures"
)

// GetPosition 查询交易对当前持仓, 没有持仓时返回 nil.
// 仓位每次都实时查询, 不做缓存.
func (g *Gateway) GetPosition(ctx context.Context, pair exchange.TradingPair) (*exchange.Position, error) {
	const op = "get_position"
	if err := g.requireFutures(op); err != nil {
		return nil, err
	}
	symbol := pair.ToString()

	return call(ctx, g, op, func(ctx context.Context) (*exchange.Position, error) {
		risks, err := g.futures.GetPositionRisk(ctx, symbol)
		if err != nil {
			return nil, err
		}
		// notice: 币安有挂单，未成交的仓位也会返回，需要过滤掉
		for _, r := range risks {
			if r == nil || r.Symbol != symbol {
				continue
			}
			position, err := parsePosition(op, r)
			if err != nil {
				return nil, err
			}
			if position.IsOpen() {
				return position, nil
			}
		}
		return nil, nil
	}, withReinitialize())
}

func parsePosition(op string, r *futures.PositionRisk) (*exchange.Position, error) {
	p := decimalFields{op: op}
	position := &exchange.Position{
		TradingPair:      exchange.ParseTradingPair(r.Symbol),
		PositionSide:     exchange.PositionSide(r.PositionSide),
		PositionAmount:   p.parse("positionAmt", r.PositionAmt),
		EntryPrice:       p.parse("entryPrice", r.EntryPrice),
		MarkPrice:        p.parse("markPrice", r.MarkPrice),
		LiquidationPrice: p.parse("liquidationPrice", r.LiquidationPrice),
		UnrealizedProfit: p.parse("unRealizedProfit", r.UnRealizedProfit),
		Isolated:         strings.EqualFold(r.MarginType, "isolated"),
	}
	if p.err != nil {
		return nil, p.err
	}
	if r.Leverage != "" {
		leverage, err := strconv.Atoi(r.Leverage)
		if err != nil {
			return nil, &ParseError{Op: op, Field: "leverage", Value: r.Leverage, Err: err}
		}
		position.Leverage = leverage
	}
	return position, nil
}
