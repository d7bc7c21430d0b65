package binance

import (
	"context"

	"github.com/KNICEX/trading-gateway/internal/service/exchange"
	"github.com/KNICEX/trading-gateway/pkg/decimalx"
	"github.com/adshao/go-binance/v2/futures"
)

// GetSymbolRules 查询交易对的交易规则, 交易对不存在时返回 nil.
// 成功获取后在本会话内缓存.
func (g *Gateway) GetSymbolRules(ctx context.Context, pair exchange.TradingPair) (*exchange.SymbolRules, error) {
	const op = "get_symbol_rules"
	symbol := pair.ToString()
	if cached, ok := g.rules.Load(symbol); ok {
		rules := cached.(exchange.SymbolRules)
		return &rules, nil
	}

	rules, err := call(ctx, g, op, func(ctx context.Context) (*exchange.SymbolRules, error) {
		info, err := g.futures.GetExchangeInfo(ctx)
		if err != nil {
			return nil, err
		}
		if info == nil {
			return nil, &ParseError{Op: op, Field: "exchangeInfo", Value: nil}
		}
		for i := range info.Symbols {
			if info.Symbols[i].Symbol == symbol {
				return parseSymbolRules(op, pair, &info.Symbols[i])
			}
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	if rules == nil {
		g.logger.Warn("symbol not found in exchange info", "symbol", symbol)
		return nil, nil
	}

	g.rules.Store(symbol, *rules)
	return rules, nil
}

func parseSymbolRules(op string, pair exchange.TradingPair, s *futures.Symbol) (*exchange.SymbolRules, error) {
	rules := &exchange.SymbolRules{
		TradingPair:       pair,
		PricePrecision:    int32(s.PricePrecision),
		QuantityPrecision: int32(s.QuantityPrecision),
	}
	p := decimalFields{op: op}
	for _, filter := range s.Filters {
		switch filter["filterType"] {
		case "LOT_SIZE":
			rules.MinQuantity = p.parse("minQty", filterValue(filter, "minQty"))
			rules.MaxQuantity = p.parse("maxQty", filterValue(filter, "maxQty"))
			rules.StepSize = p.parse("stepSize", filterValue(filter, "stepSize"))
		case "PRICE_FILTER":
			rules.TickSize = p.parse("tickSize", filterValue(filter, "tickSize"))
		case "MIN_NOTIONAL":
			rules.MinNotional = p.parse("notional", filterValue(filter, "notional"))
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	// 部分交易对不返回精度, 按步长推算
	if rules.QuantityPrecision == 0 {
		rules.QuantityPrecision = decimalx.StepPrecision(rules.StepSize)
	}
	if rules.PricePrecision == 0 {
		rules.PricePrecision = decimalx.StepPrecision(rules.TickSize)
	}
	return rules, nil
}

func filterValue(filter map[string]interface{}, key string) string {
	v, _ := filter[key].(string)
	return v
}
