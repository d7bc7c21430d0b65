package binance

import (
	"context"
	"fmt"
	"slices"

	"github.com/KNICEX/trading-gateway/internal/service/exchange"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const (
	defaultKlineLimit = 500
	// 防止交易所返回异常数据时无限翻页
	maxKlinePages = 1000
)

// GetHistoricalKlines 查询历史K线, 自动分页, 结果按开盘时间升序且不重复.
// 合约失败时回退到现货.
func (g *Gateway) GetHistoricalKlines(ctx context.Context, req exchange.GetKlinesReq) ([]exchange.Kline, error) {
	if req.TradingPair.IsZero() || req.Interval.Duration() == 0 {
		return nil, invalidRequest("get_klines", fmt.Errorf("%w: pair %q interval %q",
			ErrInvalidRequest, req.TradingPair.ToString(), req.Interval))
	}
	if !req.EndTime.IsZero() && req.StartTime.After(req.EndTime) {
		return nil, invalidRequest("get_klines", fmt.Errorf("%w: start time after end time", ErrInvalidRequest))
	}

	if g.FuturesAvailable() {
		klines, err := g.paginateKlines(ctx, req, "futures_klines", g.futuresKlinePage)
		if err == nil {
			return klines, nil
		}
		g.logger.Warn("futures klines failed, trying spot", "symbol", req.TradingPair.ToString(), "error", err)
	}
	return g.paginateKlines(ctx, req, "spot_klines", g.spotKlinePage)
}

type klinePageFunc func(ctx context.Context, op string, q KlinesQuery) ([]exchange.Kline, error)

func (g *Gateway) paginateKlines(ctx context.Context, req exchange.GetKlinesReq, op string, page klinePageFunc) ([]exchange.Kline, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultKlineLimit
	}
	q := KlinesQuery{
		Symbol:   req.TradingPair.ToString(),
		Interval: req.Interval.ToString(),
		Limit:    limit,
	}
	if !req.StartTime.IsZero() {
		q.StartTime = req.StartTime.UnixMilli()
	}
	if !req.EndTime.IsZero() {
		q.EndTime = req.EndTime.UnixMilli()
	}

	var all []exchange.Kline
	for i := 0; i < maxKlinePages; i++ {
		klines, err := call(ctx, g, op, func(ctx context.Context) ([]exchange.Kline, error) {
			return page(ctx, op, q)
		})
		if err != nil {
			return nil, err
		}
		all = append(all, klines...)

		// 没有起始时间时只取最近一页
		if q.StartTime == 0 || len(klines) < limit {
			break
		}
		last := lo.MaxBy(klines, func(a, b exchange.Kline) bool {
			return a.OpenTime.After(b.OpenTime)
		})
		next := last.OpenTime.UnixMilli() + 1
		if next <= q.StartTime || (q.EndTime > 0 && next > q.EndTime) {
			break
		}
		q.StartTime = next
	}

	return normalizeKlines(all), nil
}

// normalizeKlines 按开盘时间排序并去重
func normalizeKlines(klines []exchange.Kline) []exchange.Kline {
	slices.SortStableFunc(klines, func(a, b exchange.Kline) int {
		return a.OpenTime.Compare(b.OpenTime)
	})
	return lo.UniqBy(klines, func(k exchange.Kline) int64 {
		return k.OpenTime.UnixMilli()
	})
}

func (g *Gateway) futuresKlinePage(ctx context.Context, op string, q KlinesQuery) ([]exchange.Kline, error) {
	raw, err := g.futures.GetKlines(ctx, q)
	if err != nil {
		return nil, err
	}
	klines := make([]exchange.Kline, 0, len(raw))
	for _, k := range raw {
		kline, err := fromFuturesKline(op, k)
		if err != nil {
			return nil, err
		}
		klines = append(klines, kline)
	}
	return klines, nil
}

func (g *Gateway) spotKlinePage(ctx context.Context, op string, q KlinesQuery) ([]exchange.Kline, error) {
	raw, err := g.spot.GetKlines(ctx, q)
	if err != nil {
		return nil, err
	}
	klines := make([]exchange.Kline, 0, len(raw))
	for _, k := range raw {
		kline, err := fromSpotKline(op, k)
		if err != nil {
			return nil, err
		}
		klines = append(klines, kline)
	}
	return klines, nil
}

// GetCurrentPrice 最新成交价, 合约失败时回退到现货
func (g *Gateway) GetCurrentPrice(ctx context.Context, pair exchange.TradingPair) (decimal.Decimal, error) {
	symbol := pair.ToString()
	if g.FuturesAvailable() {
		price, err := call(ctx, g, "futures_price", func(ctx context.Context) (decimal.Decimal, error) {
			prices, err := g.futures.ListPrices(ctx, symbol)
			if err != nil {
				return decimal.Zero, err
			}
			for _, p := range prices {
				if p != nil && p.Symbol == symbol {
					return parseDecimal("futures_price", "price", p.Price)
				}
			}
			return decimal.Zero, &ParseError{Op: "futures_price", Field: "symbol", Value: symbol}
		})
		if err == nil {
			return price, nil
		}
		g.logger.Warn("futures price failed, trying spot", "symbol", symbol, "error", err)
	}

	return call(ctx, g, "spot_price", func(ctx context.Context) (decimal.Decimal, error) {
		prices, err := g.spot.ListPrices(ctx, symbol)
		if err != nil {
			return decimal.Zero, err
		}
		for _, p := range prices {
			if p != nil && p.Symbol == symbol {
				return parseDecimal("spot_price", "price", p.Price)
			}
		}
		return decimal.Zero, &ParseError{Op: "spot_price", Field: "symbol", Value: symbol}
	})
}
