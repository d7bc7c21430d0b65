package binance

import (
	"context"
	"errors"
	"fmt"

	"github.com/KNICEX/trading-gateway/internal/service/exchange"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// 注意: 下单请求在瞬时错误时同样会重试, 交易所可能已经接受了第一次请求, 下单不是幂等的

func (g *Gateway) PlaceMarketOrder(ctx context.Context, pair exchange.TradingPair, side exchange.Side, quantity decimal.Decimal) (*exchange.Order, error) {
	const op = "place_market_order"
	if err := validateOrder(pair, side, quantity, false); err != nil {
		return nil, invalidRequest(op, err)
	}
	return g.createOrder(ctx, op, FuturesOrderReq{
		Symbol:   pair.ToString(),
		Side:     binanceSide(side),
		Type:     futures.OrderTypeMarket,
		Quantity: quantity.String(),
	})
}

func (g *Gateway) PlaceLimitOrder(ctx context.Context, pair exchange.TradingPair, side exchange.Side, quantity, price decimal.Decimal) (*exchange.Order, error) {
	const op = "place_limit_order"
	if err := validateOrder(pair, side, quantity, false); err != nil {
		return nil, invalidRequest(op, err)
	}
	if !price.IsPositive() {
		return nil, invalidRequest(op, fmt.Errorf("%w: price %s", ErrInvalidRequest, price))
	}
	return g.createOrder(ctx, op, FuturesOrderReq{
		Symbol:      pair.ToString(),
		Side:        binanceSide(side),
		Type:        futures.OrderTypeLimit,
		Quantity:    quantity.String(),
		Price:       price.String(),
		TimeInForce: futures.TimeInForceTypeGTC,
	})
}

// PlaceStopLossOrder 下止损单, 先撤掉该交易对已有的止损单, 保证同时只有一张.
// 撤单失败则不下新单.
func (g *Gateway) PlaceStopLossOrder(ctx context.Context, req exchange.CreateOrderReq) (*exchange.Order, error) {
	typ := exchange.OrderTypeStopMarket
	if req.Price.IsPositive() {
		typ = exchange.OrderTypeStop
	}
	return g.replaceExitOrder(ctx, "place_stop_loss_order", req, typ, exchange.OrderType.IsStopLoss)
}

// PlaceTakeProfitOrder 下止盈单, 先撤掉该交易对已有的止盈单
func (g *Gateway) PlaceTakeProfitOrder(ctx context.Context, req exchange.CreateOrderReq) (*exchange.Order, error) {
	typ := exchange.OrderTypeTakeProfitMarket
	if req.Price.IsPositive() {
		typ = exchange.OrderTypeTakeProfit
	}
	return g.replaceExitOrder(ctx, "place_take_profit_order", req, typ, exchange.OrderType.IsTakeProfit)
}

func (g *Gateway) replaceExitOrder(ctx context.Context, op string, req exchange.CreateOrderReq,
	typ exchange.OrderType, sameKind func(exchange.OrderType) bool) (*exchange.Order, error) {
	if err := validateOrder(req.TradingPair, req.Side, req.Quantity, req.ClosePosition); err != nil {
		return nil, invalidRequest(op, err)
	}
	if !req.StopPrice.IsPositive() {
		return nil, invalidRequest(op, fmt.Errorf("%w: stop price %s", ErrInvalidRequest, req.StopPrice))
	}
	if err := g.requireFutures(op); err != nil {
		return nil, err
	}

	existing, err := g.GetOpenOrders(ctx, req.TradingPair)
	if err != nil {
		return nil, err
	}
	stale := lo.Filter(existing, func(o exchange.Order, _ int) bool {
		return sameKind(o.Type)
	})
	if _, err := g.cancelOrders(ctx, req.TradingPair, stale); err != nil {
		g.logger.Error("cancel existing exit orders failed, abort placing new one",
			"op", op, "symbol", req.TradingPair.ToString(), "error", err)
		return nil, err
	}

	order := FuturesOrderReq{
		Symbol:        req.TradingPair.ToString(),
		Side:          binanceSide(req.Side),
		Type:          binanceOrderType(typ),
		StopPrice:     req.StopPrice.String(),
		ClosePosition: req.ClosePosition,
	}
	if !req.ClosePosition {
		order.Quantity = req.Quantity.String()
		order.ReduceOnly = true
	}
	if req.Price.IsPositive() {
		order.Price = req.Price.String()
		order.TimeInForce = futures.TimeInForceTypeGTC
	}
	return g.createOrder(ctx, op, order)
}

func (g *Gateway) createOrder(ctx context.Context, op string, req FuturesOrderReq) (*exchange.Order, error) {
	if err := g.requireFutures(op); err != nil {
		return nil, err
	}
	order, err := call(ctx, g, op, func(ctx context.Context) (*exchange.Order, error) {
		resp, err := g.futures.CreateOrder(ctx, req)
		if err != nil {
			return nil, err
		}
		return fromCreateOrderResponse(op, resp)
	})
	if err != nil {
		return nil, err
	}
	g.logger.Info("order placed", "op", op, "symbol", req.Symbol, "side", req.Side, "type", req.Type,
		"quantity", req.Quantity, "price", req.Price, "stop_price", req.StopPrice, "order_id", order.Id)
	return order, nil
}

func validateOrder(pair exchange.TradingPair, side exchange.Side, quantity decimal.Decimal, closePosition bool) error {
	if pair.IsZero() {
		return fmt.Errorf("%w: empty trading pair", ErrInvalidRequest)
	}
	if !side.IsValid() {
		return fmt.Errorf("%w: side %q", ErrInvalidRequest, side)
	}
	if !closePosition && !quantity.IsPositive() {
		return fmt.Errorf("%w: quantity %s", ErrInvalidRequest, quantity)
	}
	return nil
}

// GetOpenOrders 查询交易对所有挂单
func (g *Gateway) GetOpenOrders(ctx context.Context, pair exchange.TradingPair) ([]exchange.Order, error) {
	const op = "get_open_orders"
	if err := g.requireFutures(op); err != nil {
		return nil, err
	}
	symbol := pair.ToString()
	return call(ctx, g, op, func(ctx context.Context) ([]exchange.Order, error) {
		raw, err := g.futures.ListOpenOrders(ctx, symbol)
		if err != nil {
			return nil, err
		}
		orders := make([]exchange.Order, 0, len(raw))
		for _, o := range raw {
			order, err := fromFuturesOrder(op, o)
			if err != nil {
				return nil, err
			}
			orders = append(orders, order)
		}
		return orders, nil
	})
}

// GetPositionRelatedOrders 交易对上挂着的止盈止损单
func (g *Gateway) GetPositionRelatedOrders(ctx context.Context, pair exchange.TradingPair) ([]exchange.Order, error) {
	orders, err := g.GetOpenOrders(ctx, pair)
	if err != nil {
		return nil, err
	}
	symbol := pair.ToString()
	return lo.Filter(orders, func(o exchange.Order, _ int) bool {
		return o.Type.IsPositionRelated() && o.TradingPair.ToString() == symbol
	}), nil
}

// CancelAllOpenOrders 撤销交易对所有挂单, 返回撤单前的挂单数量
func (g *Gateway) CancelAllOpenOrders(ctx context.Context, pair exchange.TradingPair) (int, error) {
	const op = "cancel_all_open_orders"
	orders, err := g.GetOpenOrders(ctx, pair)
	if err != nil {
		return 0, err
	}
	if len(orders) == 0 {
		return 0, nil
	}
	symbol := pair.ToString()
	_, err = call(ctx, g, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.futures.CancelAllOpenOrders(ctx, symbol)
	})
	if err != nil {
		return 0, err
	}
	g.logger.Info("canceled all open orders", "symbol", symbol, "count", len(orders))
	return len(orders), nil
}

// CancelPositionOrders 撤销交易对的止盈止损单, 其他交易对的订单会被跳过
func (g *Gateway) CancelPositionOrders(ctx context.Context, pair exchange.TradingPair) (int, error) {
	orders, err := g.GetOpenOrders(ctx, pair)
	if err != nil {
		return 0, err
	}
	related := lo.Filter(orders, func(o exchange.Order, _ int) bool {
		return o.Type.IsPositionRelated()
	})
	return g.cancelOrders(ctx, pair, related)
}

// cancelOrders 逐个撤单, 交易对不匹配的订单跳过并告警; 返回成功撤销的数量
func (g *Gateway) cancelOrders(ctx context.Context, pair exchange.TradingPair, orders []exchange.Order) (int, error) {
	const op = "cancel_order"
	symbol := pair.ToString()

	var (
		canceled int
		errs     []error
	)
	for _, o := range orders {
		if o.TradingPair.ToString() != symbol {
			g.logger.Warn("skip canceling order of another symbol",
				"symbol", symbol, "order_symbol", o.TradingPair.ToString(), "order_id", o.Id)
			continue
		}
		orderID := o.Id.ToInt64()
		_, err := call(ctx, g, op, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, g.futures.CancelOrder(ctx, symbol, orderID)
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		canceled++
		g.logger.Info("order canceled", "symbol", symbol, "order_id", o.Id, "type", o.Type)
	}
	return canceled, errors.Join(errs...)
}
