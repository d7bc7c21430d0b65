package binance

import (
	"strconv"
	"time"

	"github.com/KNICEX/trading-gateway/internal/service/exchange"
	"github.com/KNICEX/trading-gateway/pkg/decimalx"
	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

func binanceSide(side exchange.Side) futures.SideType {
	switch side {
	case exchange.SideBuy:
		return futures.SideTypeBuy
	case exchange.SideSell:
		return futures.SideTypeSell
	default:
		return ""
	}
}

func binanceOrderType(typ exchange.OrderType) futures.OrderType {
	switch typ {
	case exchange.OrderTypeMarket:
		return futures.OrderTypeMarket
	case exchange.OrderTypeLimit:
		return futures.OrderTypeLimit
	case exchange.OrderTypeStop:
		return futures.OrderTypeStop
	case exchange.OrderTypeStopMarket:
		return futures.OrderTypeStopMarket
	case exchange.OrderTypeTakeProfit:
		return futures.OrderTypeTakeProfit
	case exchange.OrderTypeTakeProfitMarket:
		return futures.OrderTypeTakeProfitMarket
	default:
		return futures.OrderType(typ)
	}
}

func binanceMarginType(typ exchange.MarginType) futures.MarginType {
	if typ == exchange.MarginTypeIsolated {
		return futures.MarginTypeIsolated
	}
	return futures.MarginTypeCrossed
}

// parseDecimal 交易所返回的数字字段都是字符串, 空字符串视为 0
func parseDecimal(op, field, value string) (decimal.Decimal, error) {
	d, err := decimalx.FromStringOrZero(value)
	if err != nil {
		return decimal.Zero, &ParseError{Op: op, Field: field, Value: value, Err: err}
	}
	return d, nil
}

// decimalFields 批量解析字段, 遇到第一个错误即停止
type decimalFields struct {
	op  string
	err error
}

func (p *decimalFields) parse(field, value string) decimal.Decimal {
	if p.err != nil {
		return decimal.Zero
	}
	d, err := parseDecimal(p.op, field, value)
	if err != nil {
		p.err = err
	}
	return d
}

func fromFuturesOrder(op string, o *futures.Order) (exchange.Order, error) {
	if o == nil {
		return exchange.Order{}, &ParseError{Op: op, Field: "order", Value: nil}
	}
	p := decimalFields{op: op}
	order := exchange.Order{
		Id:            exchange.OrderId(strconv.FormatInt(o.OrderID, 10)),
		TradingPair:   exchange.ParseTradingPair(o.Symbol),
		Side:          exchange.Side(o.Side),
		Type:          exchange.OrderType(o.Type),
		Quantity:      p.parse("origQty", o.OrigQuantity),
		Price:         p.parse("price", o.Price),
		StopPrice:     p.parse("stopPrice", o.StopPrice),
		TimeInForce:   exchange.TimeInForce(o.TimeInForce),
		ClosePosition: o.ClosePosition,
		Status:        exchange.OrderStatus(o.Status),
		CreatedAt:     time.UnixMilli(o.Time),
	}
	if p.err != nil {
		return exchange.Order{}, p.err
	}
	return order, nil
}

func fromCreateOrderResponse(op string, o *futures.CreateOrderResponse) (*exchange.Order, error) {
	if o == nil {
		return nil, &ParseError{Op: op, Field: "order", Value: nil}
	}
	p := decimalFields{op: op}
	order := &exchange.Order{
		Id:            exchange.OrderId(strconv.FormatInt(o.OrderID, 10)),
		TradingPair:   exchange.ParseTradingPair(o.Symbol),
		Side:          exchange.Side(o.Side),
		Type:          exchange.OrderType(o.Type),
		Quantity:      p.parse("origQty", o.OrigQuantity),
		Price:         p.parse("price", o.Price),
		StopPrice:     p.parse("stopPrice", o.StopPrice),
		TimeInForce:   exchange.TimeInForce(o.TimeInForce),
		ClosePosition: o.ClosePosition,
		Status:        exchange.OrderStatus(o.Status),
		CreatedAt:     time.UnixMilli(o.UpdateTime),
	}
	if p.err != nil {
		return nil, p.err
	}
	return order, nil
}

func fromFuturesKline(op string, k *futures.Kline) (exchange.Kline, error) {
	if k == nil {
		return exchange.Kline{}, &ParseError{Op: op, Field: "kline", Value: nil}
	}
	return buildKline(op, k.OpenTime, k.CloseTime, k.Open, k.High, k.Low, k.Close, k.Volume, k.QuoteAssetVolume, k.TradeNum)
}

func fromSpotKline(op string, k *binance.Kline) (exchange.Kline, error) {
	if k == nil {
		return exchange.Kline{}, &ParseError{Op: op, Field: "kline", Value: nil}
	}
	return buildKline(op, k.OpenTime, k.CloseTime, k.Open, k.High, k.Low, k.Close, k.Volume, k.QuoteAssetVolume, k.TradeNum)
}

func buildKline(op string, openTime, closeTime int64, open, high, low, closePrice, volume, quoteVolume string, trades int64) (exchange.Kline, error) {
	if openTime <= 0 {
		return exchange.Kline{}, &ParseError{Op: op, Field: "openTime", Value: openTime}
	}
	p := decimalFields{op: op}
	k := exchange.Kline{
		OpenTime:         time.UnixMilli(openTime),
		CloseTime:        time.UnixMilli(closeTime),
		Open:             p.parse("open", open),
		High:             p.parse("high", high),
		Low:              p.parse("low", low),
		Close:            p.parse("close", closePrice),
		Volume:           p.parse("volume", volume),
		QuoteAssetVolume: p.parse("quoteAssetVolume", quoteVolume),
		TradeNum:         trades,
	}
	if p.err != nil {
		return exchange.Kline{}, p.err
	}
	return k, nil
}
