package exchange

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// https://developers.binance.com/docs/zh-CN/derivatives/usds-margined-futures/trade/rest-api

type OrderId string

func (id OrderId) IsZero() bool {
	return id == ""
}

func (id OrderId) ToString() string {
	return string(id)
}

func (id OrderId) ToInt64() int64 {
	orderId, err := strconv.ParseInt(id.ToString(), 10, 64)
	if err != nil {
		return 0
	}
	return orderId
}

type OrderType string

const (
	OrderTypeMarket           OrderType = "MARKET"
	OrderTypeLimit            OrderType = "LIMIT"
	OrderTypeStop             OrderType = "STOP"
	OrderTypeStopMarket       OrderType = "STOP_MARKET"
	OrderTypeTakeProfit       OrderType = "TAKE_PROFIT"
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

// IsStopLoss 止损类订单
func (t OrderType) IsStopLoss() bool {
	return t == OrderTypeStop || t == OrderTypeStopMarket
}

// IsTakeProfit 止盈类订单
func (t OrderType) IsTakeProfit() bool {
	return t == OrderTypeTakeProfit || t == OrderTypeTakeProfitMarket
}

// IsPositionRelated 挂在仓位上的退出单(止盈/止损)
func (t OrderType) IsPositionRelated() bool {
	return t.IsStopLoss() || t.IsTakeProfit()
}

type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
	TimeInForceGTX TimeInForce = "GTX"
)

type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// IsActive 订单仍在交易所挂着
func (s OrderStatus) IsActive() bool {
	return s == OrderStatusNew || s == OrderStatusPartiallyFilled
}

type Order struct {
	Id            OrderId
	TradingPair   TradingPair
	Side          Side
	Type          OrderType
	Quantity      decimal.Decimal
	Price         decimal.Decimal // 限价单价格
	StopPrice     decimal.Decimal // 触发价格
	TimeInForce   TimeInForce
	ClosePosition bool
	Status        OrderStatus
	CreatedAt     time.Time
}

// CreateOrderReq 下单请求
type CreateOrderReq struct {
	TradingPair TradingPair
	Side        Side
	Quantity    decimal.Decimal
	// Price 限价单价格; 对止盈止损单, 有值则为触发后的限价单(STOP / TAKE_PROFIT), 否则为市价(STOP_MARKET / TAKE_PROFIT_MARKET)
	Price decimal.Decimal
	// StopPrice 触发价格, 仅止盈止损单有效
	StopPrice decimal.Decimal
	// ClosePosition 触发后平掉全部仓位, 此时忽略 Quantity
	ClosePosition bool
}
