package exchange

import (
	"context"

	"github.com/shopspring/decimal"
)

// Gateway 对外暴露的交易所操作集合.
//
// 实现不会向调用方抛出原始的交易所错误: 失败时返回安全的默认值(0, nil, 空切片)
// 以及一个可分类的 error, 调用方可以选择忽略 error 只使用默认值.
type Gateway interface {
	SynchronizeClock(ctx context.Context) (int64, error)
	ConfigureFutures(ctx context.Context, pair TradingPair, leverage int, marginType MarginType) error

	GetAccountBalance(ctx context.Context) (decimal.Decimal, error)
	GetPosition(ctx context.Context, pair TradingPair) (*Position, error)
	GetSymbolRules(ctx context.Context, pair TradingPair) (*SymbolRules, error)
	GetHistoricalKlines(ctx context.Context, req GetKlinesReq) ([]Kline, error)
	GetCurrentPrice(ctx context.Context, pair TradingPair) (decimal.Decimal, error)

	PlaceMarketOrder(ctx context.Context, pair TradingPair, side Side, quantity decimal.Decimal) (*Order, error)
	PlaceLimitOrder(ctx context.Context, pair TradingPair, side Side, quantity, price decimal.Decimal) (*Order, error)
	PlaceStopLossOrder(ctx context.Context, req CreateOrderReq) (*Order, error)
	PlaceTakeProfitOrder(ctx context.Context, req CreateOrderReq) (*Order, error)

	CancelAllOpenOrders(ctx context.Context, pair TradingPair) (int, error)
	GetOpenOrders(ctx context.Context, pair TradingPair) ([]Order, error)
	GetPositionRelatedOrders(ctx context.Context, pair TradingPair) ([]Order, error)
	CancelPositionOrders(ctx context.Context, pair TradingPair) (int, error)
}
