package risk

import (
	"context"

	"github.com/KNICEX/trading-gateway/internal/service/exchange"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// ============ Mock 定义 ============

var _ exchange.Gateway = (*MockGateway)(nil)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) SynchronizeClock(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockGateway) ConfigureFutures(ctx context.Context, pair exchange.TradingPair, leverage int, marginType exchange.MarginType) error {
	args := m.Called(ctx, pair, leverage, marginType)
	return args.Error(0)
}

func (m *MockGateway) GetAccountBalance(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockGateway) GetPosition(ctx context.Context, pair exchange.TradingPair) (*exchange.Position, error) {
	args := m.Called(ctx, pair)
	position, _ := args.Get(0).(*exchange.Position)
	return position, args.Error(1)
}

func (m *MockGateway) GetSymbolRules(ctx context.Context, pair exchange.TradingPair) (*exchange.SymbolRules, error) {
	args := m.Called(ctx, pair)
	rules, _ := args.Get(0).(*exchange.SymbolRules)
	return rules, args.Error(1)
}

func (m *MockGateway) GetHistoricalKlines(ctx context.Context, req exchange.GetKlinesReq) ([]exchange.Kline, error) {
	args := m.Called(ctx, req)
	klines, _ := args.Get(0).([]exchange.Kline)
	return klines, args.Error(1)
}

func (m *MockGateway) GetCurrentPrice(ctx context.Context, pair exchange.TradingPair) (decimal.Decimal, error) {
	args := m.Called(ctx, pair)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockGateway) PlaceMarketOrder(ctx context.Context, pair exchange.TradingPair, side exchange.Side, quantity decimal.Decimal) (*exchange.Order, error) {
	args := m.Called(ctx, pair, side, quantity)
	order, _ := args.Get(0).(*exchange.Order)
	return order, args.Error(1)
}

func (m *MockGateway) PlaceLimitOrder(ctx context.Context, pair exchange.TradingPair, side exchange.Side, quantity, price decimal.Decimal) (*exchange.Order, error) {
	args := m.Called(ctx, pair, side, quantity, price)
	order, _ := args.Get(0).(*exchange.Order)
	return order, args.Error(1)
}

func (m *MockGateway) PlaceStopLossOrder(ctx context.Context, req exchange.CreateOrderReq) (*exchange.Order, error) {
	args := m.Called(ctx, req)
	order, _ := args.Get(0).(*exchange.Order)
	return order, args.Error(1)
}

func (m *MockGateway) PlaceTakeProfitOrder(ctx context.Context, req exchange.CreateOrderReq) (*exchange.Order, error) {
	args := m.Called(ctx, req)
	order, _ := args.Get(0).(*exchange.Order)
	return order, args.Error(1)
}

func (m *MockGateway) CancelAllOpenOrders(ctx context.Context, pair exchange.TradingPair) (int, error) {
	args := m.Called(ctx, pair)
	return args.Int(0), args.Error(1)
}

func (m *MockGateway) GetOpenOrders(ctx context.Context, pair exchange.TradingPair) ([]exchange.Order, error) {
	args := m.Called(ctx, pair)
	orders, _ := args.Get(0).([]exchange.Order)
	return orders, args.Error(1)
}

func (m *MockGateway) GetPositionRelatedOrders(ctx context.Context, pair exchange.TradingPair) ([]exchange.Order, error) {
	args := m.Called(ctx, pair)
	orders, _ := args.Get(0).([]exchange.Order)
	return orders, args.Error(1)
}

func (m *MockGateway) CancelPositionOrders(ctx context.Context, pair exchange.TradingPair) (int, error) {
	args := m.Called(ctx, pair)
	return args.Int(0), args.Error(1)
}
