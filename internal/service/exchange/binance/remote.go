package binance

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
)

// KlinesQuery 单页K线查询, 时间为毫秒时间戳, 0 表示不限制
type KlinesQuery struct {
	Symbol    string
	Interval  string
	StartTime int64
	EndTime   int64
	Limit     int
}

type FuturesOrderReq struct {
	Symbol        string
	Side          futures.SideType
	Type          futures.OrderType
	Quantity      string
	Price         string
	StopPrice     string
	TimeInForce   futures.TimeInForceType
	ClosePosition bool
	ReduceOnly    bool
}

// FuturesAPI 网关用到的 U 本位合约接口, 生产环境由 go-binance futures.Client 实现
type FuturesAPI interface {
	Ping(ctx context.Context) error
	// SyncServerTime 同步服务器时间, 返回新的时间偏移(毫秒)
	SyncServerTime(ctx context.Context) (int64, error)
	ResetTimeOffset()
	CloseIdleConnections()

	GetAccount(ctx context.Context) error
	GetBalances(ctx context.Context) ([]*futures.Balance, error)
	GetPositionRisk(ctx context.Context, symbol string) ([]*futures.PositionRisk, error)
	GetExchangeInfo(ctx context.Context) (*futures.ExchangeInfo, error)
	GetKlines(ctx context.Context, q KlinesQuery) ([]*futures.Kline, error)
	ListPrices(ctx context.Context, symbol string) ([]*futures.SymbolPrice, error)

	ChangeLeverage(ctx context.Context, symbol string, leverage int) error
	ChangeMarginType(ctx context.Context, symbol string, marginType futures.MarginType) error

	CreateOrder(ctx context.Context, req FuturesOrderReq) (*futures.CreateOrderResponse, error)
	ListOpenOrders(ctx context.Context, symbol string) ([]*futures.Order, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	CancelAllOpenOrders(ctx context.Context, symbol string) error
}

// SpotAPI 现货降级路径用到的接口, 生产环境由 go-binance binance.Client 实现
type SpotAPI interface {
	Ping(ctx context.Context) error
	SyncServerTime(ctx context.Context) (int64, error)
	ResetTimeOffset()
	CloseIdleConnections()

	GetAccount(ctx context.Context) (*binance.Account, error)
	GetKlines(ctx context.Context, q KlinesQuery) ([]*binance.Kline, error)
	ListPrices(ctx context.Context, symbol string) ([]*binance.SymbolPrice, error)
}

var _ FuturesAPI = (*futuresClient)(nil)

type futuresClient struct {
	cli        *futures.Client
	recvWindow int64
}

// NewFuturesAPI 包装 futures.Client, 所有请求带上 recvWindow
func NewFuturesAPI(cli *futures.Client, recvWindow time.Duration) FuturesAPI {
	return &futuresClient{cli: cli, recvWindow: recvWindow.Milliseconds()}
}

func (c *futuresClient) opts() []futures.RequestOption {
	if c.recvWindow <= 0 {
		return nil
	}
	return []futures.RequestOption{futures.WithRecvWindow(c.recvWindow)}
}

func (c *futuresClient) Ping(ctx context.Context) error {
	return c.cli.NewPingService().Do(ctx)
}

func (c *futuresClient) SyncServerTime(ctx context.Context) (int64, error) {
	return c.cli.NewSetServerTimeService().Do(ctx)
}

func (c *futuresClient) ResetTimeOffset() {
	c.cli.TimeOffset = 0
}

func (c *futuresClient) CloseIdleConnections() {
	if c.cli.HTTPClient != nil {
		c.cli.HTTPClient.CloseIdleConnections()
	}
}

func (c *futuresClient) GetAccount(ctx context.Context) error {
	_, err := c.cli.NewGetAccountService().Do(ctx, c.opts()...)
	return err
}

func (c *futuresClient) GetBalances(ctx context.Context) ([]*futures.Balance, error) {
	return c.cli.NewGetBalanceService().Do(ctx, c.opts()...)
}

func (c *futuresClient) GetPositionRisk(ctx context.Context, symbol string) ([]*futures.PositionRisk, error) {
	svc := c.cli.NewGetPositionRiskService()
	if symbol != "" {
		svc.Symbol(symbol)
	}
	return svc.Do(ctx, c.opts()...)
}

func (c *futuresClient) GetExchangeInfo(ctx context.Context) (*futures.ExchangeInfo, error) {
	return c.cli.NewExchangeInfoService().Do(ctx)
}

func (c *futuresClient) GetKlines(ctx context.Context, q KlinesQuery) ([]*futures.Kline, error) {
	svc := c.cli.NewKlinesService().Symbol(q.Symbol).Interval(q.Interval)
	if q.StartTime > 0 {
		svc.StartTime(q.StartTime)
	}
	if q.EndTime > 0 {
		svc.EndTime(q.EndTime)
	}
	if q.Limit > 0 {
		svc.Limit(q.Limit)
	}
	return svc.Do(ctx)
}

func (c *futuresClient) ListPrices(ctx context.Context, symbol string) ([]*futures.SymbolPrice, error) {
	return c.cli.NewListPricesService().Symbol(symbol).Do(ctx)
}

func (c *futuresClient) ChangeLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := c.cli.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx, c.opts()...)
	return err
}

func (c *futuresClient) ChangeMarginType(ctx context.Context, symbol string, marginType futures.MarginType) error {
	return c.cli.NewChangeMarginTypeService().Symbol(symbol).MarginType(marginType).Do(ctx, c.opts()...)
}

func (c *futuresClient) CreateOrder(ctx context.Context, req FuturesOrderReq) (*futures.CreateOrderResponse, error) {
	svc := c.cli.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(req.Side).
		Type(req.Type)
	if req.Quantity != "" {
		svc.Quantity(req.Quantity)
	}
	if req.Price != "" {
		svc.Price(req.Price)
	}
	if req.StopPrice != "" {
		svc.StopPrice(req.StopPrice)
	}
	if req.TimeInForce != "" {
		svc.TimeInForce(req.TimeInForce)
	}
	if req.ClosePosition {
		svc.ClosePosition(true)
	}
	if req.ReduceOnly {
		svc.ReduceOnly(true)
	}
	return svc.Do(ctx, c.opts()...)
}

func (c *futuresClient) ListOpenOrders(ctx context.Context, symbol string) ([]*futures.Order, error) {
	return c.cli.NewListOpenOrdersService().Symbol(symbol).Do(ctx, c.opts()...)
}

func (c *futuresClient) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	_, err := c.cli.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx, c.opts()...)
	return err
}

func (c *futuresClient) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	return c.cli.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx, c.opts()...)
}

var _ SpotAPI = (*spotClient)(nil)

type spotClient struct {
	cli        *binance.Client
	recvWindow int64
}

// NewSpotAPI 包装现货 binance.Client
func NewSpotAPI(cli *binance.Client, recvWindow time.Duration) SpotAPI {
	return &spotClient{cli: cli, recvWindow: recvWindow.Milliseconds()}
}

func (c *spotClient) opts() []binance.RequestOption {
	if c.recvWindow <= 0 {
		return nil
	}
	return []binance.RequestOption{binance.WithRecvWindow(c.recvWindow)}
}

func (c *spotClient) Ping(ctx context.Context) error {
	return c.cli.NewPingService().Do(ctx)
}

func (c *spotClient) SyncServerTime(ctx context.Context) (int64, error) {
	return c.cli.NewSetServerTimeService().Do(ctx)
}

func (c *spotClient) ResetTimeOffset() {
	c.cli.TimeOffset = 0
}

func (c *spotClient) CloseIdleConnections() {
	if c.cli.HTTPClient != nil {
		c.cli.HTTPClient.CloseIdleConnections()
	}
}

func (c *spotClient) GetAccount(ctx context.Context) (*binance.Account, error) {
	return c.cli.NewGetAccountService().Do(ctx, c.opts()...)
}

func (c *spotClient) GetKlines(ctx context.Context, q KlinesQuery) ([]*binance.Kline, error) {
	svc := c.cli.NewKlinesService().Symbol(q.Symbol).Interval(q.Interval)
	if q.StartTime > 0 {
		svc.StartTime(q.StartTime)
	}
	if q.EndTime > 0 {
		svc.EndTime(q.EndTime)
	}
	if q.Limit > 0 {
		svc.Limit(q.Limit)
	}
	return svc.Do(ctx)
}

func (c *spotClient) ListPrices(ctx context.Context, symbol string) ([]*binance.SymbolPrice, error) {
	return c.cli.NewListPricesService().Symbol(symbol).Do(ctx)
}
