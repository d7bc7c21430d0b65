package binance

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

// calls 记录每个方法的调用次数, 并按顺序弹出预设的错误
type calls struct {
	mu     sync.Mutex
	counts map[string]int
	errs   map[string][]error
}

func (c *calls) next(method string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[method]++
	queue := c.errs[method]
	if len(queue) == 0 {
		return nil
	}
	c.errs[method] = queue[1:]
	return queue[0]
}

func (c *calls) failWith(method string, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errs == nil {
		c.errs = map[string][]error{}
	}
	c.errs[method] = append(c.errs[method], errs...)
}

func (c *calls) count(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[method]
}

type fakeFutures struct {
	calls

	offset       int64
	resets       int
	idleClosed   int
	balances     []*futures.Balance
	positions    []*futures.PositionRisk
	exchangeInfo *futures.ExchangeInfo
	klines       klineBook
	prices       map[string]string

	nextOrderID int64
	openOrders  []*futures.Order
	created     []FuturesOrderReq
	canceled    []int64
	leverage    map[string]int
}

func newFakeFutures() *fakeFutures {
	return &fakeFutures{
		offset:      120,
		prices:      map[string]string{},
		leverage:    map[string]int{},
		nextOrderID: 1000,
	}
}

func (f *fakeFutures) Ping(ctx context.Context) error {
	return f.next("Ping")
}

func (f *fakeFutures) SyncServerTime(ctx context.Context) (int64, error) {
	if err := f.next("SyncServerTime"); err != nil {
		return 0, err
	}
	return f.offset, nil
}

func (f *fakeFutures) ResetTimeOffset() {
	f.resets++
}

func (f *fakeFutures) CloseIdleConnections() {
	f.idleClosed++
}

func (f *fakeFutures) GetAccount(ctx context.Context) error {
	return f.next("GetAccount")
}

func (f *fakeFutures) GetBalances(ctx context.Context) ([]*futures.Balance, error) {
	if err := f.next("GetBalances"); err != nil {
		return nil, err
	}
	return f.balances, nil
}

func (f *fakeFutures) GetPositionRisk(ctx context.Context, symbol string) ([]*futures.PositionRisk, error) {
	if err := f.next("GetPositionRisk"); err != nil {
		return nil, err
	}
	return f.positions, nil
}

func (f *fakeFutures) GetExchangeInfo(ctx context.Context) (*futures.ExchangeInfo, error) {
	if err := f.next("GetExchangeInfo"); err != nil {
		return nil, err
	}
	return f.exchangeInfo, nil
}

func (f *fakeFutures) GetKlines(ctx context.Context, q KlinesQuery) ([]*futures.Kline, error) {
	if err := f.next("GetKlines"); err != nil {
		return nil, err
	}
	page := f.klines.page(q)
	res := make([]*futures.Kline, 0, len(page))
	for _, k := range page {
		res = append(res, &futures.Kline{
			OpenTime:         k.openTime,
			CloseTime:        k.closeTime,
			Open:             k.price,
			High:             k.price,
			Low:              k.price,
			Close:            k.price,
			Volume:           "10",
			QuoteAssetVolume: "1000",
			TradeNum:         3,
		})
	}
	return res, nil
}

func (f *fakeFutures) ListPrices(ctx context.Context, symbol string) ([]*futures.SymbolPrice, error) {
	if err := f.next("ListPrices"); err != nil {
		return nil, err
	}
	price, ok := f.prices[symbol]
	if !ok {
		return nil, nil
	}
	return []*futures.SymbolPrice{{Symbol: symbol, Price: price}}, nil
}

func (f *fakeFutures) ChangeLeverage(ctx context.Context, symbol string, leverage int) error {
	if err := f.next("ChangeLeverage"); err != nil {
		return err
	}
	f.leverage[symbol] = leverage
	return nil
}

func (f *fakeFutures) ChangeMarginType(ctx context.Context, symbol string, marginType futures.MarginType) error {
	return f.next("ChangeMarginType")
}

func (f *fakeFutures) CreateOrder(ctx context.Context, req FuturesOrderReq) (*futures.CreateOrderResponse, error) {
	if err := f.next("CreateOrder"); err != nil {
		return nil, err
	}
	f.nextOrderID++
	f.created = append(f.created, req)
	f.openOrders = append(f.openOrders, &futures.Order{
		Symbol:        req.Symbol,
		OrderID:       f.nextOrderID,
		Price:         req.Price,
		OrigQuantity:  req.Quantity,
		StopPrice:     req.StopPrice,
		Status:        futures.OrderStatusTypeNew,
		Type:          req.Type,
		Side:          req.Side,
		ClosePosition: req.ClosePosition,
	})
	return &futures.CreateOrderResponse{
		Symbol:        req.Symbol,
		OrderID:       f.nextOrderID,
		Price:         req.Price,
		OrigQuantity:  req.Quantity,
		StopPrice:     req.StopPrice,
		Status:        futures.OrderStatusTypeNew,
		Type:          req.Type,
		Side:          req.Side,
		TimeInForce:   req.TimeInForce,
		ClosePosition: req.ClosePosition,
		UpdateTime:    time.Now().UnixMilli(),
	}, nil
}

// ListOpenOrders 不按交易对过滤, 用来模拟交易所返回了其他交易对的订单
func (f *fakeFutures) ListOpenOrders(ctx context.Context, symbol string) ([]*futures.Order, error) {
	if err := f.next("ListOpenOrders"); err != nil {
		return nil, err
	}
	return slices.Clone(f.openOrders), nil
}

func (f *fakeFutures) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	if err := f.next("CancelOrder"); err != nil {
		return err
	}
	f.canceled = append(f.canceled, orderID)
	f.openOrders = slices.DeleteFunc(f.openOrders, func(o *futures.Order) bool {
		return o.Symbol == symbol && o.OrderID == orderID
	})
	return nil
}

func (f *fakeFutures) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	if err := f.next("CancelAllOpenOrders"); err != nil {
		return err
	}
	f.openOrders = slices.DeleteFunc(f.openOrders, func(o *futures.Order) bool {
		return o.Symbol == symbol
	})
	return nil
}

func (f *fakeFutures) addOpenOrder(symbol string, id int64, typ futures.OrderType, side futures.SideType) {
	f.openOrders = append(f.openOrders, &futures.Order{
		Symbol:       symbol,
		OrderID:      id,
		Price:        "0",
		OrigQuantity: "1",
		StopPrice:    "95",
		Status:       futures.OrderStatusTypeNew,
		Type:         typ,
		Side:         side,
	})
}

type fakeSpot struct {
	calls

	offset     int64
	resets     int
	idleClosed int
	account    *binance.Account
	klines     klineBook
	prices     map[string]string
}

func newFakeSpot() *fakeSpot {
	return &fakeSpot{
		offset:  80,
		account: &binance.Account{},
		prices:  map[string]string{},
	}
}

func (s *fakeSpot) Ping(ctx context.Context) error {
	return s.next("Ping")
}

func (s *fakeSpot) SyncServerTime(ctx context.Context) (int64, error) {
	if err := s.next("SyncServerTime"); err != nil {
		return 0, err
	}
	return s.offset, nil
}

func (s *fakeSpot) ResetTimeOffset() {
	s.resets++
}

func (s *fakeSpot) CloseIdleConnections() {
	s.idleClosed++
}

func (s *fakeSpot) GetAccount(ctx context.Context) (*binance.Account, error) {
	if err := s.next("GetAccount"); err != nil {
		return nil, err
	}
	return s.account, nil
}

func (s *fakeSpot) GetKlines(ctx context.Context, q KlinesQuery) ([]*binance.Kline, error) {
	if err := s.next("GetKlines"); err != nil {
		return nil, err
	}
	page := s.klines.page(q)
	res := make([]*binance.Kline, 0, len(page))
	for _, k := range page {
		res = append(res, &binance.Kline{
			OpenTime:         k.openTime,
			CloseTime:        k.closeTime,
			Open:             k.price,
			High:             k.price,
			Low:              k.price,
			Close:            k.price,
			Volume:           "10",
			QuoteAssetVolume: "1000",
			TradeNum:         3,
		})
	}
	return res, nil
}

func (s *fakeSpot) ListPrices(ctx context.Context, symbol string) ([]*binance.SymbolPrice, error) {
	if err := s.next("ListPrices"); err != nil {
		return nil, err
	}
	price, ok := s.prices[symbol]
	if !ok {
		return nil, nil
	}
	return []*binance.SymbolPrice{{Symbol: symbol, Price: price}}, nil
}

type fakeKline struct {
	openTime  int64
	closeTime int64
	price     string
}

// klineBook 模拟交易所的K线分页.
// messy 为 true 时每页倒序返回, 并且重复带上起始时间之前的一根, 用来检验排序和去重.
type klineBook struct {
	klines []fakeKline
	messy  bool
}

func newKlineBook(start time.Time, interval time.Duration, count int, messy bool) klineBook {
	book := klineBook{messy: messy}
	for i := 0; i < count; i++ {
		open := start.Add(interval * time.Duration(i))
		book.klines = append(book.klines, fakeKline{
			openTime:  open.UnixMilli(),
			closeTime: open.Add(interval).UnixMilli() - 1,
			price:     strconv.Itoa(100 + i%7),
		})
	}
	return book
}

func (b klineBook) page(q KlinesQuery) []fakeKline {
	var res []fakeKline
	for i, k := range b.klines {
		if q.StartTime > 0 && k.openTime < q.StartTime {
			continue
		}
		if q.EndTime > 0 && k.openTime > q.EndTime {
			break
		}
		if len(res) == 0 && b.messy && i > 0 {
			res = append(res, b.klines[i-1])
		}
		res = append(res, k)
		if len(res) >= q.Limit {
			break
		}
	}
	if b.messy {
		slices.Reverse(res)
	}
	return res
}

// sleepRecorder 记录退避时长, 不真正等待
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.delays)
}

type testEnv struct {
	gw      *Gateway
	futures *fakeFutures
	spot    *fakeSpot
	sleeper *sleepRecorder
	faults  []Fault

	cfg  Config
	opts []Option
}

func newTestEnv(t *testing.T, cfg Config, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		futures: newFakeFutures(),
		spot:    newFakeSpot(),
		sleeper: &sleepRecorder{},
	}
	if cfg.RetryCount == 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithSleeper(env.sleeper.sleep),
		WithFaultHook(func(ctx context.Context, fault Fault) {
			env.faults = append(env.faults, fault)
		}),
	}, opts...)
	env.cfg, env.opts = cfg, opts
	env.gw = NewGateway(env.futures, env.spot, cfg, opts...)
	return env
}

// useRemote 用真实的 go-binance 客户端替换内存实现, nil 表示保留原来的
func (env *testEnv) useRemote(futuresAPI FuturesAPI, spotAPI SpotAPI) {
	if futuresAPI == nil {
		futuresAPI = env.futures
	}
	if spotAPI == nil {
		spotAPI = env.spot
	}
	env.gw = NewGateway(futuresAPI, spotAPI, env.cfg, env.opts...)
}

func apiErr(code int64, msg string) error {
	return &common.APIError{Code: code, Message: msg}
}
