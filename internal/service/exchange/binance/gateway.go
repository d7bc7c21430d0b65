package binance

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/KNICEX/trading-gateway/internal/service/exchange"
	"github.com/jpillora/backoff"
	"golang.org/x/time/rate"
)

var _ exchange.Gateway = (*Gateway)(nil)

const (
	defaultRetryCount    = 3
	defaultRetryDelay    = time.Second
	defaultMaxRetryDelay = time.Minute
	defaultQuoteAsset    = "USDT"
)

type Config struct {
	TradingType exchange.TradingType
	// RetryCount 每个操作的最大尝试次数(含第一次)
	RetryCount int
	// RetryDelay 退避基数, 第 n 次重试前等待 RetryDelay * 2^n
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	// QuoteAsset 余额查询使用的资产, 默认 USDT
	QuoteAsset string
}

// Fault 一次降级(操作最终失败)的记录
type Fault struct {
	Op       string
	Category Category
	Attempts int
	Err      error
	At       time.Time
}

type FaultHook func(ctx context.Context, fault Fault)

// Gateway 币安合约/现货的容错网关.
// 所有操作在调用方 goroutine 上同步阻塞执行, 失败时重试或降级, 不会把原始错误抛给调用方.
type Gateway struct {
	futures FuturesAPI
	spot    SpotAPI

	logger      *slog.Logger
	tradingType exchange.TradingType
	quoteAsset  string
	maxAttempts int
	backoff     *backoff.Backoff
	limiter     *rate.Limiter
	sleep       func(ctx context.Context, d time.Duration) error
	faultHook   FaultHook

	mu      sync.RWMutex
	session Session

	// clientMu 保护客户端里的时间偏移: 同步时间时独占, 其余远程调用共享
	clientMu sync.RWMutex

	// 交易规则在会话内不变, 首次获取后缓存
	rules sync.Map
}

type Option func(g *Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithRateLimit 客户端令牌桶限频, 每次远程调用(包括重试)前等待
func WithRateLimit(rps float64, burst int) Option {
	return func(g *Gateway) {
		if rps > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		}
	}
}

func WithFaultHook(hook FaultHook) Option {
	return func(g *Gateway) {
		g.faultHook = hook
	}
}

// WithSleeper 替换退避等待的实现, 主要用于测试
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gateway) {
		g.sleep = sleep
	}
}

func NewGateway(futuresAPI FuturesAPI, spotAPI SpotAPI, cfg Config, opts ...Option) *Gateway {
	if cfg.TradingType == "" {
		cfg.TradingType = exchange.TradingTypeFutures
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = defaultRetryCount
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = defaultMaxRetryDelay
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = defaultQuoteAsset
	}

	spotOnly := cfg.TradingType == exchange.TradingTypeSpot
	g := &Gateway{
		futures:     futuresAPI,
		spot:        spotAPI,
		logger:      slog.Default(),
		tradingType: cfg.TradingType,
		quoteAsset:  cfg.QuoteAsset,
		maxAttempts: cfg.RetryCount,
		backoff: &backoff.Backoff{
			Min:    cfg.RetryDelay,
			Max:    cfg.MaxRetryDelay,
			Factor: 2,
		},
		sleep: sleepContext,
		session: Session{
			State:             StateDisconnected,
			FuturesAvailable:  !spotOnly,
			UsingSpotFallback: spotOnly,
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Connect 建立会话: Connecting -> ProbingFutures -> Ready.
// 连接阶段按 RetryDelay * 2^attempt 退避重试, 全部失败返回 CategoryFatal 错误, 进程无法继续.
func (g *Gateway) Connect(ctx context.Context) error {
	g.setState(StateConnecting)

	var lastErr error
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		lastErr = g.handshake(ctx)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if attempt+1 < g.maxAttempts {
			delay := g.backoff.ForAttempt(float64(attempt))
			g.logger.Warn("connect to binance failed, retrying",
				"attempt", attempt+1, "max_attempts", g.maxAttempts, "delay", delay, "error", lastErr)
			if err := g.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}
	}
	if lastErr != nil {
		g.setState(StateDisconnected)
		g.logger.Error("unable to connect to binance", "error", lastErr)
		return &GatewayError{Op: "connect", Category: CategoryFatal, Attempts: g.maxAttempts, Err: lastErr}
	}

	if g.tradingType == exchange.TradingTypeSpot {
		g.setState(StateReady)
		g.logger.Info("binance gateway ready", "mode", "spot")
		return nil
	}

	g.setState(StateProbingFutures)
	g.probeFutures(ctx)
	if !g.FuturesAvailable() {
		// 降级后以现货服务器时间为准
		if _, err := g.syncClock(ctx); err != nil {
			g.resetTimeOffset()
			g.logger.Warn("time sync on spot failed, using local clock", "error", err)
		}
	}
	g.setState(StateReady)

	s := g.Session()
	g.logger.Info("binance gateway ready",
		"futures_available", s.FuturesAvailable, "spot_fallback", s.UsingSpotFallback, "time_offset", s.TimeOffset)
	return nil
}

// Reinitialize 丢弃空闲连接并重新握手, 只尝试一次, 不会重新开启合约
func (g *Gateway) Reinitialize(ctx context.Context) error {
	g.futures.CloseIdleConnections()
	g.spot.CloseIdleConnections()
	if err := g.handshake(ctx); err != nil {
		g.logger.Error("reinitialize session failed", "error", err)
		return err
	}
	g.logger.Info("session reinitialized")
	return nil
}

func (g *Gateway) handshake(ctx context.Context) error {
	if err := g.ping(ctx); err != nil {
		return err
	}
	if _, err := g.syncClock(ctx); err != nil {
		g.resetTimeOffset()
		g.logger.Warn("time sync failed during handshake, using local clock", "error", err)
	}
	return nil
}

// ping 合约主机被拦截(HTML, 无权限)时改为 ping 现货, 是否降级由 probeFutures 决定
func (g *Gateway) ping(ctx context.Context) error {
	g.clientMu.RLock()
	defer g.clientMu.RUnlock()

	if !g.FuturesAvailable() {
		return g.spot.Ping(ctx)
	}
	err := g.futures.Ping(ctx)
	if err == nil {
		return nil
	}
	if Classify(err) != CategoryPermission && !isMalformedPayload(err) {
		return err
	}
	g.logger.Warn("futures ping failed, trying spot", "error", err)
	if spotErr := g.spot.Ping(ctx); spotErr != nil {
		return errors.Join(err, spotErr)
	}
	return nil
}

// probeFutures 用一个轻量的合约账户请求判断合约是否可用
func (g *Gateway) probeFutures(ctx context.Context) {
	g.clientMu.RLock()
	err := g.futures.GetAccount(ctx)
	g.clientMu.RUnlock()
	if err == nil {
		return
	}
	switch {
	case Classify(err) == CategoryPermission:
		g.enableSpotFallback("no futures permission")
	case isMalformedPayload(err):
		g.enableSpotFallback("futures endpoint returned non-json payload")
	default:
		g.logger.Warn("futures probe failed, assuming futures available", "error", err)
	}
}

// SynchronizeClock 同步服务器时间, 失败时偏移重置为 0
func (g *Gateway) SynchronizeClock(ctx context.Context) (int64, error) {
	offset, err := call(ctx, g, "synchronize_clock", g.syncServerTime, withClockWrite())
	if err != nil {
		g.resetTimeOffset()
		return 0, err
	}
	return offset, nil
}

// syncClock 独占客户端后同步时间, 不能在 call 的 fn 内调用
func (g *Gateway) syncClock(ctx context.Context) (int64, error) {
	g.clientMu.Lock()
	defer g.clientMu.Unlock()
	return g.syncServerTime(ctx)
}

// syncServerTime 调用方需要持有 clientMu 写锁
func (g *Gateway) syncServerTime(ctx context.Context) (int64, error) {
	futuresAvailable := g.FuturesAvailable()

	var offset int64
	if futuresAvailable {
		o, err := g.futures.SyncServerTime(ctx)
		if err != nil {
			return 0, err
		}
		offset = o
	}

	// 现货客户端是降级路径, 也需要正确的时间偏移
	spotOffset, err := g.spot.SyncServerTime(ctx)
	if err != nil {
		if !futuresAvailable {
			return 0, err
		}
		g.logger.Warn("spot time sync failed", "error", err)
	} else if !futuresAvailable {
		offset = spotOffset
	}

	g.setTimeOffset(offset)
	return offset, nil
}

func (g *Gateway) resetTimeOffset() {
	g.clientMu.Lock()
	g.futures.ResetTimeOffset()
	g.spot.ResetTimeOffset()
	g.clientMu.Unlock()
	g.setTimeOffset(0)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
