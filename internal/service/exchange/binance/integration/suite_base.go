package integration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/KNICEX/trading-gateway/internal/service/exchange"
	"github.com/KNICEX/trading-gateway/internal/service/exchange/binance"
	"github.com/KNICEX/trading-gateway/ioc"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/suite"
)

// BaseSuite 连接真实币安接口的测试套件基础, 没有配置文件或凭证时跳过
type BaseSuite struct {
	suite.Suite
	gateway *binance.Gateway
	cfg     ioc.GatewayConfig

	testPair exchange.TradingPair
	ctx      context.Context
	cancel   context.CancelFunc
}

// SetupSuite 在测试套件开始前运行一次
func (s *BaseSuite) SetupSuite() {
	s.T().Log("=== 初始化测试套件 ===")

	viper.AddConfigPath("../../../../../config")
	viper.SetConfigName("config.dev")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		s.T().Skipf("读取配置文件失败, 跳过集成测试: %v", err)
	}

	cfg, err := ioc.LoadGatewayConfig()
	if errors.Is(err, ioc.ErrMissingCredentials) {
		s.T().Skip("未配置 api_key / api_secret, 跳过集成测试")
	}
	s.Require().NoError(err, "解析配置失败")
	s.cfg = cfg

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if os.Getenv("GATEWAY_DEBUG") != "" {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)
	s.gateway = ioc.InitBinanceGateway(cfg, logger)
	s.Require().NoError(s.gateway.Connect(s.ctx), "连接网关失败")
	s.testPair = cfg.TradingPair()

	session := s.gateway.Session()
	s.T().Logf("✓ 测试套件初始化完成, futures=%v spot_fallback=%v offset=%dms",
		session.FuturesAvailable, session.UsingSpotFallback, session.TimeOffset)
}

// TearDownSuite 在测试套件结束后运行一次
func (s *BaseSuite) TearDownSuite() {
	if s.cancel != nil {
		s.cancel()
	}
	s.T().Log("=== 测试套件清理完成 ===")
}

// SetupTest 在每个测试用例开始前运行
func (s *BaseSuite) SetupTest() {
	s.T().Logf(">>> 开始测试: %s", s.T().Name())
}

// TearDownTest 在每个测试用例结束后运行
func (s *BaseSuite) TearDownTest() {
	s.T().Logf("<<< 结束测试: %s\n", s.T().Name())
}

// RequireFutures 现货降级时跳过只支持合约的用例
func (s *BaseSuite) RequireFutures() {
	if !s.gateway.Session().FuturesAvailable {
		s.T().Skip("合约不可用, 已降级到现货")
	}
}
