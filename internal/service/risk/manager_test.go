package risk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/KNICEX/trading-gateway/internal/service/exchange"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var btcusdt = exchange.TradingPair{Base: "BTC", Quote: "USDT"}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testRules() *exchange.SymbolRules {
	return &exchange.SymbolRules{
		TradingPair:       btcusdt,
		PricePrecision:    2,
		QuantityPrecision: 3,
		MinQuantity:       d("0.001"),
		MaxQuantity:       d("1000"),
		StepSize:          d("0.001"),
		TickSize:          d("0.01"),
		MinNotional:       d("5"),
	}
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *MockGateway) {
	t.Helper()
	gw := &MockGateway{}
	m := NewManager(gw, cfg, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return m, gw
}

func TestSetMarketCondition(t *testing.T) {
	m, _ := newTestManager(t, DefaultConfig())
	assert.Equal(t, MarketBullish, m.MarketCondition())

	m.SetMarketCondition(MarketSideways)
	assert.Equal(t, MarketSideways, m.MarketCondition())

	m.SetMarketCondition("CRAB")
	assert.Equal(t, MarketBullish, m.MarketCondition())
}

func TestUpdatePositionSizing(t *testing.T) {
	m, _ := newTestManager(t, DefaultConfig())

	m.UpdatePositionSizing(0.5)
	assert.Equal(t, "0.5", m.sizeMultiplierValue().String())

	m.UpdatePositionSizing(-2)
	assert.Equal(t, "1", m.sizeMultiplierValue().String())
}

func TestCalculatePositionSize(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name       string
		balance    string
		rules      *exchange.SymbolRules
		position   *exchange.Position
		multiplier float64
		price      string
		stopLoss   string
		want       string
		wantErr    error
	}{
		{
			name:    "stop loss distance",
			balance: "1000", rules: testRules(), price: "100", stopLoss: "98",
			want: "10",
		},
		{
			name:    "stop loss distance with half size",
			balance: "1000", rules: testRules(), multiplier: 0.5, price: "100", stopLoss: "98",
			want: "5",
		},
		{
			name:    "no stop uses configured leverage",
			balance: "1000", rules: testRules(), price: "100",
			want: "0.2",
		},
		{
			name:    "no stop uses position leverage",
			balance: "1000", rules: testRules(), price: "100",
			position: &exchange.Position{TradingPair: btcusdt, Leverage: 5},
			want:     "1",
		},
		{
			name:    "raised to min notional",
			balance: "99.5", price: "100",
			rules: &exchange.SymbolRules{PricePrecision: 2, QuantityPrecision: 3, StepSize: d("0.01"), MinNotional: d("1.5")},
			want:  "0.015",
		},
		{
			name:    "cannot reach min notional",
			balance: "100", price: "100", stopLoss: "90",
			rules:   &exchange.SymbolRules{PricePrecision: 2, QuantityPrecision: 3, StepSize: d("0.001"), MinNotional: d("100")},
			wantErr: ErrPositionTooSmall,
		},
		{
			name:    "small account forced to min notional",
			balance: "8", rules: testRules(), price: "100",
			position: &exchange.Position{TradingPair: btcusdt, Leverage: 10},
			want:     "0.05",
		},
		{
			name:    "small account too small",
			balance: "0.1", rules: testRules(), price: "100",
			wantErr: ErrPositionTooSmall,
		},
		{
			name:    "zero balance",
			balance: "0", rules: testRules(), price: "100",
			wantErr: ErrInsufficientBalance,
		},
		{
			name:    "no symbol rules",
			balance: "1000", price: "100",
			wantErr: ErrSymbolRulesUnavailable,
		},
		{
			name:    "stop equals price",
			balance: "1000", rules: testRules(), price: "100", stopLoss: "100",
			wantErr: ErrStopTooClose,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, gw := newTestManager(t, DefaultConfig())
			if tc.multiplier > 0 {
				m.UpdatePositionSizing(tc.multiplier)
			}
			gw.On("GetAccountBalance", mock.Anything).Return(d(tc.balance), nil)
			gw.On("GetSymbolRules", mock.Anything, btcusdt).Return(tc.rules, nil)
			gw.On("GetPosition", mock.Anything, btcusdt).Return(tc.position, nil)

			stop := decimal.Zero
			if tc.stopLoss != "" {
				stop = d(tc.stopLoss)
			}
			quantity, err := m.CalculatePositionSize(ctx, btcusdt, exchange.SideBuy, d(tc.price), stop)

			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.True(t, quantity.IsZero())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, quantity.String())
		})
	}
}

func TestCalculatePositionSize_BalanceError(t *testing.T) {
	m, gw := newTestManager(t, DefaultConfig())
	gw.On("GetAccountBalance", mock.Anything).Return(decimal.Zero, errors.New("gateway down"))

	quantity, err := m.CalculatePositionSize(context.Background(), btcusdt, exchange.SideBuy, d("100"), d("98"))

	assert.Error(t, err)
	assert.True(t, quantity.IsZero())
	gw.AssertNotCalled(t, "GetSymbolRules", mock.Anything, mock.Anything)
}

func TestShouldOpenPosition(t *testing.T) {
	ctx := context.Background()

	t.Run("open position", func(t *testing.T) {
		m, gw := newTestManager(t, DefaultConfig())
		gw.On("GetPosition", mock.Anything, btcusdt).Return(&exchange.Position{TradingPair: btcusdt, PositionAmount: d("0.1")}, nil)

		ok, err := m.ShouldOpenPosition(ctx, btcusdt)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("no position", func(t *testing.T) {
		m, gw := newTestManager(t, DefaultConfig())
		gw.On("GetPosition", mock.Anything, btcusdt).Return(nil, nil)

		ok, err := m.ShouldOpenPosition(ctx, btcusdt)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("query failed", func(t *testing.T) {
		m, gw := newTestManager(t, DefaultConfig())
		gw.On("GetPosition", mock.Anything, btcusdt).Return(nil, errors.New("futures unavailable"))

		ok, err := m.ShouldOpenPosition(ctx, btcusdt)
		assert.Error(t, err)
		assert.False(t, ok)
	})
}

func TestCalculateStopLossAndTakeProfit(t *testing.T) {
	ctx := context.Background()
	m, gw := newTestManager(t, DefaultConfig())
	gw.On("GetSymbolRules", mock.Anything, btcusdt).Return(testRules(), nil)

	assert.Equal(t, "98", m.CalculateStopLoss(ctx, btcusdt, exchange.SideBuy, d("100")).String())
	assert.Equal(t, "105", m.CalculateTakeProfit(ctx, btcusdt, exchange.SideBuy, d("100")).String())

	m.SetMarketCondition(MarketBearish)
	assert.Equal(t, "101.5", m.CalculateStopLoss(ctx, btcusdt, exchange.SideSell, d("100")).String())
	assert.Equal(t, "97", m.CalculateTakeProfit(ctx, btcusdt, exchange.SideSell, d("100")).String())

	m.SetMarketCondition(MarketExtremeBullish)
	assert.Equal(t, "65432.1", m.CalculateStopLoss(ctx, btcusdt, exchange.SideBuy, d("66767.45")).String())

	cfg := DefaultConfig()
	cfg.UseStopLoss = false
	cfg.UseTakeProfit = false
	disabled, _ := newTestManager(t, cfg)
	assert.True(t, disabled.CalculateStopLoss(ctx, btcusdt, exchange.SideBuy, d("100")).IsZero())
	assert.True(t, disabled.CalculateTakeProfit(ctx, btcusdt, exchange.SideBuy, d("100")).IsZero())
}

func TestAdjustTrailingStop(t *testing.T) {
	ctx := context.Background()
	long := &exchange.Position{TradingPair: btcusdt, PositionAmount: d("1"), EntryPrice: d("100")}
	short := &exchange.Position{TradingPair: btcusdt, PositionAmount: d("-1"), EntryPrice: d("100")}

	m, gw := newTestManager(t, DefaultConfig())
	gw.On("GetSymbolRules", mock.Anything, btcusdt).Return(testRules(), nil)

	stop, ok, err := m.AdjustTrailingStop(ctx, btcusdt, exchange.SideBuy, d("110"), long)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "107.8", stop.String())

	_, ok, err = m.AdjustTrailingStop(ctx, btcusdt, exchange.SideBuy, d("99"), long)
	require.NoError(t, err)
	assert.False(t, ok, "long stop must never move down")

	stop, ok, err = m.AdjustTrailingStop(ctx, btcusdt, exchange.SideSell, d("90"), short)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "91.8", stop.String())

	_, ok, err = m.AdjustTrailingStop(ctx, btcusdt, exchange.SideSell, d("101"), short)
	require.NoError(t, err)
	assert.False(t, ok, "short stop must never move up")

	other := &exchange.Position{TradingPair: exchange.TradingPair{Base: "ETH", Quote: "USDT"}, PositionAmount: d("1"), EntryPrice: d("100")}
	_, ok, err = m.AdjustTrailingStop(ctx, btcusdt, exchange.SideBuy, d("110"), other)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAdjustTrailingStop_FetchesPosition(t *testing.T) {
	m, gw := newTestManager(t, DefaultConfig())
	gw.On("GetPosition", mock.Anything, btcusdt).Return(nil, nil).Once()

	_, ok, err := m.AdjustTrailingStop(context.Background(), btcusdt, exchange.SideBuy, d("110"), nil)

	require.NoError(t, err)
	assert.False(t, ok)
	gw.AssertExpectations(t)
}

func TestAdjustTrailingTakeProfit(t *testing.T) {
	ctx := context.Background()
	position := &exchange.Position{TradingPair: btcusdt, PositionAmount: d("1"), EntryPrice: d("95")}
	tpOrder := func(side exchange.Side, stop string) exchange.Order {
		return exchange.Order{Id: "1", TradingPair: btcusdt, Side: side, Type: exchange.OrderTypeTakeProfitMarket, StopPrice: d(stop)}
	}

	testCases := []struct {
		name   string
		side   exchange.Side
		orders []exchange.Order
		want   string
		ok     bool
	}{
		{name: "long without existing order", side: exchange.SideBuy, want: "103", ok: true},
		{name: "long raises take profit", side: exchange.SideBuy, orders: []exchange.Order{tpOrder(exchange.SideSell, "102")}, want: "103", ok: true},
		{name: "long keeps higher take profit", side: exchange.SideBuy, orders: []exchange.Order{tpOrder(exchange.SideSell, "104")}},
		{name: "long ignores same side order", side: exchange.SideBuy, orders: []exchange.Order{tpOrder(exchange.SideBuy, "104")}, want: "103", ok: true},
		{name: "short lowers take profit", side: exchange.SideSell, orders: []exchange.Order{tpOrder(exchange.SideBuy, "98")}, want: "97", ok: true},
		{name: "short keeps lower take profit", side: exchange.SideSell, orders: []exchange.Order{tpOrder(exchange.SideBuy, "96")}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, gw := newTestManager(t, DefaultConfig())
			gw.On("GetSymbolRules", mock.Anything, btcusdt).Return(testRules(), nil)
			gw.On("GetOpenOrders", mock.Anything, btcusdt).Return(tc.orders, nil)

			tp, ok, err := m.AdjustTrailingTakeProfit(ctx, btcusdt, tc.side, d("100"), position)

			require.NoError(t, err)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, tp.String())
			}
		})
	}
}

func TestCalculatePartialTakeProfits(t *testing.T) {
	ctx := context.Background()
	m, gw := newTestManager(t, DefaultConfig())
	gw.On("GetSymbolRules", mock.Anything, btcusdt).Return(testRules(), nil)

	levels := m.CalculatePartialTakeProfits(ctx, btcusdt, exchange.SideBuy, d("100"))
	require.Len(t, levels, 3)
	assert.Equal(t, []string{"102.5", "105", "107.5"}, []string{
		levels[0].Price.String(), levels[1].Price.String(), levels[2].Price.String()})
	assert.Equal(t, "1", levels[0].Portion.Add(levels[1].Portion).Add(levels[2].Portion).String())
	assert.Equal(t, "5", levels[1].PctFromEntry.String())

	m.SetMarketCondition(MarketSideways)
	levels = m.CalculatePartialTakeProfits(ctx, btcusdt, exchange.SideSell, d("100"))
	require.Len(t, levels, 3)
	assert.Equal(t, []string{"98.6", "98", "97.6"}, []string{
		levels[0].Price.String(), levels[1].Price.String(), levels[2].Price.String()})
}

func TestUpdateBalanceForCompounding(t *testing.T) {
	ctx := context.Background()
	m, gw := newTestManager(t, DefaultConfig())
	gw.On("GetAccountBalance", mock.Anything).Return(d("100"), nil).Once()
	gw.On("GetAccountBalance", mock.Anything).Return(d("120"), nil).Once()
	gw.On("GetAccountBalance", mock.Anything).Return(d("110"), nil).Once()

	_, ok := m.Compounding()
	assert.False(t, ok)

	for _, want := range []bool{false, true, false} {
		compounded, err := m.UpdateBalanceForCompounding(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, compounded)
	}

	summary, ok := m.Compounding()
	require.True(t, ok)
	assert.Equal(t, "100", summary.InitialBalance.String())
	assert.Equal(t, "120", summary.LastKnownBalance.String())
	// 20 的盈利按 50% 复利
	assert.Equal(t, "10", summary.Reinvested.String())
	assert.Equal(t, "20", summary.Growth().String())
}

func flatKlines(n int) []exchange.Kline {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	klines := make([]exchange.Kline, n)
	for i := range klines {
		klines[i] = exchange.Kline{
			OpenTime: start.Add(time.Duration(i) * time.Hour),
			Open:     d("100"),
			High:     d("101"),
			Low:      d("99"),
			Close:    d("100"),
		}
	}
	return klines
}

func TestCalculateVolatilityStopLoss(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.StopLoss.Default = 0.05

	t.Run("too few klines uses percentage stop", func(t *testing.T) {
		m, gw := newTestManager(t, DefaultConfig())
		gw.On("GetSymbolRules", mock.Anything, btcusdt).Return(testRules(), nil)

		stop := m.CalculateVolatilityStopLoss(ctx, btcusdt, exchange.SideBuy, d("100"), flatKlines(10))
		assert.Equal(t, "98", stop.String())
	})

	t.Run("atr stop for long", func(t *testing.T) {
		m, gw := newTestManager(t, cfg)
		gw.On("GetSymbolRules", mock.Anything, btcusdt).Return(testRules(), nil)

		// ATR = 2, 牛市系数 2
		stop := m.CalculateVolatilityStopLoss(ctx, btcusdt, exchange.SideBuy, d("100"), flatKlines(30))
		assert.Equal(t, "96", stop.String())
	})

	t.Run("support level tightens long stop", func(t *testing.T) {
		m, gw := newTestManager(t, cfg)
		gw.On("GetSymbolRules", mock.Anything, btcusdt).Return(testRules(), nil)
		klines := flatKlines(30)
		klines[25].Low = d("97.5")

		stop := m.CalculateVolatilityStopLoss(ctx, btcusdt, exchange.SideBuy, d("100"), klines)
		assert.InDelta(t, 97.4, stop.InexactFloat64(), 0.011)
	})

	t.Run("max distance caps short stop", func(t *testing.T) {
		m, gw := newTestManager(t, cfg)
		gw.On("GetSymbolRules", mock.Anything, btcusdt).Return(testRules(), nil)
		m.SetMarketCondition(MarketExtremeBullish)

		// ATR 止损 105, 上限 100 * (1 + 0.05 * 0.8)
		stop := m.CalculateVolatilityStopLoss(ctx, btcusdt, exchange.SideSell, d("100"), flatKlines(30))
		assert.Equal(t, "104", stop.String())
	})
}
