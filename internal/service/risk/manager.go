package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/KNICEX/trading-gateway/internal/service/exchange"
	"github.com/KNICEX/trading-gateway/pkg/decimalx"
	"github.com/shopspring/decimal"
)

var (
	one  = decimal.NewFromInt(1)
	half = decimal.NewFromFloat(0.5)
)

// Manager 仓位大小, 止盈止损计算. 只通过 exchange.Gateway 访问交易所.
type Manager struct {
	gateway exchange.Gateway
	cfg     Config
	logger  *slog.Logger

	mu             sync.Mutex
	condition      MarketCondition
	sizeMultiplier decimal.Decimal
	// 自动复利记录的余额, 未初始化时为 nil
	initialBalance   *decimal.Decimal
	lastKnownBalance *decimal.Decimal
	// reinvested 累计投入复利的盈利
	reinvested decimal.Decimal
}

type Option func(m *Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func NewManager(gateway exchange.Gateway, cfg Config, opts ...Option) *Manager {
	if cfg.Leverage <= 0 {
		cfg.Leverage = 1
	}
	m := &Manager{
		gateway:        gateway,
		cfg:            cfg,
		logger:         slog.Default(),
		condition:      MarketBullish,
		sizeMultiplier: one,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetMarketCondition 非法值按 BULLISH 处理
func (m *Manager) SetMarketCondition(c MarketCondition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !c.IsValid() {
		m.logger.Warn("invalid market condition, using BULLISH", "condition", c)
		c = MarketBullish
	}
	if m.condition != c {
		m.logger.Info("market condition changed", "from", m.condition, "to", c)
	}
	m.condition = c
}

func (m *Manager) MarketCondition() MarketCondition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.condition
}

// UpdatePositionSizing 仓位大小系数, 0.5 表示一半仓位; 非正数重置为 1
func (m *Manager) UpdatePositionSizing(multiplier float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if multiplier <= 0 {
		m.logger.Warn("invalid position size multiplier, using 1.0", "multiplier", multiplier)
		multiplier = 1
	}
	m.sizeMultiplier = decimal.NewFromFloat(multiplier)
	m.logger.Info("position size multiplier updated", "multiplier", multiplier)
}

func (m *Manager) sizeMultiplierValue() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sizeMultiplier
}

// CalculatePositionSize 按风险比例计算开仓数量.
// 有止损价时按止损距离计算, 否则按余额 * 风险 * 杠杆计算; 结果按步长取整并满足最小名义价值.
func (m *Manager) CalculatePositionSize(ctx context.Context, pair exchange.TradingPair, side exchange.Side,
	price, stopLoss decimal.Decimal) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("invalid price %s", price)
	}

	balance, err := m.gateway.GetAccountBalance(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	m.trackBalance(balance)
	if !balance.IsPositive() {
		m.logger.Error("insufficient balance to open a position", "balance", balance)
		return decimal.Zero, ErrInsufficientBalance
	}

	rules, err := m.gateway.GetSymbolRules(ctx, pair)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get symbol rules: %w", err)
	}
	if rules == nil {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrSymbolRulesUnavailable, pair.ToString())
	}

	smallAccount := balance.LessThan(decimal.NewFromFloat(m.cfg.SmallAccountBalance))
	effectiveRisk := decimal.NewFromFloat(m.cfg.RiskPerTrade)
	if smallAccount {
		effectiveRisk = decimal.Max(effectiveRisk, decimal.NewFromFloat(m.cfg.SmallAccountMinRisk))
		m.logger.Info("small account detected", "balance", balance, "risk", effectiveRisk)
	}
	riskAmount := balance.Mul(effectiveRisk).Mul(m.sizeMultiplierValue())

	var (
		leverage    decimal.Decimal
		maxQuantity decimal.Decimal
	)
	if m.cfg.UseStopLoss && stopLoss.IsPositive() {
		riskPerUnit := price.Sub(stopLoss).Abs()
		if !riskPerUnit.IsPositive() {
			return decimal.Zero, ErrStopTooClose
		}
		maxQuantity = riskAmount.Div(riskPerUnit)
	} else {
		leverage = m.currentLeverage(ctx, pair)
		maxQuantity = riskAmount.Mul(leverage).Div(price)
	}

	quantity := rules.RoundQuantity(maxQuantity)
	precision := rules.QuantityPrecision

	if quantity.Mul(price).LessThan(rules.MinNotional) {
		m.logger.Warn("position size below minimum notional", "quantity", quantity, "min_notional", rules.MinNotional)
		minQuantity := decimalx.CeilToPrecision(rules.MinNotional.Div(price), precision)

		if smallAccount {
			if leverage.IsZero() {
				leverage = m.currentLeverage(ctx, pair)
			}
			// 小账户最多使用一半余额作为保证金
			maxSafe := decimalx.FloorToPrecision(balance.Mul(half).Mul(leverage).Div(price), precision)
			quantity = decimal.Min(minQuantity, maxSafe)
		} else if minQuantity.LessThanOrEqual(maxQuantity) {
			quantity = minQuantity
		} else {
			return decimal.Zero, ErrPositionTooSmall
		}
	}

	if !quantity.IsPositive() {
		m.logger.Error("balance too low to open even minimum position", "balance", balance)
		return decimal.Zero, ErrPositionTooSmall
	}
	m.logger.Info("calculated position size", "symbol", pair.ToString(), "side", side,
		"quantity", quantity, "price", price)
	return quantity, nil
}

// currentLeverage 有仓位时使用仓位杠杆, 否则使用配置
func (m *Manager) currentLeverage(ctx context.Context, pair exchange.TradingPair) decimal.Decimal {
	position, err := m.gateway.GetPosition(ctx, pair)
	if err == nil && position != nil && position.Leverage > 0 {
		return decimal.NewFromInt(int64(position.Leverage))
	}
	return decimal.NewFromInt(int64(m.cfg.Leverage))
}

// ShouldOpenPosition 交易对已有持仓时不再开仓; 查询失败时也不开仓
func (m *Manager) ShouldOpenPosition(ctx context.Context, pair exchange.TradingPair) (bool, error) {
	position, err := m.gateway.GetPosition(ctx, pair)
	if err != nil {
		return false, fmt.Errorf("get position: %w", err)
	}
	if position.IsOpen() {
		m.logger.Info("already have an open position", "symbol", pair.ToString(), "amount", position.PositionAmount)
		return false, nil
	}
	return true, nil
}

// CalculateStopLoss 按市场状态的百分比计算止损价, 关闭止损时返回 0
func (m *Manager) CalculateStopLoss(ctx context.Context, pair exchange.TradingPair, side exchange.Side,
	entryPrice decimal.Decimal) decimal.Decimal {
	if !m.cfg.UseStopLoss {
		return decimal.Zero
	}
	condition := m.MarketCondition()
	pct := m.cfg.StopLoss.For(condition)

	stop := awayFrom(entryPrice, pct, side, false)
	stop = m.roundPrice(ctx, pair, stop)
	m.logger.Info("calculated stop loss", "symbol", pair.ToString(), "condition", condition,
		"stop_price", stop, "pct", pct)
	return stop
}

// CalculateTakeProfit 按市场状态的百分比计算止盈价, 关闭止盈时返回 0
func (m *Manager) CalculateTakeProfit(ctx context.Context, pair exchange.TradingPair, side exchange.Side,
	entryPrice decimal.Decimal) decimal.Decimal {
	if !m.cfg.UseTakeProfit {
		return decimal.Zero
	}
	condition := m.MarketCondition()
	pct := m.cfg.TakeProfit.For(condition)

	tp := awayFrom(entryPrice, pct, side, true)
	tp = m.roundPrice(ctx, pair, tp)
	m.logger.Info("calculated take profit", "symbol", pair.ToString(), "condition", condition,
		"take_profit", tp, "pct", pct)
	return tp
}

// AdjustTrailingStop 跟踪止损, 只会收紧: 多头只上移, 空头只下移.
// position 为 nil 时实时查询; 返回 false 表示无需调整.
func (m *Manager) AdjustTrailingStop(ctx context.Context, pair exchange.TradingPair, side exchange.Side,
	currentPrice decimal.Decimal, position *exchange.Position) (decimal.Decimal, bool, error) {
	if !m.cfg.TrailingStop {
		return decimal.Zero, false, nil
	}
	if position == nil {
		p, err := m.gateway.GetPosition(ctx, pair)
		if err != nil {
			return decimal.Zero, false, fmt.Errorf("get position: %w", err)
		}
		position = p
	}
	if !position.IsOpen() {
		return decimal.Zero, false, nil
	}
	if position.TradingPair != pair {
		m.logger.Warn("position symbol mismatch", "expected", pair.ToString(), "got", position.TradingPair.ToString())
		return decimal.Zero, false, nil
	}

	pct := m.cfg.TrailingStopPct.For(m.MarketCondition())
	newStop := awayFrom(currentPrice, pct, side, false)
	currentStop := m.CalculateStopLoss(ctx, pair, side, position.EntryPrice)
	if !currentStop.IsZero() {
		if side == exchange.SideBuy && newStop.LessThanOrEqual(currentStop) {
			return decimal.Zero, false, nil
		}
		if side == exchange.SideSell && newStop.GreaterThanOrEqual(currentStop) {
			return decimal.Zero, false, nil
		}
	}

	newStop = m.roundPrice(ctx, pair, newStop)
	m.logger.Info("trailing stop adjusted", "symbol", pair.ToString(), "from", currentStop, "to", newStop,
		"current_price", currentPrice, "entry_price", position.EntryPrice)
	return newStop, true, nil
}

// AdjustTrailingTakeProfit 跟踪止盈: 与交易对上已有的 TAKE_PROFIT_MARKET 单比较,
// 多头只上移, 空头只下移. 没有已有止盈单时直接返回新价格.
func (m *Manager) AdjustTrailingTakeProfit(ctx context.Context, pair exchange.TradingPair, side exchange.Side,
	currentPrice decimal.Decimal, position *exchange.Position) (decimal.Decimal, bool, error) {
	if !m.cfg.UseTakeProfit || !m.cfg.TrailingTakeProfit {
		return decimal.Zero, false, nil
	}
	if position == nil || !position.EntryPrice.IsPositive() {
		return decimal.Zero, false, nil
	}
	if !side.IsValid() {
		return decimal.Zero, false, nil
	}
	rules, err := m.gateway.GetSymbolRules(ctx, pair)
	if err != nil || rules == nil {
		return decimal.Zero, false, err
	}

	pct := m.cfg.TrailingProfitPct.For(m.MarketCondition())
	tp := awayFrom(currentPrice, pct, side, true)
	if side == exchange.SideBuy {
		tp = decimalx.FloorToPrecision(tp, rules.PricePrecision)
	} else {
		tp = decimalx.CeilToPrecision(tp, rules.PricePrecision)
	}

	orders, err := m.gateway.GetOpenOrders(ctx, pair)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("get open orders: %w", err)
	}
	// 平仓方向与持仓方向相反
	closeSide := side.Reverse()
	var existing *exchange.Order
	for i := range orders {
		o := orders[i]
		if o.TradingPair == pair && o.Type == exchange.OrderTypeTakeProfitMarket && o.Side == closeSide {
			existing = &orders[i]
			break
		}
	}

	if existing == nil {
		m.logger.Info("initial trailing take profit", "symbol", pair.ToString(), "take_profit", tp)
		return tp, true, nil
	}
	better := (side == exchange.SideBuy && tp.GreaterThan(existing.StopPrice)) ||
		(side == exchange.SideSell && tp.LessThan(existing.StopPrice))
	if !better {
		return decimal.Zero, false, nil
	}
	m.logger.Info("trailing take profit adjusted", "symbol", pair.ToString(),
		"from", existing.StopPrice, "to", tp, "current_price", currentPrice)
	return tp, true, nil
}

// UpdateBalanceForCompounding 记录余额变化, 有新增盈利时返回 true
func (m *Manager) UpdateBalanceForCompounding(ctx context.Context) (bool, error) {
	if !m.cfg.AutoCompound {
		return false, nil
	}
	balance, err := m.gateway.GetAccountBalance(ctx)
	if err != nil {
		return false, fmt.Errorf("get balance: %w", err)
	}
	return m.trackBalance(balance), nil
}

func (m *Manager) trackBalance(balance decimal.Decimal) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastKnownBalance == nil {
		m.initialBalance = &balance
		m.lastKnownBalance = &balance
		return false
	}
	if !m.cfg.AutoCompound {
		return false
	}
	profit := balance.Sub(*m.lastKnownBalance)
	if !profit.IsPositive() {
		return false
	}
	reinvest := profit.Mul(decimal.NewFromFloat(m.cfg.CompoundReinvestPercent))
	m.reinvested = m.reinvested.Add(reinvest)
	m.logger.Info("auto compounding", "profit", profit, "reinvest", reinvest, "total_reinvested", m.reinvested)
	m.lastKnownBalance = &balance
	return true
}

// CompoundingSummary 复利跟踪的状态
type CompoundingSummary struct {
	InitialBalance   decimal.Decimal
	LastKnownBalance decimal.Decimal
	Reinvested       decimal.Decimal
}

// Growth 相对首次记录余额的增长
func (s CompoundingSummary) Growth() decimal.Decimal {
	return s.LastKnownBalance.Sub(s.InitialBalance)
}

// Compounding 还没有记录过余额时返回 false
func (m *Manager) Compounding() (CompoundingSummary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialBalance == nil {
		return CompoundingSummary{}, false
	}
	return CompoundingSummary{
		InitialBalance:   *m.initialBalance,
		LastKnownBalance: *m.lastKnownBalance,
		Reinvested:       m.reinvested,
	}, true
}

// CalculatePartialTakeProfits 三档分批止盈, 分别平掉 30% / 40% / 30%
func (m *Manager) CalculatePartialTakeProfits(ctx context.Context, pair exchange.TradingPair, side exchange.Side,
	entryPrice decimal.Decimal) []TakeProfitLevel {
	if !m.cfg.UseTakeProfit {
		return nil
	}
	condition := m.MarketCondition()
	base := m.cfg.TakeProfit.For(condition)

	factors := [3]float64{0.5, 1, 1.5}
	switch condition {
	case MarketBearish:
		factors = [3]float64{0.5, 1, 1.3}
	case MarketSideways:
		factors = [3]float64{0.7, 1, 1.2}
	}
	portions := [3]float64{0.3, 0.4, 0.3}

	precision := int32(2)
	if rules, err := m.gateway.GetSymbolRules(ctx, pair); err == nil && rules != nil {
		precision = rules.PricePrecision
	}

	levels := make([]TakeProfitLevel, 0, len(factors))
	hundred := decimal.NewFromInt(100)
	for i, f := range factors {
		pct := base.Mul(decimal.NewFromFloat(f))
		levels = append(levels, TakeProfitLevel{
			Price:        awayFrom(entryPrice, pct, side, true).Round(precision),
			Portion:      decimal.NewFromFloat(portions[i]),
			PctFromEntry: pct.Mul(hundred),
		})
	}
	m.logger.Info("calculated partial take profits", "symbol", pair.ToString(), "condition", condition,
		"tp1", levels[0].Price, "tp2", levels[1].Price, "tp3", levels[2].Price)
	return levels
}

// roundPrice 按交易对价格精度四舍五入, 拿不到规则时原样返回
func (m *Manager) roundPrice(ctx context.Context, pair exchange.TradingPair, price decimal.Decimal) decimal.Decimal {
	rules, err := m.gateway.GetSymbolRules(ctx, pair)
	if err != nil || rules == nil {
		return price
	}
	return rules.RoundPrice(price)
}

// awayFrom 按方向偏移价格: profit 为 true 时朝盈利方向, 否则朝亏损方向
func awayFrom(price, pct decimal.Decimal, side exchange.Side, profit bool) decimal.Decimal {
	up := side == exchange.SideBuy
	if !profit {
		up = !up
	}
	if up {
		return price.Mul(one.Add(pct))
	}
	return price.Mul(one.Sub(pct))
}
