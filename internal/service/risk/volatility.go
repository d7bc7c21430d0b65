package risk

import (
	"context"

	"github.com/KNICEX/trading-gateway/internal/service/exchange"
	"github.com/KNICEX/trading-gateway/pkg/decimalx"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const (
	minVolatilityKlines = 20
	swingLookback       = 50
)

// atrWeights ATR(7), ATR(14), ATR(21) 的权重, 近期波动权重更高
var atrWeights = []struct {
	window int
	weight float64
}{
	{7, 0.5},
	{14, 0.3},
	{21, 0.2},
}

func atrMultiplier(c MarketCondition) decimal.Decimal {
	switch c {
	case MarketExtremeBullish:
		return decimal.NewFromFloat(2.5)
	case MarketBullish:
		return decimal.NewFromFloat(2.0)
	case MarketExtremeBearish:
		return decimal.NewFromFloat(1.3)
	case MarketBearish:
		return decimal.NewFromFloat(1.5)
	default:
		return one
	}
}

// CalculateVolatilityStopLoss 基于 ATR 和最近摆动高低点的止损.
// K线不足 20 根或无法计算 ATR 时退回百分比止损; 止损距离不超过 StopLoss.Default.
func (m *Manager) CalculateVolatilityStopLoss(ctx context.Context, pair exchange.TradingPair, side exchange.Side,
	entryPrice decimal.Decimal, klines []exchange.Kline) decimal.Decimal {
	if !m.cfg.UseStopLoss {
		return decimal.Zero
	}
	if len(klines) < minVolatilityKlines || !entryPrice.IsPositive() {
		return m.CalculateStopLoss(ctx, pair, side, entryPrice)
	}

	atr := weightedATR(klines)
	if !atr.IsPositive() {
		return m.CalculateStopLoss(ctx, pair, side, entryPrice)
	}

	condition := m.MarketCondition()
	stopDistance := atr.Mul(atrMultiplier(condition))
	buffer := atr.Mul(decimal.NewFromFloat(0.05))
	maxLevelDistance := stopDistance.Mul(decimal.NewFromFloat(1.5))
	maxStopPct := decimal.NewFromFloat(m.cfg.StopLoss.Default)
	highs, lows := swingPoints(klines[max(len(klines)-swingLookback, 0):])

	var stop decimal.Decimal
	if side == exchange.SideBuy {
		stop = entryPrice.Sub(stopDistance)
		supports := lo.Filter(lows, func(l decimal.Decimal, _ int) bool { return l.LessThan(entryPrice) })
		if len(supports) > 0 {
			support := decimal.Max(supports[0], supports[1:]...)
			if entryPrice.Sub(support).LessThanOrEqual(maxLevelDistance) {
				stop = decimal.Max(stop, support.Sub(buffer))
			}
		}
		switch condition {
		case MarketExtremeBearish:
			maxStopPct = maxStopPct.Mul(decimal.NewFromFloat(0.8))
		case MarketBearish:
			maxStopPct = maxStopPct.Mul(decimal.NewFromFloat(0.9))
		}
		stop = decimal.Max(stop, entryPrice.Mul(one.Sub(maxStopPct)))
	} else {
		stop = entryPrice.Add(stopDistance)
		resistances := lo.Filter(highs, func(h decimal.Decimal, _ int) bool { return h.GreaterThan(entryPrice) })
		if len(resistances) > 0 {
			resistance := decimal.Min(resistances[0], resistances[1:]...)
			if resistance.Sub(entryPrice).LessThanOrEqual(maxLevelDistance) {
				stop = decimal.Min(stop, resistance.Add(buffer))
			}
		}
		switch condition {
		case MarketExtremeBullish:
			maxStopPct = maxStopPct.Mul(decimal.NewFromFloat(0.8))
		case MarketBullish:
			maxStopPct = maxStopPct.Mul(decimal.NewFromFloat(0.9))
		}
		stop = decimal.Min(stop, entryPrice.Mul(one.Add(maxStopPct)))
	}

	stop = m.roundPrice(ctx, pair, stop)
	m.logger.Info("calculated atr stop loss", "symbol", pair.ToString(), "stop_price", stop,
		"atr", atr.StringFixed(6), "multiplier", atrMultiplier(condition), "condition", condition)
	return stop
}

func weightedATR(klines []exchange.Kline) decimal.Decimal {
	high := lo.Map(klines, func(k exchange.Kline, _ int) decimal.Decimal { return k.High })
	low := lo.Map(klines, func(k exchange.Kline, _ int) decimal.Decimal { return k.Low })
	closes := lo.Map(klines, func(k exchange.Kline, _ int) decimal.Decimal { return k.Close })

	atr := decimal.Zero
	for _, w := range atrWeights {
		v := decimalx.AverageTrueRange(high, low, closes, w.window)
		if v.IsZero() {
			return decimal.Zero
		}
		atr = atr.Add(v.Mul(decimal.NewFromFloat(w.weight)))
	}
	return atr
}

// swingPoints 简单的枢轴点: 比前后各两根都高(低)
func swingPoints(klines []exchange.Kline) (highs, lows []decimal.Decimal) {
	for i := 2; i < len(klines)-2; i++ {
		h, l := klines[i].High, klines[i].Low
		if h.GreaterThan(klines[i-1].High) && h.GreaterThan(klines[i-2].High) &&
			h.GreaterThan(klines[i+1].High) && h.GreaterThan(klines[i+2].High) {
			highs = append(highs, h)
		}
		if l.LessThan(klines[i-1].Low) && l.LessThan(klines[i-2].Low) &&
			l.LessThan(klines[i+1].Low) && l.LessThan(klines[i+2].Low) {
			lows = append(lows, l)
		}
	}
	return highs, lows
}
