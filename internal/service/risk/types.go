package risk

import (
	"errors"

	"github.com/shopspring/decimal"
)

type MarketCondition string

const (
	MarketBullish        MarketCondition = "BULLISH"
	MarketBearish        MarketCondition = "BEARISH"
	MarketSideways       MarketCondition = "SIDEWAYS"
	MarketExtremeBullish MarketCondition = "EXTREME_BULLISH"
	MarketExtremeBearish MarketCondition = "EXTREME_BEARISH"
)

func (c MarketCondition) IsValid() bool {
	switch c {
	case MarketBullish, MarketBearish, MarketSideways, MarketExtremeBullish, MarketExtremeBearish:
		return true
	default:
		return false
	}
}

// Percentages 按市场状态区分的比例, 极端行情使用 Default
type Percentages struct {
	Default  float64
	Bullish  float64
	Bearish  float64
	Sideways float64
}

func (p Percentages) For(c MarketCondition) decimal.Decimal {
	switch c {
	case MarketBullish:
		return decimal.NewFromFloat(p.Bullish)
	case MarketBearish:
		return decimal.NewFromFloat(p.Bearish)
	case MarketSideways:
		return decimal.NewFromFloat(p.Sideways)
	default:
		return decimal.NewFromFloat(p.Default)
	}
}

type Config struct {
	// 单笔风险占余额比例
	RiskPerTrade float64
	// 余额低于 SmallAccountBalance 视为小账户, 风险比例至少为 SmallAccountMinRisk
	SmallAccountBalance float64
	SmallAccountMinRisk float64
	// Leverage 查询不到仓位杠杆时使用
	Leverage int

	UseStopLoss        bool
	StopLoss           Percentages
	UseTakeProfit      bool
	TakeProfit         Percentages
	TrailingStop       bool
	TrailingStopPct    Percentages
	TrailingTakeProfit bool
	TrailingProfitPct  Percentages

	AutoCompound bool
	// CompoundReinvestPercent 盈利中用于复利的比例
	CompoundReinvestPercent float64
}

func DefaultConfig() Config {
	return Config{
		RiskPerTrade:            0.02,
		SmallAccountBalance:     10,
		SmallAccountMinRisk:     0.05,
		Leverage:                1,
		UseStopLoss:             true,
		StopLoss:                Percentages{Default: 0.02, Bullish: 0.02, Bearish: 0.015, Sideways: 0.01},
		UseTakeProfit:           true,
		TakeProfit:              Percentages{Default: 0.04, Bullish: 0.05, Bearish: 0.03, Sideways: 0.02},
		TrailingStop:            true,
		TrailingStopPct:         Percentages{Default: 0.015, Bullish: 0.02, Bearish: 0.01, Sideways: 0.008},
		TrailingTakeProfit:      true,
		TrailingProfitPct:       Percentages{Default: 0.02, Bullish: 0.03, Bearish: 0.015, Sideways: 0.01},
		AutoCompound:            true,
		CompoundReinvestPercent: 0.5,
	}
}

// TakeProfitLevel 分批止盈的一档
type TakeProfitLevel struct {
	Price decimal.Decimal
	// Portion 该档平掉的仓位比例
	Portion decimal.Decimal
	// PctFromEntry 距开仓价的百分比
	PctFromEntry decimal.Decimal
}

var (
	ErrInsufficientBalance    = errors.New("insufficient balance to open a position")
	ErrSymbolRulesUnavailable = errors.New("symbol rules unavailable")
	ErrStopTooClose           = errors.New("stop loss too close to entry price")
	ErrPositionTooSmall       = errors.New("position size below minimum notional")
)
