package exchange

import (
	"time"

	"github.com/shopspring/decimal"
)

// https://developers.binance.com/docs/zh-CN/derivatives/usds-margined-futures/trade/rest-api/Position-Information-V3

type PositionSide string

const (
	PositionSideBoth  PositionSide = "BOTH"
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

type Position struct {
	TradingPair  TradingPair
	PositionSide PositionSide
	// PositionAmount 带符号, 负数为空头
	PositionAmount   decimal.Decimal
	EntryPrice       decimal.Decimal
	MarkPrice        decimal.Decimal
	LiquidationPrice decimal.Decimal
	UnrealizedProfit decimal.Decimal
	Leverage         int
	Isolated         bool
	UpdatedAt        time.Time
}

func (p *Position) IsOpen() bool {
	return p != nil && !p.PositionAmount.IsZero()
}

// Side 开仓方向
func (p *Position) Side() Side {
	if p.PositionAmount.IsNegative() {
		return SideSell
	}
	return SideBuy
}
