package exchange

import (
	"time"

	"github.com/KNICEX/trading-gateway/pkg/decimalx"
	"github.com/shopspring/decimal"
)

type Kline struct {
	OpenTime         time.Time
	CloseTime        time.Time
	Open             decimal.Decimal
	Close            decimal.Decimal
	High             decimal.Decimal
	Low              decimal.Decimal
	Volume           decimal.Decimal // 成交量
	QuoteAssetVolume decimal.Decimal // 成交额
	TradeNum         int64           // 成交笔数
}

type GetKlinesReq struct {
	TradingPair        TradingPair
	Interval           Interval
	StartTime, EndTime time.Time
	// Limit 单次请求的最大条数, 为 0 时使用交易所默认值; 超出的部分会自动分页
	Limit int
}

// SymbolRules 交易对交易规则, 同一会话内视为不变
type SymbolRules struct {
	TradingPair       TradingPair
	PricePrecision    int32
	QuantityPrecision int32
	MinQuantity       decimal.Decimal
	MaxQuantity       decimal.Decimal
	StepSize          decimal.Decimal
	TickSize          decimal.Decimal
	MinNotional       decimal.Decimal
}

// RoundQuantity 按步长向下取整
func (r SymbolRules) RoundQuantity(q decimal.Decimal) decimal.Decimal {
	if r.StepSize.IsPositive() {
		return decimalx.FloorToStep(q, r.StepSize)
	}
	return q.Truncate(r.QuantityPrecision)
}

// RoundPrice 按价格精度四舍五入
func (r SymbolRules) RoundPrice(p decimal.Decimal) decimal.Decimal {
	return p.Round(r.PricePrecision)
}
