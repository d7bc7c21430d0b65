package exchange

import (
	"fmt"
	"strings"
	"time"
)

// TradingPair 交易对
type TradingPair struct {
	Base  string
	Quote string
}

// SplitSymbol splits an exchange symbol such as BTCUSDT into base and quote.
func SplitSymbol(s string) (string, string) {
	s = strings.ToUpper(s)
	// 常见 Quote 列表
	quotes := []string{"USDT", "BUSD", "USDC", "FDUSD", "BTC", "ETH"}
	for _, q := range quotes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return strings.TrimSuffix(s, q), q
		}
	}
	// fallback
	return s, ""
}

// ParseTradingPair 从 BTCUSDT 格式解析交易对
func ParseTradingPair(symbol string) TradingPair {
	base, quote := SplitSymbol(symbol)
	return TradingPair{Base: base, Quote: quote}
}

func (p TradingPair) IsZero() bool {
	return p.Base == "" || p.Quote == ""
}

func (p TradingPair) ToString() string {
	return fmt.Sprintf("%s%s", p.Base, p.Quote)
}

type Interval string

func (i Interval) ToString() string {
	return string(i)
}

const (
	Interval1m  Interval = "1m"
	Interval3m  Interval = "3m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval2h  Interval = "2h"
	Interval4h  Interval = "4h"
	Interval6h  Interval = "6h"
	Interval8h  Interval = "8h"
	Interval12h Interval = "12h"
	Interval1d  Interval = "1d"
	Interval3d  Interval = "3d"
	Interval1w  Interval = "1w"
	Interval1M  Interval = "1M"
)

// Duration K线周期对应的时长, 1M 按 30 天计算, 未知周期返回 0
func (i Interval) Duration() time.Duration {
	switch i {
	case Interval1m:
		return time.Minute
	case Interval3m:
		return 3 * time.Minute
	case Interval5m:
		return 5 * time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval30m:
		return 30 * time.Minute
	case Interval1h:
		return time.Hour
	case Interval2h:
		return 2 * time.Hour
	case Interval4h:
		return 4 * time.Hour
	case Interval6h:
		return 6 * time.Hour
	case Interval8h:
		return 8 * time.Hour
	case Interval12h:
		return 12 * time.Hour
	case Interval1d:
		return 24 * time.Hour
	case Interval3d:
		return 72 * time.Hour
	case Interval1w:
		return 7 * 24 * time.Hour
	case Interval1M:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Reverse 平仓方向
func (s Side) Reverse() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return s
	}
}

func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

type MarginType string

const (
	MarginTypeIsolated MarginType = "ISOLATED"
	MarginTypeCross    MarginType = "CROSSED"
)

// TradingType 交易类型, 决定网关的主市场
type TradingType string

const (
	TradingTypeFutures TradingType = "futures"
	TradingTypeSpot    TradingType = "spot"
)
