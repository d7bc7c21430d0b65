package decimalx

import "github.com/shopspring/decimal"

// TrueRange 单根K线的真实波幅, 第一根K线没有前收盘价, 只取 high-low
func TrueRange(high, low, prevClose []decimal.Decimal, i int) decimal.Decimal {
	hl := high[i].Sub(low[i])
	if i == 0 {
		return hl
	}
	hc := high[i].Sub(prevClose[i-1]).Abs()
	lc := low[i].Sub(prevClose[i-1]).Abs()
	return decimal.Max(hl, hc, lc)
}

// AverageTrueRange Wilder 平滑的 ATR, 返回最后一根K线的值.
// 数据不足 window 根时返回 0.
func AverageTrueRange(high, low, closes []decimal.Decimal, window int) decimal.Decimal {
	n := len(closes)
	if window <= 0 || n < window || len(high) != n || len(low) != n {
		return decimal.Zero
	}
	w := decimal.NewFromInt(int64(window))

	sum := decimal.Zero
	for i := 0; i < window; i++ {
		sum = sum.Add(TrueRange(high, low, closes, i))
	}
	atr := sum.Div(w)

	for i := window; i < n; i++ {
		tr := TrueRange(high, low, closes, i)
		atr = atr.Mul(w.Sub(decimal.NewFromInt(1))).Add(tr).Div(w)
	}
	return atr
}
