package decimalx

import "github.com/shopspring/decimal"

// FloorToStep 按步长向下取整, step 非正数时原样返回
func FloorToStep(d, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return d
	}
	return d.Div(step).Floor().Mul(step)
}

// CeilToPrecision 向上取整到 precision 位小数
func CeilToPrecision(d decimal.Decimal, precision int32) decimal.Decimal {
	return d.Shift(precision).Ceil().Shift(-precision)
}

// FloorToPrecision 向下取整到 precision 位小数
func FloorToPrecision(d decimal.Decimal, precision int32) decimal.Decimal {
	return d.Shift(precision).Floor().Shift(-precision)
}

// StepPrecision 步长对应的小数位数, 例如 0.001 -> 3, 1 -> 0
func StepPrecision(step decimal.Decimal) int32 {
	if !step.IsPositive() {
		return 0
	}
	exp := -step.Exponent()
	// 去掉末尾的 0, 例如 0.0100 -> 2
	for exp > 0 && step.Shift(exp-1).Equal(step.Shift(exp-1).Truncate(0)) {
		exp--
	}
	if exp < 0 {
		return 0
	}
	return exp
}
