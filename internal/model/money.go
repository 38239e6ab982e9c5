package model

import (
	"github.com/shopspring/decimal"
)

// MoneyPlaces 金额保留的小数位（分）
const MoneyPlaces = 2

// Tolerance 资金守恒检查允许的误差：一个最小货币单位
var Tolerance = decimal.New(1, -MoneyPlaces)

// Money 将金额四舍五入到分
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// MoneyFromFloat 由浮点数生成金额
func MoneyFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(MoneyPlaces)
}

// Scale 金额乘以比率并四舍五入到分
func Scale(d decimal.Decimal, rate float64) decimal.Decimal {
	return d.Mul(decimal.NewFromFloat(rate)).Round(MoneyPlaces)
}

// MinMoney 返回两者中较小者
func MinMoney(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// NonNegative 负数截断为零
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Ratio 计算 a/b 的浮点比率，分母为零时返回 ok=false
func Ratio(a, b decimal.Decimal) (float64, bool) {
	if b.IsZero() {
		return 0, false
	}
	return a.Div(b).InexactFloat64(), true
}
