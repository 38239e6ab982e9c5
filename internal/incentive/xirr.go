package incentive

import (
	"math"
	"time"
)

// 牛顿法求解参数
const (
	irrGuess         = 0.1
	irrTolerance     = 1e-6
	irrMaxIterations = 100
)

// CashFlow 带日期的现金流，负数为投入
type CashFlow struct {
	Date   time.Time
	Amount float64
}

// XIRR 按实际天数/365 求不规则现金流的内部收益率，未收敛时 ok=false
func XIRR(flows []CashFlow) (rate float64, ok bool) {
	if len(flows) < 2 {
		return 0, false
	}
	var hasPos, hasNeg bool
	for _, f := range flows {
		if f.Amount > 0 {
			hasPos = true
		}
		if f.Amount < 0 {
			hasNeg = true
		}
	}
	if !hasPos || !hasNeg {
		return 0, false
	}

	t0 := flows[0].Date
	years := make([]float64, len(flows))
	for i, f := range flows {
		years[i] = f.Date.Sub(t0).Hours() / 24 / 365
	}

	rate = irrGuess
	for i := 0; i < irrMaxIterations; i++ {
		var npv, d float64
		for k, f := range flows {
			disc := math.Pow(1+rate, years[k])
			npv += f.Amount / disc
			d -= years[k] * f.Amount / (disc * (1 + rate))
		}
		if d == 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return 0, false
		}
		next := rate - npv/d
		if math.IsNaN(next) || math.IsInf(next, 0) || next <= -1 {
			return 0, false
		}
		if math.Abs(next-rate) < irrTolerance {
			return next, true
		}
		rate = next
	}
	return 0, false
}
