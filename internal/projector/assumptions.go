package projector

import (
	"math"

	"github.com/life2you_mini/cloengine/internal/model"
)

// vectorRate 取第 period 期的比率
// 单元素向量视为常数；多元素向量不足时沿用最后一个值（held=true）；空向量 missing=true
func vectorRate(v model.Vector, period int) (rate float64, held bool, missing bool) {
	if len(v) == 0 {
		return 0, false, true
	}
	if len(v) == 1 {
		return v[0], false, false
	}
	if period-1 < len(v) {
		return v[period-1], false, false
	}
	return v[len(v)-1], true, false
}

// periodRate 年化比率换算为期间比率：1-(1-r)^yf
func periodRate(annual, yf float64) float64 {
	if annual <= 0 || yf <= 0 {
		return 0
	}
	if annual >= 1 {
		return 1
	}
	return 1 - math.Pow(1-annual, yf)
}

// clampUnit 截断到 [0,1]
func clampUnit(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
