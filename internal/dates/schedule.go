package dates

import (
	"time"
)

// MonthsPerPeriod 每年付息次数换算为每期月数，非法频率按季度处理
func MonthsPerPeriod(freqPerYear int) int {
	switch freqPerYear {
	case 1, 2, 3, 4, 6, 12:
		return 12 / freqPerYear
	default:
		return 3
	}
}

// ValidFrequency 付息频率是否合法
func ValidFrequency(freqPerYear int) bool {
	switch freqPerYear {
	case 1, 2, 3, 4, 6, 12:
		return true
	}
	return false
}

// Schedule 从 start 起按频率生成 n 期的期间边界，返回 n+1 个日期
// 第 i 期为 [dates[i-1], dates[i]]
func Schedule(start time.Time, freqPerYear, n int) []time.Time {
	step := MonthsPerPeriod(freqPerYear)
	out := make([]time.Time, 0, n+1)
	for i := 0; i <= n; i++ {
		out = append(out, AddMonths(start, step*i))
	}
	return out
}

// BackwardSchedule 从到期日按频率倒推付息日，返回晚于 from 的全部付息日（升序，包含到期日）
func BackwardSchedule(maturity time.Time, freqPerYear int, from time.Time) []time.Time {
	step := MonthsPerPeriod(freqPerYear)
	var out []time.Time
	for i := 0; ; i++ {
		d := AddMonths(maturity, -step*i)
		if !d.After(from) {
			break
		}
		out = append(out, d)
	}
	// 反转为升序
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// CountIn 统计 (start, end] 区间内的日期数量
func CountIn(ds []time.Time, start, end time.Time) int {
	n := 0
	for _, d := range ds {
		if d.After(start) && !d.After(end) {
			n++
		}
	}
	return n
}

// CountAfter 统计晚于 t 的日期数量
func CountAfter(ds []time.Time, t time.Time) int {
	n := 0
	for _, d := range ds {
		if d.After(t) {
			n++
		}
	}
	return n
}
