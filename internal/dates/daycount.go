package dates

import (
	"sort"
	"time"
)

// 计息惯例
const (
	Act360  = "ACT/360"
	Act365F = "ACT/365F"
	Thirty  = "30/360"
	ThirtyE = "30E/360"
	ActAct  = "ACT/ACT"
)

// YearFraction 按计息惯例计算两个日期之间的年化比例
// 未知惯例按 ACT/365F 处理
func YearFraction(start, end time.Time, convention string) float64 {
	switch convention {
	case Act360:
		return Days(start, end) / 360.0
	case Act365F:
		return Days(start, end) / 365.0
	case Thirty:
		// 30/360 US：D1=31 取 30；D1>=30 时 D2=31 取 30
		d1, d2 := start.Day(), end.Day()
		if d1 == 31 {
			d1 = 30
		}
		if d2 == 31 && d1 >= 30 {
			d2 = 30
		}
		return thirty360(start, end, d1, d2)
	case ThirtyE:
		d1, d2 := start.Day(), end.Day()
		if d1 > 30 {
			d1 = 30
		}
		if d2 > 30 {
			d2 = 30
		}
		return thirty360(start, end, d1, d2)
	case ActAct:
		return actAct(start, end)
	default:
		return Days(start, end) / 365.0
	}
}

func thirty360(start, end time.Time, d1, d2 int) float64 {
	y1, m1 := start.Year(), int(start.Month())
	y2, m2 := end.Year(), int(end.Month())
	return float64(360*(y2-y1)+30*(m2-m1)+(d2-d1)) / 360.0
}

// actAct ISDA：按自然年拆分
func actAct(start, end time.Time) float64 {
	if !end.After(start) {
		return -actAct(end, start)
	}
	total := 0.0
	cur := start
	for cur.Year() < end.Year() {
		next := time.Date(cur.Year()+1, 1, 1, 0, 0, 0, 0, cur.Location())
		total += Days(cur, next) / daysInYear(cur.Year())
		cur = next
	}
	total += Days(cur, end) / daysInYear(cur.Year())
	return total
}

func daysInYear(y int) float64 {
	if y%4 == 0 && (y%100 != 0 || y%400 == 0) {
		return 366
	}
	return 365
}

// Days 两日期之间的自然日数
func Days(start, end time.Time) float64 {
	return end.Sub(start).Hours() / 24
}

// AddMonths 等同 Excel EDATE，月末日期向前截断
func AddMonths(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, months, 0)
	last := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// SortDates 升序排序
func SortDates(ds []time.Time) {
	sort.Slice(ds, func(i, j int) bool {
		return ds[i].Before(ds[j])
	})
}
