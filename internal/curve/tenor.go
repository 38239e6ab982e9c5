package curve

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseTenor 将期限字符串转换为年，支持 ON/TN、nD、nW、nM、nY
func ParseTenor(tenor string) (float64, error) {
	s := strings.ToUpper(strings.TrimSpace(tenor))
	switch s {
	case "":
		return 0, fmt.Errorf("期限为空")
	case "ON", "O/N":
		return 1.0 / 365.0, nil
	case "TN", "T/N":
		return 2.0 / 365.0, nil
	}

	unit := s[len(s)-1]
	n, err := strconv.ParseFloat(s[:len(s)-1], 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("无法解析期限: %s", tenor)
	}

	switch unit {
	case 'D':
		return n / 365.0, nil
	case 'W':
		return n * 7.0 / 365.0, nil
	case 'M':
		return n / 12.0, nil
	case 'Y':
		return n, nil
	default:
		return 0, fmt.Errorf("未知期限单位: %s", tenor)
	}
}

// TenorMonths 期限换算为整月数，用于远期区间
func TenorMonths(tenor string) (int, error) {
	years, err := ParseTenor(tenor)
	if err != nil {
		return 0, err
	}
	m := int(years*12 + 0.5)
	if m < 1 {
		m = 1
	}
	return m, nil
}
