package pool

import (
	"strings"

	"github.com/life2you_mini/cloengine/internal/model"
)

// moodysFactor 穆迪评级因子表
var moodysFactor = map[string]float64{
	"Aaa":  1,
	"Aa1":  10,
	"Aa2":  20,
	"Aa3":  40,
	"A1":   70,
	"A2":   120,
	"A3":   180,
	"Baa1": 260,
	"Baa2": 360,
	"Baa3": 610,
	"Ba1":  940,
	"Ba2":  1350,
	"Ba3":  1766,
	"B1":   2220,
	"B2":   2720,
	"B3":   3490,
	"Caa1": 4770,
	"Caa2": 6500,
	"Caa3": 8070,
	"Ca":   10000,
	"C":    10000,
}

// spToMoodys 标普/惠誉评级映射到穆迪刻度
var spToMoodys = map[string]string{
	"AAA":  "Aaa",
	"AA+":  "Aa1",
	"AA":   "Aa2",
	"AA-":  "Aa3",
	"A+":   "A1",
	"A":    "A2",
	"A-":   "A3",
	"BBB+": "Baa1",
	"BBB":  "Baa2",
	"BBB-": "Baa3",
	"BB+":  "Ba1",
	"BB":   "Ba2",
	"BB-":  "Ba3",
	"B+":   "B1",
	"B":    "B2",
	"B-":   "B3",
	"CCC+": "Caa1",
	"CCC":  "Caa2",
	"CCC-": "Caa3",
	"CC":   "Ca",
	"C":    "C",
	"SD":   "C",
	"D":    "C",
}

// cccFactor Caa1 及以下视为 CCC 类资产
const cccFactor = 4770

// MoodysEquivalent 资产的穆迪等价评级：穆迪 > 标普 > 惠誉，均缺失时返回空
func MoodysEquivalent(a *model.Asset) string {
	if r := strings.TrimSpace(a.MoodysRating); r != "" {
		if _, ok := moodysFactor[r]; ok {
			return r
		}
	}
	for _, r := range []string{a.SPRating, a.FitchRating} {
		if m, ok := spToMoodys[strings.ToUpper(strings.TrimSpace(r))]; ok {
			return m
		}
	}
	return ""
}

// RatingFactor 资产的评级因子，无评级时 ok=false
func RatingFactor(a *model.Asset) (float64, bool) {
	r := MoodysEquivalent(a)
	if r == "" {
		return 0, false
	}
	return moodysFactor[r], true
}

// IsCCC 是否 CCC 类资产（Caa1 及以下）
func IsCCC(a *model.Asset) bool {
	f, ok := RatingFactor(a)
	return ok && f >= cccFactor
}
