package pool

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// diversityNode 行业等价单位 -> 行业分散度得分
type diversityNode struct {
	units float64
	score float64
}

// diversityTable 穆迪行业分散度表，节点之间线性，10 个单位以上封顶
var diversityTable = []diversityNode{
	{0, 0},
	{1, 1},
	{2, 1.5},
	{3, 2},
	{4, 2.3333},
	{5, 2.6667},
	{6, 3},
	{7, 3.25},
	{8, 3.5},
	{9, 3.75},
	{10, 4},
}

// industryScore 单个行业的分散度得分，等价单位先向下取整到 0.1
func industryScore(units float64) float64 {
	units = math.Floor(units*10+1e-9) / 10
	last := diversityTable[len(diversityTable)-1]
	if units >= last.units {
		return last.score
	}
	i := sort.Search(len(diversityTable), func(i int) bool { return diversityTable[i].units >= units })
	if i == 0 {
		return 0
	}
	lo, hi := diversityTable[i-1], diversityTable[i]
	return lo.score + (hi.score-lo.score)*(units-lo.units)/(hi.units-lo.units)
}

// DiversityScore 穆迪分散度得分
// obligorPar: 行业 -> 债务人 -> 面值
func DiversityScore(obligorPar map[string]map[string]decimal.Decimal) float64 {
	total := decimal.Zero
	count := 0
	for _, obligors := range obligorPar {
		for _, par := range obligors {
			total = total.Add(par)
			count++
		}
	}
	if count == 0 || !total.IsPositive() {
		return 0
	}
	avg := total.InexactFloat64() / float64(count)

	industries := make([]string, 0, len(obligorPar))
	for ind := range obligorPar {
		industries = append(industries, ind)
	}
	sort.Strings(industries)

	score := 0.0
	for _, ind := range industries {
		names := make([]string, 0, len(obligorPar[ind]))
		for name := range obligorPar[ind] {
			names = append(names, name)
		}
		sort.Strings(names)

		units := 0.0
		for _, name := range names {
			units += math.Min(1, obligorPar[ind][name].InexactFloat64()/avg)
		}
		score += industryScore(units)
	}
	return score
}
