package curve

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/life2you_mini/cloengine/internal/dates"
	"github.com/life2you_mini/cloengine/internal/model"
)

// 浮动利率重置方式
const (
	ResetSpot    = "SPOT"
	ResetForward = "FORWARD"
)

// curveDayCount 曲线时间轴统一使用 ACT/365F
const curveDayCount = dates.Act365F

// Curve 即期收益率曲线，节点按期限升序
type Curve struct {
	asOf   time.Time
	tenors []float64 // 年
	rates  []float64 // 年复利即期利率，小数
}

// New 由期限节点构建曲线
func New(asOf time.Time, points []model.CurvePoint) (*Curve, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("收益率曲线没有节点")
	}

	type node struct {
		t, r float64
	}
	nodes := make([]node, 0, len(points))
	seen := make(map[float64]string, len(points))
	for _, p := range points {
		t, err := ParseTenor(p.Tenor)
		if err != nil {
			return nil, fmt.Errorf("收益率曲线节点无效: %w", err)
		}
		if math.IsNaN(p.Rate) || math.IsInf(p.Rate, 0) {
			return nil, fmt.Errorf("收益率曲线节点 %s 利率无效", p.Tenor)
		}
		if prev, ok := seen[t]; ok {
			return nil, fmt.Errorf("收益率曲线期限重复: %s 与 %s", prev, p.Tenor)
		}
		seen[t] = p.Tenor
		nodes = append(nodes, node{t: t, r: p.Rate})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].t < nodes[j].t })

	c := &Curve{
		asOf:   asOf,
		tenors: make([]float64, len(nodes)),
		rates:  make([]float64, len(nodes)),
	}
	for i, n := range nodes {
		c.tenors[i] = n.t
		c.rates[i] = n.r
	}
	return c, nil
}

// Flat 单一利率的平坦曲线
func Flat(asOf time.Time, rate float64) *Curve {
	return &Curve{asOf: asOf, tenors: []float64{1}, rates: []float64{rate}}
}

// AsOf 曲线日期
func (c *Curve) AsOf() time.Time {
	return c.asOf
}

// TimeTo 曲线日期到 d 的年化时间
func (c *Curve) TimeTo(d time.Time) float64 {
	return dates.YearFraction(c.asOf, d, curveDayCount)
}

// Extrapolated t 是否落在节点范围之外
func (c *Curve) Extrapolated(t float64) bool {
	return t < c.tenors[0] || t > c.tenors[len(c.tenors)-1]
}

// BeyondLongEnd t 是否超过最长期限节点
func (c *Curve) BeyondLongEnd(t float64) bool {
	return t > c.tenors[len(c.tenors)-1]
}

// SpotRate 线性插值的即期利率，两端水平外推
func (c *Curve) SpotRate(t float64) float64 {
	n := len(c.tenors)
	if t <= c.tenors[0] {
		return c.rates[0]
	}
	if t >= c.tenors[n-1] {
		return c.rates[n-1]
	}
	// 第一个 >= t 的节点
	i := sort.SearchFloat64s(c.tenors, t)
	if c.tenors[i] == t {
		return c.rates[i]
	}
	t1, t2 := c.tenors[i-1], c.tenors[i]
	r1, r2 := c.rates[i-1], c.rates[i]
	return r1 + (r2-r1)*(t-t1)/(t2-t1)
}

// SpotRateAt 按日期查询即期利率
func (c *Curve) SpotRateAt(d time.Time) float64 {
	return c.SpotRate(c.TimeTo(d))
}

// DiscountFactor 年复利贴现因子
func (c *Curve) DiscountFactor(t float64) float64 {
	if t <= 0 {
		return 1.0
	}
	return math.Pow(1+c.SpotRate(t), -t)
}

// ForwardRate [t1, t2] 区间的单利远期利率
func (c *Curve) ForwardRate(t1, t2 float64) float64 {
	if t2 <= t1 {
		return c.SpotRate(t1)
	}
	df1 := c.DiscountFactor(t1)
	df2 := c.DiscountFactor(t2)
	return (df1/df2 - 1) / (t2 - t1)
}

// IndexRate 浮动利率在重置日的基准利率
// SPOT 模式取重置日对应期限的即期利率；FORWARD 模式取 [重置日, 重置日+指数期限] 的远期利率
func (c *Curve) IndexRate(reset time.Time, indexTenor, mode string) (float64, error) {
	t1 := c.TimeTo(reset)
	if t1 < 0 {
		t1 = 0
	}
	if mode != ResetForward {
		return c.SpotRate(t1), nil
	}

	months := 3
	if indexTenor != "" {
		m, err := TenorMonths(indexTenor)
		if err != nil {
			return 0, err
		}
		months = m
	}
	t2 := c.TimeTo(dates.AddMonths(reset, months))
	return c.ForwardRate(t1, t2), nil
}
