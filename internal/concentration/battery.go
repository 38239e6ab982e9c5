package concentration

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/life2you_mini/cloengine/internal/model"
	"github.com/life2you_mini/cloengine/internal/pool"
)

// 测试类别
const (
	CategoryAssetQuality      = "ASSET_QUALITY"
	CategoryGeographic        = "GEOGRAPHIC"
	CategoryIndustry          = "INDUSTRY"
	CategoryCollateralQuality = "COLLATERAL_QUALITY"
)

// 比较方向
const (
	Minimum = ">="
	Maximum = "<="
)

// measure 计算测试值，subject 为取值对应的债务人/国家/行业
type measure func(c *composition) (value float64, subject string)

// definition 集中度测试定义
type definition struct {
	Number     int
	Name       string
	Category   string
	Comparison string
	Measure    measure
}

// battery 全部测试，按编号升序
var battery = []definition{
	{1, "优先有担保资产最低比例", CategoryAssetQuality, Minimum, share(func(a *model.Asset) bool { return a.IsSeniorSecured() })},
	{2, "非优先有担保资产最高比例", CategoryAssetQuality, Maximum, share(func(a *model.Asset) bool { return !a.IsSeniorSecured() })},
	{3, "第二留置权资产最高比例", CategoryAssetQuality, Maximum, share(func(a *model.Asset) bool { return a.Lien == model.LienSecondLien })},
	{4, "单一最大债务人", CategoryAssetQuality, Maximum, rankedObligor(0)},
	{5, "第六大及以后单一债务人", CategoryAssetQuality, Maximum, rankedObligor(5)},
	{6, "CCC 类资产", CategoryAssetQuality, Maximum, share(pool.IsCCC)},
	{7, "固定利率资产", CategoryAssetQuality, Maximum, share(func(a *model.Asset) bool { return !a.IsFloating() })},
	{8, "DIP 贷款", CategoryAssetQuality, Maximum, share(func(a *model.Asset) bool { return a.DIP })},
	{9, "当期支付债务", CategoryAssetQuality, Maximum, share(func(a *model.Asset) bool { return a.CurrentPay })},
	{10, "轻契约贷款", CategoryAssetQuality, Maximum, share(func(a *model.Asset) bool { return a.CovLite })},
	{11, "低频付息资产", CategoryAssetQuality, Maximum, share(func(a *model.Asset) bool { return a.PaymentFrequency > 0 && a.PaymentFrequency < 4 })},
	{12, "PIK 资产", CategoryAssetQuality, Maximum, share(func(a *model.Asset) bool { return a.PIK })},
	{13, "参贷资产", CategoryAssetQuality, Maximum, share(func(a *model.Asset) bool { return a.Participation })},
	{14, "循环/延迟提款贷款", CategoryAssetQuality, Maximum, share(func(a *model.Asset) bool { return a.Revolver })},

	{20, "非本国资产", CategoryGeographic, Maximum, nonDomestic},
	{21, "单一最大外国", CategoryGeographic, Maximum, largestForeignCountry},
	{22, "单一最大国家", CategoryGeographic, Maximum, rankedBucket(func(c *composition) []bucket { return c.countries }, 0)},

	{30, "最大行业", CategoryIndustry, Maximum, rankedBucket(func(c *composition) []bucket { return c.industries }, 0)},
	{31, "第二大行业", CategoryIndustry, Maximum, rankedBucket(func(c *composition) []bucket { return c.industries }, 1)},
	{32, "第三大行业", CategoryIndustry, Maximum, rankedBucket(func(c *composition) []bucket { return c.industries }, 2)},
	{33, "其他单一行业", CategoryIndustry, Maximum, rankedBucket(func(c *composition) []bucket { return c.industries }, 3)},

	{40, "最低加权平均利差", CategoryCollateralQuality, Minimum, func(c *composition) (float64, string) { return c.stats.WAS, "" }},
	{41, "最高加权平均评级因子", CategoryCollateralQuality, Maximum, func(c *composition) (float64, string) { return c.stats.WARF, "" }},
	{42, "最长加权平均期限", CategoryCollateralQuality, Maximum, func(c *composition) (float64, string) { return c.stats.WAL, "" }},
	{43, "最低分散度得分", CategoryCollateralQuality, Minimum, func(c *composition) (float64, string) { return c.stats.DiversityScore, "" }},
	{44, "最低加权平均票息", CategoryCollateralQuality, Minimum, func(c *composition) (float64, string) { return c.stats.WAC, "" }},
	{45, "最低加权平均回收率", CategoryCollateralQuality, Minimum, func(c *composition) (float64, string) { return c.stats.WARR, "" }},
	{46, "最少债务人数量", CategoryCollateralQuality, Minimum, func(c *composition) (float64, string) { return float64(c.stats.ObligorCount), "" }},
}

// definitions 按编号索引
var definitions = func() map[int]definition {
	out := make(map[int]definition, len(battery))
	for _, d := range battery {
		out[d.Number] = d
	}
	return out
}()

// bucket 按名称汇总的面值
type bucket struct {
	Name string
	Par  decimal.Decimal
}

// composition 组合构成的预计算结果
type composition struct {
	holdings   []pool.Holding
	total      decimal.Decimal
	stats      pool.Stats
	domestic   string
	obligors   []bucket
	countries  []bucket
	industries []bucket
}

// newComposition 汇总债务人、国家、行业分布，缺失国家/行业的资产不计入对应分布
func newComposition(holdings []pool.Holding, stats pool.Stats, domestic string) (*composition, []model.Warning) {
	var warnings []model.Warning
	c := &composition{holdings: holdings, total: decimal.Zero, stats: stats, domestic: domestic}

	obligors := make(map[string]decimal.Decimal)
	countries := make(map[string]decimal.Decimal)
	industries := make(map[string]decimal.Decimal)
	for _, h := range holdings {
		if !h.Par.IsPositive() {
			continue
		}
		c.total = c.total.Add(h.Par)
		obligors[h.ObligorKey()] = obligors[h.ObligorKey()].Add(h.Par)

		if h.Asset.Country == "" {
			warnings = append(warnings, model.NewWarning(0, model.WarnCountryMissing, h.Asset.ID, "资产缺少国家，地域测试权重为 0"))
		} else {
			countries[h.Asset.Country] = countries[h.Asset.Country].Add(h.Par)
		}
		if h.Asset.Industry == "" {
			warnings = append(warnings, model.NewWarning(0, model.WarnIndustryMissing, h.Asset.ID, "资产缺少行业，行业测试权重为 0"))
		} else {
			industries[h.Asset.Industry] = industries[h.Asset.Industry].Add(h.Par)
		}
	}

	c.obligors = sortedBuckets(obligors)
	c.countries = sortedBuckets(countries)
	c.industries = sortedBuckets(industries)
	return c, warnings
}

// sortedBuckets 按面值降序、名称升序排列
func sortedBuckets(m map[string]decimal.Decimal) []bucket {
	out := make([]bucket, 0, len(m))
	for name, par := range m {
		out = append(out, bucket{Name: name, Par: par})
	}
	sort.Slice(out, func(i, j int) bool {
		if cmp := out[i].Par.Cmp(out[j].Par); cmp != 0 {
			return cmp > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// pct 占组合面值的比例
func (c *composition) pct(par decimal.Decimal) float64 {
	r, ok := model.Ratio(par, c.total)
	if !ok {
		return 0
	}
	return r
}

// share 满足条件的资产占比
func share(pred func(a *model.Asset) bool) measure {
	return func(c *composition) (float64, string) {
		par := decimal.Zero
		for _, h := range c.holdings {
			if h.Par.IsPositive() && pred(h.Asset) {
				par = par.Add(h.Par)
			}
		}
		return c.pct(par), ""
	}
}

// rankedObligor 第 rank+1 大债务人占比
func rankedObligor(rank int) measure {
	return rankedBucket(func(c *composition) []bucket { return c.obligors }, rank)
}

// rankedBucket 分布中第 rank+1 大的占比
func rankedBucket(sel func(c *composition) []bucket, rank int) measure {
	return func(c *composition) (float64, string) {
		buckets := sel(c)
		if rank >= len(buckets) {
			return 0, ""
		}
		return c.pct(buckets[rank].Par), buckets[rank].Name
	}
}

// nonDomestic 非本国资产占比
func nonDomestic(c *composition) (float64, string) {
	par := decimal.Zero
	for _, b := range c.countries {
		if b.Name != c.domestic {
			par = par.Add(b.Par)
		}
	}
	return c.pct(par), ""
}

// largestForeignCountry 最大单一外国占比
func largestForeignCountry(c *composition) (float64, string) {
	for _, b := range c.countries {
		if b.Name != c.domestic {
			return c.pct(b.Par), b.Name
		}
	}
	return 0, ""
}
