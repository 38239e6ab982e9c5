package pool

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/life2you_mini/cloengine/internal/dates"
	"github.com/life2you_mini/cloengine/internal/model"
)

// Holding 活跃资产及其当前面值
type Holding struct {
	Asset *model.Asset
	Par   decimal.Decimal
}

// ObligorKey 债务人标识，缺失时使用资产ID
func (h Holding) ObligorKey() string {
	if h.Asset.Obligor != "" {
		return h.Asset.Obligor
	}
	return h.Asset.ID
}

// Stats 抵押池组合统计
type Stats struct {
	TotalPar     decimal.Decimal `json:"total_par"`
	AssetCount   int             `json:"asset_count"`
	ObligorCount int             `json:"obligor_count"`

	WAL            float64 `json:"wal"`  // 加权平均剩余期限（年）
	WARF           float64 `json:"warf"` // 加权平均评级因子
	WAS            float64 `json:"was"`  // 浮动资产加权平均利差
	WAC            float64 `json:"wac"`  // 固定资产加权平均票息
	WARR           float64 `json:"warr"` // 加权平均回收率
	DiversityScore float64 `json:"diversity_score"`

	FloatingPar      decimal.Decimal `json:"floating_par"`
	FixedPar         decimal.Decimal `json:"fixed_par"`
	CCCPar           decimal.Decimal `json:"ccc_par"`
	DefaultedPar     decimal.Decimal `json:"defaulted_par"`     // 尚未回收完毕的违约面值
	ExpectedRecovery decimal.Decimal `json:"expected_recovery"` // 违约资产预期回收
	AdjustedPar      decimal.Decimal `json:"adjusted_par"`      // 超额抵押测试分子
}

// StatsInput 计算组合统计所需的参数
type StatsInput struct {
	AsOf             time.Time
	OC               model.OCConfig
	DefaultedPar     decimal.Decimal
	ExpectedRecovery decimal.Decimal
	// RecoveryFor 资产未给出回收率时使用的假设回收率
	RecoveryFor func(a *model.Asset) float64
}

// ComputeStats 计算组合统计，无评级资产不计入 WARF 并返回警告
func ComputeStats(holdings []Holding, in StatsInput) (Stats, []model.Warning) {
	var warnings []model.Warning
	st := Stats{
		TotalPar:         decimal.Zero,
		FloatingPar:      decimal.Zero,
		FixedPar:         decimal.Zero,
		CCCPar:           decimal.Zero,
		DefaultedPar:     in.DefaultedPar,
		ExpectedRecovery: in.ExpectedRecovery,
	}

	var walNum, warfNum, warfDen, wasNum, wacNum, warrNum float64
	obligors := make(map[string]struct{})
	byIndustry := make(map[string]map[string]decimal.Decimal)

	for _, h := range holdings {
		if !h.Par.IsPositive() {
			continue
		}
		a := h.Asset
		par := h.Par.InexactFloat64()
		st.TotalPar = st.TotalPar.Add(h.Par)
		st.AssetCount++
		obligors[h.ObligorKey()] = struct{}{}

		if t := dates.YearFraction(in.AsOf, a.Maturity, dates.Act365F); t > 0 {
			walNum += par * t
		}

		if f, ok := RatingFactor(a); ok {
			warfNum += par * f
			warfDen += par
			if f >= cccFactor {
				st.CCCPar = st.CCCPar.Add(h.Par)
			}
		} else {
			warnings = append(warnings, model.NewWarning(0, model.WarnRatingMissing, a.ID, "资产无任何评级，WARF 权重为 0"))
		}

		if a.IsFloating() {
			st.FloatingPar = st.FloatingPar.Add(h.Par)
			wasNum += par * a.Spread
		} else {
			st.FixedPar = st.FixedPar.Add(h.Par)
			wacNum += par * a.Coupon
		}

		rr := a.RecoveryRate
		if rr <= 0 && in.RecoveryFor != nil {
			rr = in.RecoveryFor(a)
		}
		warrNum += par * rr

		industry := a.Industry
		if industry == "" {
			industry = "UNKNOWN"
		}
		if byIndustry[industry] == nil {
			byIndustry[industry] = make(map[string]decimal.Decimal)
		}
		byIndustry[industry][h.ObligorKey()] = byIndustry[industry][h.ObligorKey()].Add(h.Par)
	}

	st.ObligorCount = len(obligors)
	total := st.TotalPar.InexactFloat64()
	if total > 0 {
		st.WAL = walNum / total
		st.WARR = warrNum / total
	}
	if warfDen > 0 {
		st.WARF = warfNum / warfDen
	}
	if f := st.FloatingPar.InexactFloat64(); f > 0 {
		st.WAS = wasNum / f
	}
	if f := st.FixedPar.InexactFloat64(); f > 0 {
		st.WAC = wacNum / f
	}
	st.DiversityScore = DiversityScore(byIndustry)
	st.AdjustedPar = adjustedPar(holdings, st, in.OC)
	return st, warnings
}

// adjustedPar 超额抵押分子：正常资产面值 + 违约资产预期回收 - 超限 CCC 资产按市价折价
func adjustedPar(holdings []Holding, st Stats, oc model.OCConfig) decimal.Decimal {
	adjusted := st.TotalPar.Add(st.ExpectedRecovery)
	if oc.CCCLimit <= 0 || !st.CCCPar.IsPositive() {
		return model.Money(adjusted)
	}

	excess := st.CCCPar.Sub(model.Scale(st.TotalPar, oc.CCCLimit))
	if !excess.IsPositive() {
		return model.Money(adjusted)
	}

	type ccc struct {
		id    string
		par   decimal.Decimal
		price float64
	}
	var cccs []ccc
	for _, h := range holdings {
		if !h.Par.IsPositive() || !IsCCC(h.Asset) {
			continue
		}
		price := h.Asset.MarketPrice
		if price <= 0 {
			price = oc.CCCPrice
		}
		if price <= 0 || price > 1 {
			price = 1
		}
		cccs = append(cccs, ccc{id: h.Asset.ID, par: h.Par, price: price})
	}
	// 价格最低的 CCC 资产优先计入超额部分
	sort.Slice(cccs, func(i, j int) bool {
		if cccs[i].price != cccs[j].price {
			return cccs[i].price < cccs[j].price
		}
		return cccs[i].id < cccs[j].id
	})

	haircut := decimal.Zero
	for _, c := range cccs {
		if !excess.IsPositive() {
			break
		}
		take := model.MinMoney(c.par, excess)
		haircut = haircut.Add(model.Scale(take, 1-c.price))
		excess = excess.Sub(take)
	}
	return model.Money(adjusted.Sub(haircut))
}
