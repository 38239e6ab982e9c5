package pool

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/life2you_mini/cloengine/internal/curve"
	"github.com/life2you_mini/cloengine/internal/dates"
	"github.com/life2you_mini/cloengine/internal/model"
	"github.com/life2you_mini/cloengine/internal/projector"
)

var asOf = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func m(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func TestRatingFactor(t *testing.T) {
	tests := []struct {
		name   string
		asset  model.Asset
		factor float64
		ok     bool
		ccc    bool
	}{
		{name: "穆迪评级优先", asset: model.Asset{MoodysRating: "B2", SPRating: "CCC"}, factor: 2720, ok: true},
		{name: "标普映射", asset: model.Asset{SPRating: "B-"}, factor: 3490, ok: true},
		{name: "惠誉映射", asset: model.Asset{FitchRating: "ccc"}, factor: 6500, ok: true, ccc: true},
		{name: "无效穆迪评级回落到标普", asset: model.Asset{MoodysRating: "XX", SPRating: "BB"}, factor: 1350, ok: true},
		{name: "无评级", asset: model.Asset{}, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := RatingFactor(&tt.asset)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.factor, f, 1e-9)
			assert.Equal(t, tt.ccc, IsCCC(&tt.asset))
		})
	}
}

func TestComputeStats(t *testing.T) {
	holdings := []Holding{
		{
			Asset: &model.Asset{ID: "A", Obligor: "O1", CouponType: model.CouponFloating, Spread: 0.04,
				MoodysRating: "B2", Industry: "Tech", Maturity: asOf.AddDate(3, 0, 0), RecoveryRate: 0.5},
			Par: m(6_000_000),
		},
		{
			Asset: &model.Asset{ID: "B", Obligor: "O2", CouponType: model.CouponFixed, Coupon: 0.08,
				SPRating: "B-", Industry: "Retail", Maturity: asOf.AddDate(5, 0, 0)},
			Par: m(4_000_000),
		},
	}
	in := StatsInput{
		AsOf:        asOf,
		RecoveryFor: func(*model.Asset) float64 { return 0.25 },
	}

	st, warnings := ComputeStats(holdings, in)

	assert.Empty(t, warnings)
	assert.True(t, st.TotalPar.Equal(m(10_000_000)))
	assert.Equal(t, 2, st.AssetCount)
	assert.Equal(t, 2, st.ObligorCount)
	assert.InDelta(t, 3028, st.WARF, 1e-9)
	assert.InDelta(t, 0.04, st.WAS, 1e-12)
	assert.InDelta(t, 0.08, st.WAC, 1e-12)
	assert.InDelta(t, 0.4, st.WARR, 1e-12)
	assert.InDelta(t, 3.8, st.WAL, 0.01)
	assert.InDelta(t, 2.0, st.DiversityScore, 1e-9)
	assert.True(t, st.AdjustedPar.Equal(m(10_000_000)))
}

func TestComputeStats_MissingRating(t *testing.T) {
	holdings := []Holding{
		{Asset: &model.Asset{ID: "A", MoodysRating: "B1", Maturity: asOf.AddDate(1, 0, 0)}, Par: m(1_000_000)},
		{Asset: &model.Asset{ID: "NR", Maturity: asOf.AddDate(1, 0, 0)}, Par: m(1_000_000)},
	}

	st, warnings := ComputeStats(holdings, StatsInput{AsOf: asOf})

	require.Len(t, warnings, 1)
	assert.Equal(t, model.WarnRatingMissing, warnings[0].Code)
	assert.Equal(t, "NR", warnings[0].Subject)
	assert.InDelta(t, 2220, st.WARF, 1e-9, "无评级资产权重为 0")
}

func TestAdjustedPar_CCCExcess(t *testing.T) {
	holdings := []Holding{
		{Asset: &model.Asset{ID: "A", MoodysRating: "B2", Maturity: asOf.AddDate(2, 0, 0)}, Par: m(8_000_000)},
		{Asset: &model.Asset{ID: "C", MoodysRating: "Caa2", MarketPrice: 0.6, Maturity: asOf.AddDate(2, 0, 0)}, Par: m(2_000_000)},
	}
	in := StatsInput{
		AsOf:             asOf,
		OC:               model.OCConfig{CCCLimit: 0.075, CCCPrice: 0.7},
		ExpectedRecovery: m(1_000_000),
	}

	st, _ := ComputeStats(holdings, in)

	// 超限部分 2,000,000 - 750,000 = 1,250,000，按 0.6 计价，折价 500,000
	assert.True(t, st.CCCPar.Equal(m(2_000_000)))
	assert.True(t, st.AdjustedPar.Equal(m(10_500_000)), "调整后面值 %s", st.AdjustedPar)
}

func TestDiversityScore(t *testing.T) {
	tests := []struct {
		name     string
		holdings map[string]map[string]decimal.Decimal
		expected float64
	}{
		{name: "空组合", holdings: nil, expected: 0},
		{name: "不同行业", holdings: map[string]map[string]decimal.Decimal{
			"Tech": {"O1": m(100)}, "Retail": {"O2": m(100)},
		}, expected: 2},
		{name: "同一行业", holdings: map[string]map[string]decimal.Decimal{
			"Tech": {"O1": m(100), "O2": m(100)},
		}, expected: 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, DiversityScore(tt.holdings), 1e-9)
		})
	}

	assert.InDelta(t, 1.25, industryScore(1.55), 1e-9)
	assert.InDelta(t, 4.0, industryScore(25), 1e-9)
}

func TestAggregate(t *testing.T) {
	assets := []*model.Asset{
		{ID: "A", Obligor: "O1", Par: m(10_000_000), CouponType: model.CouponFixed, Coupon: 0.05,
			Maturity: asOf.AddDate(2, 0, 0), DayCount: dates.Thirty, PaymentFrequency: 4, MoodysRating: "B2"},
		{ID: "B", Obligor: "O2", Par: m(5_000_000), CouponType: model.CouponFixed, Coupon: 0.04,
			Maturity: asOf.AddDate(0, 3, 0), DayCount: dates.Thirty, PaymentFrequency: 4, MoodysRating: "B1"},
	}
	set := model.AssumptionSet{CDR: model.Vector{0}, CPR: model.Vector{0}, Recovery: model.Vector{0.5}}
	p := projector.New(curve.Flat(asOf, 0.05), curve.ResetSpot)
	bounds := dates.Schedule(asOf, 4, 1)

	states := make([]*projector.AssetState, 0, len(assets))
	flows := make([]model.CashFlowPeriod, 0, len(assets))
	for _, a := range assets {
		s := projector.NewAssetState(a, asOf)
		states = append(states, s)
		flows = append(flows, p.Project(s, set, projector.Period{Index: 1, Start: bounds[0], End: bounds[1]}))
	}

	pp := Aggregate(1, bounds[1], flows, states, StatsInput{AsOf: bounds[1]})

	assert.True(t, pp.BeginningPar.Equal(m(15_000_000)))
	assert.True(t, pp.InterestProceeds.Equal(m(175_000)))
	assert.True(t, pp.PrincipalProceeds.Equal(m(5_000_000)), "B 到期")
	assert.True(t, pp.EndingPar.Equal(m(10_000_000)))
	assert.Equal(t, 1, pp.ActiveAssets)
	assert.Equal(t, 1, pp.InactiveAssets)
	assert.Equal(t, 1, pp.Stats.AssetCount, "已到期资产不计入统计")
	assert.True(t, pp.Stats.TotalPar.Equal(pp.EndingPar))
}
