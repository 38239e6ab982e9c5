package projector

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/life2you_mini/cloengine/internal/curve"
	"github.com/life2you_mini/cloengine/internal/dates"
	"github.com/life2you_mini/cloengine/internal/model"
)

var analysisDate = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func fixedAsset() *model.Asset {
	return &model.Asset{
		ID:               "A1",
		Obligor:          "Obligor1",
		Par:              decimal.NewFromInt(10_000_000),
		CouponType:       model.CouponFixed,
		Coupon:           0.05,
		Maturity:         analysisDate.AddDate(2, 0, 0),
		DayCount:         dates.Thirty,
		PaymentFrequency: 4,
		Amortization:     model.AmortBullet,
	}
}

func zeroAssumptions() model.AssumptionSet {
	return model.AssumptionSet{
		CDR:      model.Vector{0},
		CPR:      model.Vector{0},
		Recovery: model.Vector{0.7},
	}
}

func runPeriods(p *Projector, s *AssetState, set model.AssumptionSet, n int) []model.CashFlowPeriod {
	bounds := dates.Schedule(analysisDate, 4, n)
	out := make([]model.CashFlowPeriod, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, p.Project(s, set, Period{Index: i, Start: bounds[i-1], End: bounds[i]}))
	}
	return out
}

func TestProject_SingleAssetBullet(t *testing.T) {
	p := New(curve.Flat(analysisDate, 0.05), curve.ResetSpot)
	s := NewAssetState(fixedAsset(), analysisDate)

	flows := runPeriods(p, s, zeroAssumptions(), 8)

	interest := decimal.Zero
	principal := decimal.Zero
	for _, cf := range flows {
		interest = interest.Add(cf.InterestCollected)
		principal = principal.Add(cf.PrincipalProceeds())
		assert.Empty(t, cf.Warnings)
	}

	assert.True(t, interest.Equal(decimal.NewFromInt(1_000_000)), "利息合计 %s", interest)
	assert.True(t, principal.Equal(decimal.NewFromInt(10_000_000)), "本金合计 %s", principal)
	assert.True(t, flows[7].EndingBalance.IsZero())
	assert.Equal(t, model.StatusMatured, flows[7].Status)
	assert.True(t, flows[0].InterestCollected.Equal(decimal.NewFromInt(125_000)))
	assert.False(t, s.Active())
}

func TestProject_LevelAmortization(t *testing.T) {
	a := fixedAsset()
	a.Amortization = model.AmortLevel
	p := New(curve.Flat(analysisDate, 0.05), curve.ResetSpot)
	s := NewAssetState(a, analysisDate)

	flows := runPeriods(p, s, zeroAssumptions(), 8)

	for i, cf := range flows {
		assert.True(t, cf.ScheduledPrincipal.Equal(decimal.NewFromInt(1_250_000)), "第%d期计划本金 %s", i+1, cf.ScheduledPrincipal)
	}
	assert.True(t, flows[7].EndingBalance.IsZero())
}

func TestProject_DefaultsAndRecoveryLag(t *testing.T) {
	p := New(curve.Flat(analysisDate, 0.05), curve.ResetSpot)
	s := NewAssetState(fixedAsset(), analysisDate)
	set := model.AssumptionSet{
		CDR:         model.Vector{1.0},
		CPR:         model.Vector{0},
		Recovery:    model.Vector{0.6},
		RecoveryLag: 2,
	}

	flows := runPeriods(p, s, set, 4)

	assert.True(t, flows[0].DefaultAmount.Equal(decimal.NewFromInt(10_000_000)))
	assert.True(t, flows[0].LossAmount.Equal(decimal.NewFromInt(4_000_000)))
	assert.True(t, flows[0].RecoveryAmount.IsZero())
	assert.True(t, flows[0].InterestCollected.IsZero())
	assert.Equal(t, model.StatusDefaulted, flows[0].Status)
	assert.True(t, flows[2].RecoveryAmount.Equal(decimal.NewFromInt(6_000_000)), "滞后两期实现回收")
	assert.True(t, s.Done())
}

func TestProject_AlreadyDefaulted(t *testing.T) {
	a := fixedAsset()
	a.Defaulted = true
	a.RecoveryRate = 0.4
	p := New(curve.Flat(analysisDate, 0.05), curve.ResetSpot)
	s := NewAssetState(a, analysisDate)

	flows := runPeriods(p, s, zeroAssumptions(), 2)

	assert.True(t, flows[0].DefaultAmount.Equal(decimal.NewFromInt(10_000_000)))
	assert.True(t, flows[0].RecoveryAmount.Equal(decimal.NewFromInt(4_000_000)))
	assert.True(t, flows[1].RecoveryAmount.IsZero())
	assert.Equal(t, model.StatusDefaulted, flows[1].Status)
}

func TestProject_PIKCapitalizes(t *testing.T) {
	a := fixedAsset()
	a.PIK = true
	p := New(curve.Flat(analysisDate, 0.05), curve.ResetSpot)
	s := NewAssetState(a, analysisDate)

	flows := runPeriods(p, s, zeroAssumptions(), 1)

	assert.True(t, flows[0].InterestCollected.IsZero())
	assert.True(t, flows[0].PIKInterest.Equal(decimal.NewFromInt(125_000)))
	assert.True(t, flows[0].EndingBalance.Equal(decimal.NewFromInt(10_125_000)))
}

func TestProject_FloatingCouponFloor(t *testing.T) {
	a := fixedAsset()
	a.CouponType = model.CouponFloating
	a.Index = "3M"
	a.Spread = 0.035
	a.Floor = 0.01
	p := New(curve.Flat(analysisDate, 0.005), curve.ResetSpot)
	s := NewAssetState(a, analysisDate)

	flows := runPeriods(p, s, zeroAssumptions(), 1)

	assert.InDelta(t, 0.045, flows[0].CouponRate, 1e-12, "基准低于下限时按下限计息")
}

func TestProject_Liquidation(t *testing.T) {
	p := New(curve.Flat(analysisDate, 0.05), curve.ResetSpot)
	s := NewAssetState(fixedAsset(), analysisDate)
	bounds := dates.Schedule(analysisDate, 4, 1)

	cf := p.Project(s, zeroAssumptions(), Period{Index: 1, Start: bounds[0], End: bounds[1], Liquidate: true, SalePrice: 0.98})

	assert.True(t, cf.SaleProceeds.Equal(decimal.NewFromInt(9_800_000)))
	assert.True(t, cf.LossAmount.Equal(decimal.NewFromInt(200_000)))
	assert.Equal(t, model.StatusCalled, cf.Status)
	assert.True(t, cf.EndingBalance.IsZero())
}

func TestProject_DataGapWarnings(t *testing.T) {
	a := fixedAsset()
	a.DayCount = ""
	p := New(curve.Flat(analysisDate, 0.05), curve.ResetSpot)
	s := NewAssetState(a, analysisDate)
	set := model.AssumptionSet{
		CDR: model.Vector{0, 0},
	}

	flows := runPeriods(p, s, set, 3)

	codes := func(cf model.CashFlowPeriod) []string {
		var out []string
		for _, w := range cf.Warnings {
			out = append(out, w.Code)
		}
		return out
	}
	require.NotEmpty(t, flows[0].Warnings)
	assert.Contains(t, codes(flows[0]), model.WarnAssetFieldMissing)
	assert.Contains(t, codes(flows[0]), model.WarnAssumptionMissing)
	assert.Contains(t, codes(flows[2]), model.WarnAssumptionHeldFlat)
	assert.NotContains(t, codes(flows[1]), model.WarnAssumptionMissing, "同类警告每个资产只记录一次")
}

func TestVectorRate(t *testing.T) {
	tests := []struct {
		name    string
		v       model.Vector
		period  int
		want    float64
		held    bool
		missing bool
	}{
		{name: "空向量", v: nil, period: 1, missing: true},
		{name: "常数向量", v: model.Vector{0.02}, period: 9, want: 0.02},
		{name: "期内取值", v: model.Vector{0.01, 0.02, 0.03}, period: 2, want: 0.02},
		{name: "超出长度沿用末值", v: model.Vector{0.01, 0.02}, period: 5, want: 0.02, held: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, held, missing := vectorRate(tt.v, tt.period)
			assert.InDelta(t, tt.want, got, 1e-12)
			assert.Equal(t, tt.held, held)
			assert.Equal(t, tt.missing, missing)
		})
	}
}

func TestPeriodRate(t *testing.T) {
	assert.InDelta(t, 0.0, periodRate(0, 0.25), 1e-12)
	assert.InDelta(t, 1.0, periodRate(1, 0.25), 1e-12)
	assert.InDelta(t, 0.025996, periodRate(0.1, 0.25), 1e-5)
}
