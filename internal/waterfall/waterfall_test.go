package waterfall

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/life2you_mini/cloengine/internal/dates"
	"github.com/life2you_mini/cloengine/internal/model"
	"github.com/life2you_mini/cloengine/internal/trigger"
)

func m(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func boolPtr(b bool) *bool {
	return &b
}

var payDate = time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)

// twoClassDeal A 类 8000 万，B 类 1000 万，次级 1000 万
func twoClassDeal(variant string, bPIK bool) *model.Deal {
	return &model.Deal{
		ID:               "DEAL-1",
		PaymentFrequency: 4,
		Tranches: []model.Tranche{
			{ID: "A", Rank: 1, OriginalBalance: m(80_000_000), Coupon: 0.05, CouponType: model.CouponFixed},
			{ID: "B", Rank: 2, OriginalBalance: m(10_000_000), Coupon: 0.08, CouponType: model.CouponFixed, PIKEligible: bPIK},
			{ID: "SUB", Rank: 9, OriginalBalance: m(10_000_000), Subordinated: true},
		},
		Waterfall: model.WaterfallConfig{Variant: variant},
	}
}

// breachedDeal A 类 9000 万，池面值 8500 万时 OC 测试违约
func breachedDeal(variant string) *model.Deal {
	return &model.Deal{
		ID: "DEAL-2",
		Tranches: []model.Tranche{
			{ID: "A", Rank: 1, OriginalBalance: m(90_000_000), Coupon: 0.05},
			{ID: "SUB", Rank: 9, OriginalBalance: m(10_000_000), Subordinated: true},
		},
		Waterfall: model.WaterfallConfig{Variant: variant},
	}
}

func ocBreach(st *State, diversion bool) []trigger.Evaluation {
	def := model.TriggerDef{ID: "A_OC", Kind: model.TriggerOC, ClassRank: 1, Threshold: 1.05, Diversion: diversion}
	return []trigger.Evaluation{trigger.Evaluate(def, trigger.Inputs{AdjustedPar: m(85_000_000), Tranches: st.Tranches})}
}

func mustVariant(t *testing.T, deal *model.Deal) Variant {
	t.Helper()
	v, err := VariantFor(deal)
	require.NoError(t, err)
	return v
}

func assertConserved(t *testing.T, e *Execution) {
	t.Helper()
	assert.True(t, e.Discrepancy().IsZero(), "资金不守恒: 可用 %s 支付 %s 期末 %s", e.Available(), e.TotalPaid, e.EndingCash)
}

func balanceOf(st *State, id string) decimal.Decimal {
	return st.Balances()[id]
}

type fixedFee struct {
	rate float64
	seen []decimal.Decimal
}

func (f *fixedFee) RecordPayment(amount decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	f.seen = append(f.seen, amount)
	fee := model.Scale(amount, f.rate)
	return fee, amount.Sub(fee)
}

func TestExecute_AllDuesPaid(t *testing.T) {
	deal := twoClassDeal(GenerationCLO1, false)
	st := NewState(deal)
	p := Params{
		DealID: deal.ID,
		Period: 1,
		Date:   payDate,
		Dues: Dues{
			SeniorExpenses:  m(50_000),
			SeniorMgmtFee:   m(37_500),
			SubMgmtFee:      m(87_500),
			TrancheInterest: map[string]decimal.Decimal{"A": m(1_000_000), "B": m(200_000)},
		},
	}

	e := Execute(mustVariant(t, deal), deal.Waterfall, st, p, m(2_000_000), m(1_000_000))

	assertConserved(t, e)
	assert.True(t, e.TotalPaid.Equal(m(3_000_000)))
	assert.True(t, e.EquityDistribution.Equal(m(625_000)), "剩余收益 %s", e.EquityDistribution)
	assert.True(t, e.PaidTo("SUB").Equal(m(625_000)))
	assert.True(t, e.PrincipalPaid["A"].Equal(m(1_000_000)))
	assert.True(t, balanceOf(st, "A").Equal(m(79_000_000)))
	assert.True(t, balanceOf(st, "B").Equal(m(10_000_000)))
	assert.True(t, e.EndingCash.IsZero())
	assert.False(t, e.StopperActive)

	// 步骤顺序：费用在票据利息之前
	require.NotEmpty(t, e.Lines)
	assert.Equal(t, StepSeniorExpenses, e.Lines[0].Step)
	assert.Equal(t, SourceInterest, e.Lines[0].Source)
	for i, l := range e.Lines {
		assert.Equal(t, i+1, l.Seq)
	}
}

func TestAllocate_Cents(t *testing.T) {
	tests := []struct {
		name    string
		amount  float64
		weights []float64
		want    []float64
	}{
		{name: "相同权重按定义顺序", amount: 0.10, weights: []float64{1, 1, 1}, want: []float64{0.04, 0.03, 0.03}},
		{name: "余数较大者优先", amount: 100, weights: []float64{1, 2}, want: []float64{33.33, 66.67}},
		{name: "零权重不分配", amount: 10, weights: []float64{0, 1}, want: []float64{0, 10}},
		{name: "金额为零", amount: 0, weights: []float64{1, 1}, want: []float64{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			weights := make([]decimal.Decimal, len(tt.weights))
			for i, w := range tt.weights {
				weights[i] = m(w)
			}
			got := allocate(m(tt.amount), weights)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.True(t, got[i].Equal(m(tt.want[i])), "第 %d 项 %s != %v", i, got[i], tt.want[i])
			}
			assert.True(t, sum(got).Equal(model.Money(m(tt.amount))))
		})
	}
}

func TestExecute_ProRataWithinRank(t *testing.T) {
	deal := &model.Deal{
		ID: "DEAL-3",
		Tranches: []model.Tranche{
			{ID: "A1", Rank: 1, OriginalBalance: m(30_000_000)},
			{ID: "A2", Rank: 1, OriginalBalance: m(60_000_000)},
			{ID: "SUB", Rank: 9, OriginalBalance: m(10_000_000), Subordinated: true},
		},
		Waterfall: model.WaterfallConfig{Variant: GenerationCLO1},
	}
	st := NewState(deal)
	p := Params{
		Period: 1,
		Date:   payDate,
		Dues:   Dues{TrancheInterest: map[string]decimal.Decimal{"A1": m(300_000), "A2": m(600_000)}},
	}

	e := Execute(mustVariant(t, deal), deal.Waterfall, st, p, m(100), m(0))

	assertConserved(t, e)
	assert.True(t, e.PaidTo("A1").Equal(m(33.33)))
	assert.True(t, e.PaidTo("A2").Equal(m(66.67)))
	require.Len(t, e.Warnings, 2)
	assert.Equal(t, model.WarnSeniorInterestShort, e.Warnings[0].Code)
}

func TestExecute_InterestShortfall(t *testing.T) {
	tests := []struct {
		name         string
		pik          bool
		principal    float64
		wantBBalance float64
		wantDeferred float64
		wantABalance float64
		treatment    string
	}{
		{name: "PIK资本化", pik: true, principal: 0, wantBBalance: 10_100_000, wantDeferred: 0, wantABalance: 80_000_000, treatment: TreatPIK},
		{name: "递延后由本金弥补", pik: false, principal: 500_000, wantBBalance: 10_000_000, wantDeferred: 0, wantABalance: 79_600_000, treatment: TreatDeferred},
		{name: "递延无本金", pik: false, principal: 0, wantBBalance: 10_000_000, wantDeferred: 100_000, wantABalance: 80_000_000, treatment: TreatDeferred},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deal := twoClassDeal(GenerationCLO1, tt.pik)
			st := NewState(deal)
			p := Params{
				Period: 1,
				Date:   payDate,
				Dues:   Dues{TrancheInterest: map[string]decimal.Decimal{"A": m(1_000_000), "B": m(200_000)}},
			}

			e := Execute(mustVariant(t, deal), deal.Waterfall, st, p, m(1_100_000), m(tt.principal))

			assertConserved(t, e)
			assert.True(t, balanceOf(st, "B").Equal(m(tt.wantBBalance)), "B 余额 %s", balanceOf(st, "B"))
			assert.True(t, balanceOf(st, "A").Equal(m(tt.wantABalance)), "A 余额 %s", balanceOf(st, "A"))
			assert.True(t, st.Tranches[1].DeferredInterest.Equal(m(tt.wantDeferred)))

			lines := e.LinesFor("B")
			require.NotEmpty(t, lines)
			assert.Equal(t, StepTrancheInterest, lines[0].Step)
			assert.True(t, lines[0].Shortfall.Equal(m(100_000)))
			assert.Equal(t, tt.treatment, lines[0].Treatment)
			if tt.pik {
				assert.True(t, e.PIKCapitalized["B"].Equal(m(100_000)))
			}
			assert.Empty(t, e.Warnings, "非最优先级缺口不产生警告")
		})
	}
}

func TestExecute_SeniorFeeShortfallDeferred(t *testing.T) {
	deal := twoClassDeal(GenerationCLO1, false)
	st := NewState(deal)
	p := Params{
		Period: 1,
		Date:   payDate,
		Dues:   Dues{SeniorExpenses: m(50_000), SeniorMgmtFee: m(37_500)},
	}

	e := Execute(mustVariant(t, deal), deal.Waterfall, st, p, m(60_000), m(0))

	assertConserved(t, e)
	assert.True(t, st.DeferredFees.Equal(m(27_500)))
	assert.True(t, e.EndingCash.IsZero())
}

func TestExecute_OCCureRedirectsPrincipal(t *testing.T) {
	deal := breachedDeal(GenerationCLO1)
	st := NewState(deal)
	triggers := ocBreach(st, false)
	require.True(t, triggers[0].CureTarget.Equal(m(9_047_619.05)))

	p := Params{
		Period:   1,
		Date:     payDate,
		Dues:     Dues{TrancheInterest: map[string]decimal.Decimal{"A": m(1_125_000)}},
		Triggers: triggers,
	}
	e := Execute(mustVariant(t, deal), deal.Waterfall, st, p, m(2_000_000), m(10_000_000))

	assertConserved(t, e)
	cure := decimal.Zero
	for _, l := range e.Lines {
		if l.Step == StepCoverageCure {
			assert.Equal(t, "A_OC", l.Note)
			cure = cure.Add(l.Paid)
		}
	}
	assert.True(t, cure.Equal(m(9_047_619.05)), "补救金额 %s", cure)
	assert.True(t, e.EquityDistribution.IsZero())
	assert.True(t, balanceOf(st, "A").Equal(m(79_125_000)))

	require.Len(t, e.Triggers, 1)
	assert.Equal(t, trigger.StateCured, e.Triggers[0].State)
	assert.GreaterOrEqual(t, e.Triggers[0].RatioAfterCure, 1.05)
	// 输入的评估结果不被修改
	assert.Equal(t, trigger.StateBreached, triggers[0].State)
}

func TestExecute_DistributionStopper(t *testing.T) {
	deal := breachedDeal(GenerationCLO3)
	deal.Waterfall.TurboPrincipal = boolPtr(false)
	v := mustVariant(t, deal)
	st := NewState(deal)

	p := Params{
		Period:   1,
		Date:     payDate,
		Dues:     Dues{SubMgmtFee: m(87_500), TrancheInterest: map[string]decimal.Decimal{"A": m(1_125_000)}},
		Triggers: ocBreach(st, true),
	}
	e := Execute(v, deal.Waterfall, st, p, m(2_000_000), m(0))

	assertConserved(t, e)
	assert.True(t, e.StopperActive)
	assert.True(t, e.EquityDistribution.IsZero())
	assert.True(t, st.DeferredFees.Equal(m(87_500)))
	assert.True(t, st.TrappedCash.Equal(m(875_000)))
	assert.True(t, e.EndingCash.Equal(m(875_000)))
	assert.True(t, e.PaidTo(payeeManager).IsZero())

	// 最后一期阻断解除，留存现金与递延费用全部分配
	final := Params{Period: 2, Date: payDate.AddDate(0, 3, 0), Final: true, Dues: Dues{TrancheInterest: map[string]decimal.Decimal{}}}
	e2 := Execute(v, deal.Waterfall, st, final, m(0), m(0))

	assertConserved(t, e2)
	assert.False(t, e2.StopperActive)
	assert.True(t, e2.BeginningCash.Equal(m(875_000)))
	assert.True(t, e2.PaidTo(payeeDeferredFees).Equal(m(87_500)))
	assert.True(t, e2.EquityDistribution.Equal(m(787_500)))
	assert.True(t, st.DeferredFees.IsZero())
	assert.True(t, e2.EndingCash.IsZero())
}

func TestExecute_TurboPrincipal(t *testing.T) {
	tests := []struct {
		name       string
		pct        float64
		wantTurbo  float64
		wantEquity float64
	}{
		{name: "全部加速", pct: 0, wantTurbo: 787_500, wantEquity: 0},
		{name: "一半加速", pct: 0.5, wantTurbo: 393_750, wantEquity: 393_750},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deal := breachedDeal(GenerationCLO2)
			deal.Waterfall.FeeDeferral = boolPtr(false)
			deal.Waterfall.TurboPct = tt.pct
			st := NewState(deal)
			p := Params{
				Period:   1,
				Date:     payDate,
				Dues:     Dues{SubMgmtFee: m(87_500), TrancheInterest: map[string]decimal.Decimal{"A": m(1_125_000)}},
				Triggers: ocBreach(st, true),
			}

			e := Execute(mustVariant(t, deal), deal.Waterfall, st, p, m(2_000_000), m(0))

			assertConserved(t, e)
			assert.True(t, e.TurboActive)
			assert.True(t, e.PrincipalPaid["A"].Equal(m(tt.wantTurbo)), "加速偿还 %s", e.PrincipalPaid["A"])
			assert.True(t, e.EquityDistribution.Equal(m(tt.wantEquity)))
			assert.True(t, e.PaidTo(payeeManager).Equal(m(87_500)))
		})
	}
}

func TestExecute_FeeDeferral(t *testing.T) {
	deal := breachedDeal(GenerationCLO2)
	deal.Waterfall.TurboPrincipal = boolPtr(false)
	st := NewState(deal)
	p := Params{
		Period:   1,
		Date:     payDate,
		Dues:     Dues{SubMgmtFee: m(87_500), TrancheInterest: map[string]decimal.Decimal{"A": m(1_125_000)}},
		Triggers: ocBreach(st, true),
	}

	e := Execute(mustVariant(t, deal), deal.Waterfall, st, p, m(2_000_000), m(0))

	assertConserved(t, e)
	assert.True(t, e.FeeDeferralActive)
	assert.False(t, e.StopperActive)
	assert.True(t, st.DeferredFees.Equal(m(87_500)))
	assert.True(t, e.EquityDistribution.Equal(m(875_000)))
}

func TestExecute_EquityClawback(t *testing.T) {
	deal := breachedDeal(GenerationCLO3)
	deal.Waterfall.ClawbackHurdle = 0.12
	deal.Waterfall.ClawbackPct = 0.5
	v := mustVariant(t, deal)
	st := NewState(deal)
	dues := Dues{TrancheInterest: map[string]decimal.Decimal{"A": m(1_125_000)}}

	e := Execute(v, deal.Waterfall, st, Params{Period: 1, Date: payDate, Dues: dues}, m(2_000_000), m(0))

	assertConserved(t, e)
	assert.True(t, e.ClawbackActive)
	assert.True(t, st.ClawbackReserve.Equal(m(437_500)))
	assert.True(t, e.EquityDistribution.Equal(m(437_500)))
	assert.True(t, e.EndingCash.Equal(m(437_500)))

	// 收益率达到门槛后释放准备金
	irr := 0.15
	e2 := Execute(v, deal.Waterfall, st, Params{Period: 2, Date: payDate.AddDate(0, 3, 0), EquityIRR: &irr, Dues: dues}, m(2_000_000), m(0))

	assertConserved(t, e2)
	assert.False(t, e2.ClawbackActive)
	require.NotEmpty(t, e2.Lines)
	assert.Equal(t, SourceReserve, e2.Lines[0].Source)
	assert.Equal(t, TreatReleased, e2.Lines[0].Treatment)
	assert.True(t, e2.EquityDistribution.Equal(m(437_500+875_000)))
	assert.True(t, st.ClawbackReserve.IsZero())
}

func TestExecute_IncentiveFee(t *testing.T) {
	deal := twoClassDeal(GenerationCLO1, false)
	st := NewState(deal)
	fee := &fixedFee{rate: 0.2}
	p := Params{
		Period:      1,
		Date:        payDate,
		Dues:        Dues{TrancheInterest: map[string]decimal.Decimal{"A": m(1_000_000), "B": m(200_000)}},
		Distributor: fee,
	}

	e := Execute(mustVariant(t, deal), deal.Waterfall, st, p, m(2_200_000), m(0))

	assertConserved(t, e)
	require.Len(t, fee.seen, 1)
	assert.True(t, fee.seen[0].Equal(m(1_000_000)))
	assert.True(t, e.IncentiveFee.Equal(m(200_000)))
	assert.True(t, e.EquityDistribution.Equal(m(800_000)))
}

func TestExecute_Reinvestment(t *testing.T) {
	tests := []struct {
		name           string
		final          bool
		wantReinvested float64
		wantPaydown    float64
	}{
		{name: "再投资期内", final: false, wantReinvested: 1_000_000, wantPaydown: 0},
		{name: "最后一期不再投资", final: true, wantReinvested: 0, wantPaydown: 1_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deal := twoClassDeal(GenerationCLO1, false)
			st := NewState(deal)
			p := Params{Period: 1, Date: payDate, Final: tt.final, Reinvesting: true}

			e := Execute(mustVariant(t, deal), deal.Waterfall, st, p, m(0), m(1_000_000))

			assertConserved(t, e)
			assert.True(t, e.Reinvested.Equal(m(tt.wantReinvested)))
			assert.True(t, e.PrincipalPaid["A"].Equal(m(tt.wantPaydown)))
		})
	}
}

func TestVariantFor(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *model.Deal)
		wantErr bool
		check   func(t *testing.T, v Variant)
	}{
		{name: "未指定模板", mutate: func(d *model.Deal) { d.Waterfall.Variant = "" }, wantErr: true},
		{name: "未知模板", mutate: func(d *model.Deal) { d.Waterfall.Variant = "CLO9" }, wantErr: true},
		{
			name: "未知步骤",
			mutate: func(d *model.Deal) {
				d.Waterfall.InterestSteps = []model.StepConfig{{Kind: "BONUS"}}
			},
			wantErr: true,
		},
		{
			name: "步骤引用不存在的顺位",
			mutate: func(d *model.Deal) {
				d.Waterfall.PrincipalSteps = []model.StepConfig{{Kind: "coverage_cure", Rank: 5}}
			},
			wantErr: true,
		},
		{
			name:   "CLO1 补救在全部利息之后",
			mutate: func(d *model.Deal) {},
			check: func(t *testing.T, v Variant) {
				assert.Equal(t, GenerationCLO1, v.Name)
				assert.False(t, v.TurboPrincipal)
				assert.Equal(t, StepTrancheInterest, v.Interest[2].Kind)
				assert.Equal(t, StepCoverageCure, v.Interest[6].Kind)
				assert.Equal(t, 1, v.Interest[6].Rank)
			},
		},
		{
			name:   "CLO3 全部开关",
			mutate: func(d *model.Deal) { d.Waterfall.Variant = "clo3" },
			check: func(t *testing.T, v Variant) {
				assert.True(t, v.EquityClawback)
				assert.True(t, v.TurboPrincipal)
				assert.True(t, v.FeeDeferral)
				assert.True(t, v.DistributionStopper)
				assert.Equal(t, StepCoverageCure, v.Interest[4].Kind)
			},
		},
		{
			name: "开关覆盖与自定义步骤",
			mutate: func(d *model.Deal) {
				d.Waterfall.Variant = GenerationCLO2
				d.Waterfall.TurboPrincipal = boolPtr(false)
				d.Waterfall.PrincipalSteps = []model.StepConfig{{Kind: "SEQUENTIAL_PRINCIPAL"}, {Kind: "RESIDUAL", Junior: true}}
			},
			check: func(t *testing.T, v Variant) {
				assert.Equal(t, "CLO2-custom", v.Name)
				assert.False(t, v.TurboPrincipal)
				assert.True(t, v.FeeDeferral)
				require.Len(t, v.Principal, 2)
				assert.True(t, v.Principal[1].Junior)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deal := twoClassDeal(GenerationCLO1, false)
			tt.mutate(deal)
			v, err := VariantFor(deal)
			if tt.wantErr {
				var cfgErr *model.ConfigError
				require.ErrorAs(t, err, &cfgErr)
				assert.Equal(t, deal.ID, cfgErr.DealID)
				return
			}
			require.NoError(t, err)
			tt.check(t, v)
		})
	}
}

func TestComputeDues(t *testing.T) {
	deal := twoClassDeal(GenerationCLO1, false)
	deal.Fees = model.FeeSchedule{
		TrusteeFee:       m(50_000),
		AdminFeeBps:      10,
		AdminFeeCap:      m(20_000),
		SeniorMgmtFeeBps: 15,
		SubMgmtFeeBps:    35,
		DayCount:         dates.Thirty,
	}
	deal.Tranches[1].CouponType = model.CouponFloating
	deal.Tranches[1].Index = "3M"
	deal.Tranches[1].Floor = 0.025
	deal.Tranches[1].Spread = 0.03
	st := NewState(deal)
	start := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	index := func(time.Time, string) float64 { return 0.02 }

	d := ComputeDues(deal, st.Tranches, m(100_000_000), start, payDate, index)

	assert.True(t, d.SeniorExpenses.Equal(m(70_000)), "优先费用 %s", d.SeniorExpenses)
	assert.True(t, d.SeniorMgmtFee.Equal(m(37_500)))
	assert.True(t, d.SubMgmtFee.Equal(m(87_500)))
	assert.True(t, d.TrancheInterest["A"].Equal(m(1_000_000)))
	assert.InDelta(t, 0.055, d.TrancheCoupon["B"], 1e-12)
	assert.True(t, d.TrancheInterest["B"].Equal(m(137_500)))
	_, ok := d.TrancheInterest["SUB"]
	assert.False(t, ok)
}
