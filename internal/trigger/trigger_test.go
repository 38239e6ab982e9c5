package trigger

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/life2you_mini/cloengine/internal/model"
)

func m(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

var ocDef = model.TriggerDef{ID: "A_OC", Kind: model.TriggerOC, ClassRank: 1, Threshold: 1.05}

func singleTranche(balance float64) []model.Tranche {
	return []model.Tranche{
		{ID: "A", Rank: 1, Balance: m(balance), Coupon: 0.06},
		{ID: "SUB", Rank: 9, Balance: m(10_000_000), Subordinated: true},
	}
}

func TestEvaluate_OCBreachAndFullCure(t *testing.T) {
	// 池面值 1 亿，A 类 9000 万，比率 1.111 通过
	passing := Evaluate(ocDef, Inputs{AdjustedPar: m(100_000_000), Tranches: singleTranche(90_000_000)})
	assert.InDelta(t, 1.1111, passing.Ratio, 1e-4)
	assert.False(t, passing.Breached)
	assert.Equal(t, StatePassing, passing.State)
	assert.True(t, passing.CureTarget.IsZero())

	// 违约 1500 万、零回收后比率 0.944，违约
	breached := Evaluate(ocDef, Inputs{AdjustedPar: m(85_000_000), Tranches: singleTranche(90_000_000)})
	assert.InDelta(t, 0.9444, breached.Ratio, 1e-4)
	require.True(t, breached.Breached)
	assert.Equal(t, StateBreached, breached.State)
	assert.True(t, breached.CureTarget.Equal(m(9_047_619.05)), "补救目标 %s", breached.CureTarget)

	cured := Apply(breached, breached.CureTarget)
	assert.Equal(t, StateCured, cured.State)
	assert.GreaterOrEqual(t, cured.RatioAfterCure, 1.05)
	assert.InDelta(t, 1.05, cured.RatioAfterCure, 1e-9, "比率恰好恢复到阈值")
	assert.True(t, cured.RemainingTarget(cured.CureApplied).IsZero())
}

func TestApply_PartialCure(t *testing.T) {
	breached := Evaluate(ocDef, Inputs{AdjustedPar: m(85_000_000), Tranches: singleTranche(90_000_000)})

	partial := Apply(breached, m(5_500_000))

	assert.Equal(t, StateBreachedCuring, partial.State)
	assert.True(t, partial.Failing())
	assert.True(t, partial.RemainingTarget(partial.CureApplied).Equal(m(3_547_619.05)))
	assert.Greater(t, partial.RatioAfterCure, breached.Ratio)
	assert.Less(t, partial.RatioAfterCure, 1.05)
}

func TestApply_ZeroFundsIdempotent(t *testing.T) {
	tests := []struct {
		name  string
		first decimal.Decimal
		state State
	}{
		{name: "未补救", first: decimal.Zero, state: StateBreached},
		{name: "部分补救", first: m(1_000_000), state: StateBreachedCuring},
		{name: "完全补救", first: m(10_000_000), state: StateCured},
	}
	breached := Evaluate(ocDef, Inputs{AdjustedPar: m(85_000_000), Tranches: singleTranche(90_000_000)})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := Apply(breached, tt.first)
			again := Apply(once, decimal.Zero)
			assert.Equal(t, tt.state, once.State)
			assert.Equal(t, once.State, again.State)
			assert.Equal(t, once.Breached, again.Breached)
			assert.True(t, once.CureApplied.Equal(again.CureApplied))
		})
	}

	passing := Evaluate(ocDef, Inputs{AdjustedPar: m(100_000_000), Tranches: singleTranche(90_000_000)})
	assert.Equal(t, StatePassing, Apply(passing, decimal.Zero).State)
}

func TestEvaluate_IC(t *testing.T) {
	def := model.TriggerDef{ID: "A_IC", Kind: model.TriggerIC, ClassRank: 1, Threshold: 1.2}
	in := Inputs{
		InterestProceeds: m(1_500_000),
		SeniorExpenses:   m(200_000),
		SeniorMgmtFee:    m(100_000),
		Tranches:         singleTranche(80_000_000),
		InterestDue:      map[string]decimal.Decimal{"A": m(1_200_000)},
		YearFraction:     0.25,
	}

	e := Evaluate(def, in)

	// (1.5M - 0.3M) / 1.2M = 1.0
	assert.InDelta(t, 1.0, e.Ratio, 1e-12)
	require.True(t, e.Breached)
	// X = (1.2M - 1.2M/1.2) / (0.06 × 0.25) = 200,000 / 0.015
	assert.True(t, e.CureTarget.Equal(m(13_333_333.34)), "补救目标 %s", e.CureTarget)

	cured := Apply(e, e.CureTarget)
	assert.Equal(t, StateCured, cured.State)
	assert.InDelta(t, 1.2, cured.RatioAfterCure, 1e-6)
}

func TestEvaluate_ICSurvivesJSON(t *testing.T) {
	def := model.TriggerDef{ID: "A_IC", Kind: model.TriggerIC, ClassRank: 1, Threshold: 1.2}
	e := Evaluate(def, Inputs{
		InterestProceeds: m(1_500_000),
		SeniorExpenses:   m(300_000),
		Tranches:         singleTranche(80_000_000),
		InterestDue:      map[string]decimal.Decimal{"A": m(1_200_000)},
		YearFraction:     0.25,
	})
	partial := Apply(e, m(5_000_000))

	data, err := json.Marshal(partial)
	require.NoError(t, err)
	var restored Evaluation
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.InDelta(t, partial.StackRate, restored.StackRate, 1e-15)
	assert.True(t, restored.RemainingTarget(restored.CureApplied).Equal(partial.RemainingTarget(partial.CureApplied)))
	assert.True(t, restored.RemainingTarget(restored.CureApplied).IsPositive())
	assert.Equal(t, StateCured, Apply(restored, restored.RemainingTarget(restored.CureApplied)).State)
}

func TestEvaluate_NoDenominator(t *testing.T) {
	e := Evaluate(ocDef, Inputs{AdjustedPar: m(1_000), Tranches: singleTranche(0)})
	assert.Equal(t, Unbounded, e.Ratio)
	assert.False(t, e.Breached)
}

func TestEvaluate_StackIncludesSeniorClasses(t *testing.T) {
	tranches := []model.Tranche{
		{ID: "A", Rank: 1, Balance: m(60_000_000)},
		{ID: "B", Rank: 2, Balance: m(20_000_000)},
		{ID: "C", Rank: 3, Balance: m(10_000_000)},
	}
	def := model.TriggerDef{ID: "B_OC", Kind: model.TriggerOC, ClassRank: 2, Threshold: 1.1}

	e := Evaluate(def, Inputs{AdjustedPar: m(100_000_000), Tranches: tranches})

	assert.True(t, e.Denominator.Equal(m(80_000_000)))
	assert.InDelta(t, 1.25, e.Ratio, 1e-12)

	got, ok := Find([]Evaluation{e}, "B_OC")
	require.True(t, ok)
	assert.Equal(t, "B_OC", got.ID)
	_, ok = Find([]Evaluation{e}, "X")
	assert.False(t, ok)
}
