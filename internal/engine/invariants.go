package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/life2you_mini/cloengine/internal/model"
	"github.com/life2you_mini/cloengine/internal/pool"
	"github.com/life2you_mini/cloengine/internal/projector"
	"github.com/life2you_mini/cloengine/internal/waterfall"
)

func invariant(dealID string, period int, check, format string, args ...interface{}) *model.InvariantError {
	return &model.InvariantError{
		DealID: dealID,
		Period: period,
		Check:  check,
		Detail: fmt.Sprintf(format, args...),
	}
}

// checkPool 组合面值与回收金额等于资产级合计
func checkPool(dealID string, pp *pool.PoolPeriod, flows []model.CashFlowPeriod, states []*projector.AssetState) error {
	ending := decimal.Zero
	for _, s := range states {
		if s.Balance.IsNegative() {
			return invariant(dealID, pp.Period, model.CheckAssetBalanceValid, "资产 %s 余额为负: %s", s.Asset.ID, s.Balance)
		}
		ending = ending.Add(s.Balance)
	}
	if !ending.Equal(pp.EndingPar) {
		return invariant(dealID, pp.Period, model.CheckPoolParSum, "资产余额合计 %s != 组合期末面值 %s", ending, pp.EndingPar)
	}
	active := decimal.Zero
	for _, h := range pool.Holdings(states) {
		active = active.Add(h.Par)
	}
	if !active.Equal(pp.Stats.TotalPar) {
		return invariant(dealID, pp.Period, model.CheckPoolParSum, "活跃资产面值 %s != 统计面值 %s", active, pp.Stats.TotalPar)
	}

	interest, principal := decimal.Zero, decimal.Zero
	for i := range flows {
		interest = interest.Add(flows[i].InterestCollected)
		principal = principal.Add(flows[i].PrincipalProceeds())
	}
	if !interest.Equal(pp.InterestProceeds) || !principal.Equal(pp.PrincipalProceeds) {
		return invariant(dealID, pp.Period, model.CheckPoolProceedsSum,
			"资产级利息 %s 本金 %s 与组合汇总 %s / %s 不一致", interest, principal, pp.InterestProceeds, pp.PrincipalProceeds)
	}
	return nil
}

// checkExecution 资金守恒、票据余额非负、无 PIK 时余额不增加
func checkExecution(dealID string, e *waterfall.Execution, prev map[string]decimal.Decimal, st *waterfall.State) error {
	if d := e.Discrepancy().Abs(); d.GreaterThan(model.Tolerance) {
		return invariant(dealID, e.Period, model.CheckConservation,
			"可用资金 %s != 支付 %s + 期末现金 %s（差额 %s）", e.Available(), e.TotalPaid, e.EndingCash, d)
	}
	for _, t := range st.Tranches {
		if t.Balance.IsNegative() {
			return invariant(dealID, e.Period, model.CheckTrancheNegative, "票据 %s 余额为负: %s", t.ID, t.Balance)
		}
		if t.DeferredInterest.IsNegative() {
			return invariant(dealID, e.Period, model.CheckTrancheNegative, "票据 %s 递延利息为负: %s", t.ID, t.DeferredInterest)
		}
		limit := prev[t.ID].Add(e.PIKCapitalized[t.ID])
		if t.Balance.GreaterThan(limit) {
			return invariant(dealID, e.Period, model.CheckTrancheMonotonic, "票据 %s 余额由 %s 增至 %s（PIK %s）",
				t.ID, prev[t.ID], t.Balance, e.PIKCapitalized[t.ID])
		}
	}
	for _, l := range e.Lines {
		if l.Paid.IsNegative() || l.Retained.IsNegative() {
			return invariant(dealID, e.Period, model.CheckConservation, "第 %d 条支付记录金额为负", l.Seq)
		}
	}
	return nil
}
