package pool

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/life2you_mini/cloengine/internal/model"
	"github.com/life2you_mini/cloengine/internal/projector"
)

// PoolPeriod 抵押池单期汇总
type PoolPeriod struct {
	Period int       `json:"period"`
	Date   time.Time `json:"date"`

	BeginningPar decimal.Decimal `json:"beginning_par"`
	EndingPar    decimal.Decimal `json:"ending_par"`

	InterestProceeds   decimal.Decimal `json:"interest_proceeds"`
	PrincipalProceeds  decimal.Decimal `json:"principal_proceeds"`
	ScheduledPrincipal decimal.Decimal `json:"scheduled_principal"`
	Prepayments        decimal.Decimal `json:"prepayments"`
	Defaults           decimal.Decimal `json:"defaults"`
	Recoveries         decimal.Decimal `json:"recoveries"`
	Losses             decimal.Decimal `json:"losses"`
	SaleProceeds       decimal.Decimal `json:"sale_proceeds"`
	PIKInterest        decimal.Decimal `json:"pik_interest"`
	PendingRecoveries  decimal.Decimal `json:"pending_recoveries"`

	ActiveAssets   int `json:"active_assets"`
	InactiveAssets int `json:"inactive_assets"`

	Stats    Stats           `json:"stats"`
	Warnings []model.Warning `json:"warnings,omitempty"`
}

// Holdings 活跃资产集合
func Holdings(states []*projector.AssetState) []Holding {
	out := make([]Holding, 0, len(states))
	for _, s := range states {
		if s.Active() {
			out = append(out, Holding{Asset: s.Asset, Par: s.Balance})
		}
	}
	return out
}

// Aggregate 汇总本期资产现金流并计算组合统计
// 已退出的资产不计入活跃集合与统计，但其最后一期现金流照常汇总
func Aggregate(period int, date time.Time, flows []model.CashFlowPeriod, states []*projector.AssetState, in StatsInput) PoolPeriod {
	pp := PoolPeriod{
		Period:             period,
		Date:               date,
		BeginningPar:       decimal.Zero,
		EndingPar:          decimal.Zero,
		InterestProceeds:   decimal.Zero,
		PrincipalProceeds:  decimal.Zero,
		ScheduledPrincipal: decimal.Zero,
		Prepayments:        decimal.Zero,
		Defaults:           decimal.Zero,
		Recoveries:         decimal.Zero,
		Losses:             decimal.Zero,
		SaleProceeds:       decimal.Zero,
		PIKInterest:        decimal.Zero,
		PendingRecoveries:  decimal.Zero,
	}

	for i := range flows {
		cf := &flows[i]
		pp.BeginningPar = pp.BeginningPar.Add(cf.BeginningBalance)
		pp.EndingPar = pp.EndingPar.Add(cf.EndingBalance)
		pp.InterestProceeds = pp.InterestProceeds.Add(cf.InterestCollected)
		pp.PrincipalProceeds = pp.PrincipalProceeds.Add(cf.PrincipalProceeds())
		pp.ScheduledPrincipal = pp.ScheduledPrincipal.Add(cf.ScheduledPrincipal)
		pp.Prepayments = pp.Prepayments.Add(cf.Prepayment)
		pp.Defaults = pp.Defaults.Add(cf.DefaultAmount)
		pp.Recoveries = pp.Recoveries.Add(cf.RecoveryAmount)
		pp.Losses = pp.Losses.Add(cf.LossAmount)
		pp.SaleProceeds = pp.SaleProceeds.Add(cf.SaleProceeds)
		pp.PIKInterest = pp.PIKInterest.Add(cf.PIKInterest)
		pp.Warnings = append(pp.Warnings, cf.Warnings...)
	}

	defaultedPar := decimal.Zero
	for _, s := range states {
		pp.PendingRecoveries = pp.PendingRecoveries.Add(s.PendingRecoveries())
		defaultedPar = defaultedPar.Add(s.DefaultedPar())
		if s.Active() {
			pp.ActiveAssets++
		} else {
			pp.InactiveAssets++
		}
	}

	in.DefaultedPar = defaultedPar
	in.ExpectedRecovery = pp.PendingRecoveries
	stats, warnings := ComputeStats(Holdings(states), in)
	for _, w := range warnings {
		pp.Warnings = append(pp.Warnings, w.WithPeriod(period))
	}
	pp.Stats = stats
	return pp
}
