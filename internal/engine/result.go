package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/life2you_mini/cloengine/internal/concentration"
	"github.com/life2you_mini/cloengine/internal/incentive"
	"github.com/life2you_mini/cloengine/internal/model"
	"github.com/life2you_mini/cloengine/internal/pool"
	"github.com/life2you_mini/cloengine/internal/trigger"
	"github.com/life2you_mini/cloengine/internal/waterfall"
)

// 提前结束原因
const (
	StopCalled        = "CALLED"
	StopPoolExhausted = "POOL_EXHAUSTED"
)

// PeriodResult 单期输出
type PeriodResult struct {
	Period    int       `json:"period"`
	StartDate time.Time `json:"start_date"`
	PayDate   time.Time `json:"pay_date"`
	Final     bool      `json:"final"`

	Pool          pool.PoolPeriod        `json:"pool"`
	Dues          waterfall.Dues         `json:"dues"`
	Execution     *waterfall.Execution   `json:"execution"`
	Triggers      []trigger.Evaluation   `json:"triggers"`
	Incentive     incentive.State        `json:"incentive"`
	Concentration []concentration.Result `json:"concentration,omitempty"`

	TrancheBalances  map[string]decimal.Decimal `json:"tranche_balances"`
	DeferredInterest map[string]decimal.Decimal `json:"deferred_interest"`
	DeferredFees     decimal.Decimal            `json:"deferred_fees"`

	Warnings []model.Warning `json:"warnings,omitempty"`
}

// RunResult 单次运行结果
type RunResult struct {
	RunID        string    `json:"run_id"`
	DealID       string    `json:"deal_id"`
	AnalysisDate time.Time `json:"analysis_date"`
	Variant      string    `json:"variant"`

	// Concentration 分析日原始组合的集中度测试
	Concentration []concentration.Result `json:"concentration,omitempty"`
	Periods       []PeriodResult         `json:"periods"`
	Warnings      []model.Warning        `json:"warnings,omitempty"` // 按代码与对象去重
	Summary       Summary                `json:"summary"`
}

// Summary 全部期间的汇总
type Summary struct {
	PeriodsRun   int    `json:"periods_run"`
	StoppedEarly bool   `json:"stopped_early"`
	StopReason   string `json:"stop_reason,omitempty"`

	InterestProceeds  decimal.Decimal `json:"interest_proceeds"`
	PrincipalProceeds decimal.Decimal `json:"principal_proceeds"`
	Defaults          decimal.Decimal `json:"defaults"`
	Recoveries        decimal.Decimal `json:"recoveries"`
	Losses            decimal.Decimal `json:"losses"`

	SeniorFeesPaid     decimal.Decimal `json:"senior_fees_paid"`
	ManagementFeesPaid decimal.Decimal `json:"management_fees_paid"` // 次级管理费与递延费用
	IncentiveFeesPaid  decimal.Decimal `json:"incentive_fees_paid"`
	EquityDistributed  decimal.Decimal `json:"equity_distributed"`
	Reinvested         decimal.Decimal `json:"reinvested"`

	TrancheInterestPaid   map[string]decimal.Decimal `json:"tranche_interest_paid"`
	TranchePrincipalPaid  map[string]decimal.Decimal `json:"tranche_principal_paid"`
	FinalTrancheBalances  map[string]decimal.Decimal `json:"final_tranche_balances"`
	FinalDeferredInterest map[string]decimal.Decimal `json:"final_deferred_interest"`
	PIKCapitalized        map[string]decimal.Decimal `json:"pik_capitalized"`

	DeferredFees decimal.Decimal `json:"deferred_fees"`
	EndingCash   decimal.Decimal `json:"ending_cash"`
	EquityIRR    *float64        `json:"equity_irr,omitempty"`

	FinalPoolStats        pool.Stats     `json:"final_pool_stats"`
	BreachedPeriods       map[string]int `json:"breached_periods"` // 触发器ID -> 违约期数
	ConcentrationFailures int            `json:"concentration_failures"`
	WarningCount          int            `json:"warning_count"`
}

func newSummary() Summary {
	return Summary{
		InterestProceeds:      decimal.Zero,
		PrincipalProceeds:     decimal.Zero,
		Defaults:              decimal.Zero,
		Recoveries:            decimal.Zero,
		Losses:                decimal.Zero,
		SeniorFeesPaid:        decimal.Zero,
		ManagementFeesPaid:    decimal.Zero,
		IncentiveFeesPaid:     decimal.Zero,
		EquityDistributed:     decimal.Zero,
		Reinvested:            decimal.Zero,
		TrancheInterestPaid:   make(map[string]decimal.Decimal),
		TranchePrincipalPaid:  make(map[string]decimal.Decimal),
		FinalTrancheBalances:  make(map[string]decimal.Decimal),
		FinalDeferredInterest: make(map[string]decimal.Decimal),
		PIKCapitalized:        make(map[string]decimal.Decimal),
		DeferredFees:          decimal.Zero,
		EndingCash:            decimal.Zero,
		BreachedPeriods:       make(map[string]int),
	}
}

// add 累加一期结果
func (s *Summary) add(pr *PeriodResult) {
	s.PeriodsRun++
	s.InterestProceeds = s.InterestProceeds.Add(pr.Pool.InterestProceeds)
	s.PrincipalProceeds = s.PrincipalProceeds.Add(pr.Pool.PrincipalProceeds)
	s.Defaults = s.Defaults.Add(pr.Pool.Defaults)
	s.Recoveries = s.Recoveries.Add(pr.Pool.Recoveries)
	s.Losses = s.Losses.Add(pr.Pool.Losses)
	s.FinalPoolStats = pr.Pool.Stats

	e := pr.Execution
	s.IncentiveFeesPaid = s.IncentiveFeesPaid.Add(e.IncentiveFee)
	s.EquityDistributed = s.EquityDistributed.Add(e.EquityDistribution)
	s.Reinvested = s.Reinvested.Add(e.Reinvested)

	for _, l := range e.Lines {
		switch l.Step {
		case waterfall.StepSeniorExpenses, waterfall.StepSeniorMgmtFee:
			s.SeniorFeesPaid = s.SeniorFeesPaid.Add(l.Paid)
		case waterfall.StepSubMgmtFee, waterfall.StepDeferredFees:
			if l.Treatment != waterfall.TreatFeeShare && l.Treatment != waterfall.TreatIncentiveFee {
				s.ManagementFeesPaid = s.ManagementFeesPaid.Add(l.Paid)
			}
		case waterfall.StepTrancheInterest, waterfall.StepDeferredInterest:
			s.TrancheInterestPaid[l.Payee] = s.TrancheInterestPaid[l.Payee].Add(l.Paid)
		case waterfall.StepInterestShortfall:
			if _, ok := pr.TrancheBalances[l.Payee]; ok {
				s.TrancheInterestPaid[l.Payee] = s.TrancheInterestPaid[l.Payee].Add(l.Paid)
			} else {
				s.SeniorFeesPaid = s.SeniorFeesPaid.Add(l.Paid)
			}
		}
	}
	for id, amt := range e.PrincipalPaid {
		s.TranchePrincipalPaid[id] = s.TranchePrincipalPaid[id].Add(amt)
	}
	for id, amt := range e.PIKCapitalized {
		s.PIKCapitalized[id] = s.PIKCapitalized[id].Add(amt)
	}
	for _, t := range pr.Triggers {
		if t.Breached {
			s.BreachedPeriods[t.ID]++
		}
	}
	s.ConcentrationFailures += len(concentration.Failures(pr.Concentration))

	s.FinalTrancheBalances = pr.TrancheBalances
	s.FinalDeferredInterest = pr.DeferredInterest
	s.DeferredFees = pr.DeferredFees
	s.EndingCash = e.EndingCash
	if pr.Incentive.IRR != nil {
		irr := *pr.Incentive.IRR
		s.EquityIRR = &irr
	}
}
