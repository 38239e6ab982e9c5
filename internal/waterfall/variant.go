package waterfall

import (
	"sort"
	"strings"

	"github.com/life2you_mini/cloengine/internal/model"
)

// StepKind 支付步骤类型
type StepKind string

const (
	StepSeniorExpenses      StepKind = "SENIOR_EXPENSES"
	StepSeniorMgmtFee       StepKind = "SENIOR_MGMT_FEE"
	StepTrancheInterest     StepKind = "TRANCHE_INTEREST"
	StepCoverageCure        StepKind = "COVERAGE_CURE"
	StepDeferredInterest    StepKind = "DEFERRED_INTEREST"
	StepSubMgmtFee          StepKind = "SUB_MGMT_FEE"
	StepDeferredFees        StepKind = "DEFERRED_FEES"
	StepTurboPrincipal      StepKind = "TURBO_PRINCIPAL"
	StepInterestShortfall   StepKind = "INTEREST_SHORTFALL"
	StepReinvestment        StepKind = "REINVESTMENT"
	StepSequentialPrincipal StepKind = "SEQUENTIAL_PRINCIPAL"
	StepResidual            StepKind = "RESIDUAL"
)

var knownSteps = map[StepKind]bool{
	StepSeniorExpenses:      true,
	StepSeniorMgmtFee:       true,
	StepTrancheInterest:     true,
	StepCoverageCure:        true,
	StepDeferredInterest:    true,
	StepSubMgmtFee:          true,
	StepDeferredFees:        true,
	StepTurboPrincipal:      true,
	StepInterestShortfall:   true,
	StepReinvestment:        true,
	StepSequentialPrincipal: true,
	StepResidual:            true,
}

// rankedStep 需要指定票据顺位的步骤
func rankedStep(k StepKind) bool {
	return k == StepTrancheInterest || k == StepCoverageCure || k == StepDeferredInterest
}

// Step 支付步骤描述
type Step struct {
	Kind   StepKind `json:"kind"`
	Rank   int      `json:"rank,omitempty"`
	Junior bool     `json:"junior,omitempty"` // 分配阻断生效时跳过
}

// 内置模板代际
const (
	GenerationCLO1 = "CLO1"
	GenerationCLO2 = "CLO2"
	GenerationCLO3 = "CLO3"
)

// Variant 支付顺序模板：有序步骤 + 能力开关
type Variant struct {
	Name       string `json:"name"`
	Generation string `json:"generation"`
	Version    string `json:"version,omitempty"`

	Interest  []Step `json:"interest"`
	Principal []Step `json:"principal"`

	EquityClawback      bool `json:"equity_clawback"`
	TurboPrincipal      bool `json:"turbo_principal"`
	FeeDeferral         bool `json:"fee_deferral"`
	DistributionStopper bool `json:"distribution_stopper"`
}

// generation 各代模板的参数组合
type generation struct {
	cureAfterAllInterest bool
	clawback             bool
	turbo                bool
	feeDeferral          bool
	stopper              bool
}

var generations = map[string]generation{
	GenerationCLO1: {cureAfterAllInterest: true},
	GenerationCLO2: {turbo: true, feeDeferral: true},
	GenerationCLO3: {clawback: true, turbo: true, feeDeferral: true, stopper: true},
}

// Ranks 付息票据的顺位（去重升序）
func Ranks(tranches []model.Tranche) []int {
	seen := make(map[int]bool)
	var ranks []int
	for _, t := range tranches {
		if t.IsRated() && !seen[t.Rank] {
			seen[t.Rank] = true
			ranks = append(ranks, t.Rank)
		}
	}
	sort.Ints(ranks)
	return ranks
}

// VariantFor 根据交易配置构建支付顺序模板，未知模板或非法步骤返回配置错误
func VariantFor(deal *model.Deal) (Variant, error) {
	cfg := deal.Waterfall
	name := strings.ToUpper(strings.TrimSpace(cfg.Variant))
	if name == "" {
		return Variant{}, model.NewConfigError(deal.ID, "waterfall.variant", "未指定支付顺序模板")
	}
	gen, ok := generations[name]
	if !ok {
		return Variant{}, model.NewConfigError(deal.ID, "waterfall.variant", "未知的支付顺序模板 %q", cfg.Variant)
	}

	ranks := Ranks(deal.Tranches)
	v := Variant{
		Name:                name,
		Generation:          name,
		Version:             cfg.Version,
		Interest:            interestSteps(ranks, gen.cureAfterAllInterest),
		Principal:           principalSteps(ranks),
		EquityClawback:      override(cfg.EquityClawback, gen.clawback),
		TurboPrincipal:      override(cfg.TurboPrincipal, gen.turbo),
		FeeDeferral:         override(cfg.FeeDeferral, gen.feeDeferral),
		DistributionStopper: override(cfg.DistributionStopper, gen.stopper),
	}

	if len(cfg.InterestSteps) > 0 {
		steps, err := customSteps(deal.ID, "waterfall.interest_steps", cfg.InterestSteps, ranks)
		if err != nil {
			return Variant{}, err
		}
		v.Interest = steps
		v.Name = name + "-custom"
	}
	if len(cfg.PrincipalSteps) > 0 {
		steps, err := customSteps(deal.ID, "waterfall.principal_steps", cfg.PrincipalSteps, ranks)
		if err != nil {
			return Variant{}, err
		}
		v.Principal = steps
		v.Name = name + "-custom"
	}
	return v, nil
}

func override(flag *bool, def bool) bool {
	if flag != nil {
		return *flag
	}
	return def
}

// interestSteps 利息分配顺序：费用 -> 各级利息与覆盖测试补救 -> 次级管理费 -> 加速偿还 -> 剩余收益
func interestSteps(ranks []int, cureAfterAllInterest bool) []Step {
	steps := []Step{
		{Kind: StepSeniorExpenses},
		{Kind: StepSeniorMgmtFee},
	}
	if cureAfterAllInterest {
		for _, r := range ranks {
			steps = append(steps, Step{Kind: StepTrancheInterest, Rank: r}, Step{Kind: StepDeferredInterest, Rank: r})
		}
		for _, r := range ranks {
			steps = append(steps, Step{Kind: StepCoverageCure, Rank: r})
		}
	} else {
		for _, r := range ranks {
			steps = append(steps,
				Step{Kind: StepTrancheInterest, Rank: r},
				Step{Kind: StepDeferredInterest, Rank: r},
				Step{Kind: StepCoverageCure, Rank: r},
			)
		}
	}
	return append(steps,
		Step{Kind: StepSubMgmtFee, Junior: true},
		Step{Kind: StepDeferredFees, Junior: true},
		Step{Kind: StepTurboPrincipal},
		Step{Kind: StepResidual, Junior: true},
	)
}

// principalSteps 本金分配顺序：利息缺口 -> 覆盖测试补救 -> 再投资 -> 顺序偿还 -> 剩余收益
func principalSteps(ranks []int) []Step {
	steps := []Step{{Kind: StepInterestShortfall}}
	for _, r := range ranks {
		steps = append(steps, Step{Kind: StepCoverageCure, Rank: r})
	}
	return append(steps,
		Step{Kind: StepReinvestment},
		Step{Kind: StepSequentialPrincipal},
		Step{Kind: StepResidual, Junior: true},
	)
}

func customSteps(dealID, field string, cfgs []model.StepConfig, ranks []int) ([]Step, error) {
	valid := make(map[int]bool, len(ranks))
	for _, r := range ranks {
		valid[r] = true
	}
	steps := make([]Step, 0, len(cfgs))
	for i, c := range cfgs {
		kind := StepKind(strings.ToUpper(strings.TrimSpace(c.Kind)))
		if !knownSteps[kind] {
			return nil, model.NewConfigError(dealID, field, "第 %d 步类型 %q 未知", i+1, c.Kind)
		}
		if rankedStep(kind) && !valid[c.Rank] {
			return nil, model.NewConfigError(dealID, field, "第 %d 步 %s 引用了不存在的票据顺位 %d", i+1, kind, c.Rank)
		}
		steps = append(steps, Step{Kind: kind, Rank: c.Rank, Junior: c.Junior})
	}
	return steps, nil
}
