package engine

import (
	"fmt"
	"strings"

	"github.com/life2you_mini/cloengine/internal/concentration"
	"github.com/life2you_mini/cloengine/internal/curve"
	"github.com/life2you_mini/cloengine/internal/dates"
	"github.com/life2you_mini/cloengine/internal/incentive"
	"github.com/life2you_mini/cloengine/internal/model"
	"github.com/life2you_mini/cloengine/internal/waterfall"
)

// prepared 校验通过的运行配置
type prepared struct {
	curve   *curve.Curve
	variant waterfall.Variant
	conc    *concentration.Engine // 未配置集中度测试时为 nil
}

// validate 在模拟第一期之前检查全部配置，任何问题都返回配置错误
func validate(in RunInput) (*prepared, error) {
	deal := in.Deal
	if deal == nil {
		return nil, model.NewConfigError("", "deal", "缺少交易配置")
	}
	id := deal.ID
	if strings.TrimSpace(id) == "" {
		return nil, model.NewConfigError("", "deal.id", "交易ID为空")
	}
	if in.Periods <= 0 {
		return nil, model.NewConfigError(id, "periods", "模拟期数 %d 必须为正", in.Periods)
	}
	if in.AnalysisDate.IsZero() {
		return nil, model.NewConfigError(id, "analysis_date", "未指定分析日")
	}
	if !dates.ValidFrequency(deal.PaymentFrequency) {
		return nil, model.NewConfigError(id, "deal.payment_frequency", "付息频率 %d 无效", deal.PaymentFrequency)
	}
	switch strings.ToUpper(deal.IndexResetMode) {
	case "", curve.ResetSpot, curve.ResetForward:
	default:
		return nil, model.NewConfigError(id, "deal.index_reset_mode", "未知的利率重置方式 %q", deal.IndexResetMode)
	}

	if err := validateTranches(deal); err != nil {
		return nil, err
	}
	if err := validateTriggers(deal); err != nil {
		return nil, err
	}
	if err := validateWaterfall(deal); err != nil {
		return nil, err
	}
	if err := validateAssets(id, in.Assets); err != nil {
		return nil, err
	}
	if err := incentive.Validate(id, deal.Incentive); err != nil {
		return nil, err
	}
	if deal.Call.Price < 0 {
		return nil, model.NewConfigError(id, "call.price", "赎回价格不能为负")
	}

	variant, err := waterfall.VariantFor(deal)
	if err != nil {
		return nil, err
	}
	c, err := curve.New(in.AnalysisDate, in.Curve)
	if err != nil {
		return nil, model.NewConfigError(id, "curve", "%v", err)
	}

	p := &prepared{curve: c, variant: variant}
	if len(deal.Concentration.Thresholds) > 0 {
		conc, err := concentration.New(id, deal.Concentration)
		if err != nil {
			return nil, err
		}
		if err := conc.Validate(in.AnalysisDate); err != nil {
			return nil, err
		}
		if len(conc.Tests()) > 0 {
			p.conc = conc
		}
	}
	return p, nil
}

func validateTranches(deal *model.Deal) error {
	if len(deal.Tranches) == 0 {
		return model.NewConfigError(deal.ID, "deal.tranches", "没有票据")
	}
	seen := make(map[string]bool)
	rated := 0
	for i, t := range deal.Tranches {
		field := fmt.Sprintf("deal.tranches[%d]", i)
		if t.ID == "" {
			return model.NewConfigError(deal.ID, field, "票据ID为空")
		}
		if seen[t.ID] {
			return model.NewConfigError(deal.ID, field, "票据ID %s 重复", t.ID)
		}
		seen[t.ID] = true
		if t.OriginalBalance.IsNegative() || t.Balance.IsNegative() {
			return model.NewConfigError(deal.ID, field, "票据 %s 余额为负", t.ID)
		}
		if t.IsRated() {
			rated++
			if t.Rank < 1 {
				return model.NewConfigError(deal.ID, field, "票据 %s 顺位 %d 无效", t.ID, t.Rank)
			}
			if t.CouponType == model.CouponFloating && t.Index != "" {
				if _, err := curve.TenorMonths(t.Index); err != nil {
					return model.NewConfigError(deal.ID, field, "票据 %s 基准利率期限无效: %v", t.ID, err)
				}
			}
		}
	}
	if rated == 0 {
		return model.NewConfigError(deal.ID, "deal.tranches", "没有付息票据")
	}
	return nil
}

func validateTriggers(deal *model.Deal) error {
	ranks := make(map[int]bool)
	for _, r := range waterfall.Ranks(deal.Tranches) {
		ranks[r] = true
	}
	seen := make(map[string]bool)
	for i, def := range deal.Triggers {
		field := fmt.Sprintf("deal.triggers[%d]", i)
		if def.ID == "" || seen[def.ID] {
			return model.NewConfigError(deal.ID, field, "触发器ID %q 为空或重复", def.ID)
		}
		seen[def.ID] = true
		if def.Kind != model.TriggerOC && def.Kind != model.TriggerIC {
			return model.NewConfigError(deal.ID, field, "未知的触发器类型 %q", def.Kind)
		}
		if !ranks[def.ClassRank] {
			return model.NewConfigError(deal.ID, field, "触发器 %s 引用了不存在的票据顺位 %d", def.ID, def.ClassRank)
		}
		if def.Threshold <= 0 {
			return model.NewConfigError(deal.ID, field, "触发器 %s 阈值必须为正", def.ID)
		}
	}

	cfg := deal.Waterfall
	refs := append([]string{cfg.TurboTrigger, cfg.FeeDeferralTrigger}, cfg.StopperTriggers...)
	for _, ref := range refs {
		if ref != "" && !seen[ref] {
			return model.NewConfigError(deal.ID, "waterfall", "引用了未定义的触发器 %q", ref)
		}
	}
	return nil
}

func validateWaterfall(deal *model.Deal) error {
	cfg := deal.Waterfall
	pcts := []struct {
		field string
		v     float64
	}{
		{"waterfall.clawback_pct", cfg.ClawbackPct},
		{"waterfall.turbo_pct", cfg.TurboPct},
		{"waterfall.fee_share_pct", cfg.FeeSharePct},
		{"waterfall.clawback_hurdle", cfg.ClawbackHurdle},
	}
	for _, p := range pcts {
		if p.v < 0 || p.v > 1 {
			return model.NewConfigError(deal.ID, p.field, "比例 %v 超出 [0,1]", p.v)
		}
	}
	if deal.Reinvestment.TermYears < 0 {
		return model.NewConfigError(deal.ID, "reinvestment.term_years", "再投资期限不能为负")
	}
	return nil
}

func validateAssets(dealID string, assets []model.Asset) error {
	seen := make(map[string]bool, len(assets))
	for i, a := range assets {
		field := fmt.Sprintf("assets[%d]", i)
		if a.ID == "" {
			return model.NewConfigError(dealID, field, "资产ID为空")
		}
		if seen[a.ID] {
			return model.NewConfigError(dealID, field, "资产ID %s 重复", a.ID)
		}
		seen[a.ID] = true
		if a.Par.IsNegative() {
			return model.NewConfigError(dealID, field, "资产 %s 面值为负", a.ID)
		}
		if a.Maturity.IsZero() {
			return model.NewConfigError(dealID, field, "资产 %s 缺少到期日", a.ID)
		}
	}
	return nil
}
