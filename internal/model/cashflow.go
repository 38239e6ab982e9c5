package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CashFlowPeriod 单笔资产单期现金流，只追加不修改
type CashFlowPeriod struct {
	AssetID     string    `json:"asset_id"`
	Period      int       `json:"period"`
	StartDate   time.Time `json:"start_date"`
	PaymentDate time.Time `json:"payment_date"`

	BeginningBalance   decimal.Decimal `json:"beginning_balance"`
	InterestCollected  decimal.Decimal `json:"interest_collected"`
	PIKInterest        decimal.Decimal `json:"pik_interest"`
	ScheduledPrincipal decimal.Decimal `json:"scheduled_principal"`
	Prepayment         decimal.Decimal `json:"prepayment"`
	DefaultAmount      decimal.Decimal `json:"default_amount"`
	RecoveryAmount     decimal.Decimal `json:"recovery_amount"`
	LossAmount         decimal.Decimal `json:"loss_amount"`
	SaleProceeds       decimal.Decimal `json:"sale_proceeds"`
	EndingBalance      decimal.Decimal `json:"ending_balance"`

	CouponRate float64     `json:"coupon_rate"`
	Status     AssetStatus `json:"status"`
	Warnings   []Warning   `json:"warnings,omitempty"`
}

// PrincipalProceeds 本期本金类回收：计划本金+提前还款+违约回收+出售所得
func (c *CashFlowPeriod) PrincipalProceeds() decimal.Decimal {
	return c.ScheduledPrincipal.Add(c.Prepayment).Add(c.RecoveryAmount).Add(c.SaleProceeds)
}

// Vector 按期间索引的年化比率向量（第1期对应下标0）
type Vector []float64

// AssumptionSet 一组现金流假设
type AssumptionSet struct {
	CDR         Vector `json:"cdr" yaml:"cdr"`                   // 年化违约率
	CPR         Vector `json:"cpr" yaml:"cpr"`                   // 年化提前还款率
	Recovery    Vector `json:"recovery" yaml:"recovery"`         // 回收率
	Severity    Vector `json:"severity" yaml:"severity"`         // 损失率，仅在未给出回收率时使用
	RecoveryLag int    `json:"recovery_lag" yaml:"recovery_lag"` // 回收滞后期数
}

// Assumptions 交易的全部假设：默认集 + 按名称的覆盖集
type Assumptions struct {
	Default AssumptionSet            `json:"default" yaml:"default"`
	Sets    map[string]AssumptionSet `json:"sets,omitempty" yaml:"sets"`
}

// For 返回资产适用的假设集
func (a *Assumptions) For(asset *Asset) AssumptionSet {
	if asset.AssumptionSet != "" {
		if set, ok := a.Sets[asset.AssumptionSet]; ok {
			return set
		}
	}
	return a.Default
}

// CurvePoint 收益率曲线节点：期限 -> 即期利率
type CurvePoint struct {
	Tenor string  `json:"tenor" yaml:"tenor"`
	Rate  float64 `json:"rate" yaml:"rate"`
}
