package waterfall

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/life2you_mini/cloengine/internal/model"
	"github.com/life2you_mini/cloengine/internal/trigger"
)

// 资金来源
const (
	SourceInterest  = "INTEREST"
	SourcePrincipal = "PRINCIPAL"
	SourceReserve   = "RESERVE"
)

// 未足额支付或特殊处理的记录方式
const (
	TreatPIK          = "PIK"           // 资本化为票据本金
	TreatDeferred     = "DEFERRED"      // 递延利息
	TreatFeeDeferred  = "FEE_DEFERRED"  // 递延费用
	TreatShortfall    = "SHORTFALL"     // 本期未足额，转入本金分配继续支付
	TreatBlocked      = "BLOCKED"       // 分配阻断
	TreatWithheld     = "WITHHELD"      // 回拨准备金留存
	TreatRetained     = "RETAINED"      // 期末留存现金
	TreatReleased     = "RELEASED"      // 准备金释放
	TreatFeeShare     = "FEE_SHARE"     // 管理费分成
	TreatIncentiveFee = "INCENTIVE_FEE" // 激励费
)

// Line 单条支付记录
type Line struct {
	Seq       int             `json:"seq"`
	Source    string          `json:"source"`
	Step      StepKind        `json:"step"`
	Payee     string          `json:"payee"`
	Rank      int             `json:"rank,omitempty"`
	Due       decimal.Decimal `json:"due"`
	Paid      decimal.Decimal `json:"paid"`
	Retained  decimal.Decimal `json:"retained"`
	Shortfall decimal.Decimal `json:"shortfall"`
	Treatment string          `json:"treatment,omitempty"`
	Note      string          `json:"note,omitempty"`
}

// Execution 单期支付执行记录，生成后不再修改
type Execution struct {
	Period  int       `json:"period"`
	Date    time.Time `json:"date"`
	Variant string    `json:"variant"`

	InterestAvailable  decimal.Decimal `json:"interest_available"`
	PrincipalAvailable decimal.Decimal `json:"principal_available"`
	BeginningCash      decimal.Decimal `json:"beginning_cash"`

	Lines []Line `json:"lines"`

	TotalPaid          decimal.Decimal `json:"total_paid"`
	EndingCash         decimal.Decimal `json:"ending_cash"`
	EquityDistribution decimal.Decimal `json:"equity_distribution"`
	IncentiveFee       decimal.Decimal `json:"incentive_fee"`
	Reinvested         decimal.Decimal `json:"reinvested"`

	PIKCapitalized map[string]decimal.Decimal `json:"pik_capitalized,omitempty"`
	PrincipalPaid  map[string]decimal.Decimal `json:"principal_paid,omitempty"`

	StopperActive     bool `json:"stopper_active"`
	TurboActive       bool `json:"turbo_active"`
	FeeDeferralActive bool `json:"fee_deferral_active"`
	ClawbackActive    bool `json:"clawback_active"`

	Triggers []trigger.Evaluation `json:"triggers"`
	Warnings []model.Warning      `json:"warnings,omitempty"`
}

// Available 本期可用资金合计
func (e *Execution) Available() decimal.Decimal {
	return e.InterestAvailable.Add(e.PrincipalAvailable).Add(e.BeginningCash)
}

// Discrepancy 资金守恒差额：可用资金 - (支付合计 + 期末现金)
func (e *Execution) Discrepancy() decimal.Decimal {
	return e.Available().Sub(e.TotalPaid.Add(e.EndingCash))
}

// LinesFor 某收款方的全部支付记录
func (e *Execution) LinesFor(payee string) []Line {
	var out []Line
	for _, l := range e.Lines {
		if l.Payee == payee {
			out = append(out, l)
		}
	}
	return out
}

// PaidTo 某收款方本期实收合计
func (e *Execution) PaidTo(payee string) decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.LinesFor(payee) {
		total = total.Add(l.Paid)
	}
	return total
}
