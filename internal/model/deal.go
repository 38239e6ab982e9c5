package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tranche 负债层级（票据）
type Tranche struct {
	ID              string          `json:"id" yaml:"id"`
	Rank            int             `json:"rank" yaml:"rank"` // 1 为最优先，数值相同为同顺位
	OriginalBalance decimal.Decimal `json:"original_balance" yaml:"original_balance"`
	Balance         decimal.Decimal `json:"balance" yaml:"balance"`

	CouponType CouponType `json:"coupon_type" yaml:"coupon_type"`
	Coupon     float64    `json:"coupon,omitempty" yaml:"coupon"`
	Spread     float64    `json:"spread,omitempty" yaml:"spread"`
	Index      string     `json:"index,omitempty" yaml:"index"`
	Floor      float64    `json:"floor,omitempty" yaml:"floor"`
	DayCount   string     `json:"day_count,omitempty" yaml:"day_count"`

	PIKEligible      bool            `json:"pik_eligible,omitempty" yaml:"pik_eligible"`
	Subordinated     bool            `json:"subordinated,omitempty" yaml:"subordinated"` // 次级票据（权益）
	DeferredInterest decimal.Decimal `json:"deferred_interest" yaml:"deferred_interest"`
}

// IsRated 是否为有评级的付息票据
func (t *Tranche) IsRated() bool {
	return !t.Subordinated
}

// FeeSchedule 费用安排
type FeeSchedule struct {
	TrusteeFee       decimal.Decimal `json:"trustee_fee" yaml:"trustee_fee"`     // 每期固定费用
	AdminFeeBps      float64         `json:"admin_fee_bps" yaml:"admin_fee_bps"` // 年化，按抵押池面值
	AdminFeeCap      decimal.Decimal `json:"admin_fee_cap" yaml:"admin_fee_cap"` // 每期上限，0 表示不设上限
	SeniorMgmtFeeBps float64         `json:"senior_mgmt_fee_bps" yaml:"senior_mgmt_fee_bps"`
	SubMgmtFeeBps    float64         `json:"sub_mgmt_fee_bps" yaml:"sub_mgmt_fee_bps"`
	DayCount         string          `json:"day_count,omitempty" yaml:"day_count"`
}

// TriggerKind 覆盖测试类型
type TriggerKind string

const (
	TriggerOC TriggerKind = "OC"
	TriggerIC TriggerKind = "IC"
)

// TriggerDef 覆盖测试定义
type TriggerDef struct {
	ID        string      `json:"id" yaml:"id"`
	Kind      TriggerKind `json:"kind" yaml:"kind"`
	ClassRank int         `json:"class_rank" yaml:"class_rank"` // 分母包含该顺位及更优先的票据
	Threshold float64     `json:"threshold" yaml:"threshold"`   // 比率下限，如 1.05
	Diversion bool        `json:"diversion,omitempty" yaml:"diversion"`
}

// WaterfallConfig 支付顺序模板选择与参数
type WaterfallConfig struct {
	Variant string `json:"variant" yaml:"variant"` // CLO1 / CLO2 / CLO3
	Version string `json:"version,omitempty" yaml:"version"`

	EquityClawback      *bool `json:"equity_clawback,omitempty" yaml:"equity_clawback"`
	TurboPrincipal      *bool `json:"turbo_principal,omitempty" yaml:"turbo_principal"`
	FeeDeferral         *bool `json:"fee_deferral,omitempty" yaml:"fee_deferral"`
	DistributionStopper *bool `json:"distribution_stopper,omitempty" yaml:"distribution_stopper"`

	ClawbackHurdle     float64  `json:"clawback_hurdle,omitempty" yaml:"clawback_hurdle"`
	ClawbackPct        float64  `json:"clawback_pct,omitempty" yaml:"clawback_pct"`
	TurboTrigger       string   `json:"turbo_trigger,omitempty" yaml:"turbo_trigger"`
	TurboPct           float64  `json:"turbo_pct,omitempty" yaml:"turbo_pct"`
	FeeDeferralTrigger string   `json:"fee_deferral_trigger,omitempty" yaml:"fee_deferral_trigger"`
	FeeSharePct        float64  `json:"fee_share_pct,omitempty" yaml:"fee_share_pct"`
	StopperTriggers    []string `json:"stopper_triggers,omitempty" yaml:"stopper_triggers"`

	InterestSteps  []StepConfig `json:"interest_steps,omitempty" yaml:"interest_steps"`
	PrincipalSteps []StepConfig `json:"principal_steps,omitempty" yaml:"principal_steps"`
}

// StepConfig 交易自定义的支付步骤
type StepConfig struct {
	Kind   string `json:"kind" yaml:"kind"`
	Rank   int    `json:"rank,omitempty" yaml:"rank"`
	Junior bool   `json:"junior,omitempty" yaml:"junior"`
}

// ThresholdRecord 集中度测试阈值记录，按生效日期版本化
type ThresholdRecord struct {
	TestNumber int        `json:"test_number" yaml:"test_number"`
	Value      float64    `json:"value" yaml:"value"`
	Effective  time.Time  `json:"effective" yaml:"effective"`
	Expiry     *time.Time `json:"expiry,omitempty" yaml:"expiry"`
	Version    int        `json:"version" yaml:"version"`
	Enabled    bool       `json:"enabled" yaml:"enabled"`
}

// ConcentrationConfig 集中度测试配置
type ConcentrationConfig struct {
	Thresholds      []ThresholdRecord `json:"thresholds" yaml:"thresholds"`
	DomesticCountry string            `json:"domestic_country,omitempty" yaml:"domestic_country"`
	EveryPeriod     bool              `json:"every_period,omitempty" yaml:"every_period"`
}

// IncentiveConfig 激励费参数
type IncentiveConfig struct {
	HurdleRate       float64         `json:"hurdle_rate" yaml:"hurdle_rate"`
	FeeRate          float64         `json:"fee_rate" yaml:"fee_rate"`
	EquityInvestment decimal.Decimal `json:"equity_investment" yaml:"equity_investment"` // 次级票据认购金额
}

// ReinvestmentConfig 再投资期内购入资产的模板
type ReinvestmentConfig struct {
	End          time.Time `json:"end" yaml:"end"`
	Spread       float64   `json:"spread" yaml:"spread"`
	Floor        float64   `json:"floor" yaml:"floor"`
	TermYears    int       `json:"term_years" yaml:"term_years"`
	MoodysRating string    `json:"moodys_rating" yaml:"moodys_rating"`
	Industry     string    `json:"industry" yaml:"industry"`
	Country      string    `json:"country" yaml:"country"`
}

// CallConfig 赎回（清算）安排
type CallConfig struct {
	Date  *time.Time `json:"date,omitempty" yaml:"date"`
	Price float64    `json:"price,omitempty" yaml:"price"` // 抵押资产出售价格，1.0 = 面值
}

// OCConfig 超额抵押分子调整参数
type OCConfig struct {
	CCCLimit float64 `json:"ccc_limit" yaml:"ccc_limit"` // 超过该比例的 CCC 资产按市价计入
	CCCPrice float64 `json:"ccc_price" yaml:"ccc_price"` // 无市价时使用的默认价格
}

// Deal 单笔 CLO 交易的配置快照
type Deal struct {
	ID               string    `json:"id" yaml:"id"`
	Name             string    `json:"name" yaml:"name"`
	ClosingDate      time.Time `json:"closing_date" yaml:"closing_date"`
	PaymentFrequency int       `json:"payment_frequency" yaml:"payment_frequency"` // 每年付息次数
	DayCount         string    `json:"day_count,omitempty" yaml:"day_count"`
	IndexResetMode   string    `json:"index_reset_mode,omitempty" yaml:"index_reset_mode"` // SPOT / FORWARD

	Tranches      []Tranche           `json:"tranches" yaml:"tranches"`
	Fees          FeeSchedule         `json:"fees" yaml:"fees"`
	Triggers      []TriggerDef        `json:"triggers" yaml:"triggers"`
	Waterfall     WaterfallConfig     `json:"waterfall" yaml:"waterfall"`
	Concentration ConcentrationConfig `json:"concentration" yaml:"concentration"`
	Incentive     IncentiveConfig     `json:"incentive" yaml:"incentive"`
	Reinvestment  ReinvestmentConfig  `json:"reinvestment" yaml:"reinvestment"`
	Call          CallConfig          `json:"call" yaml:"call"`
	OC            OCConfig            `json:"oc" yaml:"oc"`

	BeginningCash decimal.Decimal `json:"beginning_cash" yaml:"beginning_cash"`
}

// CloneTranches 深拷贝负债层级，运行期间只修改副本
func (d *Deal) CloneTranches() []Tranche {
	out := make([]Tranche, len(d.Tranches))
	copy(out, d.Tranches)
	return out
}

// EquityInvestment 次级票据投资额，未配置时取次级票据原始面值之和
func (d *Deal) EquityInvestment() decimal.Decimal {
	if d.Incentive.EquityInvestment.IsPositive() {
		return d.Incentive.EquityInvestment
	}
	total := decimal.Zero
	for _, t := range d.Tranches {
		if t.Subordinated {
			total = total.Add(t.OriginalBalance)
		}
	}
	return Money(total)
}
