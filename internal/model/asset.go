package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CouponType 票息类型
type CouponType string

const (
	CouponFixed    CouponType = "FIXED"
	CouponFloating CouponType = "FLOATING"
)

// Amortization 摊还方式
type Amortization string

const (
	AmortBullet Amortization = "BULLET" // 到期一次还本
	AmortLevel  Amortization = "LEVEL"  // 按付息日等额还本
)

// AssetStatus 资产状态
type AssetStatus string

const (
	StatusPerforming AssetStatus = "PERFORMING"
	StatusDefaulted  AssetStatus = "DEFAULTED"
	StatusMatured    AssetStatus = "MATURED"
	StatusCalled     AssetStatus = "CALLED"
)

// LienType 受偿顺序
type LienType string

const (
	LienSeniorSecured LienType = "SENIOR_SECURED"
	LienSecondLien    LienType = "SECOND_LIEN"
	LienUnsecured     LienType = "UNSECURED"
	LienBond          LienType = "BOND"
)

// Asset 抵押池中的单笔资产（贷款或债券）
type Asset struct {
	ID      string          `json:"id" yaml:"id"`
	Obligor string          `json:"obligor" yaml:"obligor"`
	Issuer  string          `json:"issuer,omitempty" yaml:"issuer"`
	Par     decimal.Decimal `json:"par" yaml:"par"`

	CouponType CouponType `json:"coupon_type" yaml:"coupon_type"`
	Coupon     float64    `json:"coupon,omitempty" yaml:"coupon"` // 固定利率，小数
	Spread     float64    `json:"spread,omitempty" yaml:"spread"` // 浮动利差，小数
	Index      string     `json:"index,omitempty" yaml:"index"`   // 基准利率期限，如 3M
	Floor      float64    `json:"floor,omitempty" yaml:"floor"`   // 基准利率下限

	Maturity         time.Time    `json:"maturity" yaml:"maturity"`
	DayCount         string       `json:"day_count" yaml:"day_count"`
	PaymentFrequency int          `json:"payment_frequency" yaml:"payment_frequency"` // 每年付息次数
	Amortization     Amortization `json:"amortization,omitempty" yaml:"amortization"`

	MoodysRating string `json:"moodys_rating,omitempty" yaml:"moodys_rating"`
	SPRating     string `json:"sp_rating,omitempty" yaml:"sp_rating"`
	FitchRating  string `json:"fitch_rating,omitempty" yaml:"fitch_rating"`

	Industry string   `json:"industry,omitempty" yaml:"industry"`
	Country  string   `json:"country,omitempty" yaml:"country"`
	Lien     LienType `json:"lien,omitempty" yaml:"lien"`

	CovLite       bool `json:"cov_lite,omitempty" yaml:"cov_lite"`
	DIP           bool `json:"dip,omitempty" yaml:"dip"`
	CurrentPay    bool `json:"current_pay,omitempty" yaml:"current_pay"`
	Participation bool `json:"participation,omitempty" yaml:"participation"`
	Revolver      bool `json:"revolver,omitempty" yaml:"revolver"`
	PIK           bool `json:"pik,omitempty" yaml:"pik"`
	Defaulted     bool `json:"defaulted,omitempty" yaml:"defaulted"`

	MarketPrice   float64 `json:"market_price,omitempty" yaml:"market_price"`     // 百分比价格，1.0 = 面值
	RecoveryRate  float64 `json:"recovery_rate,omitempty" yaml:"recovery_rate"`   // 资产级回收率，0 表示使用假设
	AssumptionSet string  `json:"assumption_set,omitempty" yaml:"assumption_set"` // 使用的假设集名称
}

// IsFloating 是否浮动利率资产
func (a *Asset) IsFloating() bool {
	return a.CouponType == CouponFloating
}

// IsSeniorSecured 是否优先有担保
func (a *Asset) IsSeniorSecured() bool {
	return a.Lien == "" || a.Lien == LienSeniorSecured
}
