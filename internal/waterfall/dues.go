package waterfall

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/life2you_mini/cloengine/internal/dates"
	"github.com/life2you_mini/cloengine/internal/model"
)

// defaultFeeDayCount 费用默认计息基准
const defaultFeeDayCount = dates.Act360

// IndexFunc 浮动利率票据的基准利率
type IndexFunc func(reset time.Time, tenor string) float64

// Dues 本期应付的费用与利息
type Dues struct {
	SeniorExpenses  decimal.Decimal            `json:"senior_expenses"`
	SeniorMgmtFee   decimal.Decimal            `json:"senior_mgmt_fee"`
	SubMgmtFee      decimal.Decimal            `json:"sub_mgmt_fee"`
	TrancheInterest map[string]decimal.Decimal `json:"tranche_interest"`
	TrancheCoupon   map[string]float64         `json:"tranche_coupon"`
}

// ComputeDues 按期初抵押池面值与票据余额计算本期应付金额
func ComputeDues(deal *model.Deal, tranches []model.Tranche, collateralPar decimal.Decimal, start, end time.Time, index IndexFunc) Dues {
	feeDC := deal.Fees.DayCount
	if feeDC == "" {
		feeDC = deal.DayCount
	}
	if feeDC == "" {
		feeDC = defaultFeeDayCount
	}
	yf := dates.YearFraction(start, end, feeDC)

	admin := model.Scale(collateralPar, deal.Fees.AdminFeeBps/10000*yf)
	if deal.Fees.AdminFeeCap.IsPositive() {
		admin = model.MinMoney(admin, deal.Fees.AdminFeeCap)
	}

	d := Dues{
		SeniorExpenses:  model.Money(deal.Fees.TrusteeFee).Add(admin),
		SeniorMgmtFee:   model.Scale(collateralPar, deal.Fees.SeniorMgmtFeeBps/10000*yf),
		SubMgmtFee:      model.Scale(collateralPar, deal.Fees.SubMgmtFeeBps/10000*yf),
		TrancheInterest: make(map[string]decimal.Decimal, len(tranches)),
		TrancheCoupon:   make(map[string]float64, len(tranches)),
	}

	for _, t := range tranches {
		if !t.IsRated() {
			continue
		}
		dc := t.DayCount
		if dc == "" {
			dc = feeDC
		}
		coupon := t.Coupon
		if t.CouponType == model.CouponFloating && index != nil {
			coupon = math.Max(index(start, t.Index), t.Floor) + t.Spread
		}
		d.TrancheCoupon[t.ID] = coupon
		d.TrancheInterest[t.ID] = model.Scale(t.Balance, coupon*dates.YearFraction(start, end, dc))
	}
	return d
}
