package projector

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/life2you_mini/cloengine/internal/curve"
	"github.com/life2you_mini/cloengine/internal/dates"
	"github.com/life2you_mini/cloengine/internal/model"
)

// 缺省的资产字段
const (
	fallbackDayCount  = dates.Thirty
	fallbackFrequency = 4
)

// Period 单个模拟期间
type Period struct {
	Index     int
	Start     time.Time
	End       time.Time
	Liquidate bool    // 本期清算（赎回）
	SalePrice float64 // 清算价格，1.0 = 面值
}

// Projector 资产现金流投影器，无跨资产依赖，可并发使用
type Projector struct {
	curve     *curve.Curve
	resetMode string
}

// New 创建投影器
func New(c *curve.Curve, resetMode string) *Projector {
	if resetMode == "" {
		resetMode = curve.ResetSpot
	}
	return &Projector{curve: c, resetMode: resetMode}
}

// Project 投影资产在一个期间的现金流，并滚动资产状态
func (p *Projector) Project(s *AssetState, set model.AssumptionSet, per Period) model.CashFlowPeriod {
	a := s.Asset
	cf := model.CashFlowPeriod{
		AssetID:          a.ID,
		Period:           per.Index,
		StartDate:        per.Start,
		PaymentDate:      per.End,
		BeginningBalance: s.Balance,
		Status:           s.Status,
	}
	warn := func(key, code, format string, args ...interface{}) {
		if s.warnOnce(key) {
			cf.Warnings = append(cf.Warnings, model.NewWarning(per.Index, code, a.ID, format, args...))
		}
	}

	// 期初已违约资产：首期全部转为违约
	if !s.started {
		s.started = true
		if a.Defaulted && s.Balance.IsPositive() {
			p.defaultAll(s, set, per, &cf, warn)
			return cf
		}
	}

	recovered := s.takeRecoveries(per.Index, per.Liquidate)
	if !s.Active() {
		cf.RecoveryAmount = recovered
		cf.EndingBalance = s.Balance
		cf.Status = s.Status
		return cf
	}

	dayCount := a.DayCount
	if dayCount == "" {
		dayCount = fallbackDayCount
		warn("day_count", model.WarnAssetFieldMissing, "资产缺少计息基准，使用 %s", fallbackDayCount)
	}
	if !dates.ValidFrequency(a.PaymentFrequency) {
		warn("frequency", model.WarnAssetFieldMissing, "资产付息频率 %d 无效，按每年 %d 次处理", a.PaymentFrequency, fallbackFrequency)
	}

	matures := !a.Maturity.After(per.End)
	accrualEnd := per.End
	if matures {
		accrualEnd = a.Maturity
	}
	yf := math.Max(dates.YearFraction(per.Start, accrualEnd, dayCount), 0)

	cdr := p.rate(set.CDR, "cdr", per.Index, warn)
	cpr := p.rate(set.CPR, "cpr", per.Index, warn)

	// 违约
	balance := s.Balance
	defaults := model.Scale(balance, periodRate(clampUnit(cdr), yf))
	performing := balance.Sub(defaults)
	if defaults.IsPositive() {
		// 违约部分的应计利息一并损失
		s.Accrued = model.Money(s.Accrued.Mul(performing).Div(balance))
		cf.DefaultAmount = defaults
		rec := p.recoveryRate(s, set, per.Index, warn)
		recAmt := model.Scale(defaults, rec)
		cf.LossAmount = defaults.Sub(recAmt)
		if set.RecoveryLag <= 0 || per.Liquidate {
			recovered = recovered.Add(recAmt)
		} else {
			s.pending = append(s.pending, pendingRecovery{Due: per.Index + set.RecoveryLag, Par: defaults, Amount: recAmt})
		}
	}

	// 利息
	coupon := p.couponRate(a, per.Start, warn)
	cf.CouponRate = coupon
	interest := model.Scale(performing, coupon*yf)
	if a.PIK {
		cf.PIKInterest = interest
		performing = performing.Add(interest)
	} else {
		s.Accrued = s.Accrued.Add(interest)
	}
	if matures || per.Liquidate || dates.CountIn(s.payDates, per.Start, per.End) > 0 {
		cf.InterestCollected = s.Accrued
		s.Accrued = decimal.Zero
	}

	// 计划本金
	scheduled := decimal.Zero
	switch {
	case matures:
		scheduled = performing
	case a.Amortization == model.AmortLevel:
		due := dates.CountIn(s.payDates, per.Start, per.End)
		remaining := dates.CountAfter(s.payDates, per.Start)
		if due > 0 && remaining > 0 {
			scheduled = model.Money(performing.Mul(decimal.NewFromInt(int64(due))).Div(decimal.NewFromInt(int64(remaining))))
		}
	}
	cf.ScheduledPrincipal = scheduled
	remaining := performing.Sub(scheduled)

	// 提前还款
	if !matures {
		cf.Prepayment = model.Scale(remaining, periodRate(clampUnit(cpr), yf))
		remaining = remaining.Sub(cf.Prepayment)
	}

	// 清算
	if per.Liquidate && remaining.IsPositive() {
		price := per.SalePrice
		if price <= 0 {
			price = 1.0
		}
		cf.SaleProceeds = model.Scale(remaining, price)
		cf.LossAmount = cf.LossAmount.Add(model.NonNegative(remaining.Sub(cf.SaleProceeds)))
		remaining = decimal.Zero
		s.Status = model.StatusCalled
	}

	s.Balance = remaining
	if s.Status == model.StatusPerforming && !remaining.IsPositive() {
		switch {
		case defaults.Equal(balance):
			s.Status = model.StatusDefaulted
		default:
			s.Status = model.StatusMatured
		}
	}

	cf.RecoveryAmount = recovered
	cf.EndingBalance = s.Balance
	cf.Status = s.Status
	return cf
}

// defaultAll 期初违约资产的处理
func (p *Projector) defaultAll(s *AssetState, set model.AssumptionSet, per Period, cf *model.CashFlowPeriod, warn func(string, string, string, ...interface{})) {
	balance := s.Balance
	rec := p.recoveryRate(s, set, per.Index, warn)
	recAmt := model.Scale(balance, rec)

	cf.DefaultAmount = balance
	cf.LossAmount = balance.Sub(recAmt)
	if set.RecoveryLag <= 0 || per.Liquidate {
		cf.RecoveryAmount = recAmt
	} else {
		s.pending = append(s.pending, pendingRecovery{Due: per.Index + set.RecoveryLag, Par: balance, Amount: recAmt})
	}

	s.Balance = decimal.Zero
	s.Accrued = decimal.Zero
	s.Status = model.StatusDefaulted
	cf.EndingBalance = decimal.Zero
	cf.Status = s.Status
}

// rate 按数据缺口规则读取假设向量
func (p *Projector) rate(v model.Vector, name string, period int, warn func(string, string, string, ...interface{})) float64 {
	r, held, missing := vectorRate(v, period)
	switch {
	case missing:
		warn("missing_"+name, model.WarnAssumptionMissing, "假设向量 %s 缺失，按 0 处理", name)
	case held:
		warn("held_"+name, model.WarnAssumptionHeldFlat, "假设向量 %s 长度 %d 不足，自第 %d 期起沿用末值 %g", name, len(v), period, r)
	}
	return r
}

// recoveryRate 回收率：资产级 > 回收率向量 > 1-损失率向量
func (p *Projector) recoveryRate(s *AssetState, set model.AssumptionSet, period int, warn func(string, string, string, ...interface{})) float64 {
	if s.Asset.RecoveryRate > 0 {
		return clampUnit(s.Asset.RecoveryRate)
	}
	if len(set.Recovery) == 0 && len(set.Severity) > 0 {
		return clampUnit(1 - p.rate(set.Severity, "severity", period, warn))
	}
	return clampUnit(p.rate(set.Recovery, "recovery", period, warn))
}

// couponRate 本期票息：固定利率，或 max(基准, 下限) + 利差
func (p *Projector) couponRate(a *model.Asset, reset time.Time, warn func(string, string, string, ...interface{})) float64 {
	if !a.IsFloating() {
		return a.Coupon
	}
	index, err := p.curve.IndexRate(reset, a.Index, p.resetMode)
	if err != nil {
		warn("index", model.WarnAssetFieldMissing, "基准利率期限 %q 无效，使用即期利率: %v", a.Index, err)
		index = p.curve.SpotRateAt(reset)
	}
	return math.Max(index, a.Floor) + a.Spread
}
