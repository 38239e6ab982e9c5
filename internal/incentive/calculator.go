package incentive

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/life2you_mini/cloengine/internal/model"
)

// Payment 某期次级票据分配记录，按期间顺序追加
type Payment struct {
	Period     int             `json:"period"`
	Date       time.Time       `json:"date"`
	Gross      decimal.Decimal `json:"gross"`
	Fee        decimal.Decimal `json:"fee"`
	Net        decimal.Decimal `json:"net"`
	Discounted decimal.Decimal `json:"discounted"` // 按门槛收益率折现到交割日的净额
}

// State 激励费状态快照
type State struct {
	Period               int             `json:"period"`
	Date                 time.Time       `json:"date"`
	HurdleRate           float64         `json:"hurdle_rate"`
	FeeRate              float64         `json:"fee_rate"`
	CumulativeDiscounted decimal.Decimal `json:"cumulative_discounted"`
	Threshold            decimal.Decimal `json:"threshold"` // 本期达到门槛仍需的分配额，非正数表示已达到
	ThresholdReached     bool            `json:"threshold_reached"`
	PeriodPaid           decimal.Decimal `json:"period_paid"`
	PeriodFee            decimal.Decimal `json:"period_fee"`
	CumulativeFee        decimal.Decimal `json:"cumulative_fee"`
	IRR                  *float64        `json:"irr,omitempty"`
}

// Calculator 次级票据激励费计算器，由执行该运行的任务独占
type Calculator struct {
	dealID     string
	hurdle     float64
	feeRate    float64
	closing    time.Time
	investment decimal.Decimal
	logger     *zap.Logger

	period        int
	payDate       time.Time
	cumDiscounted decimal.Decimal
	threshold     decimal.Decimal
	reached       bool
	cumFee        decimal.Decimal
	lastIRR       *float64

	periodGross decimal.Decimal
	periodFee   decimal.Decimal
	periodNet   decimal.Decimal

	history []Payment
}

// New 创建激励费计算器，门槛收益率与费率须在 [0,1] 之内
func New(dealID string, cfg model.IncentiveConfig, closing time.Time, logger *zap.Logger) (*Calculator, error) {
	if err := Validate(dealID, cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	investment := model.Money(cfg.EquityInvestment)
	return &Calculator{
		dealID:        dealID,
		hurdle:        cfg.HurdleRate,
		feeRate:       cfg.FeeRate,
		closing:       closing,
		investment:    investment,
		logger:        logger.With(zap.String("component", "incentive"), zap.String("deal_id", dealID)),
		period:        1,
		cumDiscounted: investment.Neg(),
		threshold:     investment,
		cumFee:        decimal.Zero,
		periodGross:   decimal.Zero,
		periodFee:     decimal.Zero,
		periodNet:     decimal.Zero,
	}, nil
}

// Validate 校验激励费参数
func Validate(dealID string, cfg model.IncentiveConfig) error {
	if cfg.HurdleRate < 0 || cfg.HurdleRate > 1 || math.IsNaN(cfg.HurdleRate) {
		return model.NewConfigError(dealID, "incentive.hurdle_rate", "门槛收益率 %v 超出 [0,1]", cfg.HurdleRate)
	}
	if cfg.FeeRate < 0 || cfg.FeeRate > 1 || math.IsNaN(cfg.FeeRate) {
		return model.NewConfigError(dealID, "incentive.fee_rate", "激励费率 %v 超出 [0,1]", cfg.FeeRate)
	}
	if cfg.EquityInvestment.IsNegative() {
		return model.NewConfigError(dealID, "incentive.equity_investment", "次级票据投资额不能为负")
	}
	return nil
}

// growth 交割日至 d 按门槛收益率的复利系数
func (c *Calculator) growth(d time.Time) float64 {
	days := d.Sub(c.closing).Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Pow(1+c.hurdle, days/365)
}

// Calc 计算下一付款日的门槛：累计折现分配额取反后复利到付款日
func (c *Calculator) Calc(nextPayDate time.Time) decimal.Decimal {
	c.payDate = nextPayDate
	c.threshold = model.Scale(c.cumDiscounted.Neg(), c.growth(nextPayDate))
	if !c.reached && c.investment.IsPositive() && !c.threshold.IsPositive() {
		c.reached = true
	}
	return c.threshold
}

// RecordPayment 记录本期一笔次级票据分配，返回激励费与净分配额
func (c *Calculator) RecordPayment(amount decimal.Decimal) (fee, net decimal.Decimal) {
	amount = model.Money(amount)
	if !amount.IsPositive() {
		return decimal.Zero, decimal.Zero
	}

	switch {
	case !c.investment.IsPositive():
		// 没有投资额无法定义门槛，不收激励费
		fee = decimal.Zero
	case c.reached:
		fee = model.Scale(amount, c.feeRate)
	default:
		remaining := c.threshold.Sub(c.periodNet)
		if amount.GreaterThanOrEqual(remaining) {
			c.reached = true
			excess := amount.Sub(model.NonNegative(remaining))
			fee = model.Scale(excess, c.feeRate)
			c.logger.Info("次级票据分配达到激励费门槛",
				zap.Int("period", c.period),
				zap.String("threshold", c.threshold.String()),
				zap.String("excess", excess.String()))
		} else {
			fee = decimal.Zero
		}
	}

	net = amount.Sub(fee)
	c.periodGross = c.periodGross.Add(amount)
	c.periodFee = c.periodFee.Add(fee)
	c.periodNet = c.periodNet.Add(net)
	c.cumFee = c.cumFee.Add(fee)
	return fee, net
}

// AdvancePeriod 将本期净分配折现到交割日并追加到历史，计算截至本期的内部收益率
func (c *Calculator) AdvancePeriod() (State, []model.Warning) {
	var warnings []model.Warning
	date := c.payDate
	discounted := decimal.Zero
	if c.periodNet.IsPositive() {
		discounted = c.periodNet.Div(decimal.NewFromFloat(c.growth(date)))
	}
	c.cumDiscounted = c.cumDiscounted.Add(discounted)
	c.history = append(c.history, Payment{
		Period:     c.period,
		Date:       date,
		Gross:      c.periodGross,
		Fee:        c.periodFee,
		Net:        c.periodNet,
		Discounted: model.Money(discounted),
	})

	c.lastIRR = nil
	if c.investment.IsPositive() {
		if rate, ok := XIRR(c.flows()); ok {
			c.lastIRR = &rate
		} else if c.hasDistributions() {
			warnings = append(warnings, model.NewWarning(c.period, model.WarnIRRNotConverged, c.dealID,
				"次级票据内部收益率未收敛"))
			c.logger.Warn("内部收益率未收敛", zap.Int("period", c.period))
		}
	}

	snap := c.Snapshot()
	c.period++
	c.periodGross = decimal.Zero
	c.periodFee = decimal.Zero
	c.periodNet = decimal.Zero
	return snap, warnings
}

// Snapshot 当前状态
func (c *Calculator) Snapshot() State {
	s := State{
		Period:               c.period,
		Date:                 c.payDate,
		HurdleRate:           c.hurdle,
		FeeRate:              c.feeRate,
		CumulativeDiscounted: model.Money(c.cumDiscounted),
		Threshold:            c.threshold,
		ThresholdReached:     c.reached,
		PeriodPaid:           c.periodGross,
		PeriodFee:            c.periodFee,
		CumulativeFee:        c.cumFee,
	}
	if c.lastIRR != nil {
		irr := *c.lastIRR
		s.IRR = &irr
	}
	return s
}

// ThresholdReached 是否已达到门槛，达到后在本次运行内不再复位
func (c *Calculator) ThresholdReached() bool {
	return c.reached
}

// LastIRR 截至上一期的内部收益率，未知时为 nil
func (c *Calculator) LastIRR() *float64 {
	if c.lastIRR == nil {
		return nil
	}
	irr := *c.lastIRR
	return &irr
}

// History 分配历史副本
func (c *Calculator) History() []Payment {
	out := make([]Payment, len(c.history))
	copy(out, c.history)
	return out
}

// PaymentOn 按付款日二分查找分配记录
func (c *Calculator) PaymentOn(date time.Time) (Payment, bool) {
	i := sort.Search(len(c.history), func(i int) bool {
		return !c.history[i].Date.Before(date)
	})
	if i < len(c.history) && c.history[i].Date.Equal(date) {
		return c.history[i], true
	}
	return Payment{}, false
}

// DistributedThrough 截至某日（含）的累计净分配额
func (c *Calculator) DistributedThrough(date time.Time) decimal.Decimal {
	n := sort.Search(len(c.history), func(i int) bool {
		return c.history[i].Date.After(date)
	})
	total := decimal.Zero
	for _, p := range c.history[:n] {
		total = total.Add(p.Net)
	}
	return total
}

func (c *Calculator) flows() []CashFlow {
	flows := make([]CashFlow, 0, len(c.history)+1)
	flows = append(flows, CashFlow{Date: c.closing, Amount: -c.investment.InexactFloat64()})
	for _, p := range c.history {
		if p.Net.IsZero() {
			continue
		}
		flows = append(flows, CashFlow{Date: p.Date, Amount: p.Net.InexactFloat64()})
	}
	return flows
}

func (c *Calculator) hasDistributions() bool {
	for _, p := range c.history {
		if p.Net.IsPositive() {
			return true
		}
	}
	return false
}
