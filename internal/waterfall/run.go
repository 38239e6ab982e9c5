package waterfall

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/life2you_mini/cloengine/internal/model"
	"github.com/life2you_mini/cloengine/internal/trigger"
)

// 非票据收款方
const (
	payeeTrustee      = "TRUSTEE"
	payeeManager      = "MANAGER"
	payeeSeniorFees   = "SENIOR_FEES"
	payeeDeferredFees = "DEFERRED_FEES"
	payeeReinvestment = "REINVESTMENT"
	payeeReserve      = "CLAWBACK_RESERVE"
	payeeCash         = "CASH"
)

// Waterfall 利息与本金两套分配顺序，返回未分配的剩余资金
type Waterfall interface {
	PayInterestWaterfall(available decimal.Decimal) decimal.Decimal
	PayPrincipalWaterfall(available decimal.Decimal) decimal.Decimal
}

// Distributor 次级票据分配的激励费处理，返回激励费与净分配额
type Distributor interface {
	RecordPayment(amount decimal.Decimal) (fee, net decimal.Decimal)
}

// Params 单期分配的输入
type Params struct {
	DealID      string
	Period      int
	Date        time.Time
	Final       bool
	Reinvesting bool
	EquityIRR   *float64 // 截至上期的权益内部收益率，未知时为 nil
	Dues        Dues
	Triggers    []trigger.Evaluation
	Distributor Distributor
}

// Run 单期分配执行器
type Run struct {
	variant Variant
	cfg     model.WaterfallConfig
	state   *State
	params  Params
	ranks   []int
	exec    *Execution
	source  string

	paidDown      map[int]decimal.Decimal    // 顺位 -> 本期偿还本金
	interestShort map[string]decimal.Decimal // 本期新增的非 PIK 利息缺口
	seniorShort   decimal.Decimal            // 本期未付的优先费用
}

var _ Waterfall = (*Run)(nil)

// NewRun 创建单期分配执行器
func NewRun(v Variant, cfg model.WaterfallConfig, st *State, p Params) *Run {
	return &Run{
		variant:       v,
		cfg:           cfg,
		state:         st,
		params:        p,
		ranks:         Ranks(st.Tranches),
		paidDown:      make(map[int]decimal.Decimal),
		interestShort: make(map[string]decimal.Decimal),
		seniorShort:   decimal.Zero,
		exec: &Execution{
			Period:             p.Period,
			Date:               p.Date,
			Variant:            v.Name,
			InterestAvailable:  decimal.Zero,
			PrincipalAvailable: decimal.Zero,
			BeginningCash:      decimal.Zero,
			TotalPaid:          decimal.Zero,
			EndingCash:         decimal.Zero,
			EquityDistribution: decimal.Zero,
			IncentiveFee:       decimal.Zero,
			Reinvested:         decimal.Zero,
			PIKCapitalized:     make(map[string]decimal.Decimal),
			PrincipalPaid:      make(map[string]decimal.Decimal),
		},
	}
}

// Execute 执行一期完整分配：释放准备金 -> 利息分配 -> 本金分配 -> 留存与触发器结算
func Execute(v Variant, cfg model.WaterfallConfig, st *State, p Params, interest, principal decimal.Decimal) *Execution {
	r := NewRun(v, cfg, st, p)
	r.exec.InterestAvailable = interest
	r.exec.PrincipalAvailable = principal
	r.exec.BeginningCash = st.Cash()

	trapped := st.TrappedCash
	st.TrappedCash = decimal.Zero

	r.releaseReserve()
	left := r.PayInterestWaterfall(interest.Add(trapped))
	left = left.Add(r.PayPrincipalWaterfall(principal))
	r.finish(left)
	return r.exec
}

// PayInterestWaterfall 按利息分配顺序支付
func (r *Run) PayInterestWaterfall(available decimal.Decimal) decimal.Decimal {
	r.source = SourceInterest
	return r.runSteps(r.variant.Interest, available)
}

// PayPrincipalWaterfall 按本金分配顺序支付
func (r *Run) PayPrincipalWaterfall(available decimal.Decimal) decimal.Decimal {
	r.source = SourcePrincipal
	return r.runSteps(r.variant.Principal, available)
}

// Execution 本期执行记录
func (r *Run) Execution() *Execution {
	return r.exec
}

func (r *Run) runSteps(steps []Step, available decimal.Decimal) decimal.Decimal {
	avail := model.NonNegative(available)
	for _, s := range steps {
		if s.Junior && r.stopperActive() {
			avail = r.block(s, avail)
			continue
		}
		avail = r.pay(s, avail)
	}
	return avail
}

func (r *Run) pay(s Step, avail decimal.Decimal) decimal.Decimal {
	switch s.Kind {
	case StepSeniorExpenses:
		return r.paySeniorFee(s, payeeTrustee, r.params.Dues.SeniorExpenses, avail)
	case StepSeniorMgmtFee:
		return r.paySeniorFee(s, payeeManager, r.params.Dues.SeniorMgmtFee, avail)
	case StepTrancheInterest:
		return r.payInterest(s.Rank, avail)
	case StepDeferredInterest:
		return r.payDeferredInterest(s.Rank, avail)
	case StepCoverageCure:
		return r.cure(s.Rank, avail)
	case StepSubMgmtFee:
		return r.paySubFee(avail)
	case StepDeferredFees:
		return r.payDeferredFees(avail)
	case StepTurboPrincipal:
		return r.turbo(avail)
	case StepInterestShortfall:
		return r.payShortfalls(avail)
	case StepReinvestment:
		return r.reinvest(avail)
	case StepSequentialPrincipal:
		return avail.Sub(r.paySequential(avail, math.MaxInt, StepSequentialPrincipal, ""))
	case StepResidual:
		r.distribute(avail, StepResidual, true, "")
		return decimal.Zero
	}
	return avail
}

// block 分配阻断：次级步骤不支付，应付金额照常递延，资金留在分配中
func (r *Run) block(s Step, avail decimal.Decimal) decimal.Decimal {
	r.exec.StopperActive = true
	r.add(Line{Step: s.Kind, Payee: payeeCash, Rank: s.Rank, Due: avail, Treatment: TreatBlocked})
	if s.Kind == StepResidual {
		return avail
	}
	left := r.pay(s, decimal.Zero)
	return avail.Add(left)
}

func (r *Run) paySeniorFee(s Step, payee string, due, avail decimal.Decimal) decimal.Decimal {
	if !due.IsPositive() {
		return avail
	}
	paid := model.MinMoney(due, avail)
	short := due.Sub(paid)
	line := Line{Step: s.Kind, Payee: payee, Due: due, Paid: paid, Shortfall: short}
	if short.IsPositive() {
		r.seniorShort = r.seniorShort.Add(short)
		line.Treatment = TreatShortfall
	}
	r.add(line)
	return avail.Sub(paid)
}

func (r *Run) payInterest(rank int, avail decimal.Decimal) decimal.Decimal {
	idx := r.tranchesAt(rank)
	dues := make([]decimal.Decimal, len(idx))
	for k, i := range idx {
		due, ok := r.params.Dues.TrancheInterest[r.state.Tranches[i].ID]
		if !ok {
			due = decimal.Zero
		}
		dues[k] = due
	}
	if !sum(dues).IsPositive() {
		return avail
	}

	paid := payProRata(avail, dues)
	for k, i := range idx {
		t := &r.state.Tranches[i]
		short := dues[k].Sub(paid[k])
		line := Line{Step: StepTrancheInterest, Payee: t.ID, Rank: rank, Due: dues[k], Paid: paid[k], Shortfall: short}
		if short.IsPositive() {
			if t.PIKEligible {
				t.Balance = t.Balance.Add(short)
				r.exec.PIKCapitalized[t.ID] = r.exec.PIKCapitalized[t.ID].Add(short)
				line.Treatment = TreatPIK
			} else {
				t.DeferredInterest = t.DeferredInterest.Add(short)
				r.interestShort[t.ID] = r.interestShort[t.ID].Add(short)
				line.Treatment = TreatDeferred
				if len(r.ranks) > 0 && rank == r.ranks[0] {
					r.exec.Warnings = append(r.exec.Warnings, model.NewWarning(r.params.Period, model.WarnSeniorInterestShort, t.ID,
						"最优先票据利息不足，缺口 %s 已递延", short.StringFixed(model.MoneyPlaces)))
				}
			}
		}
		r.add(line)
	}
	return avail.Sub(sum(paid))
}

// payDeferredInterest 支付以前期间递延的利息
func (r *Run) payDeferredInterest(rank int, avail decimal.Decimal) decimal.Decimal {
	idx := r.tranchesAt(rank)
	dues := make([]decimal.Decimal, len(idx))
	for k, i := range idx {
		t := r.state.Tranches[i]
		dues[k] = model.NonNegative(t.DeferredInterest.Sub(r.interestShort[t.ID]))
	}
	if !sum(dues).IsPositive() {
		return avail
	}

	paid := payProRata(avail, dues)
	for k, i := range idx {
		if !dues[k].IsPositive() {
			continue
		}
		t := &r.state.Tranches[i]
		t.DeferredInterest = t.DeferredInterest.Sub(paid[k])
		line := Line{Step: StepDeferredInterest, Payee: t.ID, Rank: rank, Due: dues[k], Paid: paid[k], Shortfall: dues[k].Sub(paid[k])}
		if line.Shortfall.IsPositive() {
			line.Treatment = TreatDeferred
		}
		r.add(line)
	}
	return avail.Sub(sum(paid))
}

// cure 按补救目标向测试覆盖的票据顺序偿还本金
func (r *Run) cure(rank int, avail decimal.Decimal) decimal.Decimal {
	for i := range r.params.Triggers {
		e := &r.params.Triggers[i]
		if e.Diversion || !e.Breached || e.ClassRank != rank {
			continue
		}
		need := e.RemainingTarget(r.paidToStack(e.ClassRank))
		amt := model.MinMoney(need, avail)
		if !amt.IsPositive() {
			continue
		}
		avail = avail.Sub(r.paySequential(amt, e.ClassRank, StepCoverageCure, e.ID))
	}
	return avail
}

func (r *Run) turbo(avail decimal.Decimal) decimal.Decimal {
	if !r.turboActive() || !avail.IsPositive() {
		return avail
	}
	pct := r.cfg.TurboPct
	if pct <= 0 || pct > 1 {
		pct = 1
	}
	paid := r.paySequential(model.Scale(avail, pct), math.MaxInt, StepTurboPrincipal, r.cfg.TurboTrigger)
	if paid.IsPositive() {
		r.exec.TurboActive = true
	}
	return avail.Sub(paid)
}

func (r *Run) paySubFee(avail decimal.Decimal) decimal.Decimal {
	due := r.params.Dues.SubMgmtFee
	if !due.IsPositive() {
		return avail
	}
	if r.feeDeferralActive() {
		r.exec.FeeDeferralActive = true
		r.state.DeferredFees = r.state.DeferredFees.Add(due)
		r.add(Line{Step: StepSubMgmtFee, Payee: payeeManager, Due: due, Paid: decimal.Zero, Shortfall: due, Treatment: TreatFeeDeferred})
		return avail
	}

	paid := model.MinMoney(due, avail)
	short := due.Sub(paid)
	share := decimal.Zero
	if r.cfg.FeeSharePct > 0 && paid.IsPositive() {
		share = model.Scale(paid, math.Min(r.cfg.FeeSharePct, 1))
	}
	line := Line{Step: StepSubMgmtFee, Payee: payeeManager, Due: due, Paid: paid.Sub(share), Shortfall: short}
	if short.IsPositive() {
		r.state.DeferredFees = r.state.DeferredFees.Add(short)
		line.Treatment = TreatFeeDeferred
	}
	r.add(line)
	if share.IsPositive() {
		r.distribute(share, StepSubMgmtFee, false, TreatFeeShare)
	}
	return avail.Sub(paid)
}

func (r *Run) payDeferredFees(avail decimal.Decimal) decimal.Decimal {
	due := r.state.DeferredFees
	if !due.IsPositive() {
		return avail
	}
	if r.feeDeferralActive() {
		r.exec.FeeDeferralActive = true
		r.add(Line{Step: StepDeferredFees, Payee: payeeDeferredFees, Due: due, Paid: decimal.Zero, Shortfall: due, Treatment: TreatFeeDeferred})
		return avail
	}
	paid := model.MinMoney(due, avail)
	r.state.DeferredFees = due.Sub(paid)
	line := Line{Step: StepDeferredFees, Payee: payeeDeferredFees, Due: due, Paid: paid, Shortfall: due.Sub(paid)}
	if line.Shortfall.IsPositive() {
		line.Treatment = TreatFeeDeferred
	}
	r.add(line)
	return avail.Sub(paid)
}

// payShortfalls 本金资金弥补本期未付的优先费用与利息缺口
func (r *Run) payShortfalls(avail decimal.Decimal) decimal.Decimal {
	if r.seniorShort.IsPositive() {
		paid := model.MinMoney(r.seniorShort, avail)
		line := Line{Step: StepInterestShortfall, Payee: payeeSeniorFees, Due: r.seniorShort, Paid: paid, Shortfall: r.seniorShort.Sub(paid)}
		r.seniorShort = r.seniorShort.Sub(paid)
		r.add(line)
		avail = avail.Sub(paid)
	}

	for _, rank := range r.ranks {
		idx := r.tranchesAt(rank)
		dues := make([]decimal.Decimal, len(idx))
		for k, i := range idx {
			due, ok := r.interestShort[r.state.Tranches[i].ID]
			if !ok {
				due = decimal.Zero
			}
			dues[k] = due
		}
		if !sum(dues).IsPositive() {
			continue
		}
		paid := payProRata(avail, dues)
		for k, i := range idx {
			if !dues[k].IsPositive() {
				continue
			}
			t := &r.state.Tranches[i]
			t.DeferredInterest = t.DeferredInterest.Sub(paid[k])
			r.interestShort[t.ID] = dues[k].Sub(paid[k])
			line := Line{Step: StepInterestShortfall, Payee: t.ID, Rank: rank, Due: dues[k], Paid: paid[k], Shortfall: dues[k].Sub(paid[k])}
			if line.Shortfall.IsPositive() {
				line.Treatment = TreatDeferred
			}
			r.add(line)
		}
		avail = avail.Sub(sum(paid))
	}
	return avail
}

func (r *Run) reinvest(avail decimal.Decimal) decimal.Decimal {
	if !r.params.Reinvesting || r.params.Final || !avail.IsPositive() {
		return avail
	}
	r.add(Line{Step: StepReinvestment, Payee: payeeReinvestment, Due: avail, Paid: avail})
	r.exec.Reinvested = r.exec.Reinvested.Add(avail)
	return decimal.Zero
}

// paySequential 按顺位依次偿还票据本金，同顺位按余额比例分配，返回实际偿还金额
func (r *Run) paySequential(amount decimal.Decimal, maxRank int, step StepKind, note string) decimal.Decimal {
	remaining := model.Money(amount)
	total := decimal.Zero
	for _, rank := range r.ranks {
		if rank > maxRank || !remaining.IsPositive() {
			break
		}
		idx := r.tranchesAt(rank)
		balances := make([]decimal.Decimal, len(idx))
		for k, i := range idx {
			balances[k] = r.state.Tranches[i].Balance
		}
		outstanding := sum(balances)
		if !outstanding.IsPositive() {
			continue
		}

		pay := model.MinMoney(remaining, outstanding)
		shares := payProRata(pay, balances)
		for k, i := range idx {
			if !shares[k].IsPositive() {
				continue
			}
			t := &r.state.Tranches[i]
			t.Balance = t.Balance.Sub(shares[k])
			r.exec.PrincipalPaid[t.ID] = r.exec.PrincipalPaid[t.ID].Add(shares[k])
			r.add(Line{Step: step, Payee: t.ID, Rank: rank, Due: shares[k], Paid: shares[k], Note: note})
		}
		r.paidDown[rank] = r.paidDown[rank].Add(pay)
		remaining = remaining.Sub(pay)
		total = total.Add(pay)
	}
	return total
}

// distribute 次级票据分配：回拨留存 -> 激励费 -> 净额
func (r *Run) distribute(amount decimal.Decimal, step StepKind, clawback bool, treatment string) {
	if !amount.IsPositive() {
		return
	}
	if clawback && r.clawbackActive() {
		pct := r.cfg.ClawbackPct
		if pct <= 0 || pct > 1 {
			pct = 1
		}
		withheld := model.Scale(amount, pct)
		r.state.ClawbackReserve = r.state.ClawbackReserve.Add(withheld)
		r.exec.ClawbackActive = true
		r.add(Line{Step: step, Payee: payeeReserve, Due: amount, Retained: withheld, Treatment: TreatWithheld})
		amount = amount.Sub(withheld)
		if !amount.IsPositive() {
			return
		}
	}

	fee, net := decimal.Zero, amount
	if r.params.Distributor != nil {
		fee, net = r.params.Distributor.RecordPayment(amount)
	}
	if fee.IsPositive() {
		r.exec.IncentiveFee = r.exec.IncentiveFee.Add(fee)
		r.add(Line{Step: step, Payee: payeeManager, Due: fee, Paid: fee, Treatment: TreatIncentiveFee})
	}
	r.exec.EquityDistribution = r.exec.EquityDistribution.Add(net)
	r.add(Line{Step: step, Payee: r.state.EquityPayee(), Due: amount, Paid: net, Treatment: treatment})
}

// releaseReserve 权益收益率达标或最后一期时释放回拨准备金
func (r *Run) releaseReserve() {
	reserve := r.state.ClawbackReserve
	if !reserve.IsPositive() || r.clawbackActive() {
		return
	}
	r.source = SourceReserve
	r.state.ClawbackReserve = decimal.Zero
	r.distribute(reserve, StepResidual, false, TreatReleased)
}

// finish 未付优先费用转为递延费用，剩余资金留存，结算触发器
func (r *Run) finish(left decimal.Decimal) {
	if r.seniorShort.IsPositive() {
		r.state.DeferredFees = r.state.DeferredFees.Add(r.seniorShort)
		r.add(Line{Step: StepDeferredFees, Payee: payeeSeniorFees, Due: r.seniorShort, Paid: decimal.Zero, Shortfall: r.seniorShort, Treatment: TreatFeeDeferred})
		r.seniorShort = decimal.Zero
	}
	if left.IsPositive() {
		r.state.TrappedCash = r.state.TrappedCash.Add(left)
		r.add(Line{Step: StepResidual, Payee: payeeCash, Due: left, Retained: left, Treatment: TreatRetained})
	}

	r.exec.Triggers = make([]trigger.Evaluation, len(r.params.Triggers))
	for i, e := range r.params.Triggers {
		r.exec.Triggers[i] = trigger.Apply(e, r.paidToStack(e.ClassRank))
	}

	total := decimal.Zero
	for _, l := range r.exec.Lines {
		total = total.Add(l.Paid)
	}
	r.exec.TotalPaid = total
	r.exec.EndingCash = r.state.Cash()
}

func (r *Run) add(l Line) {
	l.Seq = len(r.exec.Lines) + 1
	l.Source = r.source
	if l.Due.IsZero() {
		l.Due = decimal.Zero
	}
	if l.Paid.IsZero() {
		l.Paid = decimal.Zero
	}
	if l.Retained.IsZero() {
		l.Retained = decimal.Zero
	}
	if l.Shortfall.IsZero() {
		l.Shortfall = decimal.Zero
	}
	r.exec.Lines = append(r.exec.Lines, l)
}

// tranchesAt 某顺位的付息票据下标（定义顺序）
func (r *Run) tranchesAt(rank int) []int {
	var idx []int
	for i, t := range r.state.Tranches {
		if t.IsRated() && t.Rank == rank {
			idx = append(idx, i)
		}
	}
	return idx
}

// paidToStack 本期向顺位不低于 classRank 的票据偿还的本金
func (r *Run) paidToStack(classRank int) decimal.Decimal {
	total := decimal.Zero
	for rank, paid := range r.paidDown {
		if rank <= classRank {
			total = total.Add(paid)
		}
	}
	return total
}

// failing 指定触发器（为空时任一触发器）在计入本期已偿还本金后是否仍违约
func (r *Run) failing(ids ...string) bool {
	want := make(map[string]bool)
	for _, id := range ids {
		if id != "" {
			want[id] = true
		}
	}
	for i := range r.params.Triggers {
		e := &r.params.Triggers[i]
		if len(want) > 0 && !want[e.ID] {
			continue
		}
		if e.Breached && e.RemainingTarget(r.paidToStack(e.ClassRank)).IsPositive() {
			return true
		}
	}
	return false
}

func (r *Run) stopperActive() bool {
	return r.variant.DistributionStopper && !r.params.Final && r.failing(r.cfg.StopperTriggers...)
}

func (r *Run) turboActive() bool {
	return r.variant.TurboPrincipal && r.failing(r.cfg.TurboTrigger)
}

func (r *Run) feeDeferralActive() bool {
	return r.variant.FeeDeferral && !r.params.Final && r.failing(r.cfg.FeeDeferralTrigger)
}

func (r *Run) clawbackActive() bool {
	if !r.variant.EquityClawback || r.params.Final {
		return false
	}
	return r.params.EquityIRR == nil || *r.params.EquityIRR < r.cfg.ClawbackHurdle
}
