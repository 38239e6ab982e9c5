package trigger

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/life2you_mini/cloengine/internal/model"
)

// State 触发器状态
type State string

const (
	StatePassing        State = "PASSING"
	StateBreached       State = "BREACHED"
	StateBreachedCuring State = "BREACHED_CURING"
	StateCured          State = "CURED"
)

// Inputs 本期评估所需的池与负债数据
type Inputs struct {
	AdjustedPar      decimal.Decimal // 超额抵押分子
	InterestProceeds decimal.Decimal
	SeniorExpenses   decimal.Decimal
	SeniorMgmtFee    decimal.Decimal
	Tranches         []model.Tranche
	InterestDue      map[string]decimal.Decimal // 票据ID -> 本期应付利息
	YearFraction     float64
}

// Evaluation 单个触发器的本期评估结果
type Evaluation struct {
	ID        string            `json:"id"`
	Kind      model.TriggerKind `json:"kind"`
	ClassRank int               `json:"class_rank"`
	Threshold float64           `json:"threshold"`
	Diversion bool              `json:"diversion,omitempty"`

	Numerator   decimal.Decimal `json:"numerator"`
	Denominator decimal.Decimal `json:"denominator"`
	Ratio       float64         `json:"ratio"`
	Breached    bool            `json:"breached"`
	CureTarget  decimal.Decimal `json:"cure_target"`

	CureApplied    decimal.Decimal `json:"cure_applied"`
	RatioAfterCure float64         `json:"ratio_after_cure"`
	State          State           `json:"state"`
	// StackRate IC 测试中每单位本金偿还减少的利息（c·yf），OC 测试为 0
	StackRate float64 `json:"stack_rate,omitempty"`
}

// Evaluate 计算触发器比率、违约状态与补救目标
func Evaluate(def model.TriggerDef, in Inputs) Evaluation {
	e := Evaluation{
		ID:          def.ID,
		Kind:        def.Kind,
		ClassRank:   def.ClassRank,
		Threshold:   def.Threshold,
		Diversion:   def.Diversion,
		CureTarget:  decimal.Zero,
		CureApplied: decimal.Zero,
	}

	switch def.Kind {
	case model.TriggerIC:
		e.Numerator = model.NonNegative(in.InterestProceeds.Sub(in.SeniorExpenses).Sub(in.SeniorMgmtFee))
		e.Denominator = decimal.Zero
		balance := decimal.Zero
		weighted := 0.0
		for _, t := range stack(in.Tranches, def.ClassRank) {
			e.Denominator = e.Denominator.Add(in.InterestDue[t.ID])
			balance = balance.Add(t.Balance)
			if due, ok := in.InterestDue[t.ID]; ok && in.YearFraction > 0 {
				weighted += due.InexactFloat64() / in.YearFraction
			}
		}
		// 偿还 1 单位本金减少的应付利息：加权票息 × 期限
		if b := balance.InexactFloat64(); b > 0 {
			e.StackRate = weighted / b * in.YearFraction
		}
	default:
		e.Numerator = in.AdjustedPar
		e.Denominator = decimal.Zero
		for _, t := range stack(in.Tranches, def.ClassRank) {
			e.Denominator = e.Denominator.Add(t.Balance)
		}
	}

	e.Ratio = ratio(e.Numerator, e.Denominator)
	e.Breached = e.Ratio < def.Threshold
	if e.Breached {
		e.CureTarget = e.remaining(decimal.Zero, in.Tranches)
		e.State = StateBreached
	} else {
		e.State = StatePassing
	}
	e.RatioAfterCure = e.Ratio
	return e
}

// EvaluateAll 按配置顺序评估全部触发器
func EvaluateAll(defs []model.TriggerDef, in Inputs) []Evaluation {
	out := make([]Evaluation, 0, len(defs))
	for _, def := range defs {
		out = append(out, Evaluate(def, in))
	}
	return out
}

// RemainingTarget 已向测试所覆盖的票据偿还 paid 后仍需的补救金额
func (e *Evaluation) RemainingTarget(paid decimal.Decimal) decimal.Decimal {
	if !e.Breached {
		return decimal.Zero
	}
	return e.remaining(paid, nil)
}

func (e *Evaluation) remaining(paid decimal.Decimal, tranches []model.Tranche) decimal.Decimal {
	if e.Threshold <= 0 {
		return decimal.Zero
	}
	thr := decimal.NewFromFloat(e.Threshold)

	switch e.Kind {
	case model.TriggerIC:
		if e.StackRate <= 0 {
			return decimal.Zero
		}
		// X = (Dint - N/thr) / (c·yf)，以票据余额为上限
		gap := e.Denominator.Sub(e.Numerator.Div(thr))
		x := gap.Div(decimal.NewFromFloat(e.StackRate)).Sub(paid)
		if tranches != nil {
			limit := decimal.Zero
			for _, t := range stack(tranches, e.ClassRank) {
				limit = limit.Add(t.Balance)
			}
			x = model.MinMoney(x, limit)
		}
		return model.NonNegative(x.RoundCeil(model.MoneyPlaces))
	default:
		// X = (D - paid) - N/thr
		x := e.Denominator.Sub(paid).Sub(e.Numerator.Div(thr))
		x = model.MinMoney(x, e.Denominator.Sub(paid))
		return model.NonNegative(x.RoundCeil(model.MoneyPlaces))
	}
}

// Apply 记录新投入的补救金额并更新状态；newly 为零时状态不变
func Apply(e Evaluation, newly decimal.Decimal) Evaluation {
	if !e.Breached {
		e.State = StatePassing
		return e
	}
	e.CureApplied = e.CureApplied.Add(model.NonNegative(newly))
	e.RatioAfterCure = e.ratioAfter(e.CureApplied)

	switch {
	case e.CureApplied.IsPositive() && !e.RemainingTarget(e.CureApplied).IsPositive():
		e.State = StateCured
	case e.CureApplied.IsPositive():
		e.State = StateBreachedCuring
	default:
		e.State = StateBreached
	}
	return e
}

// ratioAfter 偿还 paid 后的比率
func (e *Evaluation) ratioAfter(paid decimal.Decimal) float64 {
	switch e.Kind {
	case model.TriggerIC:
		reduced := e.Denominator.Sub(paid.Mul(decimal.NewFromFloat(e.StackRate)))
		return ratio(e.Numerator, reduced)
	default:
		return ratio(e.Numerator, e.Denominator.Sub(paid))
	}
}

// Failing 触发器是否仍处于违约（未完全补救）
func (e *Evaluation) Failing() bool {
	return e.State == StateBreached || e.State == StateBreachedCuring
}

// Find 按ID查找评估结果
func Find(evals []Evaluation, id string) (*Evaluation, bool) {
	for i := range evals {
		if evals[i].ID == id {
			return &evals[i], true
		}
	}
	return nil, false
}

// stack 顺位不低于 classRank 的付息票据
func stack(tranches []model.Tranche, classRank int) []model.Tranche {
	var out []model.Tranche
	for _, t := range tranches {
		if t.IsRated() && t.Rank <= classRank {
			out = append(out, t)
		}
	}
	return out
}

// Unbounded 分母为零时的比率
const Unbounded = math.MaxFloat64

// ratio 分母不为正时返回 Unbounded
func ratio(num, den decimal.Decimal) float64 {
	if !den.IsPositive() {
		return Unbounded
	}
	r, _ := model.Ratio(num, den)
	return r
}
