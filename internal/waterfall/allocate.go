package waterfall

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/life2you_mini/cloengine/internal/model"
)

// allocate 按权重将金额分配到分，余下的分按小数部分从大到小分配，相同时按定义顺序
func allocate(amount decimal.Decimal, weights []decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(weights))
	for i := range out {
		out[i] = decimal.Zero
	}
	total := decimal.Zero
	for _, w := range weights {
		if w.IsPositive() {
			total = total.Add(w)
		}
	}
	amount = model.Money(amount)
	if !total.IsPositive() || !amount.IsPositive() {
		return out
	}

	type rem struct {
		idx  int
		frac decimal.Decimal
	}
	cents := amount.Shift(model.MoneyPlaces)
	assigned := decimal.Zero
	rems := make([]rem, 0, len(weights))
	for i, w := range weights {
		if !w.IsPositive() {
			continue
		}
		exact := cents.Mul(w).Div(total)
		floor := exact.Floor()
		out[i] = floor
		assigned = assigned.Add(floor)
		rems = append(rems, rem{idx: i, frac: exact.Sub(floor)})
	}
	sort.SliceStable(rems, func(a, b int) bool {
		return rems[a].frac.GreaterThan(rems[b].frac)
	})

	left := cents.Sub(assigned).IntPart()
	for k := 0; k < len(rems) && left > 0; k++ {
		out[rems[k].idx] = out[rems[k].idx].Add(decimal.NewFromInt(1))
		left--
	}
	for i := range out {
		out[i] = out[i].Shift(-model.MoneyPlaces)
	}
	return out
}

// payProRata 可用资金足额时全额支付，否则按应付金额比例分配
func payProRata(available decimal.Decimal, dues []decimal.Decimal) []decimal.Decimal {
	total := decimal.Zero
	for _, d := range dues {
		total = total.Add(d)
	}
	if available.GreaterThanOrEqual(total) {
		out := make([]decimal.Decimal, len(dues))
		copy(out, dues)
		return out
	}
	return allocate(available, dues)
}

func sum(ds []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, d := range ds {
		total = total.Add(d)
	}
	return total
}
