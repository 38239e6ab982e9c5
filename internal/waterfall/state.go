package waterfall

import (
	"github.com/shopspring/decimal"

	"github.com/life2you_mini/cloengine/internal/model"
)

// equityPayee 没有次级票据时剩余收益的收款方
const equityPayee = "EQUITY"

// State 跨期间延续的负债与现金状态，由执行该运行的任务独占
type State struct {
	Tranches        []model.Tranche `json:"tranches"`
	DeferredFees    decimal.Decimal `json:"deferred_fees"`
	ClawbackReserve decimal.Decimal `json:"clawback_reserve"`
	TrappedCash     decimal.Decimal `json:"trapped_cash"` // 期末留存现金，下期进入利息资金
}

// NewState 由交易配置创建初始状态，余额未给出时使用发行金额
func NewState(deal *model.Deal) *State {
	tranches := deal.CloneTranches()
	for i := range tranches {
		if tranches[i].Balance.IsZero() {
			tranches[i].Balance = tranches[i].OriginalBalance
		}
		tranches[i].Balance = model.Money(tranches[i].Balance)
	}
	return &State{
		Tranches:        tranches,
		DeferredFees:    decimal.Zero,
		ClawbackReserve: decimal.Zero,
		TrappedCash:     model.Money(deal.BeginningCash),
	}
}

// Cash 期末留存现金合计（留存 + 回拨准备金）
func (s *State) Cash() decimal.Decimal {
	return s.TrappedCash.Add(s.ClawbackReserve)
}

// RatedBalance 付息票据余额合计
func (s *State) RatedBalance() decimal.Decimal {
	total := decimal.Zero
	for _, t := range s.Tranches {
		if t.IsRated() {
			total = total.Add(t.Balance)
		}
	}
	return total
}

// EquityPayee 剩余收益收款方：第一只次级票据
func (s *State) EquityPayee() string {
	for _, t := range s.Tranches {
		if t.Subordinated {
			return t.ID
		}
	}
	return equityPayee
}

// Balances 票据ID -> 余额快照
func (s *State) Balances() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(s.Tranches))
	for _, t := range s.Tranches {
		out[t.ID] = t.Balance
	}
	return out
}
