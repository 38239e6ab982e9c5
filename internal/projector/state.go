package projector

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/life2you_mini/cloengine/internal/dates"
	"github.com/life2you_mini/cloengine/internal/model"
)

// pendingRecovery 尚未实现的违约回收
type pendingRecovery struct {
	Due    int
	Par    decimal.Decimal // 对应的违约面值
	Amount decimal.Decimal
}

// AssetState 资产在一次运行中的滚动状态，由执行该运行的任务独占
type AssetState struct {
	Asset   *model.Asset
	Balance decimal.Decimal
	Accrued decimal.Decimal // 已计未付利息
	Status  model.AssetStatus

	pending  []pendingRecovery
	payDates []time.Time
	warned   map[string]bool
	started  bool
}

// NewAssetState 以分析日为起点创建资产状态
func NewAssetState(asset *model.Asset, analysisDate time.Time) *AssetState {
	freq := asset.PaymentFrequency
	if !dates.ValidFrequency(freq) {
		freq = 4
	}
	return &AssetState{
		Asset:    asset,
		Balance:  model.Money(asset.Par),
		Status:   model.StatusPerforming,
		payDates: dates.BackwardSchedule(asset.Maturity, freq, analysisDate),
		warned:   make(map[string]bool),
	}
}

// Active 资产是否仍在活跃集合中（正常且有余额）
func (s *AssetState) Active() bool {
	return s.Status == model.StatusPerforming && s.Balance.IsPositive()
}

// PendingRecoveries 尚未实现的回收总额
func (s *AssetState) PendingRecoveries() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.pending {
		total = total.Add(p.Amount)
	}
	return total
}

// DefaultedPar 尚未回收的违约面值
func (s *AssetState) DefaultedPar() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.pending {
		total = total.Add(p.Par)
	}
	return total
}

// Done 资产已无余额且无待回收金额
func (s *AssetState) Done() bool {
	return !s.Active() && len(s.pending) == 0
}

// takeRecoveries 取出到期（或全部）的回收
func (s *AssetState) takeRecoveries(period int, all bool) decimal.Decimal {
	total := decimal.Zero
	kept := s.pending[:0]
	for _, p := range s.pending {
		if all || p.Due <= period {
			total = total.Add(p.Amount)
			continue
		}
		kept = append(kept, p)
	}
	s.pending = kept
	return total
}

// warnOnce 每个资产每类警告只记录一次
func (s *AssetState) warnOnce(key string) bool {
	if s.warned[key] {
		return false
	}
	s.warned[key] = true
	return true
}
