package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/life2you_mini/cloengine/internal/concentration"
	"github.com/life2you_mini/cloengine/internal/dates"
	"github.com/life2you_mini/cloengine/internal/incentive"
	"github.com/life2you_mini/cloengine/internal/model"
	"github.com/life2you_mini/cloengine/internal/pool"
	"github.com/life2you_mini/cloengine/internal/projector"
	"github.com/life2you_mini/cloengine/internal/trigger"
	"github.com/life2you_mini/cloengine/internal/waterfall"
)

// Engine 交易现金流模拟引擎，本身无状态，可被多个运行并发使用
type Engine struct {
	logger   *zap.Logger
	defaults settings
}

// New 创建引擎
func New(logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return &Engine{
		logger:   logger.With(zap.String("component", "engine")),
		defaults: s,
	}
}

// run 单次运行的私有状态
type run struct {
	in       RunInput
	deal     *model.Deal
	opts     settings
	logger   *zap.Logger
	prepared *prepared

	proj   *projector.Projector
	assets []*projector.AssetState
	liab   *waterfall.State
	fees   *incentive.Calculator
	dates  []time.Time

	warnings []model.Warning
	seen     map[string]bool
	result   *RunResult
}

// Run 按期间顺序模拟整笔交易
// 配置错误在第一期之前返回；不变量违反时返回已完成期间的结果与错误；取消只在期间之间生效
func (e *Engine) Run(ctx context.Context, in RunInput, opts ...Option) (*RunResult, error) {
	s := e.defaults
	for _, opt := range opts {
		opt(&s)
	}

	p, err := validate(in)
	if err != nil {
		e.logger.Error("交易配置无效", zap.Error(err))
		return nil, fmt.Errorf("校验交易配置失败: %w", err)
	}

	r, err := e.newRun(in, s, p)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	err = r.simulate(ctx)
	r.finish()

	if s.observer != nil {
		s.observer.RunCompleted(r.deal.ID, len(r.result.Periods), len(r.result.Warnings), err)
	}
	if err != nil {
		return r.result, err
	}
	r.logger.Info("交易模拟完成",
		zap.Int("periods", r.result.Summary.PeriodsRun),
		zap.Int("warnings", len(r.result.Warnings)),
		zap.Duration("elapsed", time.Since(started)))
	return r.result, nil
}

func (e *Engine) newRun(in RunInput, s settings, p *prepared) (*run, error) {
	deal := in.Deal
	runID := uuid.NewString()
	logger := e.logger.With(zap.String("deal_id", deal.ID), zap.String("run_id", runID))

	feeCfg := deal.Incentive
	feeCfg.EquityInvestment = deal.EquityInvestment()
	fees, err := incentive.New(deal.ID, feeCfg, closingDate(in), logger)
	if err != nil {
		return nil, fmt.Errorf("创建激励费计算器失败: %w", err)
	}

	states := make([]*projector.AssetState, len(in.Assets))
	for i := range in.Assets {
		a := in.Assets[i]
		states[i] = projector.NewAssetState(&a, in.AnalysisDate)
	}

	r := &run{
		in:       in,
		deal:     deal,
		opts:     s,
		logger:   logger,
		prepared: p,
		proj:     projector.New(p.curve, strings.ToUpper(deal.IndexResetMode)),
		assets:   states,
		liab:     waterfall.NewState(deal),
		fees:     fees,
		dates:    dates.Schedule(in.AnalysisDate, deal.PaymentFrequency, in.Periods),
		seen:     make(map[string]bool),
		result: &RunResult{
			RunID:        runID,
			DealID:       deal.ID,
			AnalysisDate: in.AnalysisDate,
			Variant:      p.variant.Name,
			Summary:      newSummary(),
		},
	}

	// 分析日原始组合的集中度测试
	if p.conc != nil {
		results, warnings := r.concentration(in.AnalysisDate, 0)
		r.result.Concentration = results
		r.addWarnings(warnings)
	}
	return r, nil
}

// closingDate 激励费折现起点：交割日，未给出时使用分析日
func closingDate(in RunInput) time.Time {
	if !in.Deal.ClosingDate.IsZero() {
		return in.Deal.ClosingDate
	}
	return in.AnalysisDate
}

func (r *run) simulate(ctx context.Context) error {
	for i := 1; i <= r.in.Periods; i++ {
		if err := ctx.Err(); err != nil {
			r.logger.Warn("运行已取消", zap.Int("period", i))
			return fmt.Errorf("交易 %s 在第 %d 期前取消: %w", r.deal.ID, i, err)
		}

		started := time.Now()
		pr, stop, err := r.period(ctx, i)
		if pr != nil {
			r.result.Periods = append(r.result.Periods, *pr)
			r.result.Summary.add(pr)
		}
		if err != nil {
			r.logger.Error("期间模拟失败", zap.Int("period", i), zap.Error(err))
			return err
		}

		if r.opts.observer != nil {
			r.opts.observer.PeriodCompleted(r.deal.ID, i, time.Since(started))
		}
		if r.opts.progress != nil {
			r.opts.progress(Progress{DealID: r.deal.ID, Period: i, Total: r.in.Periods, Date: pr.PayDate})
		}
		if stop != "" {
			if i < r.in.Periods {
				r.result.Summary.StoppedEarly = true
				r.result.Summary.StopReason = stop
				r.logger.Info("交易提前结束", zap.Int("period", i), zap.String("reason", stop))
			}
			return nil
		}
	}
	return nil
}

// period 模拟单个期间：投影 -> 汇总 -> 应付 -> 触发器 -> 分配 -> 检查 -> 滚动
func (r *run) period(ctx context.Context, i int) (*PeriodResult, string, error) {
	start, end := r.dates[i-1], r.dates[i]
	deal := r.deal
	liquidate := deal.Call.Date != nil && !deal.Call.Date.After(end)

	flows, states, err := r.project(ctx, projector.Period{
		Index:     i,
		Start:     start,
		End:       end,
		Liquidate: liquidate,
		SalePrice: deal.Call.Price,
	})
	if err != nil {
		return nil, "", err
	}

	pp := pool.Aggregate(i, end, flows, states, pool.StatsInput{
		AsOf:        end,
		OC:          deal.OC,
		RecoveryFor: r.assumedRecovery,
	})
	if err := checkPool(deal.ID, &pp, flows, r.assets); err != nil {
		return nil, "", err
	}

	exhausted := r.poolExhausted()
	final := i == r.in.Periods || liquidate || exhausted

	dues := waterfall.ComputeDues(deal, r.liab.Tranches, pp.BeginningPar, start, end, r.indexRate)
	evals := trigger.EvaluateAll(deal.Triggers, trigger.Inputs{
		// 分子包含本期收到、尚未分配的本金
		AdjustedPar:      pp.Stats.AdjustedPar.Add(pp.PrincipalProceeds),
		InterestProceeds: pp.InterestProceeds,
		SeniorExpenses:   dues.SeniorExpenses,
		SeniorMgmtFee:    dues.SeniorMgmtFee,
		Tranches:         r.liab.Tranches,
		InterestDue:      dues.TrancheInterest,
		YearFraction:     dates.YearFraction(start, end, r.dealDayCount()),
	})

	r.fees.Calc(end)
	prev := r.liab.Balances()
	exec := waterfall.Execute(r.prepared.variant, deal.Waterfall, r.liab, waterfall.Params{
		DealID:      deal.ID,
		Period:      i,
		Date:        end,
		Final:       final,
		Reinvesting: r.reinvesting(end),
		EquityIRR:   r.fees.LastIRR(),
		Dues:        dues,
		Triggers:    evals,
		Distributor: r.fees,
	}, pp.InterestProceeds, pp.PrincipalProceeds)

	if err := checkExecution(deal.ID, exec, prev, r.liab); err != nil {
		return nil, "", err
	}

	feeState, feeWarnings := r.fees.AdvancePeriod()

	if exec.Reinvested.IsPositive() {
		r.reinvest(i, end, exec.Reinvested)
	}

	pr := &PeriodResult{
		Period:           i,
		StartDate:        start,
		PayDate:          end,
		Final:            final,
		Pool:             pp,
		Dues:             dues,
		Execution:        exec,
		Triggers:         exec.Triggers,
		Incentive:        feeState,
		TrancheBalances:  r.liab.Balances(),
		DeferredInterest: deferredInterest(r.liab),
		DeferredFees:     r.liab.DeferredFees,
	}
	pr.Warnings = append(pr.Warnings, pp.Warnings...)
	pr.Warnings = append(pr.Warnings, exec.Warnings...)
	pr.Warnings = append(pr.Warnings, feeWarnings...)
	pr.Warnings = append(pr.Warnings, r.curveWarnings(i, start)...)

	if r.prepared.conc != nil && deal.Concentration.EveryPeriod && !exhausted {
		results, warnings := r.concentration(end, i)
		pr.Concentration = results
		pr.Warnings = append(pr.Warnings, warnings...)
	}
	r.addWarnings(pr.Warnings)

	r.logger.Debug("期间模拟完成",
		zap.Int("period", i),
		zap.String("interest", pp.InterestProceeds.String()),
		zap.String("principal", pp.PrincipalProceeds.String()),
		zap.String("equity", exec.EquityDistribution.String()),
		zap.Bool("final", final))

	switch {
	case liquidate:
		return pr, StopCalled, nil
	case exhausted:
		return pr, StopPoolExhausted, nil
	}
	return pr, "", nil
}

// project 并发投影本期所有未结束的资产，结果按资产顺序排列
func (r *run) project(ctx context.Context, per projector.Period) ([]model.CashFlowPeriod, []*projector.AssetState, error) {
	var live []*projector.AssetState
	for _, s := range r.assets {
		if !s.Done() {
			live = append(live, s)
		}
	}

	flows := make([]model.CashFlowPeriod, len(live))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.workers)
	for k, s := range live {
		k, s := k, s
		g.Go(func() error {
			flows[k] = r.proj.Project(s, r.in.Assumptions.For(s.Asset), per)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("第 %d 期资产投影失败: %w", per.Index, err)
	}
	return flows, r.assets, nil
}

// poolExhausted 全部资产已退出且没有待回收金额
func (r *run) poolExhausted() bool {
	for _, s := range r.assets {
		if !s.Done() {
			return false
		}
	}
	return true
}

func (r *run) reinvesting(end time.Time) bool {
	ri := r.deal.Reinvestment
	return !ri.End.IsZero() && !end.After(ri.End) && ri.TermYears > 0
}

// reinvest 按再投资模板购入新资产，下期开始投影
func (r *run) reinvest(period int, date time.Time, amount decimal.Decimal) {
	ri := r.deal.Reinvestment
	asset := &model.Asset{
		ID:               fmt.Sprintf("%s-RI-%03d", r.deal.ID, period),
		Par:              model.Money(amount),
		CouponType:       model.CouponFloating,
		Spread:           ri.Spread,
		Floor:            ri.Floor,
		Index:            "3M",
		Maturity:         dates.AddMonths(date, ri.TermYears*12),
		DayCount:         dates.Act360,
		PaymentFrequency: r.deal.PaymentFrequency,
		Amortization:     model.AmortBullet,
		MoodysRating:     ri.MoodysRating,
		Industry:         ri.Industry,
		Country:          ri.Country,
		Lien:             model.LienSeniorSecured,
	}
	asset.Obligor = asset.ID
	r.assets = append(r.assets, projector.NewAssetState(asset, date))
	r.logger.Debug("再投资购入资产", zap.String("asset_id", asset.ID), zap.String("par", asset.Par.String()))
}

func (r *run) concentration(asOf time.Time, period int) ([]concentration.Result, []model.Warning) {
	holdings := pool.Holdings(r.assets)
	stats, statWarnings := pool.ComputeStats(holdings, pool.StatsInput{
		AsOf:        asOf,
		OC:          r.deal.OC,
		RecoveryFor: r.assumedRecovery,
	})
	results, warnings := r.prepared.conc.Run(asOf, holdings, stats)
	if period == 0 {
		warnings = append(statWarnings, warnings...)
	}
	out := make([]model.Warning, len(warnings))
	for k, w := range warnings {
		out[k] = w.WithPeriod(period)
	}
	return results, out
}

// assumedRecovery 资产未给出回收率时的假设回收率（首期值）
func (r *run) assumedRecovery(a *model.Asset) float64 {
	set := r.in.Assumptions.For(a)
	switch {
	case len(set.Recovery) > 0:
		return set.Recovery[0]
	case len(set.Severity) > 0:
		return 1 - set.Severity[0]
	}
	return 0
}

// indexRate 票据浮动利率的基准，期限无效时退回即期利率
func (r *run) indexRate(reset time.Time, tenor string) float64 {
	c := r.prepared.curve
	rate, err := c.IndexRate(reset, tenor, strings.ToUpper(r.deal.IndexResetMode))
	if err != nil {
		return c.SpotRateAt(reset)
	}
	return rate
}

func (r *run) dealDayCount() string {
	if r.deal.DayCount != "" {
		return r.deal.DayCount
	}
	return dates.Act360
}

// curveWarnings 浮动利率重置日超出曲线最长期限时提示
func (r *run) curveWarnings(period int, reset time.Time) []model.Warning {
	c := r.prepared.curve
	if !c.BeyondLongEnd(c.TimeTo(reset)) || !r.hasFloating() {
		return nil
	}
	return []model.Warning{model.NewWarning(period, model.WarnCurveExtrapolated, "curve",
		"重置日 %s 超出收益率曲线最长期限，按末端利率水平外推", reset.Format("2006-01-02"))}
}

func (r *run) hasFloating() bool {
	for _, t := range r.liab.Tranches {
		if t.IsRated() && t.CouponType == model.CouponFloating {
			return true
		}
	}
	for _, s := range r.assets {
		if s.Active() && s.Asset.IsFloating() {
			return true
		}
	}
	return false
}

// addWarnings 运行级警告按代码与对象去重，保留首次出现
func (r *run) addWarnings(ws []model.Warning) {
	for _, w := range ws {
		key := w.Code + "|" + w.Subject
		if r.seen[key] {
			continue
		}
		r.seen[key] = true
		r.warnings = append(r.warnings, w)
	}
}

func (r *run) finish() {
	res := r.result
	res.Warnings = r.warnings
	res.Summary.WarningCount = len(r.warnings)
	res.Summary.ConcentrationFailures += len(concentration.Failures(res.Concentration))
	if len(res.Periods) == 0 {
		res.Summary.FinalTrancheBalances = r.liab.Balances()
		res.Summary.FinalDeferredInterest = deferredInterest(r.liab)
	}
}

func deferredInterest(st *waterfall.State) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(st.Tranches))
	for _, t := range st.Tranches {
		if t.IsRated() {
			out[t.ID] = t.DeferredInterest
		}
	}
	return out
}
