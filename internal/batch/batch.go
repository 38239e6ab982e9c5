package batch

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/life2you_mini/cloengine/internal/engine"
)

// Scenario 一次独立的交易运行（交易配置 + 假设）
type Scenario struct {
	Name  string          `json:"name" yaml:"name"`
	Input engine.RunInput `json:"input" yaml:"input"`
}

// Result 单个情景的运行结果，失败时 Run 可能包含已完成期间
type Result struct {
	Name     string            `json:"name"`
	Run      *engine.RunResult `json:"run,omitempty"`
	Err      error             `json:"-"`
	Error    string            `json:"error,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// ProgressFunc 按情景汇报期间进度
type ProgressFunc func(scenario string, p engine.Progress)

// Runner 并发执行多个情景，每个情景拥有独立的运行状态
type Runner struct {
	engine   *engine.Engine
	logger   *zap.Logger
	workers  int
	progress ProgressFunc
	opts     []engine.Option
}

// Option Runner 配置项
type Option func(*Runner)

// WithWorkers 同时运行的情景数量
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithProgress 设置进度回调，可能被多个 goroutine 并发调用
func WithProgress(fn ProgressFunc) Option {
	return func(r *Runner) {
		r.progress = fn
	}
}

// WithEngineOptions 传递给每次运行的引擎选项
func WithEngineOptions(opts ...engine.Option) Option {
	return func(r *Runner) {
		r.opts = append(r.opts, opts...)
	}
}

// NewRunner 创建批量运行器
func NewRunner(eng *engine.Engine, logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		engine:  eng,
		logger:  logger.With(zap.String("component", "batch")),
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run 执行全部情景，结果与输入顺序一致
// 单个情景失败只记录在其结果中；ctx 取消后未开始的情景直接返回取消错误
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) []Result {
	results := make([]Result, len(scenarios))
	var failed int64

	g := new(errgroup.Group)
	g.SetLimit(r.workers)
	for i := range scenarios {
		i := i
		g.Go(func() error {
			results[i] = r.runOne(ctx, scenarios[i])
			if results[i].Err != nil {
				atomic.AddInt64(&failed, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	r.logger.Info("批量运行完成",
		zap.Int("scenarios", len(scenarios)),
		zap.Int64("failed", failed))
	return results
}

func (r *Runner) runOne(ctx context.Context, sc Scenario) Result {
	res := Result{Name: sc.Name}
	if err := ctx.Err(); err != nil {
		res.Err = err
		res.Error = err.Error()
		return res
	}

	opts := append([]engine.Option(nil), r.opts...)
	if r.progress != nil {
		name := sc.Name
		opts = append(opts, engine.WithProgress(func(p engine.Progress) {
			r.progress(name, p)
		}))
	}

	started := time.Now()
	run, err := r.engine.Run(ctx, sc.Input, opts...)
	res.Duration = time.Since(started)
	res.Run = run
	if err != nil {
		r.logger.Warn("情景运行失败", zap.String("scenario", sc.Name), zap.Error(err))
		res.Err = err
		res.Error = err.Error()
	}
	return res
}

// Failed 返回失败的情景结果
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
