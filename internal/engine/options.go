package engine

import (
	"runtime"
	"time"

	"github.com/life2you_mini/cloengine/internal/model"
)

// RunInput 单次运行的全部输入，运行开始前已完全解析
type RunInput struct {
	Deal         *model.Deal        `json:"deal" yaml:"deal"`
	Assets       []model.Asset      `json:"assets" yaml:"assets"`
	Assumptions  model.Assumptions  `json:"assumptions" yaml:"assumptions"`
	Curve        []model.CurvePoint `json:"curve" yaml:"curve"`
	AnalysisDate time.Time          `json:"analysis_date" yaml:"analysis_date"`
	Periods      int                `json:"periods" yaml:"periods"`
}

// Progress 期间粒度的进度
type Progress struct {
	DealID string    `json:"deal_id"`
	Period int       `json:"period"`
	Total  int       `json:"total"`
	Date   time.Time `json:"date"`
}

// ProgressFunc 每期结束后回调
type ProgressFunc func(Progress)

// Observer 运行指标采集
type Observer interface {
	PeriodCompleted(dealID string, period int, elapsed time.Duration)
	RunCompleted(dealID string, periods int, warnings int, err error)
}

type settings struct {
	workers  int
	progress ProgressFunc
	observer Observer
}

// Option 引擎或单次运行的可选参数
type Option func(*settings)

// WithWorkers 单期内资产投影的并发上限
func WithWorkers(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithProgress 设置进度回调
func WithProgress(fn ProgressFunc) Option {
	return func(s *settings) {
		s.progress = fn
	}
}

// WithObserver 设置指标采集器
func WithObserver(o Observer) Option {
	return func(s *settings) {
		s.observer = o
	}
}

func defaultSettings() settings {
	return settings{workers: runtime.NumCPU()}
}
