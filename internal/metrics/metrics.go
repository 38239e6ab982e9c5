// Package metrics 运行指标，实现 engine.Observer 并供 worker 暴露给 Prometheus
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cloengine"

// 运行结果标签
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Metrics 指标集合
type Metrics struct {
	registry *prometheus.Registry

	// 运行计数，按结果区分
	RunsTotal *prometheus.CounterVec
	// 单期模拟耗时
	PeriodDuration prometheus.Histogram
	// 每次运行的期数
	PeriodsPerRun prometheus.Histogram
	// 运行产生的去重警告数
	WarningsTotal prometheus.Counter

	// 队列任务
	JobsTotal    *prometheus.CounterVec
	QueueDepth   prometheus.Gauge
	ActiveWorker prometheus.Gauge
}

// New 创建指标并注册到独立的 registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total deal runs by outcome",
		}, []string{"status"}),
		PeriodDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "period_duration_seconds",
			Help:      "Time spent simulating one payment period",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		PeriodsPerRun: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "periods_per_run",
			Help:      "Number of periods completed per run",
			Buckets:   []float64{4, 8, 16, 32, 48, 64, 96},
		}),
		WarningsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Total deduplicated run warnings",
		}),
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Total queued jobs processed by outcome",
		}, []string{"status"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_depth",
			Help:      "Pending jobs in the scenario queue",
		}),
		ActiveWorker: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "active_jobs",
			Help:      "Jobs currently being simulated",
		}),
	}
	m.registry.MustRegister(
		m.RunsTotal,
		m.PeriodDuration,
		m.PeriodsPerRun,
		m.WarningsTotal,
		m.JobsTotal,
		m.QueueDepth,
		m.ActiveWorker,
	)
	return m
}

// PeriodCompleted 实现 engine.Observer
func (m *Metrics) PeriodCompleted(_ string, _ int, elapsed time.Duration) {
	m.PeriodDuration.Observe(elapsed.Seconds())
}

// RunCompleted 实现 engine.Observer
func (m *Metrics) RunCompleted(_ string, periods, warnings int, err error) {
	m.RunsTotal.WithLabelValues(status(err)).Inc()
	m.PeriodsPerRun.Observe(float64(periods))
	m.WarningsTotal.Add(float64(warnings))
}

// JobDone 记录一个队列任务的结果
func (m *Metrics) JobDone(err error) {
	m.JobsTotal.WithLabelValues(status(err)).Inc()
}

// Handler Prometheus 抓取入口
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回底层 registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func status(err error) string {
	if err != nil {
		return StatusFailed
	}
	return StatusSuccess
}
