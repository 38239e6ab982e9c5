package model

import (
	"time"
)

// 运行记录状态
const (
	RunSucceeded = "SUCCEEDED"
	RunFailed    = "FAILED"
	RunRetrying  = "RETRYING"
)

// RunRecord 队列任务的运行记录，与完整结果分开存储便于列表查询
type RunRecord struct {
	JobID    string `json:"job_id"`
	RunID    string `json:"run_id,omitempty"` // 配置错误时为空
	DealID   string `json:"deal_id"`
	Scenario string `json:"scenario,omitempty"`
	Status   string `json:"status"`
	Attempt  int    `json:"attempt"`
	Error    string `json:"error,omitempty"`

	// 错误分类：config / invariant / canceled / other
	ErrorKind string `json:"error_kind,omitempty"`

	Periods      int      `json:"periods"`
	Warnings     int      `json:"warnings"`
	StoppedEarly bool     `json:"stopped_early,omitempty"`
	StopReason   string   `json:"stop_reason,omitempty"`
	EquityIRR    *float64 `json:"equity_irr,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration 运行耗时
func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
