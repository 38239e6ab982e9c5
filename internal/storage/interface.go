package storage

import (
	"context"
	"errors"

	"github.com/life2you_mini/cloengine/internal/engine"
	"github.com/life2you_mini/cloengine/internal/model"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("记录不存在")

// ResultStore 运行记录与结果的存储层
type ResultStore interface {
	// 基础操作
	Health(ctx context.Context) error
	Close(ctx context.Context) error

	// SaveRun 保存运行记录，result 为 nil 时只保存记录（如配置错误）
	SaveRun(ctx context.Context, record *model.RunRecord, result *engine.RunResult) error
	GetRecord(ctx context.Context, jobID string) (*model.RunRecord, error)
	GetResult(ctx context.Context, jobID string) (*engine.RunResult, error)
	// ListRuns 按完成时间倒序列出交易的运行记录
	ListRuns(ctx context.Context, dealID string, limit int) ([]*model.RunRecord, error)
}
