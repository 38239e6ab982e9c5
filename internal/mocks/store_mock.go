package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/life2you_mini/cloengine/internal/engine"
	"github.com/life2you_mini/cloengine/internal/model"
)

// MockResultStore 结果存储的模拟实现
type MockResultStore struct {
	mock.Mock
}

// Health 健康检查的模拟实现
func (m *MockResultStore) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close 关闭连接的模拟实现
func (m *MockResultStore) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// SaveRun 保存运行记录的模拟实现
func (m *MockResultStore) SaveRun(ctx context.Context, record *model.RunRecord, result *engine.RunResult) error {
	args := m.Called(ctx, record, result)
	return args.Error(0)
}

// GetRecord 获取运行记录的模拟实现
func (m *MockResultStore) GetRecord(ctx context.Context, jobID string) (*model.RunRecord, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RunRecord), args.Error(1)
}

// GetResult 获取运行结果的模拟实现
func (m *MockResultStore) GetResult(ctx context.Context, jobID string) (*engine.RunResult, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*engine.RunResult), args.Error(1)
}

// ListRuns 列出运行记录的模拟实现
func (m *MockResultStore) ListRuns(ctx context.Context, dealID string, limit int) ([]*model.RunRecord, error) {
	args := m.Called(ctx, dealID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.RunRecord), args.Error(1)
}
