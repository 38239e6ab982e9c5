package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockJobQueue 任务队列的模拟实现
type MockJobQueue struct {
	mock.Mock
}

// PushTask 推送任务的模拟实现
func (m *MockJobQueue) PushTask(ctx context.Context, queue string, task interface{}) error {
	args := m.Called(ctx, queue, task)
	return args.Error(0)
}

// PopTask 弹出任务的模拟实现
func (m *MockJobQueue) PopTask(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	args := m.Called(ctx, queue, timeout)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// GetQueueLength 队列长度的模拟实现
func (m *MockJobQueue) GetQueueLength(ctx context.Context, queue string) (int64, error) {
	args := m.Called(ctx, queue)
	return args.Get(0).(int64), args.Error(1)
}

// PushDelayedTask 推送延迟任务的模拟实现
func (m *MockJobQueue) PushDelayedTask(ctx context.Context, queue string, task interface{}, delay time.Duration) error {
	args := m.Called(ctx, queue, task, delay)
	return args.Error(0)
}

// MoveReadyTasks 搬运延迟任务的模拟实现
func (m *MockJobQueue) MoveReadyTasks(ctx context.Context, queue string) (int, error) {
	args := m.Called(ctx, queue)
	return args.Int(0), args.Error(1)
}

// MockJobLocker 任务锁的模拟实现
type MockJobLocker struct {
	mock.Mock
}

// Acquire 获取锁的模拟实现
func (m *MockJobLocker) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, owner, ttl)
	return args.Bool(0), args.Error(1)
}

// Release 释放锁的模拟实现
func (m *MockJobLocker) Release(ctx context.Context, key, owner string) (bool, error) {
	args := m.Called(ctx, key, owner)
	return args.Bool(0), args.Error(1)
}
