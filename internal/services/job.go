package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/life2you_mini/cloengine/internal/engine"
)

// Job 队列中的一次交易运行
type Job struct {
	ID         string          `json:"id"`
	Scenario   string          `json:"scenario,omitempty"`
	Input      engine.RunInput `json:"input"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// JobQueue 任务队列
type JobQueue interface {
	PushTask(ctx context.Context, queue string, task interface{}) error
	PopTask(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)
	GetQueueLength(ctx context.Context, queue string) (int64, error)
	PushDelayedTask(ctx context.Context, queue string, task interface{}, delay time.Duration) error
	MoveReadyTasks(ctx context.Context, queue string) (int, error)
}

// Enqueue 为运行输入分配任务ID并推入队列
func Enqueue(ctx context.Context, q JobQueue, queue, scenario string, in engine.RunInput) (string, error) {
	job := Job{
		ID:         uuid.NewString(),
		Scenario:   scenario,
		Input:      in,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := q.PushTask(ctx, queue, job); err != nil {
		return "", fmt.Errorf("推送任务失败: %w", err)
	}
	return job.ID, nil
}
