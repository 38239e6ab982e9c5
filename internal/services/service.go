package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/life2you_mini/cloengine/internal/config"
	"github.com/life2you_mini/cloengine/internal/engine"
	"github.com/life2you_mini/cloengine/internal/metrics"
	"github.com/life2you_mini/cloengine/internal/model"
	"github.com/life2you_mini/cloengine/internal/storage"
)

// promoteInterval 延迟任务搬回队列的检查间隔
const promoteInterval = time.Second

// JobLocker 防止同一任务被多个 worker 重复运行
type JobLocker interface {
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) (bool, error)
}

// lockTTL 任务锁的过期时间，覆盖最长的单次运行
const lockTTL = 30 * time.Minute

// WorkerService 从队列取出交易运行任务，模拟后保存结果
type WorkerService struct {
	ctx     context.Context
	cancel  context.CancelFunc
	cfg     config.WorkerConfig
	logger  *zap.Logger
	queue   JobQueue
	store   storage.ResultStore
	engine  *engine.Engine
	metrics *metrics.Metrics
	locker  JobLocker
	owner   string
	wg      sync.WaitGroup
}

// NewWorkerService 创建 worker 服务
func NewWorkerService(
	parentCtx context.Context,
	cfg config.WorkerConfig,
	logger *zap.Logger,
	queue JobQueue,
	store storage.ResultStore,
	eng *engine.Engine,
	m *metrics.Metrics,
) *WorkerService {
	ctx, cancel := context.WithCancel(parentCtx)
	if m == nil {
		m = metrics.New()
	}
	return &WorkerService{
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "worker")),
		queue:   queue,
		store:   store,
		engine:  eng,
		metrics: m,
	}
}

// SetLocker 启用任务锁，owner 标识当前 worker 进程
func (s *WorkerService) SetLocker(l JobLocker, owner string) {
	s.locker = l
	s.owner = owner
}

// Start 启动消费协程与延迟任务搬运协程
func (s *WorkerService) Start() {
	s.logger.Info("启动交易模拟 worker",
		zap.String("queue", s.cfg.Queue),
		zap.Int("concurrency", s.cfg.Concurrency))

	for i := 0; i < s.cfg.Concurrency; i++ {
		s.wg.Add(1)
		go func(id int) {
			defer s.wg.Done()
			s.consume(id)
		}(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.promote()
	}()
}

// Stop 停止服务，等待进行中的任务在 ctx 超时前结束
func (s *WorkerService) Stop(ctx context.Context) error {
	s.logger.Info("停止交易模拟 worker")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("等待 worker 退出超时: %w", ctx.Err())
	}
}

func (s *WorkerService) consume(id int) {
	logger := s.logger.With(zap.Int("worker", id))
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		if _, err := s.ProcessNext(s.ctx); err != nil && s.ctx.Err() == nil {
			logger.Error("处理任务失败", zap.Error(err))
			// 队列不可用时避免空转
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

func (s *WorkerService) promote() {
	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.queue.MoveReadyTasks(s.ctx, s.cfg.Queue); err != nil {
				s.logger.Warn("搬运延迟任务失败", zap.Error(err))
			} else if n > 0 {
				s.logger.Info("延迟任务已重新入队", zap.Int("count", n))
			}
			if depth, err := s.queue.GetQueueLength(s.ctx, s.cfg.Queue); err == nil {
				s.metrics.QueueDepth.Set(float64(depth))
			}
		}
	}
}

// ProcessNext 处理一个任务，队列为空（超时）时返回 false
func (s *WorkerService) ProcessNext(ctx context.Context) (bool, error) {
	data, err := s.queue.PopTask(ctx, s.cfg.Queue, s.cfg.PopTimeout())
	if err != nil {
		return false, fmt.Errorf("从队列弹出任务失败: %w", err)
	}
	if data == nil {
		return false, nil
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		s.metrics.JobDone(err)
		s.logger.Error("任务格式错误，丢弃", zap.Error(err), zap.Int("bytes", len(data)))
		return true, nil
	}
	return true, s.Handle(ctx, job)
}

// Handle 运行一个任务并保存记录；可重试的失败延迟重新入队
func (s *WorkerService) Handle(ctx context.Context, job Job) error {
	if s.locker != nil {
		key := fmt.Sprintf("job:%s:%d", job.ID, job.Attempt)
		ok, err := s.locker.Acquire(ctx, key, s.owner, lockTTL)
		if err != nil {
			return fmt.Errorf("获取任务锁失败: %w", err)
		}
		if !ok {
			s.logger.Warn("任务已被其他 worker 处理，跳过", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
			return nil
		}
		defer func() {
			if _, err := s.locker.Release(context.WithoutCancel(ctx), key, s.owner); err != nil {
				s.logger.Warn("释放任务锁失败", zap.String("job_id", job.ID), zap.Error(err))
			}
		}()
	}

	s.metrics.ActiveWorker.Inc()
	defer s.metrics.ActiveWorker.Dec()

	dealID := ""
	if job.Input.Deal != nil {
		dealID = job.Input.Deal.ID
	}
	logger := s.logger.With(zap.String("job_id", job.ID), zap.String("deal_id", dealID), zap.Int("attempt", job.Attempt))
	logger.Info("开始运行任务", zap.String("scenario", job.Scenario))

	record := &model.RunRecord{
		JobID:     job.ID,
		DealID:    dealID,
		Scenario:  job.Scenario,
		Attempt:   job.Attempt,
		StartedAt: time.Now().UTC(),
	}
	result, runErr := s.engine.Run(ctx, job.Input, engine.WithObserver(s.metrics))
	record.FinishedAt = time.Now().UTC()
	fillRecord(record, result, runErr)

	// 关闭期间被取消的任务也要落库并重新入队
	persistCtx := context.WithoutCancel(ctx)
	if runErr != nil && model.Retryable(runErr) && job.Attempt < s.cfg.MaxAttempts {
		record.Status = model.RunRetrying
		retry := job
		retry.Attempt++
		if err := s.queue.PushDelayedTask(persistCtx, s.cfg.Queue, retry, s.cfg.RetryDelay()); err != nil {
			return fmt.Errorf("任务 %s 重新入队失败: %w", job.ID, err)
		}
		logger.Warn("任务失败，稍后重试", zap.Error(runErr), zap.Duration("delay", s.cfg.RetryDelay()))
	}

	s.metrics.JobDone(runErr)
	if err := s.store.SaveRun(persistCtx, record, result); err != nil {
		return fmt.Errorf("保存任务 %s 结果失败: %w", job.ID, err)
	}

	if runErr != nil {
		logger.Error("任务运行失败", zap.String("error_kind", record.ErrorKind), zap.Error(runErr))
		return nil
	}
	logger.Info("任务完成",
		zap.Int("periods", record.Periods),
		zap.Int("warnings", record.Warnings),
		zap.Duration("elapsed", record.Duration()))
	return nil
}

// fillRecord 由运行结果填充记录
func fillRecord(record *model.RunRecord, result *engine.RunResult, runErr error) {
	record.Status = model.RunSucceeded
	if runErr != nil {
		record.Status = model.RunFailed
		record.Error = runErr.Error()
		record.ErrorKind = model.ErrorKind(runErr)
	}
	if result == nil {
		return
	}
	record.RunID = result.RunID
	record.Periods = result.Summary.PeriodsRun
	record.Warnings = result.Summary.WarningCount
	record.StoppedEarly = result.Summary.StoppedEarly
	record.StopReason = result.Summary.StopReason
	record.EquityIRR = result.Summary.EquityIRR
}

// IsNotFound 是否为记录不存在
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
