package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/life2you_mini/cloengine/internal/engine"
	"github.com/life2you_mini/cloengine/internal/model"
)

// Redis 键前缀
const (
	keyRecordPrefix = "run:record:"
	keyResultPrefix = "run:result:"
	keyDealRuns     = "run:deal:"
)

// RedisStorage Redis存储实现
type RedisStorage struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedisStorage 创建Redis存储，ttl 为 0 时不过期
func NewRedisStorage(client *redis.Client, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisStorage {
	return &RedisStorage{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger.With(zap.String("component", "storage")),
	}
}

// Health 检查Redis健康状态
func (s *RedisStorage) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close 关闭Redis连接
func (s *RedisStorage) Close(ctx context.Context) error {
	if err := s.client.Close(); err != nil {
		s.logger.Error("关闭Redis连接失败", zap.Error(err))
		return fmt.Errorf("关闭Redis连接失败: %w", err)
	}
	s.logger.Info("Redis连接已关闭")
	return nil
}

// SaveRun 保存运行记录与完整结果，并按完成时间加入交易索引
func (s *RedisStorage) SaveRun(ctx context.Context, record *model.RunRecord, result *engine.RunResult) error {
	recordData, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化运行记录失败: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(keyRecordPrefix, record.JobID), recordData, s.ttl)
	if result != nil {
		resultData, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("序列化运行结果失败: %w", err)
		}
		pipe.Set(ctx, s.key(keyResultPrefix, record.JobID), resultData, s.ttl)
	}

	indexKey := s.key(keyDealRuns, record.DealID)
	pipe.ZAdd(ctx, indexKey, redis.Z{
		Score:  float64(record.FinishedAt.Unix()),
		Member: record.JobID,
	})
	if s.ttl > 0 {
		pipe.Expire(ctx, indexKey, s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("保存运行记录失败: %w", err)
	}
	s.logger.Debug("运行记录已保存",
		zap.String("job_id", record.JobID),
		zap.String("deal_id", record.DealID),
		zap.String("status", record.Status))
	return nil
}

// GetRecord 获取运行记录
func (s *RedisStorage) GetRecord(ctx context.Context, jobID string) (*model.RunRecord, error) {
	var record model.RunRecord
	if err := s.getJSON(ctx, s.key(keyRecordPrefix, jobID), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// GetResult 获取完整运行结果
func (s *RedisStorage) GetResult(ctx context.Context, jobID string) (*engine.RunResult, error) {
	var result engine.RunResult
	if err := s.getJSON(ctx, s.key(keyResultPrefix, jobID), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListRuns 按完成时间倒序列出交易的运行记录，已过期的记录跳过
func (s *RedisStorage) ListRuns(ctx context.Context, dealID string, limit int) ([]*model.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	ids, err := s.client.ZRevRange(ctx, s.key(keyDealRuns, dealID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("获取交易运行索引失败: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(keyRecordPrefix, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("批量获取运行记录失败: %w", err)
	}

	records := make([]*model.RunRecord, 0, len(values))
	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}
		var record model.RunRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			s.logger.Warn("解析运行记录失败", zap.String("job_id", ids[i]), zap.Error(err))
			continue
		}
		records = append(records, &record)
	}
	return records, nil
}

func (s *RedisStorage) key(prefix, id string) string {
	return s.keyPrefix + prefix + id
}

func (s *RedisStorage) getJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("读取 %s 失败: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	return nil
}
