package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const delayedQueuePrefix = "delayed_"

// QueueService Redis 任务队列：LPUSH/BRPOP 的 FIFO 列表加一个按执行时间排序的延迟集合
type QueueService struct {
	client    *redis.Client
	keyPrefix string
}

// NewQueueService 创建新的队列服务
func NewQueueService(client *redis.Client, keyPrefix string) *QueueService {
	return &QueueService{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (q *QueueService) queueKey(queue string) string {
	return q.keyPrefix + "queue:" + queue
}

func (q *QueueService) delayedKey(queue string) string {
	return q.keyPrefix + "queue:" + delayedQueuePrefix + queue
}

// PushTask 将任务推送到队列
func (q *QueueService) PushTask(ctx context.Context, queue string, task interface{}) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("序列化任务失败: %w", err)
	}
	return q.client.LPush(ctx, q.queueKey(queue), data).Err()
}

// PopTask 从队列中弹出任务（阻塞方式），超时返回 nil, nil
func (q *QueueService) PopTask(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	result, err := q.client.BRPop(ctx, timeout, q.queueKey(queue)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	// BRPop 返回 [queueName, value]
	if len(result) < 2 {
		return nil, fmt.Errorf("从队列获取的数据结构不正确")
	}
	return []byte(result[1]), nil
}

// GetQueueLength 获取队列长度
func (q *QueueService) GetQueueLength(ctx context.Context, queue string) (int64, error) {
	return q.client.LLen(ctx, q.queueKey(queue)).Result()
}

// ClearQueue 清空队列及其延迟集合
func (q *QueueService) ClearQueue(ctx context.Context, queue string) error {
	return q.client.Del(ctx, q.queueKey(queue), q.delayedKey(queue)).Err()
}

// PushDelayedTask 推送延迟任务，delay 之后由 MoveReadyTasks 移回队列
func (q *QueueService) PushDelayedTask(ctx context.Context, queue string, task interface{}, delay time.Duration) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("序列化任务失败: %w", err)
	}
	return q.client.ZAdd(ctx, q.delayedKey(queue), redis.Z{
		Score:  float64(time.Now().Add(delay).Unix()),
		Member: data,
	}).Err()
}

// moveReadyScript 原子地取出到期成员并推回队列，多个 worker 同时搬运时每个任务只入队一次
// KEYS[1] 延迟集合 KEYS[2] 队列 ARGV[1] 当前时间戳
var moveReadyScript = redis.NewScript(`
local tasks = redis.call("zrangebyscore", KEYS[1], "0", ARGV[1])
for _, t in ipairs(tasks) do
	if redis.call("zrem", KEYS[1], t) == 1 then
		redis.call("lpush", KEYS[2], t)
	end
end
return #tasks`)

// MoveReadyTasks 将到期的延迟任务移回常规队列，返回移动数量
func (q *QueueService) MoveReadyTasks(ctx context.Context, queue string) (int, error) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	n, err := moveReadyScript.Run(ctx, q.client, []string{q.delayedKey(queue), q.queueKey(queue)}, now).Int()
	if err != nil {
		return 0, fmt.Errorf("搬运延迟任务失败: %w", err)
	}
	return n, nil
}
