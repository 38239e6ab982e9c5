package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientOptions Redis客户端配置选项
type ClientOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient 创建新的Redis客户端并测试连接
func NewRedisClient(ctx context.Context, opts ClientOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("无法连接到Redis %s: %w", opts.Addr, err)
	}
	return client, nil
}

// releaseScript 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

// Locker 基于 SETNX 的分布式锁
type Locker struct {
	client    *redis.Client
	keyPrefix string
}

// NewLocker 创建分布式锁
func NewLocker(client *redis.Client, keyPrefix string) *Locker {
	return &Locker{client: client, keyPrefix: keyPrefix}
}

// Acquire 获取锁，已被占用时返回 false
func (l *Locker) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.keyPrefix+"lock:"+key, owner, ttl).Result()
}

// Release 释放锁，锁已过期或被他人持有时返回 false
func (l *Locker) Release(ctx context.Context, key, owner string) (bool, error) {
	n, err := releaseScript.Run(ctx, l.client, []string{l.keyPrefix + "lock:" + key}, owner).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
