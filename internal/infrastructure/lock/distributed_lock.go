package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 【为什么需要分布式锁？】
//
// 场景：同一笔收款请求被同时点击两次“同意”（或同意与取消同时发生）
//
// 如果没有分布式锁：
//   goroutine1: 查询状态=pending -> 发起转账 -> 标记 approved
//   goroutine2: 查询状态=pending -> 发起转账 -> 标记失败   付了两次！
//
// 加了分布式锁：
//   goroutine1: 获取锁 -> 查询状态=pending -> 转账 -> approved -> 释放锁
//   goroutine2: 等待... -> 获取锁 -> 查询状态=approved -> 拒绝
//
// 【Redis 分布式锁原理】
//
// 加锁：SET key value NX EX timeout
// 释放锁：Lua 脚本先校验 value 再删除，避免误删别人的锁
//
// ============================================================================

var (
	ErrLockFailed = errors.New("获取分布式锁失败")
)

const unlockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string // 锁持有者标识
	expiration time.Duration
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁，只删除自己持有的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Err()
}

func (l *DistributedLock) Key() string {
	return l.key
}

// NewRequestLock 收款请求维度的锁，同意/拒绝/取消共用
func NewRequestLock(client *redis.Client, requestID int64, expiration time.Duration) *DistributedLock {
	key := fmt.Sprintf("money_request:lock:%d", requestID)
	return NewDistributedLock(client, key, uuid.NewString(), expiration)
}
