// internal/service/pipeline/infrastructure/adapter/locker_adapter.go
package adapter

import (
	"context"
	"sync"
	"time"

	"dealflow/internal/pkg/logger"
	"dealflow/internal/pkg/redis"
	"dealflow/internal/pkg/zookeeper"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// LocalLocker 是进程内的键控锁，单实例部署时使用
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*localSlot
}

type localSlot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*localSlot)}
}

// Lock 实现 port.DealLocker
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, slot, false)
		return nil, errors.Wrapf(ctx.Err(), "lock %s", key)
	}

	var once sync.Once
	return func() { once.Do(func() { l.release(key, slot, true) }) }, nil
}

func (l *LocalLocker) release(key string, slot *localSlot, held bool) {
	if held {
		<-slot.ch
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}

const (
	redisLockPrefix      = "dealflow:lock:"
	releaseLockScriptKey = "release_lock"
	lockRetryInterval    = 50 * time.Millisecond
)

// 只有持有者（token 一致）才能删除锁，避免误删他人在过期后重新获取的锁
var releaseLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker 用 SET NX PX 实现的键控锁，ttl 到期后自动释放
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker 创建时注册释放脚本
func NewRedisLocker(client *redis.Client, ttl time.Duration) (*RedisLocker, error) {
	if err := client.LoadScriptFromContent(releaseLockScriptKey, releaseLockScript); err != nil {
		return nil, errors.Wrap(err, "load release lock script")
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl}, nil
}

// Lock 实现 port.DealLocker，获取不到时轮询重试直到 ctx 结束
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := redisLockPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.GetClient().SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "acquire redis lock %s", key)
		}
		if ok {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "waiting for redis lock %s", key)
		}
	}

	return func() {
		// 释放不受请求 ctx 取消的影响
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if _, err := l.client.RunScript(releaseCtx, releaseLockScriptKey, []string{redisKey}, token); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("release redis lock")
		}
	}, nil
}

// ZookeeperLocker 基于临时顺序节点的公平锁，会话断开时锁自动释放
type ZookeeperLocker struct {
	conn *zookeeper.Conn
	root string
}

func NewZookeeperLocker(conn *zookeeper.Conn, root string) *ZookeeperLocker {
	return &ZookeeperLocker{conn: conn, root: root}
}

// Lock 实现 port.DealLocker
func (l *ZookeeperLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock, err := zookeeper.NewDistributedLock(l.conn, l.root, key)
	if err != nil {
		return nil, errors.Wrapf(err, "prepare zookeeper lock %s", key)
	}
	if err := lock.Lock(ctx); err != nil {
		return nil, err
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("release zookeeper lock")
		}
	}, nil
}
