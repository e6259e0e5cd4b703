package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stockhub/internal/pkg/redis"
	"stockhub/internal/service/stock/domain/port"
)

const unlockScriptName = "sweep_unlock"

// 只有持有者本人（token 相同）才能删除锁
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisSweepLocker 用 SET NX PX 实现 port.SweepLocker。
// ttl 应大于一次清理的最长耗时，进程崩溃后锁会自动过期。
type RedisSweepLocker struct {
	client   *redis.Client
	key      string
	ttl      time.Duration
	newToken func() string
}

func NewRedisSweepLocker(client *redis.Client, key string, ttl time.Duration) (*RedisSweepLocker, error) {
	if err := client.LoadScriptFromContent(unlockScriptName, unlockScript); err != nil {
		return nil, fmt.Errorf("failed to load unlock script: %w", err)
	}
	return &RedisSweepLocker{
		client:   client,
		key:      key,
		ttl:      ttl,
		newToken: func() string { return uuid.New().String() },
	}, nil
}

func (l *RedisSweepLocker) TryLock(ctx context.Context) (func(context.Context) error, error) {
	token := l.newToken()
	ok, err := l.client.GetClient().SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire sweep lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, port.ErrLockHeld
	}
	return func(ctx context.Context) error {
		if _, err := l.client.RunScript(ctx, unlockScriptName, []string{l.key}, token); err != nil {
			return fmt.Errorf("failed to release sweep lock %s: %w", l.key, err)
		}
		return nil
	}, nil
}
