package adapter

import (
	"context"
	"errors"
	"sync"

	"stockhub/internal/zookeeper"
	"stockhub/internal/service/stock/domain/port"
)

// ZookeeperSweepLocker 用临时顺序节点实现 port.SweepLocker。
// 会话断开时节点自动删除，锁随之释放。
type ZookeeperSweepLocker struct {
	mu   sync.Mutex
	lock *zookeeper.DistributedLock
}

func NewZookeeperSweepLocker(conn *zookeeper.Conn, resourceID string) (*ZookeeperSweepLocker, error) {
	lock, err := zookeeper.NewDistributedLock(conn, resourceID)
	if err != nil {
		return nil, err
	}
	return &ZookeeperSweepLocker{lock: lock}, nil
}

func (l *ZookeeperSweepLocker) TryLock(_ context.Context) (func(context.Context) error, error) {
	l.mu.Lock()
	if err := l.lock.TryLock(); err != nil {
		l.mu.Unlock()
		if errors.Is(err, zookeeper.ErrNotAcquired) {
			return nil, port.ErrLockHeld
		}
		return nil, err
	}
	return func(context.Context) error {
		defer l.mu.Unlock()
		return l.lock.Unlock()
	}, nil
}
