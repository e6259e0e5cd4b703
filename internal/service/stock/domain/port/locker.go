package port

import (
	"context"
	"errors"
)

// ErrLockHeld 表示锁已被其他实例持有
var ErrLockHeld = errors.New("sweep lock is held by another instance")

// SweepLocker 是过期清理任务的互斥端口。
// 它只用于避免多个副本重复扫描，清理本身的正确性依赖 Release 的幂等性。
type SweepLocker interface {
	// TryLock 尝试获取锁，不阻塞。拿不到锁时返回 ErrLockHeld。
	TryLock(ctx context.Context) (unlock func(context.Context) error, err error)
}
