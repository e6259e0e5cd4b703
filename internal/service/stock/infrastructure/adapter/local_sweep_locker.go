package adapter

import (
	"context"
	"sync"

	"stockhub/internal/service/stock/domain/port"
)

// LocalSweepLocker 只在进程内互斥，用于单副本部署（sweep.lock: none）
type LocalSweepLocker struct {
	mu sync.Mutex
}

func NewLocalSweepLocker() *LocalSweepLocker {
	return &LocalSweepLocker{}
}

func (l *LocalSweepLocker) TryLock(_ context.Context) (func(context.Context) error, error) {
	if !l.mu.TryLock() {
		return nil, port.ErrLockHeld
	}
	return func(context.Context) error {
		l.mu.Unlock()
		return nil
	}, nil
}
