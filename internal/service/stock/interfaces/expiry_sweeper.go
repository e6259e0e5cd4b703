// internal/service/stock/interfaces/expiry_sweeper.go
package interfaces

import (
	"context"
	"errors"
	"time"

	"stockhub/internal/pkg/logger"
	"stockhub/internal/service/stock/application"
	"stockhub/internal/service/stock/domain/port"
)

// ExpirySweepRunner 由 application.ExpiryService 实现
type ExpirySweepRunner interface {
	SweepExpired(ctx context.Context) (*application.SweepReport, error)
}

// ExpirySweeper 定时触发过期清理。每一轮先尝试获取清理锁，拿不到就跳过本轮。
type ExpirySweeper struct {
	svc      ExpirySweepRunner
	locker   port.SweepLocker
	interval time.Duration
}

func NewExpirySweeper(svc ExpirySweepRunner, locker port.SweepLocker, interval time.Duration) *ExpirySweeper {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &ExpirySweeper{svc: svc, locker: locker, interval: interval}
}

// Run 阻塞运行直到 ctx 被取消
func (s *ExpirySweeper) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Dur("interval", s.interval).Msg("✅ Expiry sweeper started.")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("🛑 Expiry sweeper stopped.")
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("Expiry sweep failed")
			}
		}
	}
}

// RunOnce 执行一轮清理；锁被其他实例持有时返回 nil, nil
func (s *ExpirySweeper) RunOnce(ctx context.Context) (*application.SweepReport, error) {
	unlock, err := s.locker.TryLock(ctx)
	if errors.Is(err, port.ErrLockHeld) {
		logger.Ctx(ctx).Debug().Msg("Sweep lock held elsewhere, skipping this round")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		// 使用独立的 ctx，保证关停时也能释放锁
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := unlock(unlockCtx); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("Failed to release sweep lock")
		}
	}()
	return s.svc.SweepExpired(ctx)
}
