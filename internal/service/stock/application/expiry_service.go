// internal/service/stock/application/expiry_service.go
package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockhub/internal/pkg/logger"
	"stockhub/internal/pkg/metrics"
	"stockhub/internal/service/stock/domain"
)

// DefaultSweepBatchSize 是单次清理最多处理的订单数
const DefaultSweepBatchSize = 100

// SweepReport 汇总一次清理的结果
type SweepReport struct {
	Candidates int      `json:"candidates"`
	Released   int      `json:"released"`
	NoOps      int      `json:"no_ops"`
	Failed     []string `json:"failed,omitempty"`
}

// ExpiryService 释放已过期且未被提交的预占。
type ExpiryService struct {
	store     domain.StockStore
	manager   *ReservationManager
	batchSize int
	now       func() time.Time
	tracer    trace.Tracer
	metrics   *metrics.StockMetrics
}

func NewExpiryService(store domain.StockStore, manager *ReservationManager, batchSize int, sm *metrics.StockMetrics) *ExpiryService {
	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
	}
	return &ExpiryService{
		store:     store,
		manager:   manager,
		batchSize: batchSize,
		now:       manager.now,
		tracer:    otel.Tracer("stock-service"),
		metrics:   sm,
	}
}

// SweepExpired 查询过期台账所属的订单，并逐个调用 Release。
// 单个订单失败只记录并继续；重复清理同一订单是安全的，因为 Release 是幂等的。
func (s *ExpiryService) SweepExpired(ctx context.Context) (*SweepReport, error) {
	ctx, span := s.tracer.Start(ctx, "app.SweepExpired", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	now := s.now()
	orderIDs, err := s.store.FindExpiredOrderIDs(ctx, now, s.batchSize)
	if err != nil {
		err = translateError("sweep", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query expired blocks")
		return nil, err
	}

	report := &SweepReport{Candidates: len(orderIDs)}
	span.SetAttributes(attribute.Int("sweep.candidates", len(orderIDs)))

	for _, orderID := range orderIDs {
		if ctx.Err() != nil {
			logger.Ctx(ctx).Info().Msg("Context cancelled, stopping sweep loop")
			break
		}
		result, err := s.manager.Release(ctx, orderID)
		if err != nil {
			report.Failed = append(report.Failed, orderID)
			logger.Ctx(ctx).Error().Err(err).Str("order_id", orderID).Msg("Failed to release expired reservation")
			continue
		}
		if result.Effective() {
			report.Released++
		} else {
			report.NoOps++
		}
	}

	s.metrics.ObserveSweep(report.Released, len(report.Failed), now)
	if report.Candidates > 0 {
		logger.Ctx(ctx).Info().
			Int("candidates", report.Candidates).
			Int("released", report.Released).
			Int("no_ops", report.NoOps).
			Int("failed", len(report.Failed)).
			Msg("Expired reservations swept")
	}
	return report, nil
}
