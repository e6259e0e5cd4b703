// internal/service/stock/application/reservation_manager.go
package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockhub/internal/pkg/logger"
	"stockhub/internal/pkg/metrics"
	"stockhub/internal/service/stock/domain"
	"stockhub/internal/service/stock/domain/port"
)

// ReservationManager 负责库存预占的 block / commit / release 协议。
// 它自身不持有可变状态，所有状态都在 StockStore 中，正确性依赖存储的事务语义。
type ReservationManager struct {
	store     domain.StockStore
	publisher port.EventPublisher
	tracer    trace.Tracer
	metrics   *metrics.StockMetrics
	ttl       time.Duration
	now       func() time.Time
}

// Option 用于定制 ReservationManager
type Option func(*ReservationManager)

// WithTTL 设置预占的存活时间
func WithTTL(ttl time.Duration) Option {
	return func(m *ReservationManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock 替换时钟（测试中用于构造过期数据）
func WithClock(now func() time.Time) Option {
	return func(m *ReservationManager) { m.now = now }
}

// WithPublisher 设置库存事件发布器
func WithPublisher(p port.EventPublisher) Option {
	return func(m *ReservationManager) { m.publisher = p }
}

// WithMetrics 设置指标
func WithMetrics(sm *metrics.StockMetrics) Option {
	return func(m *ReservationManager) { m.metrics = sm }
}

// WithTracer 设置 tracer
func WithTracer(t trace.Tracer) Option {
	return func(m *ReservationManager) { m.tracer = t }
}

func NewReservationManager(store domain.StockStore, opts ...Option) *ReservationManager {
	m := &ReservationManager{
		store:  store,
		tracer: otel.Tracer("stock-service"),
		ttl:    domain.DefaultReservationTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Block 为订单原子地预占一组商品。
// 任何一个商品失败，本次调用的所有增量与台账行都会回滚。
func (m *ReservationManager) Block(ctx context.Context, orderID string, items []domain.Item) error {
	ctx, span := m.tracer.Start(ctx, "app.Block")
	defer span.End()
	started := time.Now()

	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.Int("items.count", len(items)),
	)

	err := validateBlock(orderID, items)
	if err == nil {
		now := m.now()
		err = m.store.WithinTx(ctx, func(ctx context.Context, tx domain.StockTx) error {
			for _, item := range items {
				if err := tx.IncrementBlocked(ctx, item.ProductID, item.Quantity); err != nil {
					return err
				}
				if err := tx.InsertBlock(ctx, domain.NewStockBlock(orderID, item, now, m.ttl)); err != nil {
					return err
				}
			}
			return nil
		})
		err = translateError(domain.OpBlock, err)
	}

	m.metrics.ObserveOperation(string(domain.OpBlock), resultLabel(err), started)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stock block failed")
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", orderID).Msg("Stock block rejected, nothing was reserved")
		return err
	}

	span.AddEvent("Stock blocked for all items")
	logger.Ctx(ctx).Info().Str("order_id", orderID).Int("items", len(items)).Msg("Stock blocked")
	m.publish(ctx, domain.OpBlock, orderID, items)
	return nil
}

// Commit 把订单的预占转为永久扣减。没有台账时是幂等的空操作。
func (m *ReservationManager) Commit(ctx context.Context, orderID string) (domain.Result, error) {
	return m.settle(ctx, domain.OpCommit, orderID)
}

// Release 归还订单的预占。没有台账时是幂等的空操作。
func (m *ReservationManager) Release(ctx context.Context, orderID string) (domain.Result, error) {
	return m.settle(ctx, domain.OpRelease, orderID)
}

// settle 是 Commit 和 Release 的共同实现：
// 锁定订单的台账行，逐行按 ID 删除，只有真正删除了该行才调整计数器。
// 因此并发的 commit/release/sweep 对每一行台账至多生效一次。
func (m *ReservationManager) settle(ctx context.Context, op domain.Operation, orderID string) (domain.Result, error) {
	ctx, span := m.tracer.Start(ctx, "app."+string(op))
	defer span.End()
	started := time.Now()
	span.SetAttributes(attribute.String("order.id", orderID))

	var (
		result  domain.Result
		settled []domain.Item
	)
	var err error
	if orderID == "" {
		err = domain.NewInvalidItemsError("empty order id")
	} else {
		err = m.store.WithinTx(ctx, func(ctx context.Context, tx domain.StockTx) error {
			result = domain.Result{OrderID: orderID, State: domain.StateNone}
			settled = settled[:0]

			blocks, err := tx.LockBlocksByOrder(ctx, orderID)
			if err != nil {
				return err
			}
			for _, b := range blocks {
				deleted, err := tx.DeleteBlock(ctx, b.ID)
				if err != nil {
					return err
				}
				if !deleted {
					continue
				}
				if op == domain.OpCommit {
					err = tx.DeductBlocked(ctx, b.ProductID, b.Quantity)
				} else {
					err = tx.ReleaseBlocked(ctx, b.ProductID, b.Quantity)
				}
				if err != nil {
					return err
				}
				result.Entries++
				result.Units += b.Quantity
				settled = append(settled, domain.Item{ProductID: b.ProductID, Quantity: b.Quantity})
			}
			return nil
		})
		err = translateError(op, err)
	}

	m.metrics.ObserveOperation(string(op), resultLabel(err), started)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stock "+string(op)+" failed")
		logger.Ctx(ctx).Error().Err(err).Str("order_id", orderID).Str("op", string(op)).Msg("Stock settlement rolled back")
		return domain.Result{OrderID: orderID, State: domain.StateNone}, err
	}

	span.SetAttributes(attribute.Int("ledger.entries", result.Entries), attribute.Int("ledger.units", result.Units))
	if !result.Effective() {
		span.AddEvent("No ledger entries left, idempotent no-op")
		logger.Ctx(ctx).Debug().Str("order_id", orderID).Str("op", string(op)).Msg("No reservation left for order")
		return result, nil
	}

	result.State = op.Terminal()
	logger.Ctx(ctx).Info().
		Str("order_id", orderID).
		Str("op", string(op)).
		Int("entries", result.Entries).
		Int("units", result.Units).
		Msg("Stock reservation settled")
	m.publish(ctx, op, orderID, settled)
	return result, nil
}

// Reservation 是订单当前预占情况的快照
type Reservation struct {
	OrderID string                  `json:"order_id"`
	State   domain.ReservationState `json:"state"`
	Blocks  []domain.StockBlock     `json:"blocks"`
}

// Inspect 返回订单当前仍然存在的台账行
func (m *ReservationManager) Inspect(ctx context.Context, orderID string) (*Reservation, error) {
	ctx, span := m.tracer.Start(ctx, "app.Inspect")
	defer span.End()

	blocks, err := m.store.FindBlocksByOrder(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, translateError("inspect", err)
	}
	state := domain.StateNone
	if len(blocks) > 0 {
		state = domain.StateBlocked
	}
	return &Reservation{OrderID: orderID, State: state, Blocks: blocks}, nil
}

// Product 返回商品的库存计数器
func (m *ReservationManager) Product(ctx context.Context, productID string) (*domain.Product, error) {
	ctx, span := m.tracer.Start(ctx, "app.Product")
	defer span.End()

	p, err := m.store.FindProduct(ctx, productID)
	if err != nil {
		span.RecordError(err)
		return nil, translateError("product", err)
	}
	return p, nil
}

func (m *ReservationManager) publish(ctx context.Context, op domain.Operation, orderID string, items []domain.Item) {
	if m.publisher == nil {
		return
	}
	event := &domain.StockEvent{
		EventID:    uuid.New().String(),
		Type:       domain.EventTypeFor(op),
		OrderID:    orderID,
		Items:      items,
		OccurredAt: m.now().UTC(),
	}
	if err := m.publisher.Publish(ctx, event); err != nil {
		// 库存变更已经提交，事件丢失只记录
		logger.Ctx(ctx).Error().Err(err).Str("order_id", orderID).Str("event", string(event.Type)).Msg("Failed to publish stock event")
	}
}

func validateBlock(orderID string, items []domain.Item) error {
	if orderID == "" {
		return domain.NewInvalidItemsError("empty order id")
	}
	return domain.ValidateItems(items)
}

// translateError 保留领域错误，其余一律包装为 TransactionError
func translateError(op domain.Operation, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrInvalidItems),
		errors.Is(err, domain.ErrTransactionFailure):
		return err
	}
	return &domain.TransactionError{Op: string(op), Err: err}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, domain.ErrInvalidItems):
		return "invalid"
	default:
		return "transaction_failure"
	}
}
