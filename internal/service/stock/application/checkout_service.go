// internal/service/stock/application/checkout_service.go
package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockhub/internal/pkg/logger"
	"stockhub/internal/service/stock/domain"
	"stockhub/internal/service/stock/domain/port"
)

// CheckoutService 是订单入口：建单、预占库存、把订单推进到待支付。
// 支付渠道的下单（preference）不在这里完成。
type CheckoutService struct {
	orders  domain.OrderRepository
	manager *ReservationManager
	rule    port.ItemRule
	tracer  trace.Tracer
	newID   func() string
}

func NewCheckoutService(orders domain.OrderRepository, manager *ReservationManager, rule port.ItemRule) *CheckoutService {
	return &CheckoutService{
		orders:  orders,
		manager: manager,
		rule:    rule,
		tracer:  manager.tracer,
		newID:   func() string { return uuid.New().String() },
	}
}

// PlaceOrder 合并购物车中的重复商品，校验规则，创建订单并预占库存。
// 预占失败时删除刚创建的订单并返回预占错误。
func (s *CheckoutService) PlaceOrder(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.PlaceOrder")
	defer span.End()

	if req == nil || req.UserID == "" {
		return nil, domain.NewInvalidItemsError("empty user id")
	}
	if len(req.Lines) == 0 {
		return nil, domain.NewInvalidItemsError("cart is empty")
	}
	for _, l := range req.Lines {
		if l.ProductID == "" || l.Quantity <= 0 {
			return nil, domain.NewInvalidItemsError(fmt.Sprintf("bad line for product %q", l.ProductID))
		}
	}

	lines := domain.MergeLines(req.Lines)
	if err := s.checkRule(lines); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "item rule rejected cart")
		return nil, err
	}

	order, err := domain.NewOrder(s.newID(), req.UserID, lines, s.manager.now())
	if err != nil {
		return nil, domain.NewInvalidItemsError(err.Error())
	}
	span.SetAttributes(attribute.String("order.id", order.ID), attribute.String("user.id", order.UserID))

	if err := s.orders.Create(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create order")
		return nil, fmt.Errorf("create order: %w", err)
	}

	if err := s.manager.Block(ctx, order.ID, order.Items()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stock block failed")
		if delErr := s.orders.Delete(ctx, order.ID); delErr != nil {
			logger.Ctx(ctx).Error().Err(delErr).Str("order_id", order.ID).Msg("Failed to delete order after block failure")
		}
		return nil, err
	}

	if err := s.orders.UpdateStatus(ctx, order.ID, domain.OrderPendingPayment); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to mark order pending payment")
		logger.Ctx(ctx).Error().Err(err).Str("order_id", order.ID).Msg("Failed to mark order pending payment, releasing stock")
		// 补偿：归还预占并删除订单
		if _, relErr := s.manager.Release(ctx, order.ID); relErr != nil {
			logger.Ctx(ctx).Error().Err(relErr).Str("order_id", order.ID).Msg("Compensating release failed, sweeper will reclaim it")
		}
		if delErr := s.orders.Delete(ctx, order.ID); delErr != nil {
			logger.Ctx(ctx).Error().Err(delErr).Str("order_id", order.ID).Msg("Failed to delete order during compensation")
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}

	logger.Ctx(ctx).Info().Str("order_id", order.ID).Str("user_id", order.UserID).Float64("total", order.TotalAmount).Msg("Order placed, awaiting payment")
	span.AddEvent("Order is pending payment")
	return &CheckoutResponse{
		OrderID:     order.ID,
		Status:      domain.OrderPendingPayment,
		TotalAmount: order.TotalAmount,
		ExpiresIn:   s.manager.ttl.String(),
	}, nil
}

func (s *CheckoutService) checkRule(lines []domain.OrderLine) error {
	if s.rule == nil {
		return nil
	}
	for _, l := range lines {
		ok, err := s.rule.Allow(l)
		if err != nil {
			return fmt.Errorf("evaluate item rule: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: product %s quantity %d", domain.ErrItemRejected, l.ProductID, l.Quantity)
		}
	}
	return nil
}
