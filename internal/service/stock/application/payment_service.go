// internal/service/stock/application/payment_service.go
package application

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockhub/internal/pkg/logger"
	"stockhub/internal/service/stock/domain"
)

// PaymentOutcomeService 把支付结果翻译为 Commit / Release。
// webhook 和消息消费者都调用它，重复投递是安全的。
type PaymentOutcomeService struct {
	orders  domain.OrderRepository
	manager *ReservationManager
	tracer  trace.Tracer
}

func NewPaymentOutcomeService(orders domain.OrderRepository, manager *ReservationManager) *PaymentOutcomeService {
	return &PaymentOutcomeService{orders: orders, manager: manager, tracer: manager.tracer}
}

func (s *PaymentOutcomeService) Apply(ctx context.Context, outcome domain.PaymentOutcome) (*PaymentOutcomeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.ApplyPaymentOutcome")
	defer span.End()

	if outcome.OrderID == "" {
		return nil, domain.NewInvalidItemsError("payment outcome without order id")
	}
	status := domain.MapProviderStatus(outcome.Status)
	span.SetAttributes(
		attribute.String("order.id", outcome.OrderID),
		attribute.String("payment.provider_status", outcome.Status),
		attribute.String("payment.status", string(status)),
	)
	resp := &PaymentOutcomeResponse{OrderID: outcome.OrderID, PaymentStatus: status}

	var (
		result      domain.Result
		err         error
		orderStatus domain.OrderStatus
	)
	switch status {
	case domain.PaymentCompleted:
		result, err = s.manager.Commit(ctx, outcome.OrderID)
		orderStatus = domain.OrderPaid
	case domain.PaymentFailed:
		result, err = s.manager.Release(ctx, outcome.OrderID)
		orderStatus = domain.OrderPaymentFailed
	default:
		logger.Ctx(ctx).Info().Str("order_id", outcome.OrderID).Str("status", outcome.Status).Msg("Payment not final, no stock action")
		return resp, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stock settlement failed")
		return nil, err
	}
	resp.Stock = &result

	if result.Effective() {
		return s.updateOrder(ctx, span, resp, orderStatus)
	}
	return s.applyLateOutcome(ctx, span, resp, outcome, orderStatus)
}

// applyLateOutcome 处理台账已被结算的通知（重复投递、乱序到达或已被超时释放）。
// 订单已处于 paid / payment_failed 时状态保持不变。
func (s *PaymentOutcomeService) applyLateOutcome(ctx context.Context, span trace.Span, resp *PaymentOutcomeResponse,
	outcome domain.PaymentOutcome, target domain.OrderStatus) (*PaymentOutcomeResponse, error) {
	completed := resp.PaymentStatus == domain.PaymentCompleted
	if s.orders == nil {
		resp.NeedsReconciliation = completed
		if completed {
			logger.Ctx(ctx).Warn().Str("order_id", outcome.OrderID).Str("payment_id", outcome.PaymentID).
				Msg("Payment completed but no reservation was left to commit")
		}
		return resp, nil
	}

	order, err := s.orders.FindByID(ctx, outcome.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			logger.Ctx(ctx).Warn().Str("order_id", outcome.OrderID).Msg("Payment outcome for unknown order")
			return resp, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load order")
		return nil, fmt.Errorf("load order: %w", err)
	}

	switch order.Status {
	case target:
		resp.OrderStatus = order.Status
		logger.Ctx(ctx).Debug().Str("order_id", order.ID).Str("status", string(order.Status)).Msg("Duplicate payment outcome ignored")
		return resp, nil
	case domain.OrderPaid, domain.OrderPaymentFailed:
		resp.OrderStatus = order.Status
		resp.NeedsReconciliation = completed
		span.AddEvent("Payment outcome conflicts with final order status")
		logger.Ctx(ctx).Warn().
			Str("order_id", order.ID).
			Str("payment_id", outcome.PaymentID).
			Str("order_status", string(order.Status)).
			Str("outcome", string(resp.PaymentStatus)).
			Msg("Late payment outcome ignored, order status is already final")
		return resp, nil
	}

	if completed {
		// 台账已被超时释放，订单仍记为 paid，库存需要人工对账
		resp.NeedsReconciliation = true
		logger.Ctx(ctx).Warn().Str("order_id", order.ID).Str("payment_id", outcome.PaymentID).
			Msg("Payment completed but no reservation was left to commit")
	}
	return s.updateOrder(ctx, span, resp, target)
}

func (s *PaymentOutcomeService) updateOrder(ctx context.Context, span trace.Span, resp *PaymentOutcomeResponse, status domain.OrderStatus) (*PaymentOutcomeResponse, error) {
	if s.orders == nil {
		return resp, nil
	}
	if err := s.orders.UpdateStatus(ctx, resp.OrderID, status); err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			logger.Ctx(ctx).Warn().Str("order_id", resp.OrderID).Msg("Payment outcome for unknown order")
			return resp, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update order status")
		return nil, fmt.Errorf("update order status: %w", err)
	}
	resp.OrderStatus = status
	return resp, nil
}
