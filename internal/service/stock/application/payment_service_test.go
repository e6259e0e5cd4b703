package application

import (
	"time"

	"stockhub/internal/service/stock/domain"
	"stockhub/internal/service/stock/infrastructure"
)

func (s *ReservationSuite) placeOrder(orders *infrastructure.MemoryOrderRepository, qty int) string {
	svc := s.newCheckout(orders, maxQuantityRule{max: 100})
	resp, err := svc.PlaceOrder(s.ctx, &CheckoutRequest{UserID: "u-1", Lines: []domain.OrderLine{{ProductID: "P", Quantity: qty, UnitPrice: 2}}})
	s.Require().NoError(err)
	return resp.OrderID
}

func (s *ReservationSuite) TestPaymentApprovedCommits() {
	orders := infrastructure.NewMemoryOrderRepository()
	orderID := s.placeOrder(orders, 3)
	svc := NewPaymentOutcomeService(orders, s.manager)

	resp, err := svc.Apply(s.ctx, domain.PaymentOutcome{OrderID: orderID, PaymentID: "pay-1", Status: "approved"})
	s.Require().NoError(err)
	s.Equal(domain.PaymentCompleted, resp.PaymentStatus)
	s.Require().NotNil(resp.Stock)
	s.Equal(domain.StateCommitted, resp.Stock.State)
	s.Equal(7, s.product("P").StockQuantity)

	order, err := orders.FindByID(s.ctx, orderID)
	s.Require().NoError(err)
	s.Equal(domain.OrderPaid, order.Status)

	// 重复投递
	resp, err = svc.Apply(s.ctx, domain.PaymentOutcome{OrderID: orderID, PaymentID: "pay-1", Status: "approved"})
	s.Require().NoError(err)
	s.False(resp.Stock.Effective())
	s.False(resp.NeedsReconciliation)
	s.Equal(domain.OrderPaid, resp.OrderStatus)
	s.Equal(7, s.product("P").StockQuantity)
}

func (s *ReservationSuite) TestPaymentRejectedAfterApprovedKeepsPaid() {
	orders := infrastructure.NewMemoryOrderRepository()
	orderID := s.placeOrder(orders, 3)
	svc := NewPaymentOutcomeService(orders, s.manager)

	_, err := svc.Apply(s.ctx, domain.PaymentOutcome{OrderID: orderID, PaymentID: "pay-1", Status: "approved"})
	s.Require().NoError(err)

	// 乱序到达的失败通知
	resp, err := svc.Apply(s.ctx, domain.PaymentOutcome{OrderID: orderID, PaymentID: "pay-1", Status: "rejected"})
	s.Require().NoError(err)
	s.False(resp.Stock.Effective())
	s.Equal(domain.OrderPaid, resp.OrderStatus)
	s.False(resp.NeedsReconciliation)

	p := s.product("P")
	s.Equal(7, p.StockQuantity)
	s.Equal(0, p.BlockedStock)

	order, err := orders.FindByID(s.ctx, orderID)
	s.Require().NoError(err)
	s.Equal(domain.OrderPaid, order.Status)
}

func (s *ReservationSuite) TestPaymentApprovedAfterRejectedKeepsFailed() {
	orders := infrastructure.NewMemoryOrderRepository()
	orderID := s.placeOrder(orders, 3)
	svc := NewPaymentOutcomeService(orders, s.manager)

	_, err := svc.Apply(s.ctx, domain.PaymentOutcome{OrderID: orderID, Status: "rejected"})
	s.Require().NoError(err)

	resp, err := svc.Apply(s.ctx, domain.PaymentOutcome{OrderID: orderID, Status: "approved"})
	s.Require().NoError(err)
	s.False(resp.Stock.Effective())
	s.Equal(domain.OrderPaymentFailed, resp.OrderStatus)
	s.True(resp.NeedsReconciliation)
	s.Equal(10, s.product("P").StockQuantity)

	order, err := orders.FindByID(s.ctx, orderID)
	s.Require().NoError(err)
	s.Equal(domain.OrderPaymentFailed, order.Status)
}

func (s *ReservationSuite) TestPaymentRejectedReleases() {
	orders := infrastructure.NewMemoryOrderRepository()
	orderID := s.placeOrder(orders, 3)
	svc := NewPaymentOutcomeService(orders, s.manager)

	resp, err := svc.Apply(s.ctx, domain.PaymentOutcome{OrderID: orderID, Status: "rejected"})
	s.Require().NoError(err)
	s.Equal(domain.StateReleased, resp.Stock.State)

	p := s.product("P")
	s.Equal(10, p.StockQuantity)
	s.Equal(0, p.BlockedStock)

	order, err := orders.FindByID(s.ctx, orderID)
	s.Require().NoError(err)
	s.Equal(domain.OrderPaymentFailed, order.Status)
}

func (s *ReservationSuite) TestPaymentPendingHasNoStockEffect() {
	orders := infrastructure.NewMemoryOrderRepository()
	orderID := s.placeOrder(orders, 3)
	svc := NewPaymentOutcomeService(orders, s.manager)

	for _, status := range []string{"pending", "in_process", "refunded", "something-new"} {
		resp, err := svc.Apply(s.ctx, domain.PaymentOutcome{OrderID: orderID, Status: status})
		s.Require().NoError(err)
		s.Nil(resp.Stock)
	}
	s.Equal(3, s.product("P").BlockedStock)

	order, err := orders.FindByID(s.ctx, orderID)
	s.Require().NoError(err)
	s.Equal(domain.OrderPendingPayment, order.Status)
}

func (s *ReservationSuite) TestPaymentApprovedAfterExpiry() {
	orders := infrastructure.NewMemoryOrderRepository()
	orderID := s.placeOrder(orders, 3)
	s.clock.Advance(time.Hour)
	_, err := NewExpiryService(s.store, s.manager, 0, nil).SweepExpired(s.ctx)
	s.Require().NoError(err)

	resp, err := NewPaymentOutcomeService(orders, s.manager).Apply(s.ctx, domain.PaymentOutcome{OrderID: orderID, Status: "approved"})
	s.Require().NoError(err)
	s.False(resp.Stock.Effective())
	s.True(resp.NeedsReconciliation)
	s.Equal(domain.OrderPaid, resp.OrderStatus)
	s.Equal(10, s.product("P").StockQuantity)

	order, err := orders.FindByID(s.ctx, orderID)
	s.Require().NoError(err)
	s.Equal(domain.OrderPaid, order.Status)
}

func (s *ReservationSuite) TestPaymentUnknownOrder() {
	svc := NewPaymentOutcomeService(infrastructure.NewMemoryOrderRepository(), s.manager)

	resp, err := svc.Apply(s.ctx, domain.PaymentOutcome{OrderID: "ghost", Status: "approved"})
	s.Require().NoError(err)
	s.False(resp.Stock.Effective())
	s.Empty(resp.OrderStatus)

	_, err = svc.Apply(s.ctx, domain.PaymentOutcome{Status: "approved"})
	s.ErrorIs(err, domain.ErrInvalidItems)
}
