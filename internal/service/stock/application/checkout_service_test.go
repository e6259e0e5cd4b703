package application

import (
	"context"
	"errors"
	"fmt"

	"stockhub/internal/service/stock/domain"
	"stockhub/internal/service/stock/infrastructure"
)

type maxQuantityRule struct {
	max int
	err error
}

func (r maxQuantityRule) Allow(line domain.OrderLine) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	return line.Quantity <= r.max, nil
}

type flakyOrders struct {
	*infrastructure.MemoryOrderRepository
	updateErr error
}

func (f *flakyOrders) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	return f.MemoryOrderRepository.UpdateStatus(ctx, id, status)
}

func (s *ReservationSuite) newCheckout(orders domain.OrderRepository, rule maxQuantityRule) *CheckoutService {
	svc := NewCheckoutService(orders, s.manager, rule)
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("order-%d", n)
	}
	return svc
}

func (s *ReservationSuite) TestPlaceOrderMergesLinesAndBlocks() {
	orders := infrastructure.NewMemoryOrderRepository()
	svc := s.newCheckout(orders, maxQuantityRule{max: 10})

	resp, err := svc.PlaceOrder(s.ctx, &CheckoutRequest{
		UserID: "u-1",
		Lines: []domain.OrderLine{
			{ProductID: "P", Quantity: 2, UnitPrice: 5},
			{ProductID: "A", Quantity: 1, UnitPrice: 3},
			{ProductID: "P", Quantity: 1, UnitPrice: 5},
		},
	})
	s.Require().NoError(err)
	s.Equal("order-1", resp.OrderID)
	s.Equal(domain.OrderPendingPayment, resp.Status)
	s.InDelta(18.0, resp.TotalAmount, 1e-9)

	order, err := orders.FindByID(s.ctx, "order-1")
	s.Require().NoError(err)
	s.Equal(domain.OrderPendingPayment, order.Status)
	s.Len(order.Lines, 2)

	s.Equal(3, s.product("P").BlockedStock)
	s.Equal(1, s.product("A").BlockedStock)
}

func (s *ReservationSuite) TestPlaceOrderBlockFailureDeletesOrder() {
	orders := infrastructure.NewMemoryOrderRepository()
	svc := s.newCheckout(orders, maxQuantityRule{max: 100})

	_, err := svc.PlaceOrder(s.ctx, &CheckoutRequest{
		UserID: "u-1",
		Lines:  []domain.OrderLine{{ProductID: "B", Quantity: 6, UnitPrice: 1}},
	})
	s.Require().ErrorIs(err, domain.ErrInsufficientStock)

	_, err = orders.FindByID(s.ctx, "order-1")
	s.ErrorIs(err, domain.ErrOrderNotFound)
}

func (s *ReservationSuite) TestPlaceOrderRuleRejects() {
	orders := infrastructure.NewMemoryOrderRepository()
	svc := s.newCheckout(orders, maxQuantityRule{max: 2})

	_, err := svc.PlaceOrder(s.ctx, &CheckoutRequest{
		UserID: "u-1",
		Lines: []domain.OrderLine{
			{ProductID: "P", Quantity: 2, UnitPrice: 1},
			{ProductID: "P", Quantity: 1, UnitPrice: 1},
		},
	})
	s.ErrorIs(err, domain.ErrItemRejected)
	s.Equal(0, s.product("P").BlockedStock)

	svc = s.newCheckout(orders, maxQuantityRule{err: errors.New("no such key")})
	_, err = svc.PlaceOrder(s.ctx, &CheckoutRequest{UserID: "u-1", Lines: []domain.OrderLine{{ProductID: "P", Quantity: 1}}})
	s.Error(err)
	s.NotErrorIs(err, domain.ErrItemRejected)
}

func (s *ReservationSuite) TestPlaceOrderValidatesCart() {
	svc := s.newCheckout(infrastructure.NewMemoryOrderRepository(), maxQuantityRule{max: 10})

	for _, req := range []*CheckoutRequest{
		{UserID: "", Lines: []domain.OrderLine{{ProductID: "P", Quantity: 1}}},
		{UserID: "u", Lines: nil},
		{UserID: "u", Lines: []domain.OrderLine{{ProductID: "P", Quantity: 0}}},
		{UserID: "u", Lines: []domain.OrderLine{{ProductID: "", Quantity: 1}}},
	} {
		_, err := svc.PlaceOrder(s.ctx, req)
		s.ErrorIs(err, domain.ErrInvalidItems)
	}
}

func (s *ReservationSuite) TestPlaceOrderCompensatesWhenStatusUpdateFails() {
	orders := &flakyOrders{MemoryOrderRepository: infrastructure.NewMemoryOrderRepository(), updateErr: errors.New("db gone")}
	svc := s.newCheckout(orders, maxQuantityRule{max: 10})

	_, err := svc.PlaceOrder(s.ctx, &CheckoutRequest{UserID: "u-1", Lines: []domain.OrderLine{{ProductID: "P", Quantity: 2}}})
	s.Require().Error(err)

	s.Equal(0, s.product("P").BlockedStock)
	_, err = orders.FindByID(s.ctx, "order-1")
	s.ErrorIs(err, domain.ErrOrderNotFound)
}
