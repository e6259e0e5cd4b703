package application

import (
	"time"

	"stockhub/internal/service/stock/domain"
)

func (s *ReservationSuite) TestSweepReleasesExpiredOnce() {
	s.Require().NoError(s.manager.Block(s.ctx, "stale", []domain.Item{{ProductID: "P", Quantity: 4}}))
	s.clock.Advance(10 * time.Minute)
	s.Require().NoError(s.manager.Block(s.ctx, "fresh", []domain.Item{{ProductID: "P", Quantity: 1}}))
	s.clock.Advance(25 * time.Minute)

	sweeper := NewExpiryService(s.store, s.manager, 0, nil)

	report, err := sweeper.SweepExpired(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Candidates)
	s.Equal(1, report.Released)
	s.Empty(report.Failed)

	// 第二次清理在下一次 block 之前运行，不能重复归还
	report, err = sweeper.SweepExpired(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, report.Candidates)
	s.Equal(0, report.Released)

	p := s.product("P")
	s.Equal(10, p.StockQuantity)
	s.Equal(1, p.BlockedStock)

	res, err := s.manager.Inspect(s.ctx, "fresh")
	s.Require().NoError(err)
	s.Equal(domain.StateBlocked, res.State)
}

func (s *ReservationSuite) TestOverlappingSweepsReleaseOnce() {
	s.Require().NoError(s.manager.Block(s.ctx, "stale", []domain.Item{{ProductID: "P", Quantity: 4}}))
	s.clock.Advance(time.Hour)

	// 两个副本读到同一批候选订单
	candidates, err := s.store.FindExpiredOrderIDs(s.ctx, s.clock.Now(), 10)
	s.Require().NoError(err)
	s.Require().Equal([]string{"stale"}, candidates)

	first, err := s.manager.Release(s.ctx, "stale")
	s.Require().NoError(err)
	second, err := s.manager.Release(s.ctx, "stale")
	s.Require().NoError(err)

	s.True(first.Effective())
	s.False(second.Effective())
	s.Equal(0, s.product("P").BlockedStock)
}

func (s *ReservationSuite) TestSweepRespectsBatchSize() {
	for _, id := range []string{"o-1", "o-2", "o-3"} {
		s.Require().NoError(s.manager.Block(s.ctx, id, []domain.Item{{ProductID: "A", Quantity: 1}}))
	}
	s.clock.Advance(time.Hour)

	sweeper := NewExpiryService(s.store, s.manager, 2, nil)
	report, err := sweeper.SweepExpired(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, report.Released)
	s.Equal(1, s.product("A").BlockedStock)

	report, err = sweeper.SweepExpired(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Released)
	s.Equal(0, s.product("A").BlockedStock)
}

func (s *ReservationSuite) TestCommitAfterSweepIsNoOp() {
	s.Require().NoError(s.manager.Block(s.ctx, "late-pay", []domain.Item{{ProductID: "P", Quantity: 2}}))
	s.clock.Advance(time.Hour)

	_, err := NewExpiryService(s.store, s.manager, 0, nil).SweepExpired(s.ctx)
	s.Require().NoError(err)

	result, err := s.manager.Commit(s.ctx, "late-pay")
	s.Require().NoError(err)
	s.False(result.Effective())
	s.Equal(10, s.product("P").StockQuantity)
}
