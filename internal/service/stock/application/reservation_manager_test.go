package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"stockhub/internal/service/stock/domain"
	"stockhub/internal/service/stock/infrastructure"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.StockEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event *domain.StockEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Types() []domain.StockEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]domain.StockEventType, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

type ReservationSuite struct {
	suite.Suite
	ctx       context.Context
	store     *infrastructure.MemoryStockStore
	clock     *fakeClock
	publisher *recordingPublisher
	manager   *ReservationManager
}

func TestReservationSuite(t *testing.T) {
	suite.Run(t, new(ReservationSuite))
}

func (s *ReservationSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = infrastructure.NewMemoryStockStore()
	s.clock = &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	s.publisher = &recordingPublisher{}
	s.manager = NewReservationManager(s.store,
		WithClock(s.clock.Now),
		WithPublisher(s.publisher),
	)
	s.store.PutProduct(domain.Product{ID: "P", StockQuantity: 10})
	s.store.PutProduct(domain.Product{ID: "A", StockQuantity: 20})
	s.store.PutProduct(domain.Product{ID: "B", StockQuantity: 5})
}

// TearDownTest 每个用例结束后都检查计数器与台账一致
func (s *ReservationSuite) TearDownTest() {
	s.assertInvariants()
}

func (s *ReservationSuite) assertInvariants() {
	products, blocks := s.store.Snapshot()
	sums := make(map[string]int)
	for _, b := range blocks {
		s.Positive(b.Quantity)
		sums[b.ProductID] += b.Quantity
	}
	for _, p := range products {
		s.True(p.Consistent(), "product %s: blocked=%d stock=%d", p.ID, p.BlockedStock, p.StockQuantity)
		s.Equal(sums[p.ID], p.BlockedStock, "product %s ledger sum", p.ID)
	}
}

func (s *ReservationSuite) product(id string) domain.Product {
	p, err := s.store.FindProduct(s.ctx, id)
	s.Require().NoError(err)
	return *p
}

func (s *ReservationSuite) TestBlockThenCommit() {
	s.Require().NoError(s.manager.Block(s.ctx, "order-1", []domain.Item{{ProductID: "P", Quantity: 3}}))

	p := s.product("P")
	s.Equal(3, p.BlockedStock)
	s.Equal(10, p.StockQuantity)

	res, err := s.manager.Inspect(s.ctx, "order-1")
	s.Require().NoError(err)
	s.Equal(domain.StateBlocked, res.State)
	s.Require().Len(res.Blocks, 1)
	s.Equal("P", res.Blocks[0].ProductID)
	s.Equal(3, res.Blocks[0].Quantity)
	s.Equal(s.clock.Now().Add(30*time.Minute), res.Blocks[0].ExpiresAt)

	result, err := s.manager.Commit(s.ctx, "order-1")
	s.Require().NoError(err)
	s.Equal(domain.StateCommitted, result.State)
	s.Equal(1, result.Entries)
	s.Equal(3, result.Units)

	p = s.product("P")
	s.Equal(7, p.StockQuantity)
	s.Equal(0, p.BlockedStock)

	res, err = s.manager.Inspect(s.ctx, "order-1")
	s.Require().NoError(err)
	s.Equal(domain.StateNone, res.State)
	s.Empty(res.Blocks)
	s.Equal([]domain.StockEventType{domain.EventStockBlocked, domain.EventStockCommitted}, s.publisher.Types())
}

func (s *ReservationSuite) TestBlockThenRelease() {
	s.Require().NoError(s.manager.Block(s.ctx, "order-2", []domain.Item{{ProductID: "P", Quantity: 3}}))
	s.Equal(3, s.product("P").BlockedStock)

	result, err := s.manager.Release(s.ctx, "order-2")
	s.Require().NoError(err)
	s.Equal(domain.StateReleased, result.State)

	p := s.product("P")
	s.Equal(10, p.StockQuantity)
	s.Equal(0, p.BlockedStock)
	_, blocks := s.store.Snapshot()
	s.Empty(blocks)
}

func (s *ReservationSuite) TestCommitTwiceIsNoOp() {
	s.Require().NoError(s.manager.Block(s.ctx, "order-1", []domain.Item{{ProductID: "P", Quantity: 4}}))

	first, err := s.manager.Commit(s.ctx, "order-1")
	s.Require().NoError(err)
	s.True(first.Effective())

	second, err := s.manager.Commit(s.ctx, "order-1")
	s.Require().NoError(err)
	s.False(second.Effective())
	s.Equal(domain.StateNone, second.State)

	s.Equal(6, s.product("P").StockQuantity)
	s.Len(s.publisher.Types(), 2)
}

func (s *ReservationSuite) TestReleaseAfterCommitDoesNotCredit() {
	s.Require().NoError(s.manager.Block(s.ctx, "order-1", []domain.Item{{ProductID: "P", Quantity: 4}}))
	_, err := s.manager.Commit(s.ctx, "order-1")
	s.Require().NoError(err)

	result, err := s.manager.Release(s.ctx, "order-1")
	s.Require().NoError(err)
	s.Equal(0, result.Entries)

	p := s.product("P")
	s.Equal(6, p.StockQuantity)
	s.Equal(0, p.BlockedStock)
}

func (s *ReservationSuite) TestSettleUnknownOrderIsNoOp() {
	result, err := s.manager.Commit(s.ctx, "never-blocked")
	s.Require().NoError(err)
	s.Equal(domain.Result{OrderID: "never-blocked", State: domain.StateNone}, result)

	result, err = s.manager.Release(s.ctx, "never-blocked")
	s.Require().NoError(err)
	s.False(result.Effective())
	s.Empty(s.publisher.Types())
}

func (s *ReservationSuite) TestBlockIsAtomic() {
	err := s.manager.Block(s.ctx, "order-x", []domain.Item{
		{ProductID: "A", Quantity: 5},
		{ProductID: "B", Quantity: 999999},
	})

	s.Require().ErrorIs(err, domain.ErrInsufficientStock)
	var insufficient *domain.InsufficientStockError
	s.Require().ErrorAs(err, &insufficient)
	s.Equal("B", insufficient.ProductID)
	s.Equal(999999, insufficient.Requested)
	s.Equal(5, insufficient.Available)

	s.Equal(0, s.product("A").BlockedStock)
	_, blocks := s.store.Snapshot()
	s.Empty(blocks)
	s.Empty(s.publisher.Types())
}

func (s *ReservationSuite) TestBlockUnknownProduct() {
	err := s.manager.Block(s.ctx, "order-x", []domain.Item{
		{ProductID: "A", Quantity: 1},
		{ProductID: "ghost", Quantity: 1},
	})
	s.ErrorIs(err, domain.ErrProductNotFound)
	s.Equal(0, s.product("A").BlockedStock)
}

func (s *ReservationSuite) TestBlockRejectsInvalidInput() {
	cases := map[string]struct {
		orderID string
		items   []domain.Item
	}{
		"empty order id":    {"", []domain.Item{{ProductID: "A", Quantity: 1}}},
		"no items":          {"o", nil},
		"zero quantity":     {"o", []domain.Item{{ProductID: "A", Quantity: 0}}},
		"negative quantity": {"o", []domain.Item{{ProductID: "A", Quantity: -2}}},
		"duplicate product": {"o", []domain.Item{{ProductID: "A", Quantity: 1}, {ProductID: "A", Quantity: 1}}},
	}
	for name, tc := range cases {
		err := s.manager.Block(s.ctx, tc.orderID, tc.items)
		s.ErrorIs(err, domain.ErrInvalidItems, name)
	}
	s.Equal(0, s.product("A").BlockedStock)
}

func (s *ReservationSuite) TestBlockExactlyAvailable() {
	s.Require().NoError(s.manager.Block(s.ctx, "o-1", []domain.Item{{ProductID: "B", Quantity: 5}}))
	err := s.manager.Block(s.ctx, "o-2", []domain.Item{{ProductID: "B", Quantity: 1}})
	s.ErrorIs(err, domain.ErrInsufficientStock)
}

func (s *ReservationSuite) TestLastUnitRace() {
	s.store.PutProduct(domain.Product{ID: "L", StockQuantity: 1})

	const racers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		oks  int
		errs []error
	)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			err := s.manager.Block(s.ctx, "race-"+string(rune('a'+i)), []domain.Item{{ProductID: "L", Quantity: 1}})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				oks++
				return
			}
			errs = append(errs, err)
		}(i)
	}
	close(start)
	wg.Wait()

	s.Equal(1, oks)
	s.Len(errs, racers-1)
	for _, err := range errs {
		s.ErrorIs(err, domain.ErrInsufficientStock)
	}
	s.Equal(1, s.product("L").BlockedStock)
}

func (s *ReservationSuite) TestConcurrentCommitAndReleaseSettleOnce() {
	s.Require().NoError(s.manager.Block(s.ctx, "order-1", []domain.Item{
		{ProductID: "A", Quantity: 2},
		{ProductID: "P", Quantity: 3},
	}))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []domain.Result
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var (
				r   domain.Result
				err error
			)
			if i%2 == 0 {
				r, err = s.manager.Commit(s.ctx, "order-1")
			} else {
				r, err = s.manager.Release(s.ctx, "order-1")
			}
			s.NoError(err)
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	effective := 0
	var winner domain.Result
	for _, r := range results {
		if r.Effective() {
			effective++
			winner = r
		}
	}
	s.Require().Equal(1, effective)
	s.Equal(2, winner.Entries)
	s.Equal(5, winner.Units)

	if winner.State == domain.StateCommitted {
		s.Equal(18, s.product("A").StockQuantity)
		s.Equal(7, s.product("P").StockQuantity)
	} else {
		s.Equal(domain.StateReleased, winner.State)
		s.Equal(20, s.product("A").StockQuantity)
		s.Equal(10, s.product("P").StockQuantity)
	}
}

func (s *ReservationSuite) TestPublishFailureDoesNotFailBlock() {
	s.publisher.err = errors.New("broker down")
	s.Require().NoError(s.manager.Block(s.ctx, "order-1", []domain.Item{{ProductID: "P", Quantity: 1}}))
	s.Equal(1, s.product("P").BlockedStock)
}

func (s *ReservationSuite) TestProductLookup() {
	p, err := s.manager.Product(s.ctx, "P")
	s.Require().NoError(err)
	s.Equal(10, p.Available())

	_, err = s.manager.Product(s.ctx, "ghost")
	s.ErrorIs(err, domain.ErrProductNotFound)
}

type failingStore struct {
	domain.StockStore
	err error
}

func (f failingStore) WithinTx(context.Context, func(context.Context, domain.StockTx) error) error {
	return f.err
}

func TestStoreFailureBecomesTransactionError(t *testing.T) {
	m := NewReservationManager(failingStore{err: errors.New("connection reset")})

	err := m.Block(context.Background(), "o-1", []domain.Item{{ProductID: "A", Quantity: 1}})
	require.ErrorIs(t, err, domain.ErrTransactionFailure)
	assert.False(t, domain.IsRetryable(err))

	_, err = m.Commit(context.Background(), "o-1")
	assert.ErrorIs(t, err, domain.ErrTransactionFailure)
}

func TestRetryableFailureIsPreserved(t *testing.T) {
	txErr := &domain.TransactionError{Op: "transaction", Retryable: true, Err: errors.New("deadlock")}
	m := NewReservationManager(failingStore{err: txErr})

	_, err := m.Release(context.Background(), "o-1")
	require.ErrorIs(t, err, domain.ErrTransactionFailure)
	assert.True(t, domain.IsRetryable(err))
}
