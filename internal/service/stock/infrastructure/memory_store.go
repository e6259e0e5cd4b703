// internal/service/stock/infrastructure/memory_store.go
package infrastructure

import (
	"context"
	"sort"
	"sync"
	"time"

	"stockhub/internal/service/stock/domain"
)

// MemoryStockStore 是 StockStore 的内存实现，用于测试和本地运行（store.driver: memory）。
// WithinTx 在持有互斥锁的情况下操作一份快照，成功后整体替换，失败则丢弃。
type MemoryStockStore struct {
	mu       sync.Mutex
	products map[string]domain.Product
	blocks   map[int64]domain.StockBlock
	nextID   int64
	now      func() time.Time
}

func NewMemoryStockStore() *MemoryStockStore {
	return &MemoryStockStore{
		products: make(map[string]domain.Product),
		blocks:   make(map[int64]domain.StockBlock),
		now:      time.Now,
	}
}

// PutProduct 新增或覆盖一个商品的库存计数器
func (s *MemoryStockStore) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.now()
	}
	s.products[p.ID] = p
}

// Snapshot 返回所有商品和台账行的拷贝
func (s *MemoryStockStore) Snapshot() ([]domain.Product, []domain.StockBlock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	blocks := make([]domain.StockBlock, 0, len(s.blocks))
	for _, b := range s.blocks {
		blocks = append(blocks, b)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].ID < blocks[j].ID })
	return products, blocks
}

func (s *MemoryStockStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.StockTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		products: make(map[string]domain.Product, len(s.products)),
		blocks:   make(map[int64]domain.StockBlock, len(s.blocks)),
		nextID:   s.nextID,
		now:      s.now,
	}
	for k, v := range s.products {
		tx.products[k] = v
	}
	for k, v := range s.blocks {
		tx.blocks[k] = v
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.products = tx.products
	s.blocks = tx.blocks
	s.nextID = tx.nextID
	return nil
}

func (s *MemoryStockStore) FindProduct(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, &domain.ProductNotFoundError{ProductID: productID}
	}
	return &p, nil
}

func (s *MemoryStockStore) FindBlocksByOrder(_ context.Context, orderID string) ([]domain.StockBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return blocksOf(s.blocks, orderID), nil
}

func (s *MemoryStockStore) FindExpiredOrderIDs(_ context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := make([]domain.StockBlock, 0)
	for _, b := range s.blocks {
		if b.Expired(now) {
			expired = append(expired, b)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })

	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, b := range expired {
		if _, ok := seen[b.OrderID]; ok {
			continue
		}
		if limit > 0 && len(ids) >= limit {
			break
		}
		seen[b.OrderID] = struct{}{}
		ids = append(ids, b.OrderID)
	}
	return ids, nil
}

type memoryTx struct {
	products map[string]domain.Product
	blocks   map[int64]domain.StockBlock
	nextID   int64
	now      func() time.Time
}

func (t *memoryTx) IncrementBlocked(_ context.Context, productID string, quantity int) error {
	p, ok := t.products[productID]
	if !ok {
		return &domain.ProductNotFoundError{ProductID: productID}
	}
	if !p.CanBlock(quantity) {
		return &domain.InsufficientStockError{ProductID: productID, Requested: quantity, Available: p.Available()}
	}
	p.BlockedStock += quantity
	p.UpdatedAt = t.now()
	t.products[productID] = p
	return nil
}

func (t *memoryTx) InsertBlock(_ context.Context, block *domain.StockBlock) error {
	t.nextID++
	block.ID = t.nextID
	t.blocks[block.ID] = *block
	return nil
}

func (t *memoryTx) LockBlocksByOrder(_ context.Context, orderID string) ([]domain.StockBlock, error) {
	return blocksOf(t.blocks, orderID), nil
}

func (t *memoryTx) DeleteBlock(_ context.Context, id int64) (bool, error) {
	if _, ok := t.blocks[id]; !ok {
		return false, nil
	}
	delete(t.blocks, id)
	return true, nil
}

func (t *memoryTx) ReleaseBlocked(_ context.Context, productID string, quantity int) error {
	p, ok := t.products[productID]
	if !ok {
		return &domain.ProductNotFoundError{ProductID: productID}
	}
	if p.BlockedStock < quantity {
		return errCounterUnderflow(productID)
	}
	p.BlockedStock -= quantity
	p.UpdatedAt = t.now()
	t.products[productID] = p
	return nil
}

func (t *memoryTx) DeductBlocked(_ context.Context, productID string, quantity int) error {
	p, ok := t.products[productID]
	if !ok {
		return &domain.ProductNotFoundError{ProductID: productID}
	}
	if p.BlockedStock < quantity || p.StockQuantity < quantity {
		return errCounterUnderflow(productID)
	}
	p.BlockedStock -= quantity
	p.StockQuantity -= quantity
	p.UpdatedAt = t.now()
	t.products[productID] = p
	return nil
}

func blocksOf(all map[int64]domain.StockBlock, orderID string) []domain.StockBlock {
	blocks := make([]domain.StockBlock, 0)
	for _, b := range all {
		if b.OrderID == orderID {
			blocks = append(blocks, b)
		}
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].ID < blocks[j].ID })
	return blocks
}
