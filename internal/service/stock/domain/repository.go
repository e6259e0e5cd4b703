// internal/service/stock/domain/repository.go
package domain

import (
	"context"
	"time"
)

// StockStore 定义了库存预占所依赖的持久化接口。
// 它位于领域层，由基础设施层实现（GORM/MySQL 或内存实现）。
type StockStore interface {
	// WithinTx 在一个事务中执行 fn；fn 返回错误时整个事务回滚。
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx StockTx) error) error

	// FindProduct 读取商品的库存计数器。
	FindProduct(ctx context.Context, productID string) (*Product, error)

	// FindBlocksByOrder 读取订单当前仍然存在的台账行（不加锁）。
	FindBlocksByOrder(ctx context.Context, orderID string) ([]StockBlock, error)

	// FindExpiredOrderIDs 返回拥有过期台账行的订单 ID（去重），最多 limit 个。
	FindExpiredOrderIDs(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// StockTx 是事务内可用的操作集合。
type StockTx interface {
	// IncrementBlocked 执行条件更新：
	// blocked_stock += quantity WHERE stock_quantity - blocked_stock >= quantity。
	// 条件不满足时返回 *InsufficientStockError，商品不存在时返回 *ProductNotFoundError。
	IncrementBlocked(ctx context.Context, productID string, quantity int) error

	// InsertBlock 写入一条台账记录，并回填 ID。
	InsertBlock(ctx context.Context, block *StockBlock) error

	// LockBlocksByOrder 读取并锁定订单的所有台账行。
	LockBlocksByOrder(ctx context.Context, orderID string) ([]StockBlock, error)

	// DeleteBlock 按 ID 删除台账行，返回是否真的删除了一行。
	DeleteBlock(ctx context.Context, id int64) (bool, error)

	// ReleaseBlocked 仅归还预占：blocked_stock -= quantity。
	ReleaseBlocked(ctx context.Context, productID string, quantity int) error

	// DeductBlocked 把预占转为永久扣减：stock_quantity 和 blocked_stock 同时减少 quantity。
	DeductBlocked(ctx context.Context, productID string, quantity int) error
}

// OrderRepository 定义了结账入口对订单的最小持久化需求。
type OrderRepository interface {
	Create(ctx context.Context, order *Order) error
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status OrderStatus) error
	FindByID(ctx context.Context, id string) (*Order, error)
}
