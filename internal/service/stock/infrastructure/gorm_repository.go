// internal/service/stock/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stockhub/internal/service/stock/domain"
)

// GormStockStore 是 StockStore 的 GORM/MySQL 实现。
// 预占依赖条件 UPDATE 的影响行数，结算依赖 SELECT ... FOR UPDATE 和按 ID 删除。
type GormStockStore struct {
	db *gorm.DB
}

func NewGormStockStore(db *gorm.DB) *GormStockStore {
	return &GormStockStore{db: db}
}

func (s *GormStockStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.StockTx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &gormStockTx{db: tx})
	})
	return translateError("transaction", err)
}

func (s *GormStockStore) FindProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var model ProductModel
	err := s.db.WithContext(ctx).Where("id = ?", productID).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &domain.ProductNotFoundError{ProductID: productID}
		}
		return nil, translateError("find product", err)
	}
	return ToDomainProduct(&model), nil
}

func (s *GormStockStore) FindBlocksByOrder(ctx context.Context, orderID string) ([]domain.StockBlock, error) {
	var models []StockBlockModel
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id").Find(&models).Error
	if err != nil {
		return nil, translateError("find blocks", err)
	}
	return toDomainBlocks(models), nil
}

// FindExpiredOrderIDs 按最早过期时间排序，老的预占先被回收
func (s *GormStockStore) FindExpiredOrderIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&StockBlockModel{}).
		Where("expires_at < ?", now).
		Group("order_id").
		Order("MIN(expires_at)").
		Limit(limit).
		Pluck("order_id", &ids).Error
	if err != nil {
		return nil, translateError("find expired", err)
	}
	return ids, nil
}

type gormStockTx struct {
	db *gorm.DB
}

func (t *gormStockTx) IncrementBlocked(ctx context.Context, productID string, quantity int) error {
	res := t.db.WithContext(ctx).Model(&ProductModel{}).
		Where("id = ? AND stock_quantity - blocked_stock >= ?", productID, quantity).
		UpdateColumn("blocked_stock", gorm.Expr("blocked_stock + ?", quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	// 没有命中：区分商品不存在与库存不足
	var model ProductModel
	err := t.db.WithContext(ctx).Where("id = ?", productID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.ProductNotFoundError{ProductID: productID}
	}
	if err != nil {
		return err
	}
	return &domain.InsufficientStockError{
		ProductID: productID,
		Requested: quantity,
		Available: model.StockQuantity - model.BlockedStock,
	}
}

func (t *gormStockTx) InsertBlock(ctx context.Context, block *domain.StockBlock) error {
	model := FromDomainBlock(block)
	if err := t.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	block.ID = model.ID
	return nil
}

func (t *gormStockTx) LockBlocksByOrder(ctx context.Context, orderID string) ([]domain.StockBlock, error) {
	var models []StockBlockModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderID).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainBlocks(models), nil
}

func (t *gormStockTx) DeleteBlock(ctx context.Context, id int64) (bool, error) {
	res := t.db.WithContext(ctx).Where("id = ?", id).Delete(&StockBlockModel{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (t *gormStockTx) ReleaseBlocked(ctx context.Context, productID string, quantity int) error {
	res := t.db.WithContext(ctx).Model(&ProductModel{}).
		Where("id = ? AND blocked_stock >= ?", productID, quantity).
		UpdateColumn("blocked_stock", gorm.Expr("blocked_stock - ?", quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return errCounterUnderflow(productID)
	}
	return nil
}

func (t *gormStockTx) DeductBlocked(ctx context.Context, productID string, quantity int) error {
	res := t.db.WithContext(ctx).Model(&ProductModel{}).
		Where("id = ? AND blocked_stock >= ? AND stock_quantity >= ?", productID, quantity, quantity).
		UpdateColumns(map[string]interface{}{
			"blocked_stock":  gorm.Expr("blocked_stock - ?", quantity),
			"stock_quantity": gorm.Expr("stock_quantity - ?", quantity),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return errCounterUnderflow(productID)
	}
	return nil
}

func toDomainBlocks(models []StockBlockModel) []domain.StockBlock {
	blocks := make([]domain.StockBlock, 0, len(models))
	for i := range models {
		blocks = append(blocks, ToDomainBlock(&models[i]))
	}
	return blocks
}
