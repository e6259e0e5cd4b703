// internal/service/stock/infrastructure/order_repository.go
package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"stockhub/internal/service/stock/domain"
)

// GormOrderRepository 是 OrderRepository 的 GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	err := r.db.WithContext(ctx).Create(FromDomainOrder(order)).Error
	return translateError("create order", err)
}

func (r *GormOrderRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&OrderModel{}).Error
	return translateError("delete order", err)
}

// UpdateStatus 状态未变化时 MySQL 返回 0 行，需要再确认订单是否存在
func (r *GormOrderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	res := r.db.WithContext(ctx).Model(&OrderModel{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return translateError("update order status", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&OrderModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return translateError("update order status", err)
	}
	if count == 0 {
		return errors.Wrapf(domain.ErrOrderNotFound, "order %s", id)
	}
	return nil
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(domain.ErrOrderNotFound, "order %s", id)
		}
		return nil, translateError("find order", err)
	}
	return ToDomainOrder(&model), nil
}
