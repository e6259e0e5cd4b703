// internal/service/stock/infrastructure/gorm_model.go
package infrastructure

import (
	"time"

	"stockhub/internal/service/stock/domain"
)

// ProductModel 对应 products 表中与库存相关的列
type ProductModel struct {
	ID            string    `gorm:"primaryKey;type:varchar(64)"`
	StockQuantity int       `gorm:"not null;default:0"`
	BlockedStock  int       `gorm:"not null;default:0"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (ProductModel) TableName() string {
	return "products"
}

// StockBlockModel 对应 stock_blocks 台账表
type StockBlockModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	ProductID string    `gorm:"type:varchar(64);not null"`
	OrderID   string    `gorm:"type:varchar(64);not null;index:idx_stock_blocks_order_id"`
	Quantity  int       `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index:idx_stock_blocks_expires_at"`
	CreatedAt time.Time
}

func (StockBlockModel) TableName() string {
	return "stock_blocks"
}

// OrderModel 对应 orders 表（只映射结账入口需要的列）
type OrderModel struct {
	ID          string             `gorm:"primaryKey;type:varchar(64)"`
	UserID      string             `gorm:"type:varchar(64);not null;index"`
	Status      domain.OrderStatus `gorm:"type:varchar(32);not null"`
	Lines       []domain.OrderLine `gorm:"serializer:json;type:json"`
	TotalAmount float64            `gorm:"type:decimal(10,2)"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (OrderModel) TableName() string {
	return "orders"
}

// Models 返回需要 AutoMigrate 的所有模型
func Models() []interface{} {
	return []interface{}{&ProductModel{}, &StockBlockModel{}, &OrderModel{}}
}
