// internal/service/stock/domain/product.go
package domain

import "time"

// Product 是商品实体中与库存计算相关的子集。
// StockQuantity 是实际在库数量，BlockedStock 是被待支付订单预占、尚未扣减的数量。
type Product struct {
	ID            string    `json:"id"`
	StockQuantity int       `json:"stock_quantity"`
	BlockedStock  int       `json:"blocked_stock"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Available 返回当前可被预占的数量。
func (p *Product) Available() int {
	return p.StockQuantity - p.BlockedStock
}

// CanBlock 检查是否还有足够的可用库存。
func (p *Product) CanBlock(quantity int) bool {
	return quantity > 0 && p.Available() >= quantity
}

// Consistent 校验 0 <= blocked_stock <= stock_quantity。
func (p *Product) Consistent() bool {
	return p.BlockedStock >= 0 && p.BlockedStock <= p.StockQuantity
}
