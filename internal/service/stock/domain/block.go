// internal/service/stock/domain/block.go
package domain

import (
	"time"
)

// DefaultReservationTTL 是一笔预占在被自动释放前的存活时间
const DefaultReservationTTL = 30 * time.Minute

// Item 是一次预占请求中的单个商品行
type Item struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// StockBlock 是预占台账中的一行。
// 它由 Block 创建，由 Commit 或 Release 删除，除此之外没有其他写入者。
type StockBlock struct {
	ID        int64     `json:"id"`
	ProductID string    `json:"product_id"`
	OrderID   string    `json:"order_id"`
	Quantity  int       `json:"quantity"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// NewStockBlock 为订单的某个商品行创建一条台账记录
func NewStockBlock(orderID string, item Item, now time.Time, ttl time.Duration) *StockBlock {
	return &StockBlock{
		ProductID: item.ProductID,
		OrderID:   orderID,
		Quantity:  item.Quantity,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// Expired 判断该预占在 now 时刻是否已经过期
func (b *StockBlock) Expired(now time.Time) bool {
	return b.ExpiresAt.Before(now)
}

// ValidateItems 校验商品行：非空、数量为正、同一商品只出现一次。
func ValidateItems(items []Item) error {
	if len(items) == 0 {
		return NewInvalidItemsError("no items to block")
	}
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			return NewInvalidItemsError("empty product id")
		}
		if item.Quantity <= 0 {
			return NewInvalidItemsError("quantity for product " + item.ProductID + " must be positive")
		}
		if _, dup := seen[item.ProductID]; dup {
			return NewInvalidItemsError("duplicate line for product " + item.ProductID)
		}
		seen[item.ProductID] = struct{}{}
	}
	return nil
}
