// internal/service/stock/domain/order.go
package domain

import (
	"errors"
	"time"
)

// OrderStatus 与店铺 orders 表中的状态保持一致
type OrderStatus string

const (
	OrderPending        OrderStatus = "pending"
	OrderPendingPayment OrderStatus = "pending_payment"
	OrderPaid           OrderStatus = "paid"
	OrderPaymentFailed  OrderStatus = "payment_failed"
	OrderCancelled      OrderStatus = "cancelled"
)

// OrderLine 是订单中的一行，带有下单时的单价
type OrderLine struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Total 返回该行的金额
func (l OrderLine) Total() float64 {
	return l.UnitPrice * float64(l.Quantity)
}

// Order 是结账入口创建的订单记录（只包含库存子系统关心的字段）
type Order struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Status      OrderStatus `json:"status"`
	Lines       []OrderLine `json:"lines"`
	TotalAmount float64     `json:"total_amount"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewOrder 创建一个处于 pending 状态的订单
func NewOrder(id, userID string, lines []OrderLine, now time.Time) (*Order, error) {
	if id == "" || userID == "" || len(lines) == 0 {
		return nil, errors.New("cannot create order with empty required fields")
	}
	var total float64
	for _, l := range lines {
		total += l.Total()
	}
	return &Order{
		ID:          id,
		UserID:      userID,
		Status:      OrderPending,
		Lines:       lines,
		TotalAmount: total,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Items 把订单行转换为预占请求
func (o *Order) Items() []Item {
	items := make([]Item, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, Item{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return items
}

// MergeLines 合并同一商品的多行，保持首次出现的顺序和单价。
// 结账入口在调用 Block 之前使用它完成去重。
func MergeLines(lines []OrderLine) []OrderLine {
	index := make(map[string]int, len(lines))
	merged := make([]OrderLine, 0, len(lines))
	for _, l := range lines {
		if i, ok := index[l.ProductID]; ok {
			merged[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(merged)
		merged = append(merged, l)
	}
	return merged
}
