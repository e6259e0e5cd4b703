// internal/service/stock/domain/event.go
package domain

import "time"

// StockEventType 标识库存事件类型
type StockEventType string

const (
	EventStockBlocked   StockEventType = "STOCK_BLOCKED"
	EventStockCommitted StockEventType = "STOCK_COMMITTED"
	EventStockReleased  StockEventType = "STOCK_RELEASED"
)

// StockEvent 在一次有效的 block/commit/release 之后发布
type StockEvent struct {
	EventID    string         `json:"eventId"`
	Type       StockEventType `json:"type"`
	OrderID    string         `json:"orderId"`
	Items      []Item         `json:"items"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// EventTypeFor 返回操作对应的事件类型
func EventTypeFor(op Operation) StockEventType {
	switch op {
	case OpCommit:
		return EventStockCommitted
	case OpRelease:
		return EventStockReleased
	default:
		return EventStockBlocked
	}
}
