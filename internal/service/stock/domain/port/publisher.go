package port

import (
	"context"
	"stockhub/internal/service/stock/domain"
)

// EventPublisher 是库存事件的出站端口。
type EventPublisher interface {
	// Publish 发布一个库存事件。失败只应被记录，不能影响已提交的库存变更。
	Publish(ctx context.Context, event *domain.StockEvent) error
}
