package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"stockhub/internal/pkg/mq"
	"stockhub/internal/service/stock/domain"
)

// StockEventsTopic 是库存事件的默认主题
const StockEventsTopic = "stock-events"

// KafkaEventPublisher 实现了 port.EventPublisher 接口。
// 消息以订单 ID 为 Key，保证同一订单的事件落在同一分区。
type KafkaEventPublisher struct {
	writer mq.Writer
}

func NewKafkaEventPublisher(writer mq.Writer) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: writer}
}

func (a *KafkaEventPublisher) Publish(ctx context.Context, event *domain.StockEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal stock event: %w", err)
	}
	if err := mq.ProduceMessage(ctx, a.writer, []byte(event.OrderID), payload); err != nil {
		return fmt.Errorf("failed to produce stock event %s: %w", event.Type, err)
	}
	return nil
}
