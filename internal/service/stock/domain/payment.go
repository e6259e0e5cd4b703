// internal/service/stock/domain/payment.go
package domain

// PaymentStatus 是店铺内部的支付状态
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// MapProviderStatus 把支付渠道返回的状态映射为内部状态。
// 未知状态按 pending 处理，不触发任何库存动作。
func MapProviderStatus(status string) PaymentStatus {
	switch status {
	case "approved", "completed":
		return PaymentCompleted
	case "rejected", "cancelled", "failed":
		return PaymentFailed
	case "refunded":
		return PaymentRefunded
	case "in_process", "pending":
		return PaymentPending
	default:
		return PaymentPending
	}
}

// PaymentOutcome 是支付结果通知（webhook、状态轮询或消息）
type PaymentOutcome struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id,omitempty"`
	Status    string `json:"status"`
}
