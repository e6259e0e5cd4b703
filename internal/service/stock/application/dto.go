// internal/service/stock/application/dto.go
package application

import "stockhub/internal/service/stock/domain"

// BlockRequest 是预占接口的输入
type BlockRequest struct {
	OrderID string        `json:"order_id"`
	Items   []domain.Item `json:"items"`
}

// CheckoutRequest 是结账用例的输入
type CheckoutRequest struct {
	UserID string             `json:"user_id"`
	Lines  []domain.OrderLine `json:"items"`
}

// CheckoutResponse 是结账用例的输出
type CheckoutResponse struct {
	OrderID     string             `json:"order_id"`
	Status      domain.OrderStatus `json:"status"`
	TotalAmount float64            `json:"total_amount"`
	ExpiresIn   string             `json:"expires_in"`
}

// PaymentOutcomeResponse 描述一次支付结果通知被如何处理
type PaymentOutcomeResponse struct {
	OrderID       string               `json:"order_id"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	Stock         *domain.Result       `json:"stock,omitempty"`
	OrderStatus   domain.OrderStatus   `json:"order_status,omitempty"`
	// 支付成功但没有可提交的台账（例如已被超时释放），需要人工对账
	NeedsReconciliation bool `json:"needs_reconciliation,omitempty"`
}
