// internal/service/stock/infrastructure/mapper.go
package infrastructure

import "stockhub/internal/service/stock/domain"

// ToDomainProduct 将数据库模型转换为领域模型
func ToDomainProduct(model *ProductModel) *domain.Product {
	if model == nil {
		return nil
	}
	return &domain.Product{
		ID:            model.ID,
		StockQuantity: model.StockQuantity,
		BlockedStock:  model.BlockedStock,
		UpdatedAt:     model.UpdatedAt,
	}
}

func ToDomainBlock(model *StockBlockModel) domain.StockBlock {
	return domain.StockBlock{
		ID:        model.ID,
		ProductID: model.ProductID,
		OrderID:   model.OrderID,
		Quantity:  model.Quantity,
		ExpiresAt: model.ExpiresAt,
		CreatedAt: model.CreatedAt,
	}
}

// FromDomainBlock 用于插入，ID 由数据库生成
func FromDomainBlock(block *domain.StockBlock) *StockBlockModel {
	return &StockBlockModel{
		ProductID: block.ProductID,
		OrderID:   block.OrderID,
		Quantity:  block.Quantity,
		ExpiresAt: block.ExpiresAt,
		CreatedAt: block.CreatedAt,
	}
}

func ToDomainOrder(model *OrderModel) *domain.Order {
	if model == nil {
		return nil
	}
	return &domain.Order{
		ID:          model.ID,
		UserID:      model.UserID,
		Status:      model.Status,
		Lines:       model.Lines,
		TotalAmount: model.TotalAmount,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

func FromDomainOrder(order *domain.Order) *OrderModel {
	return &OrderModel{
		ID:          order.ID,
		UserID:      order.UserID,
		Status:      order.Status,
		Lines:       order.Lines,
		TotalAmount: order.TotalAmount,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
}
