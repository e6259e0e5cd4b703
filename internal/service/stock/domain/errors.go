// internal/service/stock/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrProductNotFound    = errors.New("product not found")
	ErrTransactionFailure = errors.New("stock transaction failed")
	ErrInvalidItems       = errors.New("invalid items")
	ErrItemRejected       = errors.New("item rejected by checkout rule")
	ErrOrderNotFound      = errors.New("order not found")
)

// InsufficientStockError 标识第一个可用库存不足的商品。
// errors.Is(err, ErrInsufficientStock) 对它成立。
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ProductNotFoundError 携带缺失的商品 ID
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool {
	return target == ErrProductNotFound
}

// TransactionError 包装存储层的基础设施故障。
// Retryable 为 true 时（死锁、锁等待超时）调用方可以从头重试 Block。
type TransactionError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("stock transaction failed during %s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

func (e *TransactionError) Is(target error) bool {
	return target == ErrTransactionFailure
}

// IsRetryable 判断错误是否为可重试的瞬时故障
func IsRetryable(err error) bool {
	var txErr *TransactionError
	if errors.As(err, &txErr) {
		return txErr.Retryable
	}
	return false
}

type invalidItemsError struct {
	reason string
}

// NewInvalidItemsError 创建一个 errors.Is(err, ErrInvalidItems) 成立的错误
func NewInvalidItemsError(reason string) error {
	return &invalidItemsError{reason: reason}
}

func (e *invalidItemsError) Error() string {
	return "invalid items: " + e.reason
}

func (e *invalidItemsError) Is(target error) bool {
	return target == ErrInvalidItems
}
