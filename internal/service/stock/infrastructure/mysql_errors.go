// internal/service/stock/infrastructure/mysql_errors.go
package infrastructure

import (
	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"stockhub/internal/service/stock/domain"
)

// MySQL 错误码
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

var ErrDuplicateKey = errors.New("duplicate key")

func errCounterUnderflow(productID string) error {
	return errors.Errorf("stock counters of product %s would become negative", productID)
}

// translateError 把驱动错误转换为领域可识别的错误。
// 死锁和锁等待超时标记为可重试。
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrInsufficientStock) ||
		errors.Is(err, domain.ErrProductNotFound) ||
		errors.Is(err, domain.ErrInvalidItems) ||
		errors.Is(err, domain.ErrTransactionFailure) {
		return err
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrDeadlock, mysqlErrLockWaitTimeout:
			return &domain.TransactionError{Op: op, Retryable: true, Err: errors.Wrap(err, op)}
		case mysqlErrDuplicateEntry:
			return errors.Wrap(ErrDuplicateKey, myErr.Message)
		}
	}
	return errors.Wrap(err, op)
}
