package port

import "stockhub/internal/service/stock/domain"

// ItemRule 是结账商品行校验规则的出站端口。
type ItemRule interface {
	// Allow 返回商品行是否满足规则。规则本身有误时返回错误。
	Allow(line domain.OrderLine) (bool, error)
}
