// internal/service/stock/infrastructure/rule/cel_item_rule.go
package rule

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"stockhub/internal/service/stock/domain"
)

// CELItemRule 是 port.ItemRule 的 CEL 实现。
// 表达式中可以使用变量 item，字段为 product_id、quantity、unit_price，
// 例如 `item.quantity <= 20 && item.unit_price > 0.0`。
type CELItemRule struct {
	expr    string
	program cel.Program
}

// NewCELItemRule 编译表达式，表达式的结果必须是 bool
func NewCELItemRule(expr string) (*CELItemRule, error) {
	env, err := cel.NewEnv(cel.Variable("item", cel.MapType(cel.StringType, cel.DynType)))
	if err != nil {
		return nil, fmt.Errorf("failed to create cel env: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss.Err() != nil {
		return nil, fmt.Errorf("failed to compile item rule %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("item rule %q must evaluate to bool, got %s", expr, ast.OutputType())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build item rule program: %w", err)
	}
	return &CELItemRule{expr: expr, program: program}, nil
}

func (r *CELItemRule) Allow(line domain.OrderLine) (bool, error) {
	out, _, err := r.program.Eval(map[string]interface{}{
		"item": map[string]interface{}{
			"product_id": line.ProductID,
			"quantity":   int64(line.Quantity),
			"unit_price": line.UnitPrice,
		},
	})
	if err != nil {
		return false, fmt.Errorf("item rule %q: %w", r.expr, err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("item rule %q returned %T", r.expr, out.Value())
	}
	return allowed, nil
}

func (r *CELItemRule) String() string {
	return r.expr
}
