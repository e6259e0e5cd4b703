// internal/service/stock/domain/state.go
package domain

// ReservationState 定义了单个订单的预占集合的生命周期状态
type ReservationState string

const (
	StateNone      ReservationState = "NONE"      // 从未预占，或台账已被清空
	StateBlocked   ReservationState = "BLOCKED"   // 已预占，等待支付结果
	StateCommitted ReservationState = "COMMITTED" // 支付成功，预占转为永久扣减
	StateReleased  ReservationState = "RELEASED"  // 支付失败/取消/超时，库存已归还
)

// Operation 标识一次对预占台账的操作
type Operation string

const (
	OpBlock   Operation = "block"
	OpCommit  Operation = "commit"
	OpRelease Operation = "release"
)

// Terminal 返回操作成功后订单到达的状态
func (o Operation) Terminal() ReservationState {
	switch o {
	case OpBlock:
		return StateBlocked
	case OpCommit:
		return StateCommitted
	case OpRelease:
		return StateReleased
	default:
		return StateNone
	}
}

// Result 描述 Commit/Release 实际处理了多少台账。
// Entries 为 0 表示这是一次幂等的空操作（已被处理过，或者从未预占）。
type Result struct {
	OrderID string           `json:"order_id"`
	State   ReservationState `json:"state"`
	Entries int              `json:"entries"`
	Units   int              `json:"units"`
}

// Effective 表示本次调用是否真的改变了库存
func (r Result) Effective() bool {
	return r.Entries > 0
}
