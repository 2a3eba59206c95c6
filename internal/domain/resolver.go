package domain

import (
	"github.com/shopspring/decimal"

	"github.com/betbot/astergate/aster/types"
)

// ActionKind 由持仓变化推导出的动作
type ActionKind string

const (
	ActionOpen     ActionKind = "open"
	ActionClose    ActionKind = "close"
	ActionFlip     ActionKind = "flip"
	ActionIncrease ActionKind = "increase"
	ActionDecrease ActionKind = "decrease"
)

// Action 推导结果
// Open/Flip 的 Side、Quantity 指开仓腿；Increase/Decrease 的 Side 是实际下单方向；Close 的 Quantity 为当前仓位大小
type Action struct {
	Kind     ActionKind      `json:"action"`
	Side     types.Side      `json:"side,omitempty"`
	Quantity decimal.Decimal `json:"quantity"`
	Current  decimal.Decimal `json:"current_size"`
	Target   decimal.Decimal `json:"target_size"`
}

// ResolveDelta 根据当前带符号持仓 cur 与目标持仓 target 推导动作，按顺序匹配，第一条命中生效：
//
//	cur == 0 且 target != 0              -> open
//	target == 0 且 cur != 0              -> close
//	cur 与 target 异号                    -> flip（先平后开）
//	|target| 同向大于 |cur|               -> increase
//	同向缩小且不越过 0                    -> decrease
//
// 其余情况（包括 cur == target）返回 InvalidState。
func ResolveDelta(cur, target decimal.Decimal) (Action, error) {
	a := Action{Current: cur, Target: target}
	zero := decimal.Zero

	switch {
	case cur.IsZero() && !target.IsZero():
		a.Kind = ActionOpen
		a.Side = SideForSize(target)
		a.Quantity = target.Abs()

	case target.IsZero() && !cur.IsZero():
		a.Kind = ActionClose
		a.Side = SideForSize(cur).Opposite()
		a.Quantity = cur.Abs()

	case (cur.IsPositive() && target.IsNegative()) || (cur.IsNegative() && target.IsPositive()):
		a.Kind = ActionFlip
		a.Side = SideForSize(target)
		a.Quantity = target.Abs()

	case (cur.IsPositive() && target.GreaterThan(cur)) || (cur.IsNegative() && target.LessThan(cur)):
		a.Kind = ActionIncrease
		a.Side = SideForSize(cur)
		a.Quantity = target.Sub(cur).Abs()

	case (cur.IsPositive() && target.LessThan(cur) && target.GreaterThanOrEqual(zero)) ||
		(cur.IsNegative() && target.GreaterThan(cur) && target.LessThanOrEqual(zero)):
		a.Kind = ActionDecrease
		a.Side = SideForSize(cur).Opposite()
		a.Quantity = cur.Sub(target).Abs()

	default:
		return Action{}, InvalidState("unable to determine action for position change: %s -> %s", cur.String(), target.String())
	}
	return a, nil
}
