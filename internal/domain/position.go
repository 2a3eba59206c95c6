package domain

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/betbot/astergate/aster/types"
)

// Position 单个交易对的持仓快照，每次读取都来自交易所
type Position struct {
	Symbol           string             `json:"symbol"`
	PositionSide     types.PositionSide `json:"position_side"`
	Amount           decimal.Decimal    `json:"position_amt"`
	EntryPrice       decimal.Decimal    `json:"entry_price"`
	MarkPrice        decimal.Decimal    `json:"mark_price"`
	UnrealizedProfit decimal.Decimal    `json:"unrealized_profit"`
	LiquidationPrice decimal.Decimal    `json:"liquidation_price"`
	Leverage         int                `json:"leverage"`
	MarginType       types.MarginType   `json:"margin_type"`
	IsolatedMargin   decimal.Decimal    `json:"isolated_margin"`
	Notional         decimal.Decimal    `json:"notional"`
	UpdateTime       int64              `json:"update_time"`
}

// PositionFromRisk 从 positionRisk 转换
func PositionFromRisk(r types.PositionRisk) Position {
	return Position{
		Symbol:           r.Symbol,
		PositionSide:     r.PositionSide,
		Amount:           r.PositionAmt,
		EntryPrice:       r.EntryPrice,
		MarkPrice:        r.MarkPrice,
		UnrealizedProfit: r.UnRealizedProfit,
		LiquidationPrice: r.LiquidationPrice,
		Leverage:         int(r.Leverage),
		MarginType:       normalizeMarginType(r.MarginType),
		IsolatedMargin:   r.IsolatedMargin,
		Notional:         r.Notional,
		UpdateTime:       r.UpdateTime,
	}
}

// 交易所返回 cross / isolated
func normalizeMarginType(s string) types.MarginType {
	switch strings.ToLower(s) {
	case "cross", "crossed":
		return types.MarginTypeCrossed
	case "isolated":
		return types.MarginTypeIsolated
	}
	return types.MarginType(strings.ToUpper(s))
}

// IsFlat 是否空仓
func (p Position) IsFlat() bool { return p.Amount.IsZero() }

// IsLong 多头
func (p Position) IsLong() bool { return p.Amount.IsPositive() }

// Size 持仓绝对数量
func (p Position) Size() decimal.Decimal { return p.Amount.Abs() }

// CloseSide 平仓方向
func (p Position) CloseSide() types.Side {
	if p.IsLong() {
		return types.SideSell
	}
	return types.SideBuy
}

// OpenSide 加仓方向
func (p Position) OpenSide() types.Side {
	return p.CloseSide().Opposite()
}

// SideForSize 按目标持仓符号确定开仓方向
func SideForSize(target decimal.Decimal) types.Side {
	if target.IsPositive() {
		return types.SideBuy
	}
	return types.SideSell
}
