package server

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/betbot/astergate/aster/types"
	"github.com/betbot/astergate/internal/domain"
)

// webhookRequest 显式动作信号
type webhookRequest struct {
	Action        string           `json:"action"`
	Symbol        string           `json:"symbol"`
	Side          string           `json:"side"`
	Quantity      *decimal.Decimal `json:"quantity"`
	Price         *decimal.Decimal `json:"price"`
	OrderType     string           `json:"order_type"`
	WebhookSecret string           `json:"webhook_secret"`
}

var webhookActions = map[string]bool{"open": true, "increase": true, "decrease": true, "close": true}

func (r *webhookRequest) normalize() error {
	r.Action = strings.ToLower(strings.TrimSpace(r.Action))
	if !webhookActions[r.Action] {
		return badRequest("action must be one of open, increase, decrease, close, got %q", r.Action)
	}
	if strings.TrimSpace(r.Symbol) == "" {
		return badRequest("symbol is required")
	}
	if r.Side != "" {
		r.Side = strings.ToUpper(strings.TrimSpace(r.Side))
		if !types.Side(r.Side).Valid() {
			return badRequest("side must be one of BUY, SELL, got %q", r.Side)
		}
	}
	ot, err := normalizeOrderType(r.OrderType)
	if err != nil {
		return err
	}
	r.OrderType = ot
	if r.Quantity != nil && !r.Quantity.IsPositive() {
		return badRequest("quantity must be positive")
	}
	if r.Price != nil && !r.Price.IsPositive() {
		return badRequest("price must be positive")
	}
	return nil
}

// strategyRequest 策略信号，position_size 为告警后的带符号目标持仓
type strategyRequest struct {
	OrderAction   string           `json:"order_action"`
	Symbol        string           `json:"symbol"`
	Contracts     *decimal.Decimal `json:"contracts"`
	PositionSize  *decimal.Decimal `json:"position_size"`
	OrderType     string           `json:"order_type"`
	Price         *decimal.Decimal `json:"price"`
	WebhookSecret string           `json:"webhook_secret"`
}

func (r *strategyRequest) normalize() error {
	r.OrderAction = strings.ToLower(strings.TrimSpace(r.OrderAction))
	if r.OrderAction != "buy" && r.OrderAction != "sell" {
		return badRequest("order_action must be one of buy, sell, got %q", r.OrderAction)
	}
	if strings.TrimSpace(r.Symbol) == "" {
		return badRequest("symbol is required")
	}
	if r.Contracts == nil || !r.Contracts.IsPositive() {
		return badRequest("contracts must be positive")
	}
	if r.PositionSize == nil {
		return badRequest("position_size is required")
	}
	ot, err := normalizeOrderType(r.OrderType)
	if err != nil {
		return err
	}
	r.OrderType = ot
	if r.Price != nil && !r.Price.IsPositive() {
		return badRequest("price must be positive")
	}
	return nil
}

func normalizeOrderType(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return string(types.OrderTypeMarket), nil
	}
	if !types.OrderType(s).Valid() {
		return "", badRequest("order_type must be one of MARKET, LIMIT, got %q", s)
	}
	return s, nil
}

type leverageRequest struct {
	Leverage int `json:"leverage"`
}

type marginTypeRequest struct {
	MarginType string `json:"margin_type"`
}

// orderView 对外的订单结构
type orderView struct {
	OrderID       int64              `json:"order_id"`
	Symbol        string             `json:"symbol"`
	Side          types.Side         `json:"side"`
	Type          types.OrderType    `json:"type"`
	Status        string             `json:"status"`
	Quantity      decimal.Decimal    `json:"quantity"`
	Price         *decimal.Decimal   `json:"price,omitempty"`
	ExecutedQty   decimal.Decimal    `json:"executed_qty"`
	AvgPrice      *decimal.Decimal   `json:"avg_price,omitempty"`
	TimeInForce   types.TimeInForce  `json:"time_in_force,omitempty"`
	PositionSide  types.PositionSide `json:"position_side,omitempty"`
	ReduceOnly    bool               `json:"reduce_only"`
	ClosePosition bool               `json:"close_position"`
	UpdateTime    int64              `json:"update_time,omitempty"`
}

func nonZero(d decimal.Decimal) *decimal.Decimal {
	if d.IsZero() {
		return nil
	}
	return &d
}

func newOrderView(o *types.Order) *orderView {
	if o == nil {
		return nil
	}
	return &orderView{
		OrderID:       o.OrderID,
		Symbol:        o.Symbol,
		Side:          o.Side,
		Type:          o.Type,
		Status:        o.Status,
		Quantity:      o.OrigQty,
		Price:         nonZero(o.Price),
		ExecutedQty:   o.ExecutedQty,
		AvgPrice:      nonZero(o.AvgPrice),
		TimeInForce:   o.TimeInForce,
		PositionSide:  o.PositionSide,
		ReduceOnly:    bool(o.ReduceOnly),
		ClosePosition: bool(o.ClosePosition),
		UpdateTime:    o.UpdateTime,
	}
}

func newOrderViews(orders []types.Order) []orderView {
	out := make([]orderView, 0, len(orders))
	for i := range orders {
		out = append(out, *newOrderView(&orders[i]))
	}
	return out
}

// balanceView 对外的余额结构
type balanceView struct {
	Asset              string          `json:"asset"`
	Balance            decimal.Decimal `json:"balance"`
	AvailableBalance   decimal.Decimal `json:"available_balance"`
	CrossWalletBalance decimal.Decimal `json:"cross_wallet_balance"`
	CrossUnPnl         decimal.Decimal `json:"cross_un_pnl"`
	MaxWithdrawAmount  decimal.Decimal `json:"max_withdraw_amount"`
	MarginAvailable    bool            `json:"margin_available"`
	UpdateTime         int64           `json:"update_time,omitempty"`
}

func newBalanceViews(bs []types.Balance) []balanceView {
	out := make([]balanceView, 0, len(bs))
	for _, b := range bs {
		out = append(out, balanceView{
			Asset:              b.Asset,
			Balance:            b.Balance,
			AvailableBalance:   b.AvailableBalance,
			CrossWalletBalance: b.CrossWalletBalance,
			CrossUnPnl:         b.CrossUnPnl,
			MaxWithdrawAmount:  b.MaxWithdrawAmount,
			MarginAvailable:    bool(b.MarginAvailable),
			UpdateTime:         b.UpdateTime,
		})
	}
	return out
}

// webhookResponse webhook 成功响应
type webhookResponse struct {
	Success    bool             `json:"success"`
	Message    string           `json:"message"`
	Order      *orderView       `json:"order,omitempty"`
	CloseOrder *orderView       `json:"close_order,omitempty"`
	Position   *domain.Position `json:"position,omitempty"`
	Action     *domain.Action   `json:"action,omitempty"`
}
